package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-semantic/pkg/handlers"
	"github.com/ekaya-inc/ekaya-semantic/pkg/llm"
	"github.com/ekaya-inc/ekaya-semantic/pkg/logging"
	"github.com/ekaya-inc/ekaya-semantic/pkg/mcp"
	"github.com/ekaya-inc/ekaya-semantic/pkg/middleware"
	"github.com/ekaya-inc/ekaya-semantic/pkg/semantic"
	"github.com/ekaya-inc/ekaya-semantic/pkg/services"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the query API and MCP tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger.Info("Configuration loaded",
			zap.String("env", cfg.Env),
			zap.String("version", cfg.Version),
			zap.String("catalog_url", logging.SanitizeURL(cfg.Catalog.URL)),
			zap.String("catalog_service", cfg.Catalog.ServiceName),
			zap.String("semantic_layer_url", logging.SanitizeURL(cfg.SemanticLayer.APIURL)),
			zap.String("llm_provider", cfg.LLM.Provider),
			zap.String("llm_model", cfg.LLM.Model),
			zap.Bool("llm_available", cfg.LLM.IsAvailable()))

		llmClient, err := newLLMClient(cfg, logger)
		if err != nil {
			return err
		}

		graphs := services.NewGraphHolder(nil)
		if cfg.Analysis.OnStartup {
			if _, err := runAnalysis(ctx, cfg, llmClient, graphs, logger); err != nil {
				logger.Error("Relationship analysis failed; join validation is skipped until a graph is built",
					zap.Error(err))
			}
		}

		semanticClient := semantic.NewClient(semantic.Config{
			APIURL:  cfg.SemanticLayer.APIURL,
			Token:   cfg.SemanticLayer.Token,
			Timeout: cfg.Timeouts.Query,
		}, logger)
		metaCache := semantic.NewMetaCache(semanticClient, cfg.SemanticLayer.MetaCacheTTL, logger)

		var repair services.QueryRepairEngine
		if llmClient != nil {
			repair = services.NewQueryRepairEngine(llmClient, cfg.LLM.Temperature, cfg.Timeouts.LLM, logger)
		}
		validator := services.NewJoinPathValidator(graphs, logger)
		orchestrator := services.NewExecutionOrchestrator(
			validator,
			services.NewQueryExecutor(semanticClient, cfg.Timeouts.Query, logger),
			services.NewFailureClassifier(),
			repair,
			logger,
		)
		queryService := services.NewQueryService(orchestrator, validator, metaCache, logger)

		mcpServer := mcp.NewServer("ekaya-semantic", cfg.Version, logger)
		mcpServer.RegisterTools(cfg.Version, &mcp.ToolDeps{
			Meta:         metaCache,
			Graphs:       graphs,
			QueryService: queryService,
		})

		mux := http.NewServeMux()
		health := handlers.NewHealthHandler(cfg, graphs, logger)
		if guarded, ok := llmClient.(*llm.GuardedClient); ok {
			health.WithLLM(guarded)
		}
		health.RegisterRoutes(mux)
		handlers.NewQueryHandler(queryService, metaCache, logger).RegisterRoutes(mux)
		handlers.NewMCPHandler(mcpServer, logger).RegisterRoutes(mux)

		srv := &http.Server{
			Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
			Handler:           middleware.RequestLogger(logger)(mux),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("Starting ekaya-semantic", zap.String("addr", srv.Addr), zap.String("version", cfg.Version))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}
