package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ekaya-inc/ekaya-semantic/pkg/catalog"
	"github.com/ekaya-inc/ekaya-semantic/pkg/config"
	"github.com/ekaya-inc/ekaya-semantic/pkg/llm"
	"github.com/ekaya-inc/ekaya-semantic/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "ekaya-semantic",
	Short:         "Relationship-aware query execution over a semantic layer",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Version = Version
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML config file")
	rootCmd.AddCommand(serveCmd, analyzeCmd, enrichCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadRuntime reads the config and builds the logger every command shares.
func loadRuntime() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadFile(configPath, Version)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.Env)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		zapCfg := zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapCfg.Build()
	}
	return zap.NewProduction()
}

// newLLMClient returns nil when no model is configured.
func newLLMClient(cfg *config.Config, logger *zap.Logger) (llm.LLMClient, error) {
	if !cfg.LLM.IsAvailable() {
		return nil, nil
	}
	client, err := llm.NewClientForProvider(&llm.Config{
		Provider:  cfg.LLM.Provider,
		Endpoint:  cfg.LLM.Endpoint,
		Model:     cfg.LLM.Model,
		APIKey:    cfg.LLM.APIKey,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.Timeouts.LLM,
	}, logger)
	if err != nil {
		return nil, err
	}
	breaker := llm.NewCircuitBreaker(llm.DefaultCircuitBreakerConfig())
	return llm.NewGuardedClient(client, breaker, logger), nil
}

func newCatalogClient(cfg *config.Config, logger *zap.Logger) *catalog.Client {
	return catalog.NewClient(catalog.Config{
		BaseURL:  cfg.Catalog.URL,
		Token:    cfg.Catalog.Token,
		PageSize: cfg.Catalog.PageSize,
		Timeout:  cfg.Timeouts.Metadata,
	}, logger)
}

// runAnalysis builds the relationship graph and publishes it to graphs.
func runAnalysis(ctx context.Context, cfg *config.Config, llmClient llm.LLMClient, graphs *services.GraphHolder, logger *zap.Logger) (*services.AnalysisSummary, error) {
	var inference services.RelationshipInferenceService
	if llmClient != nil && !cfg.Analysis.SkipLLMInference {
		inference = services.NewRelationshipInferenceService(llmClient, cfg.LLM.Temperature, cfg.Timeouts.LLM, logger)
	}

	analysis := services.NewSemanticAnalysisService(
		newCatalogClient(cfg, logger),
		inference,
		graphs,
		services.SemanticAnalysisConfig{
			ServiceName:  cfg.Catalog.ServiceName,
			ExcludeViews: cfg.Catalog.ExcludeViews,
		},
		logger,
	)
	return analysis.Run(ctx)
}
