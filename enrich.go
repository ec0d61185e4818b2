package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-semantic/pkg/llm"
	"github.com/ekaya-inc/ekaya-semantic/pkg/services"
)

var enrichDryRun bool

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Generate table and column documentation and write it back to the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		llmClient, err := newLLMClient(cfg, logger)
		if err != nil {
			return err
		}
		if llmClient == nil {
			return errors.New("enrich requires a language model: set llm.model and LLM_API_KEY")
		}

		pool := llm.NewWorkerPool(llm.WorkerPoolConfig{MaxConcurrent: cfg.Enrichment.MaxConcurrent}, logger)
		enrichment := services.NewMetadataEnrichmentService(
			newCatalogClient(cfg, logger),
			llmClient,
			pool,
			services.MetadataEnrichmentConfig{
				ServiceName: cfg.Catalog.ServiceName,
				SkipTables:  cfg.Enrichment.SkipTables,
				DryRun:      cfg.Enrichment.DryRun || enrichDryRun,
				Temperature: cfg.LLM.Temperature,
				Timeout:     cfg.Timeouts.LLM,
			},
			logger,
		)

		summary, err := enrichment.Run(cmd.Context())
		if err != nil {
			return fmt.Errorf("enrichment failed: %w", err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	enrichCmd.Flags().BoolVar(&enrichDryRun, "dry-run", false, "list the tables that would be enriched without calling the model")
}
