package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-semantic/pkg/services"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Build the relationship graph from the catalog and print a YAML report",
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

		summary, err := runAnalysis(cmd.Context(), cfg, llmClient, services.NewGraphHolder(nil), logger)
		if err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(summary)
	},
}
