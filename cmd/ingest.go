package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agentic-research/astgraph/internal/config"
	"github.com/agentic-research/astgraph/internal/logging"
	"github.com/agentic-research/astgraph/internal/orchestrator"
)

var ingestLanguage string

func init() {
	ingestCmd.Flags().StringVarP(&ingestLanguage, "language", "l", "", "Force a language instead of inferring it from the file extension")
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [paths...]",
	Short: "Parse source files and persist their AST into the graph",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		cfg := config.Load()
		logger := logging.New(cfg.LogLevel, cfg.LogPretty)
		engine := orchestrator.New(store, logger)

		for _, path := range args {
			abs, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("resolve path %s: %w", path, err)
			}
			result, err := engine.Ingest(ctx, orchestrator.Request{Path: abs, Language: ingestLanguage})
			if err != nil {
				return fmt.Errorf("ingest %s: %w", path, err)
			}
			fmt.Printf("%s\tfile_uuid=%s\tlanguage=%s\n", path, result.FileUUID, result.Language)
		}
		return nil
	},
}
