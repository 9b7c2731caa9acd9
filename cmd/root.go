// Package cmd wires the cobra CLI surface: a rootCmd built in an init(),
// one file per subcommand, package-level flag variables bound with
// cobra's Var family.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentic-research/astgraph/api"
	"github.com/agentic-research/astgraph/internal/config"
	"github.com/agentic-research/astgraph/internal/graphstore/memory"
	"github.com/agentic-research/astgraph/internal/graphstore/postgres"
	"github.com/agentic-research/astgraph/internal/graphstore/sqlite"
	"github.com/agentic-research/astgraph/internal/logging"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var backendFlag string

func init() {
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "Graph Port backend: memory, sqlite, or postgres (default from ASTGRAPH_BACKEND)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(queryCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("astgraph version %s (commit %s, built %s)\n", Version, Commit, Date)
	},
}

var rootCmd = &cobra.Command{
	Use:     "astgraph",
	Short:   "Turn parsed source trees into a content-addressed property graph",
	Version: fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date),
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore builds the Graph Port backend named by --backend (falling back
// to config.Load()'s ASTGRAPH_BACKEND) and calls EnsureReady on it.
func openStore(ctx context.Context) (api.GraphPort, error) {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogPretty)

	backend := cfg.Backend
	if backendFlag != "" {
		backend = config.Backend(backendFlag)
	}

	var store api.GraphPort
	switch backend {
	case config.BackendMemory:
		store = memory.New()
	case config.BackendSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite backend: %w", err)
		}
		store = s
	case config.BackendPostgres:
		s, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres backend: %w", err)
		}
		store = s
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}

	logger.Info().Str("backend", string(backend)).Msg("graph port opened")
	if err := store.EnsureReady(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("ensure ready: %w", err)
	}
	return store, nil
}
