// Package main provides the import-routes CLI, which loads the capitals CSV
// into a graph store and derives ROUTE edges between nearby capitals.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/orneryd/capitalroutes/pkg/config"
	"github.com/orneryd/capitalroutes/pkg/graphstore"
	"github.com/orneryd/capitalroutes/pkg/loader"
	"github.com/orneryd/capitalroutes/pkg/logging"
	"github.com/orneryd/capitalroutes/pkg/metrics"
)

var (
	version   = "0.1.0"
	commit    = "dev"
	buildTime = "unknown" // Set via ldflags: -X main.buildTime=$(date +%Y%m%d-%H%M%S)
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "import-routes",
		Short: "Import capitals into a graph and build the route network",
		Long: `import-routes reads the CSV written by fetch-capitals, upserts Country
and City nodes with HAS_CITY edges, and creates ROUTE edges in both
directions between capitals within the distance threshold.

The graph store is Neo4j by default (NEO4J_URI, NEO4J_USERNAME,
NEO4J_PASSWORD; prompted when missing). Set CAPITALROUTES_STORE_BACKEND
to "badger" or "memory" for the embedded store.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         runImport,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("import-routes v%s (%s) built %s\n", version, commit, buildTime)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cfg.Store.NeedsCredentials() {
		if err := config.NewTerminalPrompter().PromptCredentials(&cfg.Store); err != nil {
			return fmt.Errorf("reading credentials: %w", err)
		}
	}

	logger := logging.MustNew(cfg.Logging)
	defer logger.Sync()

	m, err := metrics.NewCollector(nil)
	if err != nil {
		return err
	}

	fmt.Printf("🕸️  import-routes v%s\n", version)
	fmt.Printf("📂 Input: %s\n", cfg.Loader.InputPath)
	fmt.Printf("💾 Store: %s\n", cfg.Store.Backend)

	report, err := importRoutes(cmd.Context(), cfg, logger, m)
	if err != nil {
		return err
	}

	fmt.Printf("✅ Imported %d rows in %d batches, %d ROUTE edges (%s)\n",
		report.Rows, report.Batches, report.Routes, report.Duration.Round(1e6))
	if report.Projection.Attempted && !report.Projection.Created {
		fmt.Printf("⚠️  Projection %q not created\n", report.Projection.Name)
	}
	return nil
}

// importRoutes opens the configured store, runs the loader and always closes
// the store before returning.
func importRoutes(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.Collector) (*loader.Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger = logger.With(zap.String("run_id", uuid.NewString()))

	store, err := graphstore.Open(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := store.Close(ctx); cerr != nil {
			logger.Warn("closing store failed", zap.Error(cerr))
		}
	}()

	report, err := loader.New(store, cfg.Loader, logger, m).Run(ctx)

	if cfg.Metrics.Enabled() {
		if perr := m.Push(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); perr != nil {
			logger.Warn("metrics push failed", zap.Error(perr))
		}
	}
	return report, err
}
