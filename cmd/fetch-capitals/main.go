// Package main provides the fetch-capitals CLI, which downloads capital
// cities and coordinates and writes them as CSV for import-routes.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/orneryd/capitalroutes/pkg/collector"
	"github.com/orneryd/capitalroutes/pkg/config"
	"github.com/orneryd/capitalroutes/pkg/countries"
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
		Use:   "fetch-capitals",
		Short: "Fetch capitals and coordinates into a CSV",
		Long: `fetch-capitals downloads country data from the REST Countries API for
Europe, South-Eastern Asia and Southern Asia, keeps one row per
(country, capital) pair and writes the table to CSV.

Configuration comes from capitalroutes.yaml, .env and CAPITALROUTES_*
environment variables.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         runFetch,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("fetch-capitals v%s (%s) built %s\n", version, commit, buildTime)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.MustNew(cfg.Logging)
	defer logger.Sync()

	m, err := metrics.NewCollector(nil)
	if err != nil {
		return err
	}

	fmt.Printf("🌍 fetch-capitals v%s\n", version)
	if err := fetch(cmd.Context(), cfg, logger, m); err != nil {
		return err
	}
	fmt.Println("✅ Done. Now run: import-routes")
	return nil
}

// fetch runs the collector stage with cfg and pushes metrics when a
// Pushgateway is configured.
func fetch(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.Collector) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger = logger.With(zap.String("run_id", uuid.NewString()))

	opts := []countries.Option{
		countries.WithTimeout(cfg.Collector.Timeout),
		countries.WithLogger(logger),
		countries.WithMetrics(m),
	}
	if cfg.Cache.Enabled() {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		cache, err := countries.DialRedisCache(dialCtx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, cfg.Cache.TTL)
		cancel()
		if err != nil {
			logger.Warn("response cache disabled", zap.Error(err))
		} else {
			defer cache.Close()
			opts = append(opts, countries.WithCache(cache))
			fmt.Printf("🗄️  Response cache: redis://%s/%d\n", cfg.Cache.RedisAddr, cfg.Cache.RedisDB)
		}
	}

	client := countries.NewClient(cfg.Collector.BaseURL, opts...)
	_, err := collector.New(client, logger, m).Run(ctx, cfg.Collector.Queries, cfg.Collector.OutputPath)

	if cfg.Metrics.Enabled() {
		if perr := m.Push(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); perr != nil {
			logger.Warn("metrics push failed", zap.Error(perr))
		}
	}
	return err
}
