// Package loader imports the capitals CSV into a graph store and derives
// the route network.
//
// A load is a single pass: ensure constraints, upsert rows in batches,
// create ROUTE edges within the distance threshold, then optionally rebuild
// the analytics projection. Failures in the first three steps abort the
// load. Projection failures are recorded in the report and logged only.
package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/orneryd/capitalroutes/pkg/config"
	"github.com/orneryd/capitalroutes/pkg/graphstore"
	"github.com/orneryd/capitalroutes/pkg/metrics"
)

// ProjectionResult describes the best-effort projection step.
type ProjectionResult struct {
	Name      string
	Attempted bool
	Dropped   bool
	Created   bool
	// DropErr is nil when a previous projection was dropped or none existed.
	DropErr   error
	CreateErr error
}

// Report summarizes a load.
type Report struct {
	Rows       int
	Batches    int
	Routes     int
	Projection ProjectionResult
	Duration   time.Duration
}

// Loader runs the import stage against a store it does not own.
type Loader struct {
	store   graphstore.Store
	cfg     config.LoaderConfig
	logger  *zap.Logger
	metrics *metrics.Collector
}

// New creates a Loader. Zero batch size and empty projection name fall
// back to the defaults.
func New(store graphstore.Store, cfg config.LoaderConfig, logger *zap.Logger, m *metrics.Collector) *Loader {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = config.DefaultBatchSize
	}
	if cfg.ProjectionName == "" {
		cfg.ProjectionName = config.DefaultProjectionName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{store: store, cfg: cfg, logger: logger, metrics: m}
}

// Load imports path into store with default batching and projection.
func Load(ctx context.Context, store graphstore.Store, path string, thresholdKm float64) (*Report, error) {
	l := New(store, config.LoaderConfig{
		BatchSize:         config.DefaultBatchSize,
		ProjectionEnabled: true,
		ProjectionName:    config.DefaultProjectionName,
	}, nil, nil)
	return l.Load(ctx, path, thresholdKm)
}

// Run loads the configured input with the configured threshold.
func (l *Loader) Run(ctx context.Context) (*Report, error) {
	return l.Load(ctx, l.cfg.InputPath, l.cfg.DistanceThresholdKm)
}

// Load imports path and derives routes within thresholdKm.
func (l *Loader) Load(ctx context.Context, path string, thresholdKm float64) (*Report, error) {
	start := time.Now()
	report := &Report{}

	l.logger.Info("Creating constraints (if not exists)...")
	if err := l.store.EnsureConstraints(ctx); err != nil {
		return nil, err
	}

	l.logger.Info("Reading CSV and upserting nodes...", zap.String("path", path))
	rows, err := ReadRows(path)
	if err != nil {
		return nil, err
	}
	report.Rows = len(rows)
	l.metrics.Rows(len(rows))

	upsertStart := time.Now()
	for _, batch := range Batches(rows, l.cfg.BatchSize) {
		if err := l.store.UpsertBatch(ctx, batch); err != nil {
			return nil, err
		}
		report.Batches++
		l.metrics.Batch()
	}
	l.metrics.ObserveStage("upsert", upsertStart)
	l.logger.Info("Nodes imported. Now creating ROUTE relationships...",
		zap.Int("rows", report.Rows),
		zap.Int("batches", report.Batches))

	routeStart := time.Now()
	routes, err := l.store.CreateRoutes(ctx, thresholdKm)
	if err != nil {
		return nil, err
	}
	report.Routes = routes
	l.metrics.Routes(routes)
	l.metrics.ObserveStage("routes", routeStart)
	l.logger.Info("ROUTE relationships created.",
		zap.Int("routes", routes),
		zap.Float64("threshold_km", thresholdKm))

	if l.cfg.ProjectionEnabled {
		report.Projection = l.project(ctx)
		l.metrics.Projection(report.Projection.Created)
	}

	report.Duration = time.Since(start)
	l.metrics.ObserveStage("load", start)
	return report, nil
}

// project drops any previous projection and creates a new one. Neither
// failure is returned.
func (l *Loader) project(ctx context.Context) ProjectionResult {
	res := ProjectionResult{Name: l.cfg.ProjectionName, Attempted: true}

	if err := l.store.DropProjection(ctx, res.Name); err == nil {
		res.Dropped = true
	} else if !errors.Is(err, graphstore.ErrProjectionNotFound) {
		res.DropErr = err
		l.logger.Debug("dropping previous projection failed", zap.String("name", res.Name), zap.Error(err))
	}

	if err := l.store.ProjectRoutes(ctx, res.Name); err != nil {
		res.CreateErr = err
		l.logger.Warn("projection not created; graph analytics may be unavailable",
			zap.String("name", res.Name), zap.Error(err))
		return res
	}
	res.Created = true
	l.logger.Info(fmt.Sprintf("projection %q created", res.Name))
	return res
}
