package graphstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/orneryd/capitalroutes/pkg/config"
	"github.com/orneryd/capitalroutes/pkg/logging"
	"github.com/orneryd/capitalroutes/pkg/storage"
)

// Open creates the store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Backend {
	case config.BackendNeo4j:
		return NewNeo4jStore(ctx, Neo4jConfig{
			URI:      cfg.URI,
			Username: cfg.Username,
			Password: cfg.Password,
			Database: cfg.Database,
		}, logger)

	case config.BackendBadger:
		engine, err := storage.NewBadgerEngineWithOptions(storage.BadgerOptions{
			DataDir:   cfg.DataDir,
			Logger:    logging.NewBadgerLogger(logger),
			LowMemory: cfg.LowMemory,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open badger store at %s: %w", cfg.DataDir, err)
		}
		logger.Info("opened embedded store", zap.String("backend", cfg.Backend), zap.String("data_dir", cfg.DataDir))
		return NewEmbeddedStore(engine, logger), nil

	case config.BackendMemory:
		logger.Info("opened embedded store", zap.String("backend", cfg.Backend))
		return NewEmbeddedStore(storage.NewMemoryEngine(), logger), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
