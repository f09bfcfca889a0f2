package graphstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Neo4jConfig holds the connection settings for a Neo4j server.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	// Database selects a named database; empty uses the server default.
	Database string
}

// Neo4jStore implements Store against a Neo4j server. One driver is held
// for the lifetime of the store.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

// NewNeo4jStore connects and verifies connectivity.
func NewNeo4jStore(ctx context.Context, cfg Neo4jConfig, logger *zap.Logger) (*Neo4jStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j at %s: %w", cfg.URI, err)
	}
	logger.Info("connected to neo4j", zap.String("uri", cfg.URI), zap.String("database", cfg.Database))
	return &Neo4jStore{driver: driver, database: cfg.Database, logger: logger}, nil
}

func (s *Neo4jStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database})
}

// run executes a single auto-commit statement and drains its result so
// server errors surface here.
func (s *Neo4jStore) run(ctx context.Context, query string, params map[string]any) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return err
	}
	_, err = result.Consume(ctx)
	return err
}

// EnsureConstraints creates city_unique and country_unique if missing.
func (s *Neo4jStore) EnsureConstraints(ctx context.Context) error {
	for _, q := range []string{cypherCityConstraint, cypherCountryConstraint} {
		if err := s.run(ctx, q, nil); err != nil {
			return fmt.Errorf("failed to create constraint: %w", err)
		}
	}
	return nil
}

// UpsertBatch merges all rows in one write transaction.
func (s *Neo4jStore) UpsertBatch(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	params := make([]any, len(rows))
	for i, r := range rows {
		params[i] = r.Params()
	}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypherUpsertBatch, map[string]any{"rows": params})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to upsert batch of %d rows: %w", len(rows), err)
	}
	return nil
}

// CreateRoutes runs the route join as one write transaction.
func (s *Neo4jStore) CreateRoutes(ctx context.Context, thresholdKm float64) (int, error) {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	pairs, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypherCreateRoutes, map[string]any{"threshold": thresholdKm})
		if err != nil {
			return nil, err
		}
		record, err := result.Single(ctx)
		if err != nil {
			return nil, err
		}
		n, _, err := neo4j.GetRecordValue[int64](record, "pairs")
		return n, err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create routes: %w", err)
	}
	return int(pairs.(int64)) * 2, nil
}

// DropProjection calls gds.graph.drop. A missing graph maps to
// ErrProjectionNotFound.
func (s *Neo4jStore) DropProjection(ctx context.Context, name string) error {
	err := s.run(ctx, cypherDropProjection, map[string]any{"name": name})
	if err == nil {
		return nil
	}
	if isProcedureFailure(err, "does not exist") {
		return fmt.Errorf("%w: %s", ErrProjectionNotFound, name)
	}
	return fmt.Errorf("failed to drop projection %s: %w", name, err)
}

// ProjectRoutes calls gds.graph.project over City nodes and ROUTE edges.
func (s *Neo4jStore) ProjectRoutes(ctx context.Context, name string) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypherProjectRoutes, map[string]any{"name": name})
	var record *neo4j.Record
	if err == nil {
		record, err = result.Single(ctx)
	}
	if err != nil {
		if isProcedureFailure(err, "already exists") {
			return fmt.Errorf("%w: %s", ErrProjectionExists, name)
		}
		return fmt.Errorf("failed to project %s: %w", name, err)
	}
	nodes, _, _ := neo4j.GetRecordValue[int64](record, "nodeCount")
	rels, _, _ := neo4j.GetRecordValue[int64](record, "relationshipCount")
	s.logger.Info("projection created",
		zap.String("name", name),
		zap.Int64("nodes", nodes),
		zap.Int64("relationships", rels))
	return nil
}

// procedureCallFailed is the status code GDS procedures raise for catalog
// errors such as a missing or duplicate graph.
const procedureCallFailed = "Neo.ClientError.Procedure.ProcedureCallFailed"

// isProcedureFailure reports whether err is a server-side procedure failure
// whose message mentions fragment. Driver and connectivity errors never match.
func isProcedureFailure(err error, fragment string) bool {
	var nerr *neo4j.Neo4jError
	if !errors.As(err, &nerr) {
		return false
	}
	return nerr.Code == procedureCallFailed && strings.Contains(nerr.Msg, fragment)
}

// Close releases the driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

var _ Store = (*Neo4jStore)(nil)
