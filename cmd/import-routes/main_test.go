package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/orneryd/capitalroutes/pkg/config"
	"github.com/orneryd/capitalroutes/pkg/metrics"
	"github.com/orneryd/capitalroutes/pkg/storage"
)

const testlandCSV = "country,city,lat,lon,region\n" +
	"Testland,Testville,10.0,20.0,Europe\n" +
	"Near,Nearby,10.5,20.5,Europe\n"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "capitals.csv")
	require.NoError(t, os.WriteFile(path, []byte(testlandCSV), 0644))

	cfg := config.LoadDefaults()
	cfg.Loader.InputPath = path
	cfg.Store.Backend = config.BackendBadger
	cfg.Store.DataDir = filepath.Join(dir, "graph")
	return cfg
}

func TestImportRoutes_Badger(t *testing.T) {
	cfg := testConfig(t)

	for i := 0; i < 2; i++ {
		report, err := importRoutes(context.Background(), cfg, zap.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, 2, report.Rows)
		assert.Equal(t, 2, report.Routes)
		assert.True(t, report.Projection.Created)
	}

	// The store was closed after each run, so the directory can be reopened.
	engine, err := storage.NewBadgerEngine(cfg.Store.DataDir)
	require.NoError(t, err)
	defer engine.Close()

	nodes, err := engine.NodeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(4), nodes)
	edges, err := engine.EdgeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(4), edges)
}

func TestImportRoutes_MissingInputClosesStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Loader.InputPath = filepath.Join(t.TempDir(), "missing.csv")

	_, err := importRoutes(context.Background(), cfg, zap.NewNop(), nil)
	require.Error(t, err)

	engine, err := storage.NewBadgerEngine(cfg.Store.DataDir)
	require.NoError(t, err, "store released after failure")
	require.NoError(t, engine.Close())
}

func TestImportRoutes_PushesMetrics(t *testing.T) {
	pushed := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pushed = r.URL.Path == "/metrics/job/capitalroutes"
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Store.Backend = config.BackendMemory
	cfg.Metrics.PushgatewayURL = srv.URL
	cfg.Metrics.Job = "capitalroutes"

	m, err := metrics.NewCollector(nil)
	require.NoError(t, err)

	_, err = importRoutes(context.Background(), cfg, zap.NewNop(), m)
	require.NoError(t, err)
	assert.True(t, pushed)
}

func TestImportRoutes_UnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = "sqlite"
	_, err := importRoutes(context.Background(), cfg, zap.NewNop(), nil)
	assert.Error(t, err)
}
