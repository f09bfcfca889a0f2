package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnvVars blanks every variable the loader reads so host settings
// cannot leak into assertions.
func clearEnvVars(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CAPITALROUTES_API_BASE_URL", "CAPITALROUTES_HTTP_TIMEOUT", "CAPITALROUTES_CSV_PATH",
		"CAPITALROUTES_DISTANCE_THRESHOLD_KM", "CAPITALROUTES_BATCH_SIZE",
		"CAPITALROUTES_PROJECTION_ENABLED", "CAPITALROUTES_PROJECTION_NAME",
		"CAPITALROUTES_STORE_BACKEND", "CAPITALROUTES_STORE_DATA_DIR", "CAPITALROUTES_STORE_LOW_MEMORY",
		"NEO4J_URI", "NEO4J_USERNAME", "NEO4J_PASSWORD", "NEO4J_DATABASE",
		"CAPITALROUTES_REDIS_ADDR", "CAPITALROUTES_REDIS_PASSWORD", "CAPITALROUTES_REDIS_DB",
		"CAPITALROUTES_CACHE_TTL", "CAPITALROUTES_PUSHGATEWAY_URL", "CAPITALROUTES_METRICS_JOB",
		"CAPITALROUTES_LOG_LEVEL", "CAPITALROUTES_LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg := LoadFromEnv()

	if cfg.Collector.BaseURL != "https://restcountries.com/v3.1" {
		t.Errorf("expected restcountries base URL, got %q", cfg.Collector.BaseURL)
	}
	if cfg.Collector.Timeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", cfg.Collector.Timeout)
	}
	if cfg.Collector.OutputPath != "data/cities_capitals_europe_seasia.csv" {
		t.Errorf("unexpected output path %q", cfg.Collector.OutputPath)
	}
	if cfg.Loader.InputPath != cfg.Collector.OutputPath {
		t.Errorf("loader should read what the collector writes, got %q", cfg.Loader.InputPath)
	}
	if cfg.Loader.DistanceThresholdKm != 1200 {
		t.Errorf("expected 1200km threshold, got %v", cfg.Loader.DistanceThresholdKm)
	}
	if cfg.Loader.BatchSize != 100 {
		t.Errorf("expected batch size 100, got %d", cfg.Loader.BatchSize)
	}
	if !cfg.Loader.ProjectionEnabled || cfg.Loader.ProjectionName != "routesGraph" {
		t.Errorf("expected routesGraph projection enabled, got %v %q", cfg.Loader.ProjectionEnabled, cfg.Loader.ProjectionName)
	}
	if cfg.Store.Backend != BackendNeo4j {
		t.Errorf("expected neo4j backend, got %q", cfg.Store.Backend)
	}
	if cfg.Cache.Enabled() {
		t.Error("expected cache disabled by default")
	}
	if cfg.Metrics.Enabled() {
		t.Error("expected metrics push disabled by default")
	}

	queries := cfg.Collector.Queries
	if len(queries) != 3 {
		t.Fatalf("expected 3 queries, got %d", len(queries))
	}
	want := []Query{
		{Kind: "region", Name: "europe", Label: "Europe"},
		{Kind: "subregion", Name: "South-Eastern Asia", Label: "SE_Asia"},
		{Kind: "subregion", Name: "Southern Asia", Label: "South_Asia"},
	}
	for i := range want {
		if queries[i] != want[i] {
			t.Errorf("query %d: expected %+v, got %+v", i, want[i], queries[i])
		}
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("NEO4J_URI", "neo4j://graph:7687")
	t.Setenv("NEO4J_USERNAME", "neo4j")
	t.Setenv("NEO4J_PASSWORD", "secret")
	t.Setenv("CAPITALROUTES_DISTANCE_THRESHOLD_KM", "800.5")
	t.Setenv("CAPITALROUTES_BATCH_SIZE", "25")
	t.Setenv("CAPITALROUTES_HTTP_TIMEOUT", "5")
	t.Setenv("CAPITALROUTES_CSV_PATH", "/tmp/capitals.csv")
	t.Setenv("CAPITALROUTES_PROJECTION_ENABLED", "false")
	t.Setenv("CAPITALROUTES_STORE_BACKEND", "BADGER")

	cfg := LoadFromEnv()

	if cfg.Store.URI != "neo4j://graph:7687" || cfg.Store.Username != "neo4j" || cfg.Store.Password != "secret" {
		t.Errorf("credentials not read from env: %+v", cfg.Store)
	}
	if cfg.Loader.DistanceThresholdKm != 800.5 {
		t.Errorf("expected threshold 800.5, got %v", cfg.Loader.DistanceThresholdKm)
	}
	if cfg.Loader.BatchSize != 25 {
		t.Errorf("expected batch 25, got %d", cfg.Loader.BatchSize)
	}
	if cfg.Collector.Timeout != 5*time.Second {
		t.Errorf("expected bare seconds to parse, got %v", cfg.Collector.Timeout)
	}
	if cfg.Collector.OutputPath != "/tmp/capitals.csv" || cfg.Loader.InputPath != "/tmp/capitals.csv" {
		t.Errorf("csv path should apply to both stages: %q %q", cfg.Collector.OutputPath, cfg.Loader.InputPath)
	}
	if cfg.Loader.ProjectionEnabled {
		t.Error("expected projection disabled")
	}
	if cfg.Store.Backend != BackendBadger {
		t.Errorf("expected backend normalized to badger, got %q", cfg.Store.Backend)
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnvVars(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "capitalroutes.yaml")
	content := `
collector:
  timeout: 10s
  output_path: out/capitals.csv
  queries:
    - kind: region
      name: africa
      label: Africa
loader:
  distance_threshold_km: 500
  batch_size: 10
  projection_enabled: false
store:
  backend: memory
logging:
  level: DEBUG
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Run("file values", func(t *testing.T) {
		cfg, err := LoadFromFile(path)
		if err != nil {
			t.Fatalf("LoadFromFile: %v", err)
		}
		if cfg.Collector.Timeout != 10*time.Second {
			t.Errorf("expected 10s, got %v", cfg.Collector.Timeout)
		}
		if cfg.Loader.InputPath != "out/capitals.csv" {
			t.Errorf("expected loader input to follow output_path, got %q", cfg.Loader.InputPath)
		}
		if len(cfg.Collector.Queries) != 1 || cfg.Collector.Queries[0].Label != "Africa" {
			t.Errorf("unexpected queries %+v", cfg.Collector.Queries)
		}
		if cfg.Loader.DistanceThresholdKm != 500 || cfg.Loader.BatchSize != 10 {
			t.Errorf("unexpected loader %+v", cfg.Loader)
		}
		if cfg.Loader.ProjectionEnabled {
			t.Error("expected projection disabled from file")
		}
		if cfg.Store.Backend != BackendMemory {
			t.Errorf("expected memory backend, got %q", cfg.Store.Backend)
		}
		if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
			t.Errorf("unexpected logging %+v", cfg.Logging)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected valid config: %v", err)
		}
	})

	t.Run("env beats file", func(t *testing.T) {
		t.Setenv("CAPITALROUTES_DISTANCE_THRESHOLD_KM", "900")
		cfg, err := LoadFromFile(path)
		if err != nil {
			t.Fatalf("LoadFromFile: %v", err)
		}
		if cfg.Loader.DistanceThresholdKm != 900 {
			t.Errorf("expected env override 900, got %v", cfg.Loader.DistanceThresholdKm)
		}
	})

	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg, err := LoadFromFile(filepath.Join(dir, "nope.yaml"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Loader.DistanceThresholdKm != DefaultDistanceThresholdKm {
			t.Errorf("expected default threshold, got %v", cfg.Loader.DistanceThresholdKm)
		}
	})

	t.Run("bad timeout", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.yaml")
		if err := os.WriteFile(bad, []byte("collector:\n  timeout: soon\n"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadFromFile(bad); err == nil {
			t.Error("expected error for invalid duration")
		}
	})
}

func TestValidate(t *testing.T) {
	clearEnvVars(t)

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"bad url", func(c *Config) { c.Collector.BaseURL = "not a url" }, "collector.baseurl must be a valid URL"},
		{"zero threshold", func(c *Config) { c.Loader.DistanceThresholdKm = 0 }, "loader.distancethresholdkm must be greater than 0"},
		{"zero batch", func(c *Config) { c.Loader.BatchSize = 0 }, "loader.batchsize must be at least 1"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "sqlite" }, "store.backend must be one of"},
		{"bad query kind", func(c *Config) { c.Collector.Queries[0].Kind = "continent" }, "collector.queries[0].kind must be one of"},
		{"no queries", func(c *Config) { c.Collector.Queries = nil }, "collector.queries is required"},
		{"badger needs dir", func(c *Config) { c.Store.Backend = BackendBadger; c.Store.DataDir = "" }, "store.datadir is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadFromEnv()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("expected %q in %q", tt.wantMsg, err.Error())
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	const key = "CAPITALROUTES_TEST_DOTENV_VALUE"
	os.Unsetenv(key)
	t.Cleanup(func() { os.Unsetenv(key) })

	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte(key+"=from-dotenv\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv(key); got != "from-dotenv" {
		t.Errorf("expected value from .env, got %q", got)
	}
}

func TestConfigString_RedactsPassword(t *testing.T) {
	clearEnvVars(t)
	cfg := LoadFromEnv()
	cfg.Store.Password = "hunter2"

	s := cfg.String()
	if strings.Contains(s, "hunter2") {
		t.Errorf("password leaked: %s", s)
	}
	if !strings.Contains(s, "****") {
		t.Errorf("expected redaction marker: %s", s)
	}
}

func TestPromptCredentials(t *testing.T) {
	t.Run("fills only missing values", func(t *testing.T) {
		store := &StoreConfig{Backend: BackendNeo4j, URI: "neo4j://env:7687"}
		var out strings.Builder
		p := &Prompter{
			In:           strings.NewReader("alice\n"),
			Out:          &out,
			ReadPassword: func() (string, error) { return "pw", nil },
		}

		if err := p.PromptCredentials(store); err != nil {
			t.Fatalf("PromptCredentials: %v", err)
		}
		if store.URI != "neo4j://env:7687" || store.Username != "alice" || store.Password != "pw" {
			t.Errorf("unexpected store %+v", store)
		}
		if strings.Contains(out.String(), "URI") {
			t.Error("should not ask for URI already supplied")
		}
	})

	t.Run("plain reader fallback", func(t *testing.T) {
		store := &StoreConfig{Backend: BackendNeo4j}
		p := &Prompter{In: strings.NewReader("neo4j://x\nbob\nsecret\n"), Out: &strings.Builder{}}
		if err := p.PromptCredentials(store); err != nil {
			t.Fatalf("PromptCredentials: %v", err)
		}
		if store.Password != "secret" {
			t.Errorf("expected password from input, got %q", store.Password)
		}
	})

	t.Run("embedded backends need nothing", func(t *testing.T) {
		store := &StoreConfig{Backend: BackendMemory}
		p := &Prompter{In: strings.NewReader(""), Out: &strings.Builder{}}
		if err := p.PromptCredentials(store); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		store := &StoreConfig{Backend: BackendNeo4j}
		p := &Prompter{In: strings.NewReader(""), Out: &strings.Builder{}}
		if err := p.PromptCredentials(store); err == nil {
			t.Error("expected error when nothing can be read")
		}
	})
}
