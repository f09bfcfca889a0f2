// Package config handles pipeline configuration via YAML files, .env files and
// environment variables.
//
// Configuration Precedence (highest to lowest):
//  1. Environment variables (CAPITALROUTES_*, NEO4J_*)
//  2. .env file in the working directory (loaded into the environment)
//  3. Config file (capitalroutes.yaml)
//  4. Built-in defaults
//
// The entry points take no flags; everything that is not a default comes from
// the file or the environment.
//
// Environment Variables:
//
// Collector:
//   - CAPITALROUTES_API_BASE_URL="https://restcountries.com/v3.1"
//   - CAPITALROUTES_HTTP_TIMEOUT="30s"
//   - CAPITALROUTES_CSV_PATH="data/cities_capitals_europe_seasia.csv"
//
// Loader:
//   - CAPITALROUTES_DISTANCE_THRESHOLD_KM=1200
//   - CAPITALROUTES_BATCH_SIZE=100
//   - CAPITALROUTES_PROJECTION_ENABLED=true
//
// Graph store:
//   - CAPITALROUTES_STORE_BACKEND="neo4j" | "badger" | "memory"
//   - CAPITALROUTES_STORE_DATA_DIR="./data/graph"
//   - NEO4J_URI, NEO4J_USERNAME, NEO4J_PASSWORD, NEO4J_DATABASE
//
// Optional integrations:
//   - CAPITALROUTES_REDIS_ADDR="localhost:6379" (response cache, empty = off)
//   - CAPITALROUTES_PUSHGATEWAY_URL="http://localhost:9091" (empty = off)
//
// Logging:
//   - CAPITALROUTES_LOG_LEVEL="info"
//   - CAPITALROUTES_LOG_FORMAT="console" | "json"
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default values shared by both stages.
const (
	DefaultAPIBaseURL          = "https://restcountries.com/v3.1"
	DefaultCSVPath             = "data/cities_capitals_europe_seasia.csv"
	DefaultHTTPTimeout         = 30 * time.Second
	DefaultDistanceThresholdKm = 1200.0
	DefaultBatchSize           = 100
	DefaultProjectionName      = "routesGraph"
)

// Store backends.
const (
	BackendNeo4j  = "neo4j"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Config holds all pipeline configuration.
//
// Sections:
//   - Collector: remote API and CSV output
//   - Loader: CSV input, batching, route threshold, projection
//   - Store: graph store backend and credentials
//   - Cache: optional Redis cache for API responses
//   - Metrics: optional Prometheus Pushgateway
//   - Logging: zap logger settings
type Config struct {
	Collector CollectorConfig
	Loader    LoaderConfig
	Store     StoreConfig
	Cache     CacheConfig
	Metrics   MetricsConfig
	Logging   LoggingConfig
}

// Query selects one slice of the remote data source.
type Query struct {
	// Kind is the API path segment: "region" or "subregion".
	Kind string `yaml:"kind" validate:"required,oneof=region subregion"`
	// Name is the region or subregion name as the API knows it.
	Name string `yaml:"name" validate:"required"`
	// Label is written to the CSV region column for every country found.
	Label string `yaml:"label" validate:"required"`
}

// CollectorConfig holds Collector settings.
type CollectorConfig struct {
	BaseURL    string        `validate:"required,url"`
	Timeout    time.Duration `validate:"gt=0"`
	OutputPath string        `validate:"required"`
	Queries    []Query       `validate:"required,min=1,dive"`
}

// LoaderConfig holds Loader settings.
type LoaderConfig struct {
	InputPath           string  `validate:"required"`
	DistanceThresholdKm float64 `validate:"gt=0"`
	BatchSize           int     `validate:"gte=1"`
	ProjectionEnabled   bool
	ProjectionName      string `validate:"required_if=ProjectionEnabled true"`
}

// StoreConfig selects and configures the graph store.
type StoreConfig struct {
	Backend  string `validate:"oneof=neo4j badger memory"`
	URI      string
	Username string
	Password string
	// Database is the Neo4j database name; empty uses the server default.
	Database string
	// DataDir is the BadgerDB directory for the badger backend.
	DataDir   string `validate:"required_if=Backend badger"`
	LowMemory bool
}

// CacheConfig configures the optional Redis response cache.
type CacheConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int           `validate:"gte=0"`
	TTL           time.Duration `validate:"gte=0"`
}

// Enabled reports whether a Redis address is configured.
func (c CacheConfig) Enabled() bool { return c.RedisAddr != "" }

// MetricsConfig configures the optional Pushgateway export.
type MetricsConfig struct {
	PushgatewayURL string `validate:"omitempty,url"`
	Job            string `validate:"required"`
}

// Enabled reports whether metrics are pushed at the end of a run.
func (m MetricsConfig) Enabled() bool { return m.PushgatewayURL != "" }

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=console json"`
}

// DefaultQueries returns the region and subregions collected by default.
func DefaultQueries() []Query {
	return []Query{
		{Kind: "region", Name: "europe", Label: "Europe"},
		{Kind: "subregion", Name: "South-Eastern Asia", Label: "SE_Asia"},
		{Kind: "subregion", Name: "Southern Asia", Label: "South_Asia"},
	}
}

// LoadDefaults returns a Config populated with built-in defaults only.
func LoadDefaults() *Config {
	return &Config{
		Collector: CollectorConfig{
			BaseURL:    DefaultAPIBaseURL,
			Timeout:    DefaultHTTPTimeout,
			OutputPath: DefaultCSVPath,
			Queries:    DefaultQueries(),
		},
		Loader: LoaderConfig{
			InputPath:           DefaultCSVPath,
			DistanceThresholdKm: DefaultDistanceThresholdKm,
			BatchSize:           DefaultBatchSize,
			ProjectionEnabled:   true,
			ProjectionName:      DefaultProjectionName,
		},
		Store: StoreConfig{
			Backend: BackendNeo4j,
			DataDir: "./data/graph",
		},
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
		},
		Metrics: MetricsConfig{
			Job: "capitalroutes",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LoadFromEnv returns defaults overridden by environment variables.
func LoadFromEnv() *Config {
	cfg := LoadDefaults()
	applyEnvVars(cfg)
	return cfg
}

// YAMLConfig is the on-disk shape of capitalroutes.yaml.
type YAMLConfig struct {
	Collector struct {
		BaseURL    string  `yaml:"base_url"`
		Timeout    string  `yaml:"timeout"`
		OutputPath string  `yaml:"output_path"`
		Queries    []Query `yaml:"queries"`
	} `yaml:"collector"`

	Loader struct {
		InputPath           string  `yaml:"input_path"`
		DistanceThresholdKm float64 `yaml:"distance_threshold_km"`
		BatchSize           int     `yaml:"batch_size"`
		ProjectionEnabled   *bool   `yaml:"projection_enabled"`
		ProjectionName      string  `yaml:"projection_name"`
	} `yaml:"loader"`

	Store struct {
		Backend   string `yaml:"backend"`
		URI       string `yaml:"uri"`
		Username  string `yaml:"username"`
		Database  string `yaml:"database"`
		DataDir   string `yaml:"data_dir"`
		LowMemory bool   `yaml:"low_memory"`
	} `yaml:"store"`

	Cache struct {
		RedisAddr string `yaml:"redis_addr"`
		RedisDB   int    `yaml:"redis_db"`
		TTL       string `yaml:"ttl"`
	} `yaml:"cache"`

	Metrics struct {
		PushgatewayURL string `yaml:"pushgateway_url"`
		Job            string `yaml:"job"`
	} `yaml:"metrics"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// LoadFromFile applies defaults, then the YAML file, then environment
// variables. A missing file yields defaults plus environment.
//
// Passwords are deliberately absent from the file format; they come from the
// environment or the interactive prompt.
func LoadFromFile(configPath string) (*Config, error) {
	cfg := LoadDefaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvVars(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var y YAMLConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// === Collector ===
	if y.Collector.BaseURL != "" {
		cfg.Collector.BaseURL = y.Collector.BaseURL
	}
	if y.Collector.Timeout != "" {
		d, err := time.ParseDuration(y.Collector.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid collector.timeout %q: %w", y.Collector.Timeout, err)
		}
		cfg.Collector.Timeout = d
	}
	if y.Collector.OutputPath != "" {
		cfg.Collector.OutputPath = y.Collector.OutputPath
		cfg.Loader.InputPath = y.Collector.OutputPath
	}
	if len(y.Collector.Queries) > 0 {
		cfg.Collector.Queries = y.Collector.Queries
	}

	// === Loader ===
	if y.Loader.InputPath != "" {
		cfg.Loader.InputPath = y.Loader.InputPath
	}
	if y.Loader.DistanceThresholdKm > 0 {
		cfg.Loader.DistanceThresholdKm = y.Loader.DistanceThresholdKm
	}
	if y.Loader.BatchSize > 0 {
		cfg.Loader.BatchSize = y.Loader.BatchSize
	}
	if y.Loader.ProjectionEnabled != nil {
		cfg.Loader.ProjectionEnabled = *y.Loader.ProjectionEnabled
	}
	if y.Loader.ProjectionName != "" {
		cfg.Loader.ProjectionName = y.Loader.ProjectionName
	}

	// === Store ===
	if y.Store.Backend != "" {
		cfg.Store.Backend = strings.ToLower(y.Store.Backend)
	}
	if y.Store.URI != "" {
		cfg.Store.URI = y.Store.URI
	}
	if y.Store.Username != "" {
		cfg.Store.Username = y.Store.Username
	}
	if y.Store.Database != "" {
		cfg.Store.Database = y.Store.Database
	}
	if y.Store.DataDir != "" {
		cfg.Store.DataDir = y.Store.DataDir
	}
	if y.Store.LowMemory {
		cfg.Store.LowMemory = true
	}

	// === Cache ===
	if y.Cache.RedisAddr != "" {
		cfg.Cache.RedisAddr = y.Cache.RedisAddr
	}
	if y.Cache.RedisDB > 0 {
		cfg.Cache.RedisDB = y.Cache.RedisDB
	}
	if y.Cache.TTL != "" {
		if d, err := time.ParseDuration(y.Cache.TTL); err == nil {
			cfg.Cache.TTL = d
		}
	}

	// === Metrics ===
	if y.Metrics.PushgatewayURL != "" {
		cfg.Metrics.PushgatewayURL = y.Metrics.PushgatewayURL
	}
	if y.Metrics.Job != "" {
		cfg.Metrics.Job = y.Metrics.Job
	}

	// === Logging ===
	if y.Logging.Level != "" {
		cfg.Logging.Level = strings.ToLower(y.Logging.Level)
	}
	if y.Logging.Format != "" {
		cfg.Logging.Format = strings.ToLower(y.Logging.Format)
	}

	applyEnvVars(cfg)
	return cfg, nil
}

// applyEnvVars overrides cfg with any environment variables that are set.
func applyEnvVars(cfg *Config) {
	cfg.Collector.BaseURL = getEnv("CAPITALROUTES_API_BASE_URL", cfg.Collector.BaseURL)
	cfg.Collector.Timeout = getEnvDuration("CAPITALROUTES_HTTP_TIMEOUT", cfg.Collector.Timeout)
	if p := os.Getenv("CAPITALROUTES_CSV_PATH"); p != "" {
		cfg.Collector.OutputPath = p
		cfg.Loader.InputPath = p
	}

	cfg.Loader.DistanceThresholdKm = getEnvFloat("CAPITALROUTES_DISTANCE_THRESHOLD_KM", cfg.Loader.DistanceThresholdKm)
	cfg.Loader.BatchSize = getEnvInt("CAPITALROUTES_BATCH_SIZE", cfg.Loader.BatchSize)
	cfg.Loader.ProjectionEnabled = getEnvBool("CAPITALROUTES_PROJECTION_ENABLED", cfg.Loader.ProjectionEnabled)
	cfg.Loader.ProjectionName = getEnv("CAPITALROUTES_PROJECTION_NAME", cfg.Loader.ProjectionName)

	cfg.Store.Backend = strings.ToLower(getEnv("CAPITALROUTES_STORE_BACKEND", cfg.Store.Backend))
	cfg.Store.DataDir = getEnv("CAPITALROUTES_STORE_DATA_DIR", cfg.Store.DataDir)
	cfg.Store.LowMemory = getEnvBool("CAPITALROUTES_STORE_LOW_MEMORY", cfg.Store.LowMemory)
	cfg.Store.URI = getEnv("NEO4J_URI", cfg.Store.URI)
	cfg.Store.Username = getEnv("NEO4J_USERNAME", cfg.Store.Username)
	cfg.Store.Password = getEnv("NEO4J_PASSWORD", cfg.Store.Password)
	cfg.Store.Database = getEnv("NEO4J_DATABASE", cfg.Store.Database)

	cfg.Cache.RedisAddr = getEnv("CAPITALROUTES_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = getEnv("CAPITALROUTES_REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = getEnvInt("CAPITALROUTES_REDIS_DB", cfg.Cache.RedisDB)
	cfg.Cache.TTL = getEnvDuration("CAPITALROUTES_CACHE_TTL", cfg.Cache.TTL)

	cfg.Metrics.PushgatewayURL = getEnv("CAPITALROUTES_PUSHGATEWAY_URL", cfg.Metrics.PushgatewayURL)
	cfg.Metrics.Job = getEnv("CAPITALROUTES_METRICS_JOB", cfg.Metrics.Job)

	cfg.Logging.Level = strings.ToLower(getEnv("CAPITALROUTES_LOG_LEVEL", cfg.Logging.Level))
	cfg.Logging.Format = strings.ToLower(getEnv("CAPITALROUTES_LOG_FORMAT", cfg.Logging.Format))
}

// Load is what the entry points call: .env, then the first config file found,
// then the environment. The result is validated.
func Load() (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	var cfg *Config
	if path := FindConfigFile(); path != "" {
		var err error
		cfg, err = LoadFromFile(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = LoadFromEnv()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindConfigFile returns the first existing config file, or "".
func FindConfigFile() string {
	candidates := []string{
		"capitalroutes.yaml",
		"config.yaml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".capitalroutes", "config.yaml"))
	}

	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// String returns a human-readable summary with secrets redacted.
func (c *Config) String() string {
	password := ""
	if c.Store.Password != "" {
		password = "****"
	}
	return fmt.Sprintf("Config{API: %s, CSV: %s, Store: %s %s user=%q password=%q, Threshold: %.0fkm, Batch: %d}",
		c.Collector.BaseURL, c.Collector.OutputPath, c.Store.Backend, c.Store.URI,
		c.Store.Username, password, c.Loader.DistanceThresholdKm, c.Loader.BatchSize)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		// Try parsing as seconds
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}
