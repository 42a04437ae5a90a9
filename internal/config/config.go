// Package config holds the typed configuration consumed by the core. The
// CLI/env/file machinery outside the core resolves into a flat parameter
// bundle; FromBundle decodes it, and Load applies environment overrides for
// standalone use.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig `json:"database" mapstructure:"database"`
	Search   SearchConfig   `json:"search" mapstructure:"search"`
	Server   ServerConfig   `json:"server" mapstructure:"server"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
	Convert  ConvertConfig  `json:"convert" mapstructure:"convert"`
}

// DatabaseConfig represents SQLite store configuration
type DatabaseConfig struct {
	Path           string `json:"path" mapstructure:"path"`
	PoolSize       int    `json:"pool_size" mapstructure:"pool_size"`
	TimeoutSeconds int    `json:"timeout" mapstructure:"timeout"`
	BackupDir      string `json:"backup_dir" mapstructure:"backup_dir"`
	MaxBackups     int    `json:"max_backups" mapstructure:"max_backups"`
}

// SearchConfig represents the weighted index and query engine configuration
type SearchConfig struct {
	IndexDirectory string             `json:"index_directory" mapstructure:"index_directory"`
	Engine         string             `json:"engine" mapstructure:"engine"`
	FieldWeights   FieldWeightsConfig `json:"field_weights" mapstructure:"field_weights"`
	Performance    PerformanceConfig  `json:"performance" mapstructure:"performance"`
}

// FieldWeightsConfig overrides the built-in per-field boosts
type FieldWeightsConfig struct {
	EndpointPath float64 `json:"endpoint_path" mapstructure:"endpoint_path"`
	Summary      float64 `json:"summary" mapstructure:"summary"`
	Description  float64 `json:"description" mapstructure:"description"`
	Parameters   float64 `json:"parameters" mapstructure:"parameters"`
	Tags         float64 `json:"tags" mapstructure:"tags"`
}

// PerformanceConfig bounds the query engine
type PerformanceConfig struct {
	CacheSizeMB          int `json:"cache_size_mb" mapstructure:"cache_size_mb"`
	MaxResults           int `json:"max_results" mapstructure:"max_results"`
	SearchTimeoutSeconds int `json:"search_timeout" mapstructure:"search_timeout"`
}

// ServerConfig represents the MCP serve path configuration
type ServerConfig struct {
	MaxConnections      int `json:"max_connections" mapstructure:"max_connections"`
	QueueSize           int `json:"queue_size" mapstructure:"queue_size"`
	TimeoutSeconds      int `json:"timeout" mapstructure:"timeout"`
	ShutdownDrainSecs   int `json:"shutdown_drain" mapstructure:"shutdown_drain"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	File       string `json:"file,omitempty" mapstructure:"file"`
	BufferSize int    `json:"buffer_size" mapstructure:"buffer_size"`
}

// ConvertConfig bounds the single-writer conversion pipeline
type ConvertConfig struct {
	StrictMode         bool  `json:"strict_mode" mapstructure:"strict_mode"`
	MaxInputBytes      int64 `json:"max_input_bytes" mapstructure:"max_input_bytes"`
	IngestTimeoutSecs  int   `json:"ingest_timeout" mapstructure:"ingest_timeout"`
	IndexBatchSize     int   `json:"index_batch_size" mapstructure:"index_batch_size"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:           "./data/mcp_server.db",
			PoolSize:       10,
			TimeoutSeconds: 30,
			BackupDir:      "./data/backups",
			MaxBackups:     10,
		},
		Search: SearchConfig{
			IndexDirectory: "./data/search_index",
			Engine:         "bleve",
			Performance: PerformanceConfig{
				CacheSizeMB:          64,
				MaxResults:           1000,
				SearchTimeoutSeconds: 5,
			},
		},
		Server: ServerConfig{
			MaxConnections:    100,
			QueueSize:         50,
			TimeoutSeconds:    5,
			ShutdownDrainSecs: 30,
		},
		Logging: LoggingConfig{
			Level:      "INFO",
			BufferSize: 1024,
		},
		Convert: ConvertConfig{
			StrictMode:        false,
			MaxInputBytes:     100 << 20,
			IngestTimeoutSecs: 600,
			IndexBatchSize:    100,
		},
	}
}

// Load builds a configuration from defaults, an optional .env file, and
// environment variable overrides.
func Load() (*Config, error) {
	// .env is optional; absence is not an error
	_ = godotenv.Load()

	cfg := DefaultConfig()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromBundle decodes the external flat parameter bundle (dotted keys, as in
// "search.performance.max_results") over the defaults.
func FromBundle(bundle map[string]interface{}) (*Config, error) {
	nested := make(map[string]interface{})
	for key, value := range bundle {
		insertDotted(nested, key, value)
	}

	cfg := DefaultConfig()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build config decoder: %w", err)
	}
	if err := decoder.Decode(nested); err != nil {
		return nil, fmt.Errorf("failed to decode config bundle: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func insertDotted(dst map[string]interface{}, key string, value interface{}) {
	parts := strings.Split(key, ".")
	node := dst
	for _, part := range parts[:len(parts)-1] {
		child, ok := node[part].(map[string]interface{})
		if !ok {
			child = make(map[string]interface{})
			node[part] = child
		}
		node = child
	}
	node[parts[len(parts)-1]] = value
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MCP_DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := getEnvInt("MCP_DATABASE_POOL_SIZE"); v != 0 {
		c.Database.PoolSize = v
	}
	if v := getEnvInt("MCP_DATABASE_TIMEOUT"); v != 0 {
		c.Database.TimeoutSeconds = v
	}
	if v := os.Getenv("MCP_SEARCH_INDEX_DIRECTORY"); v != "" {
		c.Search.IndexDirectory = v
	}
	if v := getEnvInt("MCP_SEARCH_MAX_RESULTS"); v != 0 {
		c.Search.Performance.MaxResults = v
	}
	if v := getEnvInt("MCP_SEARCH_TIMEOUT"); v != 0 {
		c.Search.Performance.SearchTimeoutSeconds = v
	}
	if v := getEnvInt("MCP_SERVER_MAX_CONNECTIONS"); v != 0 {
		c.Server.MaxConnections = v
	}
	if v := getEnvInt("MCP_SERVER_TIMEOUT"); v != 0 {
		c.Server.TimeoutSeconds = v
	}
	if v := os.Getenv("MCP_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MCP_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := os.Getenv("MCP_STRICT_MODE"); v != "" {
		c.Convert.StrictMode = v == "true" || v == "1"
	}
}

func getEnvInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// Validate enforces the recognized ranges of the configuration surface.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Database.PoolSize < 1 || c.Database.PoolSize > 50 {
		return fmt.Errorf("database.pool_size must be in [1, 50], got %d", c.Database.PoolSize)
	}
	if c.Database.TimeoutSeconds < 1 || c.Database.TimeoutSeconds > 60 {
		return fmt.Errorf("database.timeout must be in [1, 60] seconds, got %d", c.Database.TimeoutSeconds)
	}
	if c.Search.IndexDirectory == "" {
		return fmt.Errorf("search.index_directory is required")
	}
	if err := validateWeight("endpoint_path", c.Search.FieldWeights.EndpointPath); err != nil {
		return err
	}
	if err := validateWeight("summary", c.Search.FieldWeights.Summary); err != nil {
		return err
	}
	if err := validateWeight("description", c.Search.FieldWeights.Description); err != nil {
		return err
	}
	if err := validateWeight("parameters", c.Search.FieldWeights.Parameters); err != nil {
		return err
	}
	if err := validateWeight("tags", c.Search.FieldWeights.Tags); err != nil {
		return err
	}
	if c.Search.Performance.CacheSizeMB < 16 || c.Search.Performance.CacheSizeMB > 1024 {
		return fmt.Errorf("search.performance.cache_size_mb must be in [16, 1024], got %d", c.Search.Performance.CacheSizeMB)
	}
	if c.Search.Performance.MaxResults < 10 || c.Search.Performance.MaxResults > 10000 {
		return fmt.Errorf("search.performance.max_results must be in [10, 10000], got %d", c.Search.Performance.MaxResults)
	}
	if c.Search.Performance.SearchTimeoutSeconds < 1 || c.Search.Performance.SearchTimeoutSeconds > 30 {
		return fmt.Errorf("search.performance.search_timeout must be in [1, 30] seconds, got %d", c.Search.Performance.SearchTimeoutSeconds)
	}
	if c.Server.MaxConnections < 1 || c.Server.MaxConnections > 1000 {
		return fmt.Errorf("server.max_connections must be in [1, 1000], got %d", c.Server.MaxConnections)
	}
	if c.Server.TimeoutSeconds < 1 || c.Server.TimeoutSeconds > 300 {
		return fmt.Errorf("server.timeout must be in [1, 300] seconds, got %d", c.Server.TimeoutSeconds)
	}
	switch strings.ToUpper(c.Logging.Level) {
	case "DEBUG", "INFO", "WARNING", "WARN", "ERROR":
	default:
		return fmt.Errorf("logging.level must be one of DEBUG|INFO|WARNING|ERROR, got %q", c.Logging.Level)
	}
	return nil
}

// A zero weight means "use the built-in boost".
func validateWeight(name string, w float64) error {
	if w == 0 {
		return nil
	}
	if w < 0.1 || w > 3.0 {
		return fmt.Errorf("search.field_weights.%s must be in [0.1, 3.0], got %g", name, w)
	}
	return nil
}
