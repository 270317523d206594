// Package config provides the configuration of the partwise server and CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PARTWISE_"

// Mode represents the service surfaces to run.
type Mode string

const (
	ModeAll  Mode = "all"
	ModeHTTP Mode = "http"
	ModeGRPC Mode = "grpc"
)

// Config holds the configuration of partwise.
type Config struct {
	// Mode specifies which surfaces to serve: all, http, grpc.
	Mode Mode `json:"mode" yaml:"mode"`

	// DataDir is the base directory for all data files.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Log configuration.
	Log LogConfig `json:"log" yaml:"log"`

	// HTTP configuration.
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// gRPC configuration.
	GRPC GRPCConfig `json:"grpc" yaml:"grpc"`

	// Catalog configuration.
	Catalog CatalogConfig `json:"catalog" yaml:"catalog"`

	// Routing configuration.
	Routing RoutingConfig `json:"routing" yaml:"routing"`

	// Storage configuration for snapshot export.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LogConfig holds logger configuration.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" yaml:"level"`

	// Format is json or console.
	Format string `json:"format" yaml:"format"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Addr         string        `json:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// GRPCConfig holds gRPC server configuration.
type GRPCConfig struct {
	// Addr is the gRPC server address.
	Addr string `json:"addr" yaml:"addr"`

	// Enabled controls whether gRPC is enabled.
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// CatalogConfig holds catalog and snapshot cache configuration.
type CatalogConfig struct {
	// Path is the catalog database file; defaults to <data_dir>/catalog.db.
	Path string `json:"path" yaml:"path"`

	// CacheTTL bounds how long a cached snapshot is served.
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl"`

	// CacheCapacity bounds the number of cached tables.
	CacheCapacity uint64 `json:"cache_capacity" yaml:"cache_capacity"`

	// StatsWindow is how long idle tables keep their prune statistics.
	StatsWindow time.Duration `json:"stats_window" yaml:"stats_window"`
}

// RoutingConfig holds row routing configuration.
type RoutingConfig struct {
	// MaxSpawn bounds the partitions created for one value.
	MaxSpawn int `json:"max_spawn" yaml:"max_spawn"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3.
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type).
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type).
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	Bucket       string `json:"bucket" yaml:"bucket"`
	Region       string `json:"region" yaml:"region"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style"`
	Prefix       string `json:"prefix" yaml:"prefix"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		Mode:    ModeAll,
		DataDir: "./data/partwise",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		GRPC: GRPCConfig{
			Addr:    ":9090",
			Enabled: true,
		},
		Catalog: CatalogConfig{
			CacheTTL:      30 * time.Second,
			CacheCapacity: 1024,
			StatsWindow:   time.Hour,
		},
		Routing: RoutingConfig{
			MaxSpawn: 16,
		},
		Storage: StorageConfig{
			Type: "local",
		},
		ShutdownTimeout: 30 * time.Second,
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/partwise"
	}
	if c.Catalog.Path == "" {
		c.Catalog.Path = filepath.Join(c.DataDir, "catalog.db")
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeAll, ModeHTTP, ModeGRPC:
	default:
		return fmt.Errorf("invalid mode: %s (must be all, http, or grpc)", c.Mode)
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Log.Format)
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}
	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	if c.Routing.MaxSpawn < 1 || c.Routing.MaxSpawn > 1024 {
		return fmt.Errorf("routing.max_spawn must be between 1 and 1024, got %d", c.Routing.MaxSpawn)
	}
	if c.Catalog.CacheTTL <= 0 {
		return fmt.Errorf("catalog.cache_ttl must be positive")
	}
	return nil
}

// ShouldRunHTTP returns true if the HTTP API should run.
func (c *Config) ShouldRunHTTP() bool {
	return c.Mode == ModeAll || c.Mode == ModeHTTP
}

// ShouldRunGRPC returns true if the gRPC API should run.
func (c *Config) ShouldRunGRPC() bool {
	return c.GRPC.Enabled && (c.Mode == ModeAll || c.Mode == ModeGRPC)
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// Load returns the defaults overlaid with path (when not empty) and then with
// the environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv applies PARTWISE_* environment variables to cfg.
func LoadFromEnv(cfg *Config) error {
	e := envReader{}

	e.str("MODE", func(v string) { cfg.Mode = Mode(v) })
	e.str("DATA_DIR", func(v string) { cfg.DataDir = v })

	e.str("LOG_LEVEL", func(v string) { cfg.Log.Level = v })
	e.str("LOG_FORMAT", func(v string) { cfg.Log.Format = v })

	e.str("HTTP_ADDR", func(v string) { cfg.HTTP.Addr = v })
	e.dur("HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout)
	e.dur("HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout)

	e.str("GRPC_ADDR", func(v string) { cfg.GRPC.Addr = v })
	e.str("GRPC_ENABLED", func(v string) { cfg.GRPC.Enabled = v == "true" || v == "1" })

	e.str("CATALOG_PATH", func(v string) { cfg.Catalog.Path = v })
	e.dur("CACHE_TTL", &cfg.Catalog.CacheTTL)
	e.str("CACHE_CAPACITY", func(v string) {
		n, err := strconv.ParseUint(v, 10, 64)
		e.fail("CACHE_CAPACITY", err)
		cfg.Catalog.CacheCapacity = n
	})
	e.dur("STATS_WINDOW", &cfg.Catalog.StatsWindow)

	e.str("MAX_SPAWN", func(v string) {
		n, err := strconv.Atoi(v)
		e.fail("MAX_SPAWN", err)
		cfg.Routing.MaxSpawn = n
	})

	e.str("STORAGE_TYPE", func(v string) { cfg.Storage.Type = v })
	e.str("STORAGE_PATH", func(v string) { cfg.Storage.Path = v })
	e.str("S3_BUCKET", func(v string) { cfg.Storage.S3.Bucket = v })
	e.str("S3_REGION", func(v string) { cfg.Storage.S3.Region = v })
	e.str("S3_ENDPOINT", func(v string) { cfg.Storage.S3.Endpoint = v })
	e.str("S3_PREFIX", func(v string) { cfg.Storage.S3.Prefix = v })
	e.str("S3_USE_PATH_STYLE", func(v string) { cfg.Storage.S3.UsePathStyle = v == "true" || v == "1" })

	e.dur("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)
	return e.err
}

// envReader collects the first malformed variable.
type envReader struct {
	err error
}

func (e *envReader) str(name string, set func(string)) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		set(v)
	}
}

func (e *envReader) dur(name string, dst *time.Duration) {
	e.str(name, func(v string) {
		d, err := time.ParseDuration(v)
		e.fail(name, err)
		if err == nil {
			*dst = d
		}
	})
}

func (e *envReader) fail(name string, err error) {
	if err != nil && e.err == nil {
		e.err = fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir, filepath.Dir(c.Catalog.Path)}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
