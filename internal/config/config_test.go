package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Catalog.Path != filepath.Join("./data/partwise", "catalog.db") {
		t.Errorf("unexpected catalog path %q", cfg.Catalog.Path)
	}
	if !cfg.ShouldRunHTTP() || !cfg.ShouldRunGRPC() {
		t.Error("mode all should run both surfaces")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"mode", func(c *Config) { c.Mode = "ingest" }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"storage type", func(c *Config) { c.Storage.Type = "ftp" }},
		{"s3 bucket", func(c *Config) { c.Storage.Type = "s3" }},
		{"max spawn", func(c *Config) { c.Routing.MaxSpawn = 0 }},
		{"cache ttl", func(c *Config) { c.Catalog.CacheTTL = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "partwise.yaml")
	yml := "mode: http\ndata_dir: /srv/pw\nlog:\n  level: debug\ncatalog:\n  cache_ttl: 5s\nrouting:\n  max_spawn: 4\n"
	if err := os.WriteFile(path, []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeHTTP || cfg.DataDir != "/srv/pw" || cfg.Log.Level != "debug" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Catalog.CacheTTL != 5*time.Second || cfg.Routing.MaxSpawn != 4 {
		t.Errorf("unexpected catalog/routing %+v %+v", cfg.Catalog, cfg.Routing)
	}
	// Unset keys keep their defaults.
	if cfg.HTTP.Addr != ":8080" || cfg.Log.Format != "json" {
		t.Errorf("defaults lost: %+v", cfg.HTTP)
	}
	if cfg.ShouldRunGRPC() {
		t.Error("http mode should not run gRPC")
	}

	if _, err := LoadFromFile(filepath.Join(dir, "partwise.toml")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PARTWISE_HTTP_ADDR", ":9999")
	t.Setenv("PARTWISE_CACHE_TTL", "1m")
	t.Setenv("PARTWISE_MAX_SPAWN", "8")
	t.Setenv("PARTWISE_GRPC_ENABLED", "0")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":9999" || cfg.Catalog.CacheTTL != time.Minute || cfg.Routing.MaxSpawn != 8 {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.GRPC.Enabled {
		t.Error("expected gRPC disabled")
	}

	t.Setenv("PARTWISE_MAX_SPAWN", "many")
	if _, err := Load(""); err == nil {
		t.Error("expected error for malformed PARTWISE_MAX_SPAWN")
	}
}
