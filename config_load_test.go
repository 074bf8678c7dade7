package semcache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_Valid(t *testing.T) {
	data := `{
		"provider": {"name": "openai", "api_key": "sk-test"},
		"cache": {"backend": "memory", "capacity": 50, "ttl": "1h"},
		"accounting": {"enabled": true}
	}`
	path := writeTempFile(t, "config.json", data)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider.APIKey != "sk-test" {
		t.Errorf("api key = %q", cfg.Provider.APIKey)
	}
	if cfg.Cache.Capacity != 50 || cfg.Cache.TTL != "1h" {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if !cfg.Accounting.Enabled {
		t.Error("accounting should be enabled")
	}
	// Unset sections keep their defaults.
	if cfg.Server.Addr != ":8080" || cfg.Log.Level != "info" {
		t.Errorf("defaults lost: server=%+v log=%+v", cfg.Server, cfg.Log)
	}
}

func TestLoadConfig_NonExistentFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("expected error for non-existent file")
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	path := writeTempFile(t, "bad.json", `{invalid`)

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	data := `
provider:
  name: openai
  api_key: sk-yaml
cache:
  backend: sqlite
  dsn: cache.db
  ttl: 30m
log:
  level: debug
  format: text
`
	path := writeTempFile(t, "config.yaml", data)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Cache.Backend != BackendSQLite || cfg.Cache.DSN != "cache.db" {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("log = %+v", cfg.Log)
	}
}

func TestLoadConfig_YML(t *testing.T) {
	path := writeTempFile(t, "config.yml", "cache:\n  backend: memory\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider.Name != "openai" {
		t.Errorf("provider default lost: %+v", cfg.Provider)
	}
}

func TestLoadConfig_ExpandsEnv(t *testing.T) {
	t.Setenv("SEMCACHE_TEST_KEY", "sk-from-env")
	path := writeTempFile(t, "config.yaml", "provider:\n  name: openai\n  api_key: ${SEMCACHE_TEST_KEY}\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider.APIKey != "sk-from-env" {
		t.Errorf("api key = %q", cfg.Provider.APIKey)
	}
}

func TestLoadConfig_UnsupportedExtension(t *testing.T) {
	path := writeTempFile(t, "config.toml", "key = value")

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "sqlite without dsn", mutate: func(c *Config) { c.Cache.Backend = BackendSQLite }},
		{name: "no ttl", mutate: func(c *Config) { c.Cache.TTL = "" }},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Cache.Backend = "redis" },
			wantErr: "invalid config",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Provider.Name = "anthropic" },
			wantErr: "invalid config",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: "invalid config",
		},
		{
			name:    "negative capacity",
			mutate:  func(c *Config) { c.Cache.Capacity = -1 },
			wantErr: "invalid config",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Cache.Backend = BackendPostgres },
			wantErr: "requires a dsn",
		},
		{
			name:    "malformed ttl",
			mutate:  func(c *Config) { c.Cache.TTL = "tomorrow" },
			wantErr: "invalid cache ttl",
		},
		{
			name:    "malformed open timeout",
			mutate:  func(c *Config) { c.Upstream.OpenTimeout = "soon" },
			wantErr: "open_timeout",
		},
		{
			name:    "negative rate",
			mutate:  func(c *Config) { c.Upstream.RequestsPerSecond = -1 },
			wantErr: "invalid config",
		},
		{name: "upstream guards", mutate: func(c *Config) {
			c.Upstream = UpstreamConfig{RequestsPerSecond: 5, Burst: 10, FailureThreshold: 3, OpenTimeout: "10s"}
		}},
		{
			name:    "negative ttl",
			mutate:  func(c *Config) { c.Cache.TTL = "-5m" },
			wantErr: "must not be negative",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := ValidateConfig(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestCacheConfig_TTLDuration(t *testing.T) {
	d, err := CacheConfig{TTL: "90s"}.TTLDuration()
	if err != nil || d != 90*time.Second {
		t.Errorf("TTLDuration = %v, %v", d, err)
	}
	d, err = CacheConfig{}.TTLDuration()
	if err != nil || d != 0 {
		t.Errorf("empty ttl = %v, %v", d, err)
	}
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name  string
		cache CacheConfig
	}{
		{name: "memory", cache: CacheConfig{Backend: BackendMemory, Capacity: 10, TTL: "1m"}},
		{name: "sqlite", cache: CacheConfig{Backend: BackendSQLite, DSN: filepath.Join(t.TempDir(), "cache.db")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Provider.APIKey = "sk-test"
			cfg.Cache = tt.cache
			cfg.Image.Dir = t.TempDir()
			cfg.Accounting.Enabled = true

			a, backend, err := Build(cfg)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			defer backend.Close() //nolint:errcheck

			if a.Provider().Name() != "openai" {
				t.Errorf("provider = %q", a.Provider().Name())
			}
			if a.counter == nil {
				t.Error("accounting enabled but no token counter wired")
			}
			if _, err := backend.Stats(context.Background()); err != nil {
				t.Errorf("Stats: %v", err)
			}
		})
	}
}

func TestBuild_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.Backend = "nope"
	if _, _, err := Build(cfg); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestOpenBackend_UnknownBackend(t *testing.T) {
	if _, err := OpenBackend(CacheConfig{Backend: "nope"}); err == nil {
		t.Fatal("expected error")
	}
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
