package semcache

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed config.schema.json
var configSchema string

// LoadConfig reads and parses a config file from the given path. ${VAR}
// references are expanded from the environment before parsing.
// Supported formats: JSON (.json), YAML (.yaml, .yml).
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	expanded := []byte(os.ExpandEnv(string(data)))

	cfg := DefaultConfig()
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .json, .yaml, or .yml", ext)
	}

	return &cfg, nil
}

// ValidateConfig checks cfg against the embedded JSON schema, then applies
// the checks a schema cannot express.
func ValidateConfig(cfg Config) error {
	schema, err := jsonschema.CompileString("config.schema.json", configSchema)
	if err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if cfg.Cache.Backend == BackendPostgres && strings.TrimSpace(cfg.Cache.DSN) == "" {
		return fmt.Errorf("cache backend %q requires a dsn", BackendPostgres)
	}
	if _, err := cfg.Cache.TTLDuration(); err != nil {
		return err
	}
	if _, err := cfg.Upstream.OpenTimeoutDuration(); err != nil {
		return err
	}
	return nil
}

// TTLDuration parses TTL. An empty TTL is zero (no expiry).
func (c CacheConfig) TTLDuration() (time.Duration, error) {
	if c.TTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.TTL)
	if err != nil {
		return 0, fmt.Errorf("invalid cache ttl %q: %w", c.TTL, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("cache ttl must not be negative, got %q", c.TTL)
	}
	return d, nil
}

// OpenTimeoutDuration parses OpenTimeout. An empty value is zero, which the
// breaker replaces with its default.
func (c UpstreamConfig) OpenTimeoutDuration() (time.Duration, error) {
	if c.OpenTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.OpenTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid upstream open_timeout %q: %w", c.OpenTimeout, err)
	}
	return d, nil
}
