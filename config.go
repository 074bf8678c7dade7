package semcache

// Config holds the configuration of a semcache deployment.
type Config struct {
	// Provider selects and authenticates the upstream LLM provider.
	Provider ProviderConfig `json:"provider" yaml:"provider"`
	// Cache selects the cache gateway backend.
	Cache CacheConfig `json:"cache" yaml:"cache"`
	// Accounting enables saved-token reporting on cache hits.
	Accounting AccountingConfig `json:"accounting" yaml:"accounting"`
	// Upstream throttles and circuit-breaks provider calls on misses.
	Upstream UpstreamConfig `json:"upstream" yaml:"upstream"`
	// Image controls url-mode image output.
	Image ImageConfig `json:"image" yaml:"image"`
	// Server configures the HTTP surface of cmd/semcache.
	Server ServerConfig `json:"server" yaml:"server"`
	// Log configures the structured logger.
	Log LogConfig `json:"log" yaml:"log"`
}

// ProviderConfig identifies the upstream provider.
type ProviderConfig struct {
	Name    string `json:"name" yaml:"name"` // only "openai"
	APIKey  string `json:"api_key" yaml:"api_key"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// Cache backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// CacheConfig selects the cache gateway.
type CacheConfig struct {
	Backend  string `json:"backend" yaml:"backend"`
	DSN      string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	Capacity int    `json:"capacity,omitempty" yaml:"capacity,omitempty"` // memory only
	TTL      string `json:"ttl,omitempty" yaml:"ttl,omitempty"`           // Go duration, "" keeps entries forever
}

// AccountingConfig toggles token accounting.
type AccountingConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// UpstreamConfig guards the provider. Zero values disable each guard.
type UpstreamConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty"`
	Burst             float64 `json:"burst,omitempty" yaml:"burst,omitempty"`
	FailureThreshold  int     `json:"failure_threshold,omitempty" yaml:"failure_threshold,omitempty"`
	SuccessThreshold  int     `json:"success_threshold,omitempty" yaml:"success_threshold,omitempty"`
	OpenTimeout       string  `json:"open_timeout,omitempty" yaml:"open_timeout,omitempty"` // Go duration, default 30s
}

// ImageConfig controls where url-mode cached images are written.
type ImageConfig struct {
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// DefaultConfig returns a Config with the defaults applied by LoadConfig.
func DefaultConfig() Config {
	return Config{
		Provider: ProviderConfig{Name: "openai"},
		Cache:    CacheConfig{Backend: BackendMemory, Capacity: 1000, TTL: "24h"},
		Image:    ImageConfig{Dir: "images"},
		Server:   ServerConfig{Addr: ":8080"},
		Log:      LogConfig{Level: "info", Format: "json"},
	}
}
