package semcache

import (
	"fmt"

	"github.com/ferro-labs/semcache/cache"
	"github.com/ferro-labs/semcache/normalize"
	"github.com/ferro-labs/semcache/providers"
)

// OpenBackend opens the cache backend selected by cfg.
func OpenBackend(cfg CacheConfig) (cache.Backend, error) {
	ttl, err := cfg.TTLDuration()
	if err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case "", BackendMemory:
		return cache.NewMemory(cfg.Capacity, ttl), nil
	case BackendSQLite:
		return cache.NewSQLiteStore(cfg.DSN, ttl)
	case BackendPostgres:
		return cache.NewPostgresStore(cfg.DSN, ttl)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// NewProvider creates the provider selected by cfg.
func NewProvider(cfg ProviderConfig) (providers.Provider, error) {
	switch cfg.Name {
	case "", "openai":
		return providers.NewOpenAI(cfg.APIKey, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
}

// Build validates cfg and wires an Adapter with its provider, cache backend,
// token counter and image writer. The caller closes the returned backend.
func Build(cfg Config, opts ...Option) (*Adapter, cache.Backend, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, nil, err
	}
	provider, err := NewProvider(cfg.Provider)
	if err != nil {
		return nil, nil, err
	}
	backend, err := OpenBackend(cfg.Cache)
	if err != nil {
		return nil, nil, err
	}

	openTimeout, err := cfg.Upstream.OpenTimeoutDuration()
	if err != nil {
		_ = backend.Close()
		return nil, nil, err
	}

	base := []Option{
		WithImageWriter(DirWriter{Dir: cfg.Image.Dir}),
		WithRateLimit(cfg.Upstream.RequestsPerSecond, cfg.Upstream.Burst),
		WithCircuitBreaker(cfg.Upstream.FailureThreshold, cfg.Upstream.SuccessThreshold, openTimeout),
	}
	if cfg.Accounting.Enabled {
		base = append(base, WithTokenCounter(normalize.ApproxCounter))
	}
	a, err := New(provider, backend, append(base, opts...)...)
	if err != nil {
		_ = backend.Close()
		return nil, nil, err
	}
	return a, backend, nil
}
