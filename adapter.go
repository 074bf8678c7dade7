// Package semcache is a streaming-transparent cache adapter for LLM
// providers.
//
// An Adapter sits between the caller and a provider. On a cache hit it
// synthesizes a provider-shaped response, including a fabricated chunk
// stream when streaming was requested, without contacting the provider. On a
// miss it calls the provider, returns its output unmodified and writes the
// answer back to the cache exactly once.
//
// Every modality has a blocking entry point (Chat, ChatStream, Moderate, ...)
// and a cooperative one (ChatAsync, ChatStreamChan, ModerateAsync, ...)
// with identical behavior.
package semcache

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ferro-labs/semcache/cache"
	"github.com/ferro-labs/semcache/internal/logging"
	"github.com/ferro-labs/semcache/internal/metrics"
	"github.com/ferro-labs/semcache/internal/synth"
	"github.com/ferro-labs/semcache/internal/tee"
	"github.com/ferro-labs/semcache/internal/upstream"
	"github.com/ferro-labs/semcache/normalize"
	"github.com/ferro-labs/semcache/providers"
)

// Adapter wires one provider to one cache gateway. It holds no per-request
// state and is safe for concurrent use.
type Adapter struct {
	provider   providers.Provider
	gateway    cache.Gateway
	counter    normalize.TokenCounter
	synth      *synth.Synthesizer
	httpClient *http.Client
	now        func() time.Time

	guardOpts upstream.Options
	guard     *upstream.Guard
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithTokenCounter enables token accounting with counter.
func WithTokenCounter(counter normalize.TokenCounter) Option {
	return func(a *Adapter) { a.counter = counter }
}

// WithImageWriter sets where url-mode cached images are written.
func WithImageWriter(w ImageWriter) Option {
	return func(a *Adapter) { a.synth.Images = w }
}

// WithHTTPClient sets the client used to download image url answers before
// they are stored.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.httpClient = c }
}

// WithClock overrides time.Now for synthesized timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		a.now = now
		a.synth.Now = now
	}
}

// WithRateLimit throttles provider calls made on misses to rps per modality
// with the given burst. Hits are never throttled.
func WithRateLimit(rps, burst float64) Option {
	return func(a *Adapter) {
		a.guardOpts.RequestsPerSecond = rps
		a.guardOpts.Burst = burst
	}
}

// WithCircuitBreaker stops calling the provider after failures consecutive
// upstream faults, probing again once openTimeout has passed.
func WithCircuitBreaker(failures, successes int, openTimeout time.Duration) Option {
	return func(a *Adapter) {
		a.guardOpts.FailureThreshold = failures
		a.guardOpts.SuccessThreshold = successes
		a.guardOpts.OpenTimeout = openTimeout
	}
}

// New creates an Adapter. Both provider and gateway are required.
func New(provider providers.Provider, gateway cache.Gateway, opts ...Option) (*Adapter, error) {
	if provider == nil {
		return nil, errors.New("semcache: provider is required")
	}
	if gateway == nil {
		return nil, errors.New("semcache: cache gateway is required")
	}
	a := &Adapter{
		provider:   provider,
		gateway:    gateway,
		synth:      &synth.Synthesizer{Images: synth.DirWriter{Dir: "."}},
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.guardOpts.Now = a.now
	a.guard = upstream.New(a.guardOpts)
	return a, nil
}

// Provider returns the wrapped provider.
func (a *Adapter) Provider() providers.Provider { return a.provider }

// lookup consults the gateway. Errors degrade to a miss.
func (a *Adapter) lookup(ctx context.Context, req *normalize.Request) (cache.Record, bool) {
	modality := string(req.Modality)
	if req.SkipCache {
		metrics.CacheLookups.WithLabelValues(modality, "skipped").Inc()
		return cache.Record{}, false
	}
	rec, ok, err := a.gateway.Lookup(ctx, req)
	if err != nil {
		metrics.CacheLookups.WithLabelValues(modality, "error").Inc()
		logging.FromContext(ctx).Warn("cache lookup failed, treating as miss",
			"modality", modality,
			"model", req.Model,
			"error", err.Error(),
		)
		return cache.Record{}, false
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues(modality, "miss").Inc()
		return cache.Record{}, false
	}
	metrics.CacheLookups.WithLabelValues(modality, "hit").Inc()
	return rec, true
}

// store writes rec back. It ignores cancellation of ctx so an abandoned
// caller cannot drop the write, and it never fails the request.
func (a *Adapter) store(ctx context.Context, req *normalize.Request, rec cache.Record) {
	modality := string(req.Modality)
	if err := a.gateway.Store(context.WithoutCancel(ctx), req, rec); err != nil {
		metrics.CacheStores.WithLabelValues(modality, "error").Inc()
		logging.FromContext(ctx).Warn("cache store failed",
			"modality", modality,
			"model", req.Model,
			"error", err.Error(),
		)
		return
	}
	metrics.CacheStores.WithLabelValues(modality, "ok").Inc()
}

// savedTokens returns the accounting pair for a chat hit, or nil for other
// modalities. Without a counter the pair is zero.
func (a *Adapter) savedTokens(req *normalize.Request, rec cache.Record) *providers.SavedTokens {
	if req.Modality != normalize.ModalityChat {
		return nil
	}
	saved := &providers.SavedTokens{}
	if a.counter != nil {
		saved.Input = req.InputTokens
		saved.Output = a.counter.Count(rec.Text)
	}
	return saved
}

// hit synthesizes a response from rec. ok is false when the record cannot
// be served and the request should go to the provider instead.
func (a *Adapter) hit(ctx context.Context, req *normalize.Request, rec cache.Record) (synth.Result, bool, error) {
	saved := a.savedTokens(req, rec)
	res, err := a.synth.Build(req, rec, saved)
	if err == nil {
		if saved != nil {
			metrics.SavedTokens.WithLabelValues("input").Add(float64(saved.Input))
			metrics.SavedTokens.WithLabelValues("output").Add(float64(saved.Output))
		}
		logging.FromContext(ctx).Debug("cache hit", "modality", string(req.Modality), "model", req.Model)
		return res, true, nil
	}
	if errors.Is(err, normalize.ErrUnsupportedFormat) || errors.Is(err, normalize.ErrInvalidModality) {
		return synth.Result{}, false, err
	}
	logging.FromContext(ctx).Warn("cached record unusable, calling provider",
		"modality", string(req.Modality),
		"model", req.Model,
		"error", err.Error(),
	)
	return synth.Result{}, false, nil
}

// admit asks the upstream guard for a provider call. A rejection is
// returned as a ProviderFailure so callers see one error kind.
func (a *Adapter) admit(ctx context.Context, req *normalize.Request) error {
	err := a.guard.Acquire(string(req.Modality))
	if err == nil {
		return nil
	}
	code := providers.CodeRateLimited
	if errors.Is(err, upstream.ErrCircuitOpen) {
		code = providers.CodeCircuitOpen
	}
	return a.providerError(ctx, req, &providers.ProviderFailure{
		Provider: a.provider.Name(),
		Code:     code,
		Message:  err.Error(),
		Err:      err,
	})
}

// providerError normalizes err and records it.
func (a *Adapter) providerError(ctx context.Context, req *normalize.Request, err error) error {
	if errors.Is(err, ErrNotSupported) {
		return err
	}
	err = providers.NormalizeError(a.provider.Name(), err)
	code := providers.CodeProviderError
	var pf *providers.ProviderFailure
	if errors.As(err, &pf) {
		code = pf.Code
	}
	metrics.ProviderCalls.WithLabelValues(string(req.Modality), "error").Inc()
	metrics.ProviderErrors.WithLabelValues(string(req.Modality), code).Inc()
	logging.FromContext(ctx).Error("provider call failed",
		"modality", string(req.Modality),
		"model", req.Model,
		"error", err.Error(),
	)
	return err
}

// record derives the cache record of a live non-streaming answer. Shape
// mismatches and failed image downloads degrade to an empty record.
func (a *Adapter) record(ctx context.Context, req *normalize.Request, out any) cache.Record {
	log := logging.FromContext(ctx)
	rec, err := tee.Extract(out)
	if err != nil {
		log.Warn("unrecognized response shape, storing empty text",
			"modality", string(req.Modality),
			"error", err.Error(),
		)
		return cache.Record{Type: cache.TypeString}
	}
	if rec.Type != cache.TypeImageURL {
		return rec
	}
	data, err := a.download(ctx, rec.Text)
	if err != nil {
		log.Warn("image download failed, storing empty image", "error", err.Error())
		return cache.Record{Type: cache.TypeImageURL}
	}
	return cache.Record{Text: base64.StdEncoding.EncodeToString(data), Type: cache.TypeImageURL}
}

func (a *Adapter) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image download: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (a *Adapter) observe(req *normalize.Request, source string, start time.Time) {
	metrics.RequestDuration.WithLabelValues(string(req.Modality), source).Observe(a.now().Sub(start).Seconds())
}

// serve runs the non-streaming flow: lookup, synthesize on a hit, otherwise
// call the provider and store its answer once.
func serve[T any](
	ctx context.Context,
	a *Adapter,
	req *normalize.Request,
	fromHit func(synth.Result) T,
	call func(context.Context) (T, error),
) (T, error) {
	var zero T
	start := a.now()

	if rec, ok := a.lookup(ctx, req); ok {
		res, ok, err := a.hit(ctx, req, rec)
		if err != nil {
			return zero, err
		}
		if ok {
			a.observe(req, "cache", start)
			return fromHit(res), nil
		}
	}

	if err := a.admit(ctx, req); err != nil {
		return zero, err
	}
	out, err := call(ctx)
	if err != nil {
		err = a.providerError(ctx, req, err)
		a.guard.Report(err)
		return zero, err
	}
	a.guard.Report(nil)
	metrics.ProviderCalls.WithLabelValues(string(req.Modality), "success").Inc()
	a.store(ctx, req, a.record(ctx, req, out))
	a.observe(req, "provider", start)
	return out, nil
}

// serveStream runs the streaming flow and returns a tee ready to be driven.
// On a hit the tee replays the synthesized chunks and stores nothing.
func serveStream[T any](
	ctx context.Context,
	a *Adapter,
	req *normalize.Request,
	fromHit func(synth.Result) []T,
	open func(context.Context) (providers.ChunkSource[T], error),
	content func(T) string,
) (*tee.Tee[T], error) {
	start := a.now()

	if rec, ok := a.lookup(ctx, req); ok {
		res, ok, err := a.hit(ctx, req, rec)
		if err != nil {
			return nil, err
		}
		if ok {
			a.observe(req, "cache", start)
			return tee.New[T](providers.NewSliceSource(fromHit(res)...), content, nil), nil
		}
	}

	if err := a.admit(ctx, req); err != nil {
		return nil, err
	}
	src, err := open(ctx)
	if err != nil {
		err = a.providerError(ctx, req, err)
		a.guard.Report(err)
		return nil, err
	}
	a.observe(req, "provider", start)

	src = &reportingSource[T]{src: providers.NormalizeSource(a.provider.Name(), src), a: a, req: req}
	return tee.New(src, content, func(text string) {
		a.store(ctx, req, cache.Record{Text: text, Type: cache.TypeString})
	}), nil
}

// reportingSource settles a live stream's provider call when the stream
// ends. Upstream failures usually surface on the first Next rather than when
// the stream opens. A stream closed before it ends reports nothing.
type reportingSource[T any] struct {
	src     providers.ChunkSource[T]
	a       *Adapter
	req     *normalize.Request
	settled bool
}

func (s *reportingSource[T]) Next(ctx context.Context) (T, error) {
	chunk, err := s.src.Next(ctx)
	if err == nil || s.settled {
		return chunk, err
	}
	s.settled = true
	if errors.Is(err, io.EOF) {
		s.a.guard.Report(nil)
		metrics.ProviderCalls.WithLabelValues(string(s.req.Modality), "success").Inc()
		return chunk, err
	}
	err = s.a.providerError(ctx, s.req, err)
	s.a.guard.Report(err)
	return chunk, err
}

func (s *reportingSource[T]) Close() error { return s.src.Close() }
