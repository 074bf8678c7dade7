// Package upstream throttles and circuit-breaks the provider calls made on
// cache misses. Hits never reach the guard.
//
// The breaker moves through three states:
//
//	closed    -> open       after FailureThreshold consecutive failures
//	open      -> half_open  once OpenTimeout has elapsed
//	half_open -> closed     after SuccessThreshold consecutive successes
//	half_open -> open       on any failure
package upstream

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/ferro-labs/semcache/providers"
)

// Rejection reasons returned by Acquire.
var (
	ErrCircuitOpen = errors.New("upstream circuit open")
	ErrRateLimited = errors.New("upstream rate limit exceeded")
)

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Options configures a Guard. A zero RequestsPerSecond disables throttling
// and a zero FailureThreshold disables the breaker.
type Options struct {
	RequestsPerSecond float64
	Burst             float64 // defaults to RequestsPerSecond
	FailureThreshold  int
	SuccessThreshold  int           // defaults to 1
	OpenTimeout       time.Duration // defaults to 30s
	Now               func() time.Time
}

// Guard admits provider calls. Each modality draws from its own bucket; the
// breaker is shared since all modalities hit the same upstream. A nil
// *Guard admits everything.
type Guard struct {
	opts Options
	now  func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	state     State
	failures  int
	successes int
	openUntil time.Time
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// New creates a Guard, or returns nil when opts enable nothing.
func New(opts Options) *Guard {
	if opts.RequestsPerSecond <= 0 && opts.FailureThreshold <= 0 {
		return nil
	}
	if opts.RequestsPerSecond > 0 && opts.Burst <= 0 {
		opts.Burst = opts.RequestsPerSecond
	}
	if opts.SuccessThreshold <= 0 {
		opts.SuccessThreshold = 1
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Guard{opts: opts, now: now, buckets: make(map[string]*bucket)}
}

// Acquire asks for one call slot for modality. It returns ErrCircuitOpen
// or ErrRateLimited when the call must not be made.
func (g *Guard) Acquire(modality string) error {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.opts.FailureThreshold > 0 && g.resolveState() == StateOpen {
		return ErrCircuitOpen
	}
	if g.opts.RequestsPerSecond <= 0 {
		return nil
	}

	now := g.now()
	b, ok := g.buckets[modality]
	if !ok {
		b = &bucket{tokens: g.opts.Burst, lastRefill: now}
		g.buckets[modality] = b
	}
	b.tokens += now.Sub(b.lastRefill).Seconds() * g.opts.RequestsPerSecond
	if b.tokens > g.opts.Burst {
		b.tokens = g.opts.Burst
	}
	b.lastRefill = now
	if b.tokens < 1 {
		return ErrRateLimited
	}
	b.tokens--
	return nil
}

// Report feeds the outcome of an admitted call to the breaker. Only
// upstream faults count as failures: transport errors, timeouts, 429 and
// 5xx. Caller cancellations, client errors and non-provider errors are
// ignored.
func (g *Guard) Report(err error) {
	if g == nil || g.opts.FailureThreshold <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case err == nil:
		g.recordSuccess()
	case upstreamFault(err):
		g.recordFailure()
	}
}

// State returns the breaker state.
func (g *Guard) State() State {
	if g == nil {
		return StateClosed
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resolveState()
}

func upstreamFault(err error) bool {
	var pf *providers.ProviderFailure
	if !errors.As(err, &pf) {
		return false
	}
	switch {
	case pf.Code == providers.CodeCanceled:
		return false
	case pf.Status == 0, pf.Status == http.StatusTooManyRequests, pf.Status >= 500:
		return true
	}
	return false
}

// resolveState must be called with g.mu held.
func (g *Guard) resolveState() State {
	if g.state == StateOpen && !g.now().Before(g.openUntil) {
		g.state = StateHalfOpen
		g.successes = 0
	}
	return g.state
}

func (g *Guard) recordSuccess() {
	switch g.resolveState() {
	case StateHalfOpen:
		g.successes++
		if g.successes >= g.opts.SuccessThreshold {
			g.state = StateClosed
			g.failures = 0
			g.successes = 0
		}
	case StateClosed:
		g.failures = 0
	}
}

func (g *Guard) recordFailure() {
	switch g.resolveState() {
	case StateClosed:
		g.failures++
		if g.failures >= g.opts.FailureThreshold {
			g.trip()
		}
	case StateHalfOpen:
		g.trip()
	}
}

func (g *Guard) trip() {
	g.state = StateOpen
	g.openUntil = g.now().Add(g.opts.OpenTimeout)
	g.successes = 0
}
