package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/openai/openai-go"
)

// ProviderFailure is the single error kind the adapter surfaces for failures
// raised by a provider client (transport, auth, rate limit, upstream 5xx).
type ProviderFailure struct {
	Provider string
	// Status is the upstream HTTP status, or 0 when no response was received.
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *ProviderFailure) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider %s failed (status %d, code %s): %s", e.Provider, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("provider %s failed (code %s): %s", e.Provider, e.Code, e.Message)
}

func (e *ProviderFailure) Unwrap() error { return e.Err }

// Failure codes used when the upstream did not supply one or the call
// was never made.
const (
	CodeProviderError = "provider_error"
	CodeCanceled      = "canceled"
	CodeTimeout       = "timeout"
	CodeRateLimited   = "rate_limited"
	CodeCircuitOpen   = "circuit_open"
)

// NormalizeError maps any provider-client error to a *ProviderFailure.
// nil stays nil and an existing *ProviderFailure is returned unchanged.
func NormalizeError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var pf *ProviderFailure
	if errors.As(err, &pf) {
		return pf
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		code := apiErr.Code
		if code == "" {
			code = apiErr.Type
		}
		if code == "" {
			code = CodeProviderError
		}
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return &ProviderFailure{Provider: provider, Status: apiErr.StatusCode, Code: code, Message: msg, Err: err}
	}

	code := CodeProviderError
	switch {
	case errors.Is(err, context.Canceled):
		code = CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = CodeTimeout
	}
	return &ProviderFailure{Provider: provider, Code: code, Message: err.Error(), Err: err}
}

// NormalizeSource wraps src so that mid-stream errors surface as
// *ProviderFailure. io.EOF passes through untouched.
func NormalizeSource[T any](provider string, src ChunkSource[T]) ChunkSource[T] {
	return &normalizedSource[T]{provider: provider, src: src}
}

type normalizedSource[T any] struct {
	provider string
	src      ChunkSource[T]
}

func (s *normalizedSource[T]) Next(ctx context.Context) (T, error) {
	chunk, err := s.src.Next(ctx)
	if err != nil && !errors.Is(err, io.EOF) {
		return chunk, NormalizeError(s.provider, err)
	}
	return chunk, err
}

func (s *normalizedSource[T]) Close() error { return s.src.Close() }
