// Package tee forwards a live provider stream to the caller unchanged while
// accumulating the delivered text, and hands that text to a store callback
// exactly once when the stream ends, fails or is abandoned.
package tee

import (
	"context"
	"errors"
	"io"
	"iter"
	"strings"

	"github.com/ferro-labs/semcache/providers"
)

// Tee wraps one streaming call. It is owned by a single consumer and is not
// safe for concurrent use.
type Tee[T any] struct {
	src     providers.ChunkSource[T]
	content func(T) string
	store   func(text string)

	text   strings.Builder
	ended  bool
	stored bool
	closed bool
}

// New returns a Tee over src. content extracts the text delta of a chunk.
// store may be nil, as on the cache-hit path where nothing is written back.
func New[T any](src providers.ChunkSource[T], content func(T) string, store func(text string)) *Tee[T] {
	return &Tee[T]{src: src, content: content, store: store}
}

// Next returns the next chunk and counts it as delivered. It returns io.EOF
// once the source is exhausted; any other error ends the stream too. The
// store callback has fired before Next reports either.
func (t *Tee[T]) Next(ctx context.Context) (T, error) {
	chunk, err := t.pull(ctx)
	if err != nil {
		return chunk, err
	}
	t.deliver(chunk)
	return chunk, nil
}

// pull reads one chunk from the source without counting it as delivered.
func (t *Tee[T]) pull(ctx context.Context) (T, error) {
	var zero T
	if t.ended {
		return zero, io.EOF
	}
	chunk, err := t.src.Next(ctx)
	if err != nil {
		t.ended = true
		t.finish()
		_ = t.src.Close()
		return zero, err
	}
	return chunk, nil
}

func (t *Tee[T]) deliver(chunk T) {
	t.text.WriteString(t.content(chunk))
}

func (t *Tee[T]) finish() {
	if t.stored {
		return
	}
	t.stored = true
	if t.store != nil {
		t.store(t.text.String())
	}
}

// Text returns the text delivered so far.
func (t *Tee[T]) Text() string { return t.text.String() }

// Close abandons the stream. If the store callback has not fired yet it
// fires now with the text the caller has observed. Close is idempotent.
func (t *Tee[T]) Close() error {
	t.finish()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.ended {
		return nil
	}
	t.ended = true
	return t.src.Close()
}

// Seq drives the tee from the caller's goroutine. Breaking out of the loop
// abandons the stream.
func (t *Tee[T]) Seq(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer t.Close() //nolint:errcheck
		for {
			chunk, err := t.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// Chan drives the tee from its own goroutine. A chunk counts as delivered
// once the receiver has taken it from the channel. A source error is sent
// as fail(err) before the channel closes; cancelling ctx abandons the
// stream and closes the channel.
func (t *Tee[T]) Chan(ctx context.Context, fail func(error) T) <-chan T {
	ch := make(chan T)
	go func() {
		defer close(ch)
		defer t.Close() //nolint:errcheck
		for {
			chunk, err := t.pull(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				select {
				case ch <- fail(err):
				case <-ctx.Done():
				}
				return
			}
			select {
			case ch <- chunk:
				t.deliver(chunk)
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
