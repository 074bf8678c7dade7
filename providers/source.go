package providers

import (
	"context"
	"io"
)

// ChunkSource is a forward-only, non-restartable chunk sequence.
//
// Next returns io.EOF once the sequence is exhausted. Any other error ends the
// sequence as well. Close releases the underlying transport and may be called
// more than once.
type ChunkSource[T any] interface {
	Next(ctx context.Context) (T, error)
	Close() error
}

// SliceSource serves a fixed list of chunks. Synthesized cache hits and tests
// use it.
type SliceSource[T any] struct {
	items []T
	pos   int
}

// NewSliceSource returns a ChunkSource over items.
func NewSliceSource[T any](items ...T) *SliceSource[T] {
	return &SliceSource[T]{items: items}
}

// Next returns the next item or io.EOF.
func (s *SliceSource[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if s.pos >= len(s.items) {
		return zero, io.EOF
	}
	item := s.items[s.pos]
	s.pos++
	return item, nil
}

// Close is a no-op.
func (s *SliceSource[T]) Close() error { return nil }
