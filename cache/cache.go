// Package cache defines the cache gateway consumed by the adapter and ships
// two exact-match gateways: an in-process LRU (Memory) and a SQLite/Postgres
// store (SQLStore). Both resolve hits by the request's canonical digest; a
// semantic gateway can be plugged in through the same interface.
package cache

import (
	"context"

	"github.com/ferro-labs/semcache/normalize"
)

// DataType tags the payload of a Record.
type DataType string

// Record payload types.
const (
	TypeString      DataType = "str"
	TypeImageBase64 DataType = "image_base64"
	TypeImageURL    DataType = "image_url"
)

// Record is a stored answer: opaque text plus its type tag. For image
// records Text holds base64-encoded image bytes.
type Record struct {
	Text string   `json:"text"`
	Type DataType `json:"type"`
}

// Gateway resolves a normalized request to a stored answer and records new
// ones. Lookup reports a miss with ok == false and a nil error.
type Gateway interface {
	Lookup(ctx context.Context, req *normalize.Request) (rec Record, ok bool, err error)
	Store(ctx context.Context, req *normalize.Request, rec Record) error
}

// Stats summarises gateway usage.
type Stats struct {
	Entries int64 `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// Backend is a Gateway that can also report stats, be cleared and be
// closed. Memory and SQLStore implement it.
type Backend interface {
	Gateway
	Stats(ctx context.Context) (Stats, error)
	Clear(ctx context.Context, expiredOnly bool) error
	Close() error
}
