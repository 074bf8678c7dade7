package tee

import (
	"encoding/json"
	"fmt"

	"github.com/ferro-labs/semcache/cache"
	"github.com/ferro-labs/semcache/normalize"
	"github.com/ferro-labs/semcache/providers"
)

// Extract derives the cache record of a non-streaming provider response.
// Unknown types, nil responses and responses without the expected field
// return normalize.ErrShapeMismatch. Image url answers come back with type
// cache.TypeImageURL and the url as text; the caller fetches the bytes.
func Extract(resp any) (cache.Record, error) {
	switch r := resp.(type) {
	case *providers.Response:
		if r == nil || len(r.Choices) == 0 {
			return cache.Record{}, shapeMismatch(resp)
		}
		msg := r.Choices[0].Message
		if msg.Content == "" && len(msg.ToolCalls) > 0 {
			return cache.Record{}, fmt.Errorf("%w: tool call answer has no content", normalize.ErrShapeMismatch)
		}
		return cache.Record{Text: msg.Content, Type: cache.TypeString}, nil

	case *providers.CompletionResponse:
		if r == nil || len(r.Choices) == 0 {
			return cache.Record{}, shapeMismatch(resp)
		}
		return cache.Record{Text: r.Choices[0].Text, Type: cache.TypeString}, nil

	case *providers.AudioResponse:
		if r == nil {
			return cache.Record{}, shapeMismatch(resp)
		}
		return cache.Record{Text: r.Text, Type: cache.TypeString}, nil

	case *providers.ModerationResponse:
		if r == nil || len(r.Results) == 0 {
			return cache.Record{}, shapeMismatch(resp)
		}
		stored := *r
		stored.Cached = false
		b, err := json.Marshal(stored)
		if err != nil {
			return cache.Record{}, fmt.Errorf("%w: %v", normalize.ErrShapeMismatch, err)
		}
		return cache.Record{Text: string(b), Type: cache.TypeString}, nil

	case *providers.ImageResponse:
		if r == nil || len(r.Data) == 0 {
			return cache.Record{}, shapeMismatch(resp)
		}
		switch img := r.Data[0]; {
		case img.B64JSON != "":
			return cache.Record{Text: img.B64JSON, Type: cache.TypeImageBase64}, nil
		case img.URL != "":
			return cache.Record{Text: img.URL, Type: cache.TypeImageURL}, nil
		}
		return cache.Record{}, shapeMismatch(resp)
	}
	return cache.Record{}, shapeMismatch(resp)
}

func shapeMismatch(resp any) error {
	return fmt.Errorf("%w: %T", normalize.ErrShapeMismatch, resp)
}
