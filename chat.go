package semcache

import (
	"context"
	"fmt"
	"iter"

	"github.com/ferro-labs/semcache/internal/synth"
	"github.com/ferro-labs/semcache/internal/tee"
	"github.com/ferro-labs/semcache/normalize"
	"github.com/ferro-labs/semcache/providers"
)

// Chat returns a chat completion, from the cache when possible.
func (a *Adapter) Chat(ctx context.Context, req providers.Request) (*providers.Response, error) {
	req.Stream = false
	nreq, err := normalize.Chat(req, a.counter)
	if err != nil {
		return nil, err
	}
	return serve(ctx, a, nreq,
		func(r synth.Result) *providers.Response { return r.Chat },
		func(ctx context.Context) (*providers.Response, error) {
			return a.provider.Complete(ctx, req)
		},
	)
}

// ChatStream returns a streamed chat completion driven by the caller's loop.
// A hit yields exactly three synthesized chunks. Breaking out of the loop
// abandons the stream; the text seen so far is still stored.
func (a *Adapter) ChatStream(ctx context.Context, req providers.Request) (iter.Seq2[providers.StreamChunk, error], error) {
	t, err := a.chatTee(ctx, req)
	if err != nil {
		return nil, err
	}
	return t.Seq(ctx), nil
}

// ChatStreamChan is the cooperative variant of ChatStream. A mid-stream
// failure arrives as a chunk with Error set, after which the channel closes.
// Cancelling ctx abandons the stream.
func (a *Adapter) ChatStreamChan(ctx context.Context, req providers.Request) (<-chan providers.StreamChunk, error) {
	t, err := a.chatTee(ctx, req)
	if err != nil {
		return nil, err
	}
	return t.Chan(ctx, func(err error) providers.StreamChunk {
		return providers.StreamChunk{Error: err}
	}), nil
}

func (a *Adapter) chatTee(ctx context.Context, req providers.Request) (*tee.Tee[providers.StreamChunk], error) {
	req.Stream = true
	nreq, err := normalize.Chat(req, a.counter)
	if err != nil {
		return nil, err
	}
	return serveStream(ctx, a, nreq,
		func(r synth.Result) []providers.StreamChunk { return r.ChatChunks },
		func(ctx context.Context) (providers.ChunkSource[providers.StreamChunk], error) {
			sp, ok := a.provider.(providers.StreamProvider)
			if !ok {
				return nil, fmt.Errorf("%w: %s cannot stream chat", ErrNotSupported, a.provider.Name())
			}
			return sp.CompleteStream(ctx, req)
		},
		providers.StreamChunk.Content,
	)
}
