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

func (a *Adapter) textProvider() (providers.TextProvider, error) {
	tp, ok := a.provider.(providers.TextProvider)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no text completions", ErrNotSupported, a.provider.Name())
	}
	return tp, nil
}

// TextCompletion returns a legacy text completion, from the cache when possible.
func (a *Adapter) TextCompletion(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	req.Stream = false
	nreq, err := normalize.TextCompletion(req)
	if err != nil {
		return nil, err
	}
	return serve(ctx, a, nreq,
		func(r synth.Result) *providers.CompletionResponse { return r.Text },
		func(ctx context.Context) (*providers.CompletionResponse, error) {
			tp, err := a.textProvider()
			if err != nil {
				return nil, err
			}
			return tp.CompleteText(ctx, req)
		},
	)
}

// TextCompletionStream returns a streamed text completion driven by the
// caller's loop.
func (a *Adapter) TextCompletionStream(ctx context.Context, req providers.CompletionRequest) (iter.Seq2[providers.CompletionChunk, error], error) {
	t, err := a.textTee(ctx, req)
	if err != nil {
		return nil, err
	}
	return t.Seq(ctx), nil
}

// TextCompletionStreamChan is the cooperative variant of TextCompletionStream.
func (a *Adapter) TextCompletionStreamChan(ctx context.Context, req providers.CompletionRequest) (<-chan providers.CompletionChunk, error) {
	t, err := a.textTee(ctx, req)
	if err != nil {
		return nil, err
	}
	return t.Chan(ctx, func(err error) providers.CompletionChunk {
		return providers.CompletionChunk{Error: err}
	}), nil
}

func (a *Adapter) textTee(ctx context.Context, req providers.CompletionRequest) (*tee.Tee[providers.CompletionChunk], error) {
	req.Stream = true
	nreq, err := normalize.TextCompletion(req)
	if err != nil {
		return nil, err
	}
	return serveStream(ctx, a, nreq,
		func(r synth.Result) []providers.CompletionChunk { return r.TextChunks },
		func(ctx context.Context) (providers.ChunkSource[providers.CompletionChunk], error) {
			tp, err := a.textProvider()
			if err != nil {
				return nil, err
			}
			return tp.CompleteTextStream(ctx, req)
		},
		providers.CompletionChunk.Text,
	)
}
