package semcache

import (
	"context"
	"fmt"

	"github.com/ferro-labs/semcache/internal/synth"
	"github.com/ferro-labs/semcache/normalize"
	"github.com/ferro-labs/semcache/providers"
)

// Transcribe returns the transcript of an audio file in its own language.
func (a *Adapter) Transcribe(ctx context.Context, req providers.AudioRequest) (*providers.AudioResponse, error) {
	return a.audio(ctx, normalize.AudioTranscribe, req)
}

// Translate returns the English translation of an audio file.
func (a *Adapter) Translate(ctx context.Context, req providers.AudioRequest) (*providers.AudioResponse, error) {
	return a.audio(ctx, normalize.AudioTranslate, req)
}

func (a *Adapter) audio(ctx context.Context, op string, req providers.AudioRequest) (*providers.AudioResponse, error) {
	nreq, err := normalize.Audio(op, req)
	if err != nil {
		return nil, err
	}
	return serve(ctx, a, nreq,
		func(r synth.Result) *providers.AudioResponse { return r.Audio },
		func(ctx context.Context) (*providers.AudioResponse, error) {
			ap, ok := a.provider.(providers.AudioProvider)
			if !ok {
				return nil, fmt.Errorf("%w: %s has no audio endpoints", ErrNotSupported, a.provider.Name())
			}
			if op == normalize.AudioTranslate {
				return ap.Translate(ctx, req)
			}
			return ap.Transcribe(ctx, req)
		},
	)
}
