package semcache

import (
	"context"

	"github.com/ferro-labs/semcache/providers"
)

// Result carries the outcome of a cooperative call.
type Result[T any] struct {
	Value T
	Err   error
}

// async runs fn on its own goroutine. The channel is buffered and receives
// exactly one Result.
func async[T any](fn func() (T, error)) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	go func() {
		defer close(ch)
		v, err := fn()
		ch <- Result[T]{Value: v, Err: err}
	}()
	return ch
}

// ChatAsync is the cooperative variant of Chat.
func (a *Adapter) ChatAsync(ctx context.Context, req providers.Request) <-chan Result[*providers.Response] {
	return async(func() (*providers.Response, error) { return a.Chat(ctx, req) })
}

// TextCompletionAsync is the cooperative variant of TextCompletion.
func (a *Adapter) TextCompletionAsync(ctx context.Context, req providers.CompletionRequest) <-chan Result[*providers.CompletionResponse] {
	return async(func() (*providers.CompletionResponse, error) { return a.TextCompletion(ctx, req) })
}

// GenerateImageAsync is the cooperative variant of GenerateImage.
func (a *Adapter) GenerateImageAsync(ctx context.Context, req providers.ImageRequest) <-chan Result[*providers.ImageResponse] {
	return async(func() (*providers.ImageResponse, error) { return a.GenerateImage(ctx, req) })
}

// TranscribeAsync is the cooperative variant of Transcribe.
func (a *Adapter) TranscribeAsync(ctx context.Context, req providers.AudioRequest) <-chan Result[*providers.AudioResponse] {
	return async(func() (*providers.AudioResponse, error) { return a.Transcribe(ctx, req) })
}

// TranslateAsync is the cooperative variant of Translate.
func (a *Adapter) TranslateAsync(ctx context.Context, req providers.AudioRequest) <-chan Result[*providers.AudioResponse] {
	return async(func() (*providers.AudioResponse, error) { return a.Translate(ctx, req) })
}

// ModerateAsync is the cooperative variant of Moderate.
func (a *Adapter) ModerateAsync(ctx context.Context, req providers.ModerationRequest) <-chan Result[*providers.ModerationResponse] {
	return async(func() (*providers.ModerationResponse, error) { return a.Moderate(ctx, req) })
}
