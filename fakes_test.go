package semcache

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/ferro-labs/semcache/cache"
	"github.com/ferro-labs/semcache/normalize"
	"github.com/ferro-labs/semcache/providers"
)

// fakeProvider implements every provider capability and counts calls.
type fakeProvider struct {
	mu    sync.Mutex
	calls map[string]int

	text         string
	deltas       []string
	streamErr    error
	err          error
	imageB64     string
	imageURL     string
	moderations  []int // result counts returned by successive Moderate calls
	moderateCall int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{calls: make(map[string]int), text: "live answer"}
}

func (f *fakeProvider) count(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
}

func (f *fakeProvider) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeProvider) Name() string                  { return "fake" }
func (f *fakeProvider) SupportedModels() []string     { return []string{"fake-model"} }
func (f *fakeProvider) SupportsModel(string) bool     { return true }
func (f *fakeProvider) Models() []providers.ModelInfo { return nil }

func (f *fakeProvider) Complete(_ context.Context, req providers.Request) (*providers.Response, error) {
	f.count("chat")
	if f.err != nil {
		return nil, f.err
	}
	return &providers.Response{
		ID:     "live-1",
		Object: providers.ObjectChatCompletion,
		Model:  req.Model,
		Choices: []providers.Choice{{
			Message:      providers.Message{Role: providers.RoleAssistant, Content: f.text},
			FinishReason: providers.FinishReasonStop,
		}},
		Usage: providers.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
	}, nil
}

// scriptedSource replays deltas and then fails with err (io.EOF when nil).
type scriptedSource[T any] struct {
	items  []T
	err    error
	pos    int
	closed bool
}

func (s *scriptedSource[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if s.pos < len(s.items) {
		s.pos++
		return s.items[s.pos-1], nil
	}
	if s.err != nil {
		return zero, s.err
	}
	return zero, io.EOF
}

func (s *scriptedSource[T]) Close() error {
	s.closed = true
	return nil
}

func (f *fakeProvider) CompleteStream(_ context.Context, req providers.Request) (providers.ChunkSource[providers.StreamChunk], error) {
	f.count("chat_stream")
	if f.err != nil {
		return nil, f.err
	}
	var chunks []providers.StreamChunk
	for _, d := range f.deltas {
		chunks = append(chunks, providers.StreamChunk{
			ID:      "live-chunk",
			Object:  providers.ObjectChatCompletionChunk,
			Model:   req.Model,
			Choices: []providers.StreamChoice{{Delta: providers.MessageDelta{Content: d}}},
		})
	}
	return &scriptedSource[providers.StreamChunk]{items: chunks, err: f.streamErr}, nil
}

func (f *fakeProvider) CompleteText(_ context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	f.count("text")
	if f.err != nil {
		return nil, f.err
	}
	return &providers.CompletionResponse{
		ID:      "live-cmpl",
		Object:  providers.ObjectTextCompletion,
		Model:   req.Model,
		Choices: []providers.CompletionChoice{{Text: f.text, FinishReason: providers.FinishReasonStop}},
	}, nil
}

func (f *fakeProvider) CompleteTextStream(_ context.Context, req providers.CompletionRequest) (providers.ChunkSource[providers.CompletionChunk], error) {
	f.count("text_stream")
	var chunks []providers.CompletionChunk
	for _, d := range f.deltas {
		chunks = append(chunks, providers.CompletionChunk{Model: req.Model, Choices: []providers.CompletionChoice{{Text: d}}})
	}
	return &scriptedSource[providers.CompletionChunk]{items: chunks, err: f.streamErr}, nil
}

func (f *fakeProvider) GenerateImage(_ context.Context, _ providers.ImageRequest) (*providers.ImageResponse, error) {
	f.count("image")
	if f.err != nil {
		return nil, f.err
	}
	return &providers.ImageResponse{
		Created: 1,
		Data:    []providers.GeneratedImage{{B64JSON: f.imageB64, URL: f.imageURL}},
	}, nil
}

func (f *fakeProvider) Transcribe(_ context.Context, _ providers.AudioRequest) (*providers.AudioResponse, error) {
	f.count("transcribe")
	return &providers.AudioResponse{Text: "bonjour"}, nil
}

func (f *fakeProvider) Translate(_ context.Context, _ providers.AudioRequest) (*providers.AudioResponse, error) {
	f.count("translate")
	return &providers.AudioResponse{Text: "hello"}, nil
}

func (f *fakeProvider) Moderate(_ context.Context, _ providers.ModerationRequest) (*providers.ModerationResponse, error) {
	f.count("moderate")
	f.mu.Lock()
	n := 1
	if f.moderateCall < len(f.moderations) {
		n = f.moderations[f.moderateCall]
	}
	f.moderateCall++
	f.mu.Unlock()

	resp := &providers.ModerationResponse{ID: "modr-live", Model: "omni-moderation-latest"}
	for i := 0; i < n; i++ {
		resp.Results = append(resp.Results, providers.ModerationResult{Flagged: false})
	}
	return resp, nil
}

// chatOnlyProvider lacks every optional capability.
type chatOnlyProvider struct{ inner *fakeProvider }

func (p chatOnlyProvider) Name() string                  { return "chat-only" }
func (p chatOnlyProvider) SupportedModels() []string     { return nil }
func (p chatOnlyProvider) SupportsModel(string) bool     { return true }
func (p chatOnlyProvider) Models() []providers.ModelInfo { return nil }
func (p chatOnlyProvider) Complete(ctx context.Context, req providers.Request) (*providers.Response, error) {
	return p.inner.Complete(ctx, req)
}

// recordingGateway wraps a Memory gateway and records every store.
type recordingGateway struct {
	*cache.Memory
	mu        sync.Mutex
	stores    []cache.Record
	lookupErr error
	storeErr  error
}

func newRecordingGateway() *recordingGateway {
	return &recordingGateway{Memory: cache.NewMemory(100, time.Hour)}
}

func (g *recordingGateway) Lookup(ctx context.Context, req *normalize.Request) (cache.Record, bool, error) {
	if g.lookupErr != nil {
		return cache.Record{}, false, g.lookupErr
	}
	return g.Memory.Lookup(ctx, req)
}

func (g *recordingGateway) Store(ctx context.Context, req *normalize.Request, rec cache.Record) error {
	if err := ctx.Err(); err != nil {
		return errors.New("store received a cancelled context")
	}
	g.mu.Lock()
	g.stores = append(g.stores, rec)
	g.mu.Unlock()
	if g.storeErr != nil {
		return g.storeErr
	}
	return g.Memory.Store(ctx, req, rec)
}

func (g *recordingGateway) Stores() []cache.Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]cache.Record(nil), g.stores...)
}

// seed stores rec for req directly, bypassing the recorder.
func (g *recordingGateway) seed(req *normalize.Request, rec cache.Record) {
	_ = g.Memory.Store(context.Background(), req, rec)
}
