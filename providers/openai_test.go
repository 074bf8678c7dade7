package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/option"
)

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := NewOpenAI("sk-test-key", srv.URL+"/v1/", option.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	return p
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// TestNewOpenAI tests the OpenAI provider constructor.
func TestNewOpenAI(t *testing.T) {
	provider, err := NewOpenAI("sk-test-key", "")
	if err != nil {
		t.Fatalf("NewOpenAI() returned error: %v", err)
	}
	if provider.Name() != "openai" {
		t.Errorf("NewOpenAI() provider name = %v, want openai", provider.Name())
	}
	if provider.BaseURL() != "https://api.openai.com/v1" {
		t.Errorf("BaseURL() = %q", provider.BaseURL())
	}
}

func TestOpenAIProvider_ImplementsCapabilities(_ *testing.T) {
	var _ StreamProvider = (*OpenAIProvider)(nil)
	var _ TextProvider = (*OpenAIProvider)(nil)
	var _ ImageProvider = (*OpenAIProvider)(nil)
	var _ AudioProvider = (*OpenAIProvider)(nil)
	var _ ModerationProvider = (*OpenAIProvider)(nil)
}

func TestOpenAIProvider_SupportsModel(t *testing.T) {
	provider, _ := NewOpenAI("sk-test-key", "")

	tests := []struct {
		model string
		want  bool
	}{
		{"gpt-4o", true},
		{"gpt-3.5-turbo-instruct", true},
		{"o1-mini", true},
		{"whisper-1", true},
		{"omni-moderation-latest", true},
		{"dall-e-3", true},
		{"claude-3-haiku", false},
		{"ollama", false},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			if got := provider.SupportsModel(tt.model); got != tt.want {
				t.Errorf("SupportsModel(%v) = %v, want %v", tt.model, got, tt.want)
			}
		})
	}
}

func TestOpenAIProvider_Models(t *testing.T) {
	provider, _ := NewOpenAI("sk-test-key", "")
	models := provider.Models()
	if len(models) != len(provider.SupportedModels()) {
		t.Fatalf("Models() returned %d entries", len(models))
	}
	for _, m := range models {
		if m.OwnedBy != "openai" || m.Object != "model" {
			t.Errorf("unexpected model info %+v", m)
		}
	}
}

func TestOpenAIProvider_Complete(t *testing.T) {
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "gpt-4o" {
			t.Errorf("model = %v", body["model"])
		}
		writeJSON(w, http.StatusOK, `{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1700000000, "model": "gpt-4o",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Hello!"}}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7}
		}`)
	})

	resp, err := p.Complete(context.Background(), Request{
		Model:    "gpt-4o",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.ID != "chatcmpl-1" || resp.Provider != "openai" {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Choices[0].Message.Content != "Hello!" || resp.Choices[0].FinishReason != "stop" {
		t.Errorf("unexpected choice %+v", resp.Choices[0])
	}
	if resp.Usage.TotalTokens != 7 {
		t.Errorf("usage = %+v", resp.Usage)
	}
	if resp.Cached {
		t.Error("live responses must not carry the cache marker")
	}
}

func sseBody(events ...string) string {
	var b strings.Builder
	for _, e := range events {
		fmt.Fprintf(&b, "data: %s\n\n", e)
	}
	b.WriteString("data: [DONE]\n\n")
	return b.String()
}

func writeSSE(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}

func TestOpenAIProvider_CompleteStream(t *testing.T) {
	p := newTestOpenAI(t, func(w http.ResponseWriter, _ *http.Request) {
		writeSSE(w, sseBody(
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant"}}]}`,
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"content":"Hel"}}]}`,
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		))
	})

	src, err := p.CompleteStream(context.Background(), Request{
		Model:    "gpt-4o",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		Stream:   true,
	})
	if err != nil {
		t.Fatalf("CompleteStream: %v", err)
	}
	defer src.Close()

	var text strings.Builder
	var chunks []StreamChunk
	for {
		c, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		chunks = append(chunks, c)
		text.WriteString(c.Content())
	}
	if len(chunks) != 4 {
		t.Fatalf("got %d chunks, want 4", len(chunks))
	}
	if chunks[0].Choices[0].Delta.Role != "assistant" {
		t.Errorf("first delta role = %q", chunks[0].Choices[0].Delta.Role)
	}
	if text.String() != "Hello" {
		t.Errorf("text = %q", text.String())
	}
	if chunks[3].Choices[0].FinishReason != "stop" {
		t.Errorf("finish = %q", chunks[3].Choices[0].FinishReason)
	}
}

func TestOpenAIProvider_CompleteText(t *testing.T) {
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/completions") || strings.Contains(r.URL.Path, "chat") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeJSON(w, http.StatusOK, `{
			"id": "cmpl-1", "object": "text_completion", "created": 1, "model": "gpt-3.5-turbo-instruct",
			"choices": [{"index": 0, "text": "world", "finish_reason": "stop", "logprobs": null}],
			"usage": {"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2}
		}`)
	})

	resp, err := p.CompleteText(context.Background(), CompletionRequest{Model: "gpt-3.5-turbo-instruct", Prompt: "hello"})
	if err != nil {
		t.Fatalf("CompleteText: %v", err)
	}
	if resp.Choices[0].Text != "world" || resp.Object != ObjectTextCompletion {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestOpenAIProvider_CompleteTextStream(t *testing.T) {
	p := newTestOpenAI(t, func(w http.ResponseWriter, _ *http.Request) {
		writeSSE(w, sseBody(
			`{"id":"cmpl-1","object":"text_completion","created":1,"model":"m","choices":[{"index":0,"text":"wor","finish_reason":""}]}`,
			`{"id":"cmpl-1","object":"text_completion","created":1,"model":"m","choices":[{"index":0,"text":"ld","finish_reason":"stop"}]}`,
		))
	})

	src, err := p.CompleteTextStream(context.Background(), CompletionRequest{Model: "m", Prompt: "hello", Stream: true})
	if err != nil {
		t.Fatalf("CompleteTextStream: %v", err)
	}
	defer src.Close()

	var text strings.Builder
	for {
		c, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		text.WriteString(c.Text())
	}
	if text.String() != "world" {
		t.Errorf("text = %q", text.String())
	}
}

func TestOpenAIProvider_GenerateImage(t *testing.T) {
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["response_format"] != "b64_json" {
			t.Errorf("response_format = %v", body["response_format"])
		}
		writeJSON(w, http.StatusOK, `{"created": 5, "data": [{"b64_json": "aGk=", "revised_prompt": "a cat"}]}`)
	})

	resp, err := p.GenerateImage(context.Background(), ImageRequest{Model: "dall-e-3", Prompt: "cat", ResponseFormat: ImageFormatB64JSON})
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if resp.Created != 5 || resp.Data[0].B64JSON != "aGk=" || resp.Data[0].RevisedPrompt != "a cat" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestOpenAIProvider_Audio(t *testing.T) {
	var paths []string
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if r.FormValue("model") != "whisper-1" {
			t.Errorf("model = %q", r.FormValue("model"))
		}
		if _, hdr, err := r.FormFile("file"); err != nil || hdr.Filename != "clip.wav" {
			t.Errorf("file part: %v %v", hdr, err)
		}
		writeJSON(w, http.StatusOK, `{"text": "hola"}`)
	})

	req := AudioRequest{Model: "whisper-1", File: []byte("RIFF...."), FileName: "clip.wav"}
	tr, err := p.Transcribe(context.Background(), req)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	tl, err := p.Translate(context.Background(), req)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if tr.Text != "hola" || tl.Text != "hola" {
		t.Errorf("unexpected texts %q %q", tr.Text, tl.Text)
	}
	if len(paths) != 2 || !strings.HasSuffix(paths[0], "/audio/transcriptions") || !strings.HasSuffix(paths[1], "/audio/translations") {
		t.Errorf("unexpected paths %v", paths)
	}
}

func TestOpenAIProvider_Moderate(t *testing.T) {
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Input) != 2 {
			t.Errorf("input = %v", body.Input)
		}
		writeJSON(w, http.StatusOK, `{"id": "modr-1", "model": "omni-moderation-latest", "results": [
			{"flagged": true, "categories": {"violence": true}, "category_scores": {"violence": 0.9}},
			{"flagged": false, "categories": {"violence": false}, "category_scores": {"violence": 0.01}}
		]}`)
	})

	resp, err := p.Moderate(context.Background(), ModerationRequest{Input: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("Moderate: %v", err)
	}
	if len(resp.Results) != 2 || !resp.Results[0].Flagged || resp.Results[1].Flagged {
		t.Fatalf("unexpected results %+v", resp.Results)
	}
	if !resp.Results[0].Categories["violence"] || resp.Results[0].CategoryScores["violence"] != 0.9 {
		t.Errorf("categories not decoded: %+v", resp.Results[0])
	}

	if _, err := p.Moderate(context.Background(), ModerationRequest{Input: 42}); err == nil {
		t.Error("expected error for non-string input")
	}
}

func TestOpenAIProvider_ErrorNormalization(t *testing.T) {
	p := newTestOpenAI(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, `{"error": {"message": "slow down", "type": "requests", "code": "rate_limit_exceeded"}}`)
	})

	_, err := p.Complete(context.Background(), Request{Model: "gpt-4o", Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if err == nil {
		t.Fatal("expected error")
	}
	var pf *ProviderFailure
	if !errors.As(NormalizeError(p.Name(), err), &pf) {
		t.Fatalf("expected *ProviderFailure, got %T", err)
	}
	if pf.Status != http.StatusTooManyRequests || pf.Code != "rate_limit_exceeded" || pf.Message != "slow down" {
		t.Errorf("unexpected failure %+v", pf)
	}
}

func TestOpenAIProvider_StreamErrorSurfacesOnNext(t *testing.T) {
	p := newTestOpenAI(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"error": {"message": "bad key", "type": "invalid_request_error", "code": "invalid_api_key"}}`)
	})

	src, err := p.CompleteStream(context.Background(), Request{Model: "gpt-4o", Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if err != nil {
		t.Fatalf("CompleteStream: %v", err)
	}
	src = NormalizeSource(p.Name(), src)
	defer src.Close()

	_, err = src.Next(context.Background())
	var pf *ProviderFailure
	if !errors.As(err, &pf) {
		t.Fatalf("expected *ProviderFailure, got %v", err)
	}
	if pf.Status != http.StatusUnauthorized || pf.Code != "invalid_api_key" {
		t.Errorf("unexpected failure %+v", pf)
	}
}
