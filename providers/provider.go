// Package providers defines the provider capability interfaces consumed by the
// cache adapter and the OpenAI-shaped wire types it reproduces.
//
// Provider is the minimum a backend must implement (chat completion).
// Other modalities are optional capabilities discovered with a type
// assertion: StreamProvider, TextProvider, ImageProvider, AudioProvider and
// ModerationProvider.
package providers

import (
	"context"
	"encoding/json"
	"errors"
)

// Message role constants.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"

	// ContentTypeText is the content-part type for plain text (multimodal messages).
	ContentTypeText = "text"

	// FinishReasonStop is the finish reason for a naturally completed answer.
	FinishReasonStop = "stop"

	// SSEDone is the sentinel value that marks the end of a server-sent event stream.
	SSEDone = "[DONE]"
)

// Object names used in response envelopes.
const (
	ObjectChatCompletion      = "chat.completion"
	ObjectChatCompletionChunk = "chat.completion.chunk"
	ObjectTextCompletion      = "text_completion"
)

// Provider defines the interface that all LLM providers must implement.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
	SupportedModels() []string
	SupportsModel(model string) bool
	Models() []ModelInfo
}

// StreamProvider is an optional interface for providers that support streaming chat.
type StreamProvider interface {
	Provider
	CompleteStream(ctx context.Context, req Request) (ChunkSource[StreamChunk], error)
}

// TextProvider is an optional interface for providers that serve the legacy
// /v1/completions endpoint.
type TextProvider interface {
	Provider
	CompleteText(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	CompleteTextStream(ctx context.Context, req CompletionRequest) (ChunkSource[CompletionChunk], error)
}

// ImageProvider is an optional interface for providers that support
// the /v1/images/generations endpoint.
type ImageProvider interface {
	Provider
	GenerateImage(ctx context.Context, req ImageRequest) (*ImageResponse, error)
}

// AudioProvider is an optional interface for speech-to-text providers.
type AudioProvider interface {
	Provider
	Transcribe(ctx context.Context, req AudioRequest) (*AudioResponse, error)
	Translate(ctx context.Context, req AudioRequest) (*AudioResponse, error)
}

// ModerationProvider is an optional interface for content classification.
type ModerationProvider interface {
	Provider
	Moderate(ctx context.Context, req ModerationRequest) (*ModerationResponse, error)
}

// ------------------------------------------------------------------ types ---

// ContentPart is a single element of a multipart message content array.
type ContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *ImageURLPart `json:"image_url,omitempty"`
}

// ImageURLPart carries the URL (or base64 data URI) for an image content part.
type ImageURLPart struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// Tool describes a function the model may call.
type Tool struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

// Function describes the callable function within a Tool.
type Function struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      bool            `json:"strict,omitempty"`
}

// ToolCall is a function invocation returned by the model in its response.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the name and arguments of a model-generated function call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ----------------------------------------------------------------- Message ---

// Message represents a single turn in a conversation.
//
// Content always holds the plain text. When the incoming JSON encodes content
// as an array, ContentParts keeps the parts and Content collects their text.
type Message struct {
	Role         string        `json:"-"`
	Content      string        `json:"-"`
	ContentParts []ContentPart `json:"-"`
	Name         string        `json:"-"`
	ToolCalls    []ToolCall    `json:"-"`
	ToolCallID   string        `json:"-"`
}

type messageWire struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// MarshalJSON encodes a Message; content is an array only when ContentParts is set.
func (m Message) MarshalJSON() ([]byte, error) {
	w := messageWire{Role: m.Role, Name: m.Name, ToolCalls: m.ToolCalls, ToolCallID: m.ToolCallID}
	var content interface{} = m.Content
	if len(m.ContentParts) > 0 {
		content = m.ContentParts
	}
	b, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	w.Content = b
	return json.Marshal(w)
}

// UnmarshalJSON accepts content as a plain string or a content-part array.
func (m *Message) UnmarshalJSON(b []byte) error {
	var w messageWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*m = Message{Role: w.Role, Name: w.Name, ToolCalls: w.ToolCalls, ToolCallID: w.ToolCallID}
	if len(w.Content) == 0 || string(w.Content) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(w.Content, &s); err == nil {
		m.Content = s
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(w.Content, &parts); err != nil {
		return err
	}
	m.ContentParts = parts
	for _, p := range parts {
		if p.Type == ContentTypeText {
			m.Content += p.Text
		}
	}
	return nil
}

// ----------------------------------------------------------------- Request ---

// Request represents a chat completion request. Fields map 1-to-1 with the
// OpenAI Chat Completions API.
type Request struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`

	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	N           *int     `json:"n,omitempty"`
	Seed        *int64   `json:"seed,omitempty"`

	MaxTokens        *int     `json:"max_tokens,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	Stop             []string `json:"stop,omitempty"`

	Tools      []Tool      `json:"tools,omitempty"`
	ToolChoice interface{} `json:"tool_choice,omitempty"`

	Stream bool   `json:"stream,omitempty"`
	User   string `json:"user,omitempty"`
}

// Validate returns an error if the request is missing required fields or
// contains out-of-range parameter values.
func (r Request) Validate() error {
	if r.Model == "" {
		return errors.New("model is required")
	}
	if len(r.Messages) == 0 {
		return errors.New("at least one message is required")
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return errors.New("temperature must be between 0 and 2")
	}
	if r.TopP != nil && (*r.TopP < 0 || *r.TopP > 1) {
		return errors.New("top_p must be between 0 and 1")
	}
	if r.MaxTokens != nil && *r.MaxTokens <= 0 {
		return errors.New("max_tokens must be positive")
	}
	return nil
}

// ----------------------------------------------------------------- Response --

// SavedTokens reports the tokens a cache hit avoided sending and receiving.
type SavedTokens struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Response represents a chat completion response.
// Cached is set only on responses synthesized from the cache.
type Response struct {
	ID          string       `json:"id"`
	Object      string       `json:"object,omitempty"`
	Created     int64        `json:"created,omitempty"`
	Model       string       `json:"model"`
	Provider    string       `json:"provider,omitempty"`
	Choices     []Choice     `json:"choices"`
	Usage       Usage        `json:"usage"`
	Cached      bool         `json:"cached,omitempty"`
	SavedTokens *SavedTokens `json:"saved_tokens,omitempty"`
}

// Choice represents a single completion choice in the response.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// StreamChunk represents a single SSE chunk in a streaming chat response.
type StreamChunk struct {
	ID          string         `json:"id"`
	Object      string         `json:"object"`
	Created     int64          `json:"created"`
	Model       string         `json:"model"`
	Choices     []StreamChoice `json:"choices"`
	Cached      bool           `json:"cached,omitempty"`
	SavedTokens *SavedTokens   `json:"saved_tokens,omitempty"`
	Error       error          `json:"-"` // non-nil signals a stream failure
}

// StreamChoice is a single choice in a streaming chunk.
type StreamChoice struct {
	Index        int          `json:"index"`
	Delta        MessageDelta `json:"delta"`
	FinishReason string       `json:"finish_reason,omitempty"`
}

// MessageDelta carries incremental content in a streaming response.
type MessageDelta struct {
	Role      string     `json:"role,omitempty"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Content returns the first choice's content delta, or "" when the chunk has none.
func (c StreamChunk) Content() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Delta.Content
}

// Usage carries token consumption statistics.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ModelInfo describes a single model offered by a provider.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}
