package providers

import "errors"

// ------------------------------------------------------- Text Completions --

// CompletionRequest mirrors the OpenAI /v1/completions request body.
type CompletionRequest struct {
	Model            string   `json:"model"`
	Prompt           string   `json:"prompt"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	N                *int     `json:"n,omitempty"`
	Stream           bool     `json:"stream,omitempty"`
	Stop             []string `json:"stop,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	Seed             *int64   `json:"seed,omitempty"`
	User             string   `json:"user,omitempty"`
	Suffix           string   `json:"suffix,omitempty"`
}

// Validate checks the required fields of a text completion request.
func (r CompletionRequest) Validate() error {
	if r.Model == "" {
		return errors.New("model is required")
	}
	if r.MaxTokens != nil && *r.MaxTokens <= 0 {
		return errors.New("max_tokens must be positive")
	}
	return nil
}

// CompletionChoice is one choice of a text completion or text completion chunk.
type CompletionChoice struct {
	Text         string `json:"text"`
	Index        int    `json:"index"`
	FinishReason string `json:"finish_reason"`
}

// CompletionResponse mirrors the OpenAI /v1/completions response body.
type CompletionResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created,omitempty"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Usage   Usage              `json:"usage"`
	Cached  bool               `json:"cached,omitempty"`
}

// CompletionChunk is a single SSE event of a streamed text completion.
type CompletionChunk struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Cached  bool               `json:"cached,omitempty"`
	Error   error              `json:"-"`
}

// Text returns the first choice's text delta, or "".
func (c CompletionChunk) Text() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Text
}

// ---------------------------------------------------------- Image Generation --

// Image response formats.
const (
	ImageFormatURL     = "url"
	ImageFormatB64JSON = "b64_json"
)

// ImageRequest mirrors the OpenAI /v1/images/generations request schema.
type ImageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              *int   `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"` // "url" | "b64_json"
	Quality        string `json:"quality,omitempty"`
	Style          string `json:"style,omitempty"`
	User           string `json:"user,omitempty"`
}

// ImageResponse mirrors the OpenAI /v1/images/generations response schema.
type ImageResponse struct {
	Created int64            `json:"created"`
	Data    []GeneratedImage `json:"data"`
	Cached  bool             `json:"cached,omitempty"`
}

// GeneratedImage holds the result of a single image generation.
type GeneratedImage struct {
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64_json,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// -------------------------------------------------------------------- Audio --

// AudioRequest carries a speech-to-text request. File holds the raw upload.
type AudioRequest struct {
	Model       string   `json:"model"`
	File        []byte   `json:"-"`
	FileName    string   `json:"file_name,omitempty"`
	Prompt      string   `json:"prompt,omitempty"`
	Language    string   `json:"language,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// AudioResponse is the minimal transcript shape returned by
// /v1/audio/transcriptions and /v1/audio/translations.
type AudioResponse struct {
	Text   string `json:"text"`
	Cached bool   `json:"cached,omitempty"`
}

// --------------------------------------------------------------- Moderation --

// ModerationRequest mirrors the OpenAI /v1/moderations request schema.
type ModerationRequest struct {
	Model string      `json:"model,omitempty"`
	Input interface{} `json:"input"` // string or []string
}

// ModerationResponse mirrors the OpenAI /v1/moderations response schema.
type ModerationResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Results []ModerationResult `json:"results"`
	Cached  bool               `json:"cached,omitempty"`
}

// ModerationResult classifies one input.
type ModerationResult struct {
	Flagged        bool               `json:"flagged"`
	Categories     map[string]bool    `json:"categories"`
	CategoryScores map[string]float64 `json:"category_scores"`
}
