// Package normalize builds the canonical request descriptor the cache
// adapter works with. Every modality entry point converts its raw call
// parameters into a *Request before consulting the cache gateway.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ferro-labs/semcache/providers"
)

// Modality identifies the kind of request/response pair.
type Modality string

// Supported modalities.
const (
	ModalityChat           Modality = "chat"
	ModalityTextCompletion Modality = "text_completion"
	ModalityImage          Modality = "image"
	ModalityAudio          Modality = "audio"
	ModalityModeration     Modality = "moderation"
)

// Audio operations.
const (
	AudioTranscribe = "transcribe"
	AudioTranslate  = "translate"
)

// Image defaults applied when the caller leaves them empty.
const (
	DefaultImageSize   = "256x256"
	DefaultImageFormat = providers.ImageFormatURL
)

// ImageParams holds the image-specific request parameters.
type ImageParams struct {
	Size           string `json:"size"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	ResponseFormat string `json:"response_format"`
}

// AudioParams holds the audio-specific request parameters. The uploaded
// file itself is represented by its SHA-256 digest.
type AudioParams struct {
	Operation  string `json:"operation"`
	FileName   string `json:"file_name,omitempty"`
	FileDigest string `json:"file_digest"`
	Language   string `json:"language,omitempty"`
	Prompt     string `json:"prompt,omitempty"`
}

// ModerationParams holds the moderation inputs and the number of results a
// response must carry.
type ModerationParams struct {
	Inputs   []string `json:"inputs"`
	Expected int      `json:"expected"`
}

// Request is the canonical request descriptor.
type Request struct {
	Modality   Modality            `json:"modality"`
	Stream     bool                `json:"stream,omitempty"`
	Model      string              `json:"model"`
	Messages   []providers.Message `json:"messages,omitempty"`
	Prompt     string              `json:"prompt,omitempty"`
	Tools      []providers.Tool    `json:"tools,omitempty"`
	Image      *ImageParams        `json:"image,omitempty"`
	Audio      *AudioParams        `json:"audio,omitempty"`
	Moderation *ModerationParams   `json:"moderation,omitempty"`

	// SkipCache bypasses the lookup. The answer is still stored.
	SkipCache bool `json:"-"`
	// InputTokens is the prompt estimate; zero when accounting is disabled.
	InputTokens int `json:"-"`
}

// keyView is the part of a Request that identifies a cached answer. Streaming
// and non-streaming calls share an answer, and so do image requests that
// differ only in size or output format.
type keyView struct {
	Modality  Modality            `json:"modality"`
	Model     string              `json:"model"`
	Messages  []providers.Message `json:"messages,omitempty"`
	Prompt    string              `json:"prompt,omitempty"`
	Tools     []providers.Tool    `json:"tools,omitempty"`
	Operation string              `json:"operation,omitempty"`
	File      string              `json:"file,omitempty"`
	Language  string              `json:"language,omitempty"`
	Inputs    []string            `json:"inputs,omitempty"`
}

// Key returns the hex SHA-256 digest of the canonical request.
func (r *Request) Key() string {
	v := keyView{
		Modality: r.Modality,
		Model:    r.Model,
		Messages: r.Messages,
		Prompt:   r.Prompt,
		Tools:    r.Tools,
	}
	if r.Audio != nil {
		v.Operation = r.Audio.Operation
		v.File = r.Audio.FileDigest
		v.Language = r.Audio.Language
		if v.Prompt == "" {
			v.Prompt = r.Audio.Prompt
		}
	}
	if r.Moderation != nil {
		v.Inputs = r.Moderation.Inputs
	}
	b, _ := json.Marshal(v) //nolint:errcheck // plain structs always marshal
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Chat normalizes a chat completion request. counter may be nil, in which
// case no token estimate is computed.
func Chat(req providers.Request, counter TokenCounter) (*Request, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModality, err)
	}
	out := &Request{
		Modality: ModalityChat,
		Stream:   req.Stream,
		Model:    req.Model,
		Messages: req.Messages,
		Tools:    req.Tools,
	}
	if counter != nil {
		out.InputTokens = EstimateChat(req.Messages, counter)
	}
	return out, nil
}

// TextCompletion normalizes a legacy text completion request.
func TextCompletion(req providers.CompletionRequest) (*Request, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModality, err)
	}
	return &Request{
		Modality: ModalityTextCompletion,
		Stream:   req.Stream,
		Model:    req.Model,
		Prompt:   req.Prompt,
	}, nil
}

// Image normalizes an image generation request, applying the default size
// and response format.
func Image(req providers.ImageRequest) (*Request, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrInvalidModality)
	}
	size := req.Size
	if size == "" {
		size = DefaultImageSize
	}
	w, h, err := ParseSize(size)
	if err != nil {
		return nil, err
	}
	format := req.ResponseFormat
	if format == "" {
		format = DefaultImageFormat
	}
	if format != providers.ImageFormatURL && format != providers.ImageFormatB64JSON {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return &Request{
		Modality: ModalityImage,
		Model:    req.Model,
		Prompt:   req.Prompt,
		Image:    &ImageParams{Size: size, Width: w, Height: h, ResponseFormat: format},
	}, nil
}

// ParseSize parses a "WxH" size string.
func ParseSize(size string) (width, height int, err error) {
	ws, hs, ok := strings.Cut(strings.ToLower(size), "x")
	if !ok {
		return 0, 0, fmt.Errorf("%w: malformed size %q", ErrInvalidModality, size)
	}
	width, werr := strconv.Atoi(ws)
	height, herr := strconv.Atoi(hs)
	if werr != nil || herr != nil || width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("%w: malformed size %q", ErrInvalidModality, size)
	}
	return width, height, nil
}

// Audio normalizes a transcription or translation request.
func Audio(op string, req providers.AudioRequest) (*Request, error) {
	if op != AudioTranscribe && op != AudioTranslate {
		return nil, fmt.Errorf("%w: unknown audio operation %q", ErrInvalidModality, op)
	}
	if req.Model == "" {
		return nil, fmt.Errorf("%w: model is required", ErrInvalidModality)
	}
	if len(req.File) == 0 {
		return nil, fmt.Errorf("%w: audio file is empty", ErrInvalidModality)
	}
	sum := sha256.Sum256(req.File)
	return &Request{
		Modality: ModalityAudio,
		Model:    req.Model,
		Audio: &AudioParams{
			Operation:  op,
			FileName:   req.FileName,
			FileDigest: hex.EncodeToString(sum[:]),
			Language:   req.Language,
			Prompt:     req.Prompt,
		},
	}, nil
}

// Moderation normalizes a moderation request. Input may be a string or a
// list of strings.
func Moderation(req providers.ModerationRequest) (*Request, error) {
	var inputs []string
	switch v := req.Input.(type) {
	case string:
		inputs = []string{v}
	case []string:
		inputs = v
	case []interface{}:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: moderation input items must be strings", ErrInvalidModality)
			}
			inputs = append(inputs, s)
		}
	default:
		return nil, fmt.Errorf("%w: moderation input must be a string or list, got %T", ErrInvalidModality, req.Input)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: moderation input is empty", ErrInvalidModality)
	}
	return &Request{
		Modality:   ModalityModeration,
		Model:      req.Model,
		Moderation: &ModerationParams{Inputs: inputs, Expected: len(inputs)},
	}, nil
}
