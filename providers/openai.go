package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
)

// OpenAIProvider implements every provider capability on top of the
// official openai-go client.
type OpenAIProvider struct {
	Base
	client openai.Client
}

// NewOpenAI creates a new OpenAI provider. The optional baseURL parameter
// allows overriding the API endpoint (pass "" for the default).
func NewOpenAI(apiKey string, baseURL string, extra ...option.RequestOption) (*OpenAIProvider, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	resolvedBase := "https://api.openai.com/v1"
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
		resolvedBase = baseURL
	}
	opts = append(opts, extra...)
	return &OpenAIProvider{
		Base:   Base{name: "openai", apiKey: apiKey, baseURL: resolvedBase},
		client: openai.NewClient(opts...),
	}, nil
}

// SupportedModels returns the list of models advertised by this provider.
func (p *OpenAIProvider) SupportedModels() []string {
	return []string{
		"gpt-4o",
		"gpt-4o-mini",
		"gpt-3.5-turbo",
		"gpt-3.5-turbo-instruct",
		"dall-e-3",
		"whisper-1",
		"omni-moderation-latest",
	}
}

// SupportsModel returns true if the model matches known OpenAI prefixes.
func (p *OpenAIProvider) SupportsModel(model string) bool {
	for _, prefix := range []string{"gpt-", "chatgpt-", "dall-e-", "whisper-", "text-moderation-", "omni-moderation-", "ft:", "babbage-", "davinci-"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return len(model) >= 2 && model[0] == 'o' && model[1] >= '0' && model[1] <= '9'
}

// Models returns model information for all supported models.
func (p *OpenAIProvider) Models() []ModelInfo {
	return ModelsFromList(p.name, p.SupportedModels())
}

// Complete sends a chat completion request to OpenAI.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	params := openai.ChatCompletionNewParams{
		Messages: buildOpenAIMessages(req.Messages),
		Model:    req.Model,
	}
	applyOpenAIParams(&params, req)

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		ID:       completion.ID,
		Object:   ObjectChatCompletion,
		Created:  completion.Created,
		Model:    completion.Model,
		Provider: p.name,
		Usage: Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}
	for i, choice := range completion.Choices {
		msg := Message{
			Role:    string(choice.Message.Role),
			Content: choice.Message.Content,
		}
		for _, tc := range choice.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:   tc.ID,
				Type: string(tc.Type),
				Function: FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		resp.Choices = append(resp.Choices, Choice{
			Index:        i,
			Message:      msg,
			FinishReason: string(choice.FinishReason),
		})
	}
	return resp, nil
}

// CompleteStream opens a streaming chat completion. Chunks are pulled from
// the SSE body on demand; nothing is read ahead.
func (p *OpenAIProvider) CompleteStream(ctx context.Context, req Request) (ChunkSource[StreamChunk], error) {
	params := openai.ChatCompletionNewParams{
		Messages: buildOpenAIMessages(req.Messages),
		Model:    req.Model,
	}
	applyOpenAIParams(&params, req)

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	return &sseSource[openai.ChatCompletionChunk, StreamChunk]{stream: stream, convert: convertChatChunk}, nil
}

func convertChatChunk(chunk openai.ChatCompletionChunk) StreamChunk {
	sc := StreamChunk{
		ID:      chunk.ID,
		Object:  ObjectChatCompletionChunk,
		Created: chunk.Created,
		Model:   chunk.Model,
	}
	for _, c := range chunk.Choices {
		sc.Choices = append(sc.Choices, StreamChoice{
			Index: int(c.Index),
			Delta: MessageDelta{
				Role:    string(c.Delta.Role),
				Content: c.Delta.Content,
			},
			FinishReason: string(c.FinishReason),
		})
	}
	return sc
}

// CompleteText sends a legacy text completion request.
func (p *OpenAIProvider) CompleteText(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	completion, err := p.client.Completions.New(ctx, buildCompletionParams(req))
	if err != nil {
		return nil, err
	}
	resp := &CompletionResponse{
		ID:      completion.ID,
		Object:  ObjectTextCompletion,
		Created: completion.Created,
		Model:   completion.Model,
		Usage: Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}
	for _, c := range completion.Choices {
		resp.Choices = append(resp.Choices, CompletionChoice{
			Text:         c.Text,
			Index:        int(c.Index),
			FinishReason: string(c.FinishReason),
		})
	}
	return resp, nil
}

// CompleteTextStream opens a streaming legacy text completion.
func (p *OpenAIProvider) CompleteTextStream(ctx context.Context, req CompletionRequest) (ChunkSource[CompletionChunk], error) {
	stream := p.client.Completions.NewStreaming(ctx, buildCompletionParams(req))
	return &sseSource[openai.Completion, CompletionChunk]{stream: stream, convert: convertCompletionChunk}, nil
}

func convertCompletionChunk(c openai.Completion) CompletionChunk {
	chunk := CompletionChunk{
		ID:      c.ID,
		Object:  ObjectTextCompletion,
		Created: c.Created,
		Model:   c.Model,
	}
	for _, choice := range c.Choices {
		chunk.Choices = append(chunk.Choices, CompletionChoice{
			Text:         choice.Text,
			Index:        int(choice.Index),
			FinishReason: string(choice.FinishReason),
		})
	}
	return chunk
}

func buildCompletionParams(req CompletionRequest) openai.CompletionNewParams {
	params := openai.CompletionNewParams{
		Model:  openai.CompletionNewParamsModel(req.Model),
		Prompt: openai.CompletionNewParamsPromptUnion{OfString: openai.String(req.Prompt)},
	}
	if req.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}
	if req.N != nil {
		params.N = openai.Int(int64(*req.N))
	}
	if req.Seed != nil {
		params.Seed = openai.Int(*req.Seed)
	}
	if req.PresencePenalty != nil {
		params.PresencePenalty = openai.Float(*req.PresencePenalty)
	}
	if req.FrequencyPenalty != nil {
		params.FrequencyPenalty = openai.Float(*req.FrequencyPenalty)
	}
	if req.User != "" {
		params.User = openai.String(req.User)
	}
	if req.Suffix != "" {
		params.Suffix = openai.String(req.Suffix)
	}
	if len(req.Stop) > 0 {
		params.Stop = openai.CompletionNewParamsStopUnion{OfStringArray: req.Stop}
	}
	return params
}

// GenerateImage sends an image generation request to OpenAI (DALL-E).
func (p *OpenAIProvider) GenerateImage(ctx context.Context, req ImageRequest) (*ImageResponse, error) {
	params := openai.ImageGenerateParams{
		Prompt: req.Prompt,
		Model:  openai.ImageModel(req.Model),
	}
	if req.N != nil {
		params.N = openai.Int(int64(*req.N))
	}
	if req.Size != "" {
		params.Size = openai.ImageGenerateParamsSize(req.Size)
	}
	if req.Quality != "" {
		params.Quality = openai.ImageGenerateParamsQuality(req.Quality)
	}
	if req.Style != "" {
		params.Style = openai.ImageGenerateParamsStyle(req.Style)
	}
	if req.ResponseFormat == ImageFormatB64JSON {
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormatB64JSON
	} else {
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormatURL
	}
	if req.User != "" {
		params.User = openai.String(req.User)
	}

	result, err := p.client.Images.Generate(ctx, params)
	if err != nil {
		return nil, err
	}

	images := make([]GeneratedImage, len(result.Data))
	for i, d := range result.Data {
		images[i] = GeneratedImage{
			URL:           d.URL,
			B64JSON:       d.B64JSON,
			RevisedPrompt: d.RevisedPrompt,
		}
	}
	return &ImageResponse{Created: result.Created, Data: images}, nil
}

// Transcribe converts speech to text in the spoken language.
func (p *OpenAIProvider) Transcribe(ctx context.Context, req AudioRequest) (*AudioResponse, error) {
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(req.File), audioFileName(req), "application/octet-stream"),
		Model: openai.AudioModel(req.Model),
	}
	if req.Language != "" {
		params.Language = openai.String(req.Language)
	}
	if req.Prompt != "" {
		params.Prompt = openai.String(req.Prompt)
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	result, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	return &AudioResponse{Text: result.Text}, nil
}

// Translate converts speech to English text.
func (p *OpenAIProvider) Translate(ctx context.Context, req AudioRequest) (*AudioResponse, error) {
	params := openai.AudioTranslationNewParams{
		File:  openai.File(bytes.NewReader(req.File), audioFileName(req), "application/octet-stream"),
		Model: openai.AudioModel(req.Model),
	}
	if req.Prompt != "" {
		params.Prompt = openai.String(req.Prompt)
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	result, err := p.client.Audio.Translations.New(ctx, params)
	if err != nil {
		return nil, err
	}
	return &AudioResponse{Text: result.Text}, nil
}

func audioFileName(req AudioRequest) string {
	if req.FileName != "" {
		return req.FileName
	}
	return "audio.wav"
}

// Moderate classifies one or more inputs.
func (p *OpenAIProvider) Moderate(ctx context.Context, req ModerationRequest) (*ModerationResponse, error) {
	params := openai.ModerationNewParams{}
	if req.Model != "" {
		params.Model = openai.ModerationModel(req.Model)
	}
	switch v := req.Input.(type) {
	case string:
		params.Input = openai.ModerationNewParamsInputUnion{OfString: openai.String(v)}
	case []string:
		params.Input = openai.ModerationNewParamsInputUnion{OfStringArray: v}
	case []interface{}:
		strs := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				strs = append(strs, s)
			}
		}
		params.Input = openai.ModerationNewParamsInputUnion{OfStringArray: strs}
	default:
		return nil, fmt.Errorf("moderation input must be a string or a list of strings, got %T", req.Input)
	}

	result, err := p.client.Moderations.New(ctx, params)
	if err != nil {
		return nil, err
	}
	resp := &ModerationResponse{ID: result.ID, Model: result.Model}
	for _, r := range result.Results {
		var mr ModerationResult
		if raw := r.RawJSON(); raw != "" {
			if err := json.Unmarshal([]byte(raw), &mr); err != nil {
				return nil, fmt.Errorf("decode moderation result: %w", err)
			}
		} else {
			mr.Flagged = r.Flagged
		}
		resp.Results = append(resp.Results, mr)
	}
	return resp, nil
}

// sseSource adapts an openai-go SSE stream to ChunkSource.
type sseSource[T, U any] struct {
	stream  *ssestream.Stream[T]
	convert func(T) U
}

func (s *sseSource[T, U]) Next(_ context.Context) (U, error) {
	var zero U
	if s.stream.Next() {
		return s.convert(s.stream.Current()), nil
	}
	if err := s.stream.Err(); err != nil {
		return zero, err
	}
	return zero, io.EOF
}

func (s *sseSource[T, U]) Close() error { return s.stream.Close() }

// buildOpenAIMessages converts Messages to the openai-go SDK union type.
func buildOpenAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		case RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

// applyOpenAIParams applies the optional Request fields to the SDK params struct.
func applyOpenAIParams(params *openai.ChatCompletionNewParams, req Request) {
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}
	if req.N != nil {
		params.N = openai.Int(int64(*req.N))
	}
	if req.Seed != nil {
		params.Seed = openai.Int(*req.Seed)
	}
	if req.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*req.MaxTokens))
	}
	if req.PresencePenalty != nil {
		params.PresencePenalty = openai.Float(*req.PresencePenalty)
	}
	if req.FrequencyPenalty != nil {
		params.FrequencyPenalty = openai.Float(*req.FrequencyPenalty)
	}
	if req.User != "" {
		params.User = openai.String(req.User)
	}
	if len(req.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: req.Stop}
	}
	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, 0, len(req.Tools))
		for _, t := range req.Tools {
			var paramSchema openai.FunctionParameters
			if len(t.Function.Parameters) > 0 {
				json.Unmarshal(t.Function.Parameters, &paramSchema) //nolint:errcheck,gosec
			}
			tools = append(tools, openai.ChatCompletionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        t.Function.Name,
					Description: openai.String(t.Function.Description),
					Parameters:  paramSchema,
					Strict:      openai.Bool(t.Function.Strict),
				},
			})
		}
		params.Tools = tools
	}
}
