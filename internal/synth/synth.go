// Package synth turns a stored cache record into the provider-shaped
// response the caller asked for.
package synth

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ferro-labs/semcache/cache"
	"github.com/ferro-labs/semcache/normalize"
	"github.com/ferro-labs/semcache/providers"
)

// Result is a synthesized response. Exactly one field besides Modality is
// set, chosen by the request's modality and streaming flag.
type Result struct {
	Modality normalize.Modality

	Chat       *providers.Response
	ChatChunks []providers.StreamChunk
	Text       *providers.CompletionResponse
	TextChunks []providers.CompletionChunk
	Image      *providers.ImageResponse
	Audio      *providers.AudioResponse
	Moderation *providers.ModerationResponse
}

// Synthesizer builds responses from cache records.
type Synthesizer struct {
	// Images receives url-mode image output. Required for image requests
	// asking for a url.
	Images ImageWriter
	// Now defaults to time.Now.
	Now func() time.Time
}

func (s *Synthesizer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Build converts rec into the response shape of req. saved is attached to
// chat responses and may be nil.
func (s *Synthesizer) Build(req *normalize.Request, rec cache.Record, saved *providers.SavedTokens) (Result, error) {
	res := Result{Modality: req.Modality}
	created := s.now().Unix()

	switch req.Modality {
	case normalize.ModalityChat:
		if req.Stream {
			res.ChatChunks = ChatChunks(req.Model, rec.Text, created, saved)
		} else {
			res.Chat = ChatObject(req.Model, rec.Text, created, saved)
		}
	case normalize.ModalityTextCompletion:
		if req.Stream {
			res.TextChunks = TextChunks(req.Model, rec.Text, created)
		} else {
			res.Text = TextObject(req.Model, rec.Text, created)
		}
	case normalize.ModalityImage:
		img, err := s.image(req, rec, created)
		if err != nil {
			return Result{}, err
		}
		res.Image = img
	case normalize.ModalityAudio:
		res.Audio = &providers.AudioResponse{Text: rec.Text, Cached: true}
	case normalize.ModalityModeration:
		mod, err := moderation(req, rec)
		if err != nil {
			return Result{}, err
		}
		res.Moderation = mod
	default:
		return Result{}, fmt.Errorf("%w: modality %q", normalize.ErrInvalidModality, req.Modality)
	}
	return res, nil
}

// digest is a short stable identifier for text.
func digest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:6])
}

// ChatObject builds a non-streaming chat completion carrying text.
func ChatObject(model, text string, created int64, saved *providers.SavedTokens) *providers.Response {
	return &providers.Response{
		ID:      "chatcmpl-cache-" + digest(text),
		Object:  providers.ObjectChatCompletion,
		Created: created,
		Model:   model,
		Choices: []providers.Choice{{
			Index:        0,
			Message:      providers.Message{Role: providers.RoleAssistant, Content: text},
			FinishReason: providers.FinishReasonStop,
		}},
		Cached:      true,
		SavedTokens: saved,
	}
}

// ChatChunks builds the three-chunk stream for text: a role-only delta, the
// whole text as one delta, then an empty delta with the stop finish reason
// and the saved-token pair.
func ChatChunks(model, text string, created int64, saved *providers.SavedTokens) []providers.StreamChunk {
	id := "chatcmpl-cache-" + digest(text)
	chunk := func(delta providers.MessageDelta, finish string) providers.StreamChunk {
		return providers.StreamChunk{
			ID:      id,
			Object:  providers.ObjectChatCompletionChunk,
			Created: created,
			Model:   model,
			Choices: []providers.StreamChoice{{Index: 0, Delta: delta, FinishReason: finish}},
			Cached:  true,
		}
	}
	last := chunk(providers.MessageDelta{}, providers.FinishReasonStop)
	last.SavedTokens = saved
	return []providers.StreamChunk{
		chunk(providers.MessageDelta{Role: providers.RoleAssistant}, ""),
		chunk(providers.MessageDelta{Content: text}, ""),
		last,
	}
}

// TextObject builds a non-streaming text completion carrying text.
func TextObject(model, text string, created int64) *providers.CompletionResponse {
	return &providers.CompletionResponse{
		ID:      "cmpl-cache-" + digest(text),
		Object:  providers.ObjectTextCompletion,
		Created: created,
		Model:   model,
		Choices: []providers.CompletionChoice{{Text: text, Index: 0, FinishReason: providers.FinishReasonStop}},
		Cached:  true,
	}
}

// TextChunks builds a text completion stream: the whole text, then a
// finish chunk.
func TextChunks(model, text string, created int64) []providers.CompletionChunk {
	id := "cmpl-cache-" + digest(text)
	chunk := func(text, finish string) providers.CompletionChunk {
		return providers.CompletionChunk{
			ID:      id,
			Object:  providers.ObjectTextCompletion,
			Created: created,
			Model:   model,
			Choices: []providers.CompletionChoice{{Text: text, Index: 0, FinishReason: finish}},
			Cached:  true,
		}
	}
	return []providers.CompletionChunk{chunk(text, ""), chunk("", providers.FinishReasonStop)}
}

func moderation(req *normalize.Request, rec cache.Record) (*providers.ModerationResponse, error) {
	var resp providers.ModerationResponse
	if err := json.Unmarshal([]byte(rec.Text), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", normalize.ErrShapeMismatch, err)
	}
	expected := 1
	if req.Moderation != nil {
		expected = req.Moderation.Expected
	}
	if len(resp.Results) != expected {
		return nil, fmt.Errorf("%w: %d results for %d inputs", normalize.ErrLengthMismatch, len(resp.Results), expected)
	}
	resp.Cached = true
	return &resp, nil
}
