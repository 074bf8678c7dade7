package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/ferro-labs/semcache"
	"github.com/ferro-labs/semcache/providers"
)

const maxAudioUpload = 25 << 20

// chatHandler handles POST /v1/chat/completions.
func chatHandler(a *semcache.Adapter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req providers.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeOpenAIError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "invalid_request_error", "invalid_request")
			return
		}

		if req.Stream {
			ch, err := a.ChatStreamChan(r.Context(), req)
			if err != nil {
				writeAdapterError(w, err)
				return
			}
			writeSSE(w, ch,
				func(c providers.StreamChunk) error { return c.Error },
				func(c providers.StreamChunk) bool { return c.Cached },
			)
			return
		}

		resp, err := a.Chat(r.Context(), req)
		if err != nil {
			writeAdapterError(w, err)
			return
		}
		cacheHeader(w, resp.Cached)
		writeJSON(w, http.StatusOK, resp)
	}
}

// completionsHandler handles POST /v1/completions (legacy text completions).
func completionsHandler(a *semcache.Adapter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req providers.CompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeOpenAIError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "invalid_request_error", "invalid_request")
			return
		}

		if req.Stream {
			ch, err := a.TextCompletionStreamChan(r.Context(), req)
			if err != nil {
				writeAdapterError(w, err)
				return
			}
			writeSSE(w, ch,
				func(c providers.CompletionChunk) error { return c.Error },
				func(c providers.CompletionChunk) bool { return c.Cached },
			)
			return
		}

		resp, err := a.TextCompletion(r.Context(), req)
		if err != nil {
			writeAdapterError(w, err)
			return
		}
		cacheHeader(w, resp.Cached)
		writeJSON(w, http.StatusOK, resp)
	}
}

// imagesHandler handles POST /v1/images/generations.
func imagesHandler(a *semcache.Adapter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req providers.ImageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeOpenAIError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "invalid_request_error", "invalid_request")
			return
		}
		if req.Model == "" {
			writeOpenAIError(w, http.StatusBadRequest, "model is required", "invalid_request_error", "invalid_request")
			return
		}

		resp, err := a.GenerateImage(r.Context(), req)
		if err != nil {
			writeAdapterError(w, err)
			return
		}
		cacheHeader(w, resp.Cached)
		writeJSON(w, http.StatusOK, resp)
	}
}

// audioHandler handles the multipart speech-to-text endpoints.
func audioHandler(call func(context.Context, providers.AudioRequest) (*providers.AudioResponse, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxAudioUpload)
		if err := r.ParseMultipartForm(maxAudioUpload); err != nil {
			writeOpenAIError(w, http.StatusBadRequest, "invalid multipart body: "+err.Error(), "invalid_request_error", "invalid_request")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeOpenAIError(w, http.StatusBadRequest, "file is required", "invalid_request_error", "invalid_request")
			return
		}
		defer func() { _ = file.Close() }()
		data, err := io.ReadAll(file)
		if err != nil {
			writeOpenAIError(w, http.StatusBadRequest, "failed to read file", "invalid_request_error", "invalid_request")
			return
		}

		req := providers.AudioRequest{
			Model:    r.FormValue("model"),
			File:     data,
			FileName: header.Filename,
			Prompt:   r.FormValue("prompt"),
			Language: r.FormValue("language"),
		}
		if t := r.FormValue("temperature"); t != "" {
			v, err := strconv.ParseFloat(t, 64)
			if err != nil {
				writeOpenAIError(w, http.StatusBadRequest, "temperature must be a number", "invalid_request_error", "invalid_request")
				return
			}
			req.Temperature = &v
		}

		resp, err := call(r.Context(), req)
		if err != nil {
			writeAdapterError(w, err)
			return
		}
		cacheHeader(w, resp.Cached)
		writeJSON(w, http.StatusOK, resp)
	}
}

// moderationsHandler handles POST /v1/moderations.
func moderationsHandler(a *semcache.Adapter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req providers.ModerationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeOpenAIError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "invalid_request_error", "invalid_request")
			return
		}

		resp, err := a.Moderate(r.Context(), req)
		if err != nil {
			writeAdapterError(w, err)
			return
		}
		cacheHeader(w, resp.Cached)
		writeJSON(w, http.StatusOK, resp)
	}
}

// writeSSE streams chunks from ch as server-sent events. X-Cache is taken
// from the first chunk, so headers go out only once it arrives. A failure
// before the first chunk is written as a plain JSON error with its status.
func writeSSE[T any](w http.ResponseWriter, ch <-chan T, errOf func(T) error, cachedOf func(T) bool) {
	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}
	started := false
	start := func(cached bool) {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		cacheHeader(w, cached)
		w.WriteHeader(http.StatusOK)
	}

	for chunk := range ch {
		if err := errOf(chunk); err != nil {
			if !started {
				writeAdapterError(w, err)
				return
			}
			data, _ := json.Marshal(map[string]interface{}{
				"error": map[string]interface{}{"message": err.Error(), "type": "stream_error"},
			})
			_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
			flush()
			return
		}
		start(cachedOf(chunk))
		data, err := json.Marshal(chunk)
		if err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
		flush()
	}
	start(false)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", providers.SSEDone)
	flush()
}
