package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ferro-labs/semcache"
	"github.com/ferro-labs/semcache/internal/logging"
	"github.com/ferro-labs/semcache/providers"
)

// newRouter builds the HTTP router.
func newRouter(a *semcache.Adapter, corsOrigins []string) http.Handler {
	cors := newCORSPolicy(corsOrigins)
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware)
	r.Use(cors.middleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":   "ok",
			"provider": a.Provider().Name(),
		})
	})

	r.Get("/v1/models", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"object": "list",
			"data":   a.Provider().Models(),
		})
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/v1/chat/completions", chatHandler(a))
	r.Post("/v1/completions", completionsHandler(a))
	r.Post("/v1/images/generations", imagesHandler(a))
	r.Post("/v1/audio/transcriptions", audioHandler(a.Transcribe))
	r.Post("/v1/audio/translations", audioHandler(a.Translate))
	r.Post("/v1/moderations", moderationsHandler(a))

	cors.learnRoutes(r)
	return r
}

// writeJSON encodes body with the given status.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeOpenAIError writes an OpenAI-compatible JSON error response.
func writeOpenAIError(w http.ResponseWriter, status int, message, errType, code string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    errType,
			"code":    code,
		},
	})
}

// writeAdapterError maps an adapter error onto an HTTP error response.
func writeAdapterError(w http.ResponseWriter, err error) {
	var pf *semcache.ProviderFailure
	switch {
	case errors.Is(err, semcache.ErrInvalidModality), errors.Is(err, semcache.ErrUnsupportedFormat):
		writeOpenAIError(w, http.StatusBadRequest, err.Error(), "invalid_request_error", "invalid_request")
	case errors.Is(err, semcache.ErrNotSupported):
		writeOpenAIError(w, http.StatusNotImplemented, err.Error(), "invalid_request_error", "not_supported")
	case errors.As(err, &pf):
		writeOpenAIError(w, providerStatus(pf), pf.Message, "provider_error", pf.Code)
	default:
		writeOpenAIError(w, http.StatusInternalServerError, err.Error(), "server_error", "internal_error")
	}
}

// providerStatus passes upstream 4xx/5xx statuses through and maps
// transport failures to gateway statuses.
func providerStatus(pf *semcache.ProviderFailure) int {
	switch {
	case pf.Status >= 400:
		return pf.Status
	case pf.Code == providers.CodeRateLimited:
		return http.StatusTooManyRequests
	case pf.Code == providers.CodeCircuitOpen:
		return http.StatusServiceUnavailable
	case pf.Code == providers.CodeTimeout:
		return http.StatusGatewayTimeout
	case pf.Code == providers.CodeCanceled:
		return 499
	default:
		return http.StatusBadGateway
	}
}

// cacheHeader reports whether a response came from the cache.
func cacheHeader(w http.ResponseWriter, cached bool) {
	if cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
}
