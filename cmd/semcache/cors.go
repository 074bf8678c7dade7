package main

import (
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
)

// corsPolicy answers browser preflights for the OpenAI-compatible routes.
// Allowed methods are learned from the router, so a preflight for
// /v1/moderations advertises POST and /health advertises GET.
type corsPolicy struct {
	allowAny bool
	origins  map[string]struct{}
	methods  map[string]string
}

// newCORSPolicy builds a policy for origins. With no origins every origin is
// allowed.
func newCORSPolicy(origins []string) *corsPolicy {
	p := &corsPolicy{
		origins: make(map[string]struct{}, len(origins)),
		methods: make(map[string]string),
	}
	for _, value := range origins {
		if origin := strings.TrimSpace(value); origin != "" {
			p.origins[origin] = struct{}{}
		}
	}
	p.allowAny = len(p.origins) == 0
	return p
}

// learnRoutes records the methods registered for every route of r. It must
// run after all routes are mounted.
func (p *corsPolicy) learnRoutes(r chi.Routes) {
	byRoute := make(map[string][]string)
	// The walk func never fails, so neither does Walk.
	_ = chi.Walk(r, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		byRoute[route] = append(byRoute[route], method)
		return nil
	})
	for route, methods := range byRoute {
		methods = append(methods, http.MethodOptions)
		slices.Sort(methods)
		p.methods[route] = strings.Join(slices.Compact(methods), ", ")
	}
}

func (p *corsPolicy) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		if p.allowAny {
			h.Set("Access-Control-Allow-Origin", "*")
		} else if origin := r.Header.Get("Origin"); origin != "" {
			h.Add("Vary", "Origin")
			if _, ok := p.origins[origin]; ok {
				h.Set("Access-Control-Allow-Origin", origin)
			}
		}
		h.Set("Access-Control-Expose-Headers", "X-Cache, X-Request-ID")

		if r.Method != http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		methods, ok := p.methods[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h.Set("Access-Control-Allow-Methods", methods)
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		h.Set("Access-Control-Max-Age", "86400")
		w.WriteHeader(http.StatusNoContent)
	})
}
