// Package httpapi exposes the gateway over HTTP: one query endpoint and
// the administrative surface for cache, rate-limit, classifier, and
// provider operations.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/promptwire/gateway/internal/gateway"
)

// requestTimeout bounds one HTTP request end to end, above any single
// provider timeout plus the fallback attempt.
const requestTimeout = 120 * time.Second

// NewRouter builds the chi router for a gateway instance.
func NewRouter(gw *gateway.Gateway) http.Handler {
	h := &handlers{gw: gw}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(requestTimeout))

	r.Get("/health", h.health)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/query", h.query)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Get("/cache/stats", h.cacheStats)
		r.Delete("/cache", h.clearCache)

		r.Route("/ratelimit", func(r chi.Router) {
			r.Get("/stats", h.rateLimitStats)
			r.Post("/reset", h.resetRateLimit)
			r.Get("/{caller}", h.rateLimitStatus)
			r.Put("/{caller}/rule", h.setRateLimitRule)
			r.Delete("/{caller}/rule", h.removeRateLimitRule)
		})

		r.Route("/security", func(r chi.Router) {
			r.Get("/keywords", h.keywords)
			r.Put("/keywords", h.updateKeywords)
		})

		r.Route("/providers", func(r chi.Router) {
			r.Get("/", h.listProviders)
			r.Put("/{name}/availability", h.setProviderAvailability)
			r.Delete("/{name}/availability", h.clearProviderAvailability)
		})
	})

	return r
}
