package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/promptwire/gateway/internal/gateway"
	"github.com/promptwire/gateway/internal/gateway/configuration"
	gwerrors "github.com/promptwire/gateway/internal/gateway/errors"
	"github.com/promptwire/gateway/internal/gateway/transport"
)

type handlers struct {
	gw *gateway.Gateway
}

// queryRequest is the inbound JSON shape. Pointer fields distinguish
// "absent" from legitimate zero values when applying defaults.
type queryRequest struct {
	Prompt       string   `json:"prompt"`
	Provider     string   `json:"provider,omitempty"`
	Model        string   `json:"model,omitempty"`
	Context      string   `json:"context,omitempty"`
	UserID       string   `json:"user_id,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    *int     `json:"max_tokens,omitempty"`
	ForceRefresh bool     `json:"force_refresh,omitempty"`
}

// queryResponse is the outbound JSON shape.
type queryResponse struct {
	Response       string  `json:"response"`
	Provider       string  `json:"provider"`
	TokensUsed     int64   `json:"tokens_used"`
	ProcessingTime float64 `json:"processing_time"`
	Cost           float64 `json:"cost,omitempty"`
	Cached         bool    `json:"cached"`
}

// errorResponse carries the structured rejection reason and, for rate
// limiting, a retry-after hint in seconds.
type errorResponse struct {
	Error      string `json:"error"`
	Reason     string `json:"reason"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

func (h *handlers) query(w http.ResponseWriter, r *http.Request) {
	var in queryRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:  "malformed request body",
			Reason: string(gwerrors.ReasonInvalidRequest),
		})
		return
	}

	req := &transport.Request{
		Prompt:       in.Prompt,
		Provider:     in.Provider,
		Model:        in.Model,
		Context:      in.Context,
		CallerID:     in.UserID,
		Temperature:  transport.DefaultTemperature,
		ForceRefresh: in.ForceRefresh,
	}
	if in.Temperature != nil {
		// An explicit zero is honored; only an absent field is defaulted.
		req.Temperature = *in.Temperature
	}
	if in.MaxTokens != nil {
		req.MaxTokens = *in.MaxTokens
	}

	resp, err := h.gw.Handle(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Response:       resp.Content,
		Provider:       resp.Provider,
		TokensUsed:     resp.TokensUsed,
		ProcessingTime: resp.ProcessingTime.Seconds(),
		Cost:           resp.Cost,
		Cached:         resp.Cached,
	})
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"cache":      h.gw.CacheStats(),
		"rate_limit": h.gw.RateLimitStats(),
		"providers":  h.gw.ListProviders(),
	})
}

func (h *handlers) cacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.gw.CacheStats())
}

func (h *handlers) clearCache(w http.ResponseWriter, r *http.Request) {
	removed := h.gw.ClearCache(r.URL.Query().Get("pattern"))
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (h *handlers) rateLimitStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.gw.RateLimitStats())
}

func (h *handlers) rateLimitStatus(w http.ResponseWriter, r *http.Request) {
	caller := chi.URLParam(r, "caller")
	writeJSON(w, http.StatusOK, h.gw.RateLimitStatus(caller))
}

func (h *handlers) setRateLimitRule(w http.ResponseWriter, r *http.Request) {
	caller := chi.URLParam(r, "caller")

	var rule configuration.RuleConfig
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:  "malformed rule body",
			Reason: string(gwerrors.ReasonInvalidRequest),
		})
		return
	}

	h.gw.SetRateLimitOverride(caller, rule)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) removeRateLimitRule(w http.ResponseWriter, r *http.Request) {
	h.gw.RemoveRateLimitOverride(chi.URLParam(r, "caller"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) resetRateLimit(w http.ResponseWriter, r *http.Request) {
	h.gw.ResetRateLimit(r.URL.Query().Get("caller"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) keywords(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.gw.Keywords())
}

func (h *handlers) updateKeywords(w http.ResponseWriter, r *http.Request) {
	var in map[string][]string
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:  "malformed keywords body",
			Reason: string(gwerrors.ReasonInvalidRequest),
		})
		return
	}

	for category, terms := range in {
		h.gw.UpdateKeywords(category, terms)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) listProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.gw.ListProviders())
}

func (h *handlers) setProviderAvailability(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var in struct {
		Available bool `json:"available"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:  "malformed availability body",
			Reason: string(gwerrors.ReasonInvalidRequest),
		})
		return
	}

	if err := h.gw.SetProviderOverride(name, in.Available); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) clearProviderAvailability(w http.ResponseWriter, r *http.Request) {
	if err := h.gw.ClearProviderOverride(chi.URLParam(r, "name")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError maps the gateway error taxonomy onto HTTP statuses:
// rate-limited 429, no provider 503, provider failure 502, validation 400.
func writeError(w http.ResponseWriter, err error) {
	reason := gwerrors.ReasonFor(err)

	status := http.StatusInternalServerError
	switch reason {
	case gwerrors.ReasonRateLimited:
		status = http.StatusTooManyRequests
	case gwerrors.ReasonNoProvider:
		status = http.StatusServiceUnavailable
	case gwerrors.ReasonProviderFailure:
		status = http.StatusBadGateway
	case gwerrors.ReasonInvalidRequest:
		status = http.StatusBadRequest
	}

	out := errorResponse{
		Error:  err.Error(),
		Reason: string(reason),
	}
	if retry := gwerrors.GetRetryAfter(err); retry > 0 {
		out.RetryAfter = retry
		w.Header().Set("Retry-After", strconv.Itoa(retry))
	}

	writeJSON(w, status, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
