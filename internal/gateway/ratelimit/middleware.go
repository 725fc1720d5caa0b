package ratelimit

import (
	"context"

	"github.com/promptwire/gateway/internal/gateway/transport"
)

// NewMiddleware wraps a handler with admission control. The request is
// admitted (and counted) before anything downstream runs; token usage is
// recorded after the response regardless of downstream success, so a
// failed provider call still consumes the caller's quota.
func NewMiddleware(limiter *Limiter) transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if err := limiter.Admit(ctx, req.CallerID, req.Provider, req.MaxTokens); err != nil {
				return nil, err
			}

			resp, err := next.Handle(ctx, req)
			if resp != nil && !resp.Cached {
				// Cache hits consumed no provider tokens.
				limiter.Record(req.CallerID, int(resp.TokensUsed))
			}

			return resp, err
		})
	}
}
