package cache

import (
	"context"

	"github.com/promptwire/gateway/internal/gateway/transport"
)

// NewMiddleware wraps a handler with fingerprint-based response caching.
// Hits short-circuit the rest of the pipeline; misses execute downstream
// and store the successful result. ForceRefresh skips the lookup but the
// fresh response is still stored for subsequent callers. Only successful
// responses are cached.
func NewMiddleware(store *Store) transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			fingerprint := transport.Fingerprint(req)

			if !req.ForceRefresh {
				if resp, ok := store.Lookup(fingerprint); ok {
					store.logger.Debug("cache hit",
						"trace_id", req.TraceID,
						"provider", resp.Provider)
					return resp, nil
				}
			}

			resp, err := next.Handle(ctx, req)
			if err != nil {
				return nil, err
			}

			if resp != nil {
				store.Store(fingerprint, resp, 0)
			}

			return resp, nil
		})
	}
}
