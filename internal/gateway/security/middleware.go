package security

import (
	"context"

	"github.com/promptwire/gateway/internal/gateway/transport"
)

// AllowLister derives provider allow-lists. Implemented by the provider
// registry.
type AllowLister interface {
	// AllNames lists every configured provider.
	AllNames() []string
	// HighTierNames lists providers trusted with sensitive content.
	HighTierNames() []string
}

// NewMiddleware classifies request content and attaches the derived
// provider allow-list before routing. Sensitive content restricts the
// allow-list to high-security-tier providers; downstream routing stays
// agnostic to why the list was restricted. Classification always runs
// before any provider call and fails closed.
func NewMiddleware(classifier *Classifier, providers AllowLister) transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			text := req.Prompt
			if req.Context != "" {
				text += "\n" + req.Context
			}

			analysis := classifier.Classify(text)
			req.Sensitive = analysis.Sensitive

			if analysis.Sensitive {
				req.AllowedProviders = providers.HighTierNames()
				// Prompt content is never logged for sensitive requests.
				classifier.logger.Info("sensitive content detected, routing restricted",
					"trace_id", req.TraceID,
					"score", analysis.Score,
					"categories", analysis.Categories,
					"allowed", len(req.AllowedProviders))
			} else {
				req.AllowedProviders = providers.AllNames()
			}

			return next.Handle(ctx, req)
		})
	}
}
