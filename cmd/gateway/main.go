// Command gateway runs the LLM request gateway: an HTTP service that
// mediates outbound LLM calls with rate limiting, response caching,
// content security classification, and cost-aware provider routing.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/promptwire/gateway/internal/gateway"
	"github.com/promptwire/gateway/internal/gateway/configuration"
	"github.com/promptwire/gateway/internal/gateway/httpapi"
	"github.com/promptwire/gateway/internal/gateway/providers"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := configuration.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	registry := providers.NewRegistry()
	for name, p := range cfg.Providers {
		desc := providers.Descriptor{
			Name:         name,
			Class:        providers.Class(p.Type),
			Endpoint:     p.Endpoint,
			DefaultModel: p.Model,
			Timeout:      p.Timeout(),
			CostPerToken: p.CostPerToken,
			SecurityTier: providers.SecurityTier(p.SecurityTier),
		}
		transport := providers.NewOpenAICompatTransport(p.Endpoint, p.APIKey)
		if err := registry.Register(desc, transport); err != nil {
			logger.Error("failed to register provider", "provider", name, "error", err)
			os.Exit(1)
		}
	}

	gw, err := gateway.New(cfg, registry)
	if err != nil {
		logger.Error("failed to build gateway", "error", err)
		os.Exit(1)
	}

	gw.Start()
	defer gw.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      httpapi.NewRouter(gw),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 150 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("gateway listening",
			"port", cfg.Server.Port,
			"env", cfg.Server.Env,
			"providers", len(cfg.Providers))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", "error", err)
	}
}
