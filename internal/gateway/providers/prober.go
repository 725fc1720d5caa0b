package providers

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// probeTimeout bounds each individual health check so one hung backend
// cannot stall the probe cycle.
const probeTimeout = 5 * time.Second

// Prober refreshes provider liveness on a fixed interval so requests never
// pay for a health check. Overridden providers are skipped. One cycle
// probes each provider once, sequentially, with a per-probe timeout.
type Prober struct {
	registry *Registry
	interval time.Duration

	mu     sync.Mutex
	ticker *time.Ticker
	stop   chan struct{}
	done   sync.WaitGroup

	logger *slog.Logger
}

// NewProber creates a liveness prober over a registry.
func NewProber(registry *Registry, interval time.Duration) *Prober {
	return &Prober{
		registry: registry,
		interval: interval,
		logger:   slog.Default().With("component", "prober"),
	}
}

// Start launches the background probe loop, beginning with an immediate
// cycle so availability is accurate before the first tick. Idempotent.
func (p *Prober) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ticker != nil {
		return
	}

	p.stop = make(chan struct{})
	p.ticker = time.NewTicker(p.interval)

	p.done.Add(1)
	go p.loop()

	p.logger.Info("liveness prober started", "interval", p.interval)
}

// Stop terminates the probe loop and waits for it to finish. Idempotent.
func (p *Prober) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ticker == nil {
		return
	}

	close(p.stop)
	p.ticker.Stop()
	p.done.Wait()

	p.ticker = nil
	p.logger.Info("liveness prober stopped")
}

func (p *Prober) loop() {
	defer p.done.Done()

	p.ProbeAll(context.Background())

	for {
		select {
		case <-p.ticker.C:
			p.ProbeAll(context.Background())
		case <-p.stop:
			return
		}
	}
}

// ProbeAll runs one probe cycle, updating cached availability for every
// non-overridden provider.
func (p *Prober) ProbeAll(ctx context.Context) {
	for _, reg := range p.registry.snapshot() {
		reg.mu.RLock()
		skip := reg.overridden
		reg.mu.RUnlock()
		if skip {
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		healthy := reg.transport.HealthCheck(probeCtx)
		cancel()

		reg.setAvailable(healthy)
		if !healthy {
			p.logger.Warn("provider failed liveness probe", "provider", reg.descriptor.Name)
		}
	}
}
