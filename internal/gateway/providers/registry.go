package providers

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	gwerrors "github.com/promptwire/gateway/internal/gateway/errors"
)

// registered pairs a descriptor and transport with runtime liveness.
type registered struct {
	descriptor Descriptor
	transport  Transport

	// mu guards the availability fields below.
	mu sync.RWMutex
	// available is the cached liveness verdict, refreshed by the prober
	// or cleared by the router after an execution failure.
	available bool
	// overridden pins availability to its current value, ignoring probes.
	// Used operationally to force-disable a misbehaving provider.
	overridden bool
}

func (r *registered) setAvailable(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.overridden {
		return
	}
	r.available = v
}

func (r *registered) isAvailable() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.available
}

// ProviderStatus is the admin-surface view of one provider.
type ProviderStatus struct {
	Name         string       `json:"name"`
	Class        Class        `json:"type"`
	SecurityTier SecurityTier `json:"security_tier"`
	CostPerToken float64      `json:"cost_per_token"`
	DefaultModel string       `json:"default_model"`
	Available    bool         `json:"available"`
	Overridden   bool         `json:"overridden"`
}

// Registry holds the configured providers. The set is fixed after startup;
// only liveness and override flags change at runtime.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*registered
	logger    *slog.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]*registered),
		logger:    slog.Default().With("component", "providers"),
	}
}

// Register adds a provider. New providers start available; the first probe
// cycle corrects that if the backend is down.
func (r *Registry) Register(desc Descriptor, transport Transport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[desc.Name]; exists {
		return fmt.Errorf("provider %s already registered", desc.Name)
	}

	r.providers[desc.Name] = &registered{
		descriptor: desc,
		transport:  transport,
		available:  true,
	}
	r.logger.Info("provider registered",
		"provider", desc.Name,
		"type", desc.Class,
		"tier", desc.SecurityTier)
	return nil
}

// get returns the registration for a name.
func (r *Registry) get(name string) (*registered, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", gwerrors.ErrUnknownProvider, name)
	}
	return reg, nil
}

// AllNames lists every registered provider name, sorted for determinism.
func (r *Registry) AllNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HighTierNames lists providers with a high security tier. This is the
// allow-list for sensitive-classified requests.
func (r *Registry) HighTierNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name, reg := range r.providers {
		if reg.descriptor.SecurityTier == TierHigh {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// List reports the status of every provider for the admin surface.
func (r *Registry) List() []ProviderStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ProviderStatus, 0, len(r.providers))
	for _, reg := range r.providers {
		reg.mu.RLock()
		out = append(out, ProviderStatus{
			Name:         reg.descriptor.Name,
			Class:        reg.descriptor.Class,
			SecurityTier: reg.descriptor.SecurityTier,
			CostPerToken: reg.descriptor.CostPerToken,
			DefaultModel: reg.descriptor.DefaultModel,
			Available:    reg.available,
			Overridden:   reg.overridden,
		})
		reg.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetOverride pins a provider's availability, ignoring probe results until
// the override is cleared.
func (r *Registry) SetOverride(name string, available bool) error {
	reg, err := r.get(name)
	if err != nil {
		return err
	}

	reg.mu.Lock()
	reg.available = available
	reg.overridden = true
	reg.mu.Unlock()

	r.logger.Info("provider availability overridden", "provider", name, "available", available)
	return nil
}

// ClearOverride returns a provider to probe-driven availability.
func (r *Registry) ClearOverride(name string) error {
	reg, err := r.get(name)
	if err != nil {
		return err
	}

	reg.mu.Lock()
	reg.overridden = false
	reg.mu.Unlock()

	r.logger.Info("provider availability override cleared", "provider", name)
	return nil
}

// markUnavailable records an execution failure; the next probe cycle may
// restore the provider.
func (r *Registry) markUnavailable(name string) {
	if reg, err := r.get(name); err == nil {
		reg.setAvailable(false)
	}
}

// snapshot returns all registrations for the prober.
func (r *Registry) snapshot() []*registered {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*registered, 0, len(r.providers))
	for _, reg := range r.providers {
		out = append(out, reg)
	}
	return out
}
