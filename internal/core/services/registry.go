package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
	"github.com/custodia-labs/sercha-marks/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-marks/internal/core/ports/driving"
)

// Ensure ProviderRegistry implements driving.ProviderRegistry
var _ driving.ProviderRegistry = (*ProviderRegistry)(nil)

// ProviderRegistryConfig holds dependencies for ProviderRegistry.
type ProviderRegistryConfig struct {
	Store  driven.Store
	Logger *slog.Logger
}

// ProviderRegistry maps provider ids to their implementations.
type ProviderRegistry struct {
	store  driven.Store
	logger *slog.Logger

	mu          sync.RWMutex
	providers   map[string]driven.Provider
	order       []string
	initialized bool
}

// NewProviderRegistry creates an empty registry.
func NewProviderRegistry(cfg ProviderRegistryConfig) *ProviderRegistry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ProviderRegistry{
		store:     cfg.Store,
		logger:    logger,
		providers: make(map[string]driven.Provider),
	}
}

// Register adds a provider. Registering an id twice replaces the provider
// but keeps its original position.
func (r *ProviderRegistry) Register(p driven.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := p.Info().ID
	if _, exists := r.providers[id]; !exists {
		r.order = append(r.order, id)
	}
	r.providers[id] = p
}

// Initialize initializes every registered provider exactly once.
// A failing provider does not stop the others; all failures are joined.
func (r *ProviderRegistry) Initialize(ctx context.Context) error {
	r.mu.Lock()
	if r.initialized {
		r.mu.Unlock()
		return nil
	}
	r.initialized = true
	providers := r.orderedLocked()
	r.mu.Unlock()

	var errs []error
	for _, p := range providers {
		id := p.Info().ID
		if err := p.Initialize(ctx); err != nil {
			r.logger.Error("provider initialization failed", "provider_id", id, "error", err)
			errs = append(errs, fmt.Errorf("initialize %s: %w", id, err))
			continue
		}
		r.logger.Debug("provider initialized", "provider_id", id)
	}
	return errors.Join(errs...)
}

// GetProvider returns the provider registered under id.
func (r *ProviderRegistry) GetProvider(id string) (driven.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderNotFound, id)
	}
	return p, nil
}

// GetAllProviders returns providers in registration order.
func (r *ProviderRegistry) GetAllProviders() []driven.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.orderedLocked()
}

// GetProviderStatus derives the live status of a provider from its record
// and its authentication state.
func (r *ProviderRegistry) GetProviderStatus(ctx context.Context, id string) (*domain.ProviderStatus, error) {
	p, err := r.GetProvider(id)
	if err != nil {
		return nil, err
	}

	status := &domain.ProviderStatus{
		ProviderID:    id,
		Name:          p.Info().Name,
		Authenticated: p.IsAuthenticated(ctx),
	}

	record, err := r.store.GetProvider(ctx, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return status, nil
	case err != nil:
		return nil, fmt.Errorf("get provider record: %w", err)
	}

	status.Enabled = record.Config.Enabled
	status.FolderID = record.Config.FolderID
	status.LastSync = record.LastSync
	status.LastError = record.LastError
	status.ItemCount = len(record.Items)
	return status, nil
}

// Dispose releases every provider, logging failures.
func (r *ProviderRegistry) Dispose(ctx context.Context) {
	for _, p := range r.GetAllProviders() {
		if err := p.Dispose(ctx); err != nil {
			r.logger.Warn("provider dispose failed", "provider_id", p.Info().ID, "error", err)
		}
	}
}

func (r *ProviderRegistry) orderedLocked() []driven.Provider {
	out := make([]driven.Provider, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.providers[id])
	}
	return out
}
