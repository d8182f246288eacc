package driven

import (
	"context"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
)

// Store is the durable key-value persistence for settings and per-provider state.
// Each provider's record and auth state live under that provider's own key, so
// writes for different providers never contend.
type Store interface {
	// GetSettings returns the stored settings, or defaults if none were saved
	GetSettings(ctx context.Context) (*domain.Settings, error)

	// SaveSettings persists settings
	SaveSettings(ctx context.Context, settings *domain.Settings) error

	// GetProvider retrieves a provider record. Returns domain.ErrNotFound if absent.
	GetProvider(ctx context.Context, id string) (*domain.ProviderRecord, error)

	// SaveProvider replaces a provider record
	SaveProvider(ctx context.Context, record *domain.ProviderRecord) error

	// UpdateProvider atomically reads, modifies and writes one provider record.
	// fn receives domain.ErrNotFound-free access: a missing record is passed as nil.
	// If fn returns an error nothing is written.
	UpdateProvider(ctx context.Context, id string, fn func(record *domain.ProviderRecord) (*domain.ProviderRecord, error)) error

	// ListProviders returns all provider records
	ListProviders(ctx context.Context) ([]*domain.ProviderRecord, error)

	// GetAuth retrieves a provider's auth state. Returns domain.ErrNotFound if absent.
	GetAuth(ctx context.Context, providerID string) (*domain.AuthState, error)

	// SaveAuth persists a provider's auth state
	SaveAuth(ctx context.Context, state *domain.AuthState) error

	// DeleteAuth clears a provider's auth state. Safe to call when absent.
	DeleteAuth(ctx context.Context, providerID string) error
}
