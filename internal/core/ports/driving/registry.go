package driving

import (
	"context"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
	"github.com/custodia-labs/sercha-marks/internal/core/ports/driven"
)

// ProviderRegistry exposes every known provider and its live status
type ProviderRegistry interface {
	// GetProvider returns the provider registered under id
	GetProvider(id string) (driven.Provider, error)

	// GetAllProviders returns providers in registration order
	GetAllProviders() []driven.Provider

	// GetProviderStatus derives {authenticated, lastError, ...} for a provider
	GetProviderStatus(ctx context.Context, id string) (*domain.ProviderStatus, error)
}
