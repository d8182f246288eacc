package driven

import (
	"context"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
)

// Provider is an adapter for one external item source.
// Providers raise errors unchanged; they never retry on their own.
type Provider interface {
	// Info returns the provider identity
	Info() domain.ProviderInfo

	// Initialize ensures default config exists and registers OAuth config.
	// Idempotent.
	Initialize(ctx context.Context) error

	// Dispose releases provider-held resources
	Dispose(ctx context.Context) error

	// Authenticate connects the provider, via PAT if one is configured,
	// otherwise through the interactive OAuth flow. It never returns an error;
	// the result carries Success and Error.
	Authenticate(ctx context.Context) *domain.AuthResult

	// IsAuthenticated reports whether a usable token exists
	IsAuthenticated(ctx context.Context) bool

	// GetToken returns a valid access token, refreshing if needed
	GetToken(ctx context.Context) (string, error)

	// RefreshToken forces a token refresh
	RefreshToken(ctx context.Context) error

	// RevokeAuth disconnects the provider, keeping its config
	RevokeAuth(ctx context.Context) error

	// FetchItems fetches, deduplicates and maps all items for the provider
	FetchItems(ctx context.Context) ([]*domain.BookmarkItem, error)

	// GetConfig returns the provider's current configuration
	GetConfig(ctx context.Context) (*domain.ProviderConfig, error)

	// SetConfig merges a partial update into the stored configuration
	SetConfig(ctx context.Context, patch domain.ConfigPatch) (*domain.ProviderConfig, error)
}
