package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
)

// AuthLauncher runs the interactive part of an authorization flow.
// Launch presents authURL to the user and blocks until the source redirects
// back, returning the full redirect URL. Implementations return a cancelled
// domain.AuthenticationError when the user abandons the flow.
type AuthLauncher interface {
	Launch(ctx context.Context, providerID, authURL, redirectURL string) (string, error)
}

// OAuthClient talks to a source's token endpoints.
type OAuthClient interface {
	// ExchangeCode exchanges an authorization code for tokens
	ExchangeCode(ctx context.Context, cfg *domain.OAuthConfig, code, codeVerifier string) (*domain.OAuthToken, error)

	// RefreshToken exchanges a refresh token for a new access token
	RefreshToken(ctx context.Context, cfg *domain.OAuthConfig, refreshToken string) (*domain.OAuthToken, error)

	// RevokeToken revokes a token at cfg.RevokeURL
	RevokeToken(ctx context.Context, cfg *domain.OAuthConfig, token string) error
}

// StateSigner issues and verifies the OAuth state parameter.
type StateSigner interface {
	// Sign returns an opaque state bound to providerID that expires after ttl
	Sign(providerID string, ttl time.Duration) (string, error)

	// Verify checks state and returns the provider id it was issued for
	Verify(state string) (string, error)
}
