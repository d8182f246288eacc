package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
	"github.com/custodia-labs/sercha-marks/internal/core/ports/driven"
)

const (
	// defaultRefreshSkew refreshes tokens this long before they expire
	defaultRefreshSkew = 60 * time.Second

	// stateTTL bounds how long the user has to finish the interactive flow
	stateTTL = 10 * time.Minute
)

// AuthManagerConfig holds dependencies for AuthManager.
type AuthManagerConfig struct {
	Store    driven.Store
	Client   driven.OAuthClient
	Launcher driven.AuthLauncher
	Signer   driven.StateSigner
	Logger   *slog.Logger

	// RefreshSkew is how early before expiry GetToken refreshes (default: 60s)
	RefreshSkew time.Duration
}

// AuthManager runs the interactive authorization flow and keeps tokens fresh.
// It knows nothing about provider business data.
type AuthManager struct {
	store       driven.Store
	client      driven.OAuthClient
	launcher    driven.AuthLauncher
	signer      driven.StateSigner
	logger      *slog.Logger
	refreshSkew time.Duration

	mu      sync.RWMutex
	configs map[string]*domain.OAuthConfig

	// at most one authorization flow and one refresh in flight per provider
	flows     singleflight.Group
	refreshes singleflight.Group
}

// NewAuthManager creates a new auth manager.
func NewAuthManager(cfg AuthManagerConfig) *AuthManager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	skew := cfg.RefreshSkew
	if skew == 0 {
		skew = defaultRefreshSkew
	}

	return &AuthManager{
		store:       cfg.Store,
		client:      cfg.Client,
		launcher:    cfg.Launcher,
		signer:      cfg.Signer,
		logger:      logger,
		refreshSkew: skew,
		configs:     make(map[string]*domain.OAuthConfig),
	}
}

// RegisterOAuthConfig stores the OAuth configuration for a provider.
// Last write wins.
func (m *AuthManager) RegisterOAuthConfig(providerID string, cfg domain.OAuthConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := cfg
	c.Scopes = append([]string(nil), cfg.Scopes...)
	m.configs[providerID] = &c
}

// OAuthConfig returns the registered configuration, or nil.
func (m *AuthManager) OAuthConfig(providerID string) *domain.OAuthConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.configs[providerID]
}

// Authenticate runs the interactive flow for a provider and persists the
// resulting AuthState. Concurrent calls for the same provider share one flow.
// The shared flow outlives any single caller; a caller whose ctx ends gets an
// AuthenticationError while the others keep waiting.
func (m *AuthManager) Authenticate(ctx context.Context, providerID string) (*domain.AuthState, error) {
	flowCtx := context.WithoutCancel(ctx)
	ch := m.flows.DoChan(providerID, func() (any, error) {
		return m.runFlow(flowCtx, providerID)
	})

	select {
	case <-ctx.Done():
		return nil, domain.NewAuthenticationError(providerID, ctx.Err())
	case res := <-ch:
		if res.Shared {
			m.logger.Debug("joined in-flight authorization", "provider_id", providerID)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.AuthState), nil
	}
}

func (m *AuthManager) runFlow(ctx context.Context, providerID string) (*domain.AuthState, error) {
	cfg := m.OAuthConfig(providerID)
	if !cfg.IsConfigured() {
		return nil, domain.NewConfigurationError(providerID, domain.ErrOAuthNotConfigured.Error())
	}

	state, err := m.signer.Sign(providerID, stateTTL)
	if err != nil {
		return nil, fmt.Errorf("sign state: %w", err)
	}

	codeVerifier, err := generateRandomString(64)
	if err != nil {
		return nil, fmt.Errorf("generate code verifier: %w", err)
	}

	authURL, err := buildAuthURL(cfg, state, generateCodeChallenge(codeVerifier))
	if err != nil {
		return nil, fmt.Errorf("build auth url: %w", err)
	}

	m.logger.Info("starting authorization flow", "provider_id", providerID)

	redirect, err := m.launcher.Launch(ctx, providerID, authURL, cfg.RedirectURL)
	if err != nil {
		var authErr *domain.AuthenticationError
		if errors.As(err, &authErr) {
			return nil, err
		}
		return nil, domain.NewAuthenticationError(providerID, fmt.Errorf("launch: %w", err))
	}

	code, err := m.parseRedirect(providerID, redirect)
	if err != nil {
		return nil, err
	}

	token, err := m.client.ExchangeCode(ctx, cfg, code, codeVerifier)
	if err != nil {
		return nil, domain.NewAuthenticationError(providerID, fmt.Errorf("exchange code: %w", err))
	}

	authState := domain.NewAuthState(providerID, token.ToTokens(), nil)
	if err := m.store.SaveAuth(ctx, authState); err != nil {
		return nil, fmt.Errorf("save auth state: %w", err)
	}

	m.logger.Info("authorization completed", "provider_id", providerID)
	return authState, nil
}

// parseRedirect validates the redirect and extracts the authorization code.
func (m *AuthManager) parseRedirect(providerID, redirect string) (string, error) {
	u, err := url.Parse(redirect)
	if err != nil {
		return "", domain.NewAuthenticationError(providerID, fmt.Errorf("parse redirect: %w", err))
	}
	q := u.Query()

	if oauthErr := q.Get("error"); oauthErr != "" {
		if oauthErr == "access_denied" {
			return "", &domain.AuthenticationError{ProviderID: providerID, Cancelled: true}
		}
		return "", domain.NewAuthenticationError(providerID,
			fmt.Errorf("oauth error: %s - %s", oauthErr, q.Get("error_description")))
	}

	issuedFor, err := m.signer.Verify(q.Get("state"))
	if err != nil || issuedFor != providerID {
		return "", domain.NewAuthenticationError(providerID, domain.ErrInvalidState)
	}

	code := q.Get("code")
	if code == "" {
		return "", domain.NewAuthenticationError(providerID, errors.New("redirect carried no authorization code"))
	}
	return code, nil
}

// RefreshToken exchanges the refresh credential for a new access token.
// On failure the persisted AuthState is cleared.
func (m *AuthManager) RefreshToken(ctx context.Context, providerID string) (*domain.AuthState, error) {
	refreshCtx := context.WithoutCancel(ctx)
	ch := m.refreshes.DoChan(providerID, func() (any, error) {
		return m.refresh(refreshCtx, providerID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.AuthState), nil
	}
}

func (m *AuthManager) refresh(ctx context.Context, providerID string) (*domain.AuthState, error) {
	current, err := m.loadAuth(ctx, providerID)
	if err != nil {
		return nil, err
	}

	if current.Tokens.RefreshToken == "" {
		m.clearAuth(ctx, providerID)
		return nil, domain.NewAuthenticationError(providerID, errors.New("no refresh token"))
	}

	cfg := m.OAuthConfig(providerID)
	if cfg == nil {
		return nil, domain.NewAuthenticationError(providerID, domain.ErrOAuthNotConfigured)
	}

	token, err := m.client.RefreshToken(ctx, cfg, current.Tokens.RefreshToken)
	if err != nil {
		m.logger.Warn("token refresh rejected, clearing auth state", "provider_id", providerID, "error", err)
		m.clearAuth(ctx, providerID)
		return nil, domain.NewAuthenticationError(providerID, fmt.Errorf("refresh token: %w", err))
	}

	tokens := token.ToTokens()
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = current.Tokens.RefreshToken
	}

	refreshed := domain.NewAuthState(providerID, tokens, current.User)
	if err := m.store.SaveAuth(ctx, refreshed); err != nil {
		return nil, fmt.Errorf("save auth state: %w", err)
	}

	m.logger.Debug("token refreshed", "provider_id", providerID, "expires_at", tokens.ExpiresAt)
	return refreshed, nil
}

// RevokeAuth tells the source to revoke the token when it supports revocation,
// then clears the persisted AuthState. Remote failures are logged, not returned.
func (m *AuthManager) RevokeAuth(ctx context.Context, providerID string) error {
	current, err := m.store.GetAuth(ctx, providerID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("get auth state: %w", err)
	}

	cfg := m.OAuthConfig(providerID)
	if current != nil && current.Tokens != nil && cfg != nil && cfg.RevokeURL != "" {
		if err := m.client.RevokeToken(ctx, cfg, current.Tokens.AccessToken); err != nil {
			m.logger.Warn("remote revocation failed", "provider_id", providerID, "error", err)
		}
	}

	if err := m.store.DeleteAuth(ctx, providerID); err != nil {
		return fmt.Errorf("delete auth state: %w", err)
	}
	m.logger.Info("provider disconnected", "provider_id", providerID)
	return nil
}

// IsAuthenticated reports whether a usable (or refreshable) token exists.
func (m *AuthManager) IsAuthenticated(ctx context.Context, providerID string) bool {
	current, err := m.loadAuth(ctx, providerID)
	if err != nil {
		return false
	}
	return !current.Tokens.IsExpired() || current.Tokens.RefreshToken != ""
}

// GetToken returns a valid access token, refreshing transparently when the
// stored token has expired or is about to.
func (m *AuthManager) GetToken(ctx context.Context, providerID string) (string, error) {
	current, err := m.loadAuth(ctx, providerID)
	if err != nil {
		return "", err
	}

	if !current.Tokens.NeedsRefresh(m.refreshSkew) {
		return current.Tokens.AccessToken, nil
	}

	if current.Tokens.RefreshToken == "" {
		if current.Tokens.IsExpired() {
			return "", domain.NewAuthenticationError(providerID, errors.New("token expired"))
		}
		return current.Tokens.AccessToken, nil
	}

	refreshed, err := m.RefreshToken(ctx, providerID)
	if err != nil {
		return "", err
	}
	return refreshed.Tokens.AccessToken, nil
}

// GetAuthState returns the persisted auth state for a provider.
func (m *AuthManager) GetAuthState(ctx context.Context, providerID string) (*domain.AuthState, error) {
	return m.store.GetAuth(ctx, providerID)
}

// SaveAuthState persists an externally built AuthState (PAT logins, profile enrichment).
func (m *AuthManager) SaveAuthState(ctx context.Context, state *domain.AuthState) error {
	if !state.Valid() || state.ProviderID == "" {
		return fmt.Errorf("%w: auth state violates tokens/authenticated invariant", domain.ErrInvalidInput)
	}
	return m.store.SaveAuth(ctx, state)
}

// loadAuth returns the auth state only if it is authenticated with tokens.
func (m *AuthManager) loadAuth(ctx context.Context, providerID string) (*domain.AuthState, error) {
	current, err := m.store.GetAuth(ctx, providerID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NewAuthenticationError(providerID, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get auth state: %w", err)
	}
	if !current.Authenticated || current.Tokens == nil {
		return nil, domain.NewAuthenticationError(providerID, nil)
	}
	return current, nil
}

func (m *AuthManager) clearAuth(ctx context.Context, providerID string) {
	if err := m.store.DeleteAuth(ctx, providerID); err != nil {
		m.logger.Warn("failed to clear auth state", "provider_id", providerID, "error", err)
	}
}

// buildAuthURL appends the authorization request parameters to cfg.AuthURL.
func buildAuthURL(cfg *domain.OAuthConfig, state, codeChallenge string) (string, error) {
	u, err := url.Parse(cfg.AuthURL)
	if err != nil {
		return "", err
	}
	params := u.Query()
	params.Set("client_id", cfg.ClientID)
	params.Set("redirect_uri", cfg.RedirectURL)
	params.Set("state", state)
	params.Set("response_type", "code")
	params.Set("code_challenge", codeChallenge)
	params.Set("code_challenge_method", "S256")
	if len(cfg.Scopes) > 0 {
		params.Set("scope", strings.Join(cfg.Scopes, " "))
	}
	u.RawQuery = params.Encode()
	return u.String(), nil
}

// generateRandomString generates a cryptographically secure random string.
func generateRandomString(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes)[:length], nil
}

// generateCodeChallenge creates a PKCE code challenge from a verifier (S256 method).
func generateCodeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}
