package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
	"github.com/custodia-labs/sercha-marks/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Provider = (*Base)(nil)

// FieldPersonalAccessToken is the config field holding a PAT. Once the token
// is validated it moves into the (encrypted) auth state and the field is cleared.
const FieldPersonalAccessToken = "personal_access_token"

// AuthService is the subset of the auth manager providers delegate to.
type AuthService interface {
	RegisterOAuthConfig(providerID string, cfg domain.OAuthConfig)
	Authenticate(ctx context.Context, providerID string) (*domain.AuthState, error)
	IsAuthenticated(ctx context.Context, providerID string) bool
	GetToken(ctx context.Context, providerID string) (string, error)
	RefreshToken(ctx context.Context, providerID string) (*domain.AuthState, error)
	RevokeAuth(ctx context.Context, providerID string) error
	SaveAuthState(ctx context.Context, state *domain.AuthState) error
}

// Source is the variant-specific half of a provider: how to reach one
// work-tracking service and turn its results into bookmark items.
type Source interface {
	Info() domain.ProviderInfo

	// DefaultConfig is written on first Initialize
	DefaultConfig() domain.ProviderConfig

	// OAuthConfig describes the interactive flow. An unconfigured value
	// leaves the provider PAT-only.
	OAuthConfig() domain.OAuthConfig

	// FetchUser returns the account a token belongs to
	FetchUser(ctx context.Context, cfg *domain.ProviderConfig, token string) (*domain.UserProfile, error)

	// Fetch runs every query and returns the concatenated results.
	// Overlapping queries may return the same item more than once.
	Fetch(ctx context.Context, cfg *domain.ProviderConfig, token string) ([]*domain.BookmarkItem, error)

	// Close releases idle connections
	Close() error
}

// Config holds dependencies for Base
type Config struct {
	Source Source
	Auth   AuthService
	Store  driven.Store
	Logger *slog.Logger
}

// Base implements driven.Provider on top of a Source. It owns everything
// that is the same for every variant: config persistence, PAT handling and
// delegation to the auth manager.
type Base struct {
	source Source
	auth   AuthService
	store  driven.Store
	logger *slog.Logger
}

// New creates a provider for source
func New(cfg Config) *Base {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Base{
		source: cfg.Source,
		auth:   cfg.Auth,
		store:  cfg.Store,
		logger: logger.With("provider_id", cfg.Source.Info().ID),
	}
}

func (b *Base) id() string {
	return b.source.Info().ID
}

// Info returns the provider identity
func (b *Base) Info() domain.ProviderInfo {
	return b.source.Info()
}

// Initialize creates the default record if none exists and registers the
// OAuth config. Safe to call repeatedly.
func (b *Base) Initialize(ctx context.Context) error {
	err := b.store.UpdateProvider(ctx, b.id(), func(rec *domain.ProviderRecord) (*domain.ProviderRecord, error) {
		if rec != nil {
			return rec, nil
		}
		b.logger.Info("creating default provider config")
		return domain.NewProviderRecord(b.id(), b.source.DefaultConfig()), nil
	})
	if err != nil {
		return fmt.Errorf("ensure default config: %w", err)
	}

	if oauth := b.source.OAuthConfig(); oauth.IsConfigured() {
		b.auth.RegisterOAuthConfig(b.id(), oauth)
	} else {
		b.logger.Debug("oauth not configured, personal access tokens only")
	}
	return nil
}

// Dispose releases provider-held resources
func (b *Base) Dispose(ctx context.Context) error {
	return b.source.Close()
}

// Authenticate connects the provider with a configured PAT, or runs the
// interactive OAuth flow when there is none.
func (b *Base) Authenticate(ctx context.Context) *domain.AuthResult {
	cfg, err := b.GetConfig(ctx)
	if err != nil {
		return &domain.AuthResult{Error: err.Error()}
	}

	if pat := cfg.String(FieldPersonalAccessToken); pat != "" {
		return b.authenticatePAT(ctx, cfg, pat)
	}

	state, err := b.auth.Authenticate(ctx, b.id())
	if err != nil {
		if domain.IsCancelled(err) {
			b.logger.Info("authentication cancelled")
		} else {
			b.logger.Warn("authentication failed", "error", err)
		}
		return &domain.AuthResult{Error: err.Error(), Cancelled: domain.IsCancelled(err)}
	}

	user, err := b.source.FetchUser(ctx, cfg, state.Tokens.AccessToken)
	if err != nil {
		b.logger.Warn("failed to fetch user profile", "error", err)
	} else {
		state.User = user
		if err := b.auth.SaveAuthState(ctx, state); err != nil {
			return &domain.AuthResult{Error: err.Error()}
		}
	}

	b.logger.Info("authenticated", "method", "oauth")
	return &domain.AuthResult{Success: true, Token: state.Tokens.AccessToken, User: state.User}
}

func (b *Base) authenticatePAT(ctx context.Context, cfg *domain.ProviderConfig, pat string) *domain.AuthResult {
	user, err := b.source.FetchUser(ctx, cfg, pat)
	if err != nil {
		b.logger.Warn("personal access token rejected", "error", err)
		return &domain.AuthResult{Error: err.Error()}
	}

	state := domain.NewAuthState(b.id(), &domain.Tokens{
		AccessToken: pat,
		TokenType:   "Bearer",
		ExpiresAt:   domain.PATExpiry(),
	}, user)
	if err := b.auth.SaveAuthState(ctx, state); err != nil {
		return &domain.AuthResult{Error: err.Error()}
	}

	if _, err := b.SetConfig(ctx, domain.ConfigPatch{Fields: map[string]any{FieldPersonalAccessToken: nil}}); err != nil {
		b.logger.Warn("failed to clear personal access token from config", "error", err)
	}

	b.logger.Info("authenticated", "method", "personal_access_token", "login", user.Login)
	return &domain.AuthResult{Success: true, Token: pat, User: user}
}

// IsAuthenticated reports whether a usable token exists
func (b *Base) IsAuthenticated(ctx context.Context) bool {
	return b.auth.IsAuthenticated(ctx, b.id())
}

// GetToken returns a valid access token
func (b *Base) GetToken(ctx context.Context) (string, error) {
	return b.auth.GetToken(ctx, b.id())
}

// RefreshToken forces a token refresh
func (b *Base) RefreshToken(ctx context.Context) error {
	_, err := b.auth.RefreshToken(ctx, b.id())
	return err
}

// RevokeAuth disconnects the provider. Config and snapshot are kept.
func (b *Base) RevokeAuth(ctx context.Context) error {
	return b.auth.RevokeAuth(ctx, b.id())
}

// FetchItems fetches every query, deduplicates by item id and returns the result.
func (b *Base) FetchItems(ctx context.Context) ([]*domain.BookmarkItem, error) {
	token, err := b.auth.GetToken(ctx, b.id())
	if err != nil {
		var authErr *domain.AuthenticationError
		if errors.As(err, &authErr) {
			return nil, err
		}
		return nil, domain.NewAuthenticationError(b.id(), err)
	}

	cfg, err := b.GetConfig(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := b.source.Fetch(ctx, cfg, token)
	if err != nil {
		return nil, err
	}

	items, duplicates := Dedup(raw)
	if duplicates > 0 {
		b.logger.Debug("dropped duplicate items across queries", "duplicates", duplicates)
	}
	return items, nil
}

// GetConfig returns the stored config, or the default if none was saved yet
func (b *Base) GetConfig(ctx context.Context) (*domain.ProviderConfig, error) {
	rec, err := b.store.GetProvider(ctx, b.id())
	if errors.Is(err, domain.ErrNotFound) {
		cfg := b.source.DefaultConfig()
		return cfg.Clone(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get config: %w", err)
	}
	return rec.Config.Clone(), nil
}

// SetConfig merges patch into the stored config in one atomic update
func (b *Base) SetConfig(ctx context.Context, patch domain.ConfigPatch) (*domain.ProviderConfig, error) {
	var merged *domain.ProviderConfig
	err := b.store.UpdateProvider(ctx, b.id(), func(rec *domain.ProviderRecord) (*domain.ProviderRecord, error) {
		if rec == nil {
			rec = domain.NewProviderRecord(b.id(), b.source.DefaultConfig())
		}
		rec.Config.Apply(patch)
		merged = rec.Config.Clone()
		return rec, nil
	})
	if err != nil {
		return nil, fmt.Errorf("set config: %w", err)
	}
	return merged, nil
}

// Dedup drops items whose (providerId, id) was already seen, keeping the first
// occurrence and the original order. It returns how many were dropped.
func Dedup(items []*domain.BookmarkItem) ([]*domain.BookmarkItem, int) {
	seen := make(map[domain.ItemKey]struct{}, len(items))
	out := make([]*domain.BookmarkItem, 0, len(items))
	for _, item := range items {
		key := item.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out, len(items) - len(out)
}
