package domain

import "time"

// Tokens holds the credentials issued by a source
type Tokens struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	TokenType    string    `json:"tokenType"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// IsExpired checks if the access token has expired
func (t *Tokens) IsExpired() bool {
	return !time.Now().Before(t.ExpiresAt)
}

// NeedsRefresh reports whether the token expires within skew.
func (t *Tokens) NeedsRefresh(skew time.Duration) bool {
	return !time.Now().Add(skew).Before(t.ExpiresAt)
}

// UserProfile is the account the provider is connected as
type UserProfile struct {
	ID        string `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// AuthState is the persisted authentication state of one provider.
// Tokens is present iff Authenticated is true.
type AuthState struct {
	ProviderID    string       `json:"providerId"`
	Authenticated bool         `json:"authenticated"`
	Tokens        *Tokens      `json:"tokens,omitempty"`
	User          *UserProfile `json:"user,omitempty"`
	LastAuth      time.Time    `json:"lastAuth"`
}

// NewAuthState builds an authenticated state for the given tokens.
func NewAuthState(providerID string, tokens *Tokens, user *UserProfile) *AuthState {
	return &AuthState{
		ProviderID:    providerID,
		Authenticated: tokens != nil,
		Tokens:        tokens,
		User:          user,
		LastAuth:      time.Now(),
	}
}

// Valid reports whether the state satisfies the tokens/authenticated invariant.
func (s *AuthState) Valid() bool {
	if s == nil {
		return false
	}
	return s.Authenticated == (s.Tokens != nil)
}

// PATExpiry is the expiry given to static personal access tokens.
func PATExpiry() time.Time {
	return time.Now().AddDate(100, 0, 0)
}

// AuthResult is what a provider returns from Authenticate. It never carries a
// Go error; callers inspect Success.
type AuthResult struct {
	Success bool         `json:"success"`
	Token   string       `json:"token,omitempty"`
	User    *UserProfile `json:"user,omitempty"`
	Error   string       `json:"error,omitempty"`
	// Cancelled is set when the user abandoned the interactive flow.
	Cancelled bool `json:"cancelled,omitempty"`
}

// OAuthConfig describes how to run the authorization flow for a provider
type OAuthConfig struct {
	AuthURL      string   `json:"authUrl"`
	TokenURL     string   `json:"tokenUrl"`
	RevokeURL    string   `json:"revokeUrl,omitempty"`
	ClientID     string   `json:"clientId"`
	ClientSecret string   `json:"-"`
	RedirectURL  string   `json:"redirectUrl"`
	Scopes       []string `json:"scopes"`
}

// IsConfigured checks that the flow has everything it needs
func (c *OAuthConfig) IsConfigured() bool {
	return c != nil && c.AuthURL != "" && c.TokenURL != "" && c.ClientID != "" && c.RedirectURL != ""
}

// OAuthToken is the token endpoint response
type OAuthToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int // seconds, 0 means no expiry was given
	TokenType    string
	Scope        string
}

// ToTokens converts a token response into persisted Tokens.
// Tokens without expires_in are treated like PATs.
func (t *OAuthToken) ToTokens() *Tokens {
	expiresAt := PATExpiry()
	if t.ExpiresIn > 0 {
		expiresAt = time.Now().Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	tokenType := t.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &Tokens{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    tokenType,
		ExpiresAt:    expiresAt,
	}
}
