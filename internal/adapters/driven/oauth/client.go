package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
	"github.com/custodia-labs/sercha-marks/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.OAuthClient = (*Client)(nil)

// Client talks to OAuth2 token endpoints with form-encoded requests.
// It works for GitHub, GitLab and any RFC 6749 server that answers in JSON.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new OAuth client. httpClient may be nil.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{httpClient: httpClient}
}

// tokenResponse covers both success and error bodies. GitHub reports errors
// with a 200 status, so the error field is checked regardless of status.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

// ExchangeCode exchanges an authorization code for tokens.
func (c *Client) ExchangeCode(ctx context.Context, cfg *domain.OAuthConfig, code, codeVerifier string) (*domain.OAuthToken, error) {
	params := url.Values{
		"grant_type":   {"authorization_code"},
		"client_id":    {cfg.ClientID},
		"code":         {code},
		"redirect_uri": {cfg.RedirectURL},
	}
	if cfg.ClientSecret != "" {
		params.Set("client_secret", cfg.ClientSecret)
	}
	if codeVerifier != "" {
		params.Set("code_verifier", codeVerifier)
	}
	return c.tokenRequest(ctx, cfg.TokenURL, params, "token exchange")
}

// RefreshToken exchanges a refresh token for a new access token.
func (c *Client) RefreshToken(ctx context.Context, cfg *domain.OAuthConfig, refreshToken string) (*domain.OAuthToken, error) {
	params := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {cfg.ClientID},
		"refresh_token": {refreshToken},
	}
	if cfg.ClientSecret != "" {
		params.Set("client_secret", cfg.ClientSecret)
	}
	return c.tokenRequest(ctx, cfg.TokenURL, params, "token refresh")
}

// RevokeToken revokes a token per RFC 7009. A config without RevokeURL is a no-op.
func (c *Client) RevokeToken(ctx context.Context, cfg *domain.OAuthConfig, token string) error {
	if cfg.RevokeURL == "" {
		return nil
	}

	params := url.Values{
		"token":           {token},
		"token_type_hint": {"access_token"},
		"client_id":       {cfg.ClientID},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.RevokeURL, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if cfg.ClientSecret != "" {
		req.SetBasicAuth(cfg.ClientID, cfg.ClientSecret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.NetworkError{Op: "revoke", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &domain.NetworkError{
			Op:         "revoke",
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(string(body))),
		}
	}
	return nil
}

func (c *Client) tokenRequest(ctx context.Context, tokenURL string, params url.Values, op string) (*domain.OAuthToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.NetworkError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	var tokenResp tokenResponse
	decodeErr := json.Unmarshal(body, &tokenResp)

	if tokenResp.Error != "" {
		return nil, fmt.Errorf("%s failed: oauth error: %s - %s", op, tokenResp.Error, tokenResp.ErrorDesc)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &domain.NetworkError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(string(body))),
		}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("%s failed: response has no access_token", op)
	}

	return &domain.OAuthToken{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		TokenType:    tokenResp.TokenType,
		Scope:        tokenResp.Scope,
		ExpiresIn:    tokenResp.ExpiresIn,
	}, nil
}
