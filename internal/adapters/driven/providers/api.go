package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
)

// APIClient performs authenticated JSON GETs against a source API and maps
// failures onto the domain error taxonomy. It never retries.
type APIClient struct {
	ProviderID string
	HTTP       *http.Client
	// Headers are added to every request
	Headers map[string]string
}

// NewAPIClient creates an API client. httpClient may be nil.
func NewAPIClient(providerID string, httpClient *http.Client, headers map[string]string) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &APIClient{ProviderID: providerID, HTTP: httpClient, Headers: headers}
}

// GetJSON fetches url with a bearer token and decodes the body into out.
// 401 becomes an AuthenticationError; any other failure a NetworkError.
func (c *APIClient) GetJSON(ctx context.Context, op, url, token string, out any) (http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &domain.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, domain.NewAuthenticationError(c.ProviderID, errors.New("token rejected by remote"))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &domain.NetworkError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(string(body))),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, &domain.NetworkError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return resp.Header, nil
}

// Close releases idle connections
func (c *APIClient) Close() error {
	c.HTTP.CloseIdleConnections()
	return nil
}
