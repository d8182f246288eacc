package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"

	httpadapter "github.com/custodia-labs/sercha-marks/internal/adapters/driving/http"
	"github.com/custodia-labs/sercha-marks/internal/config"
	"github.com/custodia-labs/sercha-marks/internal/core/ports/driving"
)

// controlClient sends control messages to a running daemon
type controlClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func newControlClient(cfg *config.Config) *controlClient {
	return &controlClient{
		baseURL: "http://" + net.JoinHostPort(cfg.HTTP.Host, strconv.Itoa(cfg.HTTP.Port)),
		token:   cfg.HTTP.ControlToken,
		// no client timeout: connect waits for the user to finish in the browser
		httpClient: &http.Client{},
	}
}

// Send posts req to the message endpoint. An unsuccessful response is
// returned as an error carrying the daemon's message.
func (c *controlClient) Send(ctx context.Context, req driving.Request) (*driving.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable at %s (is \"sercha-marks serve\" running?): %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr httpadapter.ErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("daemon returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("daemon returned %d", resp.StatusCode)
	}

	var out driving.Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !out.Success {
		if out.Auth != nil && out.Auth.Cancelled {
			return &out, errors.New("authentication cancelled")
		}
		return &out, errors.New(out.Error)
	}
	return &out, nil
}
