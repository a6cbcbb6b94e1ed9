// Package quantapp is a Go client for the quantapp backtest HTTP API.
package quantapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"quantapp/internal/engine"
	"quantapp/internal/httpapi"
)

// Request is the body of a backtest request.
type Request = engine.Params

// APIError is returned for every non-2xx response.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("quantapp: %d %s: %s", e.Status, e.Kind, e.Message)
}

// Client provides a Go SDK for interacting with the backtest server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// RunBacktest runs a backtest on the server.
func (c *Client) RunBacktest(ctx context.Context, req Request) (*engine.Report, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	var rep engine.Report
	if err := c.do(ctx, http.MethodPost, "/api/backtests", bytes.NewReader(body), &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// Strategies lists the strategy names the server accepts.
func (c *Client) Strategies(ctx context.Context) ([]string, error) {
	var resp httpapi.StrategiesResponse
	if err := c.do(ctx, http.MethodGet, "/api/strategies", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Strategies, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var er httpapi.ErrorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &er) == nil && er.Error != "" {
			apiErr.Kind, apiErr.Message = er.Error, er.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
