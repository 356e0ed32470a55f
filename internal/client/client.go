// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/uptimizeai/zenthia/internal/controller/api"
	"github.com/uptimizeai/zenthia/internal/tracing"
)

// DefaultHost is the controller address used when none is configured.
const DefaultHost = "http://127.0.0.1:9880"

// HostEnv names the environment variable holding the controller address.
const HostEnv = "ZENTHIA_HOST"

// APIKeyEnv names the environment variable holding the API token.
const APIKeyEnv = "ZENTHIA_API_TOKEN"

// APIError is a non-2xx response from the controller.
type APIError struct {
	StatusCode    int
	Message       string
	CorrelationID string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("controller returned %d: %s", e.StatusCode, e.Message)
}

// Client is a client for the zenthia controller API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Option configures a Client.
type Option func(*Client) error

// New creates a client. Without options it reads ZENTHIA_HOST and
// ZENTHIA_API_TOKEN, falling back to DefaultHost.
func New(opts ...Option) (*Client, error) {
	c := &Client{apiKey: os.Getenv(APIKeyEnv)}

	host := os.Getenv(HostEnv)
	if host == "" {
		host = DefaultHost
	}
	if err := WithHost(host)(c); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	return c, nil
}

// WithHost sets the controller address: http(s)://host:port or
// unix:///path/to/socket.
func WithHost(host string) Option {
	return func(c *Client) error {
		if path, ok := strings.CutPrefix(host, "unix://"); ok {
			if path == "" {
				return fmt.Errorf("invalid host %q: empty socket path", host)
			}
			c.baseURL = "http://zenthia"
			c.httpClient = &http.Client{Transport: NewUnixTransport(path)}
			return nil
		}

		u, err := url.Parse(host)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid host %q: must be http://, https:// or unix://", host)
		}
		c.baseURL = strings.TrimRight(host, "/")
		if c.httpClient != nil {
			if t, ok := c.httpClient.Transport.(*Transport); ok && t.SocketPath != "" {
				c.httpClient = nil
			}
		}
		return nil
	}
}

// WithCACert trusts the PEM certificates in path for https hosts, for
// controllers serving a self-signed certificate.
func WithCACert(path string) Option {
	return func(c *Client) error {
		pem, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return fmt.Errorf("no certificates found in %s", path)
		}
		c.httpClient = &http.Client{Transport: NewTLSTransport(&tls.Config{
			MinVersion: tls.VersionTLS12,
			RootCAs:    pool,
		})}
		return nil
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = client
		return nil
	}
}

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(apiKey string) Option {
	return func(c *Client) error {
		c.apiKey = apiKey
		return nil
	}
}

// Health returns the controller health status.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var out api.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/v1/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Version returns the controller version information.
func (c *Client) Version(ctx context.Context) (*api.VersionResponse, error) {
	var out api.VersionResponse
	if err := c.do(ctx, http.MethodGet, "/v1/version", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartRun starts a pipeline run. An empty runID lets the controller pick one.
func (c *Client) StartRun(ctx context.Context, runID, input string) (*api.StartRunResponse, error) {
	var out api.StartRunResponse
	req := api.StartRunRequest{RunID: runID, Input: input}
	if err := c.do(ctx, http.MethodPost, "/pipeline/runs", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRun returns one run, live or archived.
func (c *Client) GetRun(ctx context.Context, runID string) (*api.RunView, error) {
	var out api.RunView
	if err := c.do(ctx, http.MethodGet, "/pipeline/runs/"+url.PathEscape(runID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRuns returns every run the controller still holds in memory.
func (c *Client) ListRuns(ctx context.Context) ([]api.RunView, error) {
	var out api.RunListResponse
	if err := c.do(ctx, http.MethodGet, "/pipeline/runs", nil, &out); err != nil {
		return nil, err
	}
	return out.Runs, nil
}

// ActiveRuns returns the currently running runs.
func (c *Client) ActiveRuns(ctx context.Context) ([]api.ActiveRun, error) {
	var out api.ActiveRunsResponse
	if err := c.do(ctx, http.MethodGet, "/pipeline/cancel", nil, &out); err != nil {
		return nil, err
	}
	return out.ActiveRuns, nil
}

// Cancel requests cancellation of a running run.
func (c *Client) Cancel(ctx context.Context, runID string) (*api.CancelResponse, error) {
	var out api.CancelResponse
	if err := c.do(ctx, http.MethodPost, "/pipeline/cancel", api.CancelRequest{RunID: runID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// HistoryQuery filters GET /pipeline/history.
type HistoryQuery struct {
	Status string
	Limit  int
	Offset int
}

// History returns archived runs, newest first.
func (c *Client) History(ctx context.Context, q HistoryQuery) ([]api.RunView, error) {
	params := url.Values{}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}
	path := "/pipeline/history"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var out api.RunListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Runs, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal body: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	correlation := tracing.NewCorrelationID()
	req.Header.Set(tracing.HeaderCorrelationID, correlation.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp, correlation.String())
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response, correlation string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr := &APIError{StatusCode: resp.StatusCode, CorrelationID: correlation}

	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		apiErr.Message = body.Error
	} else if msg := strings.TrimSpace(string(raw)); msg != "" {
		apiErr.Message = msg
	} else {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
