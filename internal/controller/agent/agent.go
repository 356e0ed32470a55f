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

// Package agent calls pipeline agents that run as external HTTP services.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/uptimizeai/zenthia/internal/controller/runner"
	"github.com/uptimizeai/zenthia/internal/log"
	"github.com/uptimizeai/zenthia/internal/tracing"
	"github.com/uptimizeai/zenthia/pkg/errors"
)

// maxErrorBody caps how much of a failed response is kept in the error.
const maxErrorBody = 512

// Config describes one agent endpoint.
type Config struct {
	// Name identifies the agent in logs, metrics and errors.
	Name string `yaml:"name"`

	// URL receives a POST per stage invocation.
	URL string `yaml:"url"`

	// Headers are added to every request (e.g. provider credentials).
	Headers map[string]string `yaml:"headers,omitempty"`

	// Retry redelivers calls the agent never received.
	Retry RetryConfig `yaml:"retry,omitempty"`
}

// Validate checks that the agent can be called.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return &errors.ValidationError{Field: "name", Message: "agent name is required"}
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &errors.ValidationError{
			Field:      "url",
			Message:    fmt.Sprintf("agent %s has invalid url %q", c.Name, c.URL),
			Suggestion: "use an absolute http:// or https:// URL",
		}
	}
	if err := c.Retry.Validate(); err != nil {
		return errors.Wrapf(err, "agent %s", c.Name)
	}
	return nil
}

// Request is the body POSTed to an agent.
type Request struct {
	RunID string `json:"runId"`
	Agent int    `json:"agent"`
	Input string `json:"input"`
}

// Response is the body an agent returns on success.
type Response struct {
	Output string `json:"output"`
}

// HTTPAgent is a pipeline stage backed by an HTTP endpoint.
type HTTPAgent struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

var _ runner.Stage = (*HTTPAgent)(nil)

// Option configures an HTTPAgent.
type Option func(*HTTPAgent)

// WithHTTPClient sets the client used for agent calls.
func WithHTTPClient(c *http.Client) Option {
	return func(a *HTTPAgent) {
		if c != nil {
			a.client = c
		}
	}
}

// WithLogger sets the agent's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *HTTPAgent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an HTTPAgent. The client has no timeout of its own; the
// stage context bounds each call.
func New(cfg Config, opts ...Option) (*HTTPAgent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &HTTPAgent{
		cfg:    cfg,
		client: &http.Client{},
		logger: log.Discard(),
	}
	for _, opt := range opts {
		opt(a)
	}

	client := *a.client
	var rt http.RoundTripper = &loggingTransport{base: transportOf(&client), agent: cfg.Name, logger: a.logger}
	if cfg.Retry.Attempts > 0 {
		rt = newRetryTransport(rt, cfg.Retry, a.logger)
	}
	client.Transport = rt
	a.client = &client
	return a, nil
}

func transportOf(c *http.Client) http.RoundTripper {
	if c.Transport != nil {
		return c.Transport
	}
	return http.DefaultTransport
}

// Name returns the configured agent name.
func (a *HTTPAgent) Name() string { return a.cfg.Name }

// Run sends input to the agent and returns its output. Cancelling ctx aborts
// the in-flight request.
func (a *HTTPAgent) Run(ctx context.Context, input string) (string, error) {
	body := Request{Input: input}
	if info, ok := runner.StageFromContext(ctx); ok {
		body.RunID = info.RunID
		body.Agent = info.Agent
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", errors.Wrap(err, "encoding agent request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, "building agent request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range a.cfg.Headers {
		req.Header.Set(k, v)
	}
	tracing.InjectHTTPHeaders(ctx, req)

	log.Trace(a.logger, "agent request",
		slog.String(log.AgentNameKey, a.cfg.Name),
		slog.String(log.RunIDKey, body.RunID),
		slog.Int("input_bytes", len(input)))

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// Let the timeout wrapper classify it from the context.
			return "", ctx.Err()
		}
		return "", &errors.AgentError{Agent: a.cfg.Name, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &errors.AgentError{
			Agent:      a.cfg.Name,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.Body),
		}
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &errors.AgentError{
			Agent:      a.cfg.Name,
			StatusCode: resp.StatusCode,
			Message:    "invalid response body",
			Cause:      err,
		}
	}

	log.Trace(a.logger, "agent response",
		slog.String(log.AgentNameKey, a.cfg.Name),
		slog.Int("output_bytes", len(out.Output)),
		log.Duration(time.Since(start).Milliseconds()))

	return out.Output, nil
}

// errorMessage extracts {"error": "..."} from a failed response, falling
// back to the raw (truncated) body.
func errorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return body.Error
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return msg
	}
	return "no response body"
}

// NewStages builds one HTTPAgent per config, in order.
func NewStages(cfgs []Config, opts ...Option) ([]runner.Stage, error) {
	stages := make([]runner.Stage, 0, len(cfgs))
	for i, c := range cfgs {
		a, err := New(c, opts...)
		if err != nil {
			return nil, errors.Wrapf(err, "agent %d", i+1)
		}
		stages = append(stages, a)
	}
	return stages, nil
}
