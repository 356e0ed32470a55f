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

package agent

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/uptimizeai/zenthia/internal/log"
	"github.com/uptimizeai/zenthia/internal/tracing"
	"github.com/uptimizeai/zenthia/pkg/errors"
)

// userAgent is sent with every agent request.
const userAgent = "zenthia-agent-client/1.0"

// RetryConfig controls redelivery of agent calls that never reached the
// agent or that it explicitly refused.
type RetryConfig struct {
	// Attempts is the number of retries after the first try. 0 disables.
	Attempts int `yaml:"attempts"`

	// Backoff is the delay before the first retry; it doubles each time.
	Backoff time.Duration `yaml:"backoff"`

	// MaxBackoff caps the delay between retries.
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// Validate checks the retry settings.
func (c RetryConfig) Validate() error {
	if c.Attempts < 0 {
		return &errors.ValidationError{Field: "retry.attempts", Message: "must be >= 0"}
	}
	if c.Attempts > 0 {
		if c.Backoff <= 0 {
			return &errors.ValidationError{Field: "retry.backoff", Message: "must be positive when retries are enabled"}
		}
		if c.MaxBackoff != 0 && c.MaxBackoff < c.Backoff {
			return &errors.ValidationError{Field: "retry.max_backoff", Message: "must be >= retry.backoff"}
		}
	}
	return nil
}

// loggingTransport stamps outgoing agent requests and logs each attempt.
type loggingTransport struct {
	base   http.RoundTripper
	agent  string
	logger *slog.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	req = req.Clone(req.Context())
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}
	tracing.InjectIntoRequest(req.Context(), req)

	resp, err := t.base.RoundTrip(req)
	attrs := []slog.Attr{
		slog.String(log.AgentNameKey, t.agent),
		slog.String("url", sanitizeURL(req.URL)),
		log.Duration(time.Since(start).Milliseconds()),
	}
	if err != nil {
		t.logger.LogAttrs(req.Context(), slog.LevelDebug, "agent request failed", append(attrs, log.Error(err))...)
		return nil, err
	}

	level := slog.LevelDebug
	if resp.StatusCode >= 400 {
		level = slog.LevelWarn
	}
	t.logger.LogAttrs(req.Context(), level, "agent request", append(attrs, slog.Int("status", resp.StatusCode))...)
	return resp, nil
}

// retryTransport redelivers a request when the agent provably did not
// process it: the connection was never established, or the agent answered
// 429 or 503. Other failures are returned as-is since the agent may have
// acted on the input.
type retryTransport struct {
	base        http.RoundTripper
	maxAttempts int
	backoff     time.Duration
	maxBackoff  time.Duration
	logger      *slog.Logger
}

func newRetryTransport(base http.RoundTripper, cfg RetryConfig, logger *slog.Logger) *retryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff == 0 {
		maxBackoff = 30 * time.Second
	}
	return &retryTransport{
		base:        base,
		maxAttempts: cfg.Attempts + 1,
		backoff:     cfg.Backoff,
		maxBackoff:  maxBackoff,
		logger:      logger,
	}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	var delay time.Duration

	for attempt := 1; ; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				req = req.Clone(ctx)
				req.Body = body
			}
		}

		resp, err := t.base.RoundTrip(req)
		last := attempt >= t.maxAttempts
		switch {
		case err != nil:
			if last || !notDelivered(err) || ctx.Err() != nil {
				return nil, err
			}
			delay = t.backoffFor(attempt)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
			if last {
				return resp, nil
			}
			delay = t.backoffFor(attempt)
			if ra := retryAfter(resp); ra > 0 && ra < t.maxBackoff {
				delay = ra
			}
			resp.Body.Close()
		default:
			return resp, nil
		}

		t.logger.LogAttrs(ctx, slog.LevelDebug, "retrying agent request",
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay))
	}
}

// backoffFor returns backoff*2^(attempt-1), capped, plus up to 20% jitter.
func (t *retryTransport) backoffFor(attempt int) time.Duration {
	d := float64(t.backoff) * math.Pow(2, float64(attempt-1))
	if d > float64(t.maxBackoff) {
		d = float64(t.maxBackoff)
	}
	return time.Duration(d + d*0.2*rand.Float64())
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// notDelivered reports whether err happened before the request was sent.
func notDelivered(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "connection refused")
}

// retryAfter parses Retry-After as seconds or an HTTP date.
func retryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

var sensitiveParams = []string{"token", "key", "secret", "password", "auth", "credential", "signature"}

// sanitizeURL redacts query parameters that look like credentials.
func sanitizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	q := u.Query()
	for param := range q {
		lower := strings.ToLower(param)
		for _, s := range sensitiveParams {
			if strings.Contains(lower, s) {
				q.Set(param, "[REDACTED]")
				break
			}
		}
	}
	safe := *u
	safe.RawQuery = q.Encode()
	safe.User = nil
	return safe.String()
}
