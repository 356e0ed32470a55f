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

// Package auth authenticates control API requests and rate limits clients.
//
// A request is accepted when it carries either the configured API token as a
// bearer token, or a valid session JWT in the Authorization header or the
// portal's session cookie. With no API token and no JWT secret configured,
// authentication is disabled.
package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/uptimizeai/zenthia/internal/controller/httputil"
	"github.com/uptimizeai/zenthia/internal/log"
)

// DefaultCookieName is the portal's session cookie.
const DefaultCookieName = "zenthia_session"

// APITokenClient is the client identity of requests using the API token.
const APITokenClient = "api-token"

type clientKey struct{}

// ContextWithClient stores the authenticated client identity.
func ContextWithClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, clientKey{}, client)
}

// ClientFromContext returns the authenticated client identity, or "".
func ClientFromContext(ctx context.Context) string {
	client, _ := ctx.Value(clientKey{}).(string)
	return client
}

// Config contains authentication configuration.
type Config struct {
	// APIToken is the shared bearer token for automation clients.
	APIToken string

	// JWT validates portal session tokens. Nil Secret disables sessions.
	JWT JWTConfig

	// CookieName is the session cookie to read. Default: zenthia_session.
	CookieName string
}

// Authenticator checks request credentials.
type Authenticator struct {
	cfg    Config
	logger *slog.Logger
}

// NewAuthenticator creates an authenticator.
func NewAuthenticator(cfg Config, logger *slog.Logger) *Authenticator {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Authenticator{cfg: cfg, logger: logger}
}

// Enabled reports whether any credential is configured.
func (a *Authenticator) Enabled() bool {
	return a.cfg.APIToken != "" || len(a.cfg.JWT.Secret) > 0
}

// Authenticate returns the client identity for r.
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	token, err := ExtractBearerToken(r)
	if err != nil {
		c, cerr := r.Cookie(a.cfg.CookieName)
		if cerr != nil || c.Value == "" {
			return "", err
		}
		token = c.Value
	}

	if a.cfg.APIToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(a.cfg.APIToken)) == 1 {
		return APITokenClient, nil
	}

	if len(a.cfg.JWT.Secret) > 0 {
		claims, err := ValidateJWT(token, a.cfg.JWT)
		if err != nil {
			return "", err
		}
		if claims.UserID != "" {
			return claims.UserID, nil
		}
		if claims.Subject != "" {
			return claims.Subject, nil
		}
		return "", fmt.Errorf("token has no subject")
	}

	return "", fmt.Errorf("invalid Bearer token")
}

// Middleware rejects unauthenticated requests with 401 and stores the
// client identity in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		client, err := a.Authenticate(r)
		if err != nil {
			presented, _ := ExtractBearerToken(r)
			a.logger.Debug("authentication failed",
				"path", r.URL.Path,
				"token", log.SanitizeToken(presented),
				log.Error(err))
			w.Header().Set("WWW-Authenticate", `Bearer realm="zenthia"`)
			httputil.WriteError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithClient(r.Context(), client)))
	})
}

// ExtractBearerToken extracts the Bearer token from the Authorization header.
// The scheme is matched case-insensitively per RFC 6750.
func ExtractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("missing Authorization header")
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", fmt.Errorf("invalid Authorization header format, expected 'Bearer <token>'")
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("empty Bearer token")
	}
	return token, nil
}
