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

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testJWT = JWTConfig{Secret: []byte("portal-secret"), Issuer: "zenthia-portal"}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "valid", header: "Bearer abc123", want: "abc123"},
		{name: "lowercase scheme", header: "bearer abc123", want: "abc123"},
		{name: "missing", header: "", wantErr: true},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", wantErr: true},
		{name: "empty token", header: "Bearer   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, err := ExtractBearerToken(r)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJWT_RoundTrip(t *testing.T) {
	token, err := GenerateJWT(Claims{UserID: "user-7"}, testJWT)
	require.NoError(t, err)

	claims, err := ValidateJWT(token, testJWT)
	require.NoError(t, err)
	assert.Equal(t, "user-7", claims.UserID)
	assert.Equal(t, "zenthia-portal", claims.Issuer)
	require.NotNil(t, claims.ExpiresAt)
}

func TestJWT_Rejects(t *testing.T) {
	expired, err := GenerateJWT(Claims{
		UserID:           "u",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
	}, testJWT)
	require.NoError(t, err)

	wrongKey, err := GenerateJWT(Claims{UserID: "u"}, JWTConfig{Secret: []byte("other"), Issuer: testJWT.Issuer})
	require.NoError(t, err)

	wrongIssuer, err := GenerateJWT(Claims{UserID: "u"}, JWTConfig{Secret: testJWT.Secret, Issuer: "someone-else"})
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "u"}).SignedString(testJWT.Secret)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":      expired,
		"wrong key":    wrongKey,
		"wrong issuer": wrongIssuer,
		"no expiry":    noExpiry,
		"garbage":      "not.a.jwt",
		"empty":        "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ValidateJWT(token, testJWT)
			assert.Error(t, err)
		})
	}
}

func TestAuthenticator_Middleware(t *testing.T) {
	session, err := GenerateJWT(Claims{UserID: "user-7"}, testJWT)
	require.NoError(t, err)

	a := NewAuthenticator(Config{APIToken: "ops-token", JWT: testJWT}, nil)
	require.True(t, a.Enabled())

	var client string
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client = ClientFromContext(r.Context())
	}))

	tests := []struct {
		name       string
		prepare    func(r *http.Request)
		wantStatus int
		wantClient string
	}{
		{
			name:       "api token",
			prepare:    func(r *http.Request) { r.Header.Set("Authorization", "Bearer ops-token") },
			wantStatus: http.StatusOK,
			wantClient: APITokenClient,
		},
		{
			name:       "session in header",
			prepare:    func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+session) },
			wantStatus: http.StatusOK,
			wantClient: "user-7",
		},
		{
			name: "session cookie",
			prepare: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: session})
			},
			wantStatus: http.StatusOK,
			wantClient: "user-7",
		},
		{
			name:       "wrong token",
			prepare:    func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "no credentials",
			prepare:    func(r *http.Request) {},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client = ""
			r := httptest.NewRequest(http.MethodGet, "/pipeline/cancel", nil)
			tt.prepare(r)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantClient, client)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.JSONEq(t, `{"error":"Unauthorized"}`, w.Body.String())
			}
		})
	}
}

func TestAuthenticator_DisabledPassesThrough(t *testing.T) {
	a := NewAuthenticator(Config{}, nil)
	assert.False(t, a.Enabled())

	called := false
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}
