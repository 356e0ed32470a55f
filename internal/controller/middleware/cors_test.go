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

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORS_Disabled(t *testing.T) {
	h := CORS(CORSConfig{})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/pipeline/cancel", nil)
	req.Header.Set("Origin", "https://portal.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS headers, got %q", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	h := CORS(CORSConfig{AllowedOrigins: []string{"https://portal.example.com"}, AllowCredentials: true})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/pipeline/cancel", nil)
	req.Header.Set("Origin", "https://portal.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://portal.example.com" {
		t.Error("allow-origin not set")
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("allow-credentials not set")
	}
	if rec.Header().Get("Access-Control-Max-Age") != "600" {
		t.Errorf("unexpected max-age %q", rec.Header().Get("Access-Control-Max-Age"))
	}
}

func TestCORS_ActualRequest(t *testing.T) {
	h := CORS(CORSConfig{AllowedOrigins: []string{"*.example.com"}})(okHandler())

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"https://portal.example.com", true},
		{"https://evil.com", false},
		{"", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/pipeline/cancel", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("origin %q: expected request to reach handler, got %d", tt.origin, rec.Code)
		}
		got := rec.Header().Get("Access-Control-Allow-Origin") != ""
		if got != tt.allowed {
			t.Errorf("origin %q: allowed = %v, want %v", tt.origin, got, tt.allowed)
		}
	}
}

func TestIsOriginAllowed(t *testing.T) {
	if !isOriginAllowed("http://anything", []string{"*"}) {
		t.Error("wildcard should allow any origin")
	}
	if isOriginAllowed("https://example.com.evil.net", []string{"*.example.com"}) {
		t.Error("suffix match must anchor at the end")
	}
}
