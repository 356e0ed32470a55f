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

// Package api provides the controller's HTTP API.
package api

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/uptimizeai/zenthia/internal/controller/httputil"
	"github.com/uptimizeai/zenthia/internal/log"
)

// RouterConfig holds configuration for the API router.
type RouterConfig struct {
	Version   string
	Commit    string
	BuildDate string
}

// Mux is where handlers register their routes.
type Mux interface {
	Handle(pattern string, handler http.Handler)
}

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// HealthCheck reports the state of one dependency for /v1/health.
type HealthCheck func() (string, error)

// Router wraps an http.ServeMux. Routes registered through Protected pass
// through the guard middleware (auth, rate limiting); the rest are public.
type Router struct {
	mux    *http.ServeMux
	config RouterConfig
	logger *slog.Logger

	guards []Middleware
	checks map[string]HealthCheck
}

// NewRouter creates a router with the public health and version endpoints.
func NewRouter(cfg RouterConfig, logger *slog.Logger) *Router {
	if logger == nil {
		logger = log.Discard()
	}
	r := &Router{
		mux:    http.NewServeMux(),
		config: cfg,
		logger: logger,
		checks: make(map[string]HealthCheck),
	}

	r.mux.HandleFunc("GET /v1/health", r.handleHealth)
	r.mux.HandleFunc("GET /v1/version", r.handleVersion)

	return r
}

// Guard adds middleware applied to protected routes, outermost first.
// Must be called before routes are registered.
func (r *Router) Guard(mw ...Middleware) {
	r.guards = append(r.guards, mw...)
}

// Protected returns a Mux whose routes are wrapped by the guards.
func (r *Router) Protected() Mux {
	return guardedMux{router: r}
}

// Public returns a Mux for routes that need no credentials.
func (r *Router) Public() Mux {
	return r.mux
}

// SetMetricsHandler exposes handler at GET /metrics.
func (r *Router) SetMetricsHandler(handler http.Handler) {
	if handler != nil {
		r.mux.Handle("GET /metrics", handler)
	}
}

// AddHealthCheck registers a named check reported by /v1/health.
func (r *Router) AddHealthCheck(name string, check HealthCheck) {
	r.checks[name] = check
}

// ServeHTTP implements http.Handler. Panics in handlers that do not recover
// themselves become a generic 500.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			r.logger.Error("panic in handler",
				"path", req.URL.Path,
				"panic", rec,
				"stack", string(debug.Stack()))
			httputil.WriteError(w, http.StatusInternalServerError, "internal server error")
		}
	}()
	r.mux.ServeHTTP(w, req)
}

type guardedMux struct {
	router *Router
}

func (g guardedMux) Handle(pattern string, handler http.Handler) {
	for i := len(g.router.guards) - 1; i >= 0; i-- {
		handler = g.router.guards[i](handler)
	}
	g.router.mux.Handle(pattern, handler)
}
