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

package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/uptimizeai/zenthia/internal/controller/httputil"
)

// HealthResponse is the response format for /v1/health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Uptime    string            `json:"uptime,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// VersionResponse is the response format for /v1/version.
type VersionResponse struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version"`
}

var startTime = time.Now()

// handleHealth handles GET /v1/health. A failing check degrades the status
// but still answers 200 so load balancers keep routing cancel requests.
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	checks := map[string]string{
		"api":     "ok",
		"runtime": runtime.Version(),
	}

	status := "healthy"
	for name, check := range r.checks {
		detail, err := check()
		if err != nil {
			status = "degraded"
			checks[name] = "error: " + err.Error()
			continue
		}
		checks[name] = detail
	}

	httputil.WriteJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		Checks:    checks,
	})
}

// handleVersion handles GET /v1/version.
func (r *Router) handleVersion(w http.ResponseWriter, req *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, VersionResponse{
		Version:   r.config.Version,
		Commit:    r.config.Commit,
		BuildDate: r.config.BuildDate,
		GoVersion: runtime.Version(),
	})
}
