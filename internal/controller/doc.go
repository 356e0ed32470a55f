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

/*
Package controller runs the zenthia pipeline controller: the run registry,
the stage executor, the staleness reaper and the HTTP API that exposes
cancellation.

# Architecture

The Controller owns one instance of each component and wires them together:

  - Registry: in-memory record of every live run and its cancellation signal
  - Executor: drives runs through the configured agents, one stage at a time
  - Reaper: fails runs that have been running past the stale threshold
  - Recorder: archives finished runs into the history backend
  - API: cancel, run and history endpoints behind auth and rate limiting
  - Provider: OpenTelemetry tracing and the Prometheus /metrics endpoint

# Usage

	cfg, _ := config.Load(path)
	c, err := controller.New(cfg, controller.Options{Version: "1.0.0"})
	if err != nil {
	    log.Fatal(err)
	}

	// Start blocks until ctx is cancelled or the server fails.
	go c.Start(ctx)

	c.Shutdown(context.Background())

# Shutdown

Shutdown stops in dependency order: the HTTP server stops accepting
requests, the executor drains, runs still going are cancelled, the reaper
stops, the recorder flushes to the backend, and finally the backend and
telemetry provider are closed.

# Subpackages

  - agent: HTTP agents used as pipeline stages
  - api: HTTP handlers
  - auth: bearer token, JWT and rate limiting middleware
  - backend: run history (memory, sqlite)
  - httputil: JSON response helpers
  - listener: TCP and Unix socket listeners
  - runner: registry, executor and reaper
*/
package controller
