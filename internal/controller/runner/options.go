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

package runner

import (
	"log/slog"
	"time"
)

// Config holds registry timing.
type Config struct {
	// EvictionDelay is how long a finished run stays queryable.
	EvictionDelay time.Duration

	// StaleAfter is the age after which a still-running run is reaped.
	StaleAfter time.Duration
}

// DefaultConfig returns the standard registry timing: finished runs are
// evicted after 60s and running runs are stale after 30 minutes.
func DefaultConfig() Config {
	return Config{
		EvictionDelay: 60 * time.Second,
		StaleAfter:    30 * time.Minute,
	}
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger for registry events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithObserver registers an observer for run lifecycle events.
// Observers are called in registration order.
func WithObserver(o Observer) Option {
	return func(r *Registry) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

// WithClock overrides the time source. This is primarily used for testing
// staleness without waiting.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}
