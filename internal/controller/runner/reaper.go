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
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/uptimizeai/zenthia/internal/log"
)

// DefaultReapInterval is how often the reaper sweeps for stale runs.
const DefaultReapInterval = 5 * time.Minute

// Reaper periodically fails runs that have been running longer than the
// registry's stale threshold.
type Reaper struct {
	registry *Registry
	interval time.Duration
	logger   *slog.Logger

	afterSweep []func(ctx context.Context, reaped int)

	once sync.Once
	done chan struct{}
}

// NewReaper creates a reaper for reg. A non-positive interval uses
// DefaultReapInterval.
func NewReaper(reg *Registry, interval time.Duration, logger *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Reaper{
		registry: reg,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// AfterSweep registers fn to run after every sweep, on the reaper's
// goroutine, with the number of runs that sweep reaped. Must be called
// before Start.
func (p *Reaper) AfterSweep(fn func(ctx context.Context, reaped int)) {
	p.afterSweep = append(p.afterSweep, fn)
}

// Start launches the sweep loop. Only the first call has any effect.
// The loop stops when ctx is cancelled.
func (p *Reaper) Start(ctx context.Context) {
	p.once.Do(func() {
		go p.loop(ctx)
	})
}

// Done is closed once a started loop has exited.
func (p *Reaper) Done() <-chan struct{} {
	return p.done
}

func (p *Reaper) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("reaper started", "interval", p.interval, "stale_after", p.registry.Config().StaleAfter)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("reaper stopped", "reason", ctx.Err())
			return
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}

// Sweep reaps stale runs once and runs the after-sweep hooks.
// It returns the number of runs reaped.
func (p *Reaper) Sweep(ctx context.Context) int {
	reaped := p.registry.CleanupStale()
	if reaped > 0 {
		p.logger.Info("reaped stale runs", "count", reaped)
	}
	for _, fn := range p.afterSweep {
		fn(ctx, reaped)
	}
	return reaped
}
