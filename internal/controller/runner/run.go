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
	"time"
)

// RunStatus represents the status of a pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCancelled RunStatus = "cancelled"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCancelled, RunStatusCompleted, RunStatusFailed:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	return s == RunStatusRunning || s.IsTerminal()
}

// Run is the registry's record of one pipeline execution.
// All fields are guarded by the owning Registry's mutex.
type Run struct {
	ID           string
	StartTime    time.Time
	CurrentAgent int
	Status       RunStatus
	CompletedAt  *time.Time
	Error        string

	ctx    context.Context
	cancel context.CancelCauseFunc

	// announced is closed once observers have seen RunStarted.
	announced chan struct{}

	// evict is the single pending eviction for this record, if any.
	// evictGen invalidates callbacks of timers that were stopped too late.
	evict    *time.Timer
	evictGen uint64
}

// stopEviction cancels the pending eviction, if any.
// Caller must hold the registry lock.
func (r *Run) stopEviction() {
	r.evictGen++
	if r.evict != nil {
		r.evict.Stop()
		r.evict = nil
	}
}

// signalled reports whether the run's cancellation signal has fired.
func (r *Run) signalled() bool {
	return r.ctx.Err() != nil
}

// RunSnapshot is an immutable view of a run.
// Safe to use after the registry has moved on or evicted the run.
type RunSnapshot struct {
	ID           string     `json:"id"`
	StartTime    time.Time  `json:"start_time"`
	CurrentAgent int        `json:"current_agent"`
	Status       RunStatus  `json:"status"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Error        string     `json:"error,omitempty"`

	// Signalled is true once the run's cancellation signal has fired.
	Signalled bool `json:"signalled"`
}

// Elapsed returns how long the run has been going as of now, or its total
// duration if it has finished.
func (s *RunSnapshot) Elapsed(now time.Time) time.Duration {
	if s.CompletedAt != nil {
		return s.CompletedAt.Sub(s.StartTime)
	}
	return now.Sub(s.StartTime)
}

// snapshot copies r. Caller must hold the registry lock.
func (r *Run) snapshot() *RunSnapshot {
	snap := &RunSnapshot{
		ID:           r.ID,
		StartTime:    r.StartTime,
		CurrentAgent: r.CurrentAgent,
		Status:       r.Status,
		Error:        r.Error,
		Signalled:    r.signalled(),
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		snap.CompletedAt = &t
	}
	return snap
}
