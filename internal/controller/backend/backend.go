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

// Package backend archives finished pipeline runs.
//
// The run registry only holds runs for a short grace window after they
// finish. A HistoryStore keeps them afterwards so operators can still look a
// run up once the registry has evicted it.
package backend

import (
	"context"
	"io"
	"time"

	"github.com/uptimizeai/zenthia/internal/controller/runner"
)

// HistoryStore persists finished runs.
type HistoryStore interface {
	// SaveRun inserts or replaces the run with run.ID.
	SaveRun(ctx context.Context, run *Run) error

	// GetRun returns the run with id or a *errors.NotFoundError.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)

	// DeleteBefore removes runs that finished before t and returns how many.
	DeleteBefore(ctx context.Context, t time.Time) (int, error)

	io.Closer
}

// Run is an archived run.
type Run struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	CurrentAgent int       `json:"current_agent"`
	Error        string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
}

// Duration returns how long the run took.
func (r *Run) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// RunFilter contains filtering options for listing runs.
type RunFilter struct {
	Status string
	Limit  int
	Offset int
}

// FromSnapshot converts a finished registry snapshot into an archived run.
// A snapshot without a completion time is stamped with now.
func FromSnapshot(snap *runner.RunSnapshot, now time.Time) *Run {
	completed := now
	if snap.CompletedAt != nil {
		completed = *snap.CompletedAt
	}
	return &Run{
		ID:           snap.ID,
		Status:       string(snap.Status),
		CurrentAgent: snap.CurrentAgent,
		Error:        snap.Error,
		StartedAt:    snap.StartTime,
		CompletedAt:  completed,
	}
}
