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

// Package memory provides an in-memory history store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/uptimizeai/zenthia/internal/controller/backend"
	"github.com/uptimizeai/zenthia/pkg/errors"
)

var _ backend.HistoryStore = (*Backend)(nil)

// Backend is an in-memory history store. History is lost on restart.
type Backend struct {
	mu   sync.RWMutex
	runs map[string]*backend.Run
}

// New creates a new in-memory backend.
func New() *Backend {
	return &Backend{runs: make(map[string]*backend.Run)}
}

// SaveRun stores a copy of run.
func (b *Backend) SaveRun(ctx context.Context, run *backend.Run) error {
	cp := *run
	b.mu.Lock()
	b.runs[run.ID] = &cp
	b.mu.Unlock()
	return nil
}

// GetRun retrieves a run by ID.
func (b *Backend) GetRun(ctx context.Context, id string) (*backend.Run, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	run, ok := b.runs[id]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "run", ID: id}
	}
	cp := *run
	return &cp, nil
}

// ListRuns returns runs newest first, filtered and paged.
func (b *Backend) ListRuns(ctx context.Context, filter backend.RunFilter) ([]*backend.Run, error) {
	b.mu.RLock()
	result := make([]*backend.Run, 0, len(b.runs))
	for _, run := range b.runs {
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		cp := *run
		result = append(result, &cp)
	}
	b.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CompletedAt.Equal(result[j].CompletedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CompletedAt.After(result[j].CompletedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*backend.Run{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// DeleteBefore removes runs that completed before t.
func (b *Backend) DeleteBefore(ctx context.Context, t time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	deleted := 0
	for id, run := range b.runs {
		if run.CompletedAt.Before(t) {
			delete(b.runs, id)
			deleted++
		}
	}
	return deleted, nil
}

// Close is a no-op for the memory backend.
func (b *Backend) Close() error {
	return nil
}
