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

package backend

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/uptimizeai/zenthia/internal/controller/runner"
	"github.com/uptimizeai/zenthia/internal/log"
)

// DefaultRecorderBuffer is the number of finished runs that can wait to be
// written before new ones are dropped.
const DefaultRecorderBuffer = 256

// Recorder archives finished runs into a HistoryStore from its own
// goroutine, so registry transitions never wait on storage.
type Recorder struct {
	store  HistoryStore
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	queue  chan *Run
	closed bool
	done   chan struct{}
}

var _ runner.Observer = (*Recorder)(nil)

// NewRecorder creates a recorder writing to store. Call Start to begin
// writing and Close to flush.
func NewRecorder(store HistoryStore, buffer int, logger *slog.Logger) *Recorder {
	if buffer <= 0 {
		buffer = DefaultRecorderBuffer
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Recorder{
		store:  store,
		logger: logger,
		now:    time.Now,
		queue:  make(chan *Run, buffer),
		done:   make(chan struct{}),
	}
}

// RunStarted implements runner.Observer. Only finished runs are archived.
func (r *Recorder) RunStarted(*runner.RunSnapshot) {}

// RunFinished implements runner.Observer.
func (r *Recorder) RunFinished(snap *runner.RunSnapshot) {
	run := FromSnapshot(snap, r.now())

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.logger.Warn("history recorder closed, run not archived", log.RunIDKey, run.ID)
		return
	}
	select {
	case r.queue <- run:
	default:
		r.logger.Warn("history queue full, run not archived", log.RunIDKey, run.ID)
	}
}

// Start launches the writer goroutine. Writes use ctx.
func (r *Recorder) Start(ctx context.Context) {
	go func() {
		defer close(r.done)
		for run := range r.queue {
			if err := r.store.SaveRun(ctx, run); err != nil {
				r.logger.Error("failed to archive run", log.RunIDKey, run.ID, log.Error(err))
			}
		}
	}()
}

// Close stops accepting runs and waits until queued runs are written or ctx
// is done. Start must have been called.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Prune deletes archived runs that finished more than retention ago.
// A non-positive retention keeps everything.
func (r *Recorder) Prune(ctx context.Context, retention time.Duration) {
	if retention <= 0 {
		return
	}
	deleted, err := r.store.DeleteBefore(ctx, r.now().Add(-retention))
	if err != nil {
		r.logger.Error("failed to prune run history", log.Error(err))
		return
	}
	if deleted > 0 {
		r.logger.Info("pruned run history", "deleted", deleted, "retention", retention)
	}
}
