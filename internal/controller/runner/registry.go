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
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/uptimizeai/zenthia/internal/log"
	"github.com/uptimizeai/zenthia/pkg/errors"
)

// Registry is the in-memory source of truth for pipeline runs.
// Every method is a single critical section; none of them block on I/O.
type Registry struct {
	mu   sync.Mutex
	runs map[string]*Run

	cfg       Config
	logger    *slog.Logger
	observers []Observer
	now       func() time.Time
}

// NewRegistry creates an empty registry. Zero durations in cfg fall back to
// DefaultConfig.
func NewRegistry(cfg Config, opts ...Option) *Registry {
	def := DefaultConfig()
	if cfg.EvictionDelay <= 0 {
		cfg.EvictionDelay = def.EvictionDelay
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}

	r := &Registry{
		runs:   make(map[string]*Run),
		cfg:    cfg,
		logger: log.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the registry's effective timing.
func (r *Registry) Config() Config {
	return r.cfg
}

// Start records a new running run at stage 1 and returns its handle.
// An empty id gets a generated one. Starting an id that already exists
// replaces the old record; the old record's pending eviction is dropped.
func (r *Registry) Start(id string) *Handle {
	h, _ := r.start(id, false)
	return h
}

// StartExclusive is Start, except that it refuses an id whose run is still
// running and returns an *errors.ConflictError instead.
func (r *Registry) StartExclusive(id string) (*Handle, error) {
	return r.start(id, true)
}

func (r *Registry) start(id string, exclusive bool) (*Handle, error) {
	if id == "" {
		id = uuid.New().String()
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	run := &Run{
		ID:           id,
		StartTime:    r.now(),
		CurrentAgent: 1,
		Status:       RunStatusRunning,
		ctx:          ctx,
		cancel:       cancel,
		announced:    make(chan struct{}),
	}

	r.mu.Lock()
	old, replaced := r.runs[id]
	if replaced && exclusive && old.Status == RunStatusRunning {
		r.mu.Unlock()
		cancel(nil)
		return nil, &errors.ConflictError{Resource: "run", ID: id, Status: string(old.Status), Operation: "start"}
	}
	if replaced {
		old.stopEviction()
	}
	r.runs[id] = run
	snap := run.snapshot()
	r.mu.Unlock()

	if replaced {
		r.logger.Warn("run id reused, previous record replaced",
			log.RunIDKey, id, "previous_status", old.Status)
	} else {
		r.logger.Debug("run started", log.RunIDKey, id)
	}

	for _, o := range r.observers {
		o.RunStarted(snap)
	}
	close(run.announced)

	return &Handle{id: id, ctx: ctx, reg: r}, nil
}

// UpdateAgent sets the current stage of a run. Unknown IDs are ignored and
// the stage number is not validated.
func (r *Registry) UpdateAgent(id string, agent int) {
	r.updateAgent(id, nil, agent)
}

// owned returns the record for id, restricted to the one owning ctx when
// ctx is set. Callers hold r.mu.
func (r *Registry) owned(id string, ctx context.Context) (*Run, bool) {
	run, ok := r.runs[id]
	if !ok || (ctx != nil && run.ctx != ctx) {
		return nil, false
	}
	return run, true
}

func (r *Registry) updateAgent(id string, ctx context.Context, agent int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if run, ok := r.owned(id, ctx); ok {
		run.CurrentAgent = agent
	}
}

// Complete moves a run to a terminal status and schedules its eviction.
//
// Completing a run that is already terminal leaves its status alone and
// restarts the eviction delay. RunStatusCancelled also fires the run's
// signal, the same as Cancel. Non-terminal statuses and unknown IDs are
// ignored.
func (r *Registry) Complete(id string, status RunStatus) {
	r.finish(id, nil, status, nil)
}

// Fail moves a run to failed and records err as the reason.
func (r *Registry) Fail(id string, err error) {
	r.finish(id, nil, RunStatusFailed, err)
}

// finish settles id, restricted to the record owning ctx when ctx is set.
func (r *Registry) finish(id string, ctx context.Context, status RunStatus, cause error) {
	if !status.IsTerminal() {
		r.logger.Warn("ignoring non-terminal completion status", log.RunIDKey, id, log.StatusKey, status)
		return
	}

	r.mu.Lock()
	run, ok := r.owned(id, ctx)
	if !ok {
		r.mu.Unlock()
		return
	}

	var snap *RunSnapshot
	if run.Status == RunStatusRunning {
		if status == RunStatusCancelled {
			run.cancel(&errors.CancelledError{Operation: "run " + id})
		}
		run.Status = status
		if cause != nil {
			run.Error = cause.Error()
		}
		now := r.now()
		run.CompletedAt = &now
		snap = run.snapshot()
	}
	r.armEviction(run)
	r.mu.Unlock()

	if snap == nil {
		return
	}
	r.logFinished(snap)
	r.notifyFinished(run, snap)
}

// Cancel fires a running run's signal and marks it cancelled. It returns
// false without changing anything when the run is unknown or not running.
func (r *Registry) Cancel(id string) bool {
	return r.cancel(id, nil)
}

// cancel cancels id, restricted to the record owning ctx when ctx is set.
func (r *Registry) cancel(id string, ctx context.Context) bool {
	r.mu.Lock()
	run, ok := r.owned(id, ctx)
	if !ok || run.Status != RunStatusRunning {
		r.mu.Unlock()
		return false
	}

	run.cancel(&errors.CancelledError{Operation: "run " + id})
	run.Status = RunStatusCancelled
	now := r.now()
	run.CompletedAt = &now
	r.armEviction(run)
	snap := run.snapshot()
	r.mu.Unlock()

	r.logFinished(snap)
	r.notifyFinished(run, snap)
	return true
}

// Get returns a snapshot of a run, or a *errors.NotFoundError.
func (r *Registry) Get(id string) (*RunSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "run", ID: id}
	}
	return run.snapshot(), nil
}

// ActiveRuns returns snapshots of every running run, oldest first.
// The result is a point-in-time copy; runs may finish right after.
func (r *Registry) ActiveRuns() []*RunSnapshot {
	r.mu.Lock()
	result := make([]*RunSnapshot, 0, len(r.runs))
	for _, run := range r.runs {
		if run.Status == RunStatusRunning {
			result = append(result, run.snapshot())
		}
	}
	r.mu.Unlock()

	sortSnapshots(result)
	return result
}

// List returns snapshots of every run the registry still holds, including
// finished runs that have not been evicted yet, oldest first.
func (r *Registry) List() []*RunSnapshot {
	r.mu.Lock()
	result := make([]*RunSnapshot, 0, len(r.runs))
	for _, run := range r.runs {
		result = append(result, run.snapshot())
	}
	r.mu.Unlock()

	sortSnapshots(result)
	return result
}

// ActiveCount returns the number of running runs.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, run := range r.runs {
		if run.Status == RunStatusRunning {
			count++
		}
	}
	return count
}

// Len returns the number of records held, running or not.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

// IsCancelled reports whether the run is marked cancelled or its signal has
// fired. Unknown IDs report false.
func (r *Registry) IsCancelled(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[id]
	if !ok {
		return false
	}
	return run.Status == RunStatusCancelled || run.signalled()
}

// Signal returns the read-only cancellation signal of a run.
func (r *Registry) Signal(id string) (context.Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, false
	}
	return run.ctx, true
}

// CleanupStale fails and immediately evicts every running run that started
// more than StaleAfter ago, firing its signal. It returns the number reaped.
func (r *Registry) CleanupStale() int {
	r.mu.Lock()
	now := r.now()
	var reaped []*RunSnapshot
	var reapedRuns []*Run
	for id, run := range r.runs {
		if run.Status != RunStatusRunning || now.Sub(run.StartTime) <= r.cfg.StaleAfter {
			continue
		}
		cause := &errors.TimeoutError{
			Operation: "run " + id,
			Duration:  r.cfg.StaleAfter,
			Message:   fmt.Sprintf("run still running after %v, reaped as stale", r.cfg.StaleAfter),
		}
		run.cancel(cause)
		run.Status = RunStatusFailed
		run.Error = cause.Error()
		completed := now
		run.CompletedAt = &completed
		run.stopEviction()
		delete(r.runs, id)
		reaped = append(reaped, run.snapshot())
		reapedRuns = append(reapedRuns, run)
	}
	r.mu.Unlock()

	for i, snap := range reaped {
		r.logger.Warn("reaped stale run",
			log.RunIDKey, snap.ID,
			log.AgentKey, snap.CurrentAgent,
			"age", now.Sub(snap.StartTime))
		r.notifyFinished(reapedRuns[i], snap)
	}
	return len(reaped)
}

// CancelAll cancels every running run and returns how many it cancelled.
// Used during shutdown.
func (r *Registry) CancelAll() int {
	count := 0
	for _, snap := range r.ActiveRuns() {
		if r.Cancel(snap.ID) {
			count++
		}
	}
	return count
}

// armEviction replaces any pending eviction for run with a fresh one.
// Caller must hold r.mu.
func (r *Registry) armEviction(run *Run) {
	run.stopEviction()
	gen := run.evictGen
	run.evict = time.AfterFunc(r.cfg.EvictionDelay, func() {
		r.evict(run, gen)
	})
}

// evict removes run if it is still the record for its ID and gen is still
// its current eviction.
func (r *Registry) evict(run *Run, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if run.evictGen != gen {
		return
	}
	run.evict = nil
	if cur, ok := r.runs[run.ID]; ok && cur == run {
		delete(r.runs, run.ID)
	}
}

func (r *Registry) logFinished(snap *RunSnapshot) {
	attrs := []any{
		log.RunIDKey, snap.ID,
		log.StatusKey, snap.Status,
		log.AgentKey, snap.CurrentAgent,
		log.DurationKey, snap.Elapsed(r.now()).Milliseconds(),
	}
	if snap.Error != "" {
		attrs = append(attrs, "error", snap.Error)
	}
	switch snap.Status {
	case RunStatusFailed:
		r.logger.Warn("run failed", attrs...)
	case RunStatusCancelled:
		r.logger.Info("run cancelled", attrs...)
	default:
		r.logger.Info("run completed", attrs...)
	}
}

// notifyFinished delivers RunFinished for run, after its RunStarted has been
// delivered.
func (r *Registry) notifyFinished(run *Run, snap *RunSnapshot) {
	if len(r.observers) == 0 {
		return
	}
	<-run.announced
	for _, o := range r.observers {
		o.RunFinished(snap)
	}
}

func sortSnapshots(snaps []*RunSnapshot) {
	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].StartTime.Equal(snaps[j].StartTime) {
			return snaps[i].ID < snaps[j].ID
		}
		return snaps[i].StartTime.Before(snaps[j].StartTime)
	})
}
