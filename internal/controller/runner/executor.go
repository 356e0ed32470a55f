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
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/uptimizeai/zenthia/internal/log"
	"github.com/uptimizeai/zenthia/pkg/errors"
	"github.com/uptimizeai/zenthia/pkg/timeout"
)

// DefaultStageTimeout bounds a single agent stage.
const DefaultStageTimeout = 5 * time.Minute

// ErrDraining is returned by Submit once Drain has been called.
var ErrDraining = errors.New("executor is draining, not accepting new runs")

// Stage is one step of a pipeline. Run must return promptly once ctx is
// done.
type Stage interface {
	Name() string
	Run(ctx context.Context, input string) (string, error)
}

// StageInfo identifies the stage a context belongs to.
type StageInfo struct {
	RunID string
	Agent int
	Name  string
}

type stageKey struct{}

// StageFromContext returns the stage a Stage.Run context was created for.
func StageFromContext(ctx context.Context) (StageInfo, bool) {
	info, ok := ctx.Value(stageKey{}).(StageInfo)
	return info, ok
}

// StageObserver is told about every finished stage attempt.
type StageObserver interface {
	StageFinished(runID string, agent int, name string, elapsed time.Duration, err error)
}

// ExecutorConfig controls stage execution.
type ExecutorConfig struct {
	// StageTimeout bounds each stage. Default: 5m.
	StageTimeout time.Duration

	// CancelOnTimeout cancels the run in the registry when a stage times
	// out. When false the run is marked failed and its signal is left alone,
	// so work the stage started in the background can finish.
	CancelOnTimeout bool
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorLogger sets the executor's logger.
func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTracer sets the tracer used for stage spans.
func WithTracer(tracer trace.Tracer) ExecutorOption {
	return func(e *Executor) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// WithStageObserver registers an observer for stage results.
func WithStageObserver(o StageObserver) ExecutorOption {
	return func(e *Executor) {
		if o != nil {
			e.stageObservers = append(e.stageObservers, o)
		}
	}
}

// Executor drives runs through a fixed list of stages, keeping the registry
// up to date: Start before the first stage, UpdateAgent per stage, one
// terminal transition at the end.
type Executor struct {
	registry *Registry
	stages   []Stage
	cfg      ExecutorConfig

	logger         *slog.Logger
	tracer         trace.Tracer
	stageObservers []StageObserver

	wg       sync.WaitGroup
	draining atomic.Bool
}

// NewExecutor creates an executor for the given stages.
func NewExecutor(reg *Registry, stages []Stage, cfg ExecutorConfig, opts ...ExecutorOption) *Executor {
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = DefaultStageTimeout
	}
	e := &Executor{
		registry: reg,
		stages:   stages,
		cfg:      cfg,
		logger:   log.Discard(),
		tracer:   noop.NewTracerProvider().Tracer("zenthia/runner"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Stages returns the configured stage names in order.
func (e *Executor) Stages() []string {
	names := make([]string, len(e.stages))
	for i, s := range e.stages {
		names[i] = s.Name()
	}
	return names
}

// Submit starts a run and executes it in the background. It returns the
// run's handle immediately, or an *errors.ConflictError if id is already
// running.
func (e *Executor) Submit(id, input string) (*Handle, error) {
	if e.draining.Load() {
		return nil, ErrDraining
	}

	h, err := e.registry.StartExclusive(id)
	if err != nil {
		return nil, err
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		_, _ = e.Execute(h, input)
	}()
	return h, nil
}

// Execute runs every stage for the run behind h, feeding each stage the
// previous stage's output, and returns the last output.
func (e *Executor) Execute(h *Handle, input string) (string, error) {
	id := h.ID()
	ctx := h.Context()
	out := input

	for i, stage := range e.stages {
		agent := i + 1
		if ctx.Err() != nil {
			return "", &errors.CancelledError{Operation: "run " + id, Cause: context.Cause(ctx)}
		}
		h.UpdateAgent(agent)

		next, err := e.runStage(ctx, id, agent, stage, out)
		if err != nil {
			e.settleFailure(h, agent, stage.Name(), err)
			return "", err
		}
		out = next
	}

	h.Complete(RunStatusCompleted)
	return out, nil
}

func (e *Executor) runStage(ctx context.Context, id string, agent int, stage Stage, input string) (string, error) {
	logger := log.WithStage(e.logger, id, agent, stage.Name())
	ctx = context.WithValue(ctx, stageKey{}, StageInfo{RunID: id, Agent: agent, Name: stage.Name()})

	ctx, span := e.tracer.Start(ctx, "pipeline.stage",
		trace.WithAttributes(
			attribute.String("run.id", id),
			attribute.Int("stage.index", agent),
			attribute.String("stage.agent", stage.Name()),
		))
	defer span.End()

	logger.Debug("stage started")
	start := time.Now()

	msg := fmt.Sprintf("agent %s timed out after %v", stage.Name(), e.cfg.StageTimeout)
	out, err := timeout.DoWithAbort(ctx, e.cfg.StageTimeout, func(ctx context.Context) (string, error) {
		return stage.Run(ctx, input)
	}, msg)

	elapsed := time.Since(start)
	for _, o := range e.stageObservers {
		o.StageFinished(id, agent, stage.Name(), elapsed, err)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("stage failed", log.Error(err), log.Duration(elapsed.Milliseconds()))
		return "", err
	}

	span.SetStatus(codes.Ok, "")
	logger.Debug("stage finished", log.Duration(elapsed.Milliseconds()))
	return out, nil
}

// settleFailure applies the one terminal transition for a failed stage.
// Every transition goes through h so a run that reused the ID is untouched.
func (e *Executor) settleFailure(h *Handle, agent int, name string, err error) {
	switch {
	case errors.IsCancelled(err):
		// Cancelled or reaped elsewhere; the registry already settled it.
		if h.Context().Err() == nil {
			h.Fail(err)
		}
	case errors.IsTimeout(err):
		if e.cfg.CancelOnTimeout {
			h.Cancel()
			return
		}
		h.Fail(err)
	default:
		h.Fail(errors.Wrapf(err, "agent %d (%s)", agent, name))
	}
}

// Drain stops Submit from accepting runs and waits for submitted runs to
// finish or ctx to be done.
func (e *Executor) Drain(ctx context.Context) error {
	e.draining.Store(true)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsDraining reports whether Drain has been called.
func (e *Executor) IsDraining() bool {
	return e.draining.Load()
}
