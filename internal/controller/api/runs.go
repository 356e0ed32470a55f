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
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/uptimizeai/zenthia/internal/controller/backend"
	"github.com/uptimizeai/zenthia/internal/controller/httputil"
	"github.com/uptimizeai/zenthia/internal/controller/runner"
	"github.com/uptimizeai/zenthia/internal/log"
	"github.com/uptimizeai/zenthia/internal/tracing"
	"github.com/uptimizeai/zenthia/pkg/errors"
)

// DefaultHistoryLimit caps GET /pipeline/history when no limit is given.
const DefaultHistoryLimit = 50

// MaxHistoryLimit is the largest accepted history page.
const MaxHistoryLimit = 1000

// RunSubmitter starts pipeline runs.
type RunSubmitter interface {
	Submit(id, input string) (*runner.Handle, error)
	IsDraining() bool
	Stages() []string
}

// RunLookup reads runs held by the registry.
type RunLookup interface {
	Get(id string) (*runner.RunSnapshot, error)
	List() []*runner.RunSnapshot
}

// StartRunRequest is the body of POST /pipeline/runs.
type StartRunRequest struct {
	RunID string `json:"runId,omitempty"`
	Input string `json:"input"`
}

// StartRunResponse is the body returned when a run is accepted.
type StartRunResponse struct {
	RunID  string   `json:"runId"`
	Status string   `json:"status"`
	Stages []string `json:"stages"`
}

// RunView is the API representation of a run. Times are unix milliseconds.
type RunView struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	CurrentAgent int    `json:"currentAgent"`
	StartTime    int64  `json:"startTime"`
	CompletedAt  int64  `json:"completedAt,omitempty"`
	Duration     int64  `json:"duration"`
	Error        string `json:"error,omitempty"`
	Source       string `json:"source"`
}

// RunListResponse wraps a list of runs.
type RunListResponse struct {
	Runs []RunView `json:"runs"`
}

// Run sources reported in RunView.Source.
const (
	SourceLive    = "live"
	SourceHistory = "history"
)

// RunsHandler serves run submission and lookup.
type RunsHandler struct {
	executor RunSubmitter
	runs     RunLookup
	history  backend.HistoryStore
	logger   *slog.Logger
	now      func() time.Time
}

// NewRunsHandler creates a runs handler. history may be nil, in which case
// only runs still held by the registry are visible.
func NewRunsHandler(executor RunSubmitter, runs RunLookup, history backend.HistoryStore, logger *slog.Logger) *RunsHandler {
	if logger == nil {
		logger = log.Discard()
	}
	return &RunsHandler{
		executor: executor,
		runs:     runs,
		history:  history,
		logger:   log.WithComponent(logger, "runs-api"),
		now:      time.Now,
	}
}

// RegisterRoutes registers the run routes on mux.
func (h *RunsHandler) RegisterRoutes(mux Mux) {
	mux.Handle("POST /pipeline/runs", http.HandlerFunc(h.handleStart))
	mux.Handle("GET /pipeline/runs", http.HandlerFunc(h.handleList))
	mux.Handle("GET /pipeline/runs/{id}", http.HandlerFunc(h.handleGet))
	mux.Handle("GET /pipeline/history", http.HandlerFunc(h.handleHistory))
}

// handleStart handles POST /pipeline/runs.
func (h *RunsHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	if h.executor.IsDraining() {
		w.Header().Set("Retry-After", "30")
		httputil.WriteError(w, http.StatusServiceUnavailable, "controller is shutting down")
		return
	}

	var req StartRunRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteErr(w, h.logger, err, "invalid request")
		return
	}

	id := strings.TrimSpace(req.RunID)
	handle, err := h.executor.Submit(id, req.Input)
	if err != nil {
		var conflict *errors.ConflictError
		switch {
		case errors.Is(err, runner.ErrDraining):
			w.Header().Set("Retry-After", "30")
			httputil.WriteError(w, http.StatusServiceUnavailable, "controller is shutting down")
			return
		case errors.As(err, &conflict):
			// A second start under a live id would orphan the first run's record.
			httputil.WriteError(w, http.StatusConflict, fmt.Sprintf("Run %s is already running", id))
			return
		}
		httputil.WriteErr(w, h.logger, err, "Failed to start pipeline")
		return
	}

	log.WithRun(log.WithCorrelationID(h.logger, correlationID(r)), handle.ID()).
		Info("pipeline run accepted")

	httputil.WriteJSON(w, http.StatusAccepted, StartRunResponse{
		RunID:  handle.ID(),
		Status: string(runner.RunStatusRunning),
		Stages: h.executor.Stages(),
	})
}

// handleList handles GET /pipeline/runs.
func (h *RunsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	snaps := h.runs.List()

	views := make([]RunView, 0, len(snaps))
	for _, snap := range snaps {
		views = append(views, viewFromSnapshot(snap, now))
	}
	httputil.WriteJSON(w, http.StatusOK, RunListResponse{Runs: views})
}

// handleGet handles GET /pipeline/runs/{id}. Runs no longer held by the
// registry are looked up in history.
func (h *RunsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if snap, err := h.runs.Get(id); err == nil {
		httputil.WriteJSON(w, http.StatusOK, viewFromSnapshot(snap, h.now()))
		return
	}

	if h.history != nil {
		run, err := h.history.GetRun(r.Context(), id)
		if err == nil {
			httputil.WriteJSON(w, http.StatusOK, viewFromHistory(run))
			return
		}
		var nf *errors.NotFoundError
		if !errors.As(err, &nf) {
			httputil.WriteErr(w, h.logger, err, "Failed to load run")
			return
		}
	}

	httputil.WriteError(w, http.StatusNotFound, "Run not found")
}

// handleHistory handles GET /pipeline/history?status=&limit=&offset=.
func (h *RunsHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		httputil.WriteJSON(w, http.StatusOK, RunListResponse{Runs: []RunView{}})
		return
	}

	q := r.URL.Query()
	filter := backend.RunFilter{Status: q.Get("status"), Limit: DefaultHistoryLimit}

	if s := q.Get("status"); s != "" {
		if st := runner.RunStatus(s); !st.Valid() || !st.IsTerminal() {
			httputil.WriteError(w, http.StatusBadRequest, "status must be completed, failed or cancelled")
			return
		}
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > MaxHistoryLimit {
			httputil.WriteError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", MaxHistoryLimit))
			return
		}
		filter.Limit = n
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			httputil.WriteError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	runs, err := h.history.ListRuns(r.Context(), filter)
	if err != nil {
		httputil.WriteErr(w, h.logger, err, "Failed to list run history")
		return
	}

	views := make([]RunView, 0, len(runs))
	for _, run := range runs {
		views = append(views, viewFromHistory(run))
	}
	httputil.WriteJSON(w, http.StatusOK, RunListResponse{Runs: views})
}

func viewFromSnapshot(snap *runner.RunSnapshot, now time.Time) RunView {
	v := RunView{
		ID:           snap.ID,
		Status:       string(snap.Status),
		CurrentAgent: snap.CurrentAgent,
		StartTime:    snap.StartTime.UnixMilli(),
		Duration:     snap.Elapsed(now).Milliseconds(),
		Error:        snap.Error,
		Source:       SourceLive,
	}
	if snap.CompletedAt != nil {
		v.CompletedAt = snap.CompletedAt.UnixMilli()
	}
	return v
}

func viewFromHistory(run *backend.Run) RunView {
	return RunView{
		ID:           run.ID,
		Status:       run.Status,
		CurrentAgent: run.CurrentAgent,
		StartTime:    run.StartedAt.UnixMilli(),
		CompletedAt:  run.CompletedAt.UnixMilli(),
		Duration:     run.Duration().Milliseconds(),
		Error:        run.Error,
		Source:       SourceHistory,
	}
}

func correlationID(r *http.Request) string {
	return tracing.FromContext(r.Context()).String()
}
