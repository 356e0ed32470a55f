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
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/uptimizeai/zenthia/internal/controller/httputil"
	"github.com/uptimizeai/zenthia/internal/controller/runner"
	"github.com/uptimizeai/zenthia/internal/log"
	"github.com/uptimizeai/zenthia/pkg/errors"
)

// CancelRegistry is the part of the run registry the cancel endpoints need.
type CancelRegistry interface {
	Get(id string) (*runner.RunSnapshot, error)
	Cancel(id string) bool
	ActiveRuns() []*runner.RunSnapshot
}

// CancelRecorder counts cancel requests by result.
type CancelRecorder interface {
	RecordCancelRequest(ctx context.Context, result string)
}

// Cancel request results reported to the CancelRecorder.
const (
	CancelResultAccepted   = "accepted"
	CancelResultInvalid    = "invalid"
	CancelResultNotFound   = "not_found"
	CancelResultNotRunning = "not_running"
	CancelResultError      = "error"
)

// CancelRequest is the body of POST /pipeline/cancel.
type CancelRequest struct {
	RunID string `json:"runId"`
}

// CancelResponse is the success body of POST /pipeline/cancel.
type CancelResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	RunID   string `json:"runId"`
}

// ActiveRun describes one running run in GET /pipeline/cancel.
// Times are unix milliseconds.
type ActiveRun struct {
	ID           string `json:"id"`
	StartTime    int64  `json:"startTime"`
	CurrentAgent int    `json:"currentAgent"`
	Duration     int64  `json:"duration"`
}

// ActiveRunsResponse is the body of GET /pipeline/cancel.
type ActiveRunsResponse struct {
	ActiveRuns []ActiveRun `json:"activeRuns"`
}

// CancelHandler serves the pipeline cancellation endpoints.
type CancelHandler struct {
	registry CancelRegistry
	metrics  CancelRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewCancelHandler creates a cancel handler. metrics may be nil.
func NewCancelHandler(registry CancelRegistry, metrics CancelRecorder, logger *slog.Logger) *CancelHandler {
	if logger == nil {
		logger = log.Discard()
	}
	return &CancelHandler{
		registry: registry,
		metrics:  metrics,
		logger:   log.WithComponent(logger, "cancel-api"),
		now:      time.Now,
	}
}

// RegisterRoutes registers the cancel routes on mux.
func (h *CancelHandler) RegisterRoutes(mux Mux) {
	mux.Handle("POST /pipeline/cancel", http.HandlerFunc(h.handleCancel))
	mux.Handle("GET /pipeline/cancel", http.HandlerFunc(h.handleActive))
}

// handleCancel handles POST /pipeline/cancel.
func (h *CancelHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("cancel request failed", slog.Any("panic", rec))
			h.record(r.Context(), CancelResultError)
			httputil.WriteError(w, http.StatusInternalServerError, "Failed to cancel pipeline")
		}
	}()

	var req CancelRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.Debug("invalid cancel request", log.Error(err))
	}
	id := strings.TrimSpace(req.RunID)
	if id == "" {
		h.record(r.Context(), CancelResultInvalid)
		httputil.WriteError(w, http.StatusBadRequest, "runId is required")
		return
	}

	logger := log.WithRun(log.WithCorrelationID(h.logger, correlationID(r)), id)

	snap, err := h.registry.Get(id)
	if err != nil {
		h.rejectMissing(w, r, err)
		return
	}
	if snap.Status != runner.RunStatusRunning {
		h.rejectFinished(w, r, snap.Status)
		return
	}

	if !h.registry.Cancel(id) {
		// Finished or evicted between Get and Cancel.
		snap, err = h.registry.Get(id)
		if err != nil {
			h.rejectMissing(w, r, err)
			return
		}
		h.rejectFinished(w, r, snap.Status)
		return
	}

	logger.Info("pipeline cancellation requested", slog.Int("current_agent", snap.CurrentAgent))
	h.record(r.Context(), CancelResultAccepted)
	httputil.WriteJSON(w, http.StatusOK, CancelResponse{
		Success: true,
		Message: "Pipeline cancellation requested",
		RunID:   id,
	})
}

// handleActive handles GET /pipeline/cancel.
func (h *CancelHandler) handleActive(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	snaps := h.registry.ActiveRuns()

	runs := make([]ActiveRun, 0, len(snaps))
	for _, snap := range snaps {
		runs = append(runs, ActiveRun{
			ID:           snap.ID,
			StartTime:    snap.StartTime.UnixMilli(),
			CurrentAgent: snap.CurrentAgent,
			Duration:     snap.Elapsed(now).Milliseconds(),
		})
	}

	httputil.WriteJSON(w, http.StatusOK, ActiveRunsResponse{ActiveRuns: runs})
}

func (h *CancelHandler) rejectMissing(w http.ResponseWriter, r *http.Request, err error) {
	var nf *errors.NotFoundError
	if !errors.As(err, &nf) {
		panic(err)
	}
	h.record(r.Context(), CancelResultNotFound)
	httputil.WriteError(w, http.StatusNotFound, "Run not found")
}

func (h *CancelHandler) rejectFinished(w http.ResponseWriter, r *http.Request, status runner.RunStatus) {
	h.record(r.Context(), CancelResultNotRunning)
	httputil.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Run is %s, cannot cancel", status))
}

func (h *CancelHandler) record(ctx context.Context, result string) {
	if h.metrics != nil {
		h.metrics.RecordCancelRequest(ctx, result)
	}
}
