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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uptimizeai/zenthia/internal/controller/backend"
	"github.com/uptimizeai/zenthia/internal/controller/backend/memory"
	"github.com/uptimizeai/zenthia/internal/controller/runner"
)

type waitStage struct {
	name    string
	release chan struct{}
}

func (s *waitStage) Name() string { return s.name }

func (s *waitStage) Run(ctx context.Context, input string) (string, error) {
	select {
	case <-s.release:
		return input + "!", nil
	case <-ctx.Done():
		return "", context.Cause(ctx)
	}
}

type runsFixture struct {
	registry *runner.Registry
	executor *runner.Executor
	history  *memory.Backend
	stage    *waitStage
	mux      *http.ServeMux
}

func newRunsFixture(t *testing.T) *runsFixture {
	t.Helper()
	reg := runner.NewRegistry(runner.DefaultConfig())
	stage := &waitStage{name: "research", release: make(chan struct{})}
	exec := runner.NewExecutor(reg, []runner.Stage{stage}, runner.ExecutorConfig{StageTimeout: time.Minute})
	history := memory.New()

	mux := http.NewServeMux()
	NewRunsHandler(exec, reg, history, nil).RegisterRoutes(mux)

	t.Cleanup(func() {
		reg.CancelAll()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = exec.Drain(ctx)
	})

	return &runsFixture{registry: reg, executor: exec, history: history, stage: stage, mux: mux}
}

func (f *runsFixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func TestStartRun(t *testing.T) {
	f := newRunsFixture(t)

	rec := f.do(t, http.MethodPost, "/pipeline/runs", `{"runId":"run-1","input":"hi"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp StartRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, "running", resp.Status)
	assert.Equal(t, []string{"research"}, resp.Stages)

	snap, err := f.registry.Get("run-1")
	require.NoError(t, err)
	assert.Equal(t, runner.RunStatusRunning, snap.Status)

	close(f.stage.release)
	require.Eventually(t, func() bool {
		snap, err := f.registry.Get("run-1")
		return err == nil && snap.Status == runner.RunStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartRun_GeneratesID(t *testing.T) {
	f := newRunsFixture(t)

	rec := f.do(t, http.MethodPost, "/pipeline/runs", `{"input":"hi"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp StartRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.RunID, 36)
}

func TestStartRun_DuplicateRunning(t *testing.T) {
	f := newRunsFixture(t)

	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/pipeline/runs", `{"runId":"dup"}`).Code)

	rec := f.do(t, http.MethodPost, "/pipeline/runs", `{"runId":"dup"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, map[string]any{"error": "Run dup is already running"}, decodeBody(t, rec))
}

func TestStartRun_InvalidBody(t *testing.T) {
	f := newRunsFixture(t)

	rec := f.do(t, http.MethodPost, "/pipeline/runs", `{bad`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartRun_Draining(t *testing.T) {
	f := newRunsFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.executor.Drain(ctx))

	rec := f.do(t, http.MethodPost, "/pipeline/runs", `{"input":"hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
}

func TestGetRun_Live(t *testing.T) {
	f := newRunsFixture(t)
	f.registry.Start("live-1")
	f.registry.UpdateAgent("live-1", 1)

	rec := f.do(t, http.MethodGet, "/pipeline/runs/live-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var view RunView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "live-1", view.ID)
	assert.Equal(t, "running", view.Status)
	assert.Equal(t, 1, view.CurrentAgent)
	assert.Equal(t, SourceLive, view.Source)
	assert.Zero(t, view.CompletedAt)
}

func TestGetRun_FallsBackToHistory(t *testing.T) {
	f := newRunsFixture(t)
	start := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, f.history.SaveRun(context.Background(), &backend.Run{
		ID:          "old",
		Status:      "failed",
		Error:       "agent 0 (research): boom",
		StartedAt:   start,
		CompletedAt: start.Add(3 * time.Second),
	}))

	rec := f.do(t, http.MethodGet, "/pipeline/runs/old", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var view RunView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, SourceHistory, view.Source)
	assert.Equal(t, "failed", view.Status)
	assert.Equal(t, int64(3000), view.Duration)
	assert.Equal(t, start.UnixMilli(), view.StartTime)
}

func TestGetRun_NotFound(t *testing.T) {
	f := newRunsFixture(t)

	rec := f.do(t, http.MethodGet, "/pipeline/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, map[string]any{"error": "Run not found"}, decodeBody(t, rec))
}

func TestListRuns(t *testing.T) {
	f := newRunsFixture(t)
	f.registry.Start("a")
	f.registry.Start("b")
	f.registry.Complete("b", runner.RunStatusCompleted)

	rec := f.do(t, http.MethodGet, "/pipeline/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RunListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Runs, 2)
}

func TestHistory(t *testing.T) {
	f := newRunsFixture(t)
	base := time.UnixMilli(1_700_000_000_000)
	for i, status := range []string{"completed", "failed", "completed"} {
		require.NoError(t, f.history.SaveRun(context.Background(), &backend.Run{
			ID:          string(rune('a' + i)),
			Status:      status,
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
			CompletedAt: base.Add(time.Duration(i)*time.Minute + time.Second),
		}))
	}

	t.Run("all", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/pipeline/history", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var resp RunListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Runs, 3)
	})

	t.Run("status and limit", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/pipeline/history?status=completed&limit=1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var resp RunListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Runs, 1)
		assert.Equal(t, "completed", resp.Runs[0].Status)
	})

	for _, q := range []string{"limit=0", "limit=abc", "limit=5000", "offset=-1", "status=running", "status=bogus"} {
		t.Run("invalid "+q, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/pipeline/history?"+q, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHistory_NoStore(t *testing.T) {
	reg := runner.NewRegistry(runner.DefaultConfig())
	exec := runner.NewExecutor(reg, nil, runner.ExecutorConfig{})
	mux := http.NewServeMux()
	NewRunsHandler(exec, reg, nil, nil).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/pipeline/history", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"runs":[]}`, rec.Body.String())
}
