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

package controller

import (
	"context"
	"time"

	"github.com/uptimizeai/zenthia/internal/controller/runner"
	"github.com/uptimizeai/zenthia/internal/tracing"
	"github.com/uptimizeai/zenthia/pkg/errors"
)

// Stage outcomes reported to the stage duration histogram.
const (
	stageOK        = "ok"
	stageTimeout   = "timeout"
	stageCancelled = "cancelled"
	stageError     = "error"
)

// runMetrics feeds registry and executor events into the metrics collector.
type runMetrics struct {
	mc *tracing.MetricsCollector
}

var (
	_ runner.Observer      = (*runMetrics)(nil)
	_ runner.StageObserver = (*runMetrics)(nil)
)

func (m *runMetrics) RunStarted(*runner.RunSnapshot) {
	m.mc.RecordRunStarted(context.Background())
}

func (m *runMetrics) RunFinished(snap *runner.RunSnapshot) {
	var d time.Duration
	if snap.CompletedAt != nil {
		d = snap.CompletedAt.Sub(snap.StartTime)
	}
	m.mc.RecordRunFinished(context.Background(), string(snap.Status), d)
}

func (m *runMetrics) StageFinished(_ string, _ int, name string, elapsed time.Duration, err error) {
	m.mc.RecordStage(context.Background(), name, stageOutcome(err), elapsed)
}

func stageOutcome(err error) string {
	switch {
	case err == nil:
		return stageOK
	case errors.IsCancelled(err):
		return stageCancelled
	case errors.IsTimeout(err):
		return stageTimeout
	default:
		return stageError
	}
}
