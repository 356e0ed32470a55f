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

package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsCollector records pipeline run metrics through OpenTelemetry.
type MetricsCollector struct {
	meter metric.Meter

	// Counters
	runsStarted    metric.Int64Counter
	runsFinished   metric.Int64Counter
	runsReaped     metric.Int64Counter
	cancelRequests metric.Int64Counter
	httpRequests   metric.Int64Counter

	// Histograms
	runDuration   metric.Float64Histogram
	stageDuration metric.Float64Histogram
}

// NewMetricsCollector creates a new metrics collector using the given meter provider.
func NewMetricsCollector(meterProvider metric.MeterProvider) (*MetricsCollector, error) {
	meter := meterProvider.Meter("zenthia")
	mc := &MetricsCollector{meter: meter}

	var err error

	mc.runsStarted, err = meter.Int64Counter(
		"zenthia_runs_started_total",
		metric.WithDescription("Total number of pipeline runs started"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	mc.runsFinished, err = meter.Int64Counter(
		"zenthia_runs_finished_total",
		metric.WithDescription("Total number of pipeline runs that reached a terminal status"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	mc.runsReaped, err = meter.Int64Counter(
		"zenthia_runs_reaped_total",
		metric.WithDescription("Total number of stale runs reaped"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	mc.cancelRequests, err = meter.Int64Counter(
		"zenthia_cancel_requests_total",
		metric.WithDescription("Cancellation requests by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	mc.httpRequests, err = meter.Int64Counter(
		"zenthia_http_requests_total",
		metric.WithDescription("HTTP requests served by the control API"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	mc.runDuration, err = meter.Float64Histogram(
		"zenthia_run_duration_seconds",
		metric.WithDescription("Pipeline run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mc.stageDuration, err = meter.Float64Histogram(
		"zenthia_stage_duration_seconds",
		metric.WithDescription("Agent stage duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return mc, nil
}

// ObserveActiveRuns registers fn as the source of the active runs gauge.
func (mc *MetricsCollector) ObserveActiveRuns(fn func() int) error {
	_, err := mc.meter.Int64ObservableGauge(
		"zenthia_active_runs",
		metric.WithDescription("Number of runs currently running"),
		metric.WithUnit("{run}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(fn()))
			return nil
		}),
	)
	return err
}

// RecordRunStarted counts a started run.
func (mc *MetricsCollector) RecordRunStarted(ctx context.Context) {
	mc.runsStarted.Add(ctx, 1)
}

// RecordRunFinished counts a run reaching status and records its duration.
func (mc *MetricsCollector) RecordRunFinished(ctx context.Context, status string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	mc.runsFinished.Add(ctx, 1, attrs)
	mc.runDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordReaped counts runs removed by the staleness reaper.
func (mc *MetricsCollector) RecordReaped(ctx context.Context, n int) {
	if n > 0 {
		mc.runsReaped.Add(ctx, int64(n))
	}
}

// RecordStage records one stage attempt. outcome is "ok", "error",
// "timeout" or "cancelled".
func (mc *MetricsCollector) RecordStage(ctx context.Context, agent string, outcome string, duration time.Duration) {
	mc.stageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("agent", agent),
		attribute.String("outcome", outcome),
	))
}

// RecordCancelRequest counts a cancellation request by result
// ("cancelled", "not_found", "conflict", "invalid", "error").
func (mc *MetricsCollector) RecordCancelRequest(ctx context.Context, result string) {
	mc.cancelRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordHTTPRequest counts a served request.
func (mc *MetricsCollector) RecordHTTPRequest(ctx context.Context, method, route string, code int) {
	mc.httpRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("code", code),
	))
}
