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
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestCorrelationID_IsValid(t *testing.T) {
	assert.True(t, NewCorrelationID().IsValid())
	assert.True(t, CorrelationID("123e4567-e89b-12d3-a456-426614174000").IsValid())
	assert.False(t, CorrelationID("").IsValid())
	assert.False(t, CorrelationID("not-a-uuid").IsValid())
	assert.False(t, CorrelationID("123e4567e89b12d3a456426614174000").IsValid())
}

func TestCorrelationMiddleware(t *testing.T) {
	valid := "123e4567-e89b-12d3-a456-426614174000"

	tests := []struct {
		name     string
		header   string
		value    string
		wantKept bool
	}{
		{name: "keeps valid correlation header", header: HeaderCorrelationID, value: valid, wantKept: true},
		{name: "accepts request id fallback", header: HeaderRequestID, value: valid, wantKept: true},
		{name: "replaces malformed id", header: HeaderCorrelationID, value: "nope"},
		{name: "generates when absent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen CorrelationID
			h := CorrelationMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = FromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/pipeline/cancel", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.True(t, seen.IsValid())
			assert.Equal(t, seen.String(), rec.Header().Get(HeaderCorrelationID))
			if tt.wantKept {
				assert.Equal(t, tt.value, seen.String())
			} else {
				assert.NotEqual(t, tt.value, seen.String())
			}
		})
	}
}

func TestInjectHTTPHeaders(t *testing.T) {
	ctx := ToContext(context.Background(), "123e4567-e89b-12d3-a456-426614174000")
	req := httptest.NewRequest(http.MethodPost, "http://agent/run", nil)

	InjectHTTPHeaders(ctx, req)
	assert.Equal(t, "123e4567-e89b-12d3-a456-426614174000", req.Header.Get(HeaderCorrelationID))

	req = httptest.NewRequest(http.MethodPost, "http://agent/run", nil)
	InjectHTTPHeaders(context.Background(), req)
	assert.Empty(t, req.Header.Get(HeaderCorrelationID))
}

func TestHTTPMiddleware_SpansAndCounts(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())
	mc, err := NewMetricsCollector(mp)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /pipeline/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	handler := HTTPMiddleware(tp.Tracer("test"), mc)(mux)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/pipeline/runs/abc", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /pipeline/runs/{id}", spans[0].Name())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	assert.Equal(t, int64(1), counterTotal(rm, "zenthia_http_requests_total"))
}

func TestMetricsCollector_Records(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	mc, err := NewMetricsCollector(mp)
	require.NoError(t, err)
	require.NoError(t, mc.ObserveActiveRuns(func() int { return 4 }))

	ctx := context.Background()
	mc.RecordRunStarted(ctx)
	mc.RecordRunStarted(ctx)
	mc.RecordRunFinished(ctx, "completed", 2*time.Second)
	mc.RecordReaped(ctx, 3)
	mc.RecordReaped(ctx, 0)
	mc.RecordCancelRequest(ctx, "cancelled")
	mc.RecordStage(ctx, "research", "ok", time.Second)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	assert.Equal(t, int64(2), counterTotal(rm, "zenthia_runs_started_total"))
	assert.Equal(t, int64(1), counterTotal(rm, "zenthia_runs_finished_total"))
	assert.Equal(t, int64(3), counterTotal(rm, "zenthia_runs_reaped_total"))
	assert.Equal(t, int64(1), counterTotal(rm, "zenthia_cancel_requests_total"))

	gauge, ok := findMetric(rm, "zenthia_active_runs").Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(4), gauge.DataPoints[0].Value)
}

func TestNewExporter(t *testing.T) {
	ctx := context.Background()

	exp, err := newExporter(ctx, Config{Exporter: ExporterNone}, io.Discard)
	require.NoError(t, err)
	assert.Nil(t, exp)

	var buf bytes.Buffer
	exp, err = newExporter(ctx, Config{Exporter: ExporterStdout}, &buf)
	require.NoError(t, err)
	require.NotNil(t, exp)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	_, span := tp.Tracer("test").Start(ctx, "pipeline.stage")
	span.End()
	require.NoError(t, tp.Shutdown(ctx))
	assert.Contains(t, buf.String(), "pipeline.stage")

	exp, err = newExporter(ctx, Config{Exporter: ExporterOTLPHTTP, Endpoint: "localhost:4318", Insecure: true}, io.Discard)
	require.NoError(t, err)
	require.NoError(t, exp.Shutdown(ctx))

	exp, err = newExporter(ctx, Config{Exporter: ExporterOTLPGRPC, Endpoint: "localhost:4317", Insecure: true}, io.Discard)
	require.NoError(t, err)
	require.NoError(t, exp.Shutdown(ctx))

	_, err = newExporter(ctx, Config{Exporter: "zipkin"}, io.Discard)
	assert.ErrorContains(t, err, "unknown exporter type")
}

func TestProvider_MetricsHandler(t *testing.T) {
	ctx := context.Background()
	p, err := NewProvider(ctx, DefaultConfig())
	require.NoError(t, err)
	defer p.Shutdown(ctx)

	p.Metrics().RecordRunStarted(ctx)

	rec := httptest.NewRecorder()
	p.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "zenthia_runs_started"), rec.Body.String())
}

func TestNewSampler(t *testing.T) {
	assert.Equal(t, sdktrace.NeverSample().Description(), newSampler(Config{Enabled: false}).Description())
	assert.Contains(t, newSampler(Config{Enabled: true, SampleRate: 1}).Description(), "AlwaysOnSampler")
	assert.Contains(t, newSampler(Config{Enabled: true, SampleRate: 0.25}).Description(), "TraceIDRatioBased")
}

func findMetric(rm metricdata.ResourceMetrics, name string) metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m
			}
		}
	}
	return metricdata.Metrics{}
}

func counterTotal(rm metricdata.ResourceMetrics, name string) int64 {
	sum, ok := findMetric(rm, name).Data.(metricdata.Sum[int64])
	if !ok {
		return 0
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}
