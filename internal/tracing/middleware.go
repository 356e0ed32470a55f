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
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// W3CPropagator returns a TextMapPropagator that implements W3C Trace Context.
func W3CPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

// InjectHTTPHeaders writes the trace context and correlation ID from ctx into
// an outbound request.
func InjectHTTPHeaders(ctx context.Context, req *http.Request) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	InjectIntoRequest(ctx, req)
}

// CorrelationMiddleware reads or assigns the request's correlation ID,
// stores it in the request context and echoes it in the response.
// Malformed IDs are replaced rather than rejected.
func CorrelationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, found := ExtractFromRequest(r)
		if !found || !id.IsValid() {
			id = NewCorrelationID()
		}
		w.Header().Set(HeaderCorrelationID, id.String())
		next.ServeHTTP(w, r.WithContext(ToContext(r.Context(), id)))
	})
}

// HTTPMiddleware extracts any incoming trace context, starts a server span
// per request and, when mc is non-nil, counts the request. Spans are named
// by the matched route pattern.
func HTTPMiddleware(tracer trace.Tracer, mc *MetricsCollector) func(http.Handler) http.Handler {
	if tracer == nil {
		tracer = otel.Tracer("zenthia/http")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", r.Method),
					attribute.String("url.path", r.URL.Path),
				))
			defer span.End()

			if id := FromContext(ctx); id != "" {
				span.SetAttributes(attribute.String("correlation.id", id.String()))
			}

			wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			r = r.WithContext(ctx)
			next.ServeHTTP(wrapped, r)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			} else {
				span.SetName(route)
			}
			span.SetAttributes(attribute.Int("http.response.status_code", wrapped.status))
			if wrapped.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(wrapped.status))
			}
			if mc != nil {
				mc.RecordHTTPRequest(ctx, r.Method, route, wrapped.status)
			}
		})
	}
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
