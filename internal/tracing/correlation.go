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

// Package tracing provides correlation IDs, OpenTelemetry tracing and the
// metrics the controller exports.
package tracing

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// CorrelationID ties together every log line and outbound agent call made on
// behalf of one API request.
type CorrelationID string

type correlationKeyType struct{}

var correlationKey = correlationKeyType{}

// HTTP header names for correlation ID propagation.
const (
	// HeaderCorrelationID is the primary header for correlation ID.
	HeaderCorrelationID = "X-Correlation-ID"
	// HeaderRequestID is an alternative header accepted for compatibility.
	HeaderRequestID = "X-Request-ID"
)

// NewCorrelationID generates a new unique correlation ID.
func NewCorrelationID() CorrelationID {
	return CorrelationID(uuid.New().String())
}

// String returns the string representation of the correlation ID.
func (c CorrelationID) String() string {
	return string(c)
}

// IsValid reports whether c is an RFC 4122 UUID.
func (c CorrelationID) IsValid() bool {
	_, err := uuid.Parse(string(c))
	return err == nil && len(c) == 36
}

// ToContext adds the correlation ID to the context.
func ToContext(ctx context.Context, id CorrelationID) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

// FromContext returns the correlation ID stored in ctx, or "" if none.
func FromContext(ctx context.Context) CorrelationID {
	if id, ok := ctx.Value(correlationKey).(CorrelationID); ok {
		return id
	}
	return ""
}

// ExtractFromRequest returns the correlation ID from X-Correlation-ID, or
// X-Request-ID as a fallback.
func ExtractFromRequest(r *http.Request) (CorrelationID, bool) {
	if id := r.Header.Get(HeaderCorrelationID); id != "" {
		return CorrelationID(id), true
	}
	if id := r.Header.Get(HeaderRequestID); id != "" {
		return CorrelationID(id), true
	}
	return "", false
}

// InjectIntoRequest sets the correlation header on an outbound request.
func InjectIntoRequest(ctx context.Context, req *http.Request) {
	if id := FromContext(ctx); id != "" {
		req.Header.Set(HeaderCorrelationID, id.String())
	}
}
