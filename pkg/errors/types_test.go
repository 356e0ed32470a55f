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

package errors_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	zerrors "github.com/uptimizeai/zenthia/pkg/errors"
)

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *zerrors.ValidationError
		wantMsg string
	}{
		{
			name:    "with field",
			err:     &zerrors.ValidationError{Field: "runId", Message: "runId is required"},
			wantMsg: "validation failed on runId: runId is required",
		},
		{
			name:    "without field",
			err:     &zerrors.ValidationError{Message: "invalid JSON body"},
			wantMsg: "validation failed: invalid JSON body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("ValidationError.Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestConflictError_Error(t *testing.T) {
	err := &zerrors.ConflictError{Resource: "run", ID: "run-1", Status: "completed", Operation: "cancel"}
	want := "run run-1 is completed, cannot cancel"
	if got := err.Error(); got != want {
		t.Errorf("ConflictError.Error() = %q, want %q", got, want)
	}
}

func TestTimeoutError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *zerrors.TimeoutError
		wantMsg string
	}{
		{
			name:    "custom message wins",
			err:     &zerrors.TimeoutError{Operation: "agent research", Duration: time.Second, Message: "research agent took too long"},
			wantMsg: "research agent took too long",
		},
		{
			name:    "with operation",
			err:     &zerrors.TimeoutError{Operation: "agent research", Duration: 2 * time.Second},
			wantMsg: "agent research operation timed out after 2s",
		},
		{
			name:    "bare",
			err:     &zerrors.TimeoutError{Duration: 500 * time.Millisecond},
			wantMsg: "operation timed out after 500ms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("TimeoutError.Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestCancelledError_StableMessage(t *testing.T) {
	causes := []error{context.Canceled, context.DeadlineExceeded, errors.New("run cancelled by operator"), nil}
	for _, cause := range causes {
		err := &zerrors.CancelledError{Cause: cause}
		if err.Error() != zerrors.CancelledMessage {
			t.Errorf("CancelledError{Cause: %v}.Error() = %q, want %q", cause, err.Error(), zerrors.CancelledMessage)
		}
	}

	wrapped := &zerrors.CancelledError{Cause: context.Canceled}
	if !errors.Is(wrapped, context.Canceled) {
		t.Error("CancelledError should unwrap to its cause")
	}
}

func TestAgentError_IsRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{status: 0, want: false},
		{status: 400, want: false},
		{status: 429, want: true},
		{status: 502, want: true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			err := &zerrors.AgentError{Agent: "research", StatusCode: tt.status, Message: "boom"}
			if got := err.IsRetryable(); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &zerrors.ValidationError{Message: "x"}, http.StatusBadRequest},
		{"conflict", &zerrors.ConflictError{Resource: "run"}, http.StatusBadRequest},
		{"not found", &zerrors.NotFoundError{Resource: "run", ID: "x"}, http.StatusNotFound},
		{"wrapped not found", zerrors.Wrap(&zerrors.NotFoundError{Resource: "run", ID: "x"}, "lookup"), http.StatusNotFound},
		{"timeout", &zerrors.TimeoutError{Duration: time.Second}, http.StatusGatewayTimeout},
		{"cancelled", &zerrors.CancelledError{}, http.StatusConflict},
		{"agent", &zerrors.AgentError{Agent: "a"}, http.StatusBadGateway},
		{"plain", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := zerrors.HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIsTimeoutAndIsCancelled(t *testing.T) {
	te := zerrors.Wrap(&zerrors.TimeoutError{Duration: time.Second}, "stage 2")
	ce := zerrors.Wrap(&zerrors.CancelledError{}, "stage 2")

	if !zerrors.IsTimeout(te) || zerrors.IsCancelled(te) {
		t.Error("expected wrapped TimeoutError to classify as timeout only")
	}
	if !zerrors.IsCancelled(ce) || zerrors.IsTimeout(ce) {
		t.Error("expected wrapped CancelledError to classify as cancelled only")
	}
	if zerrors.Wrap(nil, "noop") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}
