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

package errors

import (
	"fmt"
	"time"
)

// ValidationError represents user input validation failures.
// Use this for invalid user input, malformed data, or constraint violations.
type ValidationError struct {
	// Field identifies which input field failed validation
	Field string

	// Message is the human-readable error description
	Message string

	// Suggestion provides actionable guidance for fixing the error
	Suggestion string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// ErrorType implements ErrorClassifier.
func (e *ValidationError) ErrorType() string { return "validation" }

// IsRetryable implements ErrorClassifier.
func (e *ValidationError) IsRetryable() bool { return false }

// NotFoundError represents a resource not found error.
// A run that finished and was evicted is indistinguishable from one that
// never existed; both surface as NotFoundError.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "run", "agent")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrorType implements ErrorClassifier.
func (e *NotFoundError) ErrorType() string { return "not_found" }

// IsRetryable implements ErrorClassifier.
func (e *NotFoundError) IsRetryable() bool { return false }

// ConflictError represents an operation that is not valid for the current
// state of a resource, such as cancelling a run that already finished.
type ConflictError struct {
	// Resource is the type of resource (e.g., "run")
	Resource string

	// ID is the identifier of the resource
	ID string

	// Status is the current state that blocked the operation
	Status string

	// Operation is what was attempted (e.g., "cancel")
	Operation string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s is %s, cannot %s", e.Resource, e.ID, e.Status, e.Operation)
}

// ErrorType implements ErrorClassifier.
func (e *ConflictError) ErrorType() string { return "conflict" }

// IsRetryable implements ErrorClassifier.
func (e *ConflictError) IsRetryable() bool { return false }

// AgentError represents a failure reported by an external pipeline agent.
type AgentError struct {
	// Agent is the configured agent name
	Agent string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Message is the human-readable error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *AgentError) Error() string {
	msg := fmt.Sprintf("agent %s error", e.Agent)

	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [HTTP %d]", msg, e.StatusCode)
	}

	return fmt.Sprintf("%s: %s", msg, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *AgentError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *AgentError) ErrorType() string { return "agent" }

// IsRetryable reports whether the agent failed with a server-side or
// throttling status.
func (e *AgentError) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// ConfigError represents configuration problems.
// Use this for configuration file errors, missing settings, or invalid config values.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "pipeline.stale_after")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// TimeoutError represents operation timeouts.
// Use this when an operation exceeds its configured timeout.
type TimeoutError struct {
	// Operation describes what timed out (e.g., "agent research")
	Operation string

	// Duration is the configured timeout that elapsed
	Duration time.Duration

	// Message overrides the default error text when set
	Message string

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Operation == "" {
		return fmt.Sprintf("operation timed out after %v", e.Duration)
	}
	return fmt.Sprintf("%s operation timed out after %v", e.Operation, e.Duration)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *TimeoutError) ErrorType() string { return "timeout" }

// IsRetryable implements ErrorClassifier.
func (e *TimeoutError) IsRetryable() bool { return true }

// CancelledMessage is the stable text of every CancelledError.
const CancelledMessage = "operation was cancelled"

// CancelledError reports that an operation stopped because its cancellation
// signal fired. The message is the same regardless of how the signal was
// delivered; Cause keeps the original reason for diagnostics.
type CancelledError struct {
	// Operation describes what was cancelled
	Operation string

	// Cause is the cancellation cause (context.Cause of the signal)
	Cause error
}

// Error implements the error interface.
func (e *CancelledError) Error() string {
	return CancelledMessage
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CancelledError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *CancelledError) ErrorType() string { return "cancelled" }

// IsRetryable implements ErrorClassifier.
func (e *CancelledError) IsRetryable() bool { return false }
