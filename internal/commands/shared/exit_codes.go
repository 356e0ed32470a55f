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

package shared

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/uptimizeai/zenthia/internal/client"
	"github.com/uptimizeai/zenthia/pkg/errors"
)

// Exit codes
const (
	ExitSuccess     = 0
	ExitFailed      = 1
	ExitUsage       = 2
	ExitNotFound    = 3
	ExitConflict    = 4
	ExitUnavailable = 69 // EX_UNAVAILABLE from sysexits.h
	ExitConfig      = 78 // EX_CONFIG from sysexits.h
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates an error for unusable configuration.
func NewConfigError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitConfig, Message: msg, Cause: cause}
}

// NewUsageError creates an error for invalid command input.
func NewUsageError(msg string) *ExitError {
	return &ExitError{Code: ExitUsage, Message: msg}
}

// FromAPIError maps a controller response to an exit code. Connection
// failures become ExitUnavailable.
func FromAPIError(msg string, err error) *ExitError {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		code := ExitFailed
		switch apiErr.StatusCode {
		case http.StatusNotFound:
			code = ExitNotFound
		case http.StatusBadRequest, http.StatusConflict:
			code = ExitConflict
		case http.StatusServiceUnavailable:
			code = ExitUnavailable
		}
		return &ExitError{Code: code, Message: msg, Cause: err}
	}
	return &ExitError{Code: ExitUnavailable, Message: msg, Cause: err}
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailed
}

// HandleExitError prints err and exits with its code.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	printError(os.Stderr, err)
	os.Exit(ExitCode(err))
}

func printError(w io.Writer, err error) {
	fmt.Fprintln(w, RenderError(err.Error()))

	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.CorrelationID != "" {
		fmt.Fprintln(w, Muted.Render("correlation id: "+apiErr.CorrelationID))
	}
}
