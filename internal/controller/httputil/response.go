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

// Package httputil holds the JSON response helpers shared by API handlers.
package httputil

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/uptimizeai/zenthia/pkg/errors"
)

// MaxBodyBytes caps request bodies read by DecodeJSON.
const MaxBodyBytes = 1 << 20

// WriteJSON writes data as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to write JSON response", slog.Any("error", err))
	}
}

// WriteError writes a JSON error response with the given status code and message.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{
		"error": message,
	})
}

// WriteErr maps err to a status with errors.HTTPStatus. Classified errors
// expose their message; anything else is logged and answered with
// fallback so internals never leak.
func WriteErr(w http.ResponseWriter, logger *slog.Logger, err error, fallback string) {
	status := errors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error(fallback, slog.Any("error", err))
		WriteError(w, status, fallback)
		return
	}
	WriteError(w, status, err.Error())
}

// DecodeJSON decodes a JSON request body into v. An empty body leaves v
// untouched. Errors are *errors.ValidationError.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return &errors.ValidationError{Message: "Content-Type must be application/json"}
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return nil
		}
		return &errors.ValidationError{Message: "invalid JSON body: " + err.Error()}
	}
	return nil
}
