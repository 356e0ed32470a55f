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

package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got %q", cfg.Level)
	}
	if cfg.Format != FormatJSON {
		t.Errorf("expected default format 'json', got %q", cfg.Format)
	}
	if cfg.Output != os.Stderr {
		t.Errorf("expected default output to be os.Stderr")
	}
	if cfg.AddSource {
		t.Errorf("expected default AddSource to be false")
	}
}

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name       string
		envVars    map[string]string
		wantLevel  string
		wantFormat Format
		wantSource bool
	}{
		{
			name:       "defaults when no env vars",
			envVars:    map[string]string{},
			wantLevel:  "info",
			wantFormat: FormatJSON,
		},
		{
			name:       "LOG_LEVEL is case insensitive",
			envVars:    map[string]string{"LOG_LEVEL": "DEBUG"},
			wantLevel:  "debug",
			wantFormat: FormatJSON,
		},
		{
			name:       "ZENTHIA_LOG_LEVEL beats LOG_LEVEL",
			envVars:    map[string]string{"LOG_LEVEL": "error", "ZENTHIA_LOG_LEVEL": "warn"},
			wantLevel:  "warn",
			wantFormat: FormatJSON,
		},
		{
			name:       "ZENTHIA_DEBUG beats everything",
			envVars:    map[string]string{"ZENTHIA_DEBUG": "1", "ZENTHIA_LOG_LEVEL": "error"},
			wantLevel:  "debug",
			wantFormat: FormatJSON,
			wantSource: true,
		},
		{
			name:       "text format with source",
			envVars:    map[string]string{"LOG_FORMAT": "text", "LOG_SOURCE": "1"},
			wantLevel:  "info",
			wantFormat: FormatText,
			wantSource: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"ZENTHIA_DEBUG", "ZENTHIA_LOG_LEVEL", "LOG_LEVEL", "LOG_FORMAT", "LOG_SOURCE"} {
				t.Setenv(k, "")
			}
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := FromEnv()

			if cfg.Level != tt.wantLevel {
				t.Errorf("expected level %q, got %q", tt.wantLevel, cfg.Level)
			}
			if cfg.Format != tt.wantFormat {
				t.Errorf("expected format %q, got %q", tt.wantFormat, cfg.Format)
			}
			if cfg.AddSource != tt.wantSource {
				t.Errorf("expected AddSource %v, got %v", tt.wantSource, cfg.AddSource)
			}
		})
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "debug", Format: FormatJSON, Output: &buf})
	logger.Info("run started", RunIDKey, "run-1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected valid JSON output, got error: %v", err)
	}
	if entry["msg"] != "run started" {
		t.Errorf("expected msg 'run started', got %v", entry["msg"])
	}
	if entry[RunIDKey] != "run-1" {
		t.Errorf("expected run_id 'run-1', got %v", entry[RunIDKey])
	}
	if entry["level"] != "INFO" {
		t.Errorf("expected level 'INFO', got %v", entry["level"])
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatText, Output: &buf})
	logger.Info("reaped stale runs", "count", 2)

	if !strings.Contains(buf.String(), "count=2") {
		t.Errorf("expected output to contain 'count=2', got: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"trace", LevelTrace},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("expected level %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestWithStage(t *testing.T) {
	var buf bytes.Buffer
	logger := WithStage(New(&Config{Level: "info", Output: &buf}), "run-9", 3, "summarize")
	logger.Warn("stage timed out", Error(errors.New("deadline")), Duration(1500))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected valid JSON output: %v", err)
	}
	if entry[RunIDKey] != "run-9" || entry[AgentNameKey] != "summarize" {
		t.Errorf("unexpected run fields: %v", entry)
	}
	if entry[AgentKey] != float64(3) {
		t.Errorf("expected agent 3, got %v", entry[AgentKey])
	}
	if entry[DurationKey] != float64(1500) {
		t.Errorf("expected duration_ms 1500, got %v", entry[DurationKey])
	}
	if entry["error"] != "deadline" {
		t.Errorf("expected error 'deadline', got %v", entry["error"])
	}
}

func TestWithCorrelationID_EmptyIsNoop(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Output: &buf})
	WithCorrelationID(logger, "").Info("hello")

	if strings.Contains(buf.String(), "correlation_id") {
		t.Errorf("empty correlation ID should not be logged: %s", buf.String())
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := SanitizeToken("abc"); got != "[REDACTED]" {
		t.Errorf("SanitizeToken(short) = %q", got)
	}
	if got := SanitizeToken("super-secret-1234"); got != "...1234" {
		t.Errorf("SanitizeToken(long) = %q", got)
	}
}

func TestTrace_DisabledAtInfo(t *testing.T) {
	var buf bytes.Buffer
	Trace(New(&Config{Level: "info", Output: &buf}), "agent request", slog.String("body", "{}"))
	if buf.Len() != 0 {
		t.Errorf("trace output should be filtered at info level, got: %s", buf.String())
	}

	buf.Reset()
	Trace(New(&Config{Level: "trace", Output: &buf}), "agent request")
	if !strings.Contains(buf.String(), "agent request") {
		t.Errorf("trace output missing at trace level: %s", buf.String())
	}
}
