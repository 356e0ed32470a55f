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

package serve

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/uptimizeai/zenthia/internal/commands/shared"
	"github.com/uptimizeai/zenthia/internal/config"
)

func TestApplyFlags(t *testing.T) {
	f := &serveFlags{}
	cmd := newCommand(f)
	err := cmd.ParseFlags([]string{
		"--addr", "unix:///tmp/zenthia-test.sock",
		"--history-backend", "sqlite",
		"--history-path", "/tmp/zenthia-test.db",
		"--cancel-on-timeout",
		"--pid-file", "/tmp/zenthia-test.pid",
	})
	if err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	cfg := config.Default()
	cfg.Server.TLSCert = "keep.pem"
	cfg.Server.TLSKey = "keep.key"
	if err := applyFlags(cmd, f, cfg); err != nil {
		t.Fatalf("applyFlags() error = %v", err)
	}

	if cfg.Server.Addr != "unix:///tmp/zenthia-test.sock" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.History.Backend != config.HistorySQLite || cfg.History.Path != "/tmp/zenthia-test.db" {
		t.Errorf("History = %+v", cfg.History)
	}
	if !cfg.Pipeline.CancelOnTimeout {
		t.Error("CancelOnTimeout not applied")
	}
	if cfg.Server.PIDFile != "/tmp/zenthia-test.pid" {
		t.Errorf("PIDFile = %q", cfg.Server.PIDFile)
	}
	if cfg.Server.TLSCert != "keep.pem" {
		t.Error("unset flag overwrote TLSCert")
	}
}

func TestApplyFlags_Invalid(t *testing.T) {
	f := &serveFlags{}
	cmd := newCommand(f)
	if err := cmd.ParseFlags([]string{"--history-backend", "postgres"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	if err := applyFlags(cmd, f, config.Default()); err == nil {
		t.Error("expected validation error for unknown history backend")
	}
}

func TestServe_BadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o600); err != nil {
		t.Fatal(err)
	}

	shared.ResetFlagsForTest()
	t.Cleanup(shared.ResetFlagsForTest)
	shared.SetConfigPathForTest(path)

	cmd := NewCommand()
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	if code := shared.ExitCode(err); code != shared.ExitConfig {
		t.Errorf("expected exit code %d, got %d (%v)", shared.ExitConfig, code, err)
	}
}

func TestShutdownDeadline(t *testing.T) {
	cfg := config.Default()
	cfg.Server.ShutdownTimeout = 10 * time.Second
	cfg.Pipeline.StageTimeout = 2 * time.Minute

	if got, want := shutdownDeadline(cfg), 2*time.Minute+10*time.Second; got != want {
		t.Errorf("shutdownDeadline() = %v, want %v", got, want)
	}
}
