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

// Package serve implements the serve command, which runs the pipeline
// controller in the foreground.
package serve

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/uptimizeai/zenthia/internal/commands/shared"
	"github.com/uptimizeai/zenthia/internal/config"
	"github.com/uptimizeai/zenthia/internal/controller"
	"github.com/uptimizeai/zenthia/internal/lifecycle"
	internallog "github.com/uptimizeai/zenthia/internal/log"
)

type serveFlags struct {
	addr            string
	allowRemote     bool
	tlsCert         string
	tlsKey          string
	historyBackend  string
	historyPath     string
	cancelOnTimeout bool
	pidFile         string
}

// NewCommand creates the serve command.
func NewCommand() *cobra.Command {
	return newCommand(&serveFlags{})
}

func newCommand(f *serveFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline controller",
		Long: `Run the pipeline controller in the foreground. The controller serves the
run and cancellation API, reaps stale runs, and archives finished runs to
the configured history backend.

SIGINT or SIGTERM stops accepting requests, waits for in-flight runs to
drain, and cancels whatever is still running after the shutdown timeout.`,
		Example: `  # Default settings (127.0.0.1:9880, in-memory history)
  zenthia serve

  # Listen on a unix socket with SQLite history
  zenthia serve --addr unix:///tmp/zenthia.sock --history-backend sqlite`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(shared.GetConfigPath())
			if err != nil {
				return shared.NewConfigError("failed to load configuration", err)
			}
			if err := applyFlags(cmd, f, cfg); err != nil {
				return shared.NewConfigError("invalid configuration", err)
			}
			return run(cfg)
		},
	}

	cmd.Flags().StringVar(&f.addr, "addr", "", "Listen address (host:port or unix:///path)")
	cmd.Flags().BoolVar(&f.allowRemote, "allow-remote", false, "Allow binding to non-loopback addresses")
	cmd.Flags().StringVar(&f.tlsCert, "tls-cert", "", "TLS certificate file")
	cmd.Flags().StringVar(&f.tlsKey, "tls-key", "", "TLS key file")
	cmd.Flags().StringVar(&f.historyBackend, "history-backend", "", "Run history backend (memory, sqlite)")
	cmd.Flags().StringVar(&f.historyPath, "history-path", "", "SQLite history database path")
	cmd.Flags().StringVar(&f.pidFile, "pid-file", "", "Lock this PID file while running")
	cmd.Flags().BoolVar(&f.cancelOnTimeout, "cancel-on-timeout", false, "Cancel the whole run when a stage times out")

	return cmd
}

// applyFlags overlays explicitly set flags on cfg and revalidates it.
func applyFlags(cmd *cobra.Command, f *serveFlags, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Server.Addr = f.addr
	}
	if flags.Changed("allow-remote") {
		cfg.Server.AllowRemote = f.allowRemote
	}
	if flags.Changed("tls-cert") {
		cfg.Server.TLSCert = f.tlsCert
	}
	if flags.Changed("tls-key") {
		cfg.Server.TLSKey = f.tlsKey
	}
	if flags.Changed("history-backend") {
		cfg.History.Backend = f.historyBackend
	}
	if flags.Changed("history-path") {
		cfg.History.Path = f.historyPath
	}
	if flags.Changed("pid-file") {
		cfg.Server.PIDFile = f.pidFile
	}
	if flags.Changed("cancel-on-timeout") {
		cfg.Pipeline.CancelOnTimeout = f.cancelOnTimeout
	}
	return cfg.Validate()
}

func run(cfg *config.Config) error {
	logger := internallog.New(&internallog.Config{
		Level:     cfg.Log.Level,
		Format:    internallog.Format(cfg.Log.Format),
		Output:    os.Stderr,
		AddSource: cfg.Log.AddSource,
	})
	if cfg.Server.AllowRemote {
		logger.Warn("allow_remote is enabled; ensure authentication and TLS are configured")
	}

	if cfg.Server.PIDFile != "" {
		pid, err := lifecycle.AcquirePIDFile(cfg.Server.PIDFile)
		if err != nil {
			return fmt.Errorf("failed to acquire PID file: %w", err)
		}
		defer func() {
			if err := pid.Release(); err != nil {
				logger.Warn("failed to release PID file", internallog.Error(err))
			}
		}()
	}

	v, c, b := shared.GetVersion()
	ctrl, err := controller.New(cfg, controller.Options{
		Version:   v,
		Commit:    c,
		BuildDate: b,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create controller: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- ctrl.Start(ctx)
	}()

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", slog.String("signal", sig.String()))
		cancel()
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error("controller error", internallog.Error(runErr))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownDeadline(cfg))
	defer shutdownCancel()
	if err := ctrl.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during shutdown", internallog.Error(err))
		if runErr == nil {
			runErr = fmt.Errorf("shutdown error: %w", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	logger.Info("shutdown complete")
	return nil
}

// shutdownDeadline bounds the whole graceful stop: the drain window plus one
// stage timeout for stages still unwinding after their runs are cancelled.
func shutdownDeadline(cfg *config.Config) time.Duration {
	return cfg.Server.ShutdownTimeout + cfg.Pipeline.StageTimeout
}
