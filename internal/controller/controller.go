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

package controller

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/uptimizeai/zenthia/internal/config"
	"github.com/uptimizeai/zenthia/internal/controller/agent"
	"github.com/uptimizeai/zenthia/internal/controller/api"
	"github.com/uptimizeai/zenthia/internal/controller/auth"
	"github.com/uptimizeai/zenthia/internal/controller/backend"
	"github.com/uptimizeai/zenthia/internal/controller/backend/memory"
	"github.com/uptimizeai/zenthia/internal/controller/backend/sqlite"
	"github.com/uptimizeai/zenthia/internal/controller/listener"
	"github.com/uptimizeai/zenthia/internal/controller/middleware"
	"github.com/uptimizeai/zenthia/internal/controller/runner"
	internallog "github.com/uptimizeai/zenthia/internal/log"
	"github.com/uptimizeai/zenthia/internal/tracing"
	"github.com/uptimizeai/zenthia/pkg/errors"
)

// tracerName identifies spans created by the controller.
const tracerName = "github.com/uptimizeai/zenthia/internal/controller"

// rateLimitIdle is how long a client's limiter is kept without requests.
const rateLimitIdle = time.Hour

// Options contains controller options set at build time.
type Options struct {
	Version   string
	Commit    string
	BuildDate string

	// Logger overrides the logger built from the log config.
	Logger *slog.Logger
}

// Controller is the pipeline controller service.
type Controller struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	provider *tracing.Provider
	history  backend.HistoryStore
	recorder *backend.Recorder
	registry *runner.Registry
	executor *runner.Executor
	reaper   *runner.Reaper
	limiter  *auth.RateLimiter
	handler  http.Handler
	server   *http.Server

	mu         sync.Mutex
	started    bool
	stopped    bool
	ln         net.Listener
	stopReaper context.CancelFunc
}

// New creates a controller from cfg. Nothing listens until Start.
func New(cfg *config.Config, opts Options) (*Controller, error) {
	logger := opts.Logger
	if logger == nil {
		logger = internallog.New(&internallog.Config{
			Level:     cfg.Log.Level,
			Format:    internallog.Format(cfg.Log.Format),
			Output:    os.Stderr,
			AddSource: cfg.Log.AddSource,
		})
	}
	logger = internallog.WithComponent(logger, "controller")

	c := &Controller{cfg: cfg, opts: opts, logger: logger}

	provider, err := tracing.NewProvider(context.Background(), tracing.Config{
		Enabled:        cfg.Observability.Enabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: opts.Version,
		Exporter:       cfg.Observability.Exporter,
		Endpoint:       cfg.Observability.Endpoint,
		Insecure:       cfg.Observability.Insecure,
		SampleRate:     cfg.Observability.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	c.provider = provider
	metrics := provider.Metrics()

	history, err := openHistory(cfg)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	c.history = history

	stages, err := agent.NewStages(cfg.Pipeline.Agents,
		agent.WithLogger(internallog.WithComponent(logger, "agent")))
	if err != nil {
		c.closeStorage(context.Background())
		return nil, err
	}

	c.recorder = backend.NewRecorder(history, cfg.History.Buffer, internallog.WithComponent(logger, "history"))
	c.recorder.Start(context.Background())

	observed := &runMetrics{mc: metrics}
	c.registry = runner.NewRegistry(
		runner.Config{
			EvictionDelay: cfg.Pipeline.EvictionDelay,
			StaleAfter:    cfg.Pipeline.StaleAfter,
		},
		runner.WithLogger(internallog.WithComponent(logger, "registry")),
		runner.WithObserver(observed),
		runner.WithObserver(c.recorder),
	)
	if err := metrics.ObserveActiveRuns(c.registry.ActiveCount); err != nil {
		c.closeStorage(context.Background())
		return nil, fmt.Errorf("failed to register active runs gauge: %w", err)
	}

	c.executor = runner.NewExecutor(c.registry, stages,
		runner.ExecutorConfig{
			StageTimeout:    cfg.Pipeline.StageTimeout,
			CancelOnTimeout: cfg.Pipeline.CancelOnTimeout,
		},
		runner.WithExecutorLogger(internallog.WithComponent(logger, "executor")),
		runner.WithTracer(provider.Tracer(tracerName)),
		runner.WithStageObserver(observed),
	)

	c.limiter = auth.NewRateLimiter(auth.RateLimitConfig{
		Enabled:           cfg.Auth.RateLimit.Enabled,
		RequestsPerSecond: cfg.Auth.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.Auth.RateLimit.Burst,
	})

	c.reaper = runner.NewReaper(c.registry, cfg.Pipeline.ReapInterval, internallog.WithComponent(logger, "reaper"))
	c.reaper.AfterSweep(func(ctx context.Context, reaped int) {
		metrics.RecordReaped(ctx, reaped)
	})
	c.reaper.AfterSweep(func(ctx context.Context, _ int) {
		c.recorder.Prune(ctx, cfg.History.Retention)
	})
	c.reaper.AfterSweep(func(context.Context, int) {
		if n := c.limiter.Cleanup(rateLimitIdle); n > 0 {
			c.logger.Debug("forgot idle rate limit clients", "count", n)
		}
	})

	c.handler = c.buildHandler()
	c.server = &http.Server{
		Handler:           c.handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	return c, nil
}

func (c *Controller) buildHandler() http.Handler {
	router := api.NewRouter(api.RouterConfig{
		Version:   c.opts.Version,
		Commit:    c.opts.Commit,
		BuildDate: c.opts.BuildDate,
	}, internallog.WithComponent(c.logger, "api"))

	authenticator := auth.NewAuthenticator(auth.Config{
		APIToken: c.cfg.Auth.APIToken,
		JWT: auth.JWTConfig{
			Secret:    []byte(c.cfg.Auth.JWTSecret),
			Issuer:    c.cfg.Auth.JWTIssuer,
			Audience:  c.cfg.Auth.JWTAudience,
			ClockSkew: 30 * time.Second,
		},
		CookieName: c.cfg.Auth.CookieName,
	}, internallog.WithComponent(c.logger, "auth"))
	if !authenticator.Enabled() {
		c.logger.Warn("API authentication disabled; set auth.api_token or auth.jwt_secret")
	}

	// Rate limiting runs after auth so limits apply per identity.
	router.Guard(authenticator.Middleware, c.limiter.Middleware)

	api.NewCancelHandler(c.registry, c.provider.Metrics(), c.logger).RegisterRoutes(router.Protected())
	api.NewRunsHandler(c.executor, c.registry, c.history, c.logger).RegisterRoutes(router.Protected())
	router.SetMetricsHandler(c.provider.MetricsHandler())

	router.AddHealthCheck("active_runs", func() (string, error) {
		return strconv.Itoa(c.registry.ActiveCount()), nil
	})
	router.AddHealthCheck("executor", func() (string, error) {
		if c.executor.IsDraining() {
			return "draining", nil
		}
		return "accepting", nil
	})
	router.AddHealthCheck("history", func() (string, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := c.history.ListRuns(ctx, backend.RunFilter{Limit: 1}); err != nil {
			return "", err
		}
		return c.cfg.History.Backend, nil
	})

	cors := middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   c.cfg.Server.CORS.AllowedOrigins,
		AllowCredentials: c.cfg.Server.CORS.AllowCredentials,
	})
	httpMw := tracing.HTTPMiddleware(c.provider.Tracer(tracerName), c.provider.Metrics())
	return tracing.CorrelationMiddleware(httpMw(cors(router)))
}

func openHistory(cfg *config.Config) (backend.HistoryStore, error) {
	switch cfg.History.Backend {
	case config.HistorySQLite:
		path := cfg.HistoryPath()
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
		return sqlite.New(sqlite.Config{Path: path, WAL: true})
	default:
		return memory.New(), nil
	}
}

// Handler returns the controller's HTTP handler.
func (c *Controller) Handler() http.Handler {
	return c.handler
}

// Registry returns the run registry.
func (c *Controller) Registry() *runner.Registry {
	return c.registry
}

// Executor returns the pipeline executor.
func (c *Controller) Executor() *runner.Executor {
	return c.executor
}

// Addr returns the listening address, or nil before Start.
func (c *Controller) Addr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ln == nil {
		return nil
	}
	return c.ln.Addr()
}

// Start starts the reaper and serves the API. It blocks until ctx is
// cancelled or the server fails; call Shutdown afterwards either way.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("controller already started")
	}
	if c.stopped {
		c.mu.Unlock()
		return fmt.Errorf("controller is shut down")
	}

	ln, err := listener.New(listener.Config{
		Addr:        c.cfg.Server.Addr,
		AllowRemote: c.cfg.Server.AllowRemote,
		TLSCert:     c.cfg.Server.TLSCert,
		TLSKey:      c.cfg.Server.TLSKey,
	})
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to create listener: %w", err)
	}
	c.ln = ln
	c.started = true

	reaperCtx, stopReaper := context.WithCancel(context.Background())
	c.stopReaper = stopReaper
	c.reaper.Start(reaperCtx)
	c.mu.Unlock()

	c.logger.Info("controller started",
		"addr", ln.Addr().String(),
		"version", c.opts.Version,
		"stages", c.executor.Stages(),
		"stale_after", c.cfg.Pipeline.StaleAfter,
		"cancel_on_timeout", c.cfg.Pipeline.CancelOnTimeout)

	errCh := make(chan error, 1)
	go func() {
		if err := c.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the controller. Runs that do not finish within the drain
// window are cancelled. Safe to call more than once and without Start.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil
	}
	c.stopped = true

	var errs []error

	c.logger.Info("graceful shutdown initiated", "active_runs", c.registry.ActiveCount())

	if c.started {
		c.server.SetKeepAlivesEnabled(false)
		if err := c.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}

		c.stopReaper()
		select {
		case <-c.reaper.Done():
		case <-ctx.Done():
		}
	}

	drainCtx, drainCancel := context.WithTimeout(ctx, c.cfg.Server.ShutdownTimeout)
	err := c.executor.Drain(drainCtx)
	drainCancel()
	if err != nil {
		n := c.registry.CancelAll()
		c.logger.Warn("drain timeout exceeded, cancelling runs", "cancelled", n)
		if err := c.executor.Drain(ctx); err != nil {
			errs = append(errs, fmt.Errorf("executor drain: %w", err))
		}
	} else {
		c.logger.Info("all runs finished during drain")
	}

	// Runs started outside the executor have nobody to wait for.
	if n := c.registry.CancelAll(); n > 0 {
		c.logger.Info("cancelled remaining runs", "count", n)
	}

	errs = append(errs, c.closeStorage(ctx))

	if err := errors.Join(errs...); err != nil {
		return err
	}
	c.logger.Info("controller stopped")
	return nil
}

// closeStorage flushes the recorder and closes the backend and provider.
func (c *Controller) closeStorage(ctx context.Context) error {
	var errs []error
	if c.recorder != nil {
		if err := c.recorder.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("history recorder: %w", err))
		}
	}
	if c.history != nil {
		if err := c.history.Close(); err != nil {
			errs = append(errs, fmt.Errorf("history backend: %w", err))
		}
	}
	if c.provider != nil {
		if err := c.provider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: %w", err))
		}
	}
	return errors.Join(errs...)
}
