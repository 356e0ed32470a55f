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

// Package sqlite provides a SQLite history store for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/uptimizeai/zenthia/internal/controller/backend"
	"github.com/uptimizeai/zenthia/pkg/errors"
)

var _ backend.HistoryStore = (*Backend)(nil)

// Backend is a SQLite history store.
type Backend struct {
	db *sql.DB
}

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path.
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool
}

// New opens (creating if needed) the database at cfg.Path and applies
// migrations.
func New(cfg Config) (*Backend, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	b := &Backend{db: db}

	if err := b.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}

	if err := b.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return b, nil
}

func (b *Backend) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}

	for _, pragma := range pragmas {
		if _, err := b.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (b *Backend) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS run_history (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			current_agent INTEGER NOT NULL DEFAULT 1,
			error TEXT,
			started_at INTEGER NOT NULL,
			completed_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_history_status ON run_history(status)`,
		`CREATE INDEX IF NOT EXISTS idx_run_history_completed_at ON run_history(completed_at)`,
	}

	for _, migration := range migrations {
		if _, err := b.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// SaveRun inserts or replaces a run.
func (b *Backend) SaveRun(ctx context.Context, run *backend.Run) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO run_history (id, status, current_agent, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			current_agent = excluded.current_agent,
			error = excluded.error,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at`,
		run.ID,
		run.Status,
		run.CurrentAgent,
		nullString(run.Error),
		run.StartedAt.UnixMilli(),
		run.CompletedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (b *Backend) GetRun(ctx context.Context, id string) (*backend.Run, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT id, status, current_agent, error, started_at, completed_at
		FROM run_history WHERE id = ?`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "run", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (b *Backend) ListRuns(ctx context.Context, filter backend.RunFilter) ([]*backend.Run, error) {
	query := `SELECT id, status, current_agent, error, started_at, completed_at FROM run_history`
	var args []any

	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY completed_at DESC, id ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*backend.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteBefore removes runs that completed before t.
func (b *Backend) DeleteBefore(ctx context.Context, t time.Time) (int, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM run_history WHERE completed_at < ?`, t.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*backend.Run, error) {
	var (
		run                    backend.Run
		errText                sql.NullString
		startedMS, completedMS int64
	)
	if err := s.Scan(&run.ID, &run.Status, &run.CurrentAgent, &errText, &startedMS, &completedMS); err != nil {
		return nil, err
	}
	run.Error = errText.String
	run.StartedAt = time.UnixMilli(startedMS)
	run.CompletedAt = time.UnixMilli(completedMS)
	return &run, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
