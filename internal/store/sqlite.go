package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dodgybits/shuffle/internal/types"
	_ "modernc.org/sqlite"
)

// syncMetaLastSyncAt mirrors the key the sync processor writes after a cycle.
const syncMetaLastSyncAt = "last_sync_at"

// SQLiteStore represents the SQLite-backed task database.
type SQLiteStore struct {
	db       *sql.DB
	contexts *Table[types.Context]
	projects *Table[types.Project]
	tasks    *Table[types.Task]
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLiteStore instance.
// It initializes the database with WAL mode, applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	if dir := filepath.Dir(dbPath); dbPath != ":memory:" && dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Each connection to :memory: is a separate database
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{
		db:       db,
		contexts: newTable(db, contextSchema),
		projects: newTable(db, projectSchema),
		tasks:    newTable(db, taskSchema),
	}, nil
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Contexts returns the contexts table.
func (s *SQLiteStore) Contexts() *Table[types.Context] { return s.contexts }

// Projects returns the projects table.
func (s *SQLiteStore) Projects() *Table[types.Project] { return s.projects }

// Tasks returns the tasks table.
func (s *SQLiteStore) Tasks() *Table[types.Task] { return s.tasks }

// GetStats returns aggregate store statistics
func (s *SQLiteStore) GetStats(ctx context.Context) (*types.StoreStats, error) {
	var stats types.StoreStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM contexts),
			(SELECT COUNT(*) FROM projects),
			(SELECT COUNT(*) FROM tasks)
	`).Scan(&stats.ContextCount, &stats.ProjectCount, &stats.TaskCount)
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}

	lastSync, err := s.GetSyncMeta(ctx, syncMetaLastSyncAt)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, err
	default:
		if t, parseErr := time.Parse(time.RFC3339Nano, lastSync); parseErr == nil {
			stats.LastSync = &t
		} else {
			slog.Warn("sync_meta: failed to parse last_sync_at", "value", lastSync, "error", parseErr)
		}
	}

	return &stats, nil
}

// RecordSyncRun stores the outcome of a sync cycle.
func (s *SQLiteStore) RecordSyncRun(ctx context.Context, run types.SyncRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, started_at, finished_at, status, added, updated, reassigned, deleted, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
		run.Status,
		run.Added,
		run.Updated,
		run.Reassigned,
		run.Deleted,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("record sync run: %w", err)
	}
	return nil
}

// ListSyncRuns returns the most recent sync runs, newest first.
func (s *SQLiteStore) ListSyncRuns(ctx context.Context, limit int) ([]types.SyncRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, status, added, updated, reassigned, deleted, error
		FROM sync_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sync runs: %w", err)
	}
	defer rows.Close()

	runs := make([]types.SyncRun, 0)
	for rows.Next() {
		var run types.SyncRun
		var startedAt, finishedAt string
		if err := rows.Scan(&run.ID, &startedAt, &finishedAt, &run.Status,
			&run.Added, &run.Updated, &run.Reassigned, &run.Deleted, &run.Error); err != nil {
			return nil, fmt.Errorf("scan sync run: %w", err)
		}
		run.StartedAt = parseTime(startedAt)
		run.FinishedAt = parseTime(finishedAt)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetSyncMeta retrieves a sync metadata value by key.
func (s *SQLiteStore) GetSyncMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM sync_meta WHERE key = ?
	`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("sync meta key %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get sync meta: %w", err)
	}
	return value, nil
}

// SetSyncMeta sets a sync metadata value.
func (s *SQLiteStore) SetSyncMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sync_meta (key, value) VALUES (?, ?)
	`, key, value)
	if err != nil {
		return fmt.Errorf("set sync meta: %w", err)
	}
	return nil
}

// Backup writes a consistent copy of the database to path.
// An existing file at path is replaced.
func (s *SQLiteStore) Backup(ctx context.Context, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create backup directory: %w", err)
		}
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove previous backup: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("vacuum into %s: %w", path, err)
	}
	return nil
}
