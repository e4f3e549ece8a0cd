package tasks

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sketchbridge/internal/core/errors"
	"sketchbridge/internal/core/ports"
	"sketchbridge/internal/engine/geometry"
	"sketchbridge/internal/engine/task"

	_ "modernc.org/sqlite"
)

const (
	driverName   = "sqlite"
	maxAttempts  = 5
	defaultLimit = 50
)

type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

var _ ports.TaskStore = (*Store)(nil)

func Open(path string, busyTimeout time.Duration) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("task store path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("task store path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create task store directory %q: %w", dir, err)
		}
	}

	if busyTimeout <= 0 {
		busyTimeout = 2 * time.Second
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", cleanPath, busyTimeout.Milliseconds())
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite task store %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite task store %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Save inserts snap or replaces the stored row with the same id.
func (s *Store) Save(ctx context.Context, snap task.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(snap.ID) == "" {
		return errors.New(errors.CodeValidationError, "task id is required")
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = snap.CreatedAt
	}

	query := `
INSERT INTO import_tasks (
  id, keyword, center_x, center_y, center_z, size_x, size_y, size_z,
  state, progress, model_name, error, created_at_utc, updated_at_utc, remote_task_id, message
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  state=excluded.state,
  progress=excluded.progress,
  model_name=excluded.model_name,
  error=excluded.error,
  updated_at_utc=excluded.updated_at_utc,
  remote_task_id=excluded.remote_task_id,
  message=excluded.message
`
	b := snap.Bounds
	return s.withRetry("save import task", func() error {
		_, err := s.db.ExecContext(ctx,
			query,
			snap.ID,
			snap.Keyword,
			b.Center.X, b.Center.Y, b.Center.Z,
			b.Size.X, b.Size.Y, b.Size.Z,
			string(snap.State),
			snap.Progress,
			snap.ModelName,
			snap.Error,
			snap.CreatedAt.UTC().Format(time.RFC3339Nano),
			snap.UpdatedAt.UTC().Format(time.RFC3339Nano),
			snap.RemoteTaskID,
			snap.Message,
		)
		return err
	})
}

const selectColumns = `
SELECT
  id, keyword, center_x, center_y, center_z, size_x, size_y, size_z,
  state, progress, model_name, error, created_at_utc, updated_at_utc, remote_task_id, message
FROM import_tasks
`

func (s *Store) Get(ctx context.Context, id string) (task.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = strings.TrimSpace(id)
	var (
		snap    task.Snapshot
		scanErr error
	)
	err := s.withRetry("get import task", func() error {
		row := s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
		snap, scanErr = scanSnapshot(row)
		if stderrors.Is(scanErr, sql.ErrNoRows) {
			return nil
		}
		return scanErr
	})
	if err != nil {
		return task.Snapshot{}, err
	}
	if stderrors.Is(scanErr, sql.ErrNoRows) {
		return task.Snapshot{}, errors.AddContext(errors.New(errors.CodeNotFound, fmt.Sprintf("import task not found: %s", id)), errors.CtxTaskID, id)
	}
	return snap, nil
}

// List returns up to limit tasks, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]task.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = defaultLimit
	}

	var rows *sql.Rows
	err := s.withRetry("list import tasks", func() error {
		var qErr error
		rows, qErr = s.db.QueryContext(ctx, selectColumns+" ORDER BY created_at_utc DESC, id ASC LIMIT ?", limit)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]task.Snapshot, 0)
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate import task rows: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (task.Snapshot, error) {
	var (
		snap      task.Snapshot
		state     string
		createdAt string
		updatedAt string
		center    geometry.Vector3
		size      geometry.Vector3
	)
	if err := row.Scan(
		&snap.ID,
		&snap.Keyword,
		&center.X, &center.Y, &center.Z,
		&size.X, &size.Y, &size.Z,
		&state,
		&snap.Progress,
		&snap.ModelName,
		&snap.Error,
		&createdAt,
		&updatedAt,
		&snap.RemoteTaskID,
		&snap.Message,
	); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return task.Snapshot{}, err
		}
		return task.Snapshot{}, fmt.Errorf("scan import task row: %w", err)
	}
	snap.State = task.State(state)
	snap.Bounds = geometry.NewBounds(center, size)

	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return task.Snapshot{}, fmt.Errorf("parse created timestamp %q: %w", createdAt, err)
	}
	updated, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return task.Snapshot{}, fmt.Errorf("parse updated timestamp %q: %w", updatedAt, err)
	}
	snap.CreatedAt = created.UTC()
	snap.UpdatedAt = updated.UTC()
	return snap, nil
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}
