package tasks

import (
	"database/sql"
	"fmt"
)

const SchemaVersion = 2

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS import_tasks (
  id TEXT PRIMARY KEY,
  keyword TEXT NOT NULL,
  center_x REAL NOT NULL,
  center_y REAL NOT NULL,
  center_z REAL NOT NULL,
  size_x REAL NOT NULL,
  size_y REAL NOT NULL,
  size_z REAL NOT NULL,
  state TEXT NOT NULL,
  progress INTEGER NOT NULL DEFAULT 0,
  model_name TEXT NOT NULL DEFAULT '',
  error TEXT NOT NULL DEFAULT '',
  created_at_utc TEXT NOT NULL,
  updated_at_utc TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_import_tasks_created ON import_tasks(created_at_utc);
CREATE INDEX IF NOT EXISTS idx_import_tasks_state ON import_tasks(state);
`,
	},
	{
		version: 2,
		sql: `
ALTER TABLE import_tasks ADD COLUMN remote_task_id TEXT NOT NULL DEFAULT '';
ALTER TABLE import_tasks ADD COLUMN message TEXT NOT NULL DEFAULT '';
`,
	},
}

func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at_utc TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP)
);
`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema_migrations version: %w", err)
	}
	if current > SchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported version %d", current, SchemaVersion)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations(version) VALUES (?)`, m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}

	return nil
}
