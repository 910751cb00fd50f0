/*
migrate.go - Versioned schema migrations

PURPOSE:
  Explicit, versioned, idempotent schema setup run once at initialization.
  Applied versions are recorded in schema_migrations; steady-state code
  never touches the schema. This replaces the older pattern of probing
  PRAGMA table_info and ALTER TABLE-ing missing columns on every start.

ADDING A MIGRATION:
  Append to the migrations slice with the next version number. Never edit
  or reorder applied migrations.
*/
package sqlite

import (
	"database/sql"
	"fmt"
)

type migration struct {
	version int
	name    string
	stmts   string
}

var migrations = []migration{
	{
		version: 1,
		name:    "base schema",
		stmts: `
		CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			day TEXT NOT NULL,
			start_at INTEGER NOT NULL,
			end_at INTEGER,
			net_seconds INTEGER NOT NULL DEFAULT 0,
			is_late INTEGER NOT NULL DEFAULT 0
		);

		-- CRITICAL: at most one open session per subject
		CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_open
			ON sessions(chat_id, user_id) WHERE end_at IS NULL;

		CREATE INDEX IF NOT EXISTS idx_sessions_subject_day
			ON sessions(chat_id, user_id, day);

		CREATE TABLE IF NOT EXISTS reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			keyword TEXT NOT NULL,
			minutes INTEGER NOT NULL,
			start_at INTEGER NOT NULL,
			due_at INTEGER NOT NULL,
			end_at INTEGER,
			status TEXT NOT NULL CHECK(status IN ('ongoing','returned')) DEFAULT 'ongoing',
			alerted INTEGER NOT NULL DEFAULT 0
		);

		-- CRITICAL: at most one ongoing report per subject
		CREATE UNIQUE INDEX IF NOT EXISTS idx_reports_ongoing
			ON reports(chat_id, user_id) WHERE status = 'ongoing';

		-- Settlement window query (hot path at check-out)
		CREATE INDEX IF NOT EXISTS idx_reports_window
			ON reports(chat_id, user_id, start_at, due_at);

		-- Sweep scan
		CREATE INDEX IF NOT EXISTS idx_reports_overdue
			ON reports(due_at) WHERE status = 'ongoing' AND alerted = 0;

		CREATE TABLE IF NOT EXISTS counters (
			chat_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			late_checkins INTEGER NOT NULL DEFAULT 0,
			overdue_reports INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (chat_id, user_id)
		);
		`,
	},
}

// migrate applies pending migrations in order, each in its own
// transaction, recording the applied version.
func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		applied, err := s.migrationApplied(m.version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		if err := s.applyMigration(m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

func (s *Store) migrationApplied(version int) (bool, error) {
	var v int
	err := s.db.QueryRow(`SELECT version FROM schema_migrations WHERE version = ?`, version).Scan(&v)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check migration %d: %w", version, err)
	}
	return true, nil
}

func (s *Store) applyMigration(m migration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.stmts); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
		m.version, m.name, currentTimestamp(),
	); err != nil {
		return err
	}
	return tx.Commit()
}
