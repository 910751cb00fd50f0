/*
Package sqlite provides a SQLite-backed implementation of engine.Store.

PURPOSE:
  Implements the session, report, and counter stores using SQLite. In
  production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  sessions: Check-in/check-out work periods
  reports:  Leave-report intervals with due/overdue bookkeeping
  counters: Per-subject cumulative late/overdue counts

INVARIANT ENFORCEMENT:
  Two partial unique indexes back the domain invariants at the database
  level, independent of the per-subject lock:
  - idx_sessions_open:    at most one session with NULL end_at per subject
  - idx_reports_ongoing:  at most one status='ongoing' report per subject
  Violations are mapped to the engine's domain errors.

EXACTLY-ONCE MARKING:
  MarkAlerted is a single UPDATE guarded by "alerted = 0"; the affected
  row count decides the compare-and-set winner.

MIGRATIONS:
  Schema changes run as explicit, versioned, idempotent migration steps
  recorded in schema_migrations, applied once in New(). Steady-state code
  never alters the schema.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety around the connection. SQLite is
  opened with WAL (Write-Ahead Logging) for better concurrency.

USAGE:
  store, err := sqlite.New("./data/attendance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - engine/store.go: Interface definitions
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/attendance-engine/engine"
)

// Store implements engine.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ engine.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path and runs
// any pending migrations. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// All access is serialized behind s.mu; a single pooled connection also
	// keeps ":memory:" databases from splitting across connections.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// SESSIONS
// =============================================================================

func (s *Store) InsertSession(ctx context.Context, sess engine.Session) (engine.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (chat_id, user_id, display_name, day, start_at, end_at, net_seconds, is_late)
		VALUES (?, ?, ?, ?, ?, NULL, 0, ?)`,
		sess.Subject.ChatID, sess.Subject.UserID, sess.DisplayName, sess.Day, sess.StartAt, boolToInt(sess.Late),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return engine.Session{}, &engine.AlreadyOpenError{Subject: sess.Subject, StartAt: sess.StartAt}
		}
		return engine.Session{}, &engine.StoreError{Op: "insert session", Err: err}
	}

	id, err := res.LastInsertId()
	if err != nil {
		return engine.Session{}, &engine.StoreError{Op: "insert session", Err: err}
	}
	sess.ID = engine.SessionID(id)
	return sess, nil
}

func (s *Store) GetOpenSession(ctx context.Context, subject engine.Subject) (*engine.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, chat_id, user_id, display_name, day, start_at, end_at, net_seconds, is_late
		FROM sessions
		WHERE chat_id = ? AND user_id = ? AND end_at IS NULL`,
		subject.ChatID, subject.UserID,
	)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &engine.StoreError{Op: "get open session", Err: err}
	}
	return sess, nil
}

func (s *Store) SettleSession(ctx context.Context, id engine.SessionID, endAt, netSeconds int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET end_at = ?, net_seconds = ?
		WHERE id = ? AND end_at IS NULL`,
		endAt, netSeconds, id,
	)
	if err != nil {
		return &engine.StoreError{Op: "settle session", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &engine.StoreError{Op: "settle session", Err: err}
	}
	if n == 0 {
		return engine.ErrNoOpenSession
	}
	return nil
}

func (s *Store) ForceCloseStale(ctx context.Context, subject engine.Subject, cutoff int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET end_at = start_at, net_seconds = 0
		WHERE chat_id = ? AND user_id = ? AND end_at IS NULL AND start_at < ?`,
		subject.ChatID, subject.UserID, cutoff,
	)
	if err != nil {
		return 0, &engine.StoreError{Op: "force close stale", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &engine.StoreError{Op: "force close stale", Err: err}
	}
	return n, nil
}

// =============================================================================
// REPORTS
// =============================================================================

func (s *Store) InsertReport(ctx context.Context, r engine.LeaveReport) (engine.LeaveReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (chat_id, user_id, display_name, keyword, minutes, start_at, due_at, end_at, status, alerted)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, 'ongoing', 0)`,
		r.Subject.ChatID, r.Subject.UserID, r.DisplayName, r.Keyword, r.AllottedMinutes, r.StartAt, r.DueAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return engine.LeaveReport{}, &engine.AlreadyOngoingError{Subject: r.Subject, Keyword: r.Keyword, DueAt: r.DueAt}
		}
		return engine.LeaveReport{}, &engine.StoreError{Op: "insert report", Err: err}
	}

	id, err := res.LastInsertId()
	if err != nil {
		return engine.LeaveReport{}, &engine.StoreError{Op: "insert report", Err: err}
	}
	r.ID = engine.ReportID(id)
	r.Status = engine.ReportOngoing
	return r, nil
}

func (s *Store) GetOngoingReport(ctx context.Context, subject engine.Subject) (*engine.LeaveReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, chat_id, user_id, display_name, keyword, minutes, start_at, due_at, end_at, status, alerted
		FROM reports
		WHERE chat_id = ? AND user_id = ? AND status = 'ongoing'`,
		subject.ChatID, subject.UserID,
	)
	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &engine.StoreError{Op: "get ongoing report", Err: err}
	}
	return r, nil
}

func (s *Store) GetReport(ctx context.Context, id engine.ReportID) (*engine.LeaveReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, chat_id, user_id, display_name, keyword, minutes, start_at, due_at, end_at, status, alerted
		FROM reports WHERE id = ?`,
		id,
	)
	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &engine.StoreError{Op: "get report", Err: err}
	}
	return r, nil
}

func (s *Store) FinishReport(ctx context.Context, id engine.ReportID, endAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE reports SET status = 'returned', end_at = ?
		WHERE id = ? AND status = 'ongoing'`,
		endAt, id,
	)
	if err != nil {
		return &engine.StoreError{Op: "finish report", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &engine.StoreError{Op: "finish report", Err: err}
	}
	if n == 0 {
		return engine.ErrNoOngoingReport
	}
	return nil
}

func (s *Store) ListOverlapping(ctx context.Context, subject engine.Subject, windowStart, windowEnd int64) ([]engine.LeaveReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, user_id, display_name, keyword, minutes, start_at, due_at, end_at, status, alerted
		FROM reports
		WHERE chat_id = ? AND user_id = ? AND due_at > ? AND start_at < ?
		ORDER BY start_at`,
		subject.ChatID, subject.UserID, windowStart, windowEnd,
	)
	if err != nil {
		return nil, &engine.StoreError{Op: "list overlapping", Err: err}
	}
	defer rows.Close()
	return collectReports(rows, "list overlapping")
}

func (s *Store) ListOverdueUnalerted(ctx context.Context, now int64) ([]engine.LeaveReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, user_id, display_name, keyword, minutes, start_at, due_at, end_at, status, alerted
		FROM reports
		WHERE status = 'ongoing' AND alerted = 0 AND due_at < ?
		ORDER BY id`,
		now,
	)
	if err != nil {
		return nil, &engine.StoreError{Op: "list overdue", Err: err}
	}
	defer rows.Close()
	return collectReports(rows, "list overdue")
}

func (s *Store) ListOngoingUnalerted(ctx context.Context) ([]engine.LeaveReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, user_id, display_name, keyword, minutes, start_at, due_at, end_at, status, alerted
		FROM reports
		WHERE status = 'ongoing' AND alerted = 0
		ORDER BY id`,
	)
	if err != nil {
		return nil, &engine.StoreError{Op: "list ongoing", Err: err}
	}
	defer rows.Close()
	return collectReports(rows, "list ongoing")
}

func (s *Store) MarkAlerted(ctx context.Context, id engine.ReportID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE reports SET alerted = 1 WHERE id = ? AND alerted = 0`,
		id,
	)
	if err != nil {
		return false, &engine.StoreError{Op: "mark alerted", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &engine.StoreError{Op: "mark alerted", Err: err}
	}
	return n == 1, nil
}

// =============================================================================
// COUNTERS
// =============================================================================

func (s *Store) IncrementLate(ctx context.Context, subject engine.Subject) (int64, error) {
	return s.increment(ctx, subject, "late_checkins")
}

func (s *Store) IncrementOverdue(ctx context.Context, subject engine.Subject) (int64, error) {
	return s.increment(ctx, subject, "overdue_reports")
}

// increment upserts the counter row and bumps one column, returning the
// new total. column is one of the two fixed counter names, never user
// input.
func (s *Store) increment(ctx context.Context, subject engine.Subject, column string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := fmt.Sprintf(`
		INSERT INTO counters (chat_id, user_id, %[1]s)
		VALUES (?, ?, 1)
		ON CONFLICT(chat_id, user_id) DO UPDATE SET %[1]s = %[1]s + 1
		RETURNING %[1]s`, column)

	var total int64
	if err := s.db.QueryRowContext(ctx, query, subject.ChatID, subject.UserID).Scan(&total); err != nil {
		return 0, &engine.StoreError{Op: "increment " + column, Err: err}
	}
	return total, nil
}

func (s *Store) GetTotals(ctx context.Context, subject engine.Subject) (engine.CounterTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := engine.CounterTotals{Subject: subject}
	err := s.db.QueryRowContext(ctx, `
		SELECT late_checkins, overdue_reports FROM counters
		WHERE chat_id = ? AND user_id = ?`,
		subject.ChatID, subject.UserID,
	).Scan(&totals.LateCheckins, &totals.OverdueReports)
	if err == sql.ErrNoRows {
		return totals, nil
	}
	if err != nil {
		return engine.CounterTotals{}, &engine.StoreError{Op: "get totals", Err: err}
	}
	return totals, nil
}

// =============================================================================
// ROW SCANNING
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*engine.Session, error) {
	var (
		sess  engine.Session
		endAt sql.NullInt64
		late  int
	)
	err := row.Scan(&sess.ID, &sess.Subject.ChatID, &sess.Subject.UserID, &sess.DisplayName,
		&sess.Day, &sess.StartAt, &endAt, &sess.NetSeconds, &late)
	if err != nil {
		return nil, err
	}
	if endAt.Valid {
		v := endAt.Int64
		sess.EndAt = &v
	}
	sess.Late = late != 0
	return &sess, nil
}

func scanReport(row rowScanner) (*engine.LeaveReport, error) {
	var (
		r       engine.LeaveReport
		endAt   sql.NullInt64
		status  string
		alerted int
	)
	err := row.Scan(&r.ID, &r.Subject.ChatID, &r.Subject.UserID, &r.DisplayName, &r.Keyword,
		&r.AllottedMinutes, &r.StartAt, &r.DueAt, &endAt, &status, &alerted)
	if err != nil {
		return nil, err
	}
	if endAt.Valid {
		v := endAt.Int64
		r.EndAt = &v
	}
	r.Status = engine.ReportStatus(status)
	r.Alerted = alerted != 0
	return &r, nil
}

func collectReports(rows *sql.Rows, op string) ([]engine.LeaveReport, error) {
	var out []engine.LeaveReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, &engine.StoreError{Op: op, Err: err}
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, &engine.StoreError{Op: op, Err: err}
	}
	return out, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// currentTimestamp is recorded with each applied migration.
func currentTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
