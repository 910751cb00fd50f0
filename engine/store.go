/*
store.go - Persistence interfaces for sessions, reports, and counters

PURPOSE:
  Defines the interface between the engine and the database. All three
  record kinds are exclusively owned by the persistence layer; callers
  re-read authoritative state under the subject's lock before mutating.

KEY INTERFACES:
  SessionStore: check-in/check-out sessions and stale-session repair
  ReportStore:  leave-report lifecycle and the overlap/overdue queries
  CounterStore: per-subject cumulative counters
  Store:        all three, as implemented by store/sqlite and store/memory

EXACTLY-ONCE MARKING:
  MarkAlerted is a compare-and-set: it returns true only for the single
  caller that flipped the alerted flag from false to true. The scheduled
  timer, the periodic sweep, and a late manual return all race through it,
  and only the winner increments the overdue counter.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite store
  - store/memory: In-memory store for testing

SEE ALSO:
  - errors.go: Implementations wrap failures in StoreError
*/
package engine

import "context"

// =============================================================================
// SESSION STORE
// =============================================================================

// SessionStore persists work sessions. Implementations must enforce the
// open-session invariant: inserting a second open session for a subject
// fails with ErrSessionAlreadyOpen.
type SessionStore interface {
	// InsertSession persists a new open session and returns it with its
	// assigned ID.
	InsertSession(ctx context.Context, s Session) (Session, error)

	// GetOpenSession returns the subject's open session, or nil if none.
	GetOpenSession(ctx context.Context, subject Subject) (*Session, error)

	// SettleSession sets the end instant and net worked seconds of a
	// session. Settlement happens exactly once per session.
	SettleSession(ctx context.Context, id SessionID, endAt, netSeconds int64) error

	// ForceCloseStale closes every open session for the subject whose
	// start instant is strictly before cutoff, with end = start and
	// net = 0. Returns the number of sessions repaired.
	ForceCloseStale(ctx context.Context, subject Subject, cutoff int64) (int64, error)
}

// =============================================================================
// REPORT STORE
// =============================================================================

// ReportStore persists leave reports. Implementations must enforce the
// ongoing-report invariant: inserting a second ongoing report for a subject
// fails with ErrReportAlreadyOngoing.
type ReportStore interface {
	// InsertReport persists a new ongoing report and returns it with its
	// assigned ID. IDs are surrogate and monotonically increasing.
	InsertReport(ctx context.Context, r LeaveReport) (LeaveReport, error)

	// GetOngoingReport returns the subject's ongoing report, or nil.
	GetOngoingReport(ctx context.Context, subject Subject) (*LeaveReport, error)

	// GetReport returns a report by ID, or nil if it does not exist.
	GetReport(ctx context.Context, id ReportID) (*LeaveReport, error)

	// FinishReport transitions a report to returned with the given end
	// instant. The transition happens exactly once per report.
	FinishReport(ctx context.Context, id ReportID, endAt int64) error

	// ListOverlapping returns the subject's reports, ongoing or returned,
	// with DueAt > windowStart AND StartAt < windowEnd, ordered by StartAt.
	ListOverlapping(ctx context.Context, subject Subject, windowStart, windowEnd int64) ([]LeaveReport, error)

	// ListOverdueUnalerted returns every ongoing, unalerted report whose
	// due instant is strictly before now, across all subjects. This is the
	// periodic sweep's scan.
	ListOverdueUnalerted(ctx context.Context, now int64) ([]LeaveReport, error)

	// ListOngoingUnalerted returns every ongoing, unalerted report across
	// all subjects, used to re-arm due timers after a restart.
	ListOngoingUnalerted(ctx context.Context) ([]LeaveReport, error)

	// MarkAlerted sets the alerted flag if it is still false. Returns true
	// only for the caller that performed the flip.
	MarkAlerted(ctx context.Context, id ReportID) (bool, error)
}

// =============================================================================
// COUNTER STORE
// =============================================================================

// CounterStore keeps the per-subject cumulative counters. Entries are
// created lazily; increments return the new total for reporting.
type CounterStore interface {
	IncrementLate(ctx context.Context, subject Subject) (int64, error)
	IncrementOverdue(ctx context.Context, subject Subject) (int64, error)
	GetTotals(ctx context.Context, subject Subject) (CounterTotals, error)
}

// =============================================================================
// COMPOSITE
// =============================================================================

// Store is the full persistence surface the attendance service runs on.
type Store interface {
	SessionStore
	ReportStore
	CounterStore
}
