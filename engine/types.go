/*
Package engine provides the core attendance settlement engine.

PURPOSE:
  This package contains the domain types and algorithms for tracking
  check-in/check-out work sessions and short absence ("leave report")
  intervals, and for computing net worked time by subtracting overlapping
  absence time from gross session duration.

KEY CONCEPTS IN THIS FILE (types.go):
  - Subject: The (chat, user) composite identity all records are keyed by
  - Session: One check-in-to-check-out work period
  - LeaveReport: A declared, time-boxed absence within a session
  - CounterTotals: Per-subject cumulative late/overdue counts

DESIGN PRINCIPLES:
  1. Instants are epoch seconds. Wall-clock semantics (day labels, the
     late-deadline comparison) are applied once, at record creation, in the
     configured local timezone.
  2. Records are owned by the persistence layer. The engine holds no
     long-lived references; every operation re-reads authoritative state
     under the subject's lock before mutating.
  3. At most one open session and at most one ongoing report per subject.

SEE ALSO:
  - store.go: Persistence interfaces for the three record kinds
  - settlement.go: Net worked time calculation
  - guard.go: Per-subject mutual exclusion
*/
package engine

import "fmt"

// =============================================================================
// IDENTIFIERS
// =============================================================================

// Subject is the composite identity all records are keyed by: the chat
// (tenant) the message arrived in plus the user who sent it.
type Subject struct {
	ChatID int64
	UserID int64
}

func (s Subject) String() string {
	return fmt.Sprintf("%d/%d", s.ChatID, s.UserID)
}

type SessionID int64
type ReportID int64

// =============================================================================
// SESSION - One check-in-to-check-out work period
// =============================================================================

// Session records a single work period. A subject has at most one open
// session (EndAt == nil) at any time; the Day label is informational and
// does not scope the uniqueness invariant.
type Session struct {
	ID          SessionID
	Subject     Subject
	DisplayName string
	Day         string // local calendar day at creation, YYYY-MM-DD
	StartAt     int64  // epoch seconds, immutable once set
	EndAt       *int64 // nil while open, set exactly once at settlement
	NetSeconds  int64  // 0 until settlement
	Late        bool   // computed once at creation, immutable
}

// Open reports whether the session has not been settled yet.
func (s *Session) Open() bool {
	return s.EndAt == nil
}

// =============================================================================
// LEAVE REPORT - A declared, time-boxed absence
// =============================================================================

type ReportStatus string

const (
	ReportOngoing  ReportStatus = "ongoing"
	ReportReturned ReportStatus = "returned"
)

// LeaveReport records one absence interval. A subject has at most one
// ongoing report at any time. DueAt is fixed at creation as
// StartAt + AllottedMinutes*60; Alerted flips to true at most once, the
// first time an overdue condition is observed and counted.
type LeaveReport struct {
	ID              ReportID
	Subject         Subject
	DisplayName     string
	Keyword         string
	AllottedMinutes int
	StartAt         int64
	DueAt           int64
	EndAt           *int64 // nil while ongoing
	Status          ReportStatus
	Alerted         bool
}

// Ongoing reports whether the subject has not returned yet.
func (r *LeaveReport) Ongoing() bool {
	return r.Status == ReportOngoing
}

// Overdue reports whether the report's due instant has passed at now.
// The comparison is strictly greater-than: returning exactly at the due
// instant is on time.
func (r *LeaveReport) Overdue(now int64) bool {
	return now > r.DueAt
}

// EffectiveEnd returns the instant up to which this report charges absence
// time. A returned report charges to its actual return instant; an ongoing
// report charges only up to its due instant or now, whichever is earlier,
// so time that has not elapsed is never charged.
func (r *LeaveReport) EffectiveEnd(now int64) int64 {
	if r.Status == ReportReturned && r.EndAt != nil {
		return *r.EndAt
	}
	if r.DueAt < now {
		return r.DueAt
	}
	return now
}

// =============================================================================
// COUNTER TOTALS - Per-subject cumulative counts
// =============================================================================

// CounterTotals holds the two monotonically non-decreasing counters kept
// per subject. Entries are created lazily on first increment or query.
type CounterTotals struct {
	Subject        Subject
	LateCheckins   int64
	OverdueReports int64
}
