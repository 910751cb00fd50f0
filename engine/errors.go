/*
errors.go - Centralized error types for the attendance engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The four domain errors are expected, recoverable-by-the-user conditions:
  callers translate them into explanatory replies and never escalate them.
  Store failures wrap ErrStoreUnavailable and surface as a generic failure.

USAGE:
  if errors.Is(err, engine.ErrSessionAlreadyOpen) {
      // reply "already checked in", keep existing session untouched
  }

SEE ALSO:
  - store.go: Store implementations wrap failures in StoreError
  - attendance/service.go: Translates domain errors into reply payloads
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrSessionAlreadyOpen is returned when a check-in is attempted while
	// an unexpired open session exists for the subject.
	ErrSessionAlreadyOpen = errors.New("session already open")

	// ErrNoOpenSession is returned when a check-out is attempted with no
	// open session for the subject.
	ErrNoOpenSession = errors.New("no open session")

	// ErrReportAlreadyOngoing is returned when a leave report is started
	// while another one is still ongoing for the subject.
	ErrReportAlreadyOngoing = errors.New("report already ongoing")

	// ErrNoOngoingReport is returned when a return is attempted with no
	// ongoing report for the subject.
	ErrNoOngoingReport = errors.New("no ongoing report")

	// ErrUnknownKeyword is returned when a leave report is started with a
	// keyword that has no configured allotted minutes.
	ErrUnknownKeyword = errors.New("unknown report keyword")

	// ErrStoreUnavailable matches any persistence failure wrapped in
	// StoreError, via errors.Is.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// IsUserError returns true if the error is an expected domain condition
// that should become an explanatory reply rather than a failure.
func IsUserError(err error) bool {
	return errors.Is(err, ErrSessionAlreadyOpen) ||
		errors.Is(err, ErrNoOpenSession) ||
		errors.Is(err, ErrReportAlreadyOngoing) ||
		errors.Is(err, ErrNoOngoingReport) ||
		errors.Is(err, ErrUnknownKeyword)
}

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// AlreadyOpenError reports the start instant of the session that blocked a
// check-in, so the reply can show when the subject originally clocked in.
type AlreadyOpenError struct {
	Subject Subject
	StartAt int64
}

func (e *AlreadyOpenError) Error() string {
	return fmt.Sprintf("subject %s already has an open session since %d", e.Subject, e.StartAt)
}

func (e *AlreadyOpenError) Unwrap() error { return ErrSessionAlreadyOpen }

// AlreadyOngoingError reports the keyword of the report that blocked a new
// leave report.
type AlreadyOngoingError struct {
	Subject Subject
	Keyword string
	DueAt   int64
}

func (e *AlreadyOngoingError) Error() string {
	return fmt.Sprintf("subject %s already has an ongoing %q report due at %d", e.Subject, e.Keyword, e.DueAt)
}

func (e *AlreadyOngoingError) Unwrap() error { return ErrReportAlreadyOngoing }

// StoreError wraps a persistence failure with the operation that failed.
// It matches ErrStoreUnavailable via errors.Is while preserving the cause.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }
