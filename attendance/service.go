/*
Package attendance implements the attendance and leave-report operations.

PURPOSE:
  Wraps the engine's stores with the business rules of the four user
  actions: check-in, check-out, leave-report start, and leave-report end.
  Every mutating operation runs inside the subject's critical section so
  duplicate submissions cannot race each other.

OPERATION FLOW:
  A classified action plus subject plus wall-clock timestamp enters here;
  stale sessions are repaired first, the relevant store is read under the
  subject's lock, the invariant is checked, the mutation is persisted, and
  a structured result payload is returned for the reply renderer.

SESSION POLICY:
  A subject has at most one open session at a time (rolling window). The
  calendar-day label is informational; after checking out, a subject may
  check in again the same day.

SEE ALSO:
  - engine: Types, stores, settlement calculator, lock table
  - scheduler.go: Due timers and the overdue sweep
  - report.go: Leave-report operations
*/
package attendance

import (
	"context"
	"log"
	"time"

	"github.com/warp/attendance-engine/config"
	"github.com/warp/attendance-engine/engine"
)

// Service executes attendance operations against a store, serialized per
// subject by the lock table.
type Service struct {
	store engine.Store
	locks *engine.LockTable
	calc  *engine.Calculator
	sched *Scheduler

	loc          *time.Location
	lateDeadline config.DayTime
	staleAfter   time.Duration
	keywords     map[string]int
}

// NewService creates the service. The lock table must be shared with the
// scheduler so sweep marking and manual returns serialize against each
// other.
func NewService(store engine.Store, locks *engine.LockTable, cfg *config.Config) *Service {
	return &Service{
		store:        store,
		locks:        locks,
		calc:         &engine.Calculator{Reports: store},
		loc:          cfg.Location,
		lateDeadline: cfg.LateDeadline,
		staleAfter:   cfg.StaleAfter,
		keywords:     cfg.ReportKeywords,
	}
}

// SetScheduler attaches the deadline scheduler. Reports started before the
// scheduler is attached are still covered by its periodic sweep.
func (s *Service) SetScheduler(sched *Scheduler) {
	s.sched = sched
}

// =============================================================================
// CHECK-IN
// =============================================================================

// CheckInResult is the reply payload for a successful check-in.
type CheckInResult struct {
	Session   engine.Session
	ClockTime string // local HH:MM:SS at check-in
	Late      bool
	LateTotal int64 // cumulative late count, set only when Late
}

// CheckIn opens a session for the subject at now. Returns
// ErrSessionAlreadyOpen (as *engine.AlreadyOpenError) if an unexpired open
// session exists. A late check-in increments the subject's late counter
// exactly once and reports the new total.
func (s *Service) CheckIn(ctx context.Context, subject engine.Subject, displayName string, now time.Time) (*CheckInResult, error) {
	local := now.In(s.loc)
	nowTs := now.Unix()

	var result *CheckInResult
	err := s.locks.Do(subject, func() error {
		if err := s.repairStale(ctx, subject, nowTs); err != nil {
			return err
		}

		open, err := s.store.GetOpenSession(ctx, subject)
		if err != nil {
			return err
		}
		if open != nil {
			return &engine.AlreadyOpenError{Subject: subject, StartAt: open.StartAt}
		}

		// Strictly greater-than: checking in exactly at the deadline is on time.
		late := config.SecondsInto(local) > s.lateDeadline

		sess, err := s.store.InsertSession(ctx, engine.Session{
			Subject:     subject,
			DisplayName: displayName,
			Day:         local.Format("2006-01-02"),
			StartAt:     nowTs,
			Late:        late,
		})
		if err != nil {
			return err
		}

		result = &CheckInResult{
			Session:   sess,
			ClockTime: FormatClock(local),
			Late:      late,
		}
		if late {
			total, err := s.store.IncrementLate(ctx, subject)
			if err != nil {
				return err
			}
			result.LateTotal = total
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// =============================================================================
// CHECK-OUT
// =============================================================================

// CheckOutResult is the reply payload for a successful check-out.
type CheckOutResult struct {
	Session   engine.Session
	Summary   WorkSummary
	StartTime string // local HH:MM:SS of check-in
	ClockTime string // local HH:MM:SS of check-out
}

// CheckOut settles the subject's open session at now. Returns
// ErrNoOpenSession if none is open (a stale session repaired in the same
// call no longer counts as open).
func (s *Service) CheckOut(ctx context.Context, subject engine.Subject, now time.Time) (*CheckOutResult, error) {
	local := now.In(s.loc)
	nowTs := now.Unix()

	var result *CheckOutResult
	err := s.locks.Do(subject, func() error {
		if err := s.repairStale(ctx, subject, nowTs); err != nil {
			return err
		}

		open, err := s.store.GetOpenSession(ctx, subject)
		if err != nil {
			return err
		}
		if open == nil {
			return engine.ErrNoOpenSession
		}

		settlement, err := s.calc.Settle(ctx, subject, open.StartAt, nowTs)
		if err != nil {
			return err
		}

		if err := s.store.SettleSession(ctx, open.ID, nowTs, settlement.NetSeconds); err != nil {
			return err
		}

		settled := *open
		endAt := nowTs
		settled.EndAt = &endAt
		settled.NetSeconds = settlement.NetSeconds

		result = &CheckOutResult{
			Session:   settled,
			Summary:   NewWorkSummary(settlement),
			StartTime: FormatClock(time.Unix(open.StartAt, 0).In(s.loc)),
			ClockTime: FormatClock(local),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// repairStale force-closes open sessions older than the stale threshold so
// a forgotten check-out cannot permanently block new check-ins. Runs
// before every open-session check.
func (s *Service) repairStale(ctx context.Context, subject engine.Subject, nowTs int64) error {
	cutoff := nowTs - int64(s.staleAfter/time.Second)
	repaired, err := s.store.ForceCloseStale(ctx, subject, cutoff)
	if err != nil {
		return err
	}
	if repaired > 0 {
		log.Printf("[Attendance] Repaired %d stale session(s) for %s", repaired, subject)
	}
	return nil
}
