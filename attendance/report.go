/*
report.go - Leave-report lifecycle operations

PURPOSE:
  Starting a leave report (with its configured allotted minutes and due
  instant) and ending it on return, including the exactly-once overdue
  accounting shared with the scheduler.

EXACTLY-ONCE OVERDUE COUNTING:
  A report can be observed overdue by three independent paths: the one-shot
  due timer, the periodic sweep, and a late manual return. All three funnel
  through the store's MarkAlerted compare-and-set; only the winner
  increments the overdue counter. The alerted flag is the single source of
  truth.

SEE ALSO:
  - scheduler.go: The timer and sweep paths
  - engine/store.go: MarkAlerted contract
*/
package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/attendance-engine/engine"
)

// =============================================================================
// START REPORT
// =============================================================================

// StartReportResult is the reply payload for a started leave report.
type StartReportResult struct {
	Report  engine.LeaveReport
	DueTime string // local HH:MM:SS the subject is due back
}

// StartReport opens a leave report for the subject. The keyword must be
// present in the configured keyword→minutes mapping. Returns
// ErrReportAlreadyOngoing (as *engine.AlreadyOngoingError) if the subject
// already has an ongoing report.
func (s *Service) StartReport(ctx context.Context, subject engine.Subject, displayName, keyword string, now time.Time) (*StartReportResult, error) {
	minutes, ok := s.keywords[keyword]
	if !ok {
		return nil, fmt.Errorf("%w: %q", engine.ErrUnknownKeyword, keyword)
	}

	nowTs := now.Unix()
	var result *StartReportResult
	err := s.locks.Do(subject, func() error {
		current, err := s.store.GetOngoingReport(ctx, subject)
		if err != nil {
			return err
		}
		if current != nil {
			return &engine.AlreadyOngoingError{
				Subject: subject,
				Keyword: current.Keyword,
				DueAt:   current.DueAt,
			}
		}

		report, err := s.store.InsertReport(ctx, engine.LeaveReport{
			Subject:         subject,
			DisplayName:     displayName,
			Keyword:         keyword,
			AllottedMinutes: minutes,
			StartAt:         nowTs,
			DueAt:           nowTs + int64(minutes)*60,
			Status:          engine.ReportOngoing,
		})
		if err != nil {
			return err
		}

		result = &StartReportResult{
			Report:  report,
			DueTime: FormatClock(time.Unix(report.DueAt, 0).In(s.loc)),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Armed outside the guard: the timer only ever re-reads state under
	// its own critical section.
	if s.sched != nil {
		s.sched.Arm(result.Report)
	}
	return result, nil
}

// =============================================================================
// END REPORT
// =============================================================================

// EndReportResult is the reply payload for a returned leave report.
type EndReportResult struct {
	Report       engine.LeaveReport
	UsedSeconds  int64
	Used         string // formatted duration
	Overdue      bool
	OverdueTotal int64 // cumulative overdue count, set only when Overdue
}

// EndReport transitions the subject's ongoing report to returned at now.
// Returns ErrNoOngoingReport if none is ongoing. If the return is overdue
// and the report was not already alerted, the overdue counter increments
// atomically with the alerted flip, so a manual return racing a scheduled
// alert cannot double-count.
func (s *Service) EndReport(ctx context.Context, subject engine.Subject, now time.Time) (*EndReportResult, error) {
	nowTs := now.Unix()
	var result *EndReportResult
	err := s.locks.Do(subject, func() error {
		report, err := s.store.GetOngoingReport(ctx, subject)
		if err != nil {
			return err
		}
		if report == nil {
			return engine.ErrNoOngoingReport
		}

		if err := s.store.FinishReport(ctx, report.ID, nowTs); err != nil {
			return err
		}

		returned := *report
		endAt := nowTs
		returned.EndAt = &endAt
		returned.Status = engine.ReportReturned

		used := nowTs - report.StartAt
		result = &EndReportResult{
			Report:      returned,
			UsedSeconds: used,
			Used:        FormatDuration(used),
			Overdue:     returned.Overdue(nowTs),
		}
		if result.Overdue {
			won, err := s.store.MarkAlerted(ctx, report.ID)
			if err != nil {
				return err
			}
			if won {
				total, err := s.store.IncrementOverdue(ctx, subject)
				if err != nil {
					return err
				}
				result.OverdueTotal = total
			} else {
				totals, err := s.store.GetTotals(ctx, subject)
				if err != nil {
					return err
				}
				result.OverdueTotal = totals.OverdueReports
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// =============================================================================
// READ-ONLY QUERIES
// =============================================================================

// SubjectStatus is a read-only snapshot for status queries.
type SubjectStatus struct {
	OpenSession   *engine.Session
	OngoingReport *engine.LeaveReport
	Totals        engine.CounterTotals
}

// Status reads the subject's current state without taking the lock.
func (s *Service) Status(ctx context.Context, subject engine.Subject) (*SubjectStatus, error) {
	open, err := s.store.GetOpenSession(ctx, subject)
	if err != nil {
		return nil, err
	}
	ongoing, err := s.store.GetOngoingReport(ctx, subject)
	if err != nil {
		return nil, err
	}
	totals, err := s.store.GetTotals(ctx, subject)
	if err != nil {
		return nil, err
	}
	return &SubjectStatus{OpenSession: open, OngoingReport: ongoing, Totals: totals}, nil
}

// Totals returns the subject's cumulative counters.
func (s *Service) Totals(ctx context.Context, subject engine.Subject) (engine.CounterTotals, error) {
	return s.store.GetTotals(ctx, subject)
}
