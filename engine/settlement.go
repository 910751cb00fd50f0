/*
settlement.go - Net worked time calculation

PURPOSE:
  Computes gross/deducted/net worked seconds for a session at check-out by
  querying the leave reports that overlap the session window and summing
  their overlap with it.

DEDUCTION SEMANTICS:
  - A returned report is charged for its actual elapsed interval
    [StartAt, EndAt), not its allotted minutes.
  - An ongoing report is charged only up to min(DueAt, now), so time that
    has not elapsed is never deducted.
  - Multiple reports are summed independently. Overlapping report time is
    NOT de-duplicated; with the one-ongoing-report invariant intact such
    overlap cannot arise through the public operations.

IDEMPOTENCE:
  Settle performs no writes. Calling it twice with identical inputs and no
  intervening state change yields identical results.

SEE ALSO:
  - interval.go: The overlap primitive
  - store.go: ListOverlapping query contract
*/
package engine

import (
	"context"
	"fmt"
)

// Settlement is the result of the net-worked-time computation performed at
// check-out: gross session seconds, deducted absence seconds, and the
// clamped net.
type Settlement struct {
	GrossSeconds    int64
	DeductedSeconds int64
	NetSeconds      int64
}

// ReportLister is the single query the calculator needs.
type ReportLister interface {
	ListOverlapping(ctx context.Context, subject Subject, windowStart, windowEnd int64) ([]LeaveReport, error)
}

// Calculator computes settlements from the report store.
type Calculator struct {
	Reports ReportLister
}

// Settle computes the settlement for a session running [sessionStart, now).
func (c *Calculator) Settle(ctx context.Context, subject Subject, sessionStart, now int64) (Settlement, error) {
	gross := now - sessionStart
	if gross < 0 {
		gross = 0
	}

	reports, err := c.Reports.ListOverlapping(ctx, subject, sessionStart, now)
	if err != nil {
		return Settlement{}, fmt.Errorf("settle %s: %w", subject, err)
	}

	var deducted int64
	for _, r := range reports {
		deducted += Overlap(sessionStart, now, r.StartAt, r.EffectiveEnd(now))
	}

	net := gross - deducted
	if net < 0 {
		net = 0
	}

	return Settlement{
		GrossSeconds:    gross,
		DeductedSeconds: deducted,
		NetSeconds:      net,
	}, nil
}
