/*
summary.go - Duration and settlement formatting for reply payloads

PURPOSE:
  Human-facing numbers for the structured reply payloads: compact duration
  strings, local clock timestamps, and decimal hour totals (two places,
  exact division) for the check-out summary.
*/
package attendance

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/attendance-engine/engine"
)

// WorkSummary is the settlement of one session prepared for display.
type WorkSummary struct {
	GrossSeconds    int64
	DeductedSeconds int64
	NetSeconds      int64
	Gross           string
	Deducted        string
	Net             string
	NetHours        decimal.Decimal
}

// NewWorkSummary formats a settlement.
func NewWorkSummary(st engine.Settlement) WorkSummary {
	return WorkSummary{
		GrossSeconds:    st.GrossSeconds,
		DeductedSeconds: st.DeductedSeconds,
		NetSeconds:      st.NetSeconds,
		Gross:           FormatDuration(st.GrossSeconds),
		Deducted:        FormatDuration(st.DeductedSeconds),
		Net:             FormatDuration(st.NetSeconds),
		NetHours:        Hours(st.NetSeconds),
	}
}

// FormatDuration renders seconds as "2h5m30s", "5m30s", or "30s",
// dropping leading zero units. Negative input clamps to 0.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := seconds % 3600 / 60
	s := seconds % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm%ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// FormatClock renders a local instant as HH:MM:SS.
func FormatClock(at time.Time) string {
	return at.Format("15:04:05")
}

// Hours converts seconds to decimal hours rounded to two places.
func Hours(seconds int64) decimal.Decimal {
	return decimal.NewFromInt(seconds).Div(decimal.NewFromInt(3600)).Round(2)
}
