/*
interval.go - Interval overlap arithmetic

PURPOSE:
  The one pure function the deduction algorithm rests on: how many seconds
  two half-open time ranges share.

SEE ALSO:
  - settlement.go: Sums overlaps across a session's leave reports
*/
package engine

// Overlap returns the number of seconds the half-open ranges [aStart, aEnd)
// and [bStart, bEnd) share. Pure and total: disjoint or degenerate ranges
// (end before start) clamp to 0.
func Overlap(aStart, aEnd, bStart, bEnd int64) int64 {
	lo := aStart
	if bStart > lo {
		lo = bStart
	}
	hi := aEnd
	if bEnd < hi {
		hi = bEnd
	}
	if hi <= lo {
		return 0
	}
	return hi - lo
}
