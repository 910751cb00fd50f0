package engine_test

import (
	"context"
	"testing"

	"github.com/warp/attendance-engine/engine"
	"github.com/warp/attendance-engine/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var testSubject = engine.Subject{ChatID: 100, UserID: 7}

const t0 int64 = 1_700_000_000

func newCalculator() (*engine.Calculator, *memory.Store) {
	store := memory.New()
	return &engine.Calculator{Reports: store}, store
}

func insertReport(t *testing.T, store *memory.Store, keyword string, minutes int, startAt int64) engine.LeaveReport {
	t.Helper()
	r, err := store.InsertReport(context.Background(), engine.LeaveReport{
		Subject:         testSubject,
		Keyword:         keyword,
		AllottedMinutes: minutes,
		StartAt:         startAt,
		DueAt:           startAt + int64(minutes)*60,
		Status:          engine.ReportOngoing,
	})
	if err != nil {
		t.Fatalf("insert report: %v", err)
	}
	return r
}

// =============================================================================
// SETTLEMENT SCENARIOS
// =============================================================================

func TestSettle_NoReports(t *testing.T) {
	// GIVEN: Check-in at T0, no reports
	// WHEN: Settling at T0+3600
	// THEN: gross=3600, deducted=0, net=3600

	calc, _ := newCalculator()
	st, err := calc.Settle(context.Background(), testSubject, t0, t0+3600)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.GrossSeconds != 3600 || st.DeductedSeconds != 0 || st.NetSeconds != 3600 {
		t.Errorf("got %+v, want gross=3600 deducted=0 net=3600", st)
	}
}

func TestSettle_ReturnedReport_ChargesElapsedNotAllotted(t *testing.T) {
	// GIVEN: "meal" report (30min allotted) from T0+100, returned at T0+1000
	// WHEN: Settling at T0+3600
	// THEN: deducted=900 (actual elapsed time, not the allotted 1800), net=2700

	calc, store := newCalculator()
	r := insertReport(t, store, "meal", 30, t0+100)
	if err := store.FinishReport(context.Background(), r.ID, t0+1000); err != nil {
		t.Fatalf("finish report: %v", err)
	}

	st, err := calc.Settle(context.Background(), testSubject, t0, t0+3600)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.DeductedSeconds != 900 {
		t.Errorf("deducted = %d, want 900", st.DeductedSeconds)
	}
	if st.NetSeconds != 2700 {
		t.Errorf("net = %d, want 2700", st.NetSeconds)
	}
}

func TestSettle_OngoingReport_ChargesUpToDue(t *testing.T) {
	// GIVEN: "smoke" report (5min allotted) from T0+100, never returned
	// WHEN: Settling at T0+3600
	// THEN: effective end = min(due=T0+400, now) = T0+400, deducted=300, net=3200

	calc, store := newCalculator()
	insertReport(t, store, "smoke", 5, t0+100)

	st, err := calc.Settle(context.Background(), testSubject, t0, t0+3600)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.DeductedSeconds != 300 {
		t.Errorf("deducted = %d, want 300", st.DeductedSeconds)
	}
	if st.NetSeconds != 3200 {
		t.Errorf("net = %d, want 3200", st.NetSeconds)
	}
}

func TestSettle_OngoingReport_NotYetDue_ChargesUpToNow(t *testing.T) {
	// GIVEN: "meal" report (30min) from T0+100, still ongoing and not yet due
	// WHEN: Settling at T0+600 (before the T0+1900 due instant)
	// THEN: Charged only the elapsed 500s, never future time

	calc, store := newCalculator()
	insertReport(t, store, "meal", 30, t0+100)

	st, err := calc.Settle(context.Background(), testSubject, t0, t0+600)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.DeductedSeconds != 500 {
		t.Errorf("deducted = %d, want 500", st.DeductedSeconds)
	}
}

func TestSettle_MultipleReports_Summed(t *testing.T) {
	// GIVEN: Two non-overlapping returned reports, 300s and 600s elapsed
	// WHEN: Settling over the whole window
	// THEN: deducted=900

	calc, store := newCalculator()
	ctx := context.Background()
	r1 := insertReport(t, store, "smoke", 5, t0+100)
	if err := store.FinishReport(ctx, r1.ID, t0+400); err != nil {
		t.Fatal(err)
	}
	r2 := insertReport(t, store, "wc", 5, t0+1000)
	if err := store.FinishReport(ctx, r2.ID, t0+1600); err != nil {
		t.Fatal(err)
	}

	st, err := calc.Settle(ctx, testSubject, t0, t0+3600)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.DeductedSeconds != 900 {
		t.Errorf("deducted = %d, want 900", st.DeductedSeconds)
	}
}

func TestSettle_DeductionExceedsGross_NetClampsToZero(t *testing.T) {
	// GIVEN: A report spanning more than the whole session window
	// WHEN: Settling a short session inside it
	// THEN: net clamps to 0

	calc, store := newCalculator()
	r := insertReport(t, store, "meal", 30, t0-100)
	if err := store.FinishReport(context.Background(), r.ID, t0+700); err != nil {
		t.Fatal(err)
	}

	st, err := calc.Settle(context.Background(), testSubject, t0, t0+600)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.NetSeconds != 0 {
		t.Errorf("net = %d, want 0", st.NetSeconds)
	}
}

func TestSettle_Idempotent(t *testing.T) {
	// GIVEN: A fixed store state
	// WHEN: Settling twice with identical inputs
	// THEN: Identical results

	calc, store := newCalculator()
	insertReport(t, store, "smoke", 5, t0+100)

	first, err := calc.Settle(context.Background(), testSubject, t0, t0+3600)
	if err != nil {
		t.Fatal(err)
	}
	second, err := calc.Settle(context.Background(), testSubject, t0, t0+3600)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("settle not idempotent: %+v vs %+v", first, second)
	}
}

func TestSettle_OtherSubjectReports_Ignored(t *testing.T) {
	// GIVEN: A report belonging to a different subject
	// WHEN: Settling for testSubject
	// THEN: Nothing deducted

	calc, store := newCalculator()
	other := engine.Subject{ChatID: 100, UserID: 99}
	if _, err := store.InsertReport(context.Background(), engine.LeaveReport{
		Subject: other, Keyword: "meal", AllottedMinutes: 30,
		StartAt: t0 + 100, DueAt: t0 + 1900, Status: engine.ReportOngoing,
	}); err != nil {
		t.Fatal(err)
	}

	st, err := calc.Settle(context.Background(), testSubject, t0, t0+3600)
	if err != nil {
		t.Fatal(err)
	}
	if st.DeductedSeconds != 0 {
		t.Errorf("deducted = %d, want 0", st.DeductedSeconds)
	}
}
