package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/engine"
	"github.com/warp/attendance-engine/store/sqlite"
)

var testSubject = engine.Subject{ChatID: 100, UserID: 7}

const t0 int64 = 1_700_000_000

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func openSession(t *testing.T, store *sqlite.Store, subject engine.Subject, startAt int64) engine.Session {
	t.Helper()
	sess, err := store.InsertSession(context.Background(), engine.Session{
		Subject:     subject,
		DisplayName: "Alice",
		Day:         "2023-11-14",
		StartAt:     startAt,
	})
	require.NoError(t, err)
	return sess
}

func startReport(t *testing.T, store *sqlite.Store, subject engine.Subject, keyword string, minutes int, startAt int64) engine.LeaveReport {
	t.Helper()
	r, err := store.InsertReport(context.Background(), engine.LeaveReport{
		Subject:         subject,
		DisplayName:     "Alice",
		Keyword:         keyword,
		AllottedMinutes: minutes,
		StartAt:         startAt,
		DueAt:           startAt + int64(minutes)*60,
	})
	require.NoError(t, err)
	return r
}

// =============================================================================
// MIGRATIONS
// =============================================================================

func TestMigrations_Idempotent(t *testing.T) {
	// GIVEN a database already migrated once
	path := filepath.Join(t.TempDir(), "attendance.db")
	first, err := sqlite.New(path)
	require.NoError(t, err)
	openSession(t, first, testSubject, t0)
	require.NoError(t, first.Close())

	// WHEN it is opened again
	second, err := sqlite.New(path)
	require.NoError(t, err)
	defer second.Close()

	// THEN migrations do not re-apply and data survives
	sess, err := second.GetOpenSession(context.Background(), testSubject)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, t0, sess.StartAt)
}

// =============================================================================
// SESSIONS
// =============================================================================

func TestInsertSession_AssignsID(t *testing.T) {
	store := newTestStore(t)

	sess := openSession(t, store, testSubject, t0)
	assert.NotZero(t, sess.ID)
	assert.True(t, sess.Open())
}

func TestInsertSession_SecondOpenRejected(t *testing.T) {
	// GIVEN a subject with an open session
	store := newTestStore(t)
	openSession(t, store, testSubject, t0)

	// WHEN a second open session is inserted for the same subject
	_, err := store.InsertSession(context.Background(), engine.Session{
		Subject: testSubject,
		Day:     "2023-11-14",
		StartAt: t0 + 60,
	})

	// THEN the partial unique index maps to the domain error
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrSessionAlreadyOpen)
	var alreadyOpen *engine.AlreadyOpenError
	require.ErrorAs(t, err, &alreadyOpen)
	assert.Equal(t, testSubject, alreadyOpen.Subject)
}

func TestInsertSession_OpenAllowedAfterSettle(t *testing.T) {
	store := newTestStore(t)
	sess := openSession(t, store, testSubject, t0)

	require.NoError(t, store.SettleSession(context.Background(), sess.ID, t0+3600, 3600))

	// A settled session no longer blocks the unique index.
	openSession(t, store, testSubject, t0+7200)
}

func TestGetOpenSession_NoneReturnsNil(t *testing.T) {
	store := newTestStore(t)

	sess, err := store.GetOpenSession(context.Background(), testSubject)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestSettleSession(t *testing.T) {
	store := newTestStore(t)
	sess := openSession(t, store, testSubject, t0)

	require.NoError(t, store.SettleSession(context.Background(), sess.ID, t0+3600, 2700))

	open, err := store.GetOpenSession(context.Background(), testSubject)
	require.NoError(t, err)
	assert.Nil(t, open, "settled session must not read as open")
}

func TestSettleSession_TwiceFails(t *testing.T) {
	store := newTestStore(t)
	sess := openSession(t, store, testSubject, t0)

	require.NoError(t, store.SettleSession(context.Background(), sess.ID, t0+3600, 3600))
	err := store.SettleSession(context.Background(), sess.ID, t0+7200, 7200)
	assert.ErrorIs(t, err, engine.ErrNoOpenSession)
}

func TestForceCloseStale(t *testing.T) {
	// GIVEN an open session older than the cutoff
	store := newTestStore(t)
	openSession(t, store, testSubject, t0)

	// WHEN stale sessions are force-closed
	n, err := store.ForceCloseStale(context.Background(), testSubject, t0+1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// THEN the subject has no open session anymore
	open, err := store.GetOpenSession(context.Background(), testSubject)
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestForceCloseStale_FreshSessionUntouched(t *testing.T) {
	store := newTestStore(t)
	openSession(t, store, testSubject, t0)

	n, err := store.ForceCloseStale(context.Background(), testSubject, t0)
	require.NoError(t, err)
	assert.Zero(t, n, "cutoff is exclusive: start_at == cutoff is not stale")
}

// =============================================================================
// REPORTS
// =============================================================================

func TestInsertReport_SecondOngoingRejected(t *testing.T) {
	store := newTestStore(t)
	startReport(t, store, testSubject, "吃饭", 30, t0)

	_, err := store.InsertReport(context.Background(), engine.LeaveReport{
		Subject: testSubject,
		Keyword: "抽烟",
		StartAt: t0 + 60,
		DueAt:   t0 + 360,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrReportAlreadyOngoing)
	var ongoing *engine.AlreadyOngoingError
	require.ErrorAs(t, err, &ongoing)
	assert.Equal(t, "抽烟", ongoing.Keyword)
}

func TestFinishReport(t *testing.T) {
	store := newTestStore(t)
	r := startReport(t, store, testSubject, "吃饭", 30, t0)

	require.NoError(t, store.FinishReport(context.Background(), r.ID, t0+900))

	got, err := store.GetReport(context.Background(), r.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, engine.ReportReturned, got.Status)
	require.NotNil(t, got.EndAt)
	assert.Equal(t, t0+900, *got.EndAt)

	// A returned report unblocks the ongoing index.
	startReport(t, store, testSubject, "抽烟", 5, t0+1000)
}

func TestFinishReport_TwiceFails(t *testing.T) {
	store := newTestStore(t)
	r := startReport(t, store, testSubject, "吃饭", 30, t0)

	require.NoError(t, store.FinishReport(context.Background(), r.ID, t0+900))
	err := store.FinishReport(context.Background(), r.ID, t0+1000)
	assert.ErrorIs(t, err, engine.ErrNoOngoingReport)
}

func TestListOverlapping_WindowBounds(t *testing.T) {
	// GIVEN reports before, inside, and after the window
	store := newTestStore(t)
	ctx := context.Background()

	before := startReport(t, store, testSubject, "抽烟", 5, t0-1000)
	require.NoError(t, store.FinishReport(ctx, before.ID, t0-700))
	inside := startReport(t, store, testSubject, "吃饭", 30, t0+100)
	require.NoError(t, store.FinishReport(ctx, inside.ID, t0+1000))
	startReport(t, store, testSubject, "wc大", 10, t0+5000)

	// WHEN listing a window that only spans the middle report
	got, err := store.ListOverlapping(ctx, testSubject, t0, t0+2000)
	require.NoError(t, err)

	// THEN only the overlapping report is returned
	require.Len(t, got, 1)
	assert.Equal(t, inside.ID, got[0].ID)
}

func TestListOverlapping_OtherSubjectExcluded(t *testing.T) {
	store := newTestStore(t)
	other := engine.Subject{ChatID: 100, UserID: 8}
	startReport(t, store, other, "吃饭", 30, t0)

	got, err := store.ListOverlapping(context.Background(), testSubject, t0-100, t0+100_000)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListOverdueUnalerted_StrictBound(t *testing.T) {
	store := newTestStore(t)
	r := startReport(t, store, testSubject, "吃饭", 30, t0)

	// Exactly at the due instant nothing is overdue yet.
	got, err := store.ListOverdueUnalerted(context.Background(), r.DueAt)
	require.NoError(t, err)
	assert.Empty(t, got)

	// One second past due it is.
	got, err = store.ListOverdueUnalerted(context.Background(), r.DueAt+1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, r.ID, got[0].ID)
}

func TestMarkAlerted_CompareAndSet(t *testing.T) {
	store := newTestStore(t)
	r := startReport(t, store, testSubject, "吃饭", 30, t0)

	won, err := store.MarkAlerted(context.Background(), r.ID)
	require.NoError(t, err)
	assert.True(t, won, "first marker wins")

	won, err = store.MarkAlerted(context.Background(), r.ID)
	require.NoError(t, err)
	assert.False(t, won, "second marker loses")

	got, err := store.GetReport(context.Background(), r.ID)
	require.NoError(t, err)
	assert.True(t, got.Alerted)
}

func TestMarkedReport_ExcludedFromSweepLists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	r := startReport(t, store, testSubject, "吃饭", 30, t0)

	_, err := store.MarkAlerted(ctx, r.ID)
	require.NoError(t, err)

	overdue, err := store.ListOverdueUnalerted(ctx, r.DueAt+1000)
	require.NoError(t, err)
	assert.Empty(t, overdue)

	ongoing, err := store.ListOngoingUnalerted(ctx)
	require.NoError(t, err)
	assert.Empty(t, ongoing)
}

// =============================================================================
// COUNTERS
// =============================================================================

func TestCounters_UpsertAndTotals(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	n, err := store.IncrementLate(ctx, testSubject)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.IncrementLate(ctx, testSubject)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = store.IncrementOverdue(ctx, testSubject)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	totals, err := store.GetTotals(ctx, testSubject)
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals.LateCheckins)
	assert.Equal(t, int64(1), totals.OverdueReports)
}

func TestCounters_UnknownSubjectZero(t *testing.T) {
	store := newTestStore(t)

	totals, err := store.GetTotals(context.Background(), engine.Subject{ChatID: 1, UserID: 2})
	require.NoError(t, err)
	assert.Zero(t, totals.LateCheckins)
	assert.Zero(t, totals.OverdueReports)

	// Counters stay per-subject.
	_, err = store.IncrementOverdue(context.Background(), testSubject)
	require.NoError(t, err)
	totals, err = store.GetTotals(context.Background(), engine.Subject{ChatID: 1, UserID: 2})
	require.NoError(t, err)
	assert.Zero(t, totals.OverdueReports)
}
