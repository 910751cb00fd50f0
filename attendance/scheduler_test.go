package attendance_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/engine"
	"github.com/warp/attendance-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// recordingNotifier captures overdue alerts for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	alerts []engine.LeaveReport
	totals []int64
}

func (n *recordingNotifier) NotifyOverdue(_ context.Context, r engine.LeaveReport, total int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, r)
	n.totals = append(n.totals, total)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

func newTestScheduler(t *testing.T) (*attendance.Scheduler, *attendance.Service, *memory.Store, *recordingNotifier) {
	t.Helper()
	store := memory.New()
	locks := engine.NewLockTable()
	notifier := &recordingNotifier{}
	scheduler := attendance.NewScheduler(store, locks, notifier)
	service := attendance.NewService(store, locks, testConfig(t))
	return scheduler, service, store, notifier
}

// =============================================================================
// SWEEP PATH
// =============================================================================

func TestSweep_AlertsOverdueReportOnce(t *testing.T) {
	// GIVEN: A smoke report (300s) started at T0, not returned by T0+360
	// WHEN: The sweep runs at T0+360
	// THEN: Overdue counter goes 0 -> 1, alerted becomes true, notification sent

	scheduler, service, store, notifier := newTestScheduler(t)
	ctx := context.Background()

	start := localTime(9, 0, 0)
	started, err := service.StartReport(ctx, testSubject, "alice", "smoke", start)
	require.NoError(t, err)

	counted, err := scheduler.SweepOnce(ctx, start.Unix()+360)
	require.NoError(t, err)
	assert.Equal(t, 1, counted)
	assert.Equal(t, 1, notifier.count())

	report, err := store.GetReport(ctx, started.Report.ID)
	require.NoError(t, err)
	assert.True(t, report.Alerted)

	totals, err := store.GetTotals(ctx, testSubject)
	require.NoError(t, err)
	assert.Equal(t, int64(1), totals.OverdueReports)
}

func TestSweep_ThenManualReturn_DoesNotDoubleCount(t *testing.T) {
	// GIVEN: The sweep already alerted the report at T0+360
	// WHEN: The subject manually returns at T0+500
	// THEN: The overdue counter stays at 1

	scheduler, service, _, _ := newTestScheduler(t)
	ctx := context.Background()

	start := localTime(9, 0, 0)
	_, err := service.StartReport(ctx, testSubject, "alice", "smoke", start)
	require.NoError(t, err)

	_, err = scheduler.SweepOnce(ctx, start.Unix()+360)
	require.NoError(t, err)

	result, err := service.EndReport(ctx, testSubject, start.Add(500*time.Second))
	require.NoError(t, err)
	assert.True(t, result.Overdue)
	assert.Equal(t, int64(1), result.OverdueTotal, "manual return after sweep alert must not increment again")

	totals, err := service.Totals(ctx, testSubject)
	require.NoError(t, err)
	assert.Equal(t, int64(1), totals.OverdueReports)
}

func TestManualReturn_ThenSweep_DoesNotDoubleCount(t *testing.T) {
	// The reverse order: a late manual return wins the compare-and-set,
	// a subsequent sweep finds nothing to alert.

	scheduler, service, _, notifier := newTestScheduler(t)
	ctx := context.Background()

	start := localTime(9, 0, 0)
	_, err := service.StartReport(ctx, testSubject, "alice", "smoke", start)
	require.NoError(t, err)

	_, err = service.EndReport(ctx, testSubject, start.Add(400*time.Second))
	require.NoError(t, err)

	counted, err := scheduler.SweepOnce(ctx, start.Unix()+600)
	require.NoError(t, err)
	assert.Zero(t, counted)
	assert.Zero(t, notifier.count())

	totals, err := service.Totals(ctx, testSubject)
	require.NoError(t, err)
	assert.Equal(t, int64(1), totals.OverdueReports)
}

func TestSweep_NotDueYet_NoAlert(t *testing.T) {
	scheduler, service, _, notifier := newTestScheduler(t)
	ctx := context.Background()

	start := localTime(9, 0, 0)
	_, err := service.StartReport(ctx, testSubject, "alice", "meal", start)
	require.NoError(t, err)

	counted, err := scheduler.SweepOnce(ctx, start.Unix()+600)
	require.NoError(t, err)
	assert.Zero(t, counted)
	assert.Zero(t, notifier.count())
}

func TestSweep_Repeated_Idempotent(t *testing.T) {
	scheduler, service, _, notifier := newTestScheduler(t)
	ctx := context.Background()

	start := localTime(9, 0, 0)
	_, err := service.StartReport(ctx, testSubject, "alice", "smoke", start)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := scheduler.SweepOnce(ctx, start.Unix()+360+int64(i))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, notifier.count())

	totals, err := service.Totals(ctx, testSubject)
	require.NoError(t, err)
	assert.Equal(t, int64(1), totals.OverdueReports)
}

// =============================================================================
// TIMER PATH
// =============================================================================

func TestCheckReport_TimerAndSweepConverge(t *testing.T) {
	// The timer path and the sweep path run the same guarded sequence;
	// whichever fires second is a no-op.

	scheduler, service, _, notifier := newTestScheduler(t)
	ctx := context.Background()

	start := localTime(9, 0, 0)
	started, err := service.StartReport(ctx, testSubject, "alice", "smoke", start)
	require.NoError(t, err)

	now := start.Unix() + 360
	first, err := scheduler.CheckReport(ctx, started.Report.ID, now)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := scheduler.CheckReport(ctx, started.Report.ID, now)
	require.NoError(t, err)
	assert.False(t, second)

	assert.Equal(t, 1, notifier.count())
}

func TestCheckReport_ExactlyAtDue_NotOverdue(t *testing.T) {
	scheduler, service, _, _ := newTestScheduler(t)
	ctx := context.Background()

	start := localTime(9, 0, 0)
	started, err := service.StartReport(ctx, testSubject, "alice", "smoke", start)
	require.NoError(t, err)

	counted, err := scheduler.CheckReport(ctx, started.Report.ID, started.Report.DueAt)
	require.NoError(t, err)
	assert.False(t, counted, "due instant itself is not overdue (strict greater-than)")
}

func TestCheckReport_MissingReport_NoOp(t *testing.T) {
	scheduler, _, _, notifier := newTestScheduler(t)

	counted, err := scheduler.CheckReport(context.Background(), engine.ReportID(999), localTime(9, 0, 0).Unix())
	require.NoError(t, err)
	assert.False(t, counted)
	assert.Zero(t, notifier.count())
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestScheduler_StartStop(t *testing.T) {
	scheduler, _, _, _ := newTestScheduler(t)
	scheduler.SweepInterval = time.Hour // keep the loop quiet

	scheduler.Start()
	scheduler.Stop()
	// A second Stop is a no-op.
	scheduler.Stop()
}

func TestRearm_ListsOngoingReports(t *testing.T) {
	// GIVEN: An ongoing report persisted before "restart"
	// WHEN: Rearm runs on a fresh scheduler
	// THEN: It arms without error; the timer fires on its own later, and
	//       the sweep remains the backstop either way

	scheduler, service, _, _ := newTestScheduler(t)
	ctx := context.Background()

	_, err := service.StartReport(ctx, testSubject, "alice", "meal", localTime(9, 0, 0))
	require.NoError(t, err)

	require.NoError(t, scheduler.Rearm(ctx))
	scheduler.Stop()
}
