/*
scheduler.go - Due timers and the overdue sweep

PURPOSE:
  Watches ongoing leave reports for their due instants. Two independent
  paths observe overdue reports:
  - A one-shot timer armed when a report starts (low latency).
  - A periodic sweep over ongoing, unalerted, past-due reports (the
    correctness backstop; recovers timers lost across a restart).

DESIGN:
  - Runs a background goroutine with a configurable sweep interval.
  - Both paths converge on CheckReport, which re-reads the report under
    the subject's lock and goes through the store's MarkAlerted
    compare-and-set. The alerted flag is the sole correctness mechanism,
    so the paths are idempotent against each other and against a late
    manual return.
  - Timers are never cancelled on return; a fired timer that loses the
    compare-and-set simply does nothing.

USAGE:
  sched := attendance.NewScheduler(store, locks, notifier)
  sched.Rearm(ctx) // after restart
  sched.Start()
  // ... later
  sched.Stop()

SEE ALSO:
  - report.go: The manual-return path of the same accounting
  - engine/store.go: ListOverdueUnalerted, MarkAlerted
*/
package attendance

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/attendance-engine/engine"
)

// Notifier receives overdue alerts. Implementations deliver them to the
// chat transport; delivery happens outside any per-subject lock.
type Notifier interface {
	NotifyOverdue(ctx context.Context, report engine.LeaveReport, overdueTotal int64)
}

// LogNotifier writes overdue alerts to the process log. Used when no chat
// transport is wired up.
type LogNotifier struct{}

func (LogNotifier) NotifyOverdue(_ context.Context, r engine.LeaveReport, total int64) {
	log.Printf("[Overdue] %s (%s) is overdue on %q, %d overdue total",
		r.DisplayName, r.Subject, r.Keyword, total)
}

// Scheduler owns the due timers and the sweep loop.
type Scheduler struct {
	store    engine.Store
	locks    *engine.LockTable
	notifier Notifier

	// SweepInterval is how often the backstop scan runs. Set before Start.
	SweepInterval time.Duration

	mu     sync.Mutex
	timers map[engine.ReportID]*time.Timer
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler sharing the service's store and lock
// table.
func NewScheduler(store engine.Store, locks *engine.LockTable, notifier Notifier) *Scheduler {
	return &Scheduler{
		store:         store,
		locks:         locks,
		notifier:      notifier,
		SweepInterval: 60 * time.Second,
		timers:        make(map[engine.ReportID]*time.Timer),
		stop:          make(chan struct{}),
	}
}

// Start begins the sweep loop. An initial sweep runs immediately so
// reports that came due while the process was down are alerted without
// waiting a full interval.
func (sc *Scheduler) Start() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.ticker = time.NewTicker(sc.SweepInterval)
	sc.wg.Add(1)
	go sc.run(sc.ticker)

	log.Printf("[Scheduler] Started with sweep interval: %v", sc.SweepInterval)
}

// Stop halts the sweep loop and any pending due timers.
func (sc *Scheduler) Stop() {
	sc.mu.Lock()
	if sc.ticker == nil {
		sc.mu.Unlock()
		return
	}
	sc.ticker.Stop()
	sc.ticker = nil
	close(sc.stop)
	for id, t := range sc.timers {
		t.Stop()
		delete(sc.timers, id)
	}
	sc.mu.Unlock()

	sc.wg.Wait()
	log.Println("[Scheduler] Stopped")
}

func (sc *Scheduler) run(ticker *time.Ticker) {
	defer sc.wg.Done()

	sc.sweep()
	for {
		select {
		case <-ticker.C:
			sc.sweep()
		case <-sc.stop:
			return
		}
	}
}

func (sc *Scheduler) sweep() {
	n, err := sc.SweepOnce(context.Background(), time.Now().Unix())
	if err != nil {
		log.Printf("[Sweep] Error: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[Sweep] Alerted %d overdue report(s)", n)
	}
}

// =============================================================================
// TIMER PATH
// =============================================================================

// Arm schedules a one-shot check for the report's due instant. A report
// already past due is checked immediately. Overdue uses strict
// greater-than, so the timer fires one second after the due instant.
func (sc *Scheduler) Arm(report engine.LeaveReport) {
	delay := time.Until(time.Unix(report.DueAt+1, 0))
	if delay < 0 {
		delay = 0
	}

	id := report.ID
	timer := time.AfterFunc(delay, func() { sc.fire(id) })

	sc.mu.Lock()
	sc.timers[id] = timer
	sc.mu.Unlock()
}

// Rearm arms timers for every ongoing, unalerted report. Called once at
// startup to recover timers lost across a restart; past-due reports fire
// immediately.
func (sc *Scheduler) Rearm(ctx context.Context) error {
	reports, err := sc.store.ListOngoingUnalerted(ctx)
	if err != nil {
		return err
	}
	for _, r := range reports {
		sc.Arm(r)
	}
	if len(reports) > 0 {
		log.Printf("[Scheduler] Re-armed %d due timer(s)", len(reports))
	}
	return nil
}

func (sc *Scheduler) fire(id engine.ReportID) {
	sc.mu.Lock()
	delete(sc.timers, id)
	sc.mu.Unlock()

	if _, err := sc.CheckReport(context.Background(), id, time.Now().Unix()); err != nil {
		log.Printf("[Scheduler] Due check for report %d failed: %v", id, err)
	}
}

// =============================================================================
// SWEEP PATH
// =============================================================================

// SweepOnce scans for ongoing, unalerted reports past their due instant
// and alerts each. Returns how many reports were newly alerted. The scan
// runs outside any per-subject lock; each hit is re-verified under its
// subject's lock in CheckReport.
func (sc *Scheduler) SweepOnce(ctx context.Context, now int64) (int, error) {
	reports, err := sc.store.ListOverdueUnalerted(ctx, now)
	if err != nil {
		return 0, err
	}

	alerted := 0
	for _, r := range reports {
		counted, err := sc.CheckReport(ctx, r.ID, now)
		if err != nil {
			log.Printf("[Sweep] Report %d: %v", r.ID, err)
			continue
		}
		if counted {
			alerted++
		}
	}
	return alerted, nil
}

// =============================================================================
// SHARED MARKING SEQUENCE
// =============================================================================

// CheckReport re-reads the report and, if it is still ongoing, unalerted,
// and past due at now, performs the notify+count+mark sequence. Returns
// true only if this call won the alerted compare-and-set and incremented
// the counter.
func (sc *Scheduler) CheckReport(ctx context.Context, id engine.ReportID, now int64) (bool, error) {
	report, err := sc.store.GetReport(ctx, id)
	if err != nil {
		return false, err
	}
	if report == nil || !report.Ongoing() || report.Alerted || !report.Overdue(now) {
		return false, nil
	}

	var (
		counted bool
		total   int64
	)
	err = sc.locks.Do(report.Subject, func() error {
		fresh, err := sc.store.GetReport(ctx, id)
		if err != nil {
			return err
		}
		if fresh == nil || !fresh.Ongoing() || fresh.Alerted || !fresh.Overdue(now) {
			return nil
		}

		won, err := sc.store.MarkAlerted(ctx, id)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}

		total, err = sc.store.IncrementOverdue(ctx, fresh.Subject)
		if err != nil {
			return err
		}
		report = fresh
		counted = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if counted {
		// Delivered outside the lock: the guard never spans reply delivery.
		sc.notifier.NotifyOverdue(ctx, *report, total)
	}
	return counted, nil
}
