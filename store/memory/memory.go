// Package memory provides an in-memory Store implementation (for testing/dev).
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/attendance-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation of engine.Store
// =============================================================================

type Store struct {
	mu          sync.RWMutex
	sessions    map[engine.SessionID]engine.Session
	reports     map[engine.ReportID]engine.LeaveReport
	counters    map[engine.Subject]engine.CounterTotals
	nextSession engine.SessionID
	nextReport  engine.ReportID
}

var _ engine.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		sessions: make(map[engine.SessionID]engine.Session),
		reports:  make(map[engine.ReportID]engine.LeaveReport),
		counters: make(map[engine.Subject]engine.CounterTotals),
	}
}

// =============================================================================
// SESSIONS
// =============================================================================

func (m *Store) InsertSession(_ context.Context, s engine.Session) (engine.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.sessions {
		if existing.Subject == s.Subject && existing.Open() {
			return engine.Session{}, &engine.AlreadyOpenError{Subject: s.Subject, StartAt: existing.StartAt}
		}
	}

	m.nextSession++
	s.ID = m.nextSession
	m.sessions[s.ID] = s
	return s, nil
}

func (m *Store) GetOpenSession(_ context.Context, subject engine.Subject) (*engine.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.sessions {
		if s.Subject == subject && s.Open() {
			out := s
			return &out, nil
		}
	}
	return nil, nil
}

func (m *Store) SettleSession(_ context.Context, id engine.SessionID, endAt, netSeconds int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session %d not found", id)
	}
	s.EndAt = &endAt
	s.NetSeconds = netSeconds
	m.sessions[id] = s
	return nil
}

func (m *Store) ForceCloseStale(_ context.Context, subject engine.Subject, cutoff int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var repaired int64
	for id, s := range m.sessions {
		if s.Subject == subject && s.Open() && s.StartAt < cutoff {
			end := s.StartAt
			s.EndAt = &end
			s.NetSeconds = 0
			m.sessions[id] = s
			repaired++
		}
	}
	return repaired, nil
}

// =============================================================================
// REPORTS
// =============================================================================

func (m *Store) InsertReport(_ context.Context, r engine.LeaveReport) (engine.LeaveReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.reports {
		if existing.Subject == r.Subject && existing.Ongoing() {
			return engine.LeaveReport{}, &engine.AlreadyOngoingError{
				Subject: r.Subject,
				Keyword: existing.Keyword,
				DueAt:   existing.DueAt,
			}
		}
	}

	m.nextReport++
	r.ID = m.nextReport
	m.reports[r.ID] = r
	return r, nil
}

func (m *Store) GetOngoingReport(_ context.Context, subject engine.Subject) (*engine.LeaveReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.reports {
		if r.Subject == subject && r.Ongoing() {
			out := r
			return &out, nil
		}
	}
	return nil, nil
}

func (m *Store) GetReport(_ context.Context, id engine.ReportID) (*engine.LeaveReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.reports[id]
	if !ok {
		return nil, nil
	}
	out := r
	return &out, nil
}

func (m *Store) FinishReport(_ context.Context, id engine.ReportID, endAt int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reports[id]
	if !ok {
		return fmt.Errorf("report %d not found", id)
	}
	r.Status = engine.ReportReturned
	r.EndAt = &endAt
	m.reports[id] = r
	return nil
}

func (m *Store) ListOverlapping(_ context.Context, subject engine.Subject, windowStart, windowEnd int64) ([]engine.LeaveReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.LeaveReport
	for _, r := range m.reports {
		if r.Subject == subject && r.DueAt > windowStart && r.StartAt < windowEnd {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt < out[j].StartAt })
	return out, nil
}

func (m *Store) ListOverdueUnalerted(_ context.Context, now int64) ([]engine.LeaveReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.LeaveReport
	for _, r := range m.reports {
		if r.Ongoing() && !r.Alerted && r.DueAt < now {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) ListOngoingUnalerted(_ context.Context) ([]engine.LeaveReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.LeaveReport
	for _, r := range m.reports {
		if r.Ongoing() && !r.Alerted {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) MarkAlerted(_ context.Context, id engine.ReportID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reports[id]
	if !ok || r.Alerted {
		return false, nil
	}
	r.Alerted = true
	m.reports[id] = r
	return true, nil
}

// =============================================================================
// COUNTERS
// =============================================================================

func (m *Store) IncrementLate(_ context.Context, subject engine.Subject) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.counters[subject]
	c.Subject = subject
	c.LateCheckins++
	m.counters[subject] = c
	return c.LateCheckins, nil
}

func (m *Store) IncrementOverdue(_ context.Context, subject engine.Subject) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.counters[subject]
	c.Subject = subject
	c.OverdueReports++
	m.counters[subject] = c
	return c.OverdueReports, nil
}

func (m *Store) GetTotals(_ context.Context, subject engine.Subject) (engine.CounterTotals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := m.counters[subject]
	c.Subject = subject
	return c, nil
}
