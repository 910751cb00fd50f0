/*
guard.go - Per-subject mutual exclusion

PURPOSE:
  Serializes all state-mutating operations per subject so concurrent
  duplicate submissions (a user double-tapping check-in) cannot both
  observe "no existing record" and both insert.

SCOPE:
  The lock is held strictly around the read-modify-write sequence of one
  logical operation. It is never held across reply delivery or any other
  externally-observable call.

OWNERSHIP:
  The table is an explicit object owned by the service's lifetime scope,
  not a process-wide global. Entries are created lazily per subject and
  never evicted; the table is bounded by active-subject cardinality.
*/
package engine

import "sync"

// LockTable holds one mutex per subject, created on first use.
type LockTable struct {
	mu    sync.Mutex
	locks map[Subject]*sync.Mutex
}

func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[Subject]*sync.Mutex)}
}

// Do runs fn while holding the subject's lock. Operations on different
// subjects proceed independently; operations on the same subject are
// fully serialized.
func (t *LockTable) Do(subject Subject, fn func() error) error {
	m := t.get(subject)
	m.Lock()
	defer m.Unlock()
	return fn()
}

func (t *LockTable) get(subject Subject) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.locks[subject]
	if !ok {
		m = &sync.Mutex{}
		t.locks[subject] = m
	}
	return m
}

// Len returns the number of subjects a lock has been created for.
func (t *LockTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
