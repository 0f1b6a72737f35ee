package security

import (
	"sync"
	"time"
)

const (
	// DefaultLockoutLimit is how many consecutive failures trip a lock
	DefaultLockoutLimit = 5
	// DefaultLockoutDuration is how long a tripped lock holds
	DefaultLockoutDuration = 15 * time.Minute
)

type lockoutState struct {
	failures    int
	lockedUntil time.Time
}

// LockoutGuard tracks consecutive authentication failures per subject
// and locks a subject out after too many in a row. State is held in
// memory; a restart clears it, which only ever errs toward letting a
// legitimate user back in sooner.
type LockoutGuard struct {
	mu       sync.Mutex
	states   map[string]*lockoutState
	limit    int
	duration time.Duration
	now      func() time.Time
}

// NewLockoutGuard creates a guard with the given threshold and lock
// duration; zero values fall back to the defaults.
func NewLockoutGuard(limit int, duration time.Duration) *LockoutGuard {
	if limit <= 0 {
		limit = DefaultLockoutLimit
	}
	if duration <= 0 {
		duration = DefaultLockoutDuration
	}
	return &LockoutGuard{
		states:   make(map[string]*lockoutState),
		limit:    limit,
		duration: duration,
		now:      time.Now,
	}
}

// Locked reports whether the subject is currently locked out. An
// expired lock is cleared on the way through, so the subject starts
// over with a clean failure count.
func (g *LockoutGuard) Locked(subject string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.states[subject]
	if !ok {
		return false
	}
	if st.lockedUntil.IsZero() {
		return false
	}
	if g.now().Before(st.lockedUntil) {
		return true
	}
	delete(g.states, subject)
	return false
}

// RecordFailure counts one failed attempt and returns true when this
// failure tripped the lock.
func (g *LockoutGuard) RecordFailure(subject string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.states[subject]
	if !ok {
		st = &lockoutState{}
		g.states[subject] = st
	}
	if !st.lockedUntil.IsZero() && !g.now().Before(st.lockedUntil) {
		// stale lock, start counting fresh
		st.failures = 0
		st.lockedUntil = time.Time{}
	}

	st.failures++
	if st.failures >= g.limit {
		st.lockedUntil = g.now().Add(g.duration)
		return true
	}
	return false
}

// RecordSuccess clears the failure count for the subject
func (g *LockoutGuard) RecordSuccess(subject string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.states, subject)
}

// Remaining returns how long the subject stays locked; zero when not
// locked.
func (g *LockoutGuard) Remaining(subject string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.states[subject]
	if !ok || st.lockedUntil.IsZero() {
		return 0
	}
	left := st.lockedUntil.Sub(g.now())
	if left < 0 {
		return 0
	}
	return left
}
