package auth

import (
	"sync"
	"time"
)

// LockoutPolicy configures the failed-attempt tracker.
type LockoutPolicy struct {
	MaxAttempts     int
	AttemptWindow   time.Duration
	LockoutDuration time.Duration
}

func (p LockoutPolicy) normalized() LockoutPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}
	if p.AttemptWindow <= 0 {
		p.AttemptWindow = 30 * time.Minute
	}
	if p.LockoutDuration <= 0 {
		p.LockoutDuration = 30 * time.Minute
	}
	return p
}

type attemptRecord struct {
	failures  []time.Time
	lockedUntil time.Time
}

// LockoutTracker records failed login attempts per username and
// enforces a lockout window after too many failures within the
// attempt window.
type LockoutTracker struct {
	mu      sync.Mutex
	policy  LockoutPolicy
	records map[string]*attemptRecord
}

func NewLockoutTracker(policy LockoutPolicy) *LockoutTracker {
	return &LockoutTracker{
		policy:  policy.normalized(),
		records: make(map[string]*attemptRecord),
	}
}

// Locked reports whether username is currently locked out, and until when.
func (t *LockoutTracker) Locked(username string) (bool, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[username]
	if !ok {
		return false, time.Time{}
	}
	if time.Now().Before(rec.lockedUntil) {
		return true, rec.lockedUntil
	}
	return false, time.Time{}
}

// RecordFailure logs a failed attempt and returns (lockedOut, until)
// for the lockout that this failure may have just triggered.
func (t *LockoutTracker) RecordFailure(username string) (bool, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	rec, ok := t.records[username]
	if !ok {
		rec = &attemptRecord{}
		t.records[username] = rec
	}

	cutoff := now.Add(-t.policy.AttemptWindow)
	kept := rec.failures[:0]
	for _, f := range rec.failures {
		if f.After(cutoff) {
			kept = append(kept, f)
		}
	}
	rec.failures = append(kept, now)

	if len(rec.failures) >= t.policy.MaxAttempts {
		rec.lockedUntil = now.Add(t.policy.LockoutDuration)
		rec.failures = nil
		return true, rec.lockedUntil
	}
	return false, time.Time{}
}

// ClearFailures resets the attempt history for username, e.g. after a
// successful login.
func (t *LockoutTracker) ClearFailures(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, username)
}
