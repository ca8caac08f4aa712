package services

import (
	"sync"
	"time"
)

// Throttle suppresses repeated degraded-response handling for the same event
// signature within a time window. It is an in-process tracker: each process
// throttles independently, which is acceptable because its only job is to
// keep one noisy failure from flooding the event log and retry machinery.
//
// The clock is injected so tests control time.
type Throttle struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	window time.Duration
	now    func() time.Time

	lastSweep time.Time
}

// NewThrottle creates a Throttle with the given suppression window.
func NewThrottle(window time.Duration) *Throttle {
	return NewThrottleWithClock(window, time.Now)
}

// NewThrottleWithClock creates a Throttle with an injected clock.
func NewThrottleWithClock(window time.Duration, now func() time.Time) *Throttle {
	return &Throttle{
		seen:      make(map[string]time.Time),
		window:    window,
		now:       now,
		lastSweep: now(),
	}
}

// Allow reports whether the signature is outside its suppression window and,
// if so, records the occurrence. The first call for a signature always
// returns true.
func (t *Throttle) Allow(signature string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.maybeSweep(now)

	if last, ok := t.seen[signature]; ok && now.Sub(last) < t.window {
		return false
	}

	t.seen[signature] = now
	return true
}

// Len returns the number of tracked signatures.
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}

// maybeSweep evicts expired signatures. Sweeping once per window bounds the
// map without a background goroutine.
func (t *Throttle) maybeSweep(now time.Time) {
	if now.Sub(t.lastSweep) < t.window {
		return
	}
	for sig, last := range t.seen {
		if now.Sub(last) >= t.window {
			delete(t.seen, sig)
		}
	}
	t.lastSweep = now
}
