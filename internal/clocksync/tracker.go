// Package clocksync owns the persistent decode-side state: the FREE/LOCK
// hysteresis tracker, the bounded offset history, and the authority that
// certifies when a clock correction is safe to apply.
//
// All state here is confined to the consumer goroutine of the pipeline;
// nothing in this package is safe for concurrent use and nothing needs to
// be.
package clocksync

import (
	"time"

	"github.com/studioclock/timeturner/pkg/timecode"
)

// Cause records why the tracker last fell back to FREE.
type Cause int

const (
	CauseNone Cause = iota

	// CauseFreeStatus means the upstream decoder itself reported FREE.
	CauseFreeStatus

	// CauseDecodeFailure means a window or line failed to decode.
	CauseDecodeFailure

	// CauseSignalLost means no event arrived within the signal timeout
	// while locked.
	CauseSignalLost
)

func (c Cause) String() string {
	switch c {
	case CauseFreeStatus:
		return "free-status"
	case CauseDecodeFailure:
		return "decode-failure"
	case CauseSignalLost:
		return "signal-lost"
	}
	return "none"
}

// Tracker is the lock-state hysteresis machine. A LOCK report moves it to
// a provisional lock; only a lock held for the full stability window makes
// it sync-eligible. Any FREE report, decode failure or signal timeout
// drops it straight back to FREE.
type Tracker struct {
	stabilityWindow time.Duration
	signalTimeout   time.Duration

	state       timecode.LockStatus
	stableSince time.Time
	lastEvent   time.Time
	eligible    bool
	cause       Cause
}

// NewTracker builds a tracker in the FREE state. Non-positive durations
// select the defaults of 1s stability and 1.5s signal timeout.
func NewTracker(stabilityWindow, signalTimeout time.Duration) *Tracker {
	if stabilityWindow <= 0 {
		stabilityWindow = time.Second
	}
	if signalTimeout <= 0 {
		signalTimeout = 1500 * time.Millisecond
	}
	return &Tracker{stabilityWindow: stabilityWindow, signalTimeout: signalTimeout}
}

// Observe feeds one decode event into the machine. It reports whether the
// tracker released its lock, in which case the caller must clear the
// offset history so a stale episode cannot bias the next one.
func (t *Tracker) Observe(ev timecode.Event) (released bool) {
	t.lastEvent = ev.At

	if ev.Status != timecode.StatusLock {
		return t.release(CauseFreeStatus)
	}

	if t.state != timecode.StatusLock {
		t.state = timecode.StatusLock
		t.stableSince = ev.At
		t.cause = CauseNone
		return false
	}
	if !t.eligible && ev.At.Sub(t.stableSince) >= t.stabilityWindow {
		t.eligible = true
	}
	return false
}

// Fail records a decode failure at the given instant and releases any held
// lock.
func (t *Tracker) Fail(at time.Time) (released bool) {
	t.lastEvent = at
	return t.release(CauseDecodeFailure)
}

// Tick checks the signal timeout against now. While locked, silence longer
// than the timeout forces FREE with cause signal-lost.
func (t *Tracker) Tick(now time.Time) (released bool) {
	if t.state != timecode.StatusLock || t.lastEvent.IsZero() {
		return false
	}
	if now.Sub(t.lastEvent) <= t.signalTimeout {
		return false
	}
	return t.release(CauseSignalLost)
}

func (t *Tracker) release(cause Cause) bool {
	held := t.state == timecode.StatusLock
	t.state = timecode.StatusFree
	t.stableSince = time.Time{}
	t.eligible = false
	t.cause = cause
	return held
}

// State returns the current lock state.
func (t *Tracker) State() timecode.LockStatus { return t.state }

// Eligible reports whether the lock has been stable long enough for
// corrections to be trusted.
func (t *Tracker) Eligible() bool { return t.eligible }

// StableSince returns when the current lock episode began. ok is false in
// the FREE state.
func (t *Tracker) StableSince() (since time.Time, ok bool) {
	return t.stableSince, t.state == timecode.StatusLock
}

// LastCause returns why the tracker last dropped to FREE.
func (t *Tracker) LastCause() Cause { return t.cause }
