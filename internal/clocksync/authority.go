package clocksync

import (
	"time"

	"github.com/studioclock/timeturner/pkg/timecode"
)

// Reason explains a denied sync decision.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonNotLocked
	ReasonInsufficientHistory
	ReasonSignalLost
)

func (r Reason) String() string {
	switch r {
	case ReasonNotLocked:
		return "not-locked"
	case ReasonInsufficientHistory:
		return "insufficient-history"
	case ReasonSignalLost:
		return "signal-lost"
	}
	return "none"
}

// Decision is the authority's verdict for one query. Decisions are
// computed fresh each time and never persisted.
type Decision struct {
	Allowed       bool      `json:"allowed"`
	CorrectedTime time.Time `json:"corrected_time,omitzero"`
	Reason        Reason    `json:"-"`
}

// Shift is a deliberate timecode displacement applied before a correction,
// the "turn" in timeturner. Studios running a house clock intentionally
// ahead of or behind the incoming feed configure it here.
type Shift struct {
	Hours   int `yaml:"hours" json:"hours"`
	Minutes int `yaml:"minutes" json:"minutes"`
	Seconds int `yaml:"seconds" json:"seconds"`
	Frames  int `yaml:"frames" json:"frames"`
}

// IsZero reports whether the shift displaces nothing.
func (s Shift) IsZero() bool {
	return s.Hours == 0 && s.Minutes == 0 && s.Seconds == 0 && s.Frames == 0
}

// frames converts the shift to a signed frame count at the given rate.
func (s Shift) frames(rate timecode.FrameRate) int64 {
	secs := int64(s.Hours)*3600 + int64(s.Minutes)*60 + int64(s.Seconds)
	return secs*int64(rate.Nominal()) + int64(s.Frames)
}

// Authority certifies whether applying a clock correction is safe right
// now and computes the exact timestamp to apply. It never applies the
// correction itself; that is delegated to a privileged clock setter.
type Authority struct {
	hardwareOffsetMs float64
	shift            Shift
}

// NewAuthority builds an authority with the configured hardware latency
// compensation and deliberate shift.
func NewAuthority(hardwareOffsetMs float64, shift Shift) *Authority {
	return &Authority{hardwareOffsetMs: hardwareOffsetMs, shift: shift}
}

// SetShift replaces the deliberate shift. Used by config hot-reload and
// the nudge endpoint; called only from the consumer goroutine.
func (a *Authority) SetShift(s Shift) { a.shift = s }

// SetHardwareOffset replaces the hardware latency compensation. Applied
// by config hot-reload; called only from the consumer goroutine.
func (a *Authority) SetHardwareOffset(ms float64) { a.hardwareOffsetMs = ms }

// Shift returns the current deliberate shift.
func (a *Authority) Shift() Shift { return a.shift }

// Decide evaluates one sync query against the current lock state and the
// most recent decode. A correction is allowed only while the lock has held
// through the stability window; everything else yields a denial with the
// closest-matching reason.
func (a *Authority) Decide(t *Tracker, last timecode.Event) Decision {
	switch {
	case t.State() != timecode.StatusLock:
		if t.LastCause() == CauseSignalLost {
			return Decision{Reason: ReasonSignalLost}
		}
		return Decision{Reason: ReasonNotLocked}
	case !t.Eligible():
		return Decision{Reason: ReasonInsufficientHistory}
	case last.At.IsZero():
		return Decision{Reason: ReasonInsufficientHistory}
	}

	tc := last.Timecode
	if !a.shift.IsZero() {
		tc = tc.Advance(a.shift.frames(tc.Rate))
	}
	corrected := tc.WallClock(last.At).
		Add(time.Duration(a.hardwareOffsetMs * float64(time.Millisecond)))
	return Decision{Allowed: true, CorrectedTime: corrected}
}
