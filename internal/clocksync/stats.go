package clocksync

import (
	"math"
	"time"
)

// JitterBand grades offset jitter the way the status display reports it.
type JitterBand int

const (
	// JitterTight is under 10ms, indistinguishable from a frame boundary.
	JitterTight JitterBand = iota

	// JitterLoose is under 40ms, about one frame at common rates.
	JitterLoose

	// JitterBad is anything worse.
	JitterBad
)

func (b JitterBand) String() string {
	switch b {
	case JitterTight:
		return "tight"
	case JitterLoose:
		return "loose"
	}
	return "bad"
}

// BandFor grades an absolute jitter figure in milliseconds.
func BandFor(ms float64) JitterBand {
	switch abs := math.Abs(ms); {
	case abs < 10:
		return JitterTight
	case abs < 40:
		return JitterLoose
	default:
		return JitterBad
	}
}

// Verdict is the outcome of comparing the corrected time against the
// system clock.
type Verdict int

const (
	VerdictUnknown Verdict = iota
	VerdictInSync
	VerdictOutOfSync
)

func (v Verdict) String() string {
	switch v {
	case VerdictInSync:
		return "IN SYNC"
	case VerdictOutOfSync:
		return "OUT OF SYNC"
	}
	return "UNKNOWN"
}

// Match compares a corrected timestamp against the system clock within the
// given tolerance. A zero corrected time yields VerdictUnknown.
func Match(corrected, system time.Time, tolerance time.Duration) Verdict {
	if corrected.IsZero() {
		return VerdictUnknown
	}
	d := system.Sub(corrected)
	if d < 0 {
		d = -d
	}
	if d <= tolerance {
		return VerdictInSync
	}
	return VerdictOutOfSync
}

// Session counts what happened since startup. Owned and mutated only by
// the pipeline consumer; snapshots for the API are taken there.
type Session struct {
	Started     time.Time         `json:"started"`
	Windows     uint64            `json:"windows"`
	Lines       uint64            `json:"lines"`
	Frames      uint64            `json:"frames"`
	LockEvents  uint64            `json:"lock_events"`
	FreeEvents  uint64            `json:"free_events"`
	Corrections uint64            `json:"corrections"`
	Faults      map[string]uint64 `json:"faults"`
}

// NewSession starts counting at the given instant.
func NewSession(started time.Time) *Session {
	return &Session{Started: started, Faults: make(map[string]uint64)}
}

// Fault bumps the counter for one fault kind.
func (s *Session) Fault(kind string) { s.Faults[kind]++ }

// LockRatio returns the share of events that reported LOCK, in [0,1].
// Zero events yield 0.
func (s *Session) LockRatio() float64 {
	total := s.LockEvents + s.FreeEvents
	if total == 0 {
		return 0
	}
	return float64(s.LockEvents) / float64(total)
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *Session) Clone() Session {
	out := *s
	out.Faults = make(map[string]uint64, len(s.Faults))
	for k, v := range s.Faults {
		out.Faults[k] = v
	}
	return out
}
