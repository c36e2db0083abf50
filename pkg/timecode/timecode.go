// Package timecode defines the shared timecode types used across all
// timeturner packages.
//
// These types form the lingua franca between the audio decode path, the
// serial-text decode path, the lock tracker and the sync authority. Each
// ingress converges on the same [Event] shape so that everything downstream
// is source-agnostic.
package timecode

import (
	"fmt"
	"math"
	"time"
)

// FrameRate enumerates the LTC frame rates timeturner recognises.
// The zero value is RateUnknown.
type FrameRate int

const (
	RateUnknown FrameRate = iota
	Rate24
	Rate25
	Rate2997
	Rate30
)

// fps returns the exact frames-per-second value of the rate.
// 29.97 is the NTSC rate 30000/1001.
func (r FrameRate) FPS() float64 {
	switch r {
	case Rate24:
		return 24
	case Rate25:
		return 25
	case Rate2997:
		return 30000.0 / 1001.0
	case Rate30:
		return 30
	}
	return 0
}

// Nominal returns the number of frame slots counted per second, i.e. the
// exclusive upper bound for the frames field. 29.97 counts 30 slots.
func (r FrameRate) Nominal() int {
	switch r {
	case Rate24:
		return 24
	case Rate25:
		return 25
	case Rate2997, Rate30:
		return 30
	}
	return 0
}

// FrameDuration returns the wall-clock duration of a single frame.
func (r FrameRate) FrameDuration() time.Duration {
	fps := r.FPS()
	if fps == 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}

// String renders the rate the way LTC hardware prints it, e.g. "25.00fps".
func (r FrameRate) String() string {
	if r == RateUnknown {
		return "unknown"
	}
	return fmt.Sprintf("%.2ffps", r.FPS())
}

// rateTolerance is the relative error allowed when matching a measured or
// parsed fps value against the enumerated rates.
const rateTolerance = 0.05

// FromFPS maps a floating fps value onto the nearest enumerated rate,
// accepting a small relative tolerance so that measured bit rates and sloppy
// text values ("29.970", "25.0") still resolve. 29.97 and 30 are separated
// by nearest-match, not tolerance. Values that match nothing return
// RateUnknown and an error.
func FromFPS(fps float64) (FrameRate, error) {
	best, bestErr := RateUnknown, math.Inf(1)
	for _, r := range []FrameRate{Rate24, Rate25, Rate2997, Rate30} {
		if rel := math.Abs(fps-r.FPS()) / r.FPS(); rel < bestErr {
			best, bestErr = r, rel
		}
	}
	if bestErr > rateTolerance {
		return RateUnknown, fmt.Errorf("timecode: unsupported frame rate %.3ffps", fps)
	}
	return best, nil
}

// LockStatus is the upstream decoder's confidence in the timecode signal.
type LockStatus int

const (
	// StatusFree means no reliable signal is being tracked.
	StatusFree LockStatus = iota

	// StatusLock means a valid, continuously tracked timecode signal.
	StatusLock
)

// String returns the wire spelling of the status.
func (s LockStatus) String() string {
	if s == StatusLock {
		return "LOCK"
	}
	return "FREE"
}

// MarshalJSON encodes the status as its wire spelling.
func (s LockStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Timecode is one decoded hours:minutes:seconds:frames value together with
// the frame rate it was counted at.
type Timecode struct {
	Hours   int       `json:"hours"`
	Minutes int       `json:"minutes"`
	Seconds int       `json:"seconds"`
	Frames  int       `json:"frames"`
	Rate    FrameRate `json:"-"`
}

// Validate reports whether every field is inside its legal range for the
// declared rate. Out-of-range values are an error, never clamped.
func (t Timecode) Validate() error {
	if t.Rate == RateUnknown {
		return fmt.Errorf("timecode: frame rate not set")
	}
	if t.Hours < 0 || t.Hours > 23 {
		return fmt.Errorf("timecode: hours %d out of range [0,23]", t.Hours)
	}
	if t.Minutes < 0 || t.Minutes > 59 {
		return fmt.Errorf("timecode: minutes %d out of range [0,59]", t.Minutes)
	}
	if t.Seconds < 0 || t.Seconds > 59 {
		return fmt.Errorf("timecode: seconds %d out of range [0,59]", t.Seconds)
	}
	if max := t.Rate.Nominal() - 1; t.Frames < 0 || t.Frames > max {
		return fmt.Errorf("timecode: frames %d out of range [0,%d] at %s", t.Frames, max, t.Rate)
	}
	return nil
}

// String renders the timecode as "HH:MM:SS:FF".
func (t Timecode) String() string {
	return fmt.Sprintf("%02d:%02d:%02d:%02d", t.Hours, t.Minutes, t.Seconds, t.Frames)
}

// FrameIndex returns the absolute frame count since midnight, used for
// successor/drift arithmetic.
func (t Timecode) FrameIndex() int64 {
	secs := int64(t.Hours)*3600 + int64(t.Minutes)*60 + int64(t.Seconds)
	return secs*int64(t.Rate.Nominal()) + int64(t.Frames)
}

// Advance returns the timecode n frames later, wrapping at 24 hours.
// Drop-frame renumbering is not applied; callers comparing successive
// decodes over a handful of frames do not need it.
func (t Timecode) Advance(n int64) Timecode {
	nominal := int64(t.Rate.Nominal())
	idx := t.FrameIndex() + n
	day := int64(24*3600) * nominal
	idx = ((idx % day) + day) % day

	out := Timecode{Rate: t.Rate}
	out.Frames = int(idx % nominal)
	secs := idx / nominal
	out.Seconds = int(secs % 60)
	out.Minutes = int(secs / 60 % 60)
	out.Hours = int(secs / 3600)
	return out
}

// WallClock reinterprets the timecode as a wall-clock instant on the same
// date (and in the same location) as ref. The frames field becomes
// sub-second time at the timecode's rate.
func (t Timecode) WallClock(ref time.Time) time.Time {
	ns := int(math.Round(float64(t.Frames) / t.Rate.FPS() * float64(time.Second)))
	return time.Date(ref.Year(), ref.Month(), ref.Day(),
		t.Hours, t.Minutes, t.Seconds, ns, ref.Location())
}

// Event is one decoded timecode observation. Events are immutable and passed
// downstream by value; both the audio and the text-line ingress produce them.
type Event struct {
	// Timecode is the decoded hours:minutes:seconds:frames value.
	Timecode Timecode `json:"timecode"`

	// Status is the decoder confidence at the moment of decode.
	Status LockStatus `json:"status"`

	// DropFrame is set when the source used drop-frame counting (the ";"
	// separator on the text path, the flag bit on the audio path).
	DropFrame bool `json:"drop_frame"`

	// At is the local clock at the moment of decode.
	At time.Time `json:"at"`
}
