package timecode

import (
	"testing"
	"time"
)

func TestFromFPS(t *testing.T) {
	t.Parallel()
	cases := []struct {
		fps     float64
		want    FrameRate
		wantErr bool
	}{
		{24.0, Rate24, false},
		{25.0, Rate25, false},
		{29.97, Rate2997, false},
		{30.0, Rate30, false},
		{25.01, Rate25, false},
		{29.970029, Rate2997, false},
		{50.0, RateUnknown, true},
		{0, RateUnknown, true},
	}
	for _, c := range cases {
		got, err := FromFPS(c.fps)
		if (err != nil) != c.wantErr {
			t.Errorf("FromFPS(%v) error = %v, wantErr %v", c.fps, err, c.wantErr)
		}
		if got != c.want {
			t.Errorf("FromFPS(%v) = %v, want %v", c.fps, got, c.want)
		}
	}
}

func TestValidate_RangeChecks(t *testing.T) {
	t.Parallel()
	valid := Timecode{Hours: 23, Minutes: 59, Seconds: 59, Frames: 24, Rate: Rate25}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid timecode rejected: %v", err)
	}

	cases := []Timecode{
		{Hours: 24, Rate: Rate25},
		{Minutes: 60, Rate: Rate25},
		{Seconds: 60, Rate: Rate25},
		{Frames: 25, Rate: Rate25},
		{Frames: 24, Rate: Rate24},
		{Frames: 30, Rate: Rate30},
		{Hours: 1, Minutes: 2, Seconds: 3, Frames: 4}, // rate unset
	}
	for _, c := range cases {
		if err := c.Validate(); err == nil {
			t.Errorf("Validate(%+v) = nil, want error", c)
		}
	}
}

func TestAdvance(t *testing.T) {
	t.Parallel()
	tc := Timecode{Hours: 10, Minutes: 0, Seconds: 0, Frames: 24, Rate: Rate25}
	next := tc.Advance(1)
	want := Timecode{Hours: 10, Minutes: 0, Seconds: 1, Frames: 0, Rate: Rate25}
	if next != want {
		t.Errorf("Advance(1) = %v, want %v", next, want)
	}

	// Wrap at midnight.
	late := Timecode{Hours: 23, Minutes: 59, Seconds: 59, Frames: 24, Rate: Rate25}
	wrapped := late.Advance(1)
	if wrapped.Hours != 0 || wrapped.Frames != 0 {
		t.Errorf("Advance over midnight = %v, want 00:00:00:00", wrapped)
	}
}

func TestFrameIndex_SuccessorDelta(t *testing.T) {
	t.Parallel()
	a := Timecode{Hours: 1, Minutes: 2, Seconds: 3, Frames: 4, Rate: Rate30}
	b := a.Advance(7)
	if got := b.FrameIndex() - a.FrameIndex(); got != 7 {
		t.Errorf("frame delta = %d, want 7", got)
	}
}

func TestWallClock(t *testing.T) {
	t.Parallel()
	ref := time.Date(2026, 3, 14, 8, 0, 0, 123456, time.UTC)
	tc := Timecode{Hours: 10, Minutes: 20, Seconds: 30, Frames: 5, Rate: Rate25}
	got := tc.WallClock(ref)

	if got.Year() != 2026 || got.Month() != 3 || got.Day() != 14 {
		t.Errorf("date not preserved: %v", got)
	}
	if got.Hour() != 10 || got.Minute() != 20 || got.Second() != 30 {
		t.Errorf("time = %v, want 10:20:30", got)
	}
	// 5 frames at 25fps is exactly 200ms.
	if got.Nanosecond() != 200_000_000 {
		t.Errorf("sub-second = %dns, want 200ms", got.Nanosecond())
	}
}

func TestString(t *testing.T) {
	t.Parallel()
	tc := Timecode{Hours: 9, Minutes: 59, Seconds: 59, Frames: 24, Rate: Rate25}
	if got := tc.String(); got != "09:59:59:24" {
		t.Errorf("String() = %q, want %q", got, "09:59:59:24")
	}
	if got := Rate2997.String(); got != "29.97fps" {
		t.Errorf("Rate2997.String() = %q", got)
	}
	if got := StatusLock.String(); got != "LOCK" {
		t.Errorf("StatusLock.String() = %q", got)
	}
}
