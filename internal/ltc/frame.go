package ltc

import (
	"errors"
	"fmt"

	"github.com/studioclock/timeturner/pkg/timecode"
)

// ErrInvalidFrame is reported when a framed payload decodes to an
// out-of-range timecode. Invalid frames are rejected, never clamped.
var ErrInvalidFrame = errors.New("ltc: invalid frame")

// BCD field positions inside the 80-bit payload, in transmission order.
// Each field is LSB first.
const (
	bitFrameUnits  = 0 // 4 bits
	bitFrameTens   = 8 // 2 bits
	bitDropFrame   = 10
	bitSecondUnits = 16 // 4 bits
	bitSecondTens  = 24 // 3 bits
	bitMinuteUnits = 32 // 4 bits
	bitMinuteTens  = 40 // 3 bits
	bitHourUnits   = 48 // 4 bits
	bitHourTens    = 56 // 2 bits
)

// Frame is one extracted 80-bit LTC payload, sync word already stripped.
type Frame struct {
	bits [FrameBits]byte
}

// Bit returns payload bit i in transmission order.
func (f Frame) Bit(i int) byte { return f.bits[i] }

// field reads n bits starting at off, LSB first.
func (f Frame) field(off, n int) int {
	v := 0
	for k := range n {
		v |= int(f.bits[off+k]) << k
	}
	return v
}

// DropFrame reports the drop-frame counting flag.
func (f Frame) DropFrame() bool { return f.bits[bitDropFrame] == 1 }

// Decode converts the payload's BCD fields into a timecode at the given
// rate. Frames failing range validation return ErrInvalidFrame.
func (f Frame) Decode(rate timecode.FrameRate) (timecode.Timecode, error) {
	tc := timecode.Timecode{
		Hours:   f.field(bitHourTens, 2)*10 + f.field(bitHourUnits, 4),
		Minutes: f.field(bitMinuteTens, 3)*10 + f.field(bitMinuteUnits, 4),
		Seconds: f.field(bitSecondTens, 3)*10 + f.field(bitSecondUnits, 4),
		Frames:  f.field(bitFrameTens, 2)*10 + f.field(bitFrameUnits, 4),
		Rate:    rate,
	}
	if err := tc.Validate(); err != nil {
		return timecode.Timecode{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	return tc, nil
}

// EncodeBits renders the sync word followed by the 80-bit payload for the
// given timecode, in transmission order. Used by the signal generator and
// by tests to synthesise known-good streams.
func EncodeBits(tc timecode.Timecode, dropFrame bool) []byte {
	bits := make([]byte, SyncWordBits+FrameBits)
	copy(bits, syncPattern[:])

	payload := bits[SyncWordBits:]
	put := func(off, n, v int) {
		for k := range n {
			payload[off+k] = byte(v >> k & 1)
		}
	}
	put(bitFrameUnits, 4, tc.Frames%10)
	put(bitFrameTens, 2, tc.Frames/10)
	put(bitSecondUnits, 4, tc.Seconds%10)
	put(bitSecondTens, 3, tc.Seconds/10)
	put(bitMinuteUnits, 4, tc.Minutes%10)
	put(bitMinuteTens, 3, tc.Minutes/10)
	put(bitHourUnits, 4, tc.Hours%10)
	put(bitHourTens, 2, tc.Hours/10)
	if dropFrame {
		payload[bitDropFrame] = 1
	}
	return bits
}
