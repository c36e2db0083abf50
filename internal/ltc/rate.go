package ltc

import (
	"fmt"

	"github.com/studioclock/timeturner/pkg/timecode"
)

// bitsPerFrame is the total bit count of one frame on the wire, sync word
// included.
const bitsPerFrame = SyncWordBits + FrameBits

// InferRate estimates the frame rate from the mean long-pulse width, which
// approximates one full bit cell. 29.97 and 30 differ by 0.1% and cannot be
// told apart from the bit rate; the nearest enumerated rate wins.
func InferRate(longMean float64) (timecode.FrameRate, error) {
	if longMean <= 0 {
		return timecode.RateUnknown, fmt.Errorf("ltc: non-positive bit cell width %v", longMean)
	}
	fps := 1 / (float64(bitsPerFrame) * longMean)
	return timecode.FromFPS(fps)
}
