// Package ltc assembles classified pulses into SMPTE linear-timecode
// frames: bit accumulation across analysis windows, sync-word search,
// 80-bit frame extraction and BCD field decoding.
package ltc

import (
	"errors"
	"fmt"

	"github.com/studioclock/timeturner/internal/dsp"
)

const (
	// FrameBits is the payload length of one LTC frame.
	FrameBits = 80

	// SyncWordBits is the length of the frame delimiter.
	SyncWordBits = 16

	// DefaultScanWindow bounds how many bits may pass without a sync word
	// before the stream is declared unframed. Roughly 20 frames of slack.
	DefaultScanWindow = 4096
)

// syncPattern is the frame delimiter in transmission order.
var syncPattern = [SyncWordBits]byte{0, 0, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 1}

// ErrNoSync is reported when the scan window fills up without a single
// sync word. Pulses are arriving but they do not frame as LTC.
var ErrNoSync = errors.New("ltc: no sync word found in scan window")

// Bitstream accumulates decoded bits across analysis windows and carves
// complete frames out of them. It is not safe for concurrent use; the
// decode pipeline owns exactly one per audio source.
type Bitstream struct {
	bits    []byte
	scanCap int
	barren  int
}

// NewBitstream returns an empty accumulator. scanWindow <= 0 selects
// DefaultScanWindow.
func NewBitstream(scanWindow int) *Bitstream {
	if scanWindow <= 0 {
		scanWindow = DefaultScanWindow
	}
	return &Bitstream{scanCap: scanWindow}
}

// Append feeds one window of classified pulses into the stream. A short
// pulse decodes as bit 1, a long pulse as bit 0.
func (s *Bitstream) Append(labels []dsp.Label) {
	for _, l := range labels {
		if l == dsp.Short {
			s.bits = append(s.bits, 1)
		} else {
			s.bits = append(s.bits, 0)
		}
	}
}

// Len returns the number of buffered bits.
func (s *Bitstream) Len() int { return len(s.bits) }

// Reset drops all buffered bits and the barren-bit count. Called when the
// upstream signal is lost so a stale partial frame cannot bridge the gap.
func (s *Bitstream) Reset() {
	s.bits = s.bits[:0]
	s.barren = 0
}

// Frames extracts every complete frame currently buffered. A sync word
// whose payload has not fully arrived is kept for the next call. When the
// scan window is exhausted without any sync word the buffered bits are
// discarded and ErrNoSync is returned alongside whatever frames were
// extracted first.
func (s *Bitstream) Frames() ([]Frame, error) {
	var frames []Frame
	for {
		i := s.findSync()
		if i < 0 {
			// Keep a partial sync word at the tail, discard the rest.
			keep := len(s.bits)
			if keep > SyncWordBits-1 {
				keep = SyncWordBits - 1
			}
			discard := len(s.bits) - keep
			s.barren += discard
			s.bits = append(s.bits[:0], s.bits[discard:]...)

			if s.barren >= s.scanCap {
				s.barren = 0
				s.bits = s.bits[:0]
				return frames, fmt.Errorf("%w (%d bits scanned)", ErrNoSync, s.scanCap)
			}
			return frames, nil
		}

		start := i + SyncWordBits
		if start+FrameBits > len(s.bits) {
			// Payload still arriving. Hold from the sync word onward.
			s.bits = append(s.bits[:0], s.bits[i:]...)
			return frames, nil
		}

		var f Frame
		copy(f.bits[:], s.bits[start:start+FrameBits])
		frames = append(frames, f)
		s.bits = append(s.bits[:0], s.bits[start+FrameBits:]...)
		s.barren = 0
	}
}

func (s *Bitstream) findSync() int {
	for i := 0; i+SyncWordBits <= len(s.bits); i++ {
		match := true
		for j, want := range syncPattern {
			if s.bits[i+j] != want {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
