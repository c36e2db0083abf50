package ingress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrBadWAV is reported for captures that do not parse as RIFF/WAVE with
// a 16-bit mono PCM payload.
var ErrBadWAV = errors.New("ingress: malformed wav")

// WAVInfo describes the payload found behind a RIFF header.
type WAVInfo struct {
	SampleRate int
	Channels   int
	Bits       int
	DataBytes  uint32
}

// OpenWAV parses the RIFF header of r and returns a PCMReader positioned
// at the first audio sample. Only 16-bit mono PCM is accepted; LTC is a
// single-channel signal and captures should be recorded that way.
func OpenWAV(r io.Reader) (*PCMReader, WAVInfo, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, WAVInfo{}, fmt.Errorf("%w: short riff header: %v", ErrBadWAV, err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, WAVInfo{}, fmt.Errorf("%w: not a riff/wave stream", ErrBadWAV)
	}

	var info WAVInfo
	sawFmt := false
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, WAVInfo{}, fmt.Errorf("%w: no data chunk: %v", ErrBadWAV, err)
		}
		id := string(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, WAVInfo{}, fmt.Errorf("%w: fmt chunk too small", ErrBadWAV)
			}
			chunk := make([]byte, size)
			if _, err := io.ReadFull(r, chunk); err != nil {
				return nil, WAVInfo{}, fmt.Errorf("%w: short fmt chunk: %v", ErrBadWAV, err)
			}
			if format := binary.LittleEndian.Uint16(chunk[0:2]); format != 1 {
				return nil, WAVInfo{}, fmt.Errorf("%w: compression format %d, want pcm", ErrBadWAV, format)
			}
			info.Channels = int(binary.LittleEndian.Uint16(chunk[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(chunk[4:8]))
			info.Bits = int(binary.LittleEndian.Uint16(chunk[14:16]))
			sawFmt = true

		case "data":
			if !sawFmt {
				return nil, WAVInfo{}, fmt.Errorf("%w: data chunk before fmt", ErrBadWAV)
			}
			if info.Channels != 1 {
				return nil, WAVInfo{}, fmt.Errorf("%w: %d channels, want mono", ErrBadWAV, info.Channels)
			}
			if info.Bits != 16 {
				return nil, WAVInfo{}, fmt.Errorf("%w: %d-bit samples, want 16", ErrBadWAV, info.Bits)
			}
			info.DataBytes = size
			return NewPCMReader(io.LimitReader(r, int64(size))), info, nil

		default:
			// LIST, cue and friends. Chunks are word-aligned.
			skip := int64(size) + int64(size&1)
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return nil, WAVInfo{}, fmt.Errorf("%w: truncated %q chunk: %v", ErrBadWAV, id, err)
			}
		}
	}
}
