// Package ingress adapts external byte sources into the sample windows
// and text lines the decode pipeline consumes: raw s16le PCM (as piped
// from arecord or ffmpeg), RIFF/WAV captures, and serial status lines.
package ingress

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
)

// PCMReader converts a stream of signed 16-bit little-endian mono samples
// into float64 windows in [-1, 1].
type PCMReader struct {
	r   *bufio.Reader
	buf []byte
}

// NewPCMReader wraps r. The stream is consumed sequentially; one reader
// per source.
func NewPCMReader(r io.Reader) *PCMReader {
	return &PCMReader{r: bufio.NewReaderSize(r, 64<<10)}
}

// ReadWindow fills dst with decoded samples and returns how many were
// read. A short count is returned together with io.EOF when the source
// ends mid-window; n == 0 with io.EOF means the source is drained.
func (p *PCMReader) ReadWindow(dst []float64) (int, error) {
	need := len(dst) * 2
	if cap(p.buf) < need {
		p.buf = make([]byte, need)
	}
	buf := p.buf[:need]

	read, err := io.ReadFull(p.r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return 0, err
	}
	read -= read % 2

	n := read / 2
	for i := range n {
		v := int16(binary.LittleEndian.Uint16(buf[i*2:]))
		dst[i] = float64(v) / 32768
	}
	if err != nil {
		return n, io.EOF
	}
	return n, nil
}
