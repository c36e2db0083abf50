package ingress

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"
)

// buildWAV assembles a minimal RIFF/WAVE capture around raw s16le samples.
func buildWAV(t *testing.T, samples []int16, sampleRate, channels, bits int) []byte {
	t.Helper()
	var data bytes.Buffer
	for _, s := range samples {
		binary.Write(&data, binary.LittleEndian, s)
	}

	var fmtChunk bytes.Buffer
	binary.Write(&fmtChunk, binary.LittleEndian, uint16(1)) // pcm
	binary.Write(&fmtChunk, binary.LittleEndian, uint16(channels))
	binary.Write(&fmtChunk, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&fmtChunk, binary.LittleEndian, uint32(sampleRate*channels*bits/8))
	binary.Write(&fmtChunk, binary.LittleEndian, uint16(channels*bits/8))
	binary.Write(&fmtChunk, binary.LittleEndian, uint16(bits))

	var out bytes.Buffer
	out.WriteString("RIFF")
	binary.Write(&out, binary.LittleEndian, uint32(4+8+fmtChunk.Len()+8+data.Len()))
	out.WriteString("WAVE")
	out.WriteString("fmt ")
	binary.Write(&out, binary.LittleEndian, uint32(fmtChunk.Len()))
	out.Write(fmtChunk.Bytes())
	out.WriteString("data")
	binary.Write(&out, binary.LittleEndian, uint32(data.Len()))
	out.Write(data.Bytes())
	return out.Bytes()
}

func TestOpenWAV(t *testing.T) {
	t.Parallel()
	samples := []int16{0, 16384, -16384, 32767}
	wav := buildWAV(t, samples, 48000, 1, 16)

	pcm, info, err := OpenWAV(bytes.NewReader(wav))
	if err != nil {
		t.Fatalf("OpenWAV: %v", err)
	}
	if info.SampleRate != 48000 || info.Channels != 1 || info.Bits != 16 {
		t.Errorf("info = %+v", info)
	}
	if info.DataBytes != 8 {
		t.Errorf("DataBytes = %d, want 8", info.DataBytes)
	}

	dst := make([]float64, 4)
	n, err := pcm.ReadWindow(dst)
	if n != 4 {
		t.Fatalf("ReadWindow n = %d err = %v, want 4", n, err)
	}
	want := []float64{0, 0.5, -0.5, 32767.0 / 32768}
	for i := range want {
		if math.Abs(dst[i]-want[i]) > 1e-9 {
			t.Errorf("sample %d = %v, want %v", i, dst[i], want[i])
		}
	}
}

func TestOpenWAV_SkipsUnknownChunks(t *testing.T) {
	t.Parallel()
	wav := buildWAV(t, []int16{100}, 44100, 1, 16)
	// Splice a LIST chunk between fmt and data.
	i := bytes.Index(wav, []byte("data"))
	extra := append([]byte("LIST"), 0x04, 0, 0, 0, 'I', 'N', 'F', 'O')
	spliced := append(append(append([]byte{}, wav[:i]...), extra...), wav[i:]...)

	_, info, err := OpenWAV(bytes.NewReader(spliced))
	if err != nil {
		t.Fatalf("OpenWAV: %v", err)
	}
	if info.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, want 44100", info.SampleRate)
	}
}

func TestOpenWAV_Rejections(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		wav  []byte
	}{
		{"truncated", []byte("RIFF")},
		{"not riff", bytes.Repeat([]byte{0}, 64)},
		{"stereo", buildWAV(t, []int16{0, 0}, 48000, 2, 16)},
		{"8-bit", buildWAV(t, []int16{0}, 48000, 1, 8)},
	}
	for _, c := range cases {
		if _, _, err := OpenWAV(bytes.NewReader(c.wav)); !errors.Is(err, ErrBadWAV) {
			t.Errorf("%s: err = %v, want ErrBadWAV", c.name, err)
		}
	}
}

func TestPCMReader_PartialFinalWindow(t *testing.T) {
	t.Parallel()
	raw := []byte{0x00, 0x40, 0x00, 0xC0, 0x01} // 2.5 samples
	pcm := NewPCMReader(bytes.NewReader(raw))

	dst := make([]float64, 4)
	n, err := pcm.ReadWindow(dst)
	if n != 2 || !errors.Is(err, io.EOF) {
		t.Fatalf("n=%d err=%v, want 2 samples and io.EOF", n, err)
	}
	if dst[0] != 0.5 || dst[1] != -0.5 {
		t.Errorf("samples = %v", dst[:2])
	}
}

func TestPCMReader_DrainedSource(t *testing.T) {
	t.Parallel()
	pcm := NewPCMReader(bytes.NewReader(nil))
	n, err := pcm.ReadWindow(make([]float64, 8))
	if n != 0 || !errors.Is(err, io.EOF) {
		t.Errorf("n=%d err=%v, want 0 and io.EOF", n, err)
	}
}
