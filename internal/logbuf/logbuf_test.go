package logbuf

import (
	"io"
	"log/slog"
	"testing"
)

func newTestLogger(capacity int) (*slog.Logger, *Buffer) {
	buf := NewBuffer(capacity)
	next := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewHandler(next, buf)), buf
}

func TestBuffer_EvictsOldest(t *testing.T) {
	t.Parallel()
	log, buf := newTestLogger(3)
	for _, msg := range []string{"a", "b", "c", "d"} {
		log.Info(msg)
	}
	got := buf.Entries()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Message != "b" || got[2].Message != "d" {
		t.Errorf("entries = %v, want b..d", got)
	}
}

func TestHandler_CapturesAttrs(t *testing.T) {
	t.Parallel()
	log, buf := newTestLogger(10)
	log.With("source", "audio").Warn("no sync word", "bits", "4096")

	entries := buf.Entries()
	if len(entries) != 1 {
		t.Fatalf("len = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Level != "WARN" || e.Message != "no sync word" {
		t.Errorf("entry = %+v", e)
	}
	if e.Attrs["source"] != "audio" || e.Attrs["bits"] != "4096" {
		t.Errorf("attrs = %v", e.Attrs)
	}
}

func TestHandler_RespectsLevel(t *testing.T) {
	t.Parallel()
	buf := NewBuffer(10)
	next := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn})
	log := slog.New(NewHandler(next, buf))

	log.Debug("ignored")
	log.Error("kept")
	entries := buf.Entries()
	if len(entries) != 1 || entries[0].Message != "kept" {
		t.Errorf("entries = %v, want only the error", entries)
	}
}
