// Package lineproto parses the textual status lines emitted by external
// LTC-to-text decoder hardware, e.g.
//
//	[LOCK] 10:00:00:00 | 25.00fps
//	[FREE] 09:59:59;24 | 29.97fps
//
// A ";" before the frames field marks drop-frame counting. Lines that do
// not match the grammar are rejected with ErrUnrecognisedLine; the stream
// itself is never aborted over a bad line.
package lineproto

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/studioclock/timeturner/pkg/timecode"
)

// ErrUnrecognisedLine is reported for any line the grammar rejects,
// including lines whose fields parse but carry out-of-range values.
var ErrUnrecognisedLine = errors.New("lineproto: unrecognised line")

var lineRE = regexp.MustCompile(`\[(LOCK|FREE)\]\s+(\d{2}):(\d{2}):(\d{2})([:;])(\d{2})\s+\|\s+([\d.]+)(?i:fps)`)

// Parse decodes one status line into an event stamped with the given
// arrival time. The returned event is the same shape the audio decode path
// produces, so everything downstream is ingress-agnostic.
func Parse(line string, at time.Time) (timecode.Event, error) {
	m := lineRE.FindStringSubmatch(line)
	if m == nil {
		return timecode.Event{}, fmt.Errorf("%w: %q", ErrUnrecognisedLine, line)
	}

	fps, err := strconv.ParseFloat(m[7], 64)
	if err != nil {
		return timecode.Event{}, fmt.Errorf("%w: bad fps %q", ErrUnrecognisedLine, m[7])
	}
	rate, err := timecode.FromFPS(fps)
	if err != nil {
		return timecode.Event{}, fmt.Errorf("%w: %v", ErrUnrecognisedLine, err)
	}

	tc := timecode.Timecode{
		Hours:   mustInt(m[2]),
		Minutes: mustInt(m[3]),
		Seconds: mustInt(m[4]),
		Frames:  mustInt(m[6]),
		Rate:    rate,
	}
	if err := tc.Validate(); err != nil {
		return timecode.Event{}, fmt.Errorf("%w: %v", ErrUnrecognisedLine, err)
	}

	status := timecode.StatusFree
	if m[1] == "LOCK" {
		status = timecode.StatusLock
	}
	return timecode.Event{
		Timecode:  tc,
		Status:    status,
		DropFrame: m[5] == ";",
		At:        at,
	}, nil
}

// mustInt converts a digit group already vetted by the regexp.
func mustInt(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
