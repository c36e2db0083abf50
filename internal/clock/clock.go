// Package clock is the privileged boundary that actually moves the system
// clock. The sync authority only certifies corrections; one of the setters
// here applies them.
package clock

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Setter applies a wall-clock correction.
type Setter interface {
	// Set steps the clock to the given instant.
	Set(ctx context.Context, to time.Time) error

	// Name identifies the setter in logs and the status API.
	Name() string
}

// Nop logs the correction it would have applied and does nothing else.
// The default setter; useful for dry runs and unprivileged deployments.
type Nop struct{}

func (Nop) Name() string { return "none" }

func (Nop) Set(_ context.Context, to time.Time) error {
	slog.Info("clock correction computed but setter is none",
		"corrected_time", to.Format(time.RFC3339Nano))
	return nil
}

// System steps the system clock by invoking an external command, by
// default date -s with a Unix epoch argument. Running it requires
// CAP_SYS_TIME or root.
type System struct {
	// Command is the executable to run. Empty selects "date".
	Command string

	// Args are prepended before the timestamp argument. Empty selects
	// ["-s"].
	Args []string
}

func (s *System) Name() string { return "system" }

func (s *System) Set(ctx context.Context, to time.Time) error {
	command := s.Command
	if command == "" {
		command = "date"
	}
	args := s.Args
	if len(args) == 0 {
		args = []string{"-s"}
	}
	stamp := fmt.Sprintf("@%.6f", float64(to.UnixNano())/float64(time.Second))
	args = append(append([]string{}, args...), stamp)

	out, err := exec.CommandContext(ctx, command, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("clock: %s %s: %w (%s)",
			command, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	slog.Info("system clock stepped", "corrected_time", to.Format(time.RFC3339Nano))
	return nil
}
