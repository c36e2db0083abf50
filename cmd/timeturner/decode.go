package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/studioclock/timeturner/internal/config"
	"github.com/studioclock/timeturner/internal/observe"
	"github.com/studioclock/timeturner/internal/pipeline"
)

func newDecodeCmd() *cobra.Command {
	var (
		input    string
		format   string
		rate     int
		window   float64
		strategy string
	)

	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode a capture and print the timecodes it carries",
		Long: `Decode runs the full LTC chain over a capture file (or stdin) without
starting the daemon. Each decoded timecode is printed in the same
format external decoder hardware emits.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Default()
			cfg.Ingress.Path = input
			cfg.Ingress.Format = config.AudioFormat(format)
			cfg.Ingress.SampleRate = rate
			cfg.Ingress.WindowSeconds = window
			cfg.Decode.Strategy = config.Strategy(strategy)
			if err := config.Validate(cfg); err != nil {
				return err
			}

			p, err := pipeline.New(cfg, observe.DefaultMetrics(),
				pipeline.WithNotify(printEvent(cmd)))
			if err != nil {
				return err
			}
			if err := p.Run(cmd.Context()); err != nil {
				return err
			}

			snap := p.Consumer().Snapshot()
			cmd.Printf("\n%d windows, %d frames decoded\n", snap.Session.Windows, snap.Session.Frames)
			printFaults(cmd, snap.Session.Faults)
			if snap.Session.Frames == 0 {
				return fmt.Errorf("no timecode found in %s", input)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "-", `capture file ("-" for stdin)`)
	cmd.Flags().StringVar(&format, "format", "pcm", "audio framing: pcm or wav")
	cmd.Flags().IntVar(&rate, "rate", 48000, "sample rate in Hz for headerless pcm")
	cmd.Flags().Float64Var(&window, "window", 1, "analysis window in seconds")
	cmd.Flags().StringVar(&strategy, "strategy", "two-means", "pulse classifier: adaptive or two-means")
	return cmd
}

// printEvent renders each newly decoded timecode the way external
// decoder hardware prints its status lines.
func printEvent(cmd *cobra.Command) func(pipeline.Snapshot) {
	var last string
	return func(s pipeline.Snapshot) {
		if s.LastEvent == nil {
			return
		}
		ev := s.LastEvent
		sep := ":"
		if ev.DropFrame {
			sep = ";"
		}
		line := fmt.Sprintf("[%s] %02d:%02d:%02d%s%02d | %s",
			s.State, ev.Timecode.Hours, ev.Timecode.Minutes, ev.Timecode.Seconds,
			sep, ev.Timecode.Frames, s.Rate)
		if line == last {
			return
		}
		last = line
		cmd.Println(line)
	}
}

func printFaults(cmd *cobra.Command, faults map[string]uint64) {
	if len(faults) == 0 {
		return
	}
	kinds := make([]string, 0, len(faults))
	for k := range faults {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		cmd.Printf("  fault %-20s %d\n", k, faults[k])
	}
}
