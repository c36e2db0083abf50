// Command timeturner is the LTC decode and studio clock sync daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "timeturner",
		Short: "SMPTE LTC decoder and studio clock synchroniser",
		Long: `timeturner decodes SMPTE linear timecode from an audio capture or a
serial decoder's text feed, tracks the signal lock, measures the offset
between the house feed and the local clock, and corrects the system
clock when the measurement is trustworthy.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd(), newDecodeCmd(), newProbeCmd(), newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "timeturner: %v\n", err)
		os.Exit(1)
	}
}
