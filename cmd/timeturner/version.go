package main

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/studioclock/timeturner/internal/app"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("timeturner %s (%s)\n", app.Version, runtime.Version())
		},
	}
}
