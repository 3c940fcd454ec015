package main

import (
	"fmt"
	"runtime"

	"catchall/internal/version"

	"github.com/spf13/cobra"
)

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "catchall version %s (%s)\n", version.Version, runtime.Version())
		},
	}
}
