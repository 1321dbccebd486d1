package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/filebay/filebay/system"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version and exit",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "filebay v%s (%s, %s/%s)\n", system.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
