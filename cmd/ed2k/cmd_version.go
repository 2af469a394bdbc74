package main

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"
)

// set at build time with -ldflags "-X main.version=..."
var version = "dev"

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "ed2k %s compiled with %v on %v/%v\n",
				version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
