package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/dshills/ruleminer/internal/storage"
)

func newVersionCmd(_ *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Run: func(cmd *cobra.Command, _ []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "ruleminer %s\n", version)
			fmt.Fprintf(w, "  built:   %s\n", buildTime)
			fmt.Fprintf(w, "  go:      %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(w, "  storage: %s (%s), vector extension: %t\n",
				storage.DriverName, storage.BuildMode, storage.VectorExtensionAvailable)
		},
	}
}
