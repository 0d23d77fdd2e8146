// Package version implements `corvid version`.
package version

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/corvidrun/corvid/cmd/corvid/internal"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Aliases: []string{"v"},
		Short:   "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("%s corvid %s\n", internal.Logo, Version)
			fmt.Printf("  Go: %s\n", runtime.Version())
		},
	}
}
