// ABOUTME: version command
// ABOUTME: Prints product, version and the output backends available on this system
package main

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/Resonate-Protocol/audioout/internal/version"
	"github.com/Resonate-Protocol/audioout/pkg/audio/output"
	"github.com/spf13/cobra"
)

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backends := output.NewFactory(output.WithLogger(a.logger)).Backends()
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n%s/%s %s\nbackends: %s\n",
				version.Product, version.String(), version.Manufacturer,
				runtime.GOOS, runtime.GOARCH, runtime.Version(),
				strings.Join(backends, ", "))
			return err
		},
	}
}
