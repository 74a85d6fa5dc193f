package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/burrow-dev/burrow/pkg/version"
)

// New creates a new `version` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of Burrow.",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("burrow version %s\n", version.Version)
		},
	}
}
