package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	deleteCmd "github.com/burrow-dev/burrow/cmd/delete"
	"github.com/burrow-dev/burrow/cmd/down"
	"github.com/burrow-dev/burrow/cmd/recreate"
	"github.com/burrow-dev/burrow/cmd/status"
	"github.com/burrow-dev/burrow/cmd/up"
	"github.com/burrow-dev/burrow/cmd/util"
	"github.com/burrow-dev/burrow/cmd/version"
	"github.com/burrow-dev/burrow/cmd/watch"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info
// and above.
const verboseLogKey = "BURROW_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	if os.Getenv(verboseLogKey) == "true" {
		log.SetLevel(log.DebugLevel)
	}

	rootCmd := &cobra.Command{
		Use:          "burrow",
		Short:        "Manage file sync between this host and burrow VMs.",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		up.New(),
		down.New(),
		deleteCmd.New(),
		recreate.New(),
		status.New(),
		watch.New(),
		version.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}
