package up

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/burrow-dev/burrow/cmd/util"
)

// New creates a new `up` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "up <vm>",
		Short: "Activate file sync into a running VM.",
		Long: "Lock the configured shared paths, create a sync session\n" +
			"for each, wait for them to connect, and arm the teardown\n" +
			"watcher for the VM.",
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			if err := run(args[0]); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func run(arg string) error {
	vmName, err := util.ResolveVMName(arg)
	if err != nil {
		return err
	}

	env, err := util.LoadEnv()
	if err != nil {
		return err
	}

	// Clean up anything a crashed invocation left behind before taking
	// new locks.
	env.Reconcile()

	if err := env.ActivateSync(vmName); err != nil {
		return err
	}

	fmt.Printf("Sync is up for %s.\n", vmName)
	return nil
}
