package recreate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/burrow-dev/burrow/cmd/util"
)

// New creates a new `recreate` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "recreate <vm>",
		Short: "Tear down and re-establish a running VM's file sync.",
		Long: "Terminate the VM's sync sessions, release its locks, and\n" +
			"activate fresh sessions. Useful when sync is wedged but the\n" +
			"VM itself is healthy.",
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

	if err := env.TeardownSync(vmName, "recreate", true); err != nil {
		return err
	}
	if err := env.ActivateSync(vmName); err != nil {
		return err
	}

	fmt.Printf("Recreated sync for %s.\n", vmName)
	return nil
}
