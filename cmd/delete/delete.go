package delete

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/burrow-dev/burrow/cmd/util"
	"github.com/burrow-dev/burrow/pkg/errors"
)

// New creates a new `delete` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <vm>",
		Short: "Delete a VM after tearing down its file sync.",
		Args:  cobra.ExactArgs(1),
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

	exists, err := env.Backend.Exists(vmName)
	if err != nil {
		return errors.WithContext(err, "check vm")
	}
	if !exists {
		fmt.Printf("%s doesn't exist. Nothing to do.\n", vmName)
		return nil
	}

	// Sync teardown is best effort. A broken engine must never leave the
	// VM undeletable.
	if err := env.TeardownSync(vmName, "delete", false); err != nil {
		log.WithError(err).WithField("vm", vmName).
			Warn("Sync teardown failed; deleting VM anyway")
	}

	running, err := env.Backend.IsRunning(vmName)
	if err == nil && running {
		if err := env.Backend.Stop(vmName); err != nil {
			log.WithError(err).WithField("vm", vmName).
				Debug("Failed to stop vm before delete")
		}
	}

	if err := env.Backend.Delete(vmName); err != nil {
		return errors.WithContext(err, "delete vm")
	}

	fmt.Printf("Deleted %s.\n", vmName)
	return nil
}
