package down

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/burrow-dev/burrow/cmd/util"
	"github.com/burrow-dev/burrow/pkg/errors"
)

const stopDeadline = 120 * time.Second

// New creates a new `down` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "down <vm>",
		Short: "Tear down a VM's file sync and stop the VM.",
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

	if err := env.TeardownSync(vmName, "down", true); err != nil {
		return err
	}

	running, err := env.Backend.IsRunning(vmName)
	if err != nil {
		return errors.WithContext(err, "check vm state")
	}
	if !running {
		fmt.Printf("%s is already stopped.\n", vmName)
		return nil
	}

	pp := util.NewProgressPrinter(os.Stdout,
		fmt.Sprintf("Stopping %s...", vmName))
	go pp.Run()
	defer pp.Stop()

	if err := env.Backend.Stop(vmName); err != nil {
		return errors.WithContext(err, "stop vm")
	}

	stopped := func() bool {
		running, err := env.Backend.IsRunning(vmName)
		return err == nil && !running
	}
	if !waitUntilTrue(stopped) {
		return errors.New("vm stop exceeded grace period")
	}
	return nil
}

func waitUntilTrue(f func() bool) bool {
	deadlineExceeded := time.After(stopDeadline)
	poll := time.NewTicker(500 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-deadlineExceeded:
			return false
		case <-poll.C:
			if f() {
				return true
			}
		}
	}
}
