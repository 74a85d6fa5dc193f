package watch

import (
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/burrow-dev/burrow/cmd/util"
	"github.com/burrow-dev/burrow/pkg/watcher"
)

// New creates the hidden `watch` command. `up` spawns it as a detached
// process; it is not meant to be run by hand.
func New() *cobra.Command {
	var vmArg string

	cmd := &cobra.Command{
		Use:    "watch",
		Short:  "Watch a VM and tear down its sync when it goes away.",
		Hidden: true,
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(vmArg); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&vmArg, "vm", "", "the VM to watch")
	return cmd
}

func run(vmArg string) error {
	vmName, err := util.ResolveVMName(vmArg)
	if err != nil {
		return err
	}

	env, err := util.LoadEnv()
	if err != nil {
		return err
	}

	teardown := func(vmName string) error {
		err := env.Manager.TerminateAll(vmName, false, "vm not running")
		env.Locks.CleanupForVM(vmName)
		if clearErr := env.Registry.Clear(vmName); clearErr != nil {
			log.WithError(clearErr).WithField("vm", vmName).
				Warn("Failed to clear active sync record")
		}
		return err
	}

	w := watcher.New(vmName, env.Backend, teardown,
		env.Config.WatcherThreshold, env.Config.WatcherPoll())

	// SIGTERM from `burrow down` means the user is tearing down
	// explicitly; exit without triggering a second teardown.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-signals
		log.WithField("signal", sig).Debug("Watcher cancelled")
		w.Cancel()
	}()

	log.WithField("vm", vmName).Info("Watching VM")
	go w.Run()

	result := <-w.Result()
	if result.Triggered {
		log.WithField("vm", vmName).Info("Teardown triggered; exiting")
	}
	return result.Err
}
