package util

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/burrow-dev/burrow/pkg/errors"
	"github.com/burrow-dev/burrow/pkg/sync"
)

// ActivateSync locks the configured shared paths, creates a sync session
// for each, and waits for the required ones to become healthy; optional
// roles are excluded from the readiness wait. The VM must already be
// running. A readiness timeout on a required role is reported but does not
// undo the activation: sync may still finish moments later.
func (env *Env) ActivateSync(vmName string) error {
	running, err := env.Backend.IsRunning(vmName)
	if err != nil {
		return errors.WithContext(err, "check vm state")
	}
	if !running {
		return errors.NewFriendlyError(
			"VM %q is not running. Start it first with `tart run %s`.",
			vmName, vmName)
	}

	if err := env.Engine.CheckVersion(); err != nil {
		return err
	}

	ip, err := env.Backend.IPAddress(vmName)
	if err != nil {
		return errors.WithContext(err, "get vm ip")
	}

	var sessions []*sync.Session
	for _, spec := range env.SyncSpecs() {
		if _, err := env.Locks.Acquire(string(spec.Role), spec.HostPath,
			vmName); err != nil {
			return err
		}

		session, err := env.Manager.Activate(vmName, ip, spec)
		if err != nil {
			return err
		}
		sessions = append(sessions, session)
	}

	if err := env.Registry.Mark(vmName); err != nil {
		log.WithError(err).WithField("vm", vmName).
			Warn("Failed to record active sync")
	}

	pp := NewProgressPrinter(os.Stdout, "Waiting for sync to become ready")
	go pp.Run()
	defer pp.Stop()

	for _, err := range env.Manager.AwaitReady(sessions, env.Config.ReadyTimeout()) {
		log.WithField("vm", vmName).Warn(errors.GetPrintableMessage(err))
	}

	if err := env.Supervisor.Start(vmName, env.Config.WatcherPoll()); err != nil {
		log.WithError(err).WithField("vm", vmName).
			Warn("Failed to start teardown watcher")
	}
	return nil
}

// TeardownSync cancels the VM's watcher, terminates its sync sessions, and
// releases its locks. Teardown is best effort: each step runs even when an
// earlier one failed, and only the first error is returned.
func (env *Env) TeardownSync(vmName, reason string, flush bool) error {
	// The watcher goes first so it cannot observe the VM going away and
	// race a second teardown.
	if err := env.Supervisor.Stop(vmName); err != nil {
		log.WithError(err).WithField("vm", vmName).
			Warn("Failed to stop teardown watcher")
	}

	firstErr := env.Manager.TerminateAll(vmName, flush, reason)
	env.Locks.CleanupForVM(vmName)
	if err := env.Registry.Clear(vmName); err != nil {
		log.WithError(err).WithField("vm", vmName).
			Warn("Failed to clear active sync record")
	}

	if firstErr != nil {
		return errors.WithContext(firstErr, "terminate sync")
	}
	return nil
}
