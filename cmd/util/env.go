package util

import (
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/burrow-dev/burrow/pkg/config"
	"github.com/burrow-dev/burrow/pkg/engine/mutagen"
	"github.com/burrow-dev/burrow/pkg/errors"
	"github.com/burrow-dev/burrow/pkg/events"
	"github.com/burrow-dev/burrow/pkg/lock"
	"github.com/burrow-dev/burrow/pkg/sync"
	"github.com/burrow-dev/burrow/pkg/vm"
	"github.com/burrow-dev/burrow/pkg/vm/tart"
	"github.com/burrow-dev/burrow/pkg/watcher"
)

// guestPathBase is where synced directories land inside every guest.
const guestPathBase = "/Users/Shared/burrow-sync"

// Env bundles the collaborators every lifecycle command needs, wired once
// from the user's config.
type Env struct {
	Config     config.Config
	Backend    vm.Backend
	Engine     mutagen.Engine
	Locks      *lock.Store
	Events     *events.Log
	Manager    *sync.Manager
	Registry   *sync.Registry
	Supervisor *watcher.Supervisor
}

// LoadEnv parses the user's config and wires the environment.
func LoadEnv() (*Env, error) {
	cfg, err := config.Parse()
	if err != nil {
		return nil, errors.WithContext(err, "parse config")
	}

	fs := afero.NewOsFs()
	backend := tart.New()
	eng := mutagen.New()
	locks := lock.NewStore(fs, cfg.StateDir, backend)
	eventLog := events.NewLog(fs, cfg.StateDir)

	return &Env{
		Config:     cfg,
		Backend:    backend,
		Engine:     eng,
		Locks:      locks,
		Events:     eventLog,
		Manager:    sync.NewManager(eng, locks, eventLog, cfg.GuestUser),
		Registry:   sync.NewRegistry(fs, cfg.StateDir),
		Supervisor: watcher.NewSupervisor(fs, cfg.StateDir),
	}, nil
}

// SyncSpecs returns the sync roles configured for this host. The
// signal-cli payload is optional; the others are validated at config parse
// time.
func (env *Env) SyncSpecs() []sync.Spec {
	specs := []sync.Spec{
		{
			Role:      sync.RoleSource,
			HostPath:  env.Config.SourcePath,
			GuestPath: guestPathBase + "/source",
			IgnoreVCS: true,
			Ignore:    env.Config.IgnorePaths,
		},
		{
			Role:      sync.RolePayload,
			HostPath:  env.Config.PayloadPath,
			GuestPath: guestPathBase + "/payload",
		},
	}
	if env.Config.SignalPayloadPath != "" {
		specs = append(specs, sync.Spec{
			Role:      sync.RoleSignalPayload,
			HostPath:  env.Config.SignalPayloadPath,
			GuestPath: guestPathBase + "/signal-cli-payload",
			Optional:  true,
		})
	}
	return specs
}

// GuestPaths returns the guest-side directories for the configured roles.
func (env *Env) GuestPaths() []string {
	var paths []string
	for _, spec := range env.SyncSpecs() {
		paths = append(paths, spec.GuestPath)
	}
	return paths
}

// Reconcile cleans up state left behind by crashed invocations: watcher
// records for dead processes, and sync sessions or locks belonging to VMs
// that are no longer running.
func (env *Env) Reconcile() {
	env.Supervisor.Reconcile()
	env.Manager.Reconcile(env.Backend, env.Registry)
}

// ResolveVMName accepts either a bare VM number or a full VM name.
func ResolveVMName(arg string) (string, error) {
	if arg == "" {
		return "", errors.NewFriendlyError(
			"A VM must be specified, either as a number (e.g. 91) " +
				"or a full name (e.g. burrow-91).")
	}
	if number, err := strconv.Atoi(arg); err == nil {
		return vm.Name(number), nil
	}
	if suffix := strings.TrimPrefix(arg, vm.NamePrefix); suffix != arg {
		if _, err := strconv.Atoi(suffix); err == nil {
			return arg, nil
		}
	}
	return "", errors.NewFriendlyError(
		"%q is not a VM name. Use a number (e.g. 91) or a full "+
			"name (e.g. burrow-91).", arg)
}
