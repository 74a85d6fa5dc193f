package sync

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/burrow-dev/burrow/pkg/engine"
	"github.com/burrow-dev/burrow/pkg/errors"
	"github.com/burrow-dev/burrow/pkg/events"
	"github.com/burrow-dev/burrow/pkg/lock"
	"github.com/burrow-dev/burrow/pkg/vm"
)

// Role identifies which shared path a session mirrors. A VM has at most one
// active session per role.
type Role string

const (
	RoleSource        Role = "source"
	RolePayload       Role = "payload"
	RoleSignalPayload Role = "signal-cli-payload"
)

// Spec describes one shared path to sync into a guest.
type Spec struct {
	Role      Role
	HostPath  string
	GuestPath string
	IgnoreVCS bool
	Ignore    []string

	// Optional roles are skipped when unconfigured and excluded from the
	// readiness requirement.
	Optional bool
}

// Session tracks one activated sync session.
type Session struct {
	VM        string
	Role      Role
	HostPath  string
	GuestPath string

	// EngineID is the identifier the engine assigned, when it reported one.
	EngineID string

	// State is the result of the most recent poll.
	State engine.State

	// LastStatus is the engine's raw status text from the most recent poll.
	LastStatus string

	// Optional sessions are excluded from the readiness requirement.
	Optional bool
}

const (
	terminateAttempts = 3
	terminateBackoff  = 500 * time.Millisecond
)

// Label returns the engine label addressing all of a VM's sessions.
func Label(vmName string) string {
	return "burrow.vm=" + vmName
}

// SessionName returns the engine session name for a VM and role.
func SessionName(vmName string, role Role) string {
	return fmt.Sprintf("%s-%s", vmName, role)
}

// RoleFromSessionName recovers the role from an engine session name.
func RoleFromSessionName(name, vmName string) Role {
	prefix := vmName + "-"
	if len(name) > len(prefix) && name[:len(prefix)] == prefix {
		return Role(name[len(prefix):])
	}
	return ""
}

// Manager creates, polls, and terminates sync sessions. It is the only
// component permitted to drive the external engine.
type Manager struct {
	engine    engine.Engine
	locks     *lock.Store
	events    *events.Log
	clock     clockwork.Clock
	guestUser string
}

// NewManager wires a Manager to its collaborators.
func NewManager(eng engine.Engine, locks *lock.Store, eventLog *events.Log,
	guestUser string) *Manager {

	return &Manager{
		engine:    eng,
		locks:     locks,
		events:    eventLog,
		clock:     clockwork.NewRealClock(),
		guestUser: guestUser,
	}
}

// Activate creates a sync session for the given spec. The caller must
// already hold the host-path lock for this role; activation never proceeds
// without exclusivity.
func (m *Manager) Activate(vmName, ip string, spec Spec) (*Session, error) {
	if !m.locks.Held(string(spec.Role), spec.HostPath, vmName) {
		return nil, lock.NotHeldError{Path: spec.HostPath, VM: vmName}
	}

	name := SessionName(vmName, spec.Role)
	label := Label(vmName)

	// At most one session per (vm, role): terminate any leftover session
	// with this name before creating a fresh one.
	existing, err := m.engine.ListSessions(label)
	if err == nil {
		for _, session := range existing {
			if session.Name != name {
				continue
			}
			log.WithField("session", name).
				Debug("Terminating leftover session before activation")
			if err := m.terminateWithRetries(session); err != nil {
				log.WithError(err).WithField("session", name).
					Warn("Failed to terminate leftover session")
			}
		}
	}

	id, err := m.engine.CreateSession(engine.CreateSpec{
		Name:      name,
		Label:     label,
		HostPath:  spec.HostPath,
		GuestURL:  fmt.Sprintf("%s@%s:%s", m.guestUser, ip, spec.GuestPath),
		IgnoreVCS: spec.IgnoreVCS,
		Ignore:    spec.Ignore,
	})
	if err != nil {
		return nil, errors.WithContext(err, "create sync session")
	}

	m.appendEvent(vmName, spec.Role, events.TypeActivate, id)
	return &Session{
		VM:        vmName,
		Role:      spec.Role,
		HostPath:  spec.HostPath,
		GuestPath: spec.GuestPath,
		EngineID:  id,
		State:     engine.StateConnecting,
		Optional:  spec.Optional,
	}, nil
}

// Terminate ends the session with bounded retries. The session is marked
// terminated regardless of whether the engine call ever succeeds, so that
// callers (a VM delete in particular) can always proceed.
func (m *Manager) Terminate(sess *Session, reason string) error {
	err := m.terminateWithRetries(engine.Session{ID: sess.EngineID,
		Name: SessionName(sess.VM, sess.Role)})
	sess.State = engine.StateTerminated

	if err != nil {
		m.appendEvent(sess.VM, sess.Role, events.TypeTeardownFailed, err.Error())
		return errors.WithContext(err, "terminate sync session")
	}
	m.appendEvent(sess.VM, sess.Role, events.TypeTeardown, reason)
	return nil
}

// TerminateAll ends every engine session belonging to vmName, optionally
// flushing pending changes first. Failures are reported but each session is
// still attempted.
func (m *Manager) TerminateAll(vmName string, flush bool, reason string) error {
	if !m.engine.Available() {
		return nil
	}

	label := Label(vmName)
	if flush {
		if err := m.engine.Flush(label); err != nil {
			log.WithError(err).WithField("vm", vmName).
				Debug("Pre-teardown flush failed")
		}
	}

	sessions, err := m.engine.ListSessions(label)
	if err != nil {
		return errors.WithContext(err, "list sessions")
	}

	var firstErr error
	for _, session := range sessions {
		role := RoleFromSessionName(session.Name, vmName)
		if err := m.terminateWithRetries(session); err != nil {
			m.appendEvent(vmName, role, events.TypeTeardownFailed, err.Error())
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		m.appendEvent(vmName, role, events.TypeTeardown, reason)
	}
	return firstErr
}

// Poll queries the engine for the session's current state and maps it into
// the local vocabulary. Unknown or unreachable engine answers map to
// degraded, never to a silent no-op.
func (m *Manager) Poll(sess *Session) engine.State {
	if sess.State == engine.StateTerminated {
		return engine.StateTerminated
	}

	sessions, err := m.engine.ListSessions(Label(sess.VM))
	if err != nil {
		m.transition(sess, engine.StateDegraded, err.Error())
		return sess.State
	}

	name := SessionName(sess.VM, sess.Role)
	for _, session := range sessions {
		if session.Name != name && (session.ID == "" || session.ID != sess.EngineID) {
			continue
		}
		m.transition(sess, session.State, session.StatusText)
		return sess.State
	}

	m.transition(sess, engine.StateTerminated, "session not found")
	return sess.State
}

// transition records a state change, emitting a degrade event when a
// session first leaves health.
func (m *Manager) transition(sess *Session, state engine.State, statusText string) {
	if state == engine.StateDegraded && sess.State != engine.StateDegraded {
		m.appendEvent(sess.VM, sess.Role, events.TypeDegrade, statusText)
	}
	sess.State = state
	sess.LastStatus = statusText
}

func (m *Manager) terminateWithRetries(session engine.Session) error {
	specifier := session.ID
	if specifier == "" {
		specifier = session.Name
	}

	var err error
	for attempt := 0; attempt < terminateAttempts; attempt++ {
		if attempt > 0 {
			m.clock.Sleep(terminateBackoff * time.Duration(attempt))
		}
		if err = m.engine.TerminateSession(specifier); err == nil {
			return nil
		}
	}
	return err
}

func (m *Manager) appendEvent(vmName string, role Role, eventType, reason string) {
	if err := m.events.Append(vmName, string(role), eventType, reason); err != nil {
		log.WithError(err).WithField("vm", vmName).
			Warn("Failed to append sync event")
	}
}

// Reconcile tears down sync for any VM recorded as active that the backend
// confirms is no longer running. Backend errors skip the VM entirely: sync
// is never torn down on uncertain liveness.
func (m *Manager) Reconcile(backend vm.Backend, registry *Registry) {
	for _, vmName := range registry.List() {
		running, err := backend.IsRunning(vmName)
		if err != nil {
			log.WithError(err).WithField("vm", vmName).
				Debug("Skipping sync reconcile; VM liveness unknown")
			continue
		}
		if running {
			continue
		}

		log.WithField("vm", vmName).Info("Reconciling sync for stopped VM")
		if err := m.TerminateAll(vmName, false, "vm not running"); err != nil {
			log.WithError(err).WithField("vm", vmName).
				Warn("Reconcile teardown failed")
		}
		m.locks.CleanupForVM(vmName)
		if err := registry.Clear(vmName); err != nil {
			log.WithError(err).WithField("vm", vmName).
				Warn("Failed to clear active-VM registry entry")
		}
	}
}
