package sync

import (
	"fmt"
	"time"

	"github.com/burrow-dev/burrow/pkg/engine"
	"github.com/burrow-dev/burrow/pkg/events"
)

// readyPollInterval is how often the readiness gate re-polls the engine.
const readyPollInterval = 2 * time.Second

// ReadinessTimeoutError reports that a session did not become healthy
// within the wait budget. The session is left in place: sync may still
// complete moments later, and the caller decides whether to proceed
// degraded or abort.
type ReadinessTimeoutError struct {
	VM         string
	Role       Role
	Waited     time.Duration
	LastStatus string
}

func (err ReadinessTimeoutError) Error() string {
	return err.FriendlyMessage()
}

// FriendlyMessage implements the friendly error interface.
func (err ReadinessTimeoutError) FriendlyMessage() string {
	msg := fmt.Sprintf("Sync session %q for VM %q did not become ready "+
		"within %s.", err.Role, err.VM, err.Waited)
	if err.LastStatus != "" {
		msg += fmt.Sprintf(" Last engine status: %s.", err.LastStatus)
	}
	return msg + " Sync may still finish; check `burrow status` in a moment."
}

// WaitUntilReady blocks until the session reaches the active state or the
// timeout elapses. On timeout the session is not torn down.
func (m *Manager) WaitUntilReady(sess *Session, timeout time.Duration) error {
	deadline := m.clock.Now().Add(timeout)
	for {
		if m.Poll(sess) == engine.StateActive {
			m.appendEvent(sess.VM, sess.Role, events.TypeReady, sess.LastStatus)
			return nil
		}

		if !m.clock.Now().Before(deadline) {
			return ReadinessTimeoutError{
				VM:         sess.VM,
				Role:       sess.Role,
				Waited:     timeout,
				LastStatus: sess.LastStatus,
			}
		}
		m.clock.Sleep(readyPollInterval)
	}
}

// AwaitReady waits for each required session in turn. Optional sessions
// are skipped entirely and left to reach health on their own. Readiness
// timeouts are collected rather than short-circuiting, so every required
// session gets its full wait.
func (m *Manager) AwaitReady(sessions []*Session, timeout time.Duration) []error {
	var errs []error
	for _, sess := range sessions {
		if sess.Optional {
			continue
		}
		if err := m.WaitUntilReady(sess, timeout); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
