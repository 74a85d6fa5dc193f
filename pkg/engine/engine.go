// Package engine defines Burrow's view of the external sync engine. The
// engine owns the transfer protocol; Burrow only creates, lists, and
// terminates sessions, and translates the engine's reported status into a
// small fixed state vocabulary.
package engine

// State is Burrow's classification of a sync session's health.
type State string

const (
	StatePending    State = "pending"
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateDegraded   State = "degraded"
	StateTerminated State = "terminated"
)

// Session is one engine-side sync session as reported by the engine. The
// engine's state is authoritative; a Session is a single poll result, never
// cached ground truth.
type Session struct {
	// ID is the identifier assigned by the engine.
	ID string

	// Name is the session name Burrow assigned at creation.
	Name string

	// StatusText is the raw status reported by the engine.
	StatusText string

	// State is StatusText translated into Burrow's vocabulary.
	State State
}

// CreateSpec describes a session to create.
type CreateSpec struct {
	Name      string
	Label     string
	HostPath  string
	GuestURL  string
	IgnoreVCS bool
	Ignore    []string
}

// Engine is the interface to the external sync engine.
type Engine interface {
	// Available reports whether the engine can be driven at all.
	Available() bool

	// CreateSession starts a new bidirectional session and returns the
	// engine-assigned identifier.
	CreateSession(spec CreateSpec) (string, error)

	// TerminateSession ends the session with the given identifier.
	TerminateSession(id string) error

	// ListSessions returns every session carrying the given label.
	ListSessions(label string) ([]Session, error)

	// Flush forces a full synchronization cycle for the labeled sessions.
	Flush(label string) error
}
