// Package status classifies the sync health of the environment. Everything
// here is read-only: status never acquires locks and never mutates engine
// or VM state, so it is safe to run concurrently with any lifecycle
// command.
package status

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/buger/goterm"

	"github.com/burrow-dev/burrow/pkg/engine"
	"github.com/burrow-dev/burrow/pkg/errors"
	burrowsync "github.com/burrow-dev/burrow/pkg/sync"
	"github.com/burrow-dev/burrow/pkg/vm"
)

// Classification is the single health answer for a VM's sync.
type Classification string

const (
	ClassificationActive   Classification = "active"
	ClassificationInactive Classification = "inactive"
	ClassificationDegraded Classification = "degraded"
)

// ReasonNoSessions is the literal reason attached to the inactive
// classification. Tooling greps for it; do not reword.
const ReasonNoSessions = "no active sessions found"

// ReasonEngineUnavailable is reported instead when the mutagen CLI itself
// is missing from the host, so a broken install doesn't read like a clean
// "nothing is syncing".
const ReasonEngineUnavailable = "mutagen CLI unavailable on host"

// SessionStatus is one session's contribution to a VM's health.
type SessionStatus struct {
	Name   string `json:"name"`
	Role   string `json:"role"`
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

// Report is the full status answer for one VM.
type Report struct {
	VM             string          `json:"vm"`
	Running        bool            `json:"running"`
	Classification Classification  `json:"classification"`
	Reason         string          `json:"reason,omitempty"`
	Sessions       []SessionStatus `json:"sessions,omitempty"`
	Mounts         []MountStatus   `json:"mounts,omitempty"`
}

// Classify maps a VM's liveness and engine session list into one
// classification. It is a pure function of its inputs: same inputs, same
// answer, no side effects.
func Classify(running bool, sessions []engine.Session) (Classification, string) {
	if len(sessions) == 0 {
		return ClassificationInactive, ReasonNoSessions
	}

	if !running {
		// Sessions left behind by a stopped VM are a problem to surface,
		// not a healthy state.
		return ClassificationDegraded, "vm not running"
	}

	for _, session := range sessions {
		if session.State != engine.StateActive {
			reason := session.StatusText
			if reason == "" {
				reason = string(session.State)
			}
			return ClassificationDegraded, reason
		}
	}
	return ClassificationActive, ""
}

// Aggregator answers status queries by combining live VM state with live
// engine state.
type Aggregator struct {
	backend vm.Backend
	engine  engine.Engine
}

// NewAggregator wires an Aggregator to its collaborators.
func NewAggregator(backend vm.Backend, eng engine.Engine) *Aggregator {
	return &Aggregator{backend: backend, engine: eng}
}

// VM reports the status of a single VM.
func (a *Aggregator) VM(vmName string) (Report, error) {
	running, err := a.backend.IsRunning(vmName)
	if err != nil {
		return Report{}, errors.WithContext(err, "check vm state")
	}

	report := Report{VM: vmName, Running: running}
	if !a.engine.Available() {
		report.Classification = ClassificationInactive
		report.Reason = ReasonEngineUnavailable
		return report, nil
	}

	sessions, err := a.engine.ListSessions(burrowsync.Label(vmName))
	if err != nil {
		report.Classification = ClassificationDegraded
		report.Reason = err.Error()
		return report, nil
	}

	report.Classification, report.Reason = Classify(running, sessions)
	for _, session := range sessions {
		status := SessionStatus{
			Name:  session.Name,
			Role:  string(burrowsync.RoleFromSessionName(session.Name, vmName)),
			State: string(session.State),
		}
		if session.State != engine.StateActive {
			status.Reason = session.StatusText
		}
		report.Sessions = append(report.Sessions, status)
	}
	return report, nil
}

// Environment reports the status of every VM the backend knows about.
func (a *Aggregator) Environment() ([]Report, error) {
	infos, err := a.backend.List()
	if err != nil {
		return nil, errors.WithContext(err, "list vms")
	}

	var reports []Report
	for _, info := range infos {
		if !strings.HasPrefix(info.Name, vm.NamePrefix) {
			continue
		}
		report, err := a.VM(info.Name)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].VM < reports[j].VM
	})
	return reports, nil
}

// Render writes the human-facing view of the reports. The sync health
// lines are deliberately plain text so they remain greppable; only the VM
// state marker is colored.
func Render(out io.Writer, reports []Report) {
	if len(reports) == 0 {
		fmt.Fprintln(out, "No VMs found.")
		return
	}

	for _, report := range reports {
		vmState := goterm.Color("stopped", goterm.RED)
		if report.Running {
			vmState = goterm.Color("running", goterm.GREEN)
		}
		fmt.Fprintf(out, "%s: %s\n", report.VM, vmState)

		switch report.Classification {
		case ClassificationActive:
			fmt.Fprintln(out, "  mutagen sync: active")
		case ClassificationInactive:
			fmt.Fprintf(out, "  mutagen sync: inactive (%s)\n", report.Reason)
		case ClassificationDegraded:
			fmt.Fprintf(out, "  mutagen sync: degraded (%s)\n", report.Reason)
		}

		for _, session := range report.Sessions {
			line := fmt.Sprintf("    %s: %s", session.Role, session.State)
			if session.Reason != "" {
				line += fmt.Sprintf(" (%s)", session.Reason)
			}
			fmt.Fprintln(out, line)
		}

		for _, mount := range report.Mounts {
			fmt.Fprintf(out, "    mount %s: %s\n", mount.Path, mount.State)
		}
	}
}
