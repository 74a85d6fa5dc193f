// Package mutagen drives the mutagen CLI as Burrow's sync engine. Sessions
// are tagged with a per-VM label so that every other operation (list,
// flush, terminate) can address one VM's sessions without trusting local
// state.
package mutagen

import (
	"bytes"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	goversion "github.com/hashicorp/go-version"
	log "github.com/sirupsen/logrus"

	"github.com/burrow-dev/burrow/pkg/engine"
	"github.com/burrow-dev/burrow/pkg/errors"
)

// minVersion is the oldest mutagen release whose `sync list` output and
// label selectors behave the way our translation layer expects.
const minVersion = "0.16.0"

// Error represents a failure reported while driving the mutagen CLI.
type Error struct {
	Detail string
}

func (err Error) Error() string {
	return fmt.Sprintf("mutagen: %s", err.Detail)
}

var (
	// Overridden in unit tests.
	runMutagen = func(args ...string) (stdout, stderr string, err error) {
		cmd := exec.Command("mutagen", args...)
		var outBuf, errBuf bytes.Buffer
		cmd.Stdout = &outBuf
		cmd.Stderr = &errBuf
		err = cmd.Run()
		return outBuf.String(), errBuf.String(), err
	}
	lookPath = exec.LookPath
)

var sessionIDPattern = regexp.MustCompile(`sync_[0-9a-zA-Z]+`)

// Engine implements engine.Engine over the mutagen CLI.
type Engine struct{}

// New returns a mutagen-backed engine.
func New() Engine {
	return Engine{}
}

// Available reports whether the mutagen CLI is installed.
func (Engine) Available() bool {
	_, err := lookPath("mutagen")
	return err == nil
}

// CheckVersion verifies the installed mutagen is recent enough to honor the
// flags and output formats we depend on.
func (e Engine) CheckVersion() error {
	stdout, err := run("version")
	if err != nil {
		return err
	}

	raw := strings.TrimSpace(stdout)
	installed, err := goversion.NewVersion(raw)
	if err != nil {
		return errors.WithContext(err, fmt.Sprintf("parse mutagen version %q", raw))
	}

	min := goversion.Must(goversion.NewVersion(minVersion))
	if installed.LessThan(min) {
		return errors.NewFriendlyError("mutagen %s is too old. "+
			"Burrow requires at least %s; please upgrade mutagen.",
			installed, min)
	}
	return nil
}

// CreateSession starts a bidirectional two-way-resolved session.
func (e Engine) CreateSession(spec engine.CreateSpec) (string, error) {
	args := []string{
		"sync", "create",
		"--name", spec.Name,
		"--label", spec.Label,
		"--mode", "two-way-resolved",
	}
	if spec.IgnoreVCS {
		args = append(args, "--ignore-vcs")
	}
	for _, ignored := range spec.Ignore {
		args = append(args, "--ignore", ignored)
	}
	args = append(args, spec.HostPath, spec.GuestURL)

	stdout, err := run(args...)
	if err != nil {
		return "", err
	}

	id := sessionIDPattern.FindString(stdout)
	if id == "" {
		// Older mutagen releases print nothing on success. The session is
		// still addressable through its label.
		log.WithField("name", spec.Name).
			Debug("mutagen did not report a session identifier")
	}
	return id, nil
}

// TerminateSession ends one session by identifier.
func (e Engine) TerminateSession(id string) error {
	_, err := run("sync", "terminate", id)
	return err
}

// ListSessions returns the labeled sessions, with their status text
// translated into Burrow states.
func (e Engine) ListSessions(label string) ([]engine.Session, error) {
	stdout, err := run("sync", "list", "--label-selector", label)
	if err != nil {
		return nil, err
	}
	return parseSessionList(stdout), nil
}

// Flush forces a synchronization cycle for the labeled sessions.
func (e Engine) Flush(label string) error {
	_, err := run("sync", "flush", "--label-selector", label)
	return err
}

func run(args ...string) (string, error) {
	stdout, stderr, err := runMutagen(args...)
	if err != nil {
		if execErr, ok := err.(*exec.Error); ok && execErr.Err == exec.ErrNotFound {
			return "", Error{Detail: "Command not found: mutagen"}
		}
		detail := strings.TrimSpace(stderr)
		if detail == "" {
			detail = err.Error()
		}
		return "", Error{Detail: fmt.Sprintf("`mutagen %s` failed: %s",
			strings.Join(args, " "), detail)}
	}
	return stdout, nil
}
