// Package tart implements the vm.Backend interface on top of the tart
// hypervisor CLI.
package tart

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/burrow-dev/burrow/pkg/errors"
	"github.com/burrow-dev/burrow/pkg/vm"
)

// Error represents a failure reported while driving the tart CLI.
type Error struct {
	Op     string
	Detail string
}

func (err Error) Error() string {
	return fmt.Sprintf("tart %s: %s", err.Op, err.Detail)
}

// runTart is overridden in unit tests.
var runTart = func(args ...string) (stdout, stderr string, err error) {
	cmd := exec.Command("tart", args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err = cmd.Run()
	return outBuf.String(), errBuf.String(), err
}

func run(op string, args ...string) (string, error) {
	stdout, stderr, err := runTart(args...)
	if err != nil {
		if execErr, ok := err.(*exec.Error); ok && execErr.Err == exec.ErrNotFound {
			return "", errors.NewFriendlyError("Command not found: tart. " +
				"Install tart and make sure it's on your PATH.")
		}
		detail := strings.TrimSpace(stderr)
		if detail == "" {
			detail = err.Error()
		}
		return "", Error{Op: op, Detail: detail}
	}
	return stdout, nil
}

// Backend drives a local tart installation.
type Backend struct{}

// New returns a tart-backed vm.Backend.
func New() Backend {
	return Backend{}
}

// listedVM matches the objects printed by `tart list --format json`. Older
// tart releases report a Running boolean, newer ones a State string, so we
// accept both.
type listedVM struct {
	Name    string `json:"Name"`
	State   string `json:"State"`
	Running bool   `json:"Running"`
}

func (l listedVM) running() bool {
	return l.Running || l.State == "running"
}

// List returns every VM tart knows about.
func (b Backend) List() ([]vm.Info, error) {
	stdout, err := run("list", "list", "--format", "json")
	if err != nil {
		return nil, err
	}

	var listed []listedVM
	if err := json.Unmarshal([]byte(stdout), &listed); err != nil {
		return nil, errors.WithContext(err, "parse tart list output")
	}

	infos := make([]vm.Info, 0, len(listed))
	for _, entry := range listed {
		if entry.Name == "" {
			continue
		}
		infos = append(infos, vm.Info{Name: entry.Name, Running: entry.running()})
	}
	return infos, nil
}

// Exists reports whether the named VM is defined.
func (b Backend) Exists(name string) (bool, error) {
	infos, err := b.List()
	if err != nil {
		return false, err
	}
	for _, info := range infos {
		if info.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// IsRunning reports whether the named VM is running.
func (b Backend) IsRunning(name string) (bool, error) {
	infos, err := b.List()
	if err != nil {
		return false, err
	}
	for _, info := range infos {
		if info.Name == name {
			return info.Running, nil
		}
	}
	return false, nil
}

// IPAddress resolves the guest address of a running VM.
func (b Backend) IPAddress(name string) (string, error) {
	running, err := b.IsRunning(name)
	if err != nil {
		return "", err
	}
	if !running {
		return "", Error{Op: "ip", Detail: fmt.Sprintf("VM %q is not running", name)}
	}

	stdout, err := run("ip", "ip", name)
	if err != nil {
		return "", err
	}

	addr := strings.TrimSpace(stdout)
	if addr == "" {
		return "", Error{Op: "ip", Detail: fmt.Sprintf("no address reported for %q", name)}
	}
	return addr, nil
}

// Stop shuts the named VM down.
func (b Backend) Stop(name string) error {
	log.WithField("vm", name).Debug("Stopping VM")
	_, err := run("stop", "stop", name)
	return err
}

// Delete removes the named VM.
func (b Backend) Delete(name string) error {
	log.WithField("vm", name).Debug("Deleting VM")
	_, err := run("delete", "delete", name)
	return err
}
