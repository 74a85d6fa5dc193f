// Package vm defines the interface to the virtualization backend that owns
// guest VM lifecycle. The backend is the sole source of truth for VM
// liveness; no other component may guess at whether a VM is running.
package vm

import "fmt"

// NamePrefix is shared by every VM instance managed by Burrow.
const NamePrefix = "burrow-"

// Info describes one guest VM known to the backend.
type Info struct {
	Name    string
	Running bool
}

// Backend manages guest VM processes.
type Backend interface {
	// List returns every VM known to the backend, managed or not.
	List() ([]Info, error)

	// Exists reports whether a VM with the given name is defined.
	Exists(name string) (bool, error)

	// IsRunning reports whether the named VM is currently running.
	IsRunning(name string) (bool, error)

	// IPAddress returns the guest's address. The VM must be running.
	IPAddress(name string) (string, error)

	// Stop shuts the named VM down.
	Stop(name string) error

	// Delete removes the named VM entirely.
	Delete(name string) error
}

// Name returns the canonical VM name for a VM number.
func Name(number int) string {
	return fmt.Sprintf("%s%d", NamePrefix, number)
}
