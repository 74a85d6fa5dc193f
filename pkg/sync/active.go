package sync

import (
	"encoding/json"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"github.com/burrow-dev/burrow/pkg/errors"
)

// Registry records which VMs currently have sync activated. It exists so
// that a later invocation (or the reconcile pass) can find sync state left
// behind by a crashed one.
type Registry struct {
	fs   afero.Fs
	path string
}

// NewRegistry returns a Registry persisting under stateDir.
func NewRegistry(fs afero.Fs, stateDir string) *Registry {
	return &Registry{
		fs:   fs,
		path: filepath.Join(stateDir, "sync", "active_vms.json"),
	}
}

type registryPayload struct {
	VMs []interface{} `json:"vms"`
}

// List returns the recorded VM names, sorted. Corrupt or unexpected
// payloads are treated as empty rather than failing the caller.
func (r *Registry) List() []string {
	contents, err := afero.ReadFile(r.fs, r.path)
	if err != nil {
		return nil
	}

	var payload registryPayload
	if err := json.Unmarshal(contents, &payload); err != nil {
		return nil
	}

	seen := map[string]bool{}
	var vms []string
	for _, entry := range payload.VMs {
		name, ok := entry.(string)
		if !ok || name == "" || seen[name] {
			continue
		}
		seen[name] = true
		vms = append(vms, name)
	}
	sort.Strings(vms)
	return vms
}

// Mark records vmName as having active sync.
func (r *Registry) Mark(vmName string) error {
	vms := r.List()
	for _, existing := range vms {
		if existing == vmName {
			return nil
		}
	}
	return r.write(append(vms, vmName))
}

// Clear removes vmName from the registry.
func (r *Registry) Clear(vmName string) error {
	var vms []string
	for _, existing := range r.List() {
		if existing != vmName {
			vms = append(vms, existing)
		}
	}
	return r.write(vms)
}

func (r *Registry) write(vms []string) error {
	sort.Strings(vms)
	entries := make([]interface{}, len(vms))
	for i, name := range vms {
		entries[i] = name
	}

	contents, err := json.Marshal(registryPayload{VMs: entries})
	if err != nil {
		return errors.WithContext(err, "marshal registry")
	}
	if err := r.fs.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return errors.WithContext(err, "create registry dir")
	}
	if err := afero.WriteFile(r.fs, r.path, contents, 0644); err != nil {
		return errors.WithContext(err, "write registry")
	}
	return nil
}
