// Package lock implements durable, host-local exclusive ownership of shared
// paths by VM instances.
//
// Each lock is a directory under <state>/locks/<kind>/ named by the SHA-256
// of the canonical host path, holding the owner's metadata. Directory
// creation is the atomic acquire primitive: two concurrent invocations
// racing for the same path can never both succeed, because only one Mkdir
// wins. Records survive process crashes; a lock whose owner VM is confirmed
// not running is stale and may be reclaimed by any requester.
package lock

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/burrow-dev/burrow/pkg/errors"
	"github.com/burrow-dev/burrow/pkg/vm"
)

// HeldError is returned when the requested path is owned by another live VM.
type HeldError struct {
	Path   string
	HeldBy string
}

func (err HeldError) Error() string {
	return err.FriendlyMessage()
}

// FriendlyMessage implements the friendly error interface.
func (err HeldError) FriendlyMessage() string {
	return fmt.Sprintf("%q is already in use by running VM %q. "+
		"Bring that VM down first, or use a different path.",
		err.Path, err.HeldBy)
}

// NotHeldError reports an operation that requires a held lock being
// attempted without one. This is an ordering violation, not a recoverable
// condition.
type NotHeldError struct {
	Path string
	VM   string
}

func (err NotHeldError) Error() string {
	return fmt.Sprintf("lock on %q is not held by %q", err.Path, err.VM)
}

// Lock is a live ownership record.
type Lock struct {
	Kind       string
	Path       string
	OwnerVM    string
	OwnerToken string
	AcquiredAt time.Time
}

const (
	ownerVMFile    = "owner_vm"
	ownerTokenFile = "owner_token"
	pathFile       = "path"
	acquiredAtFile = "acquired_at"

	acquireAttempts = 3

	// ownerSettleDelay is how long Acquire waits before treating a record
	// with unreadable owner metadata as stale, since a concurrent acquirer
	// may still be mid-write.
	ownerSettleDelay = 100 * time.Millisecond
)

// Store manages the lock records for one state directory. Its Acquire path
// is the single authority for exclusivity across concurrent CLI invocations
// on this host.
type Store struct {
	fs      afero.Fs
	root    string
	backend vm.Backend
	now     func() time.Time
	sleep   func(time.Duration)
}

// NewStore returns a Store persisting under stateDir, consulting backend
// for owner liveness.
func NewStore(fs afero.Fs, stateDir string, backend vm.Backend) *Store {
	return &Store{
		fs:      fs,
		root:    filepath.Join(stateDir, "locks"),
		backend: backend,
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

func canonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

func pathKey(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

func (s *Store) lockDir(kind, canonical string) string {
	return filepath.Join(s.root, kind, pathKey(canonical))
}

// Acquire takes the lock of the given kind on path for vmName. If an
// existing owner's VM is confirmed not running, the stale record is
// reclaimed. A live owner results in a HeldError.
func (s *Store) Acquire(kind, path, vmName string) (Lock, error) {
	canonical := canonicalPath(path)
	kindRoot := filepath.Join(s.root, kind)
	if err := s.fs.MkdirAll(kindRoot, 0755); err != nil {
		return Lock{}, errors.WithContext(err, "create lock root")
	}

	dir := s.lockDir(kind, canonical)
	for attempt := 0; attempt < acquireAttempts; attempt++ {
		// Mkdir is the atomic acquire step: it fails if the record exists.
		if err := s.fs.Mkdir(dir, 0755); err == nil {
			lock, err := s.writeRecord(dir, kind, canonical, vmName)
			if err != nil {
				_ = s.fs.RemoveAll(dir)
				return Lock{}, err
			}
			s.pruneOtherLocks(kind, vmName, canonical)
			return lock, nil
		}

		owner, readErr := s.readOwner(dir)
		if readErr != nil {
			// The record may be mid-write by a concurrent acquirer. Give
			// the writer a moment before declaring it stale.
			s.sleep(ownerSettleDelay)
			owner, readErr = s.readOwner(dir)
		}
		if readErr == nil && owner == vmName {
			// Re-acquire by the current owner: refresh in place.
			lock, err := s.writeRecord(dir, kind, canonical, vmName)
			if err != nil {
				return Lock{}, err
			}
			s.pruneOtherLocks(kind, vmName, canonical)
			return lock, nil
		}

		if readErr == nil && owner != "" {
			running, err := s.backend.IsRunning(owner)
			if err != nil {
				return Lock{}, errors.WithContext(err, "check lock owner liveness")
			}
			if running {
				return Lock{}, HeldError{Path: canonical, HeldBy: owner}
			}
		}

		// Owner metadata is missing or the owner VM is down: the record is
		// stale. Remove it and retry the atomic create.
		log.WithFields(log.Fields{
			"kind":  kind,
			"path":  canonical,
			"owner": owner,
		}).Debug("Reclaiming stale lock")
		if err := s.fs.RemoveAll(dir); err != nil {
			return Lock{}, errors.WithContext(err, "reclaim stale lock")
		}
	}

	return Lock{}, errors.NewFriendlyError(
		"Could not acquire lock on %q after %d attempts. "+
			"Another invocation may be racing for it; try again.",
		canonical, acquireAttempts)
}

// Held reports whether vmName currently owns the lock of the given kind on
// path.
func (s *Store) Held(kind, path, vmName string) bool {
	owner, err := s.readOwner(s.lockDir(kind, canonicalPath(path)))
	return err == nil && owner == vmName
}

// Release removes the lock only if vmName is the recorded owner. Releasing
// a lock held by someone else is a no-op, which protects against stale
// references tearing down a live owner's lock.
func (s *Store) Release(kind, path, vmName string) error {
	dir := s.lockDir(kind, canonicalPath(path))
	owner, err := s.readOwner(dir)
	if err != nil || owner != vmName {
		return nil
	}
	return s.fs.RemoveAll(dir)
}

// PathFor returns the host path locked by vmName for the given kind, or ""
// if it holds none.
func (s *Store) PathFor(kind, vmName string) string {
	entries, err := afero.ReadDir(s.fs, filepath.Join(s.root, kind))
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(s.root, kind, entry.Name())
		owner, err := s.readOwner(dir)
		if err != nil || owner != vmName {
			continue
		}
		path, err := s.readField(dir, pathFile)
		if err != nil {
			continue
		}
		return path
	}
	return ""
}

// Kinds lists every lock kind with at least one record.
func (s *Store) Kinds() []string {
	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		return nil
	}
	var kinds []string
	for _, entry := range entries {
		if entry.IsDir() {
			kinds = append(kinds, entry.Name())
		}
	}
	sort.Strings(kinds)
	return kinds
}

// CleanupForVM removes every lock record owned by vmName, across all kinds.
func (s *Store) CleanupForVM(vmName string) {
	for _, kind := range s.Kinds() {
		kindRoot := filepath.Join(s.root, kind)
		entries, err := afero.ReadDir(s.fs, kindRoot)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			dir := filepath.Join(kindRoot, entry.Name())
			owner, err := s.readOwner(dir)
			if err != nil || owner != vmName {
				continue
			}
			if err := s.fs.RemoveAll(dir); err != nil {
				log.WithError(err).WithField("vm", vmName).
					Warn("Failed to remove lock record")
			}
		}
	}
}

// pruneOtherLocks drops any other record of the same kind owned by vmName.
// A VM syncs exactly one host path per kind, so a leftover record for a
// previous path would otherwise block other VMs forever.
func (s *Store) pruneOtherLocks(kind, vmName, keepCanonical string) {
	kindRoot := filepath.Join(s.root, kind)
	entries, err := afero.ReadDir(s.fs, kindRoot)
	if err != nil {
		return
	}
	keep := pathKey(keepCanonical)
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == keep {
			continue
		}
		dir := filepath.Join(kindRoot, entry.Name())
		owner, err := s.readOwner(dir)
		if err != nil || owner != vmName {
			continue
		}
		_ = s.fs.RemoveAll(dir)
	}
}

func (s *Store) writeRecord(dir, kind, canonical, vmName string) (Lock, error) {
	lock := Lock{
		Kind:       kind,
		Path:       canonical,
		OwnerVM:    vmName,
		OwnerToken: uuid.New().String(),
		AcquiredAt: s.now().UTC(),
	}

	fields := map[string]string{
		ownerVMFile:    lock.OwnerVM,
		ownerTokenFile: lock.OwnerToken,
		pathFile:       lock.Path,
		acquiredAtFile: lock.AcquiredAt.Format(time.RFC3339),
	}
	for name, value := range fields {
		err := afero.WriteFile(s.fs, filepath.Join(dir, name),
			[]byte(value+"\n"), 0644)
		if err != nil {
			return Lock{}, errors.WithContext(err, "write lock metadata")
		}
	}
	return lock, nil
}

func (s *Store) readOwner(dir string) (string, error) {
	return s.readField(dir, ownerVMFile)
}

func (s *Store) readField(dir, name string) (string, error) {
	contents, err := afero.ReadFile(s.fs, filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(contents)), nil
}
