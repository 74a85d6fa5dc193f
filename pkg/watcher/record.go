package watcher

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/burrow-dev/burrow/pkg/errors"
)

// Record is the on-disk note that a watcher process exists for a VM.
type Record struct {
	VM          string `json:"vm"`
	PID         int    `json:"pid"`
	PollSeconds int    `json:"poll_seconds"`
	StartedAt   string `json:"started_at"`
}

const (
	stopGrace     = 5 * time.Second
	stopPollEvery = 100 * time.Millisecond
)

// Mocked in tests.
var (
	executablePath = os.Executable

	pidRunning = func(pid int) bool {
		err := syscall.Kill(pid, 0)
		return err == nil || err == syscall.EPERM
	}

	signalPID = func(pid int, sig syscall.Signal) error {
		return syscall.Kill(pid, sig)
	}

	startProcess = func(executable string, args []string) (int, error) {
		cmd := exec.Command(executable, args...)
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
		if err := cmd.Start(); err != nil {
			return 0, err
		}

		pid := cmd.Process.Pid
		// The watcher outlives this invocation. Release it so it is not
		// reparented as our zombie child.
		if err := cmd.Process.Release(); err != nil {
			log.WithError(err).Debug("Failed to release watcher process")
		}
		return pid, nil
	}
)

// Supervisor starts, stops, and prunes detached watcher processes, tracking
// them through pid records under <state>/watchers/.
type Supervisor struct {
	fs    afero.Fs
	dir   string
	clock clockwork.Clock
	now   func() time.Time
}

// NewSupervisor returns a Supervisor persisting records under stateDir.
func NewSupervisor(fs afero.Fs, stateDir string) *Supervisor {
	return &Supervisor{
		fs:    fs,
		dir:   filepath.Join(stateDir, "watchers"),
		clock: clockwork.NewRealClock(),
		now:   time.Now,
	}
}

// Start launches a detached watcher process for vmName, reusing an already
// live one. poll must be positive.
func (s *Supervisor) Start(vmName string, poll time.Duration) error {
	pollSeconds := int(poll / time.Second)
	if pollSeconds <= 0 {
		return errors.New("watcher poll interval must be at least one second")
	}

	if record, err := s.read(vmName); err == nil && pidRunning(record.PID) {
		log.WithFields(log.Fields{"vm": vmName, "pid": record.PID}).
			Debug("Watcher already running")
		return nil
	}

	executable, err := executablePath()
	if err != nil {
		return errors.WithContext(err, "locate executable")
	}

	pid, err := startProcess(executable, []string{"watch", "--vm", vmName})
	if err != nil {
		return errors.WithContext(err, "start watcher process")
	}

	record := Record{
		VM:          vmName,
		PID:         pid,
		PollSeconds: pollSeconds,
		StartedAt:   s.now().UTC().Format(time.RFC3339),
	}
	if err := s.write(record); err != nil {
		return errors.WithContext(err, "record watcher")
	}

	log.WithFields(log.Fields{"vm": vmName, "pid": pid}).
		Debug("Started watcher process")
	return nil
}

// Stop terminates vmName's watcher process, if any, and removes its record.
// The process gets SIGTERM and a grace window to exit before SIGKILL.
func (s *Supervisor) Stop(vmName string) error {
	record, err := s.read(vmName)
	if err != nil {
		// No record means nothing to stop.
		return nil
	}
	defer func() {
		if err := s.fs.Remove(s.pathFor(vmName)); err != nil {
			log.WithError(err).WithField("vm", vmName).
				Debug("Failed to remove watcher record")
		}
	}()

	if !pidRunning(record.PID) {
		return nil
	}

	if err := signalPID(record.PID, syscall.SIGTERM); err != nil {
		return errors.WithContext(err, "signal watcher")
	}

	deadline := s.clock.Now().Add(stopGrace)
	for s.clock.Now().Before(deadline) {
		if !pidRunning(record.PID) {
			return nil
		}
		s.clock.Sleep(stopPollEvery)
	}

	log.WithFields(log.Fields{"vm": vmName, "pid": record.PID}).
		Warn("Watcher ignored SIGTERM; killing")
	if err := signalPID(record.PID, syscall.SIGKILL); err != nil {
		return errors.WithContext(err, "kill watcher")
	}
	return nil
}

// Reconcile removes records whose process is gone and records that cannot
// be parsed. It returns the VMs that still have a live watcher.
func (s *Supervisor) Reconcile() []string {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil
	}

	var live []string
	for _, info := range infos {
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".json") {
			continue
		}
		vmName := strings.TrimSuffix(info.Name(), ".json")

		record, err := s.read(vmName)
		if err != nil || record.PID <= 0 || !pidRunning(record.PID) {
			log.WithField("vm", vmName).Debug("Pruning stale watcher record")
			if err := s.fs.Remove(s.pathFor(vmName)); err != nil {
				log.WithError(err).WithField("vm", vmName).
					Debug("Failed to prune watcher record")
			}
			continue
		}
		live = append(live, vmName)
	}
	return live
}

func (s *Supervisor) pathFor(vmName string) string {
	return filepath.Join(s.dir, vmName+".json")
}

func (s *Supervisor) read(vmName string) (Record, error) {
	contents, err := afero.ReadFile(s.fs, s.pathFor(vmName))
	if err != nil {
		return Record{}, err
	}

	var record Record
	if err := json.Unmarshal(contents, &record); err != nil {
		return Record{}, errors.WithContext(err, "parse watcher record")
	}
	return record, nil
}

func (s *Supervisor) write(record Record) error {
	if err := s.fs.MkdirAll(s.dir, 0755); err != nil {
		return err
	}

	contents, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return afero.WriteFile(s.fs, s.pathFor(record.VM), contents, 0644)
}
