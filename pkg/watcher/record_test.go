package watcher

import (
	"syscall"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockProcessControl(t *testing.T) {
	oldExecutable := executablePath
	oldPidRunning := pidRunning
	oldSignal := signalPID
	oldStart := startProcess
	t.Cleanup(func() {
		executablePath = oldExecutable
		pidRunning = oldPidRunning
		signalPID = oldSignal
		startProcess = oldStart
	})
}

func TestSupervisorStartWritesRecord(t *testing.T) {
	mockProcessControl(t)
	executablePath = func() (string, error) { return "/usr/local/bin/burrow", nil }
	pidRunning = func(int) bool { return false }

	var startedArgs []string
	startProcess = func(executable string, args []string) (int, error) {
		assert.Equal(t, "/usr/local/bin/burrow", executable)
		startedArgs = args
		return 4242, nil
	}

	fs := afero.NewMemMapFs()
	s := NewSupervisor(fs, "/state")
	s.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, s.Start("burrow-91", 5*time.Second))
	assert.Equal(t, []string{"watch", "--vm", "burrow-91"}, startedArgs)

	record, err := s.read("burrow-91")
	require.NoError(t, err)
	assert.Equal(t, Record{
		VM:          "burrow-91",
		PID:         4242,
		PollSeconds: 5,
		StartedAt:   "2024-05-01T12:00:00Z",
	}, record)
}

func TestSupervisorStartReusesLiveWatcher(t *testing.T) {
	mockProcessControl(t)
	pidRunning = func(pid int) bool { return pid == 4242 }
	startProcess = func(string, []string) (int, error) {
		t.Fatal("a live watcher must not be restarted")
		return 0, nil
	}

	fs := afero.NewMemMapFs()
	s := NewSupervisor(fs, "/state")
	require.NoError(t, s.write(Record{VM: "burrow-91", PID: 4242, PollSeconds: 5}))

	require.NoError(t, s.Start("burrow-91", 5*time.Second))
}

func TestSupervisorStartRejectsBadPoll(t *testing.T) {
	s := NewSupervisor(afero.NewMemMapFs(), "/state")
	assert.Error(t, s.Start("burrow-91", 0))
}

func TestSupervisorStopTermThenRemoves(t *testing.T) {
	mockProcessControl(t)

	alive := true
	pidRunning = func(int) bool { return alive }

	var signals []syscall.Signal
	signalPID = func(pid int, sig syscall.Signal) error {
		assert.Equal(t, 4242, pid)
		signals = append(signals, sig)
		alive = false
		return nil
	}

	fs := afero.NewMemMapFs()
	s := NewSupervisor(fs, "/state")
	require.NoError(t, s.write(Record{VM: "burrow-91", PID: 4242}))

	require.NoError(t, s.Stop("burrow-91"))
	assert.Equal(t, []syscall.Signal{syscall.SIGTERM}, signals)

	_, err := s.read("burrow-91")
	assert.Error(t, err, "the record must be removed")
}

func TestSupervisorStopEscalatesToKill(t *testing.T) {
	mockProcessControl(t)
	pidRunning = func(int) bool { return true }

	var signals []syscall.Signal
	signalPID = func(pid int, sig syscall.Signal) error {
		signals = append(signals, sig)
		return nil
	}

	fs := afero.NewMemMapFs()
	s := NewSupervisor(fs, "/state")
	clock := clockwork.NewFakeClock()
	s.clock = clock
	require.NoError(t, s.write(Record{VM: "burrow-91", PID: 4242}))

	done := make(chan error, 1)
	go func() { done <- s.Stop("burrow-91") }()

	clock.BlockUntil(1)
	clock.Advance(stopGrace)

	require.NoError(t, <-done)
	assert.Equal(t, []syscall.Signal{syscall.SIGTERM, syscall.SIGKILL}, signals)
}

func TestSupervisorStopWithoutRecordIsNoop(t *testing.T) {
	mockProcessControl(t)
	signalPID = func(int, syscall.Signal) error {
		t.Fatal("nothing should be signalled")
		return nil
	}

	s := NewSupervisor(afero.NewMemMapFs(), "/state")
	require.NoError(t, s.Stop("burrow-91"))
}

func TestSupervisorReconcilePrunesDeadRecords(t *testing.T) {
	mockProcessControl(t)
	pidRunning = func(pid int) bool { return pid == 100 }

	fs := afero.NewMemMapFs()
	s := NewSupervisor(fs, "/state")
	require.NoError(t, s.write(Record{VM: "burrow-91", PID: 100}))
	require.NoError(t, s.write(Record{VM: "burrow-92", PID: 200}))
	require.NoError(t, afero.WriteFile(fs,
		"/state/watchers/burrow-93.json", []byte("not-json"), 0644))

	assert.Equal(t, []string{"burrow-91"}, s.Reconcile())

	_, err := s.read("burrow-92")
	assert.Error(t, err)
	_, err = s.read("burrow-93")
	assert.Error(t, err)
}
