// Package watcher observes VM liveness in the background and tears down the
// VM's sync sessions once the VM has been gone long enough to rule out a
// transient hiccup. It is the only component allowed to trigger a teardown
// the user did not ask for.
package watcher

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/burrow-dev/burrow/pkg/vm"
)

// Phase is where a watcher is in its lifecycle.
type Phase string

const (
	PhaseWatching  Phase = "watching"
	PhaseTriggered Phase = "triggered"
	PhaseStopped   Phase = "stopped"
)

// MinThreshold is the lowest accepted debounce threshold. A single
// not-running observation must never trigger a teardown.
const MinThreshold = 2

// DefaultThreshold is the number of consecutive not-running observations
// required before teardown fires.
const DefaultThreshold = 3

// Result reports how a watcher run ended.
type Result struct {
	Phase Phase

	// Triggered is true when the watcher itself tore sync down, as
	// opposed to being cancelled by an explicit down or delete.
	Triggered bool

	// Err is the teardown error, when the triggered path failed.
	Err error
}

// Watcher polls one VM's liveness and invokes teardown after threshold
// consecutive not-running observations. Cancellation is cooperative: Cancel
// flags the watcher and the next tick exits without triggering.
type Watcher struct {
	vm        string
	backend   vm.Backend
	teardown  func(vmName string) error
	threshold int
	interval  time.Duration
	clock     clockwork.Clock

	stop     chan struct{}
	stopOnce sync.Once
	done     chan Result

	mu    sync.Mutex
	phase Phase
}

// New returns a watcher for vmName. teardown is called exactly once if the
// debounce threshold is reached; it is expected to terminate the VM's sync
// sessions and release its locks. Thresholds below MinThreshold are raised
// to it.
func New(vmName string, backend vm.Backend, teardown func(vmName string) error,
	threshold int, interval time.Duration) *Watcher {

	if threshold < MinThreshold {
		threshold = MinThreshold
	}
	return &Watcher{
		vm:        vmName,
		backend:   backend,
		teardown:  teardown,
		threshold: threshold,
		interval:  interval,
		clock:     clockwork.NewRealClock(),
		stop:      make(chan struct{}),
		done:      make(chan Result, 1),
		phase:     PhaseWatching,
	}
}

// Run executes the poll loop until the watcher triggers or is cancelled.
// It blocks; callers run it in a goroutine and collect the outcome from
// Result.
func (w *Watcher) Run() {
	notRunning := 0
	for {
		select {
		case <-w.stop:
			w.finish(Result{Phase: PhaseStopped})
			return
		default:
		}

		running, err := w.backend.IsRunning(w.vm)
		switch {
		case err != nil:
			// Liveness is unknown, which is not evidence the VM is
			// down. The counter is left untouched.
			log.WithError(err).WithField("vm", w.vm).
				Debug("VM liveness check failed")
		case running:
			notRunning = 0
		default:
			notRunning++
			log.WithField("vm", w.vm).
				Debugf("VM not running (%d/%d)", notRunning, w.threshold)
			if notRunning >= w.threshold {
				w.trigger()
				return
			}
		}

		select {
		case <-w.stop:
			w.finish(Result{Phase: PhaseStopped})
			return
		case <-w.clock.After(w.interval):
		}
	}
}

func (w *Watcher) trigger() {
	w.setPhase(PhaseTriggered)
	log.WithField("vm", w.vm).Info("VM is gone; tearing down sync")
	err := w.teardown(w.vm)
	if err != nil {
		log.WithError(err).WithField("vm", w.vm).
			Warn("Watcher-triggered teardown failed")
	}
	w.finish(Result{Phase: PhaseStopped, Triggered: true, Err: err})
}

// Cancel asks the watcher to stop without triggering. Safe to call more
// than once and safe to race with the trigger path: whichever the loop
// observes first wins, so an explicit down never causes a second teardown.
func (w *Watcher) Cancel() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// Result yields the run's outcome once Run returns.
func (w *Watcher) Result() <-chan Result {
	return w.done
}

// Phase reports where the watcher currently is.
func (w *Watcher) Phase() Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase
}

func (w *Watcher) setPhase(phase Phase) {
	w.mu.Lock()
	w.phase = phase
	w.mu.Unlock()
}

func (w *Watcher) finish(result Result) {
	w.setPhase(PhaseStopped)
	w.done <- result
}
