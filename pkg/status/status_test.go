package status

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burrow-dev/burrow/pkg/engine"
	"github.com/burrow-dev/burrow/pkg/vm"
)

type fakeBackend struct {
	vms     []vm.Info
	listErr error
}

func (f fakeBackend) List() ([]vm.Info, error) { return f.vms, f.listErr }
func (f fakeBackend) Exists(string) (bool, error) {
	return true, nil
}
func (f fakeBackend) IsRunning(name string) (bool, error) {
	for _, info := range f.vms {
		if info.Name == name {
			return info.Running, nil
		}
	}
	return false, nil
}
func (f fakeBackend) IPAddress(string) (string, error) { return "", nil }
func (f fakeBackend) Stop(string) error                { return nil }
func (f fakeBackend) Delete(string) error              { return nil }

type fakeEngine struct {
	available bool
	sessions  map[string][]engine.Session
	listErr   error

	// Mutating calls are recorded so tests can prove status never makes
	// any.
	created    []engine.CreateSpec
	terminated []string
	flushed    []string
}

func (f *fakeEngine) Available() bool { return f.available }
func (f *fakeEngine) CreateSession(spec engine.CreateSpec) (string, error) {
	f.created = append(f.created, spec)
	return "", nil
}
func (f *fakeEngine) TerminateSession(id string) error {
	f.terminated = append(f.terminated, id)
	return nil
}
func (f *fakeEngine) ListSessions(label string) ([]engine.Session, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.sessions[label], nil
}
func (f *fakeEngine) Flush(label string) error {
	f.flushed = append(f.flushed, label)
	return nil
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		running   bool
		sessions  []engine.Session
		exp       Classification
		expReason string
	}{
		{
			name:      "no sessions",
			running:   true,
			exp:       ClassificationInactive,
			expReason: ReasonNoSessions,
		},
		{
			name:    "all active",
			running: true,
			sessions: []engine.Session{
				{State: engine.StateActive},
				{State: engine.StateActive},
			},
			exp: ClassificationActive,
		},
		{
			name:    "one unhealthy",
			running: true,
			sessions: []engine.Session{
				{State: engine.StateActive},
				{State: engine.StateDegraded, StatusText: "Halted due to error"},
			},
			exp:       ClassificationDegraded,
			expReason: "Halted due to error",
		},
		{
			name:    "unhealthy without status text",
			running: true,
			sessions: []engine.Session{
				{State: engine.StateConnecting},
			},
			exp:       ClassificationDegraded,
			expReason: "connecting",
		},
		{
			name:    "sessions for a stopped vm",
			running: false,
			sessions: []engine.Session{
				{State: engine.StateActive},
			},
			exp:       ClassificationDegraded,
			expReason: "vm not running",
		},
		{
			name:      "stopped vm without sessions",
			running:   false,
			exp:       ClassificationInactive,
			expReason: ReasonNoSessions,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			classification, reason := Classify(test.running, test.sessions)
			assert.Equal(t, test.exp, classification)
			assert.Equal(t, test.expReason, reason)

			// Classification is pure. A second call with the same inputs
			// answers identically.
			again, _ := Classify(test.running, test.sessions)
			assert.Equal(t, classification, again)
		})
	}
}

func TestAggregatorVM(t *testing.T) {
	backend := fakeBackend{vms: []vm.Info{
		{Name: "burrow-91", Running: true},
		{Name: "burrow-92", Running: true},
	}}
	eng := &fakeEngine{available: true, sessions: map[string][]engine.Session{
		"burrow.vm=burrow-91": {
			{ID: "sync_1", Name: "burrow-91-source",
				StatusText: "Watching for changes", State: engine.StateActive},
		},
	}}

	aggregator := NewAggregator(backend, eng)

	report, err := aggregator.VM("burrow-91")
	require.NoError(t, err)
	assert.Equal(t, ClassificationActive, report.Classification)
	require.Len(t, report.Sessions, 1)
	assert.Equal(t, "source", report.Sessions[0].Role)

	report, err = aggregator.VM("burrow-92")
	require.NoError(t, err)
	assert.Equal(t, ClassificationInactive, report.Classification)
	assert.Equal(t, ReasonNoSessions, report.Reason)
}

func TestAggregatorEngineUnreachableIsDegraded(t *testing.T) {
	backend := fakeBackend{vms: []vm.Info{{Name: "burrow-91", Running: true}}}
	eng := &fakeEngine{available: true, listErr: assert.AnError}

	report, err := NewAggregator(backend, eng).VM("burrow-91")
	require.NoError(t, err)
	assert.Equal(t, ClassificationDegraded, report.Classification)
	assert.Equal(t, assert.AnError.Error(), report.Reason)
}

func TestAggregatorEnvironment(t *testing.T) {
	backend := fakeBackend{vms: []vm.Info{
		{Name: "burrow-92", Running: false},
		{Name: "burrow-91", Running: true},
		{Name: "unrelated-vm", Running: true},
	}}
	eng := &fakeEngine{available: true}

	reports, err := NewAggregator(backend, eng).Environment()
	require.NoError(t, err)
	require.Len(t, reports, 2, "only burrow VMs are reported")
	assert.Equal(t, "burrow-91", reports[0].VM)
	assert.Equal(t, "burrow-92", reports[1].VM)
}

func TestStatusIsReadOnly(t *testing.T) {
	// A VM recorded as syncing but observed not running is exactly what a
	// reconcile pass would tear down. Status must only report it: a single
	// not-running observation may be a transient hypervisor hiccup, and
	// only the watcher's debounce is allowed to act on liveness.
	backend := fakeBackend{vms: []vm.Info{{Name: "burrow-92", Running: false}}}
	eng := &fakeEngine{available: true, sessions: map[string][]engine.Session{
		"burrow.vm=burrow-92": {
			{ID: "sync_1", Name: "burrow-92-source", State: engine.StateActive},
		},
	}}

	reports, err := NewAggregator(backend, eng).Environment()
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, ClassificationDegraded, reports[0].Classification)
	assert.Equal(t, "vm not running", reports[0].Reason)

	assert.Empty(t, eng.terminated, "status must never terminate sessions")
	assert.Empty(t, eng.created)
	assert.Empty(t, eng.flushed)
}

func TestAggregatorEngineMissing(t *testing.T) {
	backend := fakeBackend{vms: []vm.Info{{Name: "burrow-91", Running: true}}}
	eng := &fakeEngine{available: false}

	report, err := NewAggregator(backend, eng).VM("burrow-91")
	require.NoError(t, err)
	assert.Equal(t, ClassificationInactive, report.Classification)
	assert.Equal(t, ReasonEngineUnavailable, report.Reason,
		"a missing mutagen CLI is a distinct signal from having no sessions")
}

func TestRenderContractLines(t *testing.T) {
	var out bytes.Buffer
	Render(&out, []Report{
		{VM: "burrow-91", Running: true, Classification: ClassificationActive,
			Sessions: []SessionStatus{{Role: "source", State: "active"}}},
		{VM: "burrow-92", Running: false, Classification: ClassificationInactive,
			Reason: ReasonNoSessions},
		{VM: "burrow-93", Running: true, Classification: ClassificationDegraded,
			Reason: "Halted due to error"},
	})

	rendered := out.String()
	assert.Contains(t, rendered, "mutagen sync: active")
	assert.Contains(t, rendered, "mutagen sync: inactive (no active sessions found)")
	assert.Contains(t, rendered, "mutagen sync: degraded (Halted due to error)")
	assert.Contains(t, rendered, "    source: active")
}

func TestRenderEmpty(t *testing.T) {
	var out bytes.Buffer
	Render(&out, nil)
	assert.Equal(t, "No VMs found.\n", out.String())
}
