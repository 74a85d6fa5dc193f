package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/ssh"
)

func TestProbeParsesGuestOutput(t *testing.T) {
	oldRun := runGuestCommand
	defer func() { runGuestCommand = oldRun }()

	runGuestCommand = func(addr string, config *ssh.ClientConfig,
		command string) ([]byte, error) {

		assert.Equal(t, "192.168.64.10:22", addr)
		assert.Equal(t, "admin", config.User)
		return []byte("/Users/Shared/source present\n" +
			"/Users/Shared/payload missing\n"), nil
	}

	statuses := NewProber("admin", "secret").Probe("192.168.64.10", []string{
		"/Users/Shared/source",
		"/Users/Shared/payload",
		"/Users/Shared/extra",
	})
	assert.Equal(t, []MountStatus{
		{Path: "/Users/Shared/source", State: MountPresent},
		{Path: "/Users/Shared/payload", State: MountMissing},
		{Path: "/Users/Shared/extra", State: MountUnavailable},
	}, statuses)
}

func TestProbeFailureIsUnavailable(t *testing.T) {
	oldRun := runGuestCommand
	defer func() { runGuestCommand = oldRun }()

	runGuestCommand = func(string, *ssh.ClientConfig, string) ([]byte, error) {
		return nil, assert.AnError
	}

	statuses := NewProber("admin", "secret").Probe("192.168.64.10",
		[]string{"/Users/Shared/source"})
	assert.Equal(t, []MountStatus{
		{Path: "/Users/Shared/source", State: MountUnavailable},
	}, statuses)
}

func TestParseMountStatusesToleratesGarbage(t *testing.T) {
	statuses := parseMountStatuses([]string{"/a", "/b"},
		"warning: something\n/a present\nnot a parseable line at all\n")
	assert.Equal(t, []MountStatus{
		{Path: "/a", State: MountPresent},
		{Path: "/b", State: MountUnavailable},
	}, statuses)
}

func TestProbeNoPaths(t *testing.T) {
	assert.Nil(t, NewProber("admin", "secret").Probe("192.168.64.10", nil))
}
