package status

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

// MountStatus is the probed state of one guest sync path.
type MountStatus struct {
	Path string `json:"path"`

	// State is "present", "missing", or "unavailable" when the probe
	// could not reach the guest.
	State string `json:"state"`
}

const (
	MountPresent     = "present"
	MountMissing     = "missing"
	MountUnavailable = "unavailable"

	probeTimeout = 5 * time.Second
)

// Mocked in tests.
var runGuestCommand = func(addr string, config *ssh.ClientConfig,
	command string) ([]byte, error) {

	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, err
	}
	defer session.Close()
	return session.CombinedOutput(command)
}

// Prober checks sync paths inside a guest over SSH.
type Prober struct {
	user     string
	password string
}

// NewProber returns a Prober authenticating with the given guest
// credentials.
func NewProber(user, password string) *Prober {
	return &Prober{user: user, password: password}
}

// Probe reports whether each guest path exists. A probe is advisory: any
// failure to reach the guest marks the paths unavailable rather than
// failing the status query.
func (p *Prober) Probe(ip string, paths []string) []MountStatus {
	if len(paths) == 0 {
		return nil
	}

	config := &ssh.ClientConfig{
		User: p.user,
		Auth: []ssh.AuthMethod{ssh.Password(p.password)},
		// Local dev VMs get fresh host keys on every recreate; pinning
		// them would make recreate unusable.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         probeTimeout,
	}

	var checks []string
	for _, path := range paths {
		checks = append(checks, fmt.Sprintf(
			`if [ -d %q ]; then echo %s present; else echo %s missing; fi`,
			path, path, path))
	}

	output, err := runGuestCommand(ip+":22", config, strings.Join(checks, "; "))
	if err != nil {
		log.WithError(err).WithField("guest", ip).Debug("Guest probe failed")
		return unavailable(paths)
	}
	return parseMountStatuses(paths, string(output))
}

// parseMountStatuses matches probe output lines of the form
// "<path> present|missing" back to the requested paths. Paths the output
// never mentions, and lines that do not parse, degrade to unavailable.
func parseMountStatuses(paths []string, output string) []MountStatus {
	states := map[string]string{}
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		switch fields[1] {
		case MountPresent, MountMissing:
			states[fields[0]] = fields[1]
		}
	}

	var statuses []MountStatus
	for _, path := range paths {
		state, ok := states[path]
		if !ok {
			state = MountUnavailable
		}
		statuses = append(statuses, MountStatus{Path: path, State: state})
	}
	return statuses
}

func unavailable(paths []string) []MountStatus {
	var statuses []MountStatus
	for _, path := range paths {
		statuses = append(statuses, MountStatus{Path: path, State: MountUnavailable})
	}
	return statuses
}
