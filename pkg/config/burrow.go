package config

import (
	"os"
	"strconv"
	"time"

	homedir "github.com/mitchellh/go-homedir"

	"github.com/burrow-dev/burrow/pkg/errors"
)

const (
	// ConfigPath is the default path to the Burrow config.
	ConfigPath = "~/.burrow.yaml"

	// DefaultStateDir is where lock records, watcher records, and the sync
	// event log are persisted.
	DefaultStateDir = "~/.burrow/state"

	// InitialConfigVersion is the first version of the Burrow config.
	// Config files that do not specify a version will default to this
	// version.
	InitialConfigVersion = "v1alpha1"

	// SupportedConfigVersion is the supported version of the Burrow config
	// of the current Burrow binary.
	SupportedConfigVersion = "v1alpha1"

	// DefaultReadyTimeoutSeconds bounds how long `up` waits for a new sync
	// session to become healthy before continuing degraded.
	DefaultReadyTimeoutSeconds = 60

	// DefaultWatcherPollSeconds is the interval between VM liveness polls.
	DefaultWatcherPollSeconds = 5

	// DefaultWatcherThreshold is how many consecutive not-running polls are
	// required before the watcher tears down a VM's sync.
	DefaultWatcherThreshold = 3

	readyTimeoutKey     = "BURROW_SYNC_READY_TIMEOUT"
	watcherPollKey      = "BURROW_WATCH_POLL_SECONDS"
	watcherThresholdKey = "BURROW_WATCH_THRESHOLD"
)

// Config contains the host-side configuration for managing guest VMs and
// their sync sessions.
type Config struct {
	Version string `json:"version,omitempty"`

	// StateDir is the per-host state directory. Lock records, watcher
	// records, the active-VM registry, and the sync event log all live
	// underneath it.
	StateDir string `json:"stateDir,omitempty"`

	// SourcePath and PayloadPath are the host directories synced into every
	// VM. SignalPayloadPath is optional; when empty, the
	// signal-cli-payload role is skipped.
	SourcePath        string `json:"sourcePath"`
	PayloadPath       string `json:"payloadPath"`
	SignalPayloadPath string `json:"signalPayloadPath,omitempty"`

	// GuestUser and GuestPassword are the credentials used for the sync
	// endpoint and the optional guest probe.
	GuestUser     string `json:"guestUser,omitempty"`
	GuestPassword string `json:"guestPassword,omitempty"`

	// IgnorePaths are synced-source directories the engine should skip, in
	// addition to VCS directories.
	IgnorePaths []string `json:"ignorePaths,omitempty"`

	ReadyTimeoutSeconds int `json:"readyTimeoutSeconds,omitempty"`
	WatcherPollSeconds  int `json:"watcherPollSeconds,omitempty"`
	WatcherThreshold    int `json:"watcherThreshold,omitempty"`
}

func (c Config) getVersion() string {
	return c.Version
}

// ReadyTimeout returns the readiness wait budget.
func (c Config) ReadyTimeout() time.Duration {
	return time.Duration(c.ReadyTimeoutSeconds) * time.Second
}

// WatcherPoll returns the interval between watcher liveness polls.
func (c Config) WatcherPoll() time.Duration {
	return time.Duration(c.WatcherPollSeconds) * time.Second
}

// homedirExpand will be overridden in mock tests
var homedirExpand = homedir.Expand

// Parse attempts to parse the Config stored in the default path and applies
// defaults and environment overrides.
func Parse() (Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return Config{}, errors.WithContext(err, "expand config path")
	}

	config := Config{Version: InitialConfigVersion}
	if err := parseConfig(path, &config, SupportedConfigVersion); err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			return Config{}, errors.NewFriendlyError("The Burrow config "+
				"file doesn't exist at %q. Create it with at least "+
				"`sourcePath` and `payloadPath` set.", path)
		}
		return Config{}, errors.WithContext(err, "parse")
	}

	if config.SourcePath == "" {
		return Config{}, errors.MissingFieldError{Field: "sourcePath"}
	}
	if config.PayloadPath == "" {
		return Config{}, errors.MissingFieldError{Field: "payloadPath"}
	}

	for _, field := range []*string{
		&config.StateDir, &config.SourcePath, &config.PayloadPath,
		&config.SignalPayloadPath,
	} {
		if *field == "" {
			continue
		}
		*field, err = homedirExpand(*field)
		if err != nil {
			return Config{}, errors.WithContext(err, "expand path")
		}
	}

	applyDefaults(&config)
	applyEnvOverrides(&config)
	return config, nil
}

// GetConfigPath returns the path to the user's global Burrow configuration.
// This path is expanded, so it can be directly passed to file operations.
func GetConfigPath() (string, error) {
	return homedirExpand(ConfigPath)
}

func applyDefaults(config *Config) {
	if config.StateDir == "" {
		// The default was validated at init, so expansion can't fail here.
		config.StateDir, _ = homedirExpand(DefaultStateDir)
	}
	if config.GuestUser == "" {
		config.GuestUser = "admin"
	}
	if config.IgnorePaths == nil {
		config.IgnorePaths = []string{"node_modules", "dist"}
	}
	if config.ReadyTimeoutSeconds <= 0 {
		config.ReadyTimeoutSeconds = DefaultReadyTimeoutSeconds
	}
	if config.WatcherPollSeconds <= 0 {
		config.WatcherPollSeconds = DefaultWatcherPollSeconds
	}
	if config.WatcherThreshold < 2 {
		config.WatcherThreshold = DefaultWatcherThreshold
	}
}

func applyEnvOverrides(config *Config) {
	if v, ok := envInt(readyTimeoutKey); ok {
		config.ReadyTimeoutSeconds = v
	}
	if v, ok := envInt(watcherPollKey); ok {
		config.WatcherPollSeconds = v
	}
	if v, ok := envInt(watcherThresholdKey); ok && v >= 2 {
		config.WatcherThreshold = v
	}
}

func envInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
