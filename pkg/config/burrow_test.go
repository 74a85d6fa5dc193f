package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burrow-dev/burrow/pkg/errors"
)

func TestParse(t *testing.T) {
	out := ".burrow.yaml"
	homedirExpand = func(path string) (string, error) {
		switch path {
		case ConfigPath:
			return out, nil
		case DefaultStateDir:
			return "/home/dev/.burrow/state", nil
		}
		return path, nil
	}

	fs = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, out, []byte(`
sourcePath: /home/dev/openclaw
payloadPath: /home/dev/.openclaw
`), 0644))

	config, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "/home/dev/openclaw", config.SourcePath)
	assert.Equal(t, "/home/dev/.burrow/state", config.StateDir)
	assert.Equal(t, "admin", config.GuestUser)
	assert.Equal(t, []string{"node_modules", "dist"}, config.IgnorePaths)
	assert.Equal(t, DefaultReadyTimeoutSeconds, config.ReadyTimeoutSeconds)
	assert.Equal(t, DefaultWatcherPollSeconds, config.WatcherPollSeconds)
	assert.Equal(t, DefaultWatcherThreshold, config.WatcherThreshold)
}

func TestParseMissingRequiredFields(t *testing.T) {
	out := ".burrow.yaml"
	homedirExpand = func(path string) (string, error) { return out, nil }

	fs = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, out,
		[]byte("payloadPath: /home/dev/.openclaw\n"), 0644))

	_, err := Parse()
	assert.Equal(t, errors.MissingFieldError{Field: "sourcePath"}, err)
}

func TestParseMissingConfigFile(t *testing.T) {
	out := ".burrow.yaml"
	homedirExpand = func(path string) (string, error) { return out, nil }

	fs = afero.NewMemMapFs()

	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, errors.GetPrintableMessage(err),
		"config file doesn't exist")
}

func TestParseEnvOverrides(t *testing.T) {
	out := ".burrow.yaml"
	homedirExpand = func(path string) (string, error) { return out, nil }

	fs = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, out, []byte(`
stateDir: /state
sourcePath: /src
payloadPath: /payload
`), 0644))

	t.Setenv("BURROW_SYNC_READY_TIMEOUT", "120")
	t.Setenv("BURROW_WATCH_POLL_SECONDS", "2")
	t.Setenv("BURROW_WATCH_THRESHOLD", "1") // below the floor, ignored

	config, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, 120, config.ReadyTimeoutSeconds)
	assert.Equal(t, 2, config.WatcherPollSeconds)
	assert.Equal(t, DefaultWatcherThreshold, config.WatcherThreshold)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	out := ".burrow.yaml"
	homedirExpand = func(path string) (string, error) { return out, nil }

	fs = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, out, []byte(`
sourcePath: /src
payloadPath: /payload
extra: field
`), 0644))

	_, err := Parse()
	require.Error(t, err)
}

func TestParseRejectsIncompatibleVersion(t *testing.T) {
	out := ".burrow.yaml"
	homedirExpand = func(path string) (string, error) { return out, nil }

	fs = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, out, []byte(`
version: v9
sourcePath: /src
payloadPath: /payload
`), 0644))

	_, err := Parse()
	assert.Equal(t, errors.WithContext(incompatibleVersionError{
		path:   out,
		exp:    SupportedConfigVersion,
		actual: "v9",
	}, "parse"), err)
}
