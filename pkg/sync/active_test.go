package sync

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryMarkAndClear(t *testing.T) {
	fs := afero.NewMemMapFs()
	registry := NewRegistry(fs, "/state")

	assert.Empty(t, registry.List())

	require.NoError(t, registry.Mark("burrow-92"))
	require.NoError(t, registry.Mark("burrow-91"))
	require.NoError(t, registry.Mark("burrow-92"))
	assert.Equal(t, []string{"burrow-91", "burrow-92"}, registry.List())

	require.NoError(t, registry.Clear("burrow-92"))
	assert.Equal(t, []string{"burrow-91"}, registry.List())

	require.NoError(t, registry.Clear("burrow-90"))
	assert.Equal(t, []string{"burrow-91"}, registry.List())
}

func TestRegistryToleratesBadPayloads(t *testing.T) {
	tests := []struct {
		name     string
		contents string
		exp      []string
	}{
		{
			name:     "not json",
			contents: "not-json",
		},
		{
			name:     "wrong top-level shape",
			contents: `[]`,
		},
		{
			name:     "vms not a list",
			contents: `{"vms": "bad"}`,
		},
		{
			name:     "mixed entries filtered",
			contents: `{"vms": ["burrow-92", "", 123, "burrow-92"]}`,
			exp:      []string{"burrow-92"},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			registry := NewRegistry(fs, "/state")
			require.NoError(t, afero.WriteFile(fs,
				"/state/sync/active_vms.json", []byte(test.contents), 0644))

			assert.Equal(t, test.exp, registry.List())

			// A corrupt registry must still accept new marks.
			require.NoError(t, registry.Mark("burrow-95"))
			assert.Contains(t, registry.List(), "burrow-95")
		})
	}
}
