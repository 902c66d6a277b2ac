package declarative

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_InstallListRemove(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "controllers")
	store := NewStore(dir)
	assert.Equal(t, dir, store.Dir())

	stored, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, stored)

	def, err := store.Install([]byte(widgetDefinition), "/tmp/src/my-widgets.yaml")
	require.NoError(t, err)
	assert.Equal(t, "widgets", def.Name)
	data, err := os.ReadFile(filepath.Join(dir, "widgets.yaml"))
	require.NoError(t, err)
	assert.Equal(t, widgetDefinition, string(data))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: broken\n"), 0o644))

	stored, err = store.List()
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "broken", stored[0].Name())
	assert.Nil(t, stored[0].Definition)
	assert.Error(t, stored[0].Err)
	assert.Equal(t, "widgets", stored[1].Name())
	require.NotNil(t, stored[1].Definition)
	assert.NoError(t, stored[1].Err)
	assert.Equal(t, filepath.Join(dir, "triggers"), stored[1].Definition.FileTrigger.Dir)

	_, err = store.Install([]byte(widgetDefinition), "/tmp/src/my-widgets.yaml")
	require.NoError(t, err, "reinstalling a controller replaces its file")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"broken.yaml", "widgets.yaml"}, names)

	require.NoError(t, store.Remove("widgets"))
	assert.NoFileExists(t, filepath.Join(dir, "widgets.yaml"))

	err = store.Remove("widgets")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestStore_InstallRejects(t *testing.T) {
	tests := []struct {
		name        string
		existing    map[string]string
		data        string
		errContains string
	}{
		{
			name:        "invalid definition",
			data:        "name: widgets\n",
			errContains: "primary",
		},
		{
			name:        "unparseable definition",
			data:        "name: [widgets\n",
			errContains: "my-widgets.yaml",
		},
		{
			name:        "same controller in another file",
			existing:    map[string]string{"legacy.yml": widgetDefinition},
			data:        widgetDefinition,
			errContains: `controller "widgets" is already installed in legacy.yml`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "controllers")
			if len(tt.existing) > 0 {
				require.NoError(t, os.MkdirAll(dir, 0o755))
				for name, content := range tt.existing {
					require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
				}
			}

			_, err := NewStore(dir).Install([]byte(tt.data), "/tmp/src/my-widgets.yaml")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
			assert.NoFileExists(t, filepath.Join(dir, "widgets.yaml"))
			if len(tt.existing) == 0 {
				assert.NoDirExists(t, dir)
			}
		})
	}
}

func TestStore_RemoveRejectsPaths(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(root, "widgets.yaml")
	require.NoError(t, os.WriteFile(outside, []byte(widgetDefinition), 0o644))

	err := NewStore(filepath.Join(root, "controllers")).Remove("../widgets")
	require.Error(t, err)
	assert.FileExists(t, outside)
}
