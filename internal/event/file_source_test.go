package event

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"converge/internal/resource"
)

func TestFileSourceParsePath(t *testing.T) {
	dir := t.TempDir()
	src, err := NewFileSource(FileOptions{Dir: dir, Kind: "Widget", DefaultNamespace: "default"})
	require.NoError(t, err)

	tests := []struct {
		path string
		want resource.ID
		ok   bool
	}{
		{filepath.Join(dir, "a.yaml"), resource.New("Widget", "default", "a"), true},
		{filepath.Join(dir, "team", "b.yml"), resource.New("Widget", "team", "b"), true},
		{filepath.Join(dir, "x", "y", "c.yaml"), resource.ID{}, false},
		{filepath.Join(dir, ".hidden.yaml"), resource.ID{}, false},
	}
	for _, tt := range tests {
		got, ok := src.parseFilePath(tt.path)
		assert.Equal(t, tt.ok, ok, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}
}

func TestFileSourceDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	src, err := NewFileSource(FileOptions{
		Dir:              dir,
		Kind:             "Widget",
		DefaultNamespace: "default",
		Debounce:         50 * time.Millisecond,
	})
	require.NoError(t, err)

	rec := &collector{}
	require.NoError(t, src.Start(context.Background(), rec))
	defer src.Stop()

	path := filepath.Join(dir, "a.yaml")
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("size: 1\n"), 0o644))
	}

	require.Eventually(t, func() bool { return rec.len() >= 1 }, waitFor, tick)
	time.Sleep(150 * time.Millisecond)
	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, resource.New("Widget", "default", "a"), events[0].ID)
	assert.Equal(t, OperationCreate, events[0].Operation)
	assert.True(t, src.Health().Healthy)
}

func TestMergeOperations(t *testing.T) {
	assert.Equal(t, OperationCreate, mergeOperations(OperationCreate, OperationUpdate))
	assert.Equal(t, OperationDelete, mergeOperations(OperationCreate, OperationDelete))
	assert.Equal(t, OperationDelete, mergeOperations(OperationUpdate, OperationDelete))
	assert.Equal(t, OperationUpdate, mergeOperations(OperationUpdate, OperationUpdate))
}
