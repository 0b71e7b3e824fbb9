package dirty

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestHashContent(t *testing.T) {
	h1 := HashContent([]byte("x = 1\n"))
	h2 := HashContent([]byte("x = 1\n"))
	h3 := HashContent([]byte("x = 2\n"))

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
}

func TestTracker_Observe(t *testing.T) {
	tests := []struct {
		name    string
		steps   []string
		changed []bool
	}{
		{"first sight", []string{"a"}, []bool{true}},
		{"unchanged", []string{"a", "a"}, []bool{true, false}},
		{"edited", []string{"a", "b"}, []bool{true, true}},
		{"reverted", []string{"a", "b", "a"}, []bool{true, true, true}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tracker := New()
			for i, content := range tc.steps {
				assert.Equal(t, tc.changed[i], tracker.Observe("mod.py", []byte(content)), "step %d", i)
			}
		})
	}
}

func TestTracker_DirtyLifecycle(t *testing.T) {
	tracker := New()
	assert.False(t, tracker.IsDirty("a.py"))

	tracker.Observe("a.py", []byte("x = 1"))
	tracker.Observe("b.py", []byte("y = 1"))
	assert.Equal(t, 2, tracker.Count())
	assert.Equal(t, []string{normalize("a.py"), normalize("b.py")}, tracker.DirtyFiles())

	tracker.MarkClean("a.py")
	assert.False(t, tracker.IsDirty("a.py"))
	assert.True(t, tracker.IsDirty("b.py"))

	// Unchanged content keeps the file clean.
	tracker.Observe("a.py", []byte("x = 1"))
	assert.False(t, tracker.IsDirty("a.py"))

	tracker.MarkClean()
	assert.Equal(t, 0, tracker.Count())
	assert.Equal(t, 2, tracker.TotalCount())

	tracker.Remove("a.py")
	assert.Equal(t, 1, tracker.TotalCount())
	_, ok := tracker.Hash("a.py")
	assert.False(t, ok)

	tracker.Clear()
	assert.Equal(t, 0, tracker.TotalCount())
}

func TestTracker_CheckAndMark(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "mod.py", "x = 1\n")

	tracker := New()
	changed, err := tracker.CheckAndMark(path)
	require.NoError(t, err)
	assert.True(t, changed)

	hash, ok := tracker.Hash(path)
	require.True(t, ok)
	assert.Equal(t, HashContent([]byte("x = 1\n")), hash)

	changed, err = tracker.CheckAndMark(path)
	require.NoError(t, err)
	assert.False(t, changed)

	writeFile(t, dir, "mod.py", "x = 2\n")
	changed, err = tracker.CheckAndMark(path)
	require.NoError(t, err)
	assert.True(t, changed)

	_, err = tracker.CheckAndMark(filepath.Join(dir, "missing.py"))
	assert.Error(t, err)
}

func TestTracker_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	stateDir := filepath.Join(dir, "state")

	tracker := New(WithStateDir(stateDir), WithStateFile("h.json"))
	tracker.Observe("a.py", []byte("a"))
	tracker.Observe("b.py", []byte("b"))
	tracker.MarkClean("b.py")
	require.NoError(t, tracker.Save())
	assert.FileExists(t, filepath.Join(stateDir, "h.json"))

	loaded := New(WithStateDir(stateDir), WithStateFile("h.json"))
	require.NoError(t, loaded.Load())
	assert.Equal(t, 2, loaded.TotalCount())
	assert.True(t, loaded.IsDirty("a.py"))
	assert.False(t, loaded.IsDirty("b.py"))
	assert.False(t, loaded.Observe("b.py", []byte("b")))
}

func TestTracker_LoadMissing(t *testing.T) {
	tracker := New(WithStateDir(filepath.Join(t.TempDir(), "none")))
	require.NoError(t, tracker.Load())
	assert.Equal(t, 0, tracker.TotalCount())
}

func TestTracker_SaveToLoadFrom(t *testing.T) {
	tracker := New()
	tracker.Observe("mod.py", []byte("pass"))

	var buf bytes.Buffer
	require.NoError(t, tracker.SaveTo(&buf))

	other := New()
	require.NoError(t, other.LoadFrom(&buf))
	assert.True(t, other.IsDirty("mod.py"))

	assert.Error(t, other.LoadFrom(bytes.NewBufferString("{")))
}
