package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow(t *testing.T) time.Time {
	t.Helper()
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	orig := now
	now = func() time.Time { return ts }
	t.Cleanup(func() { now = orig })
	return ts
}

func TestOpenMissingFile(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "var", "extensions.toml"), map[string]string{"core": "7.6.0"})
	require.NoError(t, err)

	assert.Empty(t, s.Keys())
	v, ok := s.SystemVersion("core")
	assert.True(t, ok)
	assert.Equal(t, "7.6.0", v)
	assert.True(t, s.IsActive("core"))
	assert.False(t, s.IsActive("news"))
}

func TestRecordActivatePersist(t *testing.T) {
	ts := fixedNow(t)
	path := filepath.Join(t.TempDir(), "var", "extensions.toml")

	s, err := Open(path, nil)
	require.NoError(t, err)

	require.NoError(t, s.Record("news", Entry{Version: "1.0.0", Path: "/ext/local/news"}))
	assert.False(t, s.IsActive("news"))
	require.NoError(t, s.Activate("news"))
	assert.True(t, s.IsActive("news"))

	// A new download keeps the active flag
	require.NoError(t, s.Record("news", Entry{Version: "2.0.0", Path: "/ext/local/news"}))

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	entry, ok := reopened.Get("news")
	require.True(t, ok)
	assert.Equal(t, "2.0.0", entry.Version)
	assert.True(t, entry.Active)
	assert.True(t, ts.Equal(entry.InstalledAt))

	v, ok := reopened.InstalledVersion("news")
	assert.True(t, ok)
	assert.Equal(t, "2.0.0", v)
}

func TestActivateUnknown(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "extensions.toml"), nil)
	require.NoError(t, err)
	assert.Error(t, s.Activate("ghost"))
}

func TestUpdateMergesConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extensions.toml")

	a, err := Open(path, nil)
	require.NoError(t, err)
	b, err := Open(path, nil)
	require.NoError(t, err)

	require.NoError(t, a.Record("news", Entry{Version: "1.0.0"}))
	require.NoError(t, b.Record("blog", Entry{Version: "3.0.0"}))

	assert.Equal(t, []string{"blog", "news"}, b.Keys())
}

func TestOpenInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extensions.toml")
	require.NoError(t, os.WriteFile(path, []byte("[extensions\n"), 0644))

	_, err := Open(path, nil)
	assert.Error(t, err)
}
