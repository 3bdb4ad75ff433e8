package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
[repository]
url = "https://extensions.example.org"
`), "test")
	require.NoError(t, err)

	assert.True(t, cfg.ExtensionManager.AutomaticInstallation)
	assert.Equal(t, "impexp", cfg.ExtensionManager.DistributionImporter)
	assert.Equal(t, 60*time.Second, cfg.Download.Timeout.Duration)
	assert.Equal(t, 5*time.Minute, cfg.Repository.CacheTTL.Duration)
	assert.Equal(t, "ext/local", cfg.Download.Paths[PathLocal])
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse([]byte(`
[extensionmanager]
automatic_installation = false

[repository]
url = "/srv/extensions"
cache_ttl = "0s"

[download]
timeout = "5s"

[download.paths]
Local = "custom/local"

[system.packages]
core = "7.6.0"
`), "test")
	require.NoError(t, err)

	settings, err := cfg.Get(NamespaceExtensionManager)
	require.NoError(t, err)
	assert.False(t, settings.AutomaticInstallation)
	assert.Equal(t, 5*time.Second, cfg.Download.Timeout.Duration)
	assert.Equal(t, time.Duration(0), cfg.Repository.CacheTTL.Duration)
	assert.Equal(t, "7.6.0", cfg.System.Packages["core"])
	assert.Equal(t, "custom/local", cfg.Download.Paths[PathLocal])
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte(`
[repository]
url = "https://extensions.example.org"
mirror = "nope"
`), "test")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigValidation))
	assert.Contains(t, err.Error(), "mirror")
}

func TestParseValidation(t *testing.T) {
	_, err := Parse([]byte(`[extensionmanager]
automatic_installation = true
`), "test")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigValidation))
	assert.Contains(t, err.Error(), "repository.url is required")

	_, err = Parse([]byte(`
[repository]
url = "x"
[download]
timeout = "soon"
`), "test")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrConfigValidation))
}

func TestGetUnknownNamespace(t *testing.T) {
	_, err := Default().Get("frontend")
	assert.Error(t, err)

	_, err = Static{AutomaticInstallation: true}.Get("frontend")
	assert.Error(t, err)
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "extmgr.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[repository]
url = "https://extensions.example.org"
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	local, err := cfg.DownloadPath("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ext", "local"), local)
	assert.Equal(t, filepath.Join(dir, "var", "extensions.toml"), cfg.StateFile())

	_, err = cfg.DownloadPath("Remote")
	assert.Error(t, err)
}
