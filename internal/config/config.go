// Package config loads the extension manager configuration from TOML.
package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Namespace names understood by Provider.Get
const (
	NamespaceExtensionManager = "extensionmanager"
)

// Download path names accepted by install operations
const (
	PathLocal  = "Local"
	PathGlobal = "Global"
	PathSystem = "System"

	DefaultDownloadPath = PathLocal
)

// Duration is a time.Duration decoded from strings such as "30s"
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the full extmgr configuration file
type Config struct {
	ExtensionManager ExtensionManagerSettings `toml:"extensionmanager"`
	Repository       RepositoryConfig         `toml:"repository"`
	Download         DownloadConfig           `toml:"download"`
	State            StateConfig              `toml:"state"`
	System           SystemConfig             `toml:"system"`

	// root resolves relative paths; it is the directory of the config file
	root string
}

// ExtensionManagerSettings is the "extensionmanager" namespace
type ExtensionManagerSettings struct {
	AutomaticInstallation bool   `toml:"automatic_installation"`
	DistributionImporter  string `toml:"distribution_importer"`
}

// RepositoryConfig describes where the extension index lives
type RepositoryConfig struct {
	URL      string   `toml:"url"`
	Keyring  string   `toml:"keyring"`
	CacheTTL Duration `toml:"cache_ttl"`
	Timeout  Duration `toml:"timeout"`
}

// DownloadConfig controls archive downloads
type DownloadConfig struct {
	Timeout Duration          `toml:"timeout"`
	Paths   map[string]string `toml:"paths"`
}

// StateConfig locates the installed-extension state file and lock files
type StateConfig struct {
	File    string `toml:"file"`
	LockDir string `toml:"lock_dir"`
}

// SystemConfig lists packages provided by the running system
type SystemConfig struct {
	Packages map[string]string `toml:"packages"`
}

// Default returns the configuration used when no file overrides a value
func Default() *Config {
	return &Config{
		ExtensionManager: ExtensionManagerSettings{
			AutomaticInstallation: true,
			DistributionImporter:  "impexp",
		},
		Repository: RepositoryConfig{
			CacheTTL: Duration{5 * time.Minute},
			Timeout:  Duration{10 * time.Second},
		},
		Download: DownloadConfig{
			Timeout: Duration{60 * time.Second},
			Paths: map[string]string{
				PathLocal:  "ext/local",
				PathGlobal: "ext/global",
				PathSystem: "ext/system",
			},
		},
		State: StateConfig{
			File:    "var/extensions.toml",
			LockDir: "var/lock",
		},
		System: SystemConfig{
			Packages: map[string]string{},
		},
	}
}

// Validate checks required fields and value ranges
func (c *Config) Validate(source string) error {
	if strings.TrimSpace(c.Repository.URL) == "" {
		return fmt.Errorf("%s: repository.url is required", source)
	}
	if c.Download.Timeout.Duration <= 0 {
		return fmt.Errorf("%s: download.timeout must be greater than zero", source)
	}
	if c.Repository.Timeout.Duration <= 0 {
		return fmt.Errorf("%s: repository.timeout must be greater than zero", source)
	}
	if c.Repository.CacheTTL.Duration < 0 {
		return fmt.Errorf("%s: repository.cache_ttl must not be negative", source)
	}
	if _, ok := c.Download.Paths[DefaultDownloadPath]; !ok {
		return fmt.Errorf("%s: download.paths.%s is required", source, DefaultDownloadPath)
	}
	if c.State.File == "" || c.State.LockDir == "" {
		return fmt.Errorf("%s: state.file and state.lock_dir are required", source)
	}
	return nil
}

// Get returns the settings of a namespace. It implements Provider.
func (c *Config) Get(namespace string) (ExtensionManagerSettings, error) {
	if namespace != NamespaceExtensionManager {
		return ExtensionManagerSettings{}, fmt.Errorf("unknown configuration namespace %q", namespace)
	}
	return c.ExtensionManager, nil
}

// DownloadPath resolves a download path name such as "Local" to a directory
func (c *Config) DownloadPath(name string) (string, error) {
	if name == "" {
		name = DefaultDownloadPath
	}
	dir, ok := c.Download.Paths[name]
	if !ok {
		names := make([]string, 0, len(c.Download.Paths))
		for n := range c.Download.Paths {
			names = append(names, n)
		}
		sort.Strings(names)
		return "", fmt.Errorf("unknown download path %q (allowed: %s)", name, strings.Join(names, ", "))
	}
	return c.Resolve(dir), nil
}

// Resolve makes a relative path relative to the config file directory
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.root == "" {
		return path
	}
	return filepath.Join(c.root, path)
}

// StateFile returns the resolved state file path
func (c *Config) StateFile() string {
	return c.Resolve(c.State.File)
}

// LockDir returns the resolved lock directory
func (c *Config) LockDir() string {
	return c.Resolve(c.State.LockDir)
}

// Provider gives read-only access to namespaced settings
type Provider interface {
	Get(namespace string) (ExtensionManagerSettings, error)
}

// Static is a Provider returning fixed settings
type Static ExtensionManagerSettings

// Get implements Provider
func (s Static) Get(namespace string) (ExtensionManagerSettings, error) {
	if namespace != NamespaceExtensionManager {
		return ExtensionManagerSettings{}, fmt.Errorf("unknown configuration namespace %q", namespace)
	}
	return ExtensionManagerSettings(s), nil
}
