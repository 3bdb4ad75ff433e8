package manager

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ralt/extmgr/internal/lock"
	"github.com/ralt/extmgr/internal/models"
	"github.com/ralt/extmgr/internal/repository"
	"github.com/ralt/extmgr/internal/resolver"
	"github.com/ralt/extmgr/internal/state"
	"github.com/ralt/extmgr/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	failures map[string]error
	calls    []string
	delay    time.Duration
}

func (f *fakeFetcher) Fetch(ctx context.Context, pkg models.Package) ([]byte, error) {
	f.calls = append(f.calls, pkg.ID())
	if err, ok := f.failures[pkg.Key]; ok {
		return nil, err
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	content := "Extension: " + pkg.Key + "\nVersion: " + pkg.Version + "\n"
	if err := tw.WriteHeader(&tar.Header{Name: pkg.Key + "/" + utils.ControlFileName, Mode: 0644, Size: int64(len(content)), Typeflag: tar.TypeReg}); err != nil {
		return nil, err
	}
	if _, err := tw.Write([]byte(content)); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type fixture struct {
	service *Service
	fetcher *fakeFetcher
	store   *state.Store
	root    string
}

func newFixture(t *testing.T, installed map[string]string, packages ...models.Package) *fixture {
	t.Helper()
	root := t.TempDir()

	store, err := state.Open(filepath.Join(root, "var", "extensions.toml"), map[string]string{"core": "7.6.0"})
	require.NoError(t, err)
	for key, version := range installed {
		require.NoError(t, store.Record(key, state.Entry{Version: version}))
	}

	idx, err := repository.NewIndex(packages)
	require.NoError(t, err)

	fetcher := &fakeFetcher{failures: map[string]error{}}
	service := New(Config{
		Planner: resolver.New(idx, store),
		Fetcher: fetcher,
		Store:   store,
		Locker:  lock.NewLocker(filepath.Join(root, "var", "lock")),
		Paths: func(name string) (string, error) {
			if name != "Local" {
				return "", errors.New("unknown download path " + name)
			}
			return filepath.Join(root, "ext", "local"), nil
		},
	})
	return &fixture{service: service, fetcher: fetcher, store: store, root: root}
}

func requires(t *testing.T, raw ...string) []models.Dependency {
	t.Helper()
	var out []models.Dependency
	for _, r := range raw {
		d, err := models.ParseDependency(models.DependencyRequires, r)
		require.NoError(t, err)
		out = append(out, d)
	}
	return out
}

func TestInstallExtensionWithDependencies(t *testing.T) {
	shop := models.Package{Key: "shop", Version: "1.0.0", Dependencies: requires(t, "cart (>= 1.0)", "core (>= 7.0)")}
	cart := models.Package{Key: "cart", Version: "1.2.0"}
	f := newFixture(t, map[string]string{"cart": "0.5.0"}, shop, cart)

	report, err := f.service.InstallExtension(context.Background(), shop, InstallOptions{DownloadPath: "Local", AutomaticInstallation: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"cart@1.2.0", "shop@1.0.0"}, f.fetcher.calls)
	assert.Equal(t, []string{"shop"}, report.Downloaded)
	assert.Equal(t, []string{"cart"}, report.Updated)
	assert.Equal(t, []string{"cart", "shop"}, report.Installed)
	assert.True(t, f.service.IsActive("shop"))
	assert.FileExists(t, filepath.Join(f.root, "ext", "local", "shop", "EXTENSION"))

	entry, ok := f.store.Get("cart")
	require.True(t, ok)
	assert.Equal(t, "1.2.0", entry.Version)
	assert.Equal(t, "Local", entry.DownloadPath)
}

func TestInstallExtensionDownloadOnly(t *testing.T) {
	news := models.Package{Key: "news", Version: "1.0.0", Dependencies: requires(t, "ghost")}
	f := newFixture(t, nil, news)

	report, err := f.service.InstallExtension(context.Background(), news, InstallOptions{DownloadPath: "Local", SkipDependencyCheck: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"news@1.0.0"}, f.fetcher.calls)
	assert.Equal(t, []string{"news"}, report.Downloaded)
	assert.Empty(t, report.Installed)
	assert.False(t, f.service.IsActive("news"))
}

func TestInstallExtensionPartialFailure(t *testing.T) {
	shop := models.Package{Key: "shop", Version: "1.0.0", Dependencies: requires(t, "cart", "tax")}
	f := newFixture(t, nil, shop, models.Package{Key: "cart", Version: "1.0.0"}, models.Package{Key: "tax", Version: "1.0.0"})
	f.fetcher.failures["tax"] = models.NewError(models.ErrDownload, "tax", 500, "disk full")

	report, err := f.service.InstallExtension(context.Background(), shop, InstallOptions{DownloadPath: "Local", AutomaticInstallation: true})
	require.Error(t, err)

	var e *models.ExtMgrError
	require.ErrorAs(t, err, &e)
	assert.Equal(t, models.ErrInstallFailure, e.Type)
	assert.Equal(t, "tax", e.Package)
	assert.Equal(t, 500, e.Code)
	assert.Equal(t, "disk full", e.Message())

	// cart stays installed, tax and shop are not reported
	assert.Equal(t, []string{"cart"}, report.Installed)
	assert.False(t, report.Contains("tax"))
	assert.False(t, report.Contains("shop"))
	assert.True(t, f.service.IsActive("cart"))
}

func TestInstallExtensionResolutionConflict(t *testing.T) {
	shop := models.Package{Key: "shop", Version: "1.0.0", Dependencies: requires(t, "core (>= 8.0)")}
	f := newFixture(t, nil, shop)

	_, err := f.service.InstallExtension(context.Background(), shop, InstallOptions{DownloadPath: "Local", AutomaticInstallation: true})
	_, ok := models.AsConflict(err)
	assert.True(t, ok)
	assert.Empty(t, f.fetcher.calls)
}

func TestInstallExtensionDownloadTimeout(t *testing.T) {
	news := models.Package{Key: "news", Version: "1.0.0"}
	f := newFixture(t, nil, news)
	f.fetcher.delay = time.Second
	f.service.downloadTimeout = 10 * time.Millisecond

	_, err := f.service.InstallExtension(context.Background(), news, InstallOptions{DownloadPath: "Local"})
	require.Error(t, err)
	assert.True(t, models.IsType(err, models.ErrInstallFailure))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInstallExtensionUnknownPath(t *testing.T) {
	news := models.Package{Key: "news", Version: "1.0.0"}
	f := newFixture(t, nil, news)

	_, err := f.service.InstallExtension(context.Background(), news, InstallOptions{DownloadPath: "Remote"})
	require.Error(t, err)
	assert.True(t, models.IsType(err, models.ErrInstallFailure))
}

func TestDownloadMainExtensionKeepsActiveFlag(t *testing.T) {
	news := models.Package{Key: "news", Version: "2.0.0"}
	f := newFixture(t, map[string]string{"news": "1.0.0"}, news)
	require.NoError(t, f.store.Activate("news"))

	report, err := f.service.DownloadMainExtension(context.Background(), news, "Local")
	require.NoError(t, err)
	assert.Equal(t, []string{"news"}, report.Updated)
	assert.True(t, f.service.IsActive("news"))

	v, _ := f.store.InstalledVersion("news")
	assert.Equal(t, "2.0.0", v)
}

func TestGetAndResolveDependencies(t *testing.T) {
	shop := models.Package{Key: "shop", Version: "1.0.0", Dependencies: requires(t, "cart")}
	f := newFixture(t, nil, shop, models.Package{Key: "cart", Version: "1.0.0"})

	classified, err := f.service.GetAndResolveDependencies(context.Background(), shop)
	require.NoError(t, err)
	assert.Equal(t, 1, classified.Count())
	assert.Empty(t, f.fetcher.calls)
}

func TestInstallFailureWrapsPlainErrors(t *testing.T) {
	err := installFailure("news", models.CodeDownloadFailed, errors.New("boom"))
	var e *models.ExtMgrError
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "news", e.Package)
	assert.Equal(t, models.CodeDownloadFailed, e.Code)
	assert.Equal(t, "boom", e.Message())
}
