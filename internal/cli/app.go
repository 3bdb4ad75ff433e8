package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/ralt/extmgr/internal/config"
	"github.com/ralt/extmgr/internal/downloader"
	"github.com/ralt/extmgr/internal/lock"
	"github.com/ralt/extmgr/internal/manager"
	"github.com/ralt/extmgr/internal/messages"
	"github.com/ralt/extmgr/internal/models"
	"github.com/ralt/extmgr/internal/notify"
	"github.com/ralt/extmgr/internal/orchestrator"
	"github.com/ralt/extmgr/internal/repository"
	"github.com/ralt/extmgr/internal/resolver"
	"github.com/ralt/extmgr/internal/signer"
	"github.com/ralt/extmgr/internal/state"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// app holds the components shared by the extension commands
type app struct {
	cfg          *config.Config
	repo         repository.Repository
	store        *state.Store
	orchestrator *orchestrator.Orchestrator
}

// newApp loads the configuration selected on cmd and wires the repository,
// resolver, manager and orchestrator
func newApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logrus.Debugf("Loaded configuration from %s", path)

	store, err := state.Open(cfg.StateFile(), cfg.System.Packages)
	if err != nil {
		return nil, err
	}

	location := cfg.Repository.URL
	if !strings.Contains(location, "://") {
		location = cfg.Resolve(location)
	}
	source := downloader.NewSource(location, cfg.Repository.Timeout.Duration)

	opts := []repository.RemoteOption{repository.WithCacheTTL(cfg.Repository.CacheTTL.Duration)}
	if cfg.Repository.Keyring != "" {
		verifier, err := signer.NewGPGVerifier(cfg.Resolve(cfg.Repository.Keyring))
		if err != nil {
			return nil, &models.ExtMgrError{
				Type: models.ErrSigning,
				Err:  fmt.Errorf("failed to load repository keyring: %w", err),
			}
		}
		opts = append(opts, repository.WithVerifier(verifier))
	}
	repo := repository.NewRemote(source, opts...)

	svc := manager.New(manager.Config{
		Planner:         resolver.New(repo, store),
		Fetcher:         downloader.New(source),
		Store:           store,
		Locker:          lock.NewLocker(cfg.LockDir()),
		Paths:           cfg.DownloadPath,
		DownloadTimeout: cfg.Download.Timeout.Duration,
	})

	notifier := notify.Multi{notify.NewConsoleNotifier(cmd.ErrOrStderr())}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		notifier = append(notifier, notify.NewLogNotifier())
	}

	return &app{
		cfg:          cfg,
		repo:         repo,
		store:        store,
		orchestrator: orchestrator.New(repo, svc, cfg, notifier),
	}, nil
}

// findPackage looks up key at version, or its highest version when version
// is empty
func (a *app) findPackage(ctx context.Context, key, version string) (models.Package, error) {
	if version == "" {
		return a.repo.FindHighestAvailableVersion(ctx, key)
	}
	if _, err := semver.NewVersion(version); err != nil {
		return models.Package{}, fmt.Errorf(messages.VersionArgInvalidFmt, version, err)
	}
	return a.repo.FindOneByKeyAndVersion(ctx, key, version)
}

// keyAndVersion splits the "<key> [version]" arguments
func keyAndVersion(args []string) (string, string, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return "", "", errors.New(messages.ExtensionArgRequired)
	}
	if len(args) > 1 {
		return args[0], args[1], nil
	}
	return args[0], "", nil
}
