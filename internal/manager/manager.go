// Package manager downloads, extracts, records and activates extensions.
package manager

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/ralt/extmgr/internal/downloader"
	"github.com/ralt/extmgr/internal/messages"
	"github.com/ralt/extmgr/internal/models"
	"github.com/ralt/extmgr/internal/resolver"
	"github.com/ralt/extmgr/internal/state"
	"github.com/sirupsen/logrus"
)

const defaultDownloadTimeout = 60 * time.Second

// InstallOptions are passed explicitly to every installation
type InstallOptions struct {
	DownloadPath          string
	AutomaticInstallation bool
	SkipDependencyCheck   bool
}

// Planner resolves the download queue of a package
type Planner interface {
	Plan(ctx context.Context, pkg models.Package) (*resolver.Plan, error)
}

// Store records downloaded and active extensions
type Store interface {
	Record(key string, entry state.Entry) error
	Activate(key string) error
	IsActive(key string) bool
	InstalledVersion(key string) (string, bool)
}

// Locker serializes work per extension key
type Locker interface {
	Acquire(key string) (func() error, error)
}

// PathResolver maps a download path name to a directory
type PathResolver func(name string) (string, error)

// Service coordinates the installation of extensions
type Service struct {
	planner         Planner
	fetcher         downloader.Fetcher
	store           Store
	locker          Locker
	paths           PathResolver
	downloadTimeout time.Duration
}

// Config holds the collaborators of a Service
type Config struct {
	Planner         Planner
	Fetcher         downloader.Fetcher
	Store           Store
	Locker          Locker
	Paths           PathResolver
	DownloadTimeout time.Duration
}

// New creates a Service
func New(cfg Config) *Service {
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = defaultDownloadTimeout
	}
	return &Service{
		planner:         cfg.Planner,
		fetcher:         cfg.Fetcher,
		store:           cfg.Store,
		locker:          cfg.Locker,
		paths:           cfg.Paths,
		downloadTimeout: cfg.DownloadTimeout,
	}
}

// GetAndResolveDependencies returns the classified dependencies of pkg
func (s *Service) GetAndResolveDependencies(ctx context.Context, pkg models.Package) (models.ClassifiedDependencies, error) {
	plan, err := s.planner.Plan(ctx, pkg)
	if err != nil {
		return nil, err
	}
	return plan.Dependencies, nil
}

// InstallExtension downloads pkg and, unless opts.SkipDependencyCheck is set,
// its required dependencies first. Packages completed before a failure stay
// installed and are listed in the returned report.
func (s *Service) InstallExtension(ctx context.Context, pkg models.Package, opts InstallOptions) (models.InstallReport, error) {
	log := logrus.WithFields(logrus.Fields{
		"extension": pkg.Key,
		"version":   pkg.Version,
		"operation": uuid.NewString(),
	})

	queue := []models.Package{pkg}
	if !opts.SkipDependencyCheck {
		plan, err := s.planner.Plan(ctx, pkg)
		if err != nil {
			return models.InstallReport{}, err
		}
		queue = append(plan.Queue, pkg)
	}
	log.Debugf("Install queue holds %d extensions", len(queue))

	var report models.InstallReport
	for _, p := range queue {
		if err := s.installOne(ctx, log, p, opts.DownloadPath, opts.AutomaticInstallation, &report); err != nil {
			log.WithError(err).Warnf("Installation stopped at %s", p.ID())
			return report, err
		}
	}

	log.Infof("Installed %s", pkg.ID())
	return report, nil
}

// DownloadMainExtension downloads pkg without resolving dependencies or
// changing its active flag
func (s *Service) DownloadMainExtension(ctx context.Context, pkg models.Package, downloadPath string) (models.InstallReport, error) {
	log := logrus.WithFields(logrus.Fields{
		"extension": pkg.Key,
		"version":   pkg.Version,
		"operation": uuid.NewString(),
	})

	var report models.InstallReport
	err := s.installOne(ctx, log, pkg, downloadPath, false, &report)
	return report, err
}

// IsActive reports whether key is active in the running system
func (s *Service) IsActive(key string) bool {
	return s.store.IsActive(key)
}

func (s *Service) installOne(ctx context.Context, log *logrus.Entry, pkg models.Package, downloadPath string, activate bool, report *models.InstallReport) error {
	log = log.WithField("package", pkg.ID())

	release, err := s.locker.Acquire(pkg.Key)
	if err != nil {
		return models.NewError(models.ErrInstallFailure, pkg.Key, models.CodeLockFailed, messages.ManagerLockFailedFmt, pkg.Key, err)
	}
	defer func() {
		if err := release(); err != nil {
			log.WithError(err).Warn("Failed to release lock")
		}
	}()

	dir, err := s.paths(downloadPath)
	if err != nil {
		return models.NewError(models.ErrInstallFailure, pkg.Key, models.CodeDownloadFailed, "%v", err)
	}
	target := filepath.Join(dir, pkg.Key)

	fetchCtx, cancel := context.WithTimeout(ctx, s.downloadTimeout)
	data, err := s.fetcher.Fetch(fetchCtx, pkg)
	cancel()
	if err != nil {
		return installFailure(pkg.Key, models.CodeDownloadFailed, err)
	}

	if err := downloader.Extract(pkg, data, target); err != nil {
		return installFailure(pkg.Key, models.CodeExtractFailed, err)
	}

	_, previouslyInstalled := s.store.InstalledVersion(pkg.Key)
	entry := state.Entry{Version: pkg.Version, Path: target, DownloadPath: downloadPath}
	if err := s.store.Record(pkg.Key, entry); err != nil {
		return models.NewError(models.ErrInstallFailure, pkg.Key, models.CodeStateFailed, messages.ManagerStateFailedFmt, pkg.ID(), err)
	}
	log.Debugf("Extracted into %s", target)

	if activate {
		if err := s.store.Activate(pkg.Key); err != nil {
			return models.NewError(models.ErrInstallFailure, pkg.Key, models.CodeStateFailed, messages.ManagerStateFailedFmt, pkg.ID(), err)
		}
		report.Installed = append(report.Installed, pkg.Key)
		log.Debug("Activated")
	}

	if previouslyInstalled {
		report.Updated = append(report.Updated, pkg.Key)
	} else {
		report.Downloaded = append(report.Downloaded, pkg.Key)
	}
	return nil
}

// installFailure converts err into an InstallFailure attributed to key,
// keeping the code and message of typed errors
func installFailure(key string, code int, err error) error {
	var e *models.ExtMgrError
	if errors.As(err, &e) {
		if e.Package != "" {
			key = e.Package
		}
		if e.Code != 0 {
			code = e.Code
		}
		return &models.ExtMgrError{Type: models.ErrInstallFailure, Package: key, Code: code, Err: e.Err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("download timed out: %w", err)
	}
	return &models.ExtMgrError{Type: models.ErrInstallFailure, Package: key, Code: code, Err: err}
}
