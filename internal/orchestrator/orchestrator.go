// Package orchestrator sequences dependency checks, installation, updates
// and update comment lookups of extensions.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ralt/extmgr/internal/config"
	"github.com/ralt/extmgr/internal/manager"
	"github.com/ralt/extmgr/internal/messages"
	"github.com/ralt/extmgr/internal/models"
	"github.com/ralt/extmgr/internal/notify"
	"github.com/ralt/extmgr/internal/repository"
	"github.com/sirupsen/logrus"
)

// Manager performs the actual downloads and installations
type Manager interface {
	GetAndResolveDependencies(ctx context.Context, pkg models.Package) (models.ClassifiedDependencies, error)
	InstallExtension(ctx context.Context, pkg models.Package, opts manager.InstallOptions) (models.InstallReport, error)
	DownloadMainExtension(ctx context.Context, pkg models.Package, downloadPath string) (models.InstallReport, error)
	IsActive(key string) bool
}

// Orchestrator is the entry point of every extension operation. It never
// returns raw failures of its collaborators; they are converted into
// results, error maps or notifications.
type Orchestrator struct {
	repo     repository.Repository
	manager  Manager
	config   config.Provider
	notifier notify.Notifier
}

// refresher is a repository caching its index
type refresher interface {
	Invalidate()
}

// New creates an Orchestrator. A nil notifier discards notifications.
func New(repo repository.Repository, mgr Manager, provider config.Provider, notifier notify.Notifier) *Orchestrator {
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Orchestrator{
		repo:     repo,
		manager:  mgr,
		config:   provider,
		notifier: notifier,
	}
}

// settings reads the extension manager settings. A read failure behaves
// like disabled automatic installation.
func (o *Orchestrator) settings(log *logrus.Entry) config.ExtensionManagerSettings {
	s, err := o.config.Get(config.NamespaceExtensionManager)
	if err != nil {
		log.WithError(err).Warn("Failed to read extension manager settings, automatic installation disabled")
		return config.ExtensionManagerSettings{}
	}
	return s
}

func enter(log *logrus.Entry, phase Phase) *logrus.Entry {
	log = log.WithField("phase", phase)
	log.Debug("Entering phase")
	return log
}

func packageLog(pkg models.Package) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"extension": pkg.Key,
		"version":   pkg.Version,
	})
}

func packageParams(pkg models.Package) map[string]string {
	return map[string]string{"extension": pkg.Key, "version": pkg.Version}
}

// CheckDependencies reports which dependencies installing pkg would resolve
// and which action should follow
func (o *Orchestrator) CheckDependencies(ctx context.Context, pkg models.Package) DependencyCheck {
	log := enter(packageLog(pkg), PhaseCheckingDeps)

	if !o.settings(log).AutomaticInstallation {
		log.Debug("Automatic installation disabled, download only")
		return DependencyCheck{
			Next: ActionRef{Action: ActionInstallWithoutDependencyCheck, Params: packageParams(pkg)},
		}
	}

	check := DependencyCheck{
		Next: ActionRef{Action: ActionInstallFromRepository, Params: packageParams(pkg)},
	}

	deps, err := o.manager.GetAndResolveDependencies(ctx, pkg)
	if err != nil {
		enter(log, PhaseResolveError).WithError(err).Info("Dependency resolution failed")
		check.HasErrors = true
		check.Title = messages.DependenciesErrorTitle
		check.Message = err.Error()
		return check
	}

	if deps.Count() == 0 {
		enter(log, PhaseNoDeps)
		return check
	}

	enter(log, PhaseHasDepsConfirm)
	check.HasDependencies = true
	check.Dependencies = deps
	check.Title = messages.DependenciesResolveAutomatically
	check.Message = formatDependencies(deps)
	return check
}

var dependencyTypeTitles = map[models.DependencyType]string{
	models.DependencyRequires:  messages.DependencyTypeRequires,
	models.DependencySuggests:  messages.DependencyTypeSuggests,
	models.DependencyConflicts: messages.DependencyTypeConflicts,
}

func formatDependencies(deps models.ClassifiedDependencies) string {
	lines := []string{messages.DependenciesHeadline}
	for _, t := range models.DependencyTypes {
		list := deps[t]
		if len(list) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf(messages.DependenciesTypeHeadlineFmt, dependencyTypeTitles[t]))
		for _, d := range list {
			constraint := d.RequiredVersion
			if constraint == "" {
				constraint = messages.DependencyConstraintAny
			}
			lines = append(lines, fmt.Sprintf(messages.DependenciesExtensionFmt, d.Key, constraint))
		}
	}
	return strings.Join(lines, "\n")
}

// Install installs pkg and its dependencies into downloadPath ("Local" when
// empty). The installation is not transactional: dependencies installed
// before a failure stay installed and are listed in the result report.
func (o *Orchestrator) Install(ctx context.Context, pkg models.Package, downloadPath string) (models.InstallResult, models.ErrorMap) {
	result, errs, _ := o.install(ctx, pkg, downloadPath, false)
	return result, errs
}

// InstallWithoutDependencyCheck downloads pkg into the Local path without
// resolving its dependencies
func (o *Orchestrator) InstallWithoutDependencyCheck(ctx context.Context, pkg models.Package) (models.InstallResult, models.ErrorMap) {
	result, errs, _ := o.install(ctx, pkg, config.DefaultDownloadPath, true)
	return result, errs
}

func (o *Orchestrator) install(ctx context.Context, pkg models.Package, downloadPath string, skipDependencyCheck bool) (models.InstallResult, models.ErrorMap, Phase) {
	if downloadPath == "" {
		downloadPath = config.DefaultDownloadPath
	}
	log := packageLog(pkg).WithField("path", downloadPath)
	settings := o.settings(log)
	log = enter(log, PhaseInstalling)

	report, err := o.manager.InstallExtension(ctx, pkg, manager.InstallOptions{
		DownloadPath:          downloadPath,
		AutomaticInstallation: settings.AutomaticInstallation,
		SkipDependencyCheck:   skipDependencyCheck,
	})
	result := models.InstallResult{Report: report}
	if err == nil {
		enter(log, PhaseSuccess)
		result.Success = true
		return result, models.ErrorMap{}, PhaseSuccess
	}

	errs := errorMapFor(pkg, err)
	if _, ok := models.AsConflict(err); ok {
		enter(log, PhaseResolveError).WithError(err).Info("Installation refused")
		return result, errs, PhaseResolveError
	}
	enter(log, PhasePartialFailure).WithError(err).Warn("Installation failed")
	return result, errs, PhasePartialFailure
}

// errorMapFor converts an installation error into an error map. Conflicts
// keep the per-extension records of the resolver. Every other failure is a
// single entry keyed by pkg, naming the dependency that failed in the message.
func errorMapFor(pkg models.Package, err error) models.ErrorMap {
	if conflict, ok := models.AsConflict(err); ok {
		errs := models.ErrorMap{}
		for key, records := range conflict.Errors {
			errs[key] = append([]models.ErrorRecord(nil), records...)
		}
		return errs
	}

	rec := models.RecordFromError(err)
	var e *models.ExtMgrError
	if errors.As(err, &e) && e.Package != "" && e.Package != pkg.Key {
		rec.Message = e.Package + ": " + rec.Message
	}
	return models.ErrorMap{pkg.Key: {rec}}
}

// Run performs a complete install attempt: it checks dependencies, asks
// confirm when dependencies have to be resolved (a nil confirm accepts
// automatically) and installs along the returned action.
func (o *Orchestrator) Run(ctx context.Context, pkg models.Package, downloadPath string, confirm func(DependencyCheck) bool) Attempt {
	log := enter(packageLog(pkg), PhaseStart)

	attempt := Attempt{Errors: models.ErrorMap{}}
	attempt.Check = o.CheckDependencies(ctx, pkg)

	switch {
	case attempt.Check.HasErrors:
		attempt.Phase = PhaseResolveError
		enter(log, PhaseEnd)
		return attempt
	case attempt.Check.HasDependencies && confirm != nil:
		enter(log, PhaseHasDepsConfirm)
		if !confirm(attempt.Check) {
			attempt.Declined = true
			attempt.Phase = PhaseEnd
			enter(log, PhaseEnd)
			return attempt
		}
	case attempt.Check.HasDependencies:
		enter(log, PhaseHasDepsAuto)
	}

	if attempt.Check.Next.Action == ActionInstallWithoutDependencyCheck {
		attempt.Result, attempt.Errors, attempt.Phase = o.install(ctx, pkg, config.DefaultDownloadPath, true)
	} else {
		attempt.Result, attempt.Errors, attempt.Phase = o.install(ctx, pkg, downloadPath, false)
	}
	enter(log, PhaseEnd)
	return attempt
}

// InstallDistribution installs a distribution extension. It requires the
// configured distribution importer to be active and reports the outcome
// through notifications as well.
func (o *Orchestrator) InstallDistribution(ctx context.Context, pkg models.Package) (models.InstallResult, models.ErrorMap) {
	log := packageLog(pkg)
	importer := o.settings(log).DistributionImporter
	if importer == "" {
		importer = config.Default().ExtensionManager.DistributionImporter
	}

	if !o.manager.IsActive(importer) {
		rec := models.ErrorRecord{Code: models.CodeNotFound, Message: fmt.Sprintf(messages.DistributionImporterMissingFmt, importer)}
		o.notifier.Notify(notify.Notification{
			Severity: notify.SeverityError,
			Title:    fmt.Sprintf(messages.DistributionErrorTitleFmt, pkg.Key),
			Body:     rec.Message,
		})
		return models.InstallResult{}, models.ErrorMap{pkg.Key: {rec}}
	}

	result, errs := o.Install(ctx, pkg, config.DefaultDownloadPath)
	if len(errs) > 0 {
		for _, key := range errs.Keys() {
			for _, rec := range errs[key] {
				o.notifier.Notify(notify.Notification{
					Severity: notify.SeverityError,
					Title:    fmt.Sprintf(messages.DistributionErrorTitleFmt, key),
					Body:     rec.Message,
				})
			}
		}
		return result, errs
	}

	o.notifier.Notify(notify.Notification{
		Severity: notify.SeverityOK,
		Title:    messages.DistributionWelcomeTitle,
		Body:     fmt.Sprintf(messages.DistributionWelcomeBodyFmt, pkg.Key),
	})
	return result, errs
}

// UpdateExtension updates key to version, or to the highest available
// version when that exact version is not published. Active extensions are
// reinstalled so new dependencies get resolved; inactive ones are only
// downloaded. A caching repository is refreshed first. The outcome is
// reported through the notifier and the result is always empty.
func (o *Orchestrator) UpdateExtension(ctx context.Context, key, version string) string {
	log := logrus.WithFields(logrus.Fields{"extension": key, "version": version})

	if r, ok := o.repo.(refresher); ok {
		r.Invalidate()
	}

	pkg, err := o.repo.FindOneByKeyAndVersion(ctx, key, version)
	if models.IsNotFound(err) {
		log.Debug("Requested version not found, using highest available version")
		pkg, err = o.repo.FindHighestAvailableVersion(ctx, key)
	}
	if err != nil {
		o.notifyError(log, err)
		return ""
	}

	if o.manager.IsActive(key) {
		log = enter(log.WithField("version", pkg.Version), PhaseInstalling)
		settings := o.settings(log)
		_, err = o.manager.InstallExtension(ctx, pkg, manager.InstallOptions{
			DownloadPath:          config.DefaultDownloadPath,
			AutomaticInstallation: settings.AutomaticInstallation,
		})
	} else {
		log = log.WithField("version", pkg.Version)
		log.Debug("Extension inactive, downloading only")
		_, err = o.manager.DownloadMainExtension(ctx, pkg, config.DefaultDownloadPath)
	}
	if err != nil {
		o.notifyError(log, err)
		return ""
	}

	o.notifier.Notify(notify.Notification{
		Severity: notify.SeverityOK,
		Title:    messages.UpdateTitle,
		Body:     fmt.Sprintf(messages.UpdateBodyFmt, key),
	})
	return ""
}

func (o *Orchestrator) notifyError(log *logrus.Entry, err error) {
	log.WithError(err).Warn("Extension update failed")
	o.notifier.Notify(notify.Notification{
		Severity: notify.SeverityError,
		Body:     models.RecordFromError(err).Message,
	})
}

// UpdateCommentsForVersionRange returns the update comments of the versions
// of key within [start, stop], highest version first
func (o *Orchestrator) UpdateCommentsForVersionRange(ctx context.Context, key, start, stop string) (UpdateComments, error) {
	versions, err := o.repo.FindByVersionRange(ctx, key, start, stop)
	if err != nil && !models.IsNotFound(err) {
		return UpdateComments{}, err
	}

	out := UpdateComments{
		Key:       key,
		Comments:  []VersionComment{},
		ByVersion: map[string]string{},
	}
	for _, pkg := range versions {
		if out.HighestVersion == "" {
			out.HighestVersion = pkg.Version
		}
		out.Comments = append(out.Comments, VersionComment{Version: pkg.Version, Comment: pkg.UpdateComment})
		out.ByVersion[pkg.Version] = pkg.UpdateComment
	}
	out.Next = ActionRef{
		Action: ActionUpdateExtension,
		Params: map[string]string{"extension": key, "version": out.HighestVersion},
	}
	return out, nil
}
