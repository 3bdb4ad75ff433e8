// Package resolver classifies the dependencies of an extension and selects
// the versions an installation has to download.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/ralt/extmgr/internal/messages"
	"github.com/ralt/extmgr/internal/models"
	"github.com/ralt/extmgr/internal/repository"
	"github.com/sirupsen/logrus"
)

// Installed reports what the running system already provides
type Installed interface {
	InstalledVersion(key string) (string, bool)
	SystemVersion(key string) (string, bool)
}

// Plan is the outcome of a successful resolution
type Plan struct {
	Root         models.Package
	Dependencies models.ClassifiedDependencies
	// Queue holds the packages to fetch, dependencies before dependents.
	// The root package is not part of it.
	Queue []models.Package
}

// Resolver resolves dependencies against a repository
type Resolver struct {
	repo      repository.Repository
	installed Installed
}

// New creates a Resolver
func New(repo repository.Repository, installed Installed) *Resolver {
	return &Resolver{repo: repo, installed: installed}
}

// Resolve classifies the dependencies of pkg. Unsatisfiable dependencies
// fail with a *models.ConflictError.
func (r *Resolver) Resolve(ctx context.Context, pkg models.Package) (models.ClassifiedDependencies, error) {
	plan, err := r.Plan(ctx, pkg)
	if err != nil {
		return nil, err
	}
	return plan.Dependencies, nil
}

type selection struct {
	pkg         models.Package
	version     *semver.Version
	action      models.Action
	constraints []string
}

// errReselect unwinds a run after a key got pinned to a stricter
// constraint set
var errReselect = errors.New("reselect")

type run struct {
	r        *Resolver
	root     models.Package
	pins     map[string][]string
	selected map[string]*selection
	visited  map[string]bool
	packages []models.Package
	queue    []models.Package
	errors   models.ErrorMap
}

// Plan resolves pkg and returns the classified dependencies plus the
// download queue
func (r *Resolver) Plan(ctx context.Context, pkg models.Package) (*Plan, error) {
	rootVersion, err := semver.NewVersion(pkg.Version)
	if err != nil {
		return nil, models.NewError(models.ErrResolutionConflict, pkg.Key, models.CodeInvalidConstraint,
			"invalid version %q: %v", pkg.Version, err)
	}

	// A selection rejected by a later constraint pins that constraint and
	// restarts the run. Every restart pins a constraint not pinned before.
	pins := map[string][]string{}
	var st *run
	for {
		st = &run{
			r:        r,
			root:     pkg,
			pins:     pins,
			selected: map[string]*selection{pkg.Key: {pkg: pkg, version: rootVersion, action: models.ActionNone}},
			visited:  map[string]bool{},
			errors:   models.ErrorMap{},
		}
		err := st.visit(ctx, pkg)
		if errors.Is(err, errReselect) {
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}
	st.checkConflicts()

	if len(st.errors) > 0 {
		logrus.WithField("extension", pkg.Key).Debugf("Resolution failed for %d extensions", len(st.errors))
		return nil, &models.ConflictError{Errors: st.errors}
	}

	plan := &Plan{
		Root:         pkg,
		Dependencies: models.ClassifiedDependencies{},
		Queue:        st.queue,
	}
	for key, sel := range st.selected {
		if key == pkg.Key || sel.action == models.ActionNone {
			continue
		}
		plan.Dependencies.Add(models.DependencyRequires, models.ResolvedDependency{
			Key:             key,
			RequiredVersion: strings.Join(sel.constraints, ", "),
			Version:         sel.pkg.Version,
			Action:          sel.action,
		})
	}
	st.addSuggestions(plan.Dependencies)

	return plan, nil
}

func parseConstraint(text string) (*semver.Constraints, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return semver.NewConstraint(text)
}

func satisfies(c *semver.Constraints, v *semver.Version) bool {
	return c == nil || c.Check(v)
}

func constraintText(text string) string {
	if text == "" {
		return messages.DependencyConstraintAny
	}
	return text
}

// visit resolves the required dependencies of pkg depth first. Only
// repository failures other than missing packages abort the run.
func (st *run) visit(ctx context.Context, pkg models.Package) error {
	if st.visited[pkg.ID()] {
		return nil
	}
	st.visited[pkg.ID()] = true
	st.packages = append(st.packages, pkg)

	for _, dep := range pkg.DependenciesOfType(models.DependencyRequires) {
		if err := ctx.Err(); err != nil {
			return err
		}

		c, err := parseConstraint(dep.Constraint)
		if err != nil {
			st.errors.Add(pkg.Key, models.ErrorRecord{
				Code:    models.CodeInvalidConstraint,
				Message: fmt.Sprintf(messages.ResolverInvalidConstraintFmt, dep.Constraint, dep.Key, err),
			})
			continue
		}

		if sysVersion, ok := st.r.installed.SystemVersion(dep.Key); ok {
			v, err := semver.NewVersion(sysVersion)
			if err != nil || !satisfies(c, v) {
				st.errors.Add(pkg.Key, models.ErrorRecord{
					Code:    models.CodeSystemRequirement,
					Message: fmt.Sprintf(messages.ResolverSystemRequirementFmt, dep.Key, sysVersion, pkg.Key, constraintText(dep.Constraint)),
				})
			}
			continue
		}

		if sel, ok := st.selected[dep.Key]; ok {
			if satisfies(c, sel.version) {
				sel.addConstraint(dep.Constraint)
				continue
			}
			if dep.Key != st.root.Key {
				combined := append(st.constraintsFor(dep.Key, sel.constraints), c)
				_, err := repository.FindSatisfying(ctx, st.r.repo, dep.Key, combined...)
				if err == nil {
					logrus.WithField("extension", dep.Key).Debugf("Reselecting for %s", dep.Constraint)
					st.pins[dep.Key] = append(st.pins[dep.Key], dep.Constraint)
					return errReselect
				}
				if !models.IsNotFound(err) {
					return err
				}
			}
			st.errors.Add(pkg.Key, models.ErrorRecord{
				Code: models.CodeConstraintMismatch,
				Message: fmt.Sprintf(messages.ResolverConstraintMismatchFmt,
					pkg.Key, dep.Key, constraintText(dep.Constraint), dep.Key, sel.pkg.Version),
			})
			continue
		}

		wanted := append(st.constraintsFor(dep.Key, nil), c)

		if installed, ok := st.r.installed.InstalledVersion(dep.Key); ok {
			if v, err := semver.NewVersion(installed); err == nil && repository.CheckAll(v, wanted...) {
				sel := &selection{pkg: models.Package{Key: dep.Key, Version: installed}, version: v, action: models.ActionNone}
				sel.addConstraint(dep.Constraint)
				st.selected[dep.Key] = sel
				continue
			}
		}

		candidate, err := repository.FindSatisfying(ctx, st.r.repo, dep.Key, wanted...)
		if err != nil {
			if !models.IsNotFound(err) {
				return err
			}
			rec := models.RecordFromError(err)
			if rec.Code == models.CodeNotFound {
				rec = models.ErrorRecord{
					Code:    models.CodeMissingDependency,
					Message: fmt.Sprintf(messages.ResolverMissingDependencyFmt, dep.Key, pkg.Key),
				}
			}
			st.errors.Add(pkg.Key, rec)
			continue
		}

		v, err := semver.NewVersion(candidate.Version)
		if err != nil {
			return err
		}
		action := models.ActionDownload
		if _, ok := st.r.installed.InstalledVersion(dep.Key); ok {
			action = models.ActionUpdate
		}
		sel := &selection{pkg: candidate, version: v, action: action}
		sel.addConstraint(dep.Constraint)
		st.selected[dep.Key] = sel

		if err := st.visit(ctx, candidate); err != nil {
			return err
		}
		st.queue = append(st.queue, candidate)
	}
	return nil
}

// constraintsFor parses the pinned constraints of key together with extra.
// Both only hold texts that parsed before.
func (st *run) constraintsFor(key string, extra []string) []*semver.Constraints {
	var out []*semver.Constraints
	for _, text := range append(append([]string(nil), st.pins[key]...), extra...) {
		if c, err := parseConstraint(text); err == nil && c != nil {
			out = append(out, c)
		}
	}
	return out
}

func (s *selection) addConstraint(text string) {
	if text == "" {
		return
	}
	for _, existing := range s.constraints {
		if existing == text {
			return
		}
	}
	s.constraints = append(s.constraints, text)
	sort.Strings(s.constraints)
}

// versionOf returns the version key would have after the installation
func (st *run) versionOf(key string) (string, *semver.Version, bool) {
	if sel, ok := st.selected[key]; ok {
		return sel.pkg.Version, sel.version, true
	}
	v, ok := st.r.installed.SystemVersion(key)
	if !ok {
		v, ok = st.r.installed.InstalledVersion(key)
	}
	if !ok {
		return "", nil, false
	}
	// Unparsable versions are present but match only unconstrained rules
	parsed, _ := semver.NewVersion(v)
	return v, parsed, true
}

// checkConflicts reports conflicts declared by any visited package
func (st *run) checkConflicts() {
	for _, pkg := range st.packages {
		for _, dep := range pkg.DependenciesOfType(models.DependencyConflicts) {
			if dep.Key == pkg.Key {
				continue
			}
			c, err := parseConstraint(dep.Constraint)
			if err != nil {
				st.errors.Add(pkg.Key, models.ErrorRecord{
					Code:    models.CodeInvalidConstraint,
					Message: fmt.Sprintf(messages.ResolverInvalidConstraintFmt, dep.Constraint, dep.Key, err),
				})
				continue
			}
			text, v, ok := st.versionOf(dep.Key)
			if !ok || (c != nil && (v == nil || !c.Check(v))) {
				continue
			}
			st.errors.Add(pkg.Key, models.ErrorRecord{
				Code:    models.CodeConflictingExtension,
				Message: fmt.Sprintf(messages.ResolverConflictFmt, pkg.Key, dep.Key, text),
			})
		}
	}
}

// addSuggestions lists suggested extensions that are neither installed nor
// part of the installation
func (st *run) addSuggestions(out models.ClassifiedDependencies) {
	seen := map[string]bool{}
	for _, pkg := range st.packages {
		for _, dep := range pkg.DependenciesOfType(models.DependencySuggests) {
			if seen[dep.Key] {
				continue
			}
			if _, _, ok := st.versionOf(dep.Key); ok {
				continue
			}
			seen[dep.Key] = true
			out.Add(models.DependencySuggests, models.ResolvedDependency{
				Key:             dep.Key,
				RequiredVersion: dep.Constraint,
				Action:          models.ActionNone,
			})
		}
	}
}
