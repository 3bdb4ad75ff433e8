// Package repository looks up extension metadata by key and version.
package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/ralt/extmgr/internal/messages"
	"github.com/ralt/extmgr/internal/models"
)

// Repository gives read access to published extension versions. Lookups of
// absent keys or versions fail with a models.ErrNotFound error.
type Repository interface {
	FindOneByKeyAndVersion(ctx context.Context, key, version string) (models.Package, error)
	FindHighestAvailableVersion(ctx context.Context, key string) (models.Package, error)
	// FindByVersionRange returns the versions in [start, stop], highest first
	FindByVersionRange(ctx context.Context, key, start, stop string) ([]models.Package, error)
	// FindByKey returns every version of key, highest first
	FindByKey(ctx context.Context, key string) ([]models.Package, error)
}

type entry struct {
	version *semver.Version
	pkg     models.Package
}

// Index is an in-memory Repository
type Index struct {
	mu       sync.RWMutex
	versions map[string][]entry
}

// NewIndex builds an Index. Packages with versions that are not semantic
// versions are rejected.
func NewIndex(packages []models.Package) (*Index, error) {
	idx := &Index{versions: make(map[string][]entry)}
	for _, pkg := range packages {
		if err := idx.add(pkg); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func (idx *Index) add(pkg models.Package) error {
	v, err := semver.NewVersion(pkg.Version)
	if err != nil {
		return models.NewError(models.ErrIndexParse, pkg.Key, 0, "invalid version %q: %v", pkg.Version, err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	list := idx.versions[pkg.Key]
	for i, e := range list {
		if e.version.Equal(v) {
			list[i] = entry{version: v, pkg: pkg}
			return nil
		}
	}
	list = append(list, entry{version: v, pkg: pkg})
	sort.Slice(list, func(i, j int) bool { return list[i].version.GreaterThan(list[j].version) })
	idx.versions[pkg.Key] = list
	return nil
}

// Add inserts or replaces a package version
func (idx *Index) Add(pkg models.Package) error {
	return idx.add(pkg)
}

// Len returns the number of package versions in the index
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	n := 0
	for _, list := range idx.versions {
		n += len(list)
	}
	return n
}

func notFound(key string) error {
	return models.NewError(models.ErrNotFound, key, models.CodeNotFound, messages.RepositoryNotFoundFmt, key)
}

// FindOneByKeyAndVersion implements Repository. Versions compare
// semantically, so "2.0" finds "2.0.0".
func (idx *Index) FindOneByKeyAndVersion(ctx context.Context, key, version string) (models.Package, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	list, ok := idx.versions[key]
	if !ok {
		return models.Package{}, notFound(key)
	}

	want, err := semver.NewVersion(version)
	for _, e := range list {
		if e.pkg.Version == version || (err == nil && e.version.Equal(want)) {
			return e.pkg, nil
		}
	}
	return models.Package{}, models.NewError(models.ErrNotFound, key, models.CodeNotFound,
		messages.RepositoryVersionNotFoundFmt, key, version)
}

// FindHighestAvailableVersion implements Repository
func (idx *Index) FindHighestAvailableVersion(ctx context.Context, key string) (models.Package, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	list := idx.versions[key]
	if len(list) == 0 {
		return models.Package{}, notFound(key)
	}
	return list[0].pkg, nil
}

// FindByVersionRange implements Repository. An empty start or stop leaves
// that side of the range open.
func (idx *Index) FindByVersionRange(ctx context.Context, key, start, stop string) ([]models.Package, error) {
	var lower, upper *semver.Version
	var err error
	if start != "" {
		if lower, err = semver.NewVersion(start); err != nil {
			return nil, fmt.Errorf("invalid range start %q: %w", start, err)
		}
	}
	if stop != "" {
		if upper, err = semver.NewVersion(stop); err != nil {
			return nil, fmt.Errorf("invalid range stop %q: %w", stop, err)
		}
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	list, ok := idx.versions[key]
	if !ok {
		return nil, notFound(key)
	}

	var out []models.Package
	for _, e := range list {
		if lower != nil && e.version.LessThan(lower) {
			continue
		}
		if upper != nil && e.version.GreaterThan(upper) {
			continue
		}
		out = append(out, e.pkg)
	}
	return out, nil
}

// FindByKey implements Repository
func (idx *Index) FindByKey(ctx context.Context, key string) ([]models.Package, error) {
	return idx.FindByVersionRange(ctx, key, "", "")
}

// FindSatisfying returns the highest version of key matching every
// constraint. Nil constraints match anything.
func FindSatisfying(ctx context.Context, repo Repository, key string, constraints ...*semver.Constraints) (models.Package, error) {
	versions, err := repo.FindByKey(ctx, key)
	if err != nil {
		return models.Package{}, err
	}
	for _, pkg := range versions {
		v, err := semver.NewVersion(pkg.Version)
		if err != nil {
			continue
		}
		if CheckAll(v, constraints...) {
			return pkg, nil
		}
	}
	return models.Package{}, models.NewError(models.ErrNotFound, key, models.CodeNoSatisfyingVersion,
		messages.ResolverNoSatisfyingFmt, key, constraintsText(constraints))
}

// CheckAll reports whether v satisfies every non-nil constraint
func CheckAll(v *semver.Version, constraints ...*semver.Constraints) bool {
	for _, c := range constraints {
		if c != nil && !c.Check(v) {
			return false
		}
	}
	return true
}

func constraintsText(constraints []*semver.Constraints) string {
	var parts []string
	for _, c := range constraints {
		if c != nil {
			parts = append(parts, c.String())
		}
	}
	if len(parts) == 0 {
		return messages.DependencyConstraintAny
	}
	return strings.Join(parts, ", ")
}
