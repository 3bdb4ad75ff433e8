package utils

import (
	"github.com/ralt/extmgr/internal/models"
)

// PackageIdentity returns a unique identifier for an extension version
func PackageIdentity(pkg models.Package) string {
	return pkg.ID()
}

// DetectConflicts returns packages from newPackages that already exist in existing
func DetectConflicts(existing, newPackages []models.Package) []models.Package {
	existingMap := make(map[string]bool)
	for _, pkg := range existing {
		existingMap[PackageIdentity(pkg)] = true
	}

	var conflicts []models.Package
	for _, pkg := range newPackages {
		if existingMap[PackageIdentity(pkg)] {
			conflicts = append(conflicts, pkg)
		}
	}
	return conflicts
}

// MergePackages combines existing and new packages; new packages replace
// existing entries with the same identity
func MergePackages(existing, newPackages []models.Package) []models.Package {
	replaced := make(map[string]bool)
	for _, pkg := range newPackages {
		replaced[PackageIdentity(pkg)] = true
	}

	merged := make([]models.Package, 0, len(existing)+len(newPackages))
	for _, pkg := range existing {
		if !replaced[PackageIdentity(pkg)] {
			merged = append(merged, pkg)
		}
	}
	return append(merged, newPackages...)
}
