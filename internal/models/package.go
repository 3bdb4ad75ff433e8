package models

import (
	"fmt"
	"sort"
	"strings"
)

// DependencyType classifies a declared relationship between two extensions
type DependencyType string

const (
	DependencyRequires  DependencyType = "requires"
	DependencySuggests  DependencyType = "suggests"
	DependencyConflicts DependencyType = "conflicts"
)

// DependencyTypes lists the known dependency types in reporting order.
var DependencyTypes = []DependencyType{DependencyRequires, DependencySuggests, DependencyConflicts}

// ParseDependencyType converts a raw type tag into a DependencyType
func ParseDependencyType(raw string) (DependencyType, error) {
	switch DependencyType(strings.ToLower(strings.TrimSpace(raw))) {
	case DependencyRequires, "depends":
		return DependencyRequires, nil
	case DependencySuggests:
		return DependencySuggests, nil
	case DependencyConflicts:
		return DependencyConflicts, nil
	default:
		return "", fmt.Errorf("unknown dependency type %q", raw)
	}
}

// Dependency is a relationship declared by a Package
type Dependency struct {
	Type       DependencyType `json:"type"`
	Key        string         `json:"key"`
	Constraint string         `json:"constraint,omitempty"`
}

// String renders the dependency the way it appears in the repository index
func (d Dependency) String() string {
	if d.Constraint == "" {
		return d.Key
	}
	return fmt.Sprintf("%s (%s)", d.Key, d.Constraint)
}

// ParseDependency parses "key" or "key (constraint)"
func ParseDependency(t DependencyType, raw string) (Dependency, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Dependency{}, fmt.Errorf("empty dependency")
	}

	dep := Dependency{Type: t}
	open := strings.Index(raw, "(")
	if open < 0 {
		dep.Key = raw
	} else {
		if !strings.HasSuffix(raw, ")") {
			return Dependency{}, fmt.Errorf("unterminated constraint in %q", raw)
		}
		dep.Key = strings.TrimSpace(raw[:open])
		dep.Constraint = strings.TrimSpace(raw[open+1 : len(raw)-1])
	}

	if dep.Key == "" || strings.ContainsAny(dep.Key, " \t") {
		return Dependency{}, fmt.Errorf("invalid extension key in %q", raw)
	}
	return dep, nil
}

// Package represents one version of an extension as published by a repository
type Package struct {
	// Core metadata
	Key           string
	Version       string
	Title         string
	Description   string
	UpdateComment string
	Dependencies  []Dependency

	// File information
	Filename  string
	Size      int64
	SHA256Sum string
}

// ID returns the "key@version" identity of the package
func (p Package) ID() string {
	return p.Key + "@" + p.Version
}

// DependenciesOfType returns the declared dependencies of type t sorted by key
func (p Package) DependenciesOfType(t DependencyType) []Dependency {
	var deps []Dependency
	for _, d := range p.Dependencies {
		if d.Type == t {
			deps = append(deps, d)
		}
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].Key < deps[j].Key })
	return deps
}
