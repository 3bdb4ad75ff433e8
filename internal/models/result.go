package models

import (
	"fmt"
	"sort"
	"strings"
)

// Action describes what installing a resolved dependency involves
type Action string

const (
	ActionNone     Action = "none"
	ActionDownload Action = "download"
	ActionUpdate   Action = "update"
)

// ResolvedDependency is one classified entry of a dependency check
type ResolvedDependency struct {
	Key             string `json:"key"`
	RequiredVersion string `json:"requiredVersion"`
	Version         string `json:"version,omitempty"`
	Action          Action `json:"action"`
}

// ClassifiedDependencies groups resolved dependencies by type
type ClassifiedDependencies map[DependencyType][]ResolvedDependency

// Count returns the number of classified entries over all types
func (c ClassifiedDependencies) Count() int {
	n := 0
	for _, deps := range c {
		n += len(deps)
	}
	return n
}

// Add appends an entry, keeping each list sorted by key
func (c ClassifiedDependencies) Add(t DependencyType, dep ResolvedDependency) {
	list := append(c[t], dep)
	sort.SliceStable(list, func(i, j int) bool { return list[i].Key < list[j].Key })
	c[t] = list
}

// ErrorRecord is a single failure reported for an extension key
type ErrorRecord struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ErrorMap maps an extension key to its failures in the order they occurred
type ErrorMap map[string][]ErrorRecord

// Add records a failure for key
func (m ErrorMap) Add(key string, rec ErrorRecord) {
	m[key] = append(m[key], rec)
}

// Keys returns the failing keys sorted
func (m ErrorMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String joins all records into one line per failure
func (m ErrorMap) String() string {
	var lines []string
	for _, key := range m.Keys() {
		for _, rec := range m[key] {
			lines = append(lines, fmt.Sprintf("%s: %s", key, rec.Message))
		}
	}
	return strings.Join(lines, "\n")
}

// InstallReport is the installer's success token
type InstallReport struct {
	Downloaded []string `json:"downloaded,omitempty"`
	Updated    []string `json:"updated,omitempty"`
	Installed  []string `json:"installed,omitempty"`
}

// Contains reports whether key was downloaded, updated or installed
func (r InstallReport) Contains(key string) bool {
	for _, list := range [][]string{r.Downloaded, r.Updated, r.Installed} {
		for _, k := range list {
			if k == key {
				return true
			}
		}
	}
	return false
}

// InstallResult is the outcome of one install invocation. Report lists the
// work that completed, which is non-empty on partial failures too.
type InstallResult struct {
	Success bool          `json:"success"`
	Report  InstallReport `json:"report"`
}
