package index

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// compareVersions orders two version strings by semantic version. Strings
// that do not parse sort before valid versions and are compared as text.
func compareVersions(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	switch {
	case errA == nil && errB == nil:
		return va.Compare(vb)
	case errA != nil && errB == nil:
		return -1
	case errA == nil && errB != nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
