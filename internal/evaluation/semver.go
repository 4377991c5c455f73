package evaluation

import (
	"regexp"
	"strconv"
	"strings"
)

// versionPattern accepts major.minor(.patch(-prerelease)?)? where a
// prerelease is a series of dot separated identifiers.
var versionPattern = regexp.MustCompile(`^(\d+)\.(\d+)(\.(\d+)(-(([-\w]+\.?)*))?)?$`)

// Version is a parsed semantic version.
type Version struct {
	Major int32
	Minor int32
	Patch int32
	// PreRelease keeps its leading hyphen, e.g. "-rc.1". Empty means a release.
	PreRelease string
}

// ParseVersion parses s. It reports false when s is not a version.
//
// Major and minor must fit a signed 32-bit integer. A patch that does not fit
// is treated as 0.
func ParseVersion(s string) (Version, bool) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return Version{}, false
	}

	major, err := strconv.ParseInt(m[1], 10, 32)
	if err != nil {
		return Version{}, false
	}
	minor, err := strconv.ParseInt(m[2], 10, 32)
	if err != nil {
		return Version{}, false
	}
	patch, err := strconv.ParseInt(m[4], 10, 32)
	if err != nil {
		patch = 0
	}

	return Version{
		Major:      int32(major),
		Minor:      int32(minor),
		Patch:      int32(patch),
		PreRelease: m[5],
	}, true
}

// Compare returns -1, 0 or 1. A prerelease sorts before the same version
// without one; two prereleases compare as plain strings.
func (v Version) Compare(other Version) int {
	switch {
	case v.Major != other.Major:
		return cmpInt32(v.Major, other.Major)
	case v.Minor != other.Minor:
		return cmpInt32(v.Minor, other.Minor)
	case v.Patch != other.Patch:
		return cmpInt32(v.Patch, other.Patch)
	case v.PreRelease != "" && other.PreRelease == "":
		return -1
	case v.PreRelease == "" && other.PreRelease != "":
		return 1
	default:
		return strings.Compare(v.PreRelease, other.PreRelease)
	}
}

// String formats the version back into major.minor.patch[-prerelease].
func (v Version) String() string {
	return strconv.Itoa(int(v.Major)) + "." + strconv.Itoa(int(v.Minor)) + "." +
		strconv.Itoa(int(v.Patch)) + v.PreRelease
}

func cmpInt32(a, b int32) int {
	if a < b {
		return -1
	}
	return 1
}
