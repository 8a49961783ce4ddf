package domain

import "fmt"

// Version is the (major, minor, patch) triple announced by the server on /echo.
type Version struct {
	Major int
	Minor int
	Patch int
}

// VersionUnknown is returned when the server is unreachable or its banner
// cannot be parsed. It compares lower than any real version.
var VersionUnknown = Version{Major: -1, Minor: -1, Patch: -1}

var (
	// V1Legacy is assigned to servers answering with the legacy "Ok" banner.
	V1Legacy = Version{Major: 1, Minor: 0, Patch: 0}
	// V2Threshold is the first version speaking the single-endpoint /torrents API.
	V2Threshold = Version{Major: 1, Minor: 2, Patch: 0}
	// MatrixBaseline is assigned to servers answering with the MatriX banner.
	MatrixBaseline = Version{Major: 2, Minor: 0, Patch: 0}
)

func NewVersion(major, minor, patch int) Version {
	return Version{Major: major, Minor: minor, Patch: patch}
}

func (v Version) Known() bool {
	return v.Major >= 0 && v.Minor >= 0 && v.Patch >= 0
}

// Compare returns -1, 0 or 1 comparing v to other lexicographically.
func (v Version) Compare(other Version) int {
	switch {
	case v.Major != other.Major:
		return sign(v.Major - other.Major)
	case v.Minor != other.Minor:
		return sign(v.Minor - other.Minor)
	default:
		return sign(v.Patch - other.Patch)
	}
}

func (v Version) AtLeast(other Version) bool {
	return v.Compare(other) >= 0
}

// IsV2 reports whether the server speaks the v2 API.
func (v Version) IsV2() bool {
	return v.Known() && v.AtLeast(V2Threshold)
}

func (v Version) String() string {
	if !v.Known() {
		return "unknown"
	}
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
