package dtre

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is the semantic version of a rule set. Versions are value
// types; the total order is lexicographic on (Major, Minor, Patch).
type Version struct {
	Major uint32
	Minor uint32
	Patch uint32
}

// NewVersion creates a Version.
func NewVersion(major, minor, patch uint32) Version {
	return Version{Major: major, Minor: minor, Patch: patch}
}

// ParseVersion parses "major.minor.patch".
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("invalid version %q: want major.minor.patch", s)
	}
	nums := make([]uint32, 3)
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
		}
		nums[i] = uint32(n)
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// String returns "major.minor.patch".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0, or 1 ordering v against other lexicographically
// on (Major, Minor, Patch).
func (v Version) Compare(other Version) int {
	switch {
	case v.Major != other.Major:
		return cmpUint32(v.Major, other.Major)
	case v.Minor != other.Minor:
		return cmpUint32(v.Minor, other.Minor)
	default:
		return cmpUint32(v.Patch, other.Patch)
	}
}

// Less reports whether v orders before other.
func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

// Compatible reports whether two versions share a major version.
func (v Version) Compatible(other Version) bool {
	return v.Major == other.Major
}

// IsZero reports whether v is the zero version 0.0.0.
func (v Version) IsZero() bool {
	return v == Version{}
}

func cmpUint32(a, b uint32) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
