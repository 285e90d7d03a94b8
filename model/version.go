package model

import (
	"fmt"
	"strconv"
	"strings"
)

// VersionTerm names the component of a semantic version to bump.
type VersionTerm string

const (
	TermMajor VersionTerm = "major"
	TermMinor VersionTerm = "minor"
	TermPatch VersionTerm = "patch"
)

// Version is a semver-like major.minor[.patch] version. Trains that use
// two-component versions keep HasPatch false and render "1.2".
type Version struct {
	Major    int
	Minor    int
	Patch    int
	HasPatch bool
}

// ParseVersion parses "major.minor" or "major.minor.patch". Malformed
// versions are rejected here, at train-creation time; bump operations
// assume a valid seed.
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 2 || len(parts) > 3 {
		return Version{}, fmt.Errorf("version %q: want major.minor or major.minor.patch", s)
	}
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || (len(p) > 1 && p[0] == '0') {
			return Version{}, fmt.Errorf("version %q: component %q is not a valid number", s, p)
		}
		nums[i] = n
	}
	v := Version{Major: nums[0], Minor: nums[1]}
	if len(nums) == 3 {
		v.Patch = nums[2]
		v.HasPatch = true
	}
	return v, nil
}

func (v Version) String() string {
	if v.HasPatch {
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	}
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Bump returns a copy with the named term incremented and every lower
// term reset to zero.
func (v Version) Bump(term VersionTerm) Version {
	next := v
	switch term {
	case TermMajor:
		next.Major++
		next.Minor = 0
		next.Patch = 0
	case TermMinor:
		next.Minor++
		next.Patch = 0
	case TermPatch:
		next.Patch++
		next.HasPatch = true
	}
	return next
}

// Less reports whether v orders strictly before other.
func (v Version) Less(other Version) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	if v.Minor != other.Minor {
		return v.Minor < other.Minor
	}
	return v.Patch < other.Patch
}

func (v Version) Equal(other Version) bool {
	return v.Major == other.Major && v.Minor == other.Minor && v.Patch == other.Patch
}
