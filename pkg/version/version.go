package version

import (
	"fmt"
	"strconv"
)

// Version identifies a point in the evolution of a serialized type.
type Version uint16

const (
	// Unversioned is reserved. As a range start it means the field or
	// variant has always been present.
	Unversioned Version = 0
	// Initial is the first real version of every type.
	Initial Version = 1
	// Max is the largest representable version.
	Max Version = ^Version(0)
)

// Parse parses a decimal version number.
func Parse(s string) (Version, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", s, err)
	}
	return Version(n), nil
}

func (v Version) String() string {
	return strconv.FormatUint(uint64(v), 10)
}

// Selector picks the version a type is serialized at within one
// encode or decode pass.
type Selector interface {
	VersionOf(typeName string) Version
}

// Fixed is a Selector that threads the same version into every type.
type Fixed Version

func (f Fixed) VersionOf(string) Version { return Version(f) }
