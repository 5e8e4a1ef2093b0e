// Package version holds the statlink protocol version and build information.
package version

import (
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
)

// Current is the protocol version spoken by this module.
const Current = "1.0"

// ProtocolVersion is a parsed "major.minor" version.
type ProtocolVersion struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string.
func Parse(s string) (ProtocolVersion, error) {
	majorStr, minorStr, ok := strings.Cut(s, ".")
	if !ok || strings.Contains(minorStr, ".") {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	major, err := strconv.ParseUint(majorStr, 10, 16)
	if err != nil {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: bad major component", s)
	}
	minor, err := strconv.ParseUint(minorStr, 10, 16)
	if err != nil {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	return ProtocolVersion{Major: uint16(major), Minor: uint16(minor)}, nil
}

// String returns the version as "major.minor".
func (v ProtocolVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible reports whether two parseable versions share a major version.
func Compatible(a, b string) bool {
	va, err := Parse(a)
	if err != nil {
		return false
	}
	vb, err := Parse(b)
	if err != nil {
		return false
	}
	return va.Major == vb.Major
}

// Build returns the main module version recorded by the Go toolchain,
// or "devel" when unavailable.
func Build() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "devel"
	}
	return info.Main.Version
}
