package flexrc

import "github.com/kolkov/flexrc/internal/rc/algorithm"

// Version information for flexrc.
const (
	// Version is the current version of the flexrc library.
	Version = "0.1.0"

	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 1

	// VersionPatch is the patch version number.
	VersionPatch = 0
)

// Info describes the build configuration of the library.
type Info struct {
	// Version is the library version string.
	Version string

	// CounterBits is the width of the independent scheme's counter word
	// (64 by default, 32 with the flexrc_narrow build tag).
	CounterBits int

	// Schemes lists the available counting schemes.
	Schemes []string
}

// GetInfo returns information about the library build.
//
// Example:
//
//	info := flexrc.GetInfo()
//	fmt.Printf("flexrc %s (%d-bit counters)\n", info.Version, info.CounterBits)
func GetInfo() Info {
	return Info{
		Version:     Version,
		CounterBits: algorithm.CountBits,
		Schemes:     []string{"independent", "hybrid", "tracked"},
	}
}
