package colabsync

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	// VersionMajor represents the current major version of colabsync.
	VersionMajor = 1
	// VersionMinor represents the current minor version of colabsync.
	VersionMinor = 4
	// VersionPatch represents the current patch version of colabsync.
	VersionPatch = 0
	// VersionTag represents a tag to be appended to the version string. It must
	// not contain spaces. If empty, no tag is appended to the version string.
	VersionTag = ""
)

// Version provides a stringified version of the current colabsync version.
var Version string

func init() {
	// Compute the stringified version.
	if VersionTag != "" {
		Version = fmt.Sprintf("%d.%d.%d-%s", VersionMajor, VersionMinor, VersionPatch, VersionTag)
	} else {
		Version = fmt.Sprintf("%d.%d.%d", VersionMajor, VersionMinor, VersionPatch)
	}
}

// Compatibility describes how one version relates to the version that it was
// compared against.
type Compatibility uint8

const (
	// CompatibilityUnknown indicates that at least one of the versions could
	// not be interpreted.
	CompatibilityUnknown Compatibility = iota
	// CompatibilityOK indicates that the versions are protocol-compatible.
	CompatibilityOK
	// CompatibilityTooOld indicates that the version is too old to talk to the
	// other side.
	CompatibilityTooOld
	// CompatibilityTooNew indicates that the version is too new to talk to the
	// other side.
	CompatibilityTooNew
)

// String provides a human-readable representation of a compatibility.
func (c Compatibility) String() string {
	switch c {
	case CompatibilityUnknown:
		return "unknown"
	case CompatibilityOK:
		return "ok"
	case CompatibilityTooOld:
		return "too old"
	case CompatibilityTooNew:
		return "too new"
	default:
		return "invalid"
	}
}

// Invert converts a compatibility computed by the remote side into the
// equivalent statement from the local side. If the remote considers itself too
// old, then the local side is too new, and vice versa.
func (c Compatibility) Invert() Compatibility {
	switch c {
	case CompatibilityTooOld:
		return CompatibilityTooNew
	case CompatibilityTooNew:
		return CompatibilityTooOld
	default:
		return c
	}
}

// VersionInfo is the version information exchanged during session
// negotiation.
type VersionInfo struct {
	// Version is the stringified version of the sender.
	Version string
	// Compatibility is the compatibility of the sender's version computed
	// against the version of the receiver. It is unknown in requests.
	Compatibility Compatibility
}

// LocalVersionInfo returns version information for the running build with an
// unknown compatibility.
func LocalVersionInfo() VersionInfo {
	return VersionInfo{Version: Version}
}

// ParseVersion decodes a stringified version into its numeric components. Any
// tag suffix is ignored.
func ParseVersion(version string) (uint32, uint32, uint32, error) {
	// Strip any tag.
	if index := strings.IndexByte(version, '-'); index >= 0 {
		version = version[:index]
	}

	// Split into components.
	components := strings.Split(version, ".")
	if len(components) != 3 {
		return 0, 0, 0, errors.Errorf("invalid version format: %q", version)
	}

	// Parse each component.
	var parsed [3]uint32
	for c, component := range components {
		value, err := strconv.ParseUint(component, 10, 32)
		if err != nil {
			return 0, 0, 0, errors.Wrapf(err, "invalid version component %q", component)
		}
		parsed[c] = uint32(value)
	}

	// Success.
	return parsed[0], parsed[1], parsed[2], nil
}

// CompareVersions computes the compatibility of the local version against the
// remote version. Versions are compatible if they are equal at the minor
// release level.
func CompareVersions(local, remote string) Compatibility {
	// Parse both versions.
	localMajor, localMinor, _, err := ParseVersion(local)
	if err != nil {
		return CompatibilityUnknown
	}
	remoteMajor, remoteMinor, _, err := ParseVersion(remote)
	if err != nil {
		return CompatibilityUnknown
	}

	// Compare at the minor release level.
	switch {
	case localMajor == remoteMajor && localMinor == remoteMinor:
		return CompatibilityOK
	case localMajor < remoteMajor || (localMajor == remoteMajor && localMinor < remoteMinor):
		return CompatibilityTooOld
	default:
		return CompatibilityTooNew
	}
}
