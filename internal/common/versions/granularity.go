package versions

import (
	"fmt"
	"strconv"
)

// Granularity is the precision at which staleness is decided and at which
// a new version is written back.
type Granularity string

const (
	Full       Granularity = "full"
	MajorOnly  Granularity = "major_only"
	MajorMinor Granularity = "major_minor"
)

// ParseGranularity validates a version_format value. The empty string means Full.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(s); g {
	case "":
		return Full, nil
	case Full, MajorOnly, MajorMinor:
		return g, nil
	}
	return "", fmt.Errorf("unknown version format %q (want full, major_only or major_minor)", s)
}

// IsNewer reports whether latest should replace current under g. It never
// reports true for an equal or older version.
func IsNewer(latest, current Version, g Granularity) bool {
	switch g {
	case MajorOnly:
		return latest.Major() > current.Major()
	case MajorMinor:
		if latest.Major() != current.Major() {
			return latest.Major() > current.Major()
		}
		return latest.Minor() > current.Minor()
	default:
		return latest.Compare(current) > 0
	}
}

// Format renders v at granularity g: the full normalized string, the major
// number alone, or "major.minor". The full form is PEP 440 normalized for
// every source, so a semver pre-release such as "2.0.0-rc.1" is written as
// "2.0.0rc1".
func Format(v Version, g Granularity) string {
	switch g {
	case MajorOnly:
		return strconv.Itoa(v.Major())
	case MajorMinor:
		return fmt.Sprintf("%d.%d", v.Major(), v.Minor())
	default:
		return v.String()
	}
}
