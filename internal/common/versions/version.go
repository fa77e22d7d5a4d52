// Package versions provides the ordered version type shared by every
// registry and rewriter, together with granularity-aware comparison.
package versions

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	pep440 "github.com/aquasecurity/go-pep440-version"
)

var ErrInvalidVersion = errors.New("invalid version")

// Version is a parsed, totally ordered version. Ordering follows PEP 440,
// which also accepts plain semver strings such as "1.2.3" or "v2.0.0-rc.1".
type Version struct {
	pv      pep440.Version
	release []int
}

// Parse parses s after trimming surrounding whitespace. A leading "v" or "V"
// is accepted.
func Parse(s string) (Version, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Version{}, fmt.Errorf("%w: empty string", ErrInvalidVersion)
	}

	pv, err := pep440.Parse(trimmed)
	if err != nil {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}

	base := pv.BaseVersion()
	if i := strings.Index(base, "!"); i >= 0 {
		base = base[i+1:]
	}
	var release []int
	for _, p := range strings.Split(base, ".") {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
		}
		release = append(release, n)
	}

	return Version{pv: pv, release: release}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the normalized form, e.g. "v1.3.0" -> "1.3.0", "2.0.0-rc.1" -> "2.0.0rc1"
func (v Version) String() string {
	return v.pv.String()
}

// Original returns the string the version was parsed from
func (v Version) Original() string {
	return v.pv.Original()
}

// IsZero reports whether v is the zero value
func (v Version) IsZero() bool {
	return len(v.release) == 0
}

// Major returns the first release component
func (v Version) Major() int {
	return v.component(0)
}

// Minor returns the second release component, or 0 when absent
func (v Version) Minor() int {
	return v.component(1)
}

func (v Version) component(i int) int {
	if i < len(v.release) {
		return v.release[i]
	}
	return 0
}

// IsPrerelease reports whether v carries a pre-release or dev segment
func (v Version) IsPrerelease() bool {
	return v.pv.IsPreRelease()
}

// Compare returns -1, 0 or 1 when v is lower than, equal to or greater than o
func (v Version) Compare(o Version) int {
	return v.pv.Compare(o.pv)
}

// GreaterThan reports whether v sorts strictly after o
func (v Version) GreaterThan(o Version) bool {
	return v.Compare(o) > 0
}

// Max returns the greatest of vs, or false when vs is empty
func Max(vs []Version) (Version, bool) {
	if len(vs) == 0 {
		return Version{}, false
	}
	best := vs[0]
	for _, v := range vs[1:] {
		if v.GreaterThan(best) {
			best = v
		}
	}
	return best, true
}
