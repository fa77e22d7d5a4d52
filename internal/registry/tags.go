package registry

import (
	"regexp"
	"strings"

	"github.com/obentoo/upkeep/internal/common/versions"
)

var (
	featureTagPattern  = regexp.MustCompile(`^feature_(.+)_([^_]+)$`)
	prefixedTagPattern = regexp.MustCompile(`^(.*?)-v?(\d.*)$`)
)

// NormalizeTag extracts the version carried by a release or tag name. The
// recognized shapes are tried in order: plain semver with an optional "v"
// (after stripping "refs/tags/"), feature_<name>_<version>, and
// <prefix>-<version>. When featureName is set only feature_<featureName>_
// tags qualify. The returned tag is the name without "refs/tags/".
func NormalizeTag(name, featureName string) (tag string, v versions.Version, ok bool) {
	tag = strings.TrimPrefix(strings.TrimSpace(name), "refs/tags/")
	if tag == "" {
		return "", versions.Version{}, false
	}

	if featureName != "" {
		m := featureTagPattern.FindStringSubmatch(tag)
		if m == nil || m[1] != featureName {
			return "", versions.Version{}, false
		}
		v, err := versions.Parse(m[2])
		return tag, v, err == nil
	}

	if v, err := versions.Parse(tag); err == nil {
		return tag, v, true
	}

	if m := featureTagPattern.FindStringSubmatch(tag); m != nil {
		if v, err := versions.Parse(m[2]); err == nil {
			return tag, v, true
		}
	}

	if m := prefixedTagPattern.FindStringSubmatch(tag); m != nil {
		if v, err := versions.Parse(m[2]); err == nil {
			return tag, v, true
		}
	}

	return "", versions.Version{}, false
}
