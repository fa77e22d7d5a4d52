package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/Masterminds/semver/v3"

	"github.com/obentoo/upkeep/internal/allowlist"
	"github.com/obentoo/upkeep/internal/common/logger"
	"github.com/obentoo/upkeep/internal/common/versions"
)

// npmDocument is the subset of a registry packument that is read
type npmDocument struct {
	DistTags map[string]string          `json:"dist-tags"`
	Versions map[string]json.RawMessage `json:"versions"`
}

// pypiDocument is the subset of the PyPI JSON API that is read
type pypiDocument struct {
	Info struct {
		Version string `json:"version"`
	} `json:"info"`
	Releases map[string][]pypiFile `json:"releases"`
}

type pypiFile struct {
	Yanked bool `json:"yanked"`
}

func allowsSemver(c allowlist.Constraints, v *semver.Version) bool {
	if !c.IncludePrerelease && v.Prerelease() != "" {
		return false
	}
	if c.MaxMajor != nil && v.Major() > uint64(*c.MaxMajor) {
		return false
	}
	return true
}

// fetchNPM prefers dist-tags.latest and falls back to the highest version
// key that satisfies the constraints
func (r *Registry) fetchNPM(ctx context.Context, q NPMQuery) (*ReleaseInfo, error) {
	var doc npmDocument
	endpoint := r.npmURL + "/" + url.PathEscape(q.Package)
	if err := r.http.FetchJSON(ctx, endpoint, nil, &doc); err != nil {
		return nil, fmt.Errorf("npm %s: %w", q.Package, err)
	}

	if latest := doc.DistTags["latest"]; latest != "" && !q.Constraints.IncludePrerelease {
		if sv, err := semver.NewVersion(latest); err != nil {
			logger.Warn("Invalid dist-tags.latest for npm package %s: %s", q.Package, latest)
		} else if allowsSemver(q.Constraints, sv) {
			if v, err := versions.Parse(latest); err == nil {
				return candidate(latest, v), nil
			}
		} else {
			logger.Debug("npm %s latest %s fails constraints, scanning versions", q.Package, latest)
		}
	}

	var best *semver.Version
	var bestVersion versions.Version
	for key := range doc.Versions {
		sv, err := semver.NewVersion(key)
		if err != nil {
			logSkip("npm "+q.Package, key, "not semver")
			continue
		}
		if !allowsSemver(q.Constraints, sv) {
			continue
		}
		v, err := versions.Parse(key)
		if err != nil {
			logSkip("npm "+q.Package, key, "not orderable")
			continue
		}
		if best == nil || sv.Compare(best) > 0 {
			best, bestVersion = sv, v
		}
	}
	if best == nil {
		return nil, nil
	}
	return candidate(best.Original(), bestVersion), nil
}

// fetchPyPI prefers info.version and falls back to the highest release with
// at least one non-yanked file
func (r *Registry) fetchPyPI(ctx context.Context, q PyPIQuery) (*ReleaseInfo, error) {
	var doc pypiDocument
	endpoint := fmt.Sprintf("%s/pypi/%s/json", r.pypiURL, url.PathEscape(q.Package))
	if err := r.http.FetchJSON(ctx, endpoint, nil, &doc); err != nil {
		return nil, fmt.Errorf("pypi %s: %w", q.Package, err)
	}

	if latest := doc.Info.Version; latest != "" && !q.Constraints.IncludePrerelease {
		if v, err := versions.Parse(latest); err != nil {
			logger.Warn("Invalid info.version for PyPI package %s: %s", q.Package, latest)
		} else if q.Constraints.Allows(v) {
			return candidate(latest, v), nil
		} else {
			logger.Debug("PyPI %s latest %s fails constraints, scanning releases", q.Package, latest)
		}
	}

	var live []versions.Version
	for key, files := range doc.Releases {
		if !hasLiveFile(files) {
			logSkip("pypi "+q.Package, key, "no files or all yanked")
			continue
		}
		v, err := versions.Parse(key)
		if err != nil {
			logSkip("pypi "+q.Package, key, "not PEP 440")
			continue
		}
		if !q.Constraints.Allows(v) {
			continue
		}
		live = append(live, v)
	}
	best, ok := versions.Max(live)
	if !ok {
		return nil, nil
	}
	return candidate(best.Original(), best), nil
}

func hasLiveFile(files []pypiFile) bool {
	for _, f := range files {
		if !f.Yanked {
			return true
		}
	}
	return false
}

// HomebrewVersion returns the stable version of a formula or cask. It is
// informational only and memoized like the other lookups.
func (r *Registry) HomebrewVersion(ctx context.Context, q HomebrewQuery) (string, error) {
	key := q.Key()
	if entry, ok := r.cache.Get(key); ok {
		return entry.Version, nil
	}

	kind := "formula"
	if q.Cask {
		kind = "cask"
	}
	var doc struct {
		Version  string `json:"version"`
		Versions struct {
			Stable string `json:"stable"`
		} `json:"versions"`
	}
	endpoint := fmt.Sprintf("%s/api/%s/%s.json", r.homebrewURL, kind, url.PathEscape(q.Formula))
	if err := r.http.FetchJSON(ctx, endpoint, nil, &doc); err != nil {
		return "", fmt.Errorf("homebrew %s %s: %w", kind, q.Formula, err)
	}

	version := doc.Versions.Stable
	if q.Cask {
		version = doc.Version
	}
	if version == "" {
		return "", fmt.Errorf("%w: homebrew %s %s", ErrNoVersion, kind, q.Formula)
	}

	r.cache.Set(key, CacheEntry{Version: version})
	return version, nil
}

// fetchCustom reads a bare version, or runs the configured parser over the
// page, then applies the constraints
func (r *Registry) fetchCustom(ctx context.Context, q CustomQuery) (*ReleaseInfo, error) {
	var parser Parser
	if q.Parser != nil {
		p, err := NewParser(q.Parser)
		if err != nil {
			return nil, fmt.Errorf("custom %s: %w", q.URL, err)
		}
		parser = p
	}

	text, err := r.http.FetchText(ctx, q.URL, q.Headers)
	if err != nil {
		return nil, fmt.Errorf("custom %s: %w", q.URL, err)
	}

	if parser != nil {
		if text, err = parser.Parse([]byte(text)); err != nil {
			return nil, fmt.Errorf("custom %s: %w", q.URL, err)
		}
	}

	v, err := versions.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: custom %s returned %q", ErrNoVersion, q.URL, text)
	}
	if !q.Constraints.Allows(v) {
		logSkip(q.URL, text, "outside constraints")
		return nil, nil
	}
	return candidate(text, v), nil
}
