// Package downloads keeps version strings and checksums in plain-text
// manifests in step with their upstream releases.
package downloads

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/obentoo/upkeep/internal/common/logger"
	"github.com/obentoo/upkeep/internal/common/versions"
)

// Named capture groups a target pattern must define
const (
	VersionGroup  = "version"
	ChecksumGroup = "sha256"
)

var (
	// ErrInvalidPattern is returned for a target pattern that does not compile
	ErrInvalidPattern = errors.New("invalid target pattern")
	// ErrMissingGroup is returned when a pattern lacks its named capture group
	ErrMissingGroup = errors.New("pattern lacks required named group")
)

// Compile compiles pattern in multiline mode and checks that it defines the
// named group.
func Compile(pattern, group string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?m)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	if re.SubexpIndex(group) < 0 {
		return nil, fmt.Errorf("%w %q: %s", ErrMissingGroup, group, pattern)
	}
	return re, nil
}

// Result is the outcome of rewriting one pattern over a text
type Result struct {
	Text         string
	Replacements int
	// Previous is the first replaced value, in processing order
	Previous string
	// Updated is the value written in place of every replaced capture
	Updated string
}

// Changed reports whether at least one capture was replaced
func (r Result) Changed() bool {
	return r.Replacements > 0
}

// Rewrite replaces every "version" capture of re in text that is older than
// latest under g. Matches are processed last to first so earlier offsets
// stay valid. Only the bytes of the capture change.
func Rewrite(text string, re *regexp.Regexp, latest versions.Version, g versions.Granularity) Result {
	res := Result{Text: text}
	group := re.SubexpIndex(VersionGroup)
	if group < 0 {
		return res
	}

	formatted := versions.Format(latest, g)
	out := text
	matches := re.FindAllStringSubmatchIndex(text, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		start, end := matches[i][2*group], matches[i][2*group+1]
		if start < 0 {
			continue
		}
		raw := text[start:end]
		current, err := versions.Parse(raw)
		if err != nil {
			logger.Warn("Current version not parseable: %q", raw)
			continue
		}
		if !versions.IsNewer(latest, current, g) {
			logger.Debug("Already up to date: %s >= %s (%s)", raw, latest, g)
			continue
		}

		if res.Replacements == 0 {
			res.Previous = raw
		}
		out = out[:start] + formatted + out[end:]
		res.Replacements++
	}

	if res.Replacements > 0 {
		res.Text = out
		res.Updated = formatted
	}
	return res
}

// ChecksumResult is the outcome of ReplaceChecksum
type ChecksumResult struct {
	Text string
	// Matches counts every match of the pattern; only the first is used
	Matches  int
	Previous string
	Changed  bool
}

// ReplaceChecksum replaces the "sha256" capture of the first match of re
// with checksum when the two differ.
func ReplaceChecksum(text string, re *regexp.Regexp, checksum string) ChecksumResult {
	res := ChecksumResult{Text: text}
	group := re.SubexpIndex(ChecksumGroup)
	if group < 0 {
		return res
	}

	matches := re.FindAllStringSubmatchIndex(text, -1)
	res.Matches = len(matches)
	if len(matches) == 0 {
		return res
	}

	start, end := matches[0][2*group], matches[0][2*group+1]
	if start < 0 {
		return res
	}
	res.Previous = text[start:end]
	if res.Previous == checksum {
		return res
	}

	res.Text = text[:start] + checksum + text[end:]
	res.Changed = true
	return res
}
