package workflows

import (
	"regexp"
	"strings"

	"github.com/obentoo/upkeep/internal/common/versions"
)

var commitPattern = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// Ref is the part of a `uses:` value after "@"
type Ref struct {
	Raw string
	// SHA is set when the ref is a full commit hash
	SHA string
	// Tag is the ref itself, or for a hash the tag named by its comment
	Tag string
	// Version is the version Tag parses to, zero when it does not parse
	Version versions.Version
}

// ParseRef classifies ref as a direct tag or a commit hash. For a hash the
// end-of-line comment supplies the tag, e.g. "# v4.1.0".
func ParseRef(ref, comment string) Ref {
	r := Ref{Raw: ref}
	if commitPattern.MatchString(ref) {
		r.SHA = ref
		r.Tag = commentTag(comment)
	} else {
		r.Tag = strings.TrimPrefix(ref, "refs/tags/")
	}
	if r.Tag != "" {
		if v, err := versions.Parse(r.Tag); err == nil {
			r.Version = v
		}
	}
	return r
}

// Pinned reports whether the ref is a commit hash
func (r Ref) Pinned() bool {
	return r.SHA != ""
}

// Orderable reports whether the ref carries a comparable version
func (r Ref) Orderable() bool {
	return !r.Version.IsZero()
}

// Display renders the ref for log and console output
func (r Ref) Display() string {
	if r.Pinned() {
		return Display(r.SHA, r.Tag)
	}
	return r.Raw
}

// Display renders a reference as "short-hash (tag)" when it is pinned and
// as the bare tag otherwise.
func Display(sha, tag string) string {
	switch {
	case sha == "":
		return tag
	case tag == "":
		return shortSHA(sha)
	}
	return shortSHA(sha) + " (" + tag + ")"
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

// commentTag returns the first word of a "# tag" comment
func commentTag(comment string) string {
	fields := strings.Fields(strings.TrimLeft(strings.TrimSpace(comment), "#"))
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimPrefix(fields[0], "refs/tags/")
}
