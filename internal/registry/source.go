package registry

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/obentoo/upkeep/internal/allowlist"
)

// Source is a fully specified upstream query. Key identifies the query
// for memoization: two sources with equal keys always resolve identically
// within one run.
type Source interface {
	Key() string
	isSource()
}

// GitHubQuery resolves the first qualifying release or tag of a repository
type GitHubQuery struct {
	Repo        string
	Tags        bool
	FeatureName string
	Constraints allowlist.Constraints
	PinToSHA    bool
}

// NPMQuery resolves an npm package
type NPMQuery struct {
	Package     string
	Constraints allowlist.Constraints
}

// PyPIQuery resolves a PyPI project
type PyPIQuery struct {
	Package     string
	Constraints allowlist.Constraints
}

// CustomQuery reads a version from an arbitrary endpoint
type CustomQuery struct {
	URL         string
	Parser      *allowlist.ParserConfig
	Headers     map[string]string
	Constraints allowlist.Constraints
}

// HomebrewQuery looks up the stable version of a formula or cask
type HomebrewQuery struct {
	Formula string
	Cask    bool
}

func (GitHubQuery) isSource() {}
func (NPMQuery) isSource()    {}
func (PyPIQuery) isSource()   {}
func (CustomQuery) isSource() {}

func constraintsKey(c allowlist.Constraints) string {
	major := "-"
	if c.MaxMajor != nil {
		major = strconv.Itoa(*c.MaxMajor)
	}
	return fmt.Sprintf("pre=%t,max=%s", c.IncludePrerelease, major)
}

func (q GitHubQuery) Key() string {
	kind := "releases"
	if q.Tags {
		kind = "tags"
	}
	return fmt.Sprintf("github:%s:%s:feature=%s:%s:sha=%t", kind, q.Repo, q.FeatureName, constraintsKey(q.Constraints), q.PinToSHA)
}

func (q NPMQuery) Key() string {
	return fmt.Sprintf("npm:%s:%s", q.Package, constraintsKey(q.Constraints))
}

func (q PyPIQuery) Key() string {
	return fmt.Sprintf("pypi:%s:%s", q.Package, constraintsKey(q.Constraints))
}

func (q CustomQuery) Key() string {
	var b strings.Builder
	fmt.Fprintf(&b, "custom:%s:%s", q.URL, constraintsKey(q.Constraints))
	if q.Parser != nil {
		fmt.Fprintf(&b, ":parser=%s|%s|%s|%s|%s", q.Parser.Type, q.Parser.Path, q.Parser.Pattern, q.Parser.Selector, q.Parser.XPath)
	}
	names := make([]string, 0, len(q.Headers))
	for name := range q.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, ":%s=%s", name, q.Headers[name])
	}
	return b.String()
}

func (q HomebrewQuery) Key() string {
	kind := "formula"
	if q.Cask {
		kind = "cask"
	}
	return "homebrew:" + kind + ":" + q.Formula
}

// SourceFor builds the query for an allowlist entry. Homebrew entries have
// no ReleaseInfo query and return false.
func SourceFor(entry allowlist.Entry) (Source, bool) {
	switch src := entry.Source.(type) {
	case allowlist.GitHubSource:
		return GitHubQuery{
			Repo:        src.Repo,
			Tags:        src.Tags,
			FeatureName: src.FeatureName,
			Constraints: entry.Constraints,
			PinToSHA:    entry.PinToSHA,
		}, true
	case allowlist.NPMSource:
		return NPMQuery{Package: src.Package, Constraints: entry.Constraints}, true
	case allowlist.PyPISource:
		return PyPIQuery{Package: src.Package, Constraints: entry.Constraints}, true
	case allowlist.CustomSource:
		return CustomQuery{URL: src.URL, Parser: src.Parser, Headers: src.Headers, Constraints: entry.Constraints}, true
	}
	return nil, false
}

// HomebrewQueryFor builds the lookup for a homebrew allowlist entry
func HomebrewQueryFor(entry allowlist.Entry) (HomebrewQuery, bool) {
	src, ok := entry.Source.(allowlist.HomebrewSource)
	if !ok {
		return HomebrewQuery{}, false
	}
	return HomebrewQuery{Formula: src.Formula, Cask: src.Cask}, true
}
