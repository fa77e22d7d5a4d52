package allowlist

import "fmt"

// SourceKind is the upstream a tracked identifier is resolved against
type SourceKind string

const (
	SourceRelease  SourceKind = "release"
	SourceTag      SourceKind = "tag"
	SourceNPM      SourceKind = "npm"
	SourcePyPI     SourceKind = "pypi"
	SourceCustom   SourceKind = "custom"
	SourceHomebrew SourceKind = "homebrew"
)

// Source is the closed set of upstream configurations. Dispatch with a type
// switch over the concrete types below.
type Source interface {
	Kind() SourceKind
	isSource()
}

// GitHubSource resolves against the releases or tags of a repository
type GitHubSource struct {
	Repo string
	// Tags selects the tags endpoint instead of releases
	Tags bool
	// FeatureName filters feature_<name>_<version> tags
	FeatureName string
}

func (s GitHubSource) Kind() SourceKind {
	if s.Tags {
		return SourceTag
	}
	return SourceRelease
}

// NPMSource resolves against the npm registry
type NPMSource struct {
	Package string
}

func (NPMSource) Kind() SourceKind { return SourceNPM }

// PyPISource resolves against the PyPI JSON API
type PyPISource struct {
	Package string
}

func (PyPISource) Kind() SourceKind { return SourcePyPI }

// ParserConfig extracts a version from a structured page.
// Type is "json" (Path), "regex" (Pattern) or "html" (Selector or XPath,
// with Pattern as optional post-processing).
type ParserConfig struct {
	Type     string `json:"type"`
	Path     string `json:"path,omitempty"`
	Pattern  string `json:"pattern,omitempty"`
	Selector string `json:"selector,omitempty"`
	XPath    string `json:"xpath,omitempty"`
}

// CustomSource reads a bare version string, or a version extracted by
// Parser, from an arbitrary URL
type CustomSource struct {
	URL     string
	Parser  *ParserConfig
	Headers map[string]string
}

func (CustomSource) Kind() SourceKind { return SourceCustom }

// HomebrewSource is a read-only formula or cask lookup
type HomebrewSource struct {
	Formula     string
	Cask        bool
	Description string
}

func (HomebrewSource) Kind() SourceKind { return SourceHomebrew }

// Type returns "cask" or "formula", the segment used by the formulae API
func (s HomebrewSource) Type() string {
	if s.Cask {
		return "cask"
	}
	return "formula"
}

func (GitHubSource) isSource()   {}
func (NPMSource) isSource()      {}
func (PyPISource) isSource()     {}
func (CustomSource) isSource()   {}
func (HomebrewSource) isSource() {}

// Describe renders a source for log lines, e.g. "release actions/checkout"
func Describe(src Source) string {
	switch s := src.(type) {
	case GitHubSource:
		return fmt.Sprintf("%s %s", s.Kind(), s.Repo)
	case NPMSource:
		return "npm " + s.Package
	case PyPISource:
		return "pypi " + s.Package
	case CustomSource:
		return "custom " + s.URL
	case HomebrewSource:
		return s.Type() + " " + s.Formula
	}
	return string(src.Kind())
}
