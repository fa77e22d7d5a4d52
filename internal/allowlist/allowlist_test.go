package allowlist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/obentoo/upkeep/internal/common/versions"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func intPtr(i int) *int { return &i }

func TestLoadMissingFileIsEmpty(t *testing.T) {
	al := Load(t.TempDir(), Downloads)
	require.Equal(t, 0, al.Len())
	require.Empty(t, al.Path)
}

func TestLoadMalformedFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "github_actions.json", `{"actions/checkout": `)

	require.Equal(t, 0, Load(dir, Actions).Len())

	_, err := LoadFile(filepath.Join(dir, "github_actions.json"), Actions)
	require.Error(t, err)
	require.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
}

func TestLoadNonObjectIsEmpty(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "homebrew.json", `["jq", "yq"]`)

	require.Equal(t, 0, Load(dir, Homebrew).Len())
}

func TestLoadActions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "github_actions.json", `{
		"actions/checkout": {"repo": "actions/checkout", "pin_to_sha": true},
		"docker/build-push-action": {"repo": "docker/build-push-action", "source": "tag", "max_major": 5, "include_prerelease": true},
		"broken/no-repo": {"source": "release"}
	}`)

	al := Load(dir, Actions)
	require.Equal(t, 2, al.Len())
	require.Contains(t, al.Skipped, "broken/no-repo")

	checkout, ok := al.Get("actions/checkout")
	require.True(t, ok)
	require.Equal(t, GitHubSource{Repo: "actions/checkout"}, checkout.Source)
	require.Equal(t, SourceRelease, checkout.Source.Kind())
	require.True(t, checkout.PinToSHA)
	require.Equal(t, versions.Full, checkout.Format)

	docker, _ := al.Get("docker/build-push-action")
	require.Equal(t, SourceTag, docker.Source.Kind())
	require.Equal(t, Constraints{IncludePrerelease: true, MaxMajor: intPtr(5)}, docker.Constraints)

	var ids []string
	for _, e := range al.Entries() {
		ids = append(ids, e.Identifier)
	}
	if diff := cmp.Diff([]string{"actions/checkout", "docker/build-push-action"}, ids); diff != "" {
		t.Errorf("Entries() order mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDownloadsSources(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "downloads.json", `{
		"node": {
			"source": "npm", "package": "npm", "version_format": "major_only",
			"targets": [{"file": "Dockerfile", "pattern": "NODE_VERSION=(?P<version>[0-9.]+)"}]
		},
		"ruff": {
			"source": "pypi", "package": "ruff",
			"targets": [{"file": "pyproject.toml", "patterns": ["ruff==(?P<version>[0-9.]+)"]}]
		},
		"claude": {
			"source": "custom", "stable_version_url": "https://example.com/stable",
			"manifest_url_template": "https://example.com/{version}/manifest.json",
			"platform": "linux-x64",
			"targets": [
				{"file": "install.sh", "patterns": ["V=(?P<version>\\S+)"], "sha256_pattern": "SHA=(?P<sha256>[a-f0-9]{64})"},
				{"file": "other.sh", "patterns": ["V=(?P<version>\\S+)"], "platform": "darwin-arm64"}
			]
		},
		"kubectl": {
			"repo": "kubernetes/kubernetes", "feature_name": "kubectl",
			"download_url_template": "https://dl.k8s.io/v{version}/kubectl",
			"targets": [{"file": "tools.env", "patterns": ["KUBECTL=(?P<version>[0-9.]+)"]}]
		},
		"npm-without-package": {"source": "npm", "targets": []},
		"bad-format": {"repo": "o/r", "version_format": "minor_only", "targets": []}
	}`)

	al := Load(dir, Downloads)
	require.Equal(t, 4, al.Len())
	require.Contains(t, al.Skipped, "npm-without-package")
	require.Contains(t, al.Skipped, "bad-format")

	node, _ := al.Get("node")
	require.Equal(t, NPMSource{Package: "npm"}, node.Source)
	require.Equal(t, versions.MajorOnly, node.Format)
	require.Equal(t, []string{"NODE_VERSION=(?P<version>[0-9.]+)"}, node.Targets[0].Patterns)

	ruff, _ := al.Get("ruff")
	require.Equal(t, PyPISource{Package: "ruff"}, ruff.Source)

	claude, _ := al.Get("claude")
	require.Equal(t, CustomSource{URL: "https://example.com/stable"}, claude.Source)
	require.Equal(t, "linux-x64", claude.Targets[0].Platform)
	require.Equal(t, "https://example.com/{version}/manifest.json", claude.Targets[0].ManifestURLTemplate)
	require.Equal(t, "darwin-arm64", claude.Targets[1].Platform)

	kubectl, _ := al.Get("kubectl")
	require.Equal(t, GitHubSource{Repo: "kubernetes/kubernetes", FeatureName: "kubectl"}, kubectl.Source)
	require.Equal(t, "https://dl.k8s.io/v{version}/kubectl", kubectl.Targets[0].DownloadURLTemplate)
}

func TestLoadCustomParserAndHeaders(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "downloads.json", `{
		"tool": {
			"source": "custom", "url": "https://example.com/releases",
			"headers": {"Authorization": "Bearer ${TOOL_TOKEN}"},
			"parser": {"type": "html", "selector": "span.version"},
			"targets": [{"file": "a.txt", "patterns": ["(?P<version>.+)"]}]
		}
	}`)

	entry, ok := Load(dir, Downloads).Get("tool")
	require.True(t, ok)
	want := CustomSource{
		URL:     "https://example.com/releases",
		Parser:  &ParserConfig{Type: "html", Selector: "span.version"},
		Headers: map[string]string{"Authorization": "Bearer ${TOOL_TOKEN}"},
	}
	if diff := cmp.Diff(want, entry.Source); diff != "" {
		t.Errorf("source mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadHomebrew(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "homebrew.json", `{
		"kubectl": {"formula": "kubernetes-cli", "description": "Kubernetes CLI"},
		"claude": {"formula": "claude-code", "type": "cask", "skip_version_check": true},
		"nameless": {"type": "formula"}
	}`)

	al := Load(dir, Homebrew)
	require.Equal(t, 2, al.Len())

	kubectl, _ := al.Get("kubectl")
	require.Equal(t, HomebrewSource{Formula: "kubernetes-cli", Description: "Kubernetes CLI"}, kubectl.Source)
	require.Equal(t, "formula", kubectl.Source.(HomebrewSource).Type())

	claude, _ := al.Get("claude")
	require.Equal(t, "cask", claude.Source.(HomebrewSource).Type())
	require.True(t, claude.SkipVersionCheck)
}

func TestLoadTOMLFallback(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "downloads.toml", `
[uv]
source = "pypi"
package = "uv"
max_major = 1

[[uv.targets]]
file = "Dockerfile"
patterns = ['UV_VERSION=(?P<version>[0-9.]+)']
`)

	al := Load(dir, Downloads)
	require.Equal(t, 1, al.Len())
	require.Equal(t, filepath.Join(dir, "downloads.toml"), al.Path)

	uv, _ := al.Get("uv")
	require.Equal(t, PyPISource{Package: "uv"}, uv.Source)
	require.Equal(t, intPtr(1), uv.Constraints.MaxMajor)
	require.Equal(t, "Dockerfile", uv.Targets[0].File)
}

func TestJSONTakesPrecedenceOverTOML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "homebrew.json", `{"jq": {"formula": "jq"}}`)
	writeFile(t, dir, "homebrew.toml", `[yq]
formula = "yq"`)

	al := Load(dir, Homebrew)
	_, ok := al.Get("jq")
	require.True(t, ok)
	_, ok = al.Get("yq")
	require.False(t, ok)
}

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "homebrew.json", `{"jq": {"formula": "jq"}}`)

	all := LoadAll(dir)
	require.Len(t, all, 3)
	require.Equal(t, 1, all[Homebrew].Len())
	require.Equal(t, 0, all[Actions].Len())
}

func TestConstraintsAllows(t *testing.T) {
	tests := []struct {
		name string
		c    Constraints
		v    string
		want bool
	}{
		{"stable passes", Constraints{}, "1.2.3", true},
		{"prerelease excluded", Constraints{}, "2.0.0rc1", false},
		{"prerelease included", Constraints{IncludePrerelease: true}, "2.0.0rc1", true},
		{"major above cap", Constraints{MaxMajor: intPtr(1)}, "2.0.0", false},
		{"major at cap", Constraints{MaxMajor: intPtr(2)}, "2.9.0", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.c.Allows(versions.MustParse(tt.v)))
		})
	}
}

func TestDescribe(t *testing.T) {
	require.Equal(t, "tag o/r", Describe(GitHubSource{Repo: "o/r", Tags: true}))
	require.Equal(t, "cask claude-code", Describe(HomebrewSource{Formula: "claude-code", Cask: true}))
	require.Equal(t, "npm npm", Describe(NPMSource{Package: "npm"}))
}
