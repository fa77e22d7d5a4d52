// Package allowlist loads the per-category allowlists that enumerate which
// identifiers are tracked and how each one is resolved upstream.
package allowlist

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/obentoo/upkeep/internal/common/logger"
	"github.com/obentoo/upkeep/internal/common/versions"
)

// Category names one allowlist file
type Category string

const (
	Actions   Category = "github_actions"
	Downloads Category = "downloads"
	Homebrew  Category = "homebrew"
)

// Categories lists every category in processing order
var Categories = []Category{Actions, Downloads, Homebrew}

var (
	ErrUnknownCategory = errors.New("unknown allowlist category")
	ErrNotObject       = errors.New("allowlist must be an object keyed by identifier")
	ErrInvalidEntry    = errors.New("invalid allowlist entry")
)

//go:embed schema/*.json
var schemaFS embed.FS

// Constraints filter upstream candidates
type Constraints struct {
	IncludePrerelease bool
	MaxMajor          *int
}

// Allows reports whether candidate v survives the constraints
func (c Constraints) Allows(v versions.Version) bool {
	if !c.IncludePrerelease && v.IsPrerelease() {
		return false
	}
	if c.MaxMajor != nil && v.Major() > *c.MaxMajor {
		return false
	}
	return true
}

// Target is one file rewritten for a downloads entry
type Target struct {
	File                string
	Patterns            []string
	SHA256Pattern       string
	DownloadURLTemplate string
	ManifestURLTemplate string
	Platform            string
}

// Entry is one tracked identifier. Entries are not modified after loading.
type Entry struct {
	Identifier       string
	Source           Source
	Constraints      Constraints
	Format           versions.Granularity
	PinToSHA         bool
	SkipVersionCheck bool
	Targets          []Target
}

// Allowlist is the validated content of one category file
type Allowlist struct {
	Category Category
	// Path is the file the entries were read from, empty when none existed
	Path    string
	entries map[string]Entry
	// Skipped holds the reason each invalid entry was dropped
	Skipped map[string]error
}

func newAllowlist(cat Category) *Allowlist {
	return &Allowlist{
		Category: cat,
		entries:  make(map[string]Entry),
		Skipped:  make(map[string]error),
	}
}

// Empty returns an allowlist with no entries
func Empty(cat Category) *Allowlist {
	return newAllowlist(cat)
}

// Get returns the entry for identifier
func (a *Allowlist) Get(identifier string) (Entry, bool) {
	e, ok := a.entries[identifier]
	return e, ok
}

// Len returns the number of valid entries
func (a *Allowlist) Len() int {
	return len(a.entries)
}

// Entries returns all entries sorted by identifier
func (a *Allowlist) Entries() []Entry {
	ids := make([]string, 0, len(a.entries))
	for id := range a.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, a.entries[id])
	}
	return out
}

// Load reads <dir>/<category>.json, falling back to <category>.toml. A
// missing or unreadable file yields an empty allowlist and a warning;
// invalid entries are skipped with a warning each.
func Load(dir string, cat Category) *Allowlist {
	path, ok := locate(dir, cat)
	if !ok {
		logger.Warn("No %s allowlist in %s, category is empty", cat, dir)
		return Empty(cat)
	}

	al, err := LoadFile(path, cat)
	if err != nil {
		logger.Warn("Ignoring %s allowlist: %v", cat, err)
		return Empty(cat)
	}

	for id, reason := range al.Skipped {
		logger.Warn("Skipping %s entry %q: %v", cat, id, reason)
	}
	logger.Debug("Loaded %d %s entries from %s", al.Len(), cat, path)
	return al
}

// LoadAll loads every category from dir
func LoadAll(dir string) map[Category]*Allowlist {
	out := make(map[Category]*Allowlist, len(Categories))
	for _, cat := range Categories {
		out[cat] = Load(dir, cat)
	}
	return out
}

func locate(dir string, cat Category) (string, bool) {
	for _, ext := range []string{".json", ".toml"} {
		path := filepath.Join(dir, string(cat)+ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// LoadFile parses and validates one allowlist file. The returned error is
// an errbuilder InvalidArgument error when the whole file is unusable;
// per-entry problems are recorded in Skipped instead.
func LoadFile(path string, cat Category) (*Allowlist, error) {
	schema, err := compileSchema(cat)
	if err != nil {
		return nil, err
	}

	doc, err := readDocument(path)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("failed to parse allowlist %s", path)).
			WithCause(err)
	}

	al := newAllowlist(cat)
	al.Path = path
	for id, raw := range doc {
		if err := schema.Validate(raw); err != nil {
			al.Skipped[id] = fmt.Errorf("%w: %v", ErrInvalidEntry, err)
			continue
		}
		entry, err := buildEntry(cat, id, raw)
		if err != nil {
			al.Skipped[id] = err
			continue
		}
		al.entries[id] = entry
	}
	return al, nil
}

// readDocument decodes a JSON or TOML file into plain JSON values so that
// both formats validate against the same schema
func readDocument(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		var decoded map[string]interface{}
		if _, err := toml.Decode(string(data), &decoded); err != nil {
			return nil, err
		}
		if data, err = json.Marshal(decoded); err != nil {
			return nil, err
		}
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	obj, ok := doc.(map[string]interface{})
	if !ok {
		return nil, ErrNotObject
	}
	return obj, nil
}

func compileSchema(cat Category) (*jsonschema.Schema, error) {
	name := "schema/" + string(cat) + ".json"
	data, err := schemaFS.ReadFile(name)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("%s: %s", ErrUnknownCategory, cat)).
			WithCause(ErrUnknownCategory)
	}
	schema, err := jsonschema.CompileString("mem://upkeep/"+name, string(data))
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("embedded allowlist schema does not compile").
			WithCause(err)
	}
	return schema, nil
}

// rawEntry mirrors the on-disk entry shape of every category
type rawEntry struct {
	Source              string            `json:"source"`
	Repo                string            `json:"repo"`
	Package             string            `json:"package"`
	URL                 string            `json:"url"`
	StableVersionURL    string            `json:"stable_version_url"`
	Parser              *ParserConfig     `json:"parser"`
	Headers             map[string]string `json:"headers"`
	Formula             string            `json:"formula"`
	Type                string            `json:"type"`
	Description         string            `json:"description"`
	IncludePrerelease   bool              `json:"include_prerelease"`
	MaxMajor            *int              `json:"max_major"`
	VersionFormat       string            `json:"version_format"`
	FeatureName         string            `json:"feature_name"`
	PinToSHA            bool              `json:"pin_to_sha"`
	SkipVersionCheck    bool              `json:"skip_version_check"`
	DownloadURLTemplate string            `json:"download_url_template"`
	ManifestURLTemplate string            `json:"manifest_url_template"`
	Platform            string            `json:"platform"`
	Targets             []rawTarget       `json:"targets"`
}

type rawTarget struct {
	File                string   `json:"file"`
	Patterns            []string `json:"patterns"`
	Pattern             string   `json:"pattern"`
	SHA256Pattern       string   `json:"sha256_pattern"`
	DownloadURLTemplate string   `json:"download_url_template"`
	ManifestURLTemplate string   `json:"manifest_url_template"`
	Platform            string   `json:"platform"`
}

func buildEntry(cat Category, id string, value interface{}) (Entry, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	var raw rawEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	format, err := versions.ParseGranularity(raw.VersionFormat)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	entry := Entry{
		Identifier: id,
		Constraints: Constraints{
			IncludePrerelease: raw.IncludePrerelease,
			MaxMajor:          raw.MaxMajor,
		},
		Format:           format,
		PinToSHA:         raw.PinToSHA,
		SkipVersionCheck: raw.SkipVersionCheck,
	}

	if cat == Homebrew {
		entry.Source = HomebrewSource{
			Formula:     raw.Formula,
			Cask:        raw.Type == "cask",
			Description: raw.Description,
		}
		return entry, nil
	}

	switch SourceKind(raw.Source) {
	case "", SourceRelease, SourceTag:
		entry.Source = GitHubSource{
			Repo:        raw.Repo,
			Tags:        SourceKind(raw.Source) == SourceTag,
			FeatureName: raw.FeatureName,
		}
	case SourceNPM:
		entry.Source = NPMSource{Package: raw.Package}
	case SourcePyPI:
		entry.Source = PyPISource{Package: raw.Package}
	case SourceCustom:
		url := raw.URL
		if url == "" {
			url = raw.StableVersionURL
		}
		entry.Source = CustomSource{URL: url, Parser: raw.Parser, Headers: raw.Headers}
	default:
		return Entry{}, fmt.Errorf("%w: source %q is not valid for %s", ErrInvalidEntry, raw.Source, cat)
	}

	for _, rt := range raw.Targets {
		entry.Targets = append(entry.Targets, buildTarget(raw, rt))
	}
	return entry, nil
}

// buildTarget applies entry-level template and platform defaults; values on
// the target take precedence
func buildTarget(raw rawEntry, rt rawTarget) Target {
	t := Target{
		File:                rt.File,
		Patterns:            rt.Patterns,
		SHA256Pattern:       rt.SHA256Pattern,
		DownloadURLTemplate: firstNonEmpty(rt.DownloadURLTemplate, raw.DownloadURLTemplate),
		ManifestURLTemplate: firstNonEmpty(rt.ManifestURLTemplate, raw.ManifestURLTemplate),
		Platform:            firstNonEmpty(rt.Platform, raw.Platform),
	}
	if len(t.Patterns) == 0 && rt.Pattern != "" {
		t.Patterns = []string{rt.Pattern}
	}
	return t
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
