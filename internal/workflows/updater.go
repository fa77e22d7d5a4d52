// Package workflows rewrites `uses:` references in GitHub Actions workflow
// files to the latest allowed release, preserving the rest of each file
// byte for byte.
package workflows

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/obentoo/upkeep/internal/allowlist"
	"github.com/obentoo/upkeep/internal/common/logger"
	"github.com/obentoo/upkeep/internal/common/versions"
	"github.com/obentoo/upkeep/internal/registry"
	"github.com/obentoo/upkeep/internal/report"
)

// workflowGlob matches the workflow files GitHub reads
const workflowGlob = "*.{yml,yaml}"

// Discover returns the workflow files directly under dir, sorted. A missing
// directory yields no files.
func Discover(dir string) ([]string, error) {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	names, err := doublestar.Glob(os.DirFS(dir), workflowGlob, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows in %s: %w", dir, err)
	}
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, filepath.FromSlash(name))
	}
	sort.Strings(paths)
	return paths, nil
}

// Updater rewrites action references found in workflow files
type Updater struct {
	root      string
	registry  *registry.Registry
	allowlist *allowlist.Allowlist
	report    *report.Report
	// failed remembers sources whose lookup errored so they are tried once per run
	failed map[string]error
}

// NewUpdater creates an Updater. Paths in the report are relative to root.
func NewUpdater(root string, reg *registry.Registry, al *allowlist.Allowlist, rep *report.Report) *Updater {
	return &Updater{
		root:      root,
		registry:  reg,
		allowlist: al,
		report:    rep,
		failed:    make(map[string]error),
	}
}

// UpdateWorkflows processes every workflow under dir and returns the files
// that were rewritten, relative to the repository root.
func (u *Updater) UpdateWorkflows(ctx context.Context, dir string) ([]string, error) {
	paths, err := Discover(dir)
	if err != nil {
		return nil, err
	}
	logger.Info("Scanning %d workflow file(s) in %s", len(paths), dir)

	var updated []string
	for _, path := range paths {
		if ctx.Err() != nil {
			return updated, ctx.Err()
		}
		changed, err := u.UpdateFile(ctx, path)
		if err != nil {
			logger.Warn("Skipping workflow %s: %v", path, err)
			continue
		}
		if changed {
			updated = append(updated, u.relative(path))
		}
	}
	return updated, nil
}

// UpdateFile rewrites the stale references of one workflow and reports
// whether the file was written.
func (u *Updater) UpdateFile(ctx context.Context, path string) (bool, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}

	edits, records, err := u.Plan(ctx, src)
	if err != nil {
		return false, err
	}
	if len(edits) == 0 {
		return false, nil
	}

	out, err := Apply(src, edits)
	if err != nil {
		return false, err
	}
	if err := writeFile(path, out); err != nil {
		return false, err
	}

	file := u.relative(path)
	for _, rec := range records {
		rec.File = file
		u.report.AddActionUpdate(rec)
	}
	return true, nil
}

// Plan walks every document in src and returns the edits that bring its
// references up to date, with one record per edit. The File of each record
// is left for the caller to fill in.
func (u *Updater) Plan(ctx context.Context, src []byte) ([]Edit, []report.ActionUpdate, error) {
	p := &planner{ctx: ctx, u: u, src: src}
	dec := yaml.NewDecoder(strings.NewReader(string(src)))
	for {
		var doc yaml.Node
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, nil, fmt.Errorf("invalid YAML: %w", err)
		}
		p.walk(&doc)
	}
	return p.edits, p.records, nil
}

type planner struct {
	ctx     context.Context
	u       *Updater
	src     []byte
	edits   []Edit
	records []report.ActionUpdate
}

func (p *planner) walk(node *yaml.Node) {
	switch node.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, child := range node.Content {
			p.walk(child)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i], node.Content[i+1]
			if key.Kind == yaml.ScalarNode && key.Value == "uses" && value.Kind == yaml.ScalarNode {
				p.visit(key, value)
				continue
			}
			p.walk(value)
		}
	}
}

func (p *planner) visit(key, value *yaml.Node) {
	if value.ShortTag() != "!!str" {
		return
	}
	quote, ok := quoteFor(value.Style)
	if !ok {
		return
	}

	uses := strings.TrimSpace(value.Value)
	if uses != value.Value || skipUses(uses) {
		return
	}
	action, raw, _ := strings.Cut(uses, "@")

	entry, ok := p.u.lookup(action)
	if !ok {
		return
	}

	token := quote + uses + quote
	comment := value.LineComment
	if comment == "" {
		comment = key.LineComment
	}
	if comment == "" {
		comment = trailingComment(p.src, value.Line, value.Column, token)
	}
	ref := ParseRef(raw, comment)

	rel := p.u.release(p.ctx, entry)
	if rel == nil {
		return
	}

	switch {
	case ref.Pinned() && rel.SHA != "" && strings.EqualFold(ref.SHA, rel.SHA):
		logger.Debug("%s is pinned to the latest commit", action)
		return
	case !ref.Orderable():
		logger.Debug("Skipping non-version reference %s@%s", action, raw)
		return
	case !versions.IsNewer(rel.Version, ref.Version, entry.Format):
		logger.Debug("%s@%s is up to date (latest %s)", action, raw, rel.Tag)
		return
	}

	edit := Edit{
		Line:   value.Line,
		Column: value.Column,
		Old:    token,
	}
	updated := rel.Tag
	if entry.PinToSHA && rel.SHA != "" {
		edit.New = quote + action + "@" + rel.SHA + quote
		edit.Comment = "# " + rel.Tag
		updated = Display(rel.SHA, rel.Tag)
	} else {
		edit.New = quote + action + "@" + rel.Tag + quote
		edit.StripComment = ref.Pinned()
	}

	logger.Info("Updating %s: %s -> %s", action, ref.Display(), updated)
	p.edits = append(p.edits, edit)
	p.records = append(p.records, report.ActionUpdate{
		Action:   action,
		Previous: ref.Raw,
		Updated:  updated,
	})
}

// skipUses reports whether a uses value is not a versioned remote action
func skipUses(uses string) bool {
	return strings.HasPrefix(uses, "./") ||
		strings.HasPrefix(uses, "../") ||
		strings.HasPrefix(uses, "docker://") ||
		!strings.Contains(uses, "@")
}

// quoteFor returns the delimiter of a single-line scalar style
func quoteFor(style yaml.Style) (string, bool) {
	switch style {
	case 0:
		return "", true
	case yaml.DoubleQuotedStyle:
		return `"`, true
	case yaml.SingleQuotedStyle:
		return "'", true
	}
	return "", false
}

// lookup finds the allowlist entry for an action. Sub-path actions such as
// "github/codeql-action/init" fall back to their repository.
func (u *Updater) lookup(action string) (allowlist.Entry, bool) {
	if entry, ok := u.allowlist.Get(action); ok {
		return entry, !entry.SkipVersionCheck
	}
	parts := strings.SplitN(action, "/", 3)
	if len(parts) == 3 {
		if entry, ok := u.allowlist.Get(parts[0] + "/" + parts[1]); ok {
			return entry, !entry.SkipVersionCheck
		}
	}
	return allowlist.Entry{}, false
}

// release resolves the latest release for entry. Failures are logged once
// and remembered for the rest of the run.
func (u *Updater) release(ctx context.Context, entry allowlist.Entry) *registry.ReleaseInfo {
	src, ok := registry.SourceFor(entry)
	if !ok {
		logger.Warn("Action %s has no resolvable source", entry.Identifier)
		return nil
	}
	if _, failed := u.failed[src.Key()]; failed {
		return nil
	}

	rel, err := u.registry.FetchLatest(ctx, src)
	if err != nil {
		logger.Warn("Failed to resolve %s: %v", entry.Identifier, err)
		u.failed[src.Key()] = err
		return nil
	}
	if rel == nil {
		logger.Debug("No release info available for %s", entry.Identifier)
	}
	return rel
}

func (u *Updater) relative(path string) string {
	if rel, err := filepath.Rel(u.root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return path
}

// writeFile replaces the contents of path, keeping its permissions
func writeFile(path string, data []byte) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	return os.WriteFile(path, data, mode)
}
