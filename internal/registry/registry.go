// Package registry resolves the latest qualifying release of tracked
// identifiers from GitHub, npm, PyPI, Homebrew and custom endpoints.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/obentoo/upkeep/internal/common/github"
	"github.com/obentoo/upkeep/internal/common/httpclient"
	"github.com/obentoo/upkeep/internal/common/logger"
	"github.com/obentoo/upkeep/internal/common/versions"
)

var (
	// ErrNoVersion is returned when an upstream answered without a usable version
	ErrNoVersion = errors.New("no version found")
	// ErrUnsupportedSource is returned for a Source without a resolver
	ErrUnsupportedSource = errors.New("unsupported source")
)

// Default upstream base URLs
const (
	DefaultNPMURL      = "https://registry.npmjs.org"
	DefaultPyPIURL     = "https://pypi.org"
	DefaultHomebrewURL = "https://formulae.brew.sh"
	DefaultMaxPages    = 5
)

// ReleaseInfo is the resolved latest release of an identifier. Values are
// never modified; WithSHA returns a copy.
type ReleaseInfo struct {
	Tag     string
	Version versions.Version
	// SHA is the commit the tag points at, set only when pinning was requested
	SHA string
}

// WithSHA returns a copy of r pinned to sha
func (r ReleaseInfo) WithSHA(sha string) *ReleaseInfo {
	r.SHA = sha
	return &r
}

func (r ReleaseInfo) String() string {
	if r.SHA == "" {
		return r.Tag
	}
	return fmt.Sprintf("%s (%s)", r.Tag, r.SHA)
}

// Registry dispatches queries to the matching upstream and memoizes the
// results in a per-run Cache
type Registry struct {
	github      *github.Client
	http        *httpclient.RetryableClient
	cache       *Cache
	npmURL      string
	pypiURL     string
	homebrewURL string
	maxPages    int
}

// Option configures a Registry
type Option func(*Registry)

// WithNPMURL overrides the npm registry base URL
func WithNPMURL(url string) Option {
	return func(r *Registry) { r.npmURL = strings.TrimSuffix(url, "/") }
}

// WithPyPIURL overrides the PyPI base URL
func WithPyPIURL(url string) Option {
	return func(r *Registry) { r.pypiURL = strings.TrimSuffix(url, "/") }
}

// WithHomebrewURL overrides the Homebrew formulae API base URL
func WithHomebrewURL(url string) Option {
	return func(r *Registry) { r.homebrewURL = strings.TrimSuffix(url, "/") }
}

// WithMaxPages bounds GitHub pagination
func WithMaxPages(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxPages = n
		}
	}
}

// New creates a Registry. A nil cache gets a fresh one.
func New(hc *httpclient.RetryableClient, gh *github.Client, cache *Cache, opts ...Option) *Registry {
	if cache == nil {
		cache = NewCache()
	}
	r := &Registry{
		github:      gh,
		http:        hc,
		cache:       cache,
		npmURL:      DefaultNPMURL,
		pypiURL:     DefaultPyPIURL,
		homebrewURL: DefaultHomebrewURL,
		maxPages:    DefaultMaxPages,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cache returns the per-run cache
func (r *Registry) Cache() *Cache {
	return r.cache
}

// FetchLatest resolves src. It returns nil without error when the upstream
// answered but no candidate survived the constraints.
func (r *Registry) FetchLatest(ctx context.Context, src Source) (*ReleaseInfo, error) {
	key := src.Key()
	if entry, ok := r.cache.Get(key); ok {
		return entry.Release, nil
	}

	var (
		rel *ReleaseInfo
		err error
	)
	switch q := src.(type) {
	case GitHubQuery:
		rel, err = r.fetchGitHub(ctx, q)
	case NPMQuery:
		rel, err = r.fetchNPM(ctx, q)
	case PyPIQuery:
		rel, err = r.fetchPyPI(ctx, q)
	case CustomQuery:
		rel, err = r.fetchCustom(ctx, q)
	default:
		err = fmt.Errorf("%w: %T", ErrUnsupportedSource, src)
	}
	if err != nil {
		return nil, err
	}

	r.cache.Set(key, CacheEntry{Release: rel})
	return rel, nil
}

func candidate(tag string, v versions.Version) *ReleaseInfo {
	return &ReleaseInfo{Tag: tag, Version: v}
}

func logSkip(source, name, reason string) {
	logger.Debug("Skipping %s candidate %s: %s", source, name, reason)
}
