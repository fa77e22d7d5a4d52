package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/obentoo/upkeep/internal/common/httpclient"
	"github.com/obentoo/upkeep/internal/common/version"
)

var (
	// ErrRateLimit indicates GitHub API rate limit exceeded
	ErrRateLimit = errors.New("GitHub API rate limit exceeded")
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("resource not found on GitHub")
	// ErrAPIError indicates a general GitHub API error
	ErrAPIError = errors.New("GitHub API error")
)

// Token environment variables, in priority order
const (
	TokenEnv         = "GITHUB_TOKEN"
	FallbackTokenEnv = "GH_TOKEN"
)

// DefaultPerPage is the page size requested from list endpoints
const DefaultPerPage = 100

// Client handles communication with the GitHub REST API
type Client struct {
	BaseURL   string
	UserAgent string
	Token     string // Optional; unauthenticated access is rate limited
	PerPage   int
	http      *httpclient.RetryableClient
}

// Release is an entry of GET /repos/{repo}/releases
type Release struct {
	TagName    string `json:"tag_name"`
	Name       string `json:"name"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// Tag is an entry of GET /repos/{repo}/tags
type Tag struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// GitObject is the target of a ref or of an annotated tag
type GitObject struct {
	SHA  string `json:"sha"`
	Type string `json:"type"` // "commit" or "tag"
}

// Ref is the response of GET /repos/{repo}/git/ref/tags/{tag}
type Ref struct {
	Ref    string    `json:"ref"`
	Object GitObject `json:"object"`
}

// AnnotatedTag is the response of GET /repos/{repo}/git/tags/{sha}
type AnnotatedTag struct {
	SHA    string    `json:"sha"`
	Tag    string    `json:"tag"`
	Object GitObject `json:"object"`
}

// NewClient creates a new GitHub API client on top of a retrying HTTP client.
// The token is taken from GITHUB_TOKEN, then GH_TOKEN.
func NewClient(http *httpclient.RetryableClient) *Client {
	return &Client{
		BaseURL:   "https://api.github.com",
		UserAgent: version.UserAgent(),
		Token:     TokenFromEnv(),
		PerPage:   DefaultPerPage,
		http:      http,
	}
}

// TokenFromEnv returns the first non-empty token environment variable
func TokenFromEnv() string {
	if token := os.Getenv(TokenEnv); token != "" {
		return token
	}
	return os.Getenv(FallbackTokenEnv)
}

func (c *Client) headers() map[string]string {
	h := map[string]string{
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": "2022-11-28",
		"User-Agent":           c.UserAgent,
	}
	if c.Token != "" {
		h["Authorization"] = "Bearer " + c.Token
	}
	return h
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	url := strings.TrimSuffix(c.BaseURL, "/") + path
	if err := c.http.FetchJSON(ctx, url, c.headers(), out); err != nil {
		return classify(err)
	}
	return nil
}

// classify maps an exhausted fetch onto the package sentinels
func classify(err error) error {
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		case http.StatusForbidden, http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", ErrRateLimit, err)
		}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrAPIError, err)
}

func (c *Client) perPage() int {
	if c.PerPage <= 0 {
		return DefaultPerPage
	}
	return c.PerPage
}

// ListReleases fetches one page (1-based) of releases, newest first as
// returned by GitHub
func (c *Client) ListReleases(ctx context.Context, repo string, page int) ([]Release, error) {
	var releases []Release
	path := fmt.Sprintf("/repos/%s/releases?per_page=%d&page=%d", repo, c.perPage(), page)
	if err := c.get(ctx, path, &releases); err != nil {
		return nil, err
	}
	return releases, nil
}

// ListTags fetches one page (1-based) of tags
func (c *Client) ListTags(ctx context.Context, repo string, page int) ([]Tag, error) {
	var tags []Tag
	path := fmt.Sprintf("/repos/%s/tags?per_page=%d&page=%d", repo, c.perPage(), page)
	if err := c.get(ctx, path, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// GetTagRef fetches the ref of a tag
func (c *Client) GetTagRef(ctx context.Context, repo, tag string) (*Ref, error) {
	var ref Ref
	if err := c.get(ctx, fmt.Sprintf("/repos/%s/git/ref/tags/%s", repo, tag), &ref); err != nil {
		return nil, err
	}
	return &ref, nil
}

// GetAnnotatedTag fetches an annotated tag object by its SHA
func (c *Client) GetAnnotatedTag(ctx context.Context, repo, sha string) (*AnnotatedTag, error) {
	var tag AnnotatedTag
	if err := c.get(ctx, fmt.Sprintf("/repos/%s/git/tags/%s", repo, sha), &tag); err != nil {
		return nil, err
	}
	return &tag, nil
}

// ResolveTagCommit returns the commit SHA a tag points at. Annotated tags
// are followed one level to their target object.
func (c *Client) ResolveTagCommit(ctx context.Context, repo, tag string) (string, error) {
	ref, err := c.GetTagRef(ctx, repo, tag)
	if err != nil {
		return "", err
	}

	if ref.Object.Type != "tag" {
		return ref.Object.SHA, nil
	}

	annotated, err := c.GetAnnotatedTag(ctx, repo, ref.Object.SHA)
	if err != nil {
		return "", err
	}
	return annotated.Object.SHA, nil
}

// RateLimit returns the remaining core quota and when it resets
func (c *Client) RateLimit(ctx context.Context) (remaining int, resetTime time.Time, err error) {
	var result struct {
		Resources struct {
			Core struct {
				Remaining int   `json:"remaining"`
				Reset     int64 `json:"reset"`
			} `json:"core"`
		} `json:"resources"`
	}

	if err := c.get(ctx, "/rate_limit", &result); err != nil {
		return 0, time.Time{}, err
	}

	return result.Resources.Core.Remaining, time.Unix(result.Resources.Core.Reset, 0), nil
}
