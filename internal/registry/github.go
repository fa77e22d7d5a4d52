package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/obentoo/upkeep/internal/common/github"
	"github.com/obentoo/upkeep/internal/common/logger"
)

// fetchGitHub walks releases or tags page by page and returns the first
// entry, in the order GitHub lists them, that normalizes to a version and
// survives the constraints. Pages are only fetched until that entry is found.
func (r *Registry) fetchGitHub(ctx context.Context, q GitHubQuery) (*ReleaseInfo, error) {
	if r.github == nil {
		return nil, fmt.Errorf("%w: no GitHub client configured", ErrUnsupportedSource)
	}

	for page := 1; page <= r.maxPages; page++ {
		var (
			found *ReleaseInfo
			size  int
			err   error
		)
		if q.Tags {
			found, size, err = r.scanTags(ctx, q, page)
		} else {
			found, size, err = r.scanReleases(ctx, q, page)
		}
		if err != nil {
			if errors.Is(err, github.ErrRateLimit) {
				r.logRateLimit(ctx)
			}
			return nil, err
		}
		if found != nil {
			return r.pin(ctx, q, found), nil
		}
		if size < r.github.PerPage || size == 0 {
			break
		}
	}

	logger.Debug("No qualifying %s found for %s", kindName(q.Tags), q.Repo)
	return nil, nil
}

func (r *Registry) scanReleases(ctx context.Context, q GitHubQuery, page int) (*ReleaseInfo, int, error) {
	releases, err := r.github.ListReleases(ctx, q.Repo, page)
	if err != nil {
		return nil, 0, err
	}

	for _, rel := range releases {
		tag, v, ok := NormalizeTag(rel.TagName, q.FeatureName)
		if !ok {
			logSkip(q.Repo, rel.TagName, "unrecognized tag")
			continue
		}
		if !q.Constraints.IncludePrerelease && (rel.Draft || rel.Prerelease) {
			logSkip(q.Repo, tag, "draft or pre-release")
			continue
		}
		if !q.Constraints.Allows(v) {
			logSkip(q.Repo, tag, "outside constraints")
			continue
		}
		return candidate(tag, v), len(releases), nil
	}
	return nil, len(releases), nil
}

func (r *Registry) scanTags(ctx context.Context, q GitHubQuery, page int) (*ReleaseInfo, int, error) {
	tags, err := r.github.ListTags(ctx, q.Repo, page)
	if err != nil {
		return nil, 0, err
	}

	for _, t := range tags {
		tag, v, ok := NormalizeTag(t.Name, q.FeatureName)
		if !ok {
			logSkip(q.Repo, t.Name, "unrecognized tag")
			continue
		}
		if !q.Constraints.Allows(v) {
			logSkip(q.Repo, tag, "outside constraints")
			continue
		}
		rel := candidate(tag, v)
		if q.PinToSHA && t.Commit.SHA != "" {
			rel = rel.WithSHA(t.Commit.SHA)
		}
		return rel, len(tags), nil
	}
	return nil, len(tags), nil
}

// pin resolves the commit behind rel when pinning was requested. A failed
// resolution still yields the release, without a SHA.
func (r *Registry) pin(ctx context.Context, q GitHubQuery, rel *ReleaseInfo) *ReleaseInfo {
	if !q.PinToSHA || rel.SHA != "" {
		return rel
	}
	sha, err := r.github.ResolveTagCommit(ctx, q.Repo, rel.Tag)
	if err != nil {
		logger.Warn("Could not resolve commit for %s@%s, continuing without SHA: %v", q.Repo, rel.Tag, err)
		return rel
	}
	return rel.WithSHA(sha)
}

// logRateLimit reports when the exhausted quota resets
func (r *Registry) logRateLimit(ctx context.Context) {
	remaining, reset, err := r.github.RateLimit(ctx)
	if err != nil {
		return
	}
	logger.Warn("GitHub API quota exhausted (%d remaining), resets at %s; set GITHUB_TOKEN to raise the limit",
		remaining, reset.Format(time.RFC3339))
}

func kindName(tags bool) string {
	if tags {
		return "tag"
	}
	return "release"
}
