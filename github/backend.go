// Package github serves repository content from the GitHub API.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/fwojciec/diffset"
	gh "github.com/google/go-github/v79/github"
)

// Compile-time interface verification.
var _ diffset.Backend = (*Backend)(nil)

// RateLimitWarning is the remaining request count at or below which every
// response logs a warning.
const RateLimitWarning = 100

// Backend implements diffset.Backend for a single GitHub repository.
type Backend struct {
	client *gh.Client
	owner  string
	repo   string
	Logger diffset.Logger
}

// NewBackend creates a backend for owner/repo. An empty token makes
// unauthenticated requests.
func NewBackend(client *gh.Client, owner, repo, token string) *Backend {
	if client == nil {
		client = gh.NewClient(nil)
	}
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return &Backend{
		client: client,
		owner:  owner,
		repo:   repo,
		Logger: diffset.NopLogger{},
	}
}

// GetFile returns the content of path at revision. Blob IDs are fetched raw
// from the git blobs API; other revisions go through the contents API.
func (b *Backend) GetFile(ctx context.Context, path string, revision diffset.Revision) ([]byte, error) {
	path = strings.TrimPrefix(path, "/")
	if isSHA(string(revision)) {
		data, resp, err := b.client.Git.GetBlobRaw(ctx, b.owner, b.repo, string(revision))
		b.checkRateLimit(ctx, resp)
		if err != nil {
			return nil, b.wrap(ctx, path, revision, resp, err)
		}
		return data, nil
	}

	ref := string(revision)
	if revision == diffset.Unknown {
		ref = string(diffset.Head)
	}
	file, _, resp, err := b.client.Repositories.GetContents(ctx, b.owner, b.repo, path,
		&gh.RepositoryContentGetOptions{Ref: ref})
	b.checkRateLimit(ctx, resp)
	if err != nil {
		return nil, b.wrap(ctx, path, revision, resp, err)
	}
	if file == nil {
		// path names a directory
		return nil, fmt.Errorf("%s@%s: %w", path, revision, diffset.ErrFileNotFound)
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return []byte(content), nil
}

// FileExists reports whether path exists at revision by fetching it.
func (b *Backend) FileExists(ctx context.Context, path string, revision diffset.Revision) (bool, error) {
	_, err := b.GetFile(ctx, path, revision)
	if errors.Is(err, diffset.ErrFileNotFound) {
		return false, nil
	}
	return err == nil, err
}

// DiffsUseAbsolutePaths is false: GitHub diffs are relative to the repository root.
func (b *Backend) DiffsUseAbsolutePaths() bool { return false }

func (b *Backend) wrap(ctx context.Context, path string, revision diffset.Revision, resp *gh.Response, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if resp != nil && (resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnprocessableEntity) {
		return fmt.Errorf("%s@%s: %w", path, revision, diffset.ErrFileNotFound)
	}
	return fmt.Errorf("github: fetching %s@%s: %w", path, revision, err)
}

func (b *Backend) checkRateLimit(ctx context.Context, resp *gh.Response) {
	if resp == nil || resp.Header.Get("X-RateLimit-Remaining") == "" {
		return
	}
	if resp.Rate.Remaining <= RateLimitWarning {
		b.logger().Warn(ctx, "github rate limit running low", map[string]any{
			"owner":     b.owner,
			"repo":      b.repo,
			"remaining": resp.Rate.Remaining,
		})
	}
}

func (b *Backend) logger() diffset.Logger {
	if b.Logger == nil {
		return diffset.NopLogger{}
	}
	return b.Logger
}

func isSHA(s string) bool {
	if len(s) != 40 {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}
