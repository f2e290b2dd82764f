// Package gogit serves repository content from a local git repository using
// go-git, without requiring the git binary.
package gogit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fwojciec/diffset"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// Compile-time interface verification.
var _ diffset.Backend = (*Repository)(nil)

// ErrRepositoryNotFound is returned by Open when path is not a git repository.
var ErrRepositoryNotFound = errors.New("git repository not found")

// Repository implements diffset.Backend over a go-git repository.
type Repository struct {
	repo *git.Repository
}

// Open opens the repository at path. The path can be either a working
// directory or a bare repository.
func Open(path string) (*Repository, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRepositoryNotFound, path)
	}
	return New(repo), nil
}

// New wraps an already opened repository.
func New(repo *git.Repository) *Repository {
	return &Repository{repo: repo}
}

// GetFile returns the content of path at revision. Revisions may be blob IDs,
// full or abbreviated, or anything go-git resolves to a commit.
func (r *Repository) GetFile(ctx context.Context, path string, revision diffset.Revision) ([]byte, error) {
	blob, err := r.blob(ctx, path, revision)
	if err != nil {
		return nil, err
	}
	rd, err := blob.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", blob.Hash, err)
	}
	defer rd.Close()
	return io.ReadAll(rd)
}

// FileExists reports whether path exists at revision.
func (r *Repository) FileExists(ctx context.Context, path string, revision diffset.Revision) (bool, error) {
	_, err := r.blob(ctx, path, revision)
	if errors.Is(err, diffset.ErrFileNotFound) {
		return false, nil
	}
	return err == nil, err
}

// DiffsUseAbsolutePaths is false: git diffs are relative to the repository root.
func (r *Repository) DiffsUseAbsolutePaths() bool { return false }

func (r *Repository) blob(ctx context.Context, path string, revision diffset.Revision) (*object.Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rev := string(revision)
	if revision == diffset.Unknown {
		rev = string(diffset.Head)
	}

	if isHex(rev) {
		blob, err := r.blobByID(ctx, rev)
		if err != nil {
			return nil, err
		}
		if blob != nil {
			return blob, nil
		}
	}

	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("%s@%s: %w", path, revision, diffset.ErrFileNotFound)
	}
	commit, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("%s@%s: %w", path, revision, diffset.ErrFileNotFound)
	}
	file, err := commit.File(strings.TrimPrefix(path, "/"))
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, fmt.Errorf("%s@%s: %w", path, revision, diffset.ErrFileNotFound)
		}
		return nil, fmt.Errorf("failed to read tree of %s: %w", commit.Hash, err)
	}
	return &file.Blob, nil
}

// blobByID returns the blob named by a full or abbreviated ID, or nil when
// no blob matches.
func (r *Repository) blobByID(ctx context.Context, id string) (*object.Blob, error) {
	if len(id) == 40 {
		blob, err := r.repo.BlobObject(plumbing.NewHash(id))
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, nil
		}
		return blob, err
	}

	id = strings.ToLower(id)
	iter, err := r.repo.BlobObjects()
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}
	defer iter.Close()

	var match *object.Blob
	err = iter.ForEach(func(b *object.Blob) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.HasPrefix(b.Hash.String(), id) {
			match = b
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return match, nil
}

func isHex(s string) bool {
	if len(s) < 4 || len(s) > 40 {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}
