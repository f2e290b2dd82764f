package gogit_test

import (
	"context"
	"testing"
	"time"

	"github.com/fwojciec/diffset"
	"github.com/fwojciec/diffset/gogit"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRepo creates an in-memory repository with two commits of README.
func setupRepo(t *testing.T) (*git.Repository, plumbing.Hash, plumbing.Hash) {
	t.Helper()

	repo, err := git.Init(memory.NewStorage(), memfs.New())
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	commit := func(content, msg string) plumbing.Hash {
		f, err := wt.Filesystem.Create("README")
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, f.Close())
		_, err = wt.Add("README")
		require.NoError(t, err)
		hash, err := wt.Commit(msg, &git.CommitOptions{
			Author: &object.Signature{Name: "Test User", Email: "test@example.com", When: time.Unix(1700000000, 0)},
		})
		require.NoError(t, err)
		return hash
	}

	first := commit("Foo\n", "Initial commit")
	second := commit("Foo\nBar\n", "Add Bar")
	return repo, first, second
}

func blobID(t *testing.T, repo *git.Repository, commit plumbing.Hash) string {
	t.Helper()
	c, err := repo.CommitObject(commit)
	require.NoError(t, err)
	f, err := c.File("README")
	require.NoError(t, err)
	return f.Hash.String()
}

func TestRepository_GetFile(t *testing.T) {
	t.Parallel()

	repo, first, _ := setupRepo(t)
	backend := gogit.New(repo)
	ctx := context.Background()

	t.Run("reads file at commit", func(t *testing.T) {
		t.Parallel()

		data, err := backend.GetFile(ctx, "README", diffset.Revision(first.String()))

		require.NoError(t, err)
		assert.Equal(t, "Foo\n", string(data))
	})

	t.Run("reads file at HEAD", func(t *testing.T) {
		t.Parallel()

		data, err := backend.GetFile(ctx, "README", diffset.Head)

		require.NoError(t, err)
		assert.Equal(t, "Foo\nBar\n", string(data))
	})

	t.Run("reads blob by full id", func(t *testing.T) {
		t.Parallel()

		data, err := backend.GetFile(ctx, "README", diffset.Revision(blobID(t, repo, first)))

		require.NoError(t, err)
		assert.Equal(t, "Foo\n", string(data))
	})

	t.Run("reads blob by abbreviated id", func(t *testing.T) {
		t.Parallel()

		id := blobID(t, repo, first)
		data, err := backend.GetFile(ctx, "README", diffset.Revision(id[:7]))

		require.NoError(t, err)
		assert.Equal(t, "Foo\n", string(data))
	})

	t.Run("missing path wraps ErrFileNotFound", func(t *testing.T) {
		t.Parallel()

		_, err := backend.GetFile(ctx, "MISSING", diffset.Head)

		require.ErrorIs(t, err, diffset.ErrFileNotFound)
	})

	t.Run("unknown revision wraps ErrFileNotFound", func(t *testing.T) {
		t.Parallel()

		_, err := backend.GetFile(ctx, "README", "0000000")

		require.ErrorIs(t, err, diffset.ErrFileNotFound)
	})
}

func TestRepository_FileExists(t *testing.T) {
	t.Parallel()

	repo, first, _ := setupRepo(t)
	backend := gogit.New(repo)
	ctx := context.Background()

	ok, err := backend.FileExists(ctx, "README", diffset.Revision(first.String()))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = backend.FileExists(ctx, "MISSING", diffset.Head)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.False(t, backend.DiffsUseAbsolutePaths())
}

func TestRepository_CancelledContext(t *testing.T) {
	t.Parallel()

	repo, _, _ := setupRepo(t)
	backend := gogit.New(repo)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := backend.GetFile(ctx, "README", diffset.Head)

	require.ErrorIs(t, err, context.Canceled)
}

func TestOpen_NotARepository(t *testing.T) {
	t.Parallel()

	_, err := gogit.Open(t.TempDir())

	require.ErrorIs(t, err, gogit.ErrRepositoryNotFound)
}
