package upload_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/fwojciec/diffset"
	"github.com/fwojciec/diffset/mock"
	"github.com/fwojciec/diffset/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commitInput(id, parent string) diffset.CommitInput {
	return diffset.CommitInput{
		CommitID:    id,
		ParentID:    parent,
		Message:     "Commit " + id,
		AuthorName:  "Example User",
		AuthorEmail: "user@example.com",
		AuthorDate:  "2024-01-02T03:04:05Z",
	}
}

const commitAddsBar = `diff --git a/README b/README
index 94bdd3e..197009f 100644
--- a/README
+++ b/README
@@ -1 +1,2 @@
 Foo
+Bar
`

const commitAddsBaz = `diff --git a/README b/README
index 197009f..87abad9 100644
--- a/README
+++ b/README
@@ -1,2 +1,3 @@
 Foo
 Bar
+Baz
`

func openHistory() *mock.History {
	return &mock.History{
		IsFinalizedFn: func(context.Context, string) (bool, error) { return false, nil },
	}
}

func TestBuilder_BuildCommit_FinalizedDiffSetRejected(t *testing.T) {
	t.Parallel()

	r := newRepo(nil)
	var calls atomic.Int32
	b := newBuilder(r, countingPatcher(&calls))
	b.Tool = diffset.ToolGit
	b.Parser = &mock.Parser{
		ParseFn: func([]byte, diffset.Dialect) (*diffset.DiffSet, error) {
			t.Fatal("diff must not be parsed")
			return nil, nil
		},
	}
	b.History = &mock.History{
		IsFinalizedFn: func(_ context.Context, id string) (bool, error) {
			assert.Equal(t, "ds-1", id)
			return true, nil
		},
	}

	_, err := b.BuildCommit(context.Background(), &diffset.DiffSet{ID: "ds-1"}, upload.CommitRequest{
		Diff:   []byte(commitAddsBar),
		Commit: commitInput("abc1234", "def5678"),
	})

	require.ErrorIs(t, err, diffset.ErrAlreadyFinalized)
	assert.EqualError(t, err, "cannot upload commits to a published diff")
}

func TestBuilder_BuildCommit_InvalidDateRejectedBeforeParsing(t *testing.T) {
	t.Parallel()

	r := newRepo(nil)
	var calls atomic.Int32
	b := newBuilder(r, countingPatcher(&calls))
	b.Tool = diffset.ToolGit
	b.History = openHistory()
	b.Parser = &mock.Parser{
		ParseFn: func([]byte, diffset.Dialect) (*diffset.DiffSet, error) {
			t.Fatal("diff must not be parsed")
			return nil, nil
		},
	}
	in := commitInput("abc1234", "def5678")
	in.AuthorDate = "Jan 1 1970"
	in.CommitterDate = "Jan 1 1970"

	_, err := b.BuildCommit(context.Background(), &diffset.DiffSet{ID: "ds-1"}, upload.CommitRequest{
		Diff:   []byte(commitAddsBar),
		Commit: in,
	})

	var verrs diffset.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.True(t, verrs.Has("author_date"))
	assert.True(t, verrs.Has("committer_date"))
	assert.Contains(t, err.Error(), "this date must be in ISO 8601 format")
}

func TestBuilder_BuildCommit_FirstCommitSetsRoot(t *testing.T) {
	t.Parallel()

	r := newRepo(map[string]string{"README@94bdd3e": "Foo\n"})
	var calls atomic.Int32
	b := newBuilder(r, countingPatcher(&calls))
	b.Tool = diffset.ToolGit
	b.History = openHistory()
	ds := &diffset.DiffSet{ID: "ds-1"}

	commit, err := b.BuildCommit(context.Background(), ds, upload.CommitRequest{
		Diff:   []byte(commitAddsBar),
		Commit: commitInput("abc1234", "def5678"),
	})

	require.NoError(t, err)
	assert.Equal(t, "def5678", ds.RootCommitID)
	require.Len(t, ds.Commits, 1)
	assert.Equal(t, "abc1234", commit.CommitID)
	require.Len(t, commit.Files, 1)
	assert.Equal(t, diffset.StatusValidated, commit.Files[0].Status)
	// Git index lines carry blob IDs, which the repository serves directly.
	gets, _ := r.calls()
	assert.Equal(t, []string{"README@94bdd3e"}, gets)
}

func TestBuilder_BuildCommit_ChainedCommitUsesEarlierCommit(t *testing.T) {
	t.Parallel()

	chained := `diff --git a/README b/README
--- a/README
+++ b/README
@@ -1,2 +1,3 @@
 Foo
 Bar
+Baz
`

	r := newRepo(map[string]string{"README@def5678": "Foo\n", "README@94bdd3e": "Foo\n"})
	var calls atomic.Int32
	b := newBuilder(r, countingPatcher(&calls))
	b.Tool = diffset.ToolGit
	b.History = openHistory()
	ds := &diffset.DiffSet{ID: "ds-1"}

	_, err := b.BuildCommit(context.Background(), ds, upload.CommitRequest{
		Diff:   []byte(commitAddsBar),
		Commit: commitInput("abc1234", "def5678"),
	})
	require.NoError(t, err)

	second, err := b.BuildCommit(context.Background(), ds, upload.CommitRequest{
		Diff:   []byte(chained),
		Commit: commitInput("bcd2345", "abc1234"),
	})

	require.NoError(t, err)
	require.Len(t, ds.Commits, 2)
	assert.Equal(t, diffset.StatusValidated, second.Files[0].Status)
	assert.Equal(t, "def5678", ds.RootCommitID)
	gets, _ := r.calls()
	// The second commit's source is rebuilt from the root, not fetched at
	// the uploaded commit, which the repository does not have.
	assert.NotContains(t, gets, "README@abc1234")
	assert.Contains(t, gets, "README@def5678")
}

func TestBuilder_BuildCommit_UnknownParentRejected(t *testing.T) {
	t.Parallel()

	r := newRepo(map[string]string{"README@94bdd3e": "Foo\n"})
	var calls atomic.Int32
	b := newBuilder(r, countingPatcher(&calls))
	b.Tool = diffset.ToolGit
	b.History = openHistory()
	ds := &diffset.DiffSet{ID: "ds-1"}

	_, err := b.BuildCommit(context.Background(), ds, upload.CommitRequest{
		Diff:   []byte(commitAddsBar),
		Commit: commitInput("abc1234", "def5678"),
	})
	require.NoError(t, err)

	_, err = b.BuildCommit(context.Background(), ds, upload.CommitRequest{
		Diff:   []byte(commitAddsBaz),
		Commit: commitInput("bcd2345", "fff9999"),
	})

	var verrs diffset.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.True(t, verrs.Has("parent_id"))
	assert.Len(t, ds.Commits, 1)
}

func TestBuilder_BuildCommit_DuplicateCommitRejected(t *testing.T) {
	t.Parallel()

	r := newRepo(map[string]string{"README@94bdd3e": "Foo\n"})
	var calls atomic.Int32
	b := newBuilder(r, countingPatcher(&calls))
	b.Tool = diffset.ToolGit
	b.History = openHistory()
	ds := &diffset.DiffSet{ID: "ds-1"}
	req := upload.CommitRequest{Diff: []byte(commitAddsBar), Commit: commitInput("abc1234", "def5678")}

	_, err := b.BuildCommit(context.Background(), ds, req)
	require.NoError(t, err)
	_, err = b.BuildCommit(context.Background(), ds, req)

	var verrs diffset.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.True(t, verrs.Has("commit_id"))
}

func TestBuilder_BuildCommit_SavesThroughStore(t *testing.T) {
	t.Parallel()

	r := newRepo(map[string]string{"README@94bdd3e": "Foo\n"})
	var calls atomic.Int32
	var saves int
	b := newBuilder(r, countingPatcher(&calls))
	b.Tool = diffset.ToolGit
	b.Store = &mock.Store{
		IsFinalizedFn: func(context.Context, string) (bool, error) { return false, nil },
		SaveFn: func(_ context.Context, ds *diffset.DiffSet) error {
			saves++
			return nil
		},
	}

	ds, err := b.NewDiffSet(context.Background(), "def5678")
	require.NoError(t, err)
	assert.Equal(t, "ds-1", ds.ID)

	_, err = b.BuildCommit(context.Background(), ds, upload.CommitRequest{
		Diff:   []byte(commitAddsBar),
		Commit: commitInput("abc1234", "def5678"),
	})

	require.NoError(t, err)
	assert.Equal(t, 2, saves)
}

func TestBuilder_NewDiffSet_InvalidBaseRejected(t *testing.T) {
	t.Parallel()

	r := newRepo(nil)
	var calls atomic.Int32
	b := newBuilder(r, countingPatcher(&calls))
	b.Tool = diffset.ToolGit
	b.Store = &mock.Store{
		SaveFn: func(context.Context, *diffset.DiffSet) error {
			t.Fatal("invalid diffset must not be saved")
			return nil
		},
	}

	_, err := b.NewDiffSet(context.Background(), "not-a-sha")

	var verrs diffset.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.True(t, verrs.Has("base_commit_id"))
}
