package jsonl_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fwojciec/diffset"
	"github.com/fwojciec/diffset/jsonl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDiffSet(id string) *diffset.DiffSet {
	sim := 90
	return &diffset.DiffSet{
		ID:           id,
		Dialect:      diffset.DialectGit,
		BaseCommitID: "def5678",
		Files: []diffset.FileDiff{{
			OriginalPath:     "README",
			ModifiedPath:     "README.md",
			OriginalRevision: "94bdd3e",
			ModifiedRevision: "197009f",
			Kind:             diffset.Renamed,
			Similarity:       &sim,
			Hunks: []diffset.Hunk{{
				OriginalStart: 1, OriginalLength: 1, ModifiedStart: 1, ModifiedLength: 2,
				Lines: []diffset.Line{
					{Tag: diffset.TagContext, Content: "Foo\n"},
					{Tag: diffset.TagAdded, Content: "Bar", NoNewline: true},
				},
			}},
			Status: diffset.StatusValidated,
		}},
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestStore_SaveLoad(t *testing.T) {
	t.Parallel()

	t.Run("round-trips a diffset", func(t *testing.T) {
		t.Parallel()

		store := jsonl.NewStore(filepath.Join(t.TempDir(), "nested", "diffsets.jsonl"))
		ctx := context.Background()
		want := sampleDiffSet("ds-1")

		require.NoError(t, store.Save(ctx, want))
		got, err := store.Load(ctx, "ds-1")

		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("last save wins", func(t *testing.T) {
		t.Parallel()

		store := jsonl.NewStore(filepath.Join(t.TempDir(), "diffsets.jsonl"))
		ctx := context.Background()
		ds := sampleDiffSet("ds-1")
		require.NoError(t, store.Save(ctx, ds))
		ds.Commits = append(ds.Commits, diffset.DiffCommit{
			CommitMetadata: diffset.CommitMetadata{CommitID: "abc1234", ParentID: "def5678"},
		})
		require.NoError(t, store.Save(ctx, ds))

		got, err := store.Load(ctx, "ds-1")

		require.NoError(t, err)
		require.Len(t, got.Commits, 1)
		assert.Equal(t, "abc1234", got.Commits[0].CommitID)
	})

	t.Run("returns ErrNotFound for unknown id", func(t *testing.T) {
		t.Parallel()

		store := jsonl.NewStore(filepath.Join(t.TempDir(), "missing.jsonl"))

		_, err := store.Load(context.Background(), "nope")

		require.ErrorIs(t, err, diffset.ErrNotFound)
	})

	t.Run("rejects diffset without ID", func(t *testing.T) {
		t.Parallel()

		store := jsonl.NewStore(filepath.Join(t.TempDir(), "diffsets.jsonl"))

		err := store.Save(context.Background(), &diffset.DiffSet{})

		require.Error(t, err)
	})

	t.Run("returns error for malformed JSON", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "bad.jsonl")
		content := `{"op":"finalize","id":"ds-1","at":"2024-01-02T03:04:05Z"}
not valid json`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		store := jsonl.NewStore(path)
		_, err := store.Load(context.Background(), "ds-1")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "line 2")
	})
}

func TestStore_Finalize(t *testing.T) {
	t.Parallel()

	store := jsonl.NewStore(filepath.Join(t.TempDir(), "diffsets.jsonl"))
	store.Now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, sampleDiffSet("ds-1")))

	finalized, err := store.IsFinalized(ctx, "ds-1")
	require.NoError(t, err)
	assert.False(t, finalized)

	require.NoError(t, store.Finalize(ctx, "ds-1"))
	require.NoError(t, store.Finalize(ctx, "ds-1"))

	finalized, err = store.IsFinalized(ctx, "ds-1")
	require.NoError(t, err)
	assert.True(t, finalized)

	finalized, err = store.IsFinalized(ctx, "other")
	require.NoError(t, err)
	assert.False(t, finalized)

	err = store.Finalize(ctx, "other")
	require.ErrorIs(t, err, diffset.ErrNotFound)
}
