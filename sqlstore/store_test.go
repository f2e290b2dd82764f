package sqlstore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fwojciec/diffset"
	"github.com/fwojciec/diffset/sqlstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *sqlstore.Store {
	t.Helper()
	store, err := sqlstore.Open(context.Background(), sqlstore.SQLite,
		filepath.Join(t.TempDir(), "diffset.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleDiffSet(id string) *diffset.DiffSet {
	return &diffset.DiffSet{
		ID:           id,
		Dialect:      diffset.DialectGit,
		BaseCommitID: "def5678",
		Files: []diffset.FileDiff{{
			OriginalPath:     "README",
			ModifiedPath:     "README",
			OriginalRevision: "94bdd3e",
			ModifiedRevision: "197009f",
			Hunks: []diffset.Hunk{{
				OriginalStart: 1, OriginalLength: 1, ModifiedStart: 1, ModifiedLength: 2,
				Lines: []diffset.Line{
					{Tag: diffset.TagContext, Content: "Foo\n"},
					{Tag: diffset.TagAdded, Content: "Bar\n"},
				},
			}},
		}},
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestStore_SQLite_SaveLoad(t *testing.T) {
	t.Parallel()

	store := openSQLite(t)
	ctx := context.Background()
	want := sampleDiffSet("ds-1")

	require.NoError(t, store.Save(ctx, want))
	got, err := store.Load(ctx, "ds-1")

	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStore_SQLite_SaveReplaces(t *testing.T) {
	t.Parallel()

	store := openSQLite(t)
	ctx := context.Background()
	ds := sampleDiffSet("ds-1")
	require.NoError(t, store.Save(ctx, ds))

	ds.RootCommitID = "def5678"
	require.NoError(t, store.Save(ctx, ds))

	got, err := store.Load(ctx, "ds-1")
	require.NoError(t, err)
	assert.Equal(t, "def5678", got.RootCommitID)
}

func TestStore_SQLite_LoadUnknown(t *testing.T) {
	t.Parallel()

	store := openSQLite(t)

	_, err := store.Load(context.Background(), "missing")

	require.ErrorIs(t, err, diffset.ErrNotFound)
}

func TestStore_SQLite_Finalize(t *testing.T) {
	t.Parallel()

	store := openSQLite(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, sampleDiffSet("ds-1")))

	finalized, err := store.IsFinalized(ctx, "ds-1")
	require.NoError(t, err)
	assert.False(t, finalized)

	require.NoError(t, store.Finalize(ctx, "ds-1"))

	finalized, err = store.IsFinalized(ctx, "ds-1")
	require.NoError(t, err)
	assert.True(t, finalized)

	// Saving again keeps the published flag.
	require.NoError(t, store.Save(ctx, sampleDiffSet("ds-1")))
	finalized, err = store.IsFinalized(ctx, "ds-1")
	require.NoError(t, err)
	assert.True(t, finalized)

	finalized, err = store.IsFinalized(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, finalized)

	require.ErrorIs(t, store.Finalize(ctx, "missing"), diffset.ErrNotFound)
}

func TestOpen_Errors(t *testing.T) {
	t.Parallel()

	t.Run("rejects unsupported backend", func(t *testing.T) {
		t.Parallel()

		_, err := sqlstore.Open(context.Background(), "oracle", "", "")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported store backend")
	})

	t.Run("rejects invalid table name", func(t *testing.T) {
		t.Parallel()

		_, err := sqlstore.Open(context.Background(), sqlstore.SQLite,
			filepath.Join(t.TempDir(), "x.db"), "diffsets; DROP TABLE x")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid table name")
	})

	t.Run("rejects malformed MySQL DSN", func(t *testing.T) {
		t.Parallel()

		_, err := sqlstore.Open(context.Background(), sqlstore.MySQL, "not a dsn", "")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid MySQL DSN")
	})
}
