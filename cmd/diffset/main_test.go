package main_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/fwojciec/diffset"
	main "github.com/fwojciec/diffset/cmd/diffset"
	"github.com/fwojciec/diffset/diffparse"
	"github.com/fwojciec/diffset/fetch"
	"github.com/fwojciec/diffset/mock"
	"github.com/fwojciec/diffset/patch"
	"github.com/fwojciec/diffset/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const readmeDiff = `diff --git a/README b/README
index 94bdd3e..197009f 100644
--- a/README
+++ b/README
@@ -1 +1,2 @@
 Foo
+Bar
`

func newBuilder(store diffset.Store) *upload.Builder {
	backend := &mock.Backend{
		GetFileFn: func(_ context.Context, path string, rev diffset.Revision) ([]byte, error) {
			if path == "README" && rev == "94bdd3e" {
				return []byte("Foo\n"), nil
			}
			return nil, fmt.Errorf("%s: %w", path, diffset.ErrFileNotFound)
		},
		FileExistsFn: func(_ context.Context, path string, rev diffset.Revision) (bool, error) {
			return path == "README" && rev == "94bdd3e", nil
		},
	}
	f := fetch.NewFetcher(backend, nil)
	f.MaxRetries = -1
	b := upload.NewBuilder(diffparse.NewParser(nil), f, patch.NewEngine(nil))
	b.Store = store
	b.Tool = diffset.ToolGit
	b.NewID = func() string { return "ds-1" }
	b.Now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return b
}

func memoryStore() *mock.Store {
	saved := map[string]*diffset.DiffSet{}
	finalized := map[string]bool{}
	return &mock.Store{
		SaveFn: func(_ context.Context, ds *diffset.DiffSet) error {
			saved[ds.ID] = ds
			return nil
		},
		LoadFn: func(_ context.Context, id string) (*diffset.DiffSet, error) {
			ds, ok := saved[id]
			if !ok {
				return nil, diffset.ErrNotFound
			}
			return ds, nil
		},
		FinalizeFn: func(_ context.Context, id string) error {
			finalized[id] = true
			return nil
		},
		IsFinalizedFn: func(_ context.Context, id string) (bool, error) {
			return finalized[id], nil
		},
	}
}

func TestApp_Parse_PrintsFiles(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	app := &main.App{Stdout: &out, Parser: diffparse.NewParser(nil)}

	err := app.Parse([]byte(readmeDiff))

	require.NoError(t, err)
	assert.Contains(t, out.String(), "README")
	assert.Contains(t, out.String(), "modified")
	assert.Contains(t, out.String(), "94bdd3e")
}

func TestApp_Parse_NoChanges(t *testing.T) {
	t.Parallel()

	app := &main.App{
		Stdout: &bytes.Buffer{},
		Parser: &mock.Parser{
			ParseFn: func([]byte, diffset.Dialect) (*diffset.DiffSet, error) {
				return &diffset.DiffSet{}, nil
			},
		},
	}

	err := app.Parse([]byte("nothing"))

	require.ErrorIs(t, err, main.ErrNoChanges)
}

func TestApp_Parse_ParseError(t *testing.T) {
	t.Parallel()

	parseErr := errors.New("invalid diff format")
	app := &main.App{
		Stdout: &bytes.Buffer{},
		Parser: &mock.Parser{
			ParseFn: func([]byte, diffset.Dialect) (*diffset.DiffSet, error) {
				return nil, parseErr
			},
		},
	}

	err := app.Parse([]byte("invalid content"))

	assert.Equal(t, parseErr, err)
}

func TestApp_ReadDiff(t *testing.T) {
	t.Parallel()

	t.Run("reads piped stdin", func(t *testing.T) {
		t.Parallel()

		app := &main.App{Stdin: strings.NewReader(readmeDiff)}

		data, err := app.ReadDiff("")

		require.NoError(t, err)
		assert.Equal(t, readmeDiff, string(data))
	})

	t.Run("rejects terminal stdin", func(t *testing.T) {
		t.Parallel()

		app := &main.App{Stdin: strings.NewReader(""), StdinIsTerminal: true}

		_, err := app.ReadDiff("-")

		require.ErrorIs(t, err, main.ErrNoInput)
	})
}

func TestApp_Upload(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	store := memoryStore()
	app := &main.App{Stdout: &out, Builder: newBuilder(store), Store: store}

	err := app.Upload(context.Background(), upload.Request{Diff: []byte(readmeDiff)})

	require.NoError(t, err)
	assert.Contains(t, out.String(), "Created diffset ds-1")
	assert.Contains(t, out.String(), "validated")
	ds, err := store.Load(context.Background(), "ds-1")
	require.NoError(t, err)
	assert.Len(t, ds.Files, 1)
}

func TestApp_Upload_Failure(t *testing.T) {
	t.Parallel()

	store := memoryStore()
	b := newBuilder(store)
	b.Strict = false
	var out bytes.Buffer
	app := &main.App{Stdout: &out, Builder: b, Store: store}
	diff := strings.ReplaceAll(readmeDiff, "94bdd3e", "1111111")

	err := app.Upload(context.Background(), upload.Request{Diff: []byte(diff)})

	require.NoError(t, err)
	assert.Contains(t, out.String(), "failed")
	assert.Contains(t, out.String(), "README: source file missing")
}

func TestApp_CommitAndFinalize(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	store := memoryStore()
	app := &main.App{Stdout: &out, Builder: newBuilder(store), Store: store}
	ctx := context.Background()
	req := upload.CommitRequest{
		Diff: []byte(readmeDiff),
		Commit: diffset.CommitInput{
			CommitID:    "abc1234",
			ParentID:    "def5678",
			Message:     "Add Bar",
			AuthorName:  "Example User",
			AuthorEmail: "user@example.com",
			AuthorDate:  "2024-01-02T03:04:05Z",
		},
	}

	require.NoError(t, app.Commit(ctx, "", "def5678", req))
	assert.Contains(t, out.String(), "Added commit abc1234 to diffset ds-1")

	require.NoError(t, app.Finalize(ctx, "ds-1"))
	assert.Contains(t, out.String(), "Published diffset ds-1")

	req.Commit.CommitID = "bcd2345"
	req.Commit.ParentID = "abc1234"
	err := app.Commit(ctx, "ds-1", "", req)
	require.ErrorIs(t, err, diffset.ErrAlreadyFinalized)
}

func TestApp_Show(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	store := memoryStore()
	app := &main.App{
		Stdout:    &out,
		Builder:   newBuilder(store),
		Store:     store,
		Formatter: &diffset.GitFormatter{},
	}
	require.NoError(t, app.Upload(context.Background(), upload.Request{Diff: []byte(readmeDiff)}))
	out.Reset()

	err := app.Show(context.Background(), "ds-1")

	require.NoError(t, err)
	assert.Contains(t, out.String(), "diff --git a/README b/README\n")
	assert.Contains(t, out.String(), "+Bar\n")
}

func TestApp_Show_NotFound(t *testing.T) {
	t.Parallel()

	app := &main.App{Stdout: &bytes.Buffer{}, Store: memoryStore(), Formatter: &diffset.GitFormatter{}}

	err := app.Show(context.Background(), "missing")

	require.ErrorIs(t, err, diffset.ErrNotFound)
}

func TestApp_Show_FormatterError(t *testing.T) {
	t.Parallel()

	formatErr := errors.New("write failed")
	app := &main.App{
		Stdout: &bytes.Buffer{},
		Store: &mock.Store{
			LoadFn: func(_ context.Context, id string) (*diffset.DiffSet, error) {
				return &diffset.DiffSet{ID: id}, nil
			},
		},
		Formatter: &mock.Formatter{
			FormatFn: func(_ io.Writer, ds *diffset.DiffSet) error {
				assert.Equal(t, "ds-1", ds.ID)
				return formatErr
			},
		},
	}

	err := app.Show(context.Background(), "ds-1")

	require.ErrorIs(t, err, formatErr)
}

func TestApp_Show_SelectedFiles(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	store := memoryStore()
	app := &main.App{
		Stdout:    &out,
		Builder:   newBuilder(store),
		Store:     store,
		Formatter: &diffset.GitFormatter{},
	}
	require.NoError(t, app.Upload(context.Background(), upload.Request{Diff: []byte(readmeDiff)}))
	out.Reset()

	require.NoError(t, app.Show(context.Background(), "ds-1", "README"))
	assert.Contains(t, out.String(), "diff --git a/README b/README\n")

	err := app.Show(context.Background(), "ds-1", "MISSING")
	require.ErrorIs(t, err, main.ErrNoSuchFile)
	assert.ErrorContains(t, err, "MISSING")
}

func TestApp_Commit_UnknownParentNamesIt(t *testing.T) {
	t.Parallel()

	store := memoryStore()
	app := &main.App{Stdout: &bytes.Buffer{}, Builder: newBuilder(store), Store: store}
	ctx := context.Background()
	req := upload.CommitRequest{
		Diff: []byte(readmeDiff),
		Commit: diffset.CommitInput{
			CommitID:    "abc1234",
			ParentID:    "def5678",
			Message:     "Add Bar",
			AuthorName:  "Example User",
			AuthorEmail: "user@example.com",
			AuthorDate:  "2024-01-02T03:04:05Z",
		},
	}
	require.NoError(t, app.Commit(ctx, "", "def5678", req))

	req.Commit.CommitID = "bcd2345"
	req.Commit.ParentID = "fff9999"
	err := app.Commit(ctx, "ds-1", "", req)

	var verrs diffset.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.ErrorContains(t, err, "upload commit fff9999 first")
}
