// Command diffset parses uploaded diffs and validates them against a
// repository.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fwojciec/diffset"
	"github.com/fwojciec/diffset/cache"
	"github.com/fwojciec/diffset/diffparse"
	"github.com/fwojciec/diffset/fetch"
	"github.com/fwojciec/diffset/fs"
	"github.com/fwojciec/diffset/git"
	"github.com/fwojciec/diffset/github"
	"github.com/fwojciec/diffset/gitdiff"
	"github.com/fwojciec/diffset/gogit"
	"github.com/fwojciec/diffset/jsonl"
	"github.com/fwojciec/diffset/patch"
	"github.com/fwojciec/diffset/sqlstore"
	"github.com/fwojciec/diffset/upload"
	"github.com/fwojciec/diffset/zap"
	"golang.org/x/term"
)

// ErrNoInput is returned when no diff file is named and stdin is a terminal.
var ErrNoInput = errors.New("no diff given: pass a file or pipe a diff to stdin")

// ErrNoChanges is returned when the diff contains no files.
var ErrNoChanges = errors.New("no changes in diff")

// ErrNoSuchFile is returned by Show for a path the DiffSet does not touch.
var ErrNoSuchFile = errors.New("file not in diffset")

// App encapsulates the application logic for testing.
type App struct {
	Stdin           io.Reader
	Stdout          io.Writer
	StdinIsTerminal bool

	Parser    diffset.Parser
	Builder   *upload.Builder
	Store     diffset.Store
	Formatter diffset.Formatter
	Dialect   diffset.Dialect
}

// ReadDiff reads the diff named by path, or stdin when path is empty or "-".
func (a *App) ReadDiff(path string) ([]byte, error) {
	if path != "" && path != "-" {
		return os.ReadFile(path)
	}
	if a.StdinIsTerminal {
		return nil, ErrNoInput
	}
	return io.ReadAll(a.Stdin)
}

// Parse parses data and prints a summary of its files.
func (a *App) Parse(data []byte) error {
	ds, err := a.Parser.Parse(data, a.Dialect)
	if err != nil {
		return err
	}
	if len(ds.Files) == 0 {
		return ErrNoChanges
	}
	return printFiles(a.Stdout, ds.Files, false)
}

// Upload builds, validates and saves a DiffSet.
func (a *App) Upload(ctx context.Context, req upload.Request) error {
	req.Dialect = a.Dialect
	ds, err := a.Builder.Build(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Stdout, "Created diffset %s (base %s)\n", ds.ID, baseLabel(ds.BaseCommitID))
	return printFiles(a.Stdout, ds.Files, true)
}

// Commit adds a commit to the DiffSet with id, creating a new DiffSet based
// on base when id is empty.
func (a *App) Commit(ctx context.Context, id, base string, req upload.CommitRequest) error {
	req.Dialect = a.Dialect

	var ds *diffset.DiffSet
	var err error
	if id == "" {
		ds, err = a.Builder.NewDiffSet(ctx, base)
	} else {
		ds, err = a.Store.Load(ctx, id)
	}
	if err != nil {
		return err
	}

	commit, err := a.Builder.BuildCommit(ctx, ds, req)
	var verrs diffset.ValidationErrors
	if errors.As(err, &verrs) && verrs.Has("parent_id") {
		return fmt.Errorf("%w: upload commit %s first", err, req.Commit.ParentID)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Stdout, "Added commit %s to diffset %s\n", commit.CommitID, ds.ID)
	return printFiles(a.Stdout, commit.Files, true)
}

// Finalize publishes the DiffSet with id.
func (a *App) Finalize(ctx context.Context, id string) error {
	if err := a.Store.Finalize(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.Stdout, "Published diffset %s\n", id)
	return nil
}

// Show writes the stored DiffSet with id as a git diff, limited to paths
// when any are given.
func (a *App) Show(ctx context.Context, id string, paths ...string) error {
	ds, err := a.Store.Load(ctx, id)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return a.Formatter.Format(a.Stdout, ds)
	}
	selected := *ds
	selected.Files = make([]diffset.FileDiff, 0, len(paths))
	for _, p := range paths {
		f, ok := ds.File(p)
		if !ok {
			return fmt.Errorf("%s: %w", p, ErrNoSuchFile)
		}
		selected.Files = append(selected.Files, *f)
	}
	return a.Formatter.Format(a.Stdout, &selected)
}

func baseLabel(base string) string {
	if base == "" {
		return string(diffset.Head)
	}
	return base
}

// wire builds the App's collaborators from cfg. The returned function
// releases them.
func wire(ctx context.Context, cfg Config, app *App) (func(), error) {
	logger, err := zap.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	closers := []func(){func() { _ = logger.Sync() }}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	backend, err := newBackend(cfg, logger)
	if err != nil {
		cleanup()
		return nil, err
	}

	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, err
	}
	closers = append(closers, closeStore)

	codec := gitdiff.NewBinaryCodec()
	parser := newParser(cfg, codec)

	fetcher := fetch.NewFetcher(backend, cache.New(cfg.CacheSize))
	fetcher.Logger = logger
	fetcher.Timeout = cfg.Timeout
	fetcher.MaxRetries = cfg.Retries
	if cfg.Retries == 0 {
		fetcher.MaxRetries = -1
	}

	engine := patch.NewEngine(codec)
	engine.MaxShift = cfg.MaxShift

	builder := upload.NewBuilder(parser, fetcher, engine)
	builder.Store = store
	builder.Logger = logger
	builder.Tool = cfg.Tool
	builder.Workers = cfg.Workers
	builder.Strict = cfg.Strict
	builder.Verify = cfg.Verify
	builder.CheckSources = cfg.CheckSources

	app.Parser = parser
	app.Builder = builder
	app.Store = store
	app.Formatter = &diffset.GitFormatter{}
	app.Dialect = cfg.Dialect
	return cleanup, nil
}

// wireParser sets up only what the parse command needs.
func wireParser(cfg Config, app *App) {
	app.Parser = newParser(cfg, gitdiff.NewBinaryCodec())
	app.Dialect = cfg.Dialect
}

func newParser(cfg Config, codec *gitdiff.BinaryCodec) diffset.Parser {
	if cfg.Parser == ParserGitDiff {
		return gitdiff.NewParser()
	}
	return diffparse.NewParser(codec)
}

func newBackend(cfg Config, logger diffset.Logger) (diffset.Backend, error) {
	var backend diffset.Backend
	switch cfg.Backend {
	case BackendGoGit:
		repo, err := gogit.Open(cfg.Repo)
		if err != nil {
			return nil, err
		}
		backend = repo
	case BackendGit:
		backend = git.NewRunner(cfg.Repo)
	case BackendGitHub:
		gh := github.NewBackend(nil, cfg.GitHubOwner, cfg.GitHubRepo, cfg.GitHubToken)
		gh.Logger = logger
		backend = gh
	default:
		return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
	if cfg.CacheDir != "" {
		backend = fs.NewBackend(backend, cfg.CacheDir)
	}
	return backend, nil
}

func newStore(ctx context.Context, cfg Config) (diffset.Store, func(), error) {
	if cfg.Store == StoreJSONL {
		return jsonl.NewStore(cfg.StoreDSN), func() {}, nil
	}
	store, err := sqlstore.Open(ctx, sqlstore.Backend(cfg.Store), cfg.StoreDSN, "")
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

func main() {
	// Set up context with signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app := &App{
		Stdin:           os.Stdin,
		Stdout:          os.Stdout,
		StdinIsTerminal: term.IsTerminal(int(os.Stdin.Fd())),
	}

	if err := newRootCmd(app).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
