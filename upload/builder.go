// Package upload turns uploaded diffs into validated DiffSets.
//
// A Builder parses the main and optional parent diff, resolves which
// repository blob each file derives from, and checks on a bounded worker
// pool that every file can be reconstructed before the DiffSet is saved.
package upload

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/fwojciec/diffset"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the per-upload concurrency when Builder.Workers is zero.
const DefaultWorkers = 4

// Request is an uploaded diff.
type Request struct {
	Diff         []byte
	ParentDiff   []byte // Optional diff the main diff is stacked on
	Basedir      string // Directory the diff's paths are relative to
	BaseCommitID string // Commit the diff applies to, when the diff does not say
	Dialect      diffset.Dialect
}

// Builder creates DiffSets and DiffCommits from uploads.
type Builder struct {
	Parser  diffset.Parser
	Fetcher diffset.Fetcher
	Patcher diffset.Patcher
	Store   diffset.Store   // Optional; results are saved when set
	History diffset.History // Optional; defaults to Store
	Logger  diffset.Logger
	Tool    diffset.SCMTool

	Workers      int  // Files processed concurrently
	Strict       bool // Fail the whole upload when any file fails
	Verify       bool // Reconstruct original and patched content of every file
	CheckSources bool // Check that every source blob exists

	Now   func() time.Time
	NewID func() string
}

// NewBuilder creates a Builder with strict validation enabled.
func NewBuilder(parser diffset.Parser, fetcher diffset.Fetcher, patcher diffset.Patcher) *Builder {
	return &Builder{
		Parser:       parser,
		Fetcher:      fetcher,
		Patcher:      patcher,
		Logger:       diffset.NopLogger{},
		Tool:         diffset.ToolGeneric,
		Workers:      DefaultWorkers,
		Strict:       true,
		Verify:       true,
		CheckSources: true,
		Now:          time.Now,
		NewID:        uuid.NewString,
	}
}

// Build parses req and validates every file it touches.
//
// When the upload is cancelled nothing is saved and the error wraps
// diffset.ErrCancelled. In strict mode any failing file fails the upload
// with diffset.ErrPartialFailure; otherwise failing files are flagged and
// the DiffSet is returned.
func (b *Builder) Build(ctx context.Context, req Request) (*diffset.DiffSet, error) {
	ds, parent, err := b.parse(req)
	if err != nil {
		return nil, err
	}

	base := effectiveBase(ds, parent, req.BaseCommitID)
	fillRevisions(ds.Files, base)
	if parent != nil {
		fillRevisions(parent.Files, base)
	}

	ds.Basedir = strings.TrimSpace(req.Basedir)
	if b.Fetcher.AbsolutePaths() {
		ds.Basedir = ""
	}
	ds.BaseCommitID = base

	res := diffset.Resolve(ds, parent)
	for _, unused := range res.Unused {
		b.logger().Debug(ctx, "parent diff entry not used by any file", map[string]any{
			"path": unused.Path(),
		})
	}
	ds.Files = res.Files

	source := func(ctx context.Context, f diffset.FileDiff) ([]byte, error) {
		return b.OriginalFile(ctx, ds, f)
	}
	if err := b.process(ctx, ds, ds.Files, source, true); err != nil {
		return nil, err
	}

	ds.ID = b.NewID()
	ds.CreatedAt = b.Now()
	if b.Store != nil {
		if err := b.Store.Save(ctx, ds); err != nil {
			return nil, err
		}
	}

	b.logger().Info(ctx, "diffset created", map[string]any{
		"id":           ds.ID,
		"files":        len(ds.Files),
		"parent_files": len(res.Parent),
		"dialect":      ds.Dialect.String(),
		"base":         ds.BaseCommitID,
	})
	return ds, nil
}

// OriginalFile reconstructs f's content before the main diff: the source
// blob, with the parent diff applied when f builds on it. Rename-only
// parents require no patching.
func (b *Builder) OriginalFile(ctx context.Context, ds *diffset.DiffSet, f diffset.FileDiff) ([]byte, error) {
	src := f.SourcePath
	if src == "" {
		src = f.Path()
	}
	data, err := b.Fetcher.Fetch(ctx, joinBasedir(ds.Basedir, src), f.SourceRevision)
	if err != nil {
		return nil, err
	}
	if !f.NeedsParentPatch() {
		return data, nil
	}

	parent := f.Parent
	if parent.IsBinary {
		data, err = b.Patcher.ApplyBinary(data, parent.Binary)
	} else {
		data, err = b.Patcher.Apply(data, parent.Hunks)
	}
	if err != nil {
		return nil, withPath(err, parent.Path())
	}
	return data, nil
}

// PatchedFile applies f's own changes to its original content.
func (b *Builder) PatchedFile(original []byte, f diffset.FileDiff) ([]byte, error) {
	if f.IsBinary {
		if f.Binary == nil {
			return nil, &diffset.PatchError{Path: f.Path(), Hunk: -1, Err: diffset.ErrBinaryUnsupported}
		}
		out, err := b.Patcher.ApplyBinary(original, f.Binary)
		if err != nil {
			return nil, withPath(err, f.Path())
		}
		return out, nil
	}
	if len(f.Hunks) == 0 {
		return original, nil
	}
	out, err := b.Patcher.Apply(original, f.Hunks)
	if err != nil {
		return nil, withPath(err, f.Path())
	}
	return out, nil
}

// sourceFunc produces a file's original content.
type sourceFunc func(ctx context.Context, f diffset.FileDiff) ([]byte, error)

// process validates files concurrently, recording each file's outcome in
// place.
func (b *Builder) process(ctx context.Context, ds *diffset.DiffSet, files []diffset.FileDiff, source sourceFunc, checkSources bool) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers())

	for i := range files {
		f := &files[i]
		g.Go(func() error {
			err := b.processFile(gctx, ds, f, source, checkSources)
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				f.Status = diffset.StatusFailed
				f.Err = err
				f.Failure = err.Error()
				b.logger().Error(ctx, "file failed validation", err, map[string]any{
					"path": f.Path(),
				})
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil || ctx.Err() != nil {
		b.logger().Warn(ctx, "upload cancelled", nil)
		return &diffset.UploadError{Err: diffset.ErrCancelled}
	}

	var failures []diffset.FileFailure
	for _, f := range files {
		if f.Status == diffset.StatusFailed {
			failures = append(failures, diffset.FileFailure{Path: f.Path(), Err: f.Err})
		}
	}
	if len(failures) > 0 && b.Strict {
		return &diffset.UploadError{Err: diffset.ErrPartialFailure, Failures: failures}
	}
	return nil
}

func (b *Builder) processFile(ctx context.Context, ds *diffset.DiffSet, f *diffset.FileDiff, source sourceFunc, checkSources bool) error {
	if f.IsBinary && f.Binary == nil {
		f.Status = diffset.StatusSkipped
		return nil
	}

	if checkSources && b.CheckSources && f.Kind != diffset.Added {
		fullPath := joinBasedir(ds.Basedir, f.SourcePath)
		ok, err := b.Fetcher.Exists(ctx, fullPath, f.SourceRevision)
		if err != nil {
			return err
		}
		if !ok {
			return &diffset.FetchError{Path: fullPath, Revision: f.SourceRevision, Err: diffset.ErrSourceMissing}
		}
	}

	if b.Verify {
		original, err := source(ctx, *f)
		if err != nil {
			return err
		}
		if _, err := b.PatchedFile(original, *f); err != nil {
			return err
		}
	}

	f.Status = diffset.StatusValidated
	return nil
}

func (b *Builder) parse(req Request) (main, parent *diffset.DiffSet, err error) {
	dialect := req.Dialect
	if dialect == diffset.DialectAuto {
		dialect = b.Tool.Dialect
	}

	main, err = b.Parser.Parse(req.Diff, dialect)
	if err != nil {
		return nil, nil, err
	}
	if len(req.ParentDiff) > 0 {
		parent, err = b.Parser.Parse(req.ParentDiff, dialect)
		if err != nil {
			return nil, nil, err
		}
	}
	return main, parent, nil
}

// effectiveBase picks the commit the upload applies to. A revision embedded
// in the parent diff wins over one in the main diff, which wins over the
// one supplied with the request.
func effectiveBase(main, parent *diffset.DiffSet, requested string) string {
	if parent != nil && parent.OrigCommitID != "" {
		return parent.OrigCommitID
	}
	if main.OrigCommitID != "" {
		return main.OrigCommitID
	}
	return strings.TrimSpace(requested)
}

// fillRevisions replaces revisions the dialect could not express.
func fillRevisions(files []diffset.FileDiff, base string) {
	rev := diffset.Head
	if base != "" {
		rev = diffset.Revision(base)
	}
	for i := range files {
		if files[i].OriginalRevision == diffset.Unknown {
			files[i].OriginalRevision = rev
		}
	}
}

func joinBasedir(basedir, p string) string {
	if basedir == "" {
		return p
	}
	return path.Join(basedir, p)
}

// withPath fills in the file path of a patch error.
func withPath(err error, p string) error {
	var pe *diffset.PatchError
	if errors.As(err, &pe) {
		if pe.Path == "" {
			cp := *pe
			cp.Path = p
			return &cp
		}
		return err
	}
	return &diffset.PatchError{Path: p, Hunk: -1, Err: err}
}

func (b *Builder) workers() int {
	if b.Workers <= 0 {
		return DefaultWorkers
	}
	return b.Workers
}

func (b *Builder) logger() diffset.Logger {
	if b.Logger == nil {
		return diffset.NopLogger{}
	}
	return b.Logger
}
