package upload

import (
	"context"
	"strings"

	"github.com/fwojciec/diffset"
)

// CommitRequest is a single uploaded commit.
type CommitRequest struct {
	Diff    []byte
	Basedir string
	Dialect diffset.Dialect
	Commit  diffset.CommitInput
}

// NewDiffSet creates and saves an empty DiffSet that commits can be
// uploaded into.
// A non-empty base commit must be a valid commit ID for the Builder's tool.
func (b *Builder) NewDiffSet(ctx context.Context, baseCommitID string) (*diffset.DiffSet, error) {
	base := strings.TrimSpace(baseCommitID)
	if base != "" {
		if err := diffset.ValidateCommitID(b.Tool, "base_commit_id", base); err != nil {
			return nil, err
		}
	}
	ds := &diffset.DiffSet{
		ID:           b.NewID(),
		Dialect:      b.Tool.Dialect,
		BaseCommitID: base,
		Files:        []diffset.FileDiff{},
		CreatedAt:    b.Now(),
	}
	if b.Store != nil {
		if err := b.Store.Save(ctx, ds); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// BuildCommit parses req and appends it to ds as a DiffCommit.
//
// Commits cannot be added once ds has been published. Metadata is
// validated before the diff is read. The commit's parent must be the
// DiffSet's root commit or a commit already uploaded; the first commit
// establishes the root. Files whose history runs through earlier uploaded
// commits are reconstructed from those commits rather than the repository.
func (b *Builder) BuildCommit(ctx context.Context, ds *diffset.DiffSet, req CommitRequest) (*diffset.DiffCommit, error) {
	if history := b.history(); history != nil && ds.ID != "" {
		finalized, err := history.IsFinalized(ctx, ds.ID)
		if err != nil {
			return nil, err
		}
		if finalized {
			return nil, &diffset.UploadError{Err: diffset.ErrAlreadyFinalized}
		}
	}

	meta, err := diffset.ParseCommitMetadata(b.Tool, req.Commit)
	if err != nil {
		return nil, err
	}
	if err := checkCommitParent(ds, meta); err != nil {
		return nil, err
	}

	dialect := req.Dialect
	if dialect == diffset.DialectAuto {
		dialect = b.Tool.Dialect
	}
	parsed, err := b.Parser.Parse(req.Diff, dialect)
	if err != nil {
		return nil, err
	}

	root := ds.RootCommitID
	if len(ds.Commits) == 0 {
		root = meta.ParentID
	}

	basedir := strings.TrimSpace(req.Basedir)
	if b.Fetcher.AbsolutePaths() {
		basedir = ""
	}
	work := &diffset.DiffSet{Basedir: basedir, Dialect: parsed.Dialect}

	fillRevisions(parsed.Files, meta.ParentID)
	files := diffset.Resolve(parsed, nil).Files

	var source sourceFunc
	onRepository := meta.ParentID == root
	if onRepository {
		source = func(ctx context.Context, f diffset.FileDiff) ([]byte, error) {
			return b.OriginalFile(ctx, work, f)
		}
	} else {
		source = func(ctx context.Context, f diffset.FileDiff) ([]byte, error) {
			if f.Kind == diffset.Added {
				return []byte{}, nil
			}
			return b.commitSource(ctx, ds, work, root, meta.ParentID, f.SourcePath)
		}
	}
	if err := b.process(ctx, work, files, source, onRepository); err != nil {
		return nil, err
	}

	ds.RootCommitID = root
	if ds.Basedir == "" {
		ds.Basedir = basedir
	}
	ds.Commits = append(ds.Commits, diffset.DiffCommit{CommitMetadata: meta, Files: files})
	if b.Store != nil {
		if err := b.Store.Save(ctx, ds); err != nil {
			ds.Commits = ds.Commits[:len(ds.Commits)-1]
			return nil, err
		}
	}

	b.logger().Info(ctx, "commit added", map[string]any{
		"id":        ds.ID,
		"commit_id": meta.CommitID,
		"parent_id": meta.ParentID,
		"files":     len(files),
	})
	return &ds.Commits[len(ds.Commits)-1], nil
}

// checkCommitParent enforces that commits form a chain rooted at the
// DiffSet's root commit.
func checkCommitParent(ds *diffset.DiffSet, meta diffset.CommitMetadata) error {
	if _, dup := ds.Commit(meta.CommitID); dup {
		return diffset.ValidationErrors{{
			Field: "commit_id", Reason: diffset.ReasonInconsistent,
			Value: "commit " + meta.CommitID + " has already been uploaded",
		}}
	}
	if len(ds.Commits) == 0 {
		return nil
	}
	if meta.ParentID == ds.RootCommitID {
		return nil
	}
	if _, ok := ds.Commit(meta.ParentID); ok {
		return nil
	}
	return diffset.ValidationErrors{{Field: "parent_id", Reason: diffset.ReasonUnknownParent, Value: meta.ParentID}}
}

// commitSource reconstructs p as of commitID by walking the uploaded
// commit chain back towards the root, fetching from the repository when no
// uploaded commit touched the file.
func (b *Builder) commitSource(ctx context.Context, ds, work *diffset.DiffSet, root, commitID, p string) ([]byte, error) {
	for id := commitID; id != root; {
		c, ok := ds.Commit(id)
		if !ok {
			break
		}
		for _, cf := range c.Files {
			if cf.ModifiedPath != p {
				continue
			}
			var original []byte
			if cf.Kind != diffset.Added {
				var err error
				original, err = b.commitSource(ctx, ds, work, root, c.ParentID, cf.OriginalPath)
				if err != nil {
					return nil, err
				}
			}
			return b.PatchedFile(original, cf)
		}
		id = c.ParentID
	}
	return b.Fetcher.Fetch(ctx, joinBasedir(work.Basedir, p), diffset.Revision(root))
}

func (b *Builder) history() diffset.History {
	if b.History != nil {
		return b.History
	}
	if b.Store != nil {
		return b.Store
	}
	return nil
}
