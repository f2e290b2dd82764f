package diffset

import (
	"context"
	"io"
)

// Parser converts raw diff bytes into a DiffSet.
type Parser interface {
	// Parse reads a diff in the given dialect. DialectAuto sniffs the
	// dialect from the content.
	Parse(data []byte, hint Dialect) (*DiffSet, error)
}

// BinaryDecoder decodes the raw text of a single file section carrying a
// "GIT binary patch".
type BinaryDecoder interface {
	DecodeBinary(section []byte) (*BinaryPatch, error)
}

// BinaryApplier applies a decoded binary patch to the original content.
type BinaryApplier interface {
	ApplyBinary(original []byte, patch *BinaryPatch) ([]byte, error)
}

// Patcher applies hunks to file content.
type Patcher interface {
	// Apply applies hunks to original and returns the patched content.
	Apply(original []byte, hunks []Hunk) ([]byte, error)
	// ApplyBinary applies a binary patch to original.
	ApplyBinary(original []byte, patch *BinaryPatch) ([]byte, error)
}

// Backend fetches file content from a repository.
type Backend interface {
	// GetFile returns the content of path at revision. Returns an error
	// wrapping ErrFileNotFound when the file does not exist.
	GetFile(ctx context.Context, path string, revision Revision) ([]byte, error)
	// FileExists reports whether path exists at revision.
	FileExists(ctx context.Context, path string, revision Revision) (bool, error)
	// DiffsUseAbsolutePaths reports whether diffs for this repository carry
	// absolute paths, in which case a basedir is meaningless.
	DiffsUseAbsolutePaths() bool
}

// Fetcher resolves source blobs for the patch pipeline.
type Fetcher interface {
	Fetch(ctx context.Context, path string, revision Revision) ([]byte, error)
	Exists(ctx context.Context, path string, revision Revision) (bool, error)
	AbsolutePaths() bool
}

// BlobCache caches fetched blobs by path and revision. Entries are immutable
// once added.
type BlobCache interface {
	Get(path string, revision Revision) ([]byte, bool)
	Add(path string, revision Revision, data []byte)
}

// History reports whether a DiffSet's history has been published, after
// which no more commits may be attached to it.
type History interface {
	IsFinalized(ctx context.Context, id string) (bool, error)
}

// Store persists DiffSets.
type Store interface {
	History
	Save(ctx context.Context, ds *DiffSet) error
	Load(ctx context.Context, id string) (*DiffSet, error)
	Finalize(ctx context.Context, id string) error
}

// Formatter serializes a DiffSet back into diff text.
type Formatter interface {
	Format(w io.Writer, ds *DiffSet) error
}
