// Package diffset provides domain types for parsing uploaded diffs and
// reconstructing the files they describe.
package diffset

import (
	"io/fs"
	"time"
)

// Revision identifies a file's content in a repository. Its format is owned
// by the SCM: a blob SHA, a numeric revision, a changeset hash, or one of the
// sentinels below.
type Revision string

// Revision sentinels.
const (
	Unknown     Revision = ""             // Dialect carried no revision; filled in from the base commit
	PreCreation Revision = "PRE-CREATION" // Original side of an added file
	NewFile     Revision = "NEW FILE"     // Modified side with no identifier in the diff
	Null        Revision = "NULL"         // Modified side of a deleted file
	Head        Revision = "HEAD"         // Fallback when no base commit is known
)

// DiffSet is a complete parsed upload.
type DiffSet struct {
	ID           string       `json:"id"`
	Dialect      Dialect      `json:"dialect"`
	Basedir      string       `json:"basedir,omitempty"`
	BaseCommitID string       `json:"base_commit_id,omitempty"`
	OrigCommitID string       `json:"orig_commit_id,omitempty"` // Base revision embedded in the diff itself
	RootCommitID string       `json:"root_commit_id,omitempty"` // Parent of the first uploaded commit
	Files        []FileDiff   `json:"files"`
	Commits      []DiffCommit `json:"commits,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// File returns the record whose modified path (or original path, for
// deletions) equals path.
func (d *DiffSet) File(path string) (*FileDiff, bool) {
	for i := range d.Files {
		if d.Files[i].Path() == path {
			return &d.Files[i], true
		}
	}
	return nil, false
}

// Commit returns the uploaded commit with the given ID.
func (d *DiffSet) Commit(id string) (*DiffCommit, bool) {
	for i := range d.Commits {
		if d.Commits[i].CommitID == id {
			return &d.Commits[i], true
		}
	}
	return nil, false
}

// FileDiff represents one file's change within a diff.
type FileDiff struct {
	OriginalPath     string       `json:"original_path,omitempty"` // Empty for added files
	ModifiedPath     string       `json:"modified_path,omitempty"` // Empty for deleted files
	OriginalRevision Revision     `json:"original_revision"`
	ModifiedRevision Revision     `json:"modified_revision"`
	Kind             ChangeKind   `json:"kind"`
	Similarity       *int         `json:"similarity,omitempty"` // Rename/copy confidence, 0-100
	OldMode          fs.FileMode  `json:"old_mode,omitempty"`
	NewMode          fs.FileMode  `json:"new_mode,omitempty"`
	IsBinary         bool         `json:"is_binary,omitempty"`
	Binary           *BinaryPatch `json:"binary,omitempty"` // Nil when the diff only says "Binary files differ"
	Hunks            []Hunk       `json:"hunks,omitempty"`

	// Set by Resolve.
	SourcePath     string    `json:"source_path,omitempty"`
	SourceRevision Revision  `json:"source_revision,omitempty"`
	Parent         *FileDiff `json:"parent,omitempty"`

	// Set by the upload orchestrator.
	Status  FileStatus `json:"status,omitempty"`
	Failure string     `json:"failure,omitempty"`
	Err     error      `json:"-"`
}

// Path returns the path the file has after the change, or its original path
// when the file was deleted.
func (f FileDiff) Path() string {
	if f.ModifiedPath != "" {
		return f.ModifiedPath
	}
	return f.OriginalPath
}

// Stats returns the number of added and removed lines in the file.
func (f FileDiff) Stats() (added, removed int) {
	for _, hunk := range f.Hunks {
		for _, line := range hunk.Lines {
			switch line.Tag {
			case TagAdded:
				added++
			case TagRemoved:
				removed++
			}
		}
	}
	return added, removed
}

// NeedsParentPatch reports whether reconstructing the original file requires
// applying the parent diff on top of the fetched source.
func (f FileDiff) NeedsParentPatch() bool {
	if f.Parent == nil {
		return false
	}
	if f.Parent.IsBinary {
		return f.Parent.Binary != nil
	}
	return len(f.Parent.Hunks) > 0
}

// ChangeKind is the type of change made to a file.
type ChangeKind int

// Change kinds.
const (
	Modified ChangeKind = iota
	Added
	Deleted
	Renamed
	Copied
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Deleted:
		return "deleted"
	case Renamed:
		return "renamed"
	case Copied:
		return "copied"
	default:
		return "modified"
	}
}

// FileStatus is the outcome of processing a file during upload.
type FileStatus string

// File statuses.
const (
	StatusPending   FileStatus = ""
	StatusValidated FileStatus = "validated"
	StatusSkipped   FileStatus = "skipped" // Binary file without delta data
	StatusFailed    FileStatus = "failed"
)

// Hunk represents a contiguous edit region within a file.
type Hunk struct {
	OriginalStart  int    `json:"original_start"`  // From @@ -X,...
	OriginalLength int    `json:"original_length"` // From @@ -X,Y ...
	ModifiedStart  int    `json:"modified_start"`  // From @@ ...,+X
	ModifiedLength int    `json:"modified_length"` // From @@ ...,+X,Y
	Section        string `json:"section,omitempty"`
	Lines          []Line `json:"lines"`
}

// Counts returns the number of original-side and modified-side lines
// actually carried by the hunk.
func (h Hunk) Counts() (original, modified int) {
	for _, l := range h.Lines {
		switch l.Tag {
		case TagContext:
			original++
			modified++
		case TagRemoved:
			original++
		case TagAdded:
			modified++
		}
	}
	return original, modified
}

// Line is a single line within a hunk. Content includes the line terminator
// unless NoNewline is set.
type Line struct {
	Tag       Tag    `json:"tag"`
	Content   string `json:"content"`
	NoNewline bool   `json:"no_newline,omitempty"` // "\ No newline at end of file" marker
}

// Tag classifies a hunk line.
type Tag int

// Line tags.
const (
	TagContext Tag = iota
	TagRemoved
	TagAdded
)

// Prefix returns the unified diff marker for the tag.
func (t Tag) Prefix() string {
	switch t {
	case TagAdded:
		return "+"
	case TagRemoved:
		return "-"
	default:
		return " "
	}
}

// BinaryPatch holds a decoded "GIT binary patch" section.
type BinaryPatch struct {
	Method  BinaryMethod `json:"method"`
	Size    int64        `json:"size"` // Size of the result after applying Data
	Data    []byte       `json:"data"`
	Reverse *BinaryPatch `json:"reverse,omitempty"`
}

// BinaryMethod is the encoding of a binary patch.
type BinaryMethod int

// Binary patch methods.
const (
	BinaryLiteral BinaryMethod = iota
	BinaryDelta
)

// DiffCommit is a single commit uploaded into a DiffSet.
type DiffCommit struct {
	CommitMetadata
	Files []FileDiff `json:"files"`
}

// Dialect identifies the diff flavor produced by a particular SCM tool.
type Dialect int

// Supported dialects.
const (
	DialectAuto Dialect = iota
	DialectGit
	DialectMercurial
	DialectUnified
	DialectContext
)

func (d Dialect) String() string {
	switch d {
	case DialectGit:
		return "git"
	case DialectMercurial:
		return "hg"
	case DialectUnified:
		return "unified"
	case DialectContext:
		return "context"
	default:
		return "auto"
	}
}

// ParseDialect converts a dialect name as used in configuration.
func ParseDialect(s string) (Dialect, bool) {
	switch s {
	case "", "auto":
		return DialectAuto, true
	case "git":
		return DialectGit, true
	case "hg", "mercurial":
		return DialectMercurial, true
	case "unified", "svn":
		return DialectUnified, true
	case "context":
		return DialectContext, true
	default:
		return DialectAuto, false
	}
}
