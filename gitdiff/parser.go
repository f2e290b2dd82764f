// Package gitdiff implements diff parsing and binary patching using
// bluekeyes/go-gitdiff.
package gitdiff

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
	"github.com/fwojciec/diffset"
)

// Compile-time interface verification.
var _ diffset.Parser = (*Parser)(nil)

// Parser parses git-format diffs using go-gitdiff. It only understands the
// git dialect and is offered as an alternative to diffparse for
// repositories that upload nothing else.
type Parser struct{}

// NewParser creates a new Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse reads git diff content and returns the parsed result.
func (p *Parser) Parse(data []byte, hint diffset.Dialect) (*diffset.DiffSet, error) {
	if hint != diffset.DialectAuto && hint != diffset.DialectGit {
		return nil, fmt.Errorf("gitdiff: unsupported dialect %s", hint)
	}

	files, _, err := gitdiff.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &diffset.ParseError{Line: lineOf(err), Err: classify(err), Detail: err.Error()}
	}

	result := &diffset.DiffSet{
		Dialect: diffset.DialectGit,
		Files:   make([]diffset.FileDiff, 0, len(files)),
	}
	for _, f := range files {
		result.Files = append(result.Files, convertFile(f))
	}
	if err := result.Validate(); err != nil {
		return nil, &diffset.ParseError{Err: diffset.ErrMalformedHeader, Detail: err.Error()}
	}
	return result, nil
}

func convertFile(f *gitdiff.File) diffset.FileDiff {
	fd := diffset.FileDiff{
		OriginalPath:     f.OldName,
		ModifiedPath:     f.NewName,
		OriginalRevision: revision(f.OldOIDPrefix, diffset.Unknown),
		ModifiedRevision: revision(f.NewOIDPrefix, diffset.NewFile),
		IsBinary:         f.IsBinary,
		OldMode:          f.OldMode,
		NewMode:          f.NewMode,
	}

	switch {
	case f.IsNew:
		fd.Kind = diffset.Added
		fd.OriginalPath = ""
		fd.OriginalRevision = diffset.PreCreation
	case f.IsDelete:
		fd.Kind = diffset.Deleted
		fd.ModifiedPath = ""
		fd.ModifiedRevision = diffset.Null
	case f.IsRename:
		fd.Kind = diffset.Renamed
	case f.IsCopy:
		fd.Kind = diffset.Copied
	default:
		fd.Kind = diffset.Modified
	}
	if f.IsRename || f.IsCopy {
		score := f.Score
		fd.Similarity = &score
	}

	if f.BinaryFragment != nil {
		fd.Binary = convertBinary(f.BinaryFragment, f.ReverseBinaryFragment)
	}

	for _, frag := range f.TextFragments {
		fd.Hunks = append(fd.Hunks, convertFragment(frag))
	}
	return fd
}

func convertFragment(frag *gitdiff.TextFragment) diffset.Hunk {
	hunk := diffset.Hunk{
		OriginalStart:  int(frag.OldPosition),
		OriginalLength: int(frag.OldLines),
		ModifiedStart:  int(frag.NewPosition),
		ModifiedLength: int(frag.NewLines),
		Section:        frag.Comment,
		Lines:          make([]diffset.Line, 0, len(frag.Lines)),
	}

	for _, l := range frag.Lines {
		line := diffset.Line{
			Content:   l.Line,
			NoNewline: l.NoEOL(),
		}
		switch l.Op {
		case gitdiff.OpContext:
			line.Tag = diffset.TagContext
		case gitdiff.OpAdd:
			line.Tag = diffset.TagAdded
		case gitdiff.OpDelete:
			line.Tag = diffset.TagRemoved
		}
		hunk.Lines = append(hunk.Lines, line)
	}
	return hunk
}

// revision maps an abbreviated object ID from an index line. The all-zero
// ID names a side that does not exist.
func revision(oid string, missing diffset.Revision) diffset.Revision {
	switch {
	case oid == "":
		return missing
	case strings.Trim(oid, "0") == "":
		if missing == diffset.Unknown {
			return diffset.PreCreation
		}
		return diffset.Null
	}
	return diffset.Revision(oid)
}

// lineOf extracts the input line from a go-gitdiff parse error.
func lineOf(err error) int {
	var line int64
	if _, scanErr := fmt.Sscanf(err.Error(), "gitdiff: line %d:", &line); scanErr == nil {
		return int(line)
	}
	return 0
}

func classify(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "fragment") || strings.Contains(msg, "hunk") {
		return diffset.ErrMalformedHunk
	}
	return diffset.ErrMalformedHeader
}
