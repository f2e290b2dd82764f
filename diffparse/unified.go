package diffparse

import (
	"regexp"
	"strings"

	"github.com/fwojciec/diffset"
)

// parseUnified reads plain unified output as produced by diff -u and
// Subversion.
func (s *state) parseUnified() error {
	var index string
	for !s.done() {
		t := s.text()
		switch {
		case strings.HasPrefix(t, "Index: "):
			index = strings.TrimSpace(strings.TrimPrefix(t, "Index: "))
			s.pos++
		case strings.HasPrefix(t, "Cannot display: file marked as a binary type"):
			if index != "" {
				s.ds.Files = append(s.ds.Files, diffset.FileDiff{
					OriginalPath:     index,
					ModifiedPath:     index,
					OriginalRevision: diffset.Unknown,
					ModifiedRevision: diffset.NewFile,
					IsBinary:         true,
				})
				index = ""
			}
			s.pos++
		case strings.HasPrefix(t, "--- ") && strings.HasPrefix(s.peek(1), "+++ "):
			f, err := s.parseUnifiedFile(index)
			if err != nil {
				return err
			}
			s.ds.Files = append(s.ds.Files, f)
			index = ""
		case strings.HasPrefix(t, "@@"):
			return s.orphanHunk()
		default:
			s.pos++
		}
	}
	return nil
}

var svnRevisionRe = regexp.MustCompile(`^\((?:revision|rev) (\d+)\)$`)

// parseUnifiedFile reads a "---"/"+++" pair and the hunks that follow.
// index is the path announced by a preceding "Index:" line, if any.
func (s *state) parseUnifiedFile(index string) (diffset.FileDiff, error) {
	oldName, oldStamp := splitStamp(strings.TrimPrefix(s.text(), "--- "))
	s.pos++
	if s.done() || !strings.HasPrefix(s.text(), "+++ ") {
		return diffset.FileDiff{}, s.errorf(diffset.ErrMalformedHeader, oldName, "expected +++ line after ---")
	}
	newName, newStamp := splitStamp(strings.TrimPrefix(s.text(), "+++ "))
	s.pos++

	oldName, newName = unquote(oldName), unquote(newName)
	if (strings.HasPrefix(oldName, "a/") || oldName == devNull) &&
		(strings.HasPrefix(newName, "b/") || newName == devNull) {
		oldName = strings.TrimPrefix(oldName, "a/")
		newName = strings.TrimPrefix(newName, "b/")
	}
	if index != "" {
		if oldName != devNull {
			oldName = index
		}
		if newName != devNull {
			newName = index
		}
	}

	f := diffset.FileDiff{
		OriginalPath:     oldName,
		ModifiedPath:     newName,
		OriginalRevision: stampRevision(oldStamp, diffset.Unknown),
		ModifiedRevision: stampRevision(newStamp, diffset.NewFile),
	}
	switch {
	case oldName == devNull || oldStamp == "(nonexistent)" || f.OriginalRevision == diffset.PreCreation:
		f.Kind = diffset.Added
		f.OriginalPath = ""
		f.OriginalRevision = diffset.PreCreation
	case newName == devNull || newStamp == "(nonexistent)":
		f.Kind = diffset.Deleted
		f.ModifiedPath = ""
		f.ModifiedRevision = diffset.Null
	case oldName != newName:
		f.Kind = diffset.Renamed
	}
	if f.Kind == diffset.Added && f.ModifiedRevision == diffset.PreCreation {
		f.ModifiedRevision = diffset.NewFile
	}

	for !s.done() && strings.HasPrefix(s.text(), "@@") {
		hunk, err := s.parseHunk(f.Path())
		if err != nil {
			return diffset.FileDiff{}, err
		}
		f.Hunks = append(f.Hunks, hunk)
		if err := s.checkHunkEnd(f.Path()); err != nil {
			return diffset.FileDiff{}, err
		}
	}
	return f, nil
}

// stampRevision extracts a Subversion revision from a header stamp.
// Revision 0 denotes a file that did not exist yet.
func stampRevision(stamp string, fallback diffset.Revision) diffset.Revision {
	if stamp == "(working copy)" {
		return diffset.NewFile
	}
	m := svnRevisionRe.FindStringSubmatch(stamp)
	if m == nil {
		return fallback
	}
	if m[1] == "0" {
		return diffset.PreCreation
	}
	return diffset.Revision(m[1])
}
