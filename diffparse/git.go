package diffparse

import (
	"io/fs"
	"strconv"
	"strings"

	"github.com/fwojciec/diffset"
)

// parseGit reads git-style output. With hg set it also accepts Mercurial
// export headers and plain "diff -r" sections.
func (s *state) parseGit(hg bool) error {
	for !s.done() {
		t := s.text()
		switch {
		case hg && strings.HasPrefix(t, "# Parent "):
			// Merges list two parents; the first one is the base.
			if s.ds.OrigCommitID == "" {
				s.ds.OrigCommitID = strings.TrimSpace(strings.TrimPrefix(t, "# Parent "))
			}
			s.pos++
		case strings.HasPrefix(t, "diff --git "):
			if err := s.parseGitSection(hg); err != nil {
				return err
			}
		case hg && strings.HasPrefix(t, "diff -r "):
			if err := s.parseHgSection(); err != nil {
				return err
			}
		case strings.HasPrefix(t, "@@"):
			return s.orphanHunk()
		default:
			s.pos++
		}
	}
	return nil
}

// atSectionEnd reports whether the cursor is at the start of the next file
// section, the next changeset, or past the end of input.
func (s *state) atSectionEnd(hg bool) bool {
	if s.done() {
		return true
	}
	t := s.text()
	if strings.HasPrefix(t, "diff --git ") {
		return true
	}
	return hg && (strings.HasPrefix(t, "diff -r ") || strings.HasPrefix(t, "# HG changeset patch"))
}

// gitHeader accumulates the extended header of a git file section.
type gitHeader struct {
	file     diffset.FileDiff
	oldRev   diffset.Revision
	newRev   diffset.Revision
	hasIndex bool
}

func (s *state) parseGitSection(hg bool) error {
	start := s.pos
	oldName, newName, ok := parseGitNames(strings.TrimPrefix(s.text(), "diff --git "))
	if !ok {
		return s.errorf(diffset.ErrMalformedHeader, "", "cannot parse file names from %q", s.text())
	}
	h := &gitHeader{file: diffset.FileDiff{
		OriginalPath: oldName,
		ModifiedPath: newName,
		Kind:         diffset.Modified,
	}}
	s.pos++

	for !s.atSectionEnd(hg) {
		t := s.text()
		if strings.HasPrefix(t, "--- ") || strings.HasPrefix(t, "@@ ") ||
			strings.HasPrefix(t, "GIT binary patch") || strings.HasPrefix(t, "Binary files ") {
			break
		}
		if err := s.parseExtendedHeader(h, t); err != nil {
			return err
		}
		s.pos++
	}
	f := &h.file

	switch {
	case s.atSectionEnd(hg):
	case strings.HasPrefix(s.text(), "GIT binary patch"):
		f.IsBinary = true
		for !s.atSectionEnd(hg) {
			s.pos++
		}
		if s.binary != nil {
			section := []byte(strings.Join(s.lines[start:s.pos], ""))
			bp, err := s.binary.DecodeBinary(section)
			if err != nil {
				return &diffset.ParseError{Path: f.Path(), Line: start + 1, Err: diffset.ErrMalformedHeader,
					Detail: "invalid binary patch: " + err.Error()}
			}
			f.Binary = bp
		}
	case strings.HasPrefix(s.text(), "Binary files "):
		f.IsBinary = true
		s.pos++
	default:
		if strings.HasPrefix(s.text(), "--- ") {
			if err := s.parseFileMarkers(f); err != nil {
				return err
			}
		}
		for !s.done() && strings.HasPrefix(s.text(), "@@") {
			hunk, err := s.parseHunk(f.Path())
			if err != nil {
				return err
			}
			f.Hunks = append(f.Hunks, hunk)
			if err := s.checkHunkEnd(f.Path()); err != nil {
				return err
			}
		}
	}

	finishGitFile(h)
	s.ds.Files = append(s.ds.Files, *f)
	return nil
}

func (s *state) parseExtendedHeader(h *gitHeader, t string) error {
	f := &h.file
	switch {
	case strings.HasPrefix(t, "old mode "):
		return s.parseMode(&f.OldMode, strings.TrimPrefix(t, "old mode "), f.Path())
	case strings.HasPrefix(t, "new mode "):
		return s.parseMode(&f.NewMode, strings.TrimPrefix(t, "new mode "), f.Path())
	case strings.HasPrefix(t, "new file mode "):
		f.Kind = diffset.Added
		return s.parseMode(&f.NewMode, strings.TrimPrefix(t, "new file mode "), f.Path())
	case strings.HasPrefix(t, "deleted file mode "):
		f.Kind = diffset.Deleted
		return s.parseMode(&f.OldMode, strings.TrimPrefix(t, "deleted file mode "), f.Path())
	case strings.HasPrefix(t, "similarity index "):
		v, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(t, "similarity index "), "%"))
		if err != nil || v < 0 || v > 100 {
			return s.errorf(diffset.ErrMalformedHeader, f.Path(), "invalid similarity index %q", t)
		}
		f.Similarity = &v
	case strings.HasPrefix(t, "rename from "):
		f.Kind = diffset.Renamed
		f.OriginalPath = unquote(strings.TrimPrefix(t, "rename from "))
	case strings.HasPrefix(t, "rename to "):
		f.Kind = diffset.Renamed
		f.ModifiedPath = unquote(strings.TrimPrefix(t, "rename to "))
	case strings.HasPrefix(t, "copy from "):
		f.Kind = diffset.Copied
		f.OriginalPath = unquote(strings.TrimPrefix(t, "copy from "))
	case strings.HasPrefix(t, "copy to "):
		f.Kind = diffset.Copied
		f.ModifiedPath = unquote(strings.TrimPrefix(t, "copy to "))
	case strings.HasPrefix(t, "index "):
		return s.parseIndex(h, strings.TrimPrefix(t, "index "))
	}
	return nil
}

// parseIndex reads "index <old>..<new>[ <mode>]".
func (s *state) parseIndex(h *gitHeader, v string) error {
	ids, mode, hasMode := strings.Cut(v, " ")
	oldID, newID, ok := strings.Cut(ids, "..")
	if !ok || oldID == "" || newID == "" {
		return s.errorf(diffset.ErrMalformedHeader, h.file.Path(), "invalid index line %q", v)
	}
	h.hasIndex = true
	h.oldRev = diffset.Revision(oldID)
	h.newRev = diffset.Revision(newID)
	if isZeroID(oldID) {
		h.oldRev = diffset.PreCreation
	}
	if isZeroID(newID) {
		h.newRev = diffset.Null
	}
	if hasMode {
		var m fs.FileMode
		if err := s.parseMode(&m, mode, h.file.Path()); err != nil {
			return err
		}
		if h.file.OldMode == 0 {
			h.file.OldMode = m
		}
		if h.file.NewMode == 0 {
			h.file.NewMode = m
		}
	}
	return nil
}

func (s *state) parseMode(dst *fs.FileMode, v, path string) error {
	m, err := strconv.ParseUint(strings.TrimSpace(v), 8, 32)
	if err != nil {
		return s.errorf(diffset.ErrMalformedHeader, path, "invalid file mode %q", v)
	}
	*dst = fs.FileMode(m)
	return nil
}

// parseFileMarkers reads the "---"/"+++" pair of a git section. Names are
// already known from the section header; the markers only reveal
// creations and deletions.
func (s *state) parseFileMarkers(f *diffset.FileDiff) error {
	oldName, _ := splitStamp(strings.TrimPrefix(s.text(), "--- "))
	s.pos++
	if s.done() || !strings.HasPrefix(s.text(), "+++ ") {
		return s.errorf(diffset.ErrMalformedHeader, f.Path(), "expected +++ line after ---")
	}
	newName, _ := splitStamp(strings.TrimPrefix(s.text(), "+++ "))
	s.pos++

	if oldName == devNull && f.Kind != diffset.Added {
		f.Kind = diffset.Added
	}
	if newName == devNull && f.Kind != diffset.Deleted {
		f.Kind = diffset.Deleted
	}
	return nil
}

// finishGitFile derives revisions and normalizes paths once the whole
// section has been read.
func finishGitFile(h *gitHeader) {
	f := &h.file
	oldRev, newRev := diffset.Unknown, diffset.NewFile
	if h.hasIndex {
		oldRev, newRev = h.oldRev, h.newRev
	}

	switch f.Kind {
	case diffset.Added:
		f.OriginalPath = ""
		f.OriginalRevision = diffset.PreCreation
		f.ModifiedRevision = newRev
		if newRev == diffset.Null {
			f.ModifiedRevision = diffset.NewFile
		}
	case diffset.Deleted:
		f.ModifiedPath = ""
		f.OriginalRevision = oldRev
		if oldRev == diffset.PreCreation {
			f.OriginalRevision = diffset.Unknown
		}
		f.ModifiedRevision = diffset.Null
	default:
		f.OriginalRevision = oldRev
		f.ModifiedRevision = newRev
	}
}

// parseHgSection reads a plain Mercurial section:
//
//	diff -r 661e5dd3c493 -r 8d4a8c2e0e0b path
//	--- a/path	Thu Jan 01 00:00:00 1970 +0000
//	+++ b/path	Thu Jan 01 00:00:00 1970 +0000
func (s *state) parseHgSection() error {
	fields := strings.Fields(strings.TrimPrefix(s.text(), "diff "))
	var rev diffset.Revision
	for i := 0; i+1 < len(fields); i++ {
		if fields[i] == "-r" {
			if hgRevRe.MatchString(fields[i+1]) {
				rev = diffset.Revision(fields[i+1])
			}
			break
		}
	}
	s.pos++

	for !s.atSectionEnd(true) && !strings.HasPrefix(s.text(), "--- ") {
		if strings.HasPrefix(s.text(), "Binary file ") {
			name := strings.TrimSuffix(strings.TrimPrefix(s.text(), "Binary file "), " has changed")
			s.ds.Files = append(s.ds.Files, diffset.FileDiff{
				OriginalPath:     name,
				ModifiedPath:     name,
				OriginalRevision: rev,
				ModifiedRevision: diffset.NewFile,
				IsBinary:         true,
			})
			s.pos++
			return nil
		}
		s.pos++
	}
	if s.atSectionEnd(true) {
		return nil
	}

	f, err := s.parseUnifiedFile("")
	if err != nil {
		return err
	}
	if f.Kind != diffset.Added && rev != "" {
		f.OriginalRevision = rev
	}
	s.ds.Files = append(s.ds.Files, f)
	return nil
}

// parseGitNames splits "a/<old> b/<new>". When both names are equal the
// split is unambiguous even if the name contains " b/".
func parseGitNames(v string) (oldName, newName string, ok bool) {
	if strings.HasPrefix(v, `"`) {
		end := closingQuote(v)
		if end < 0 {
			return "", "", false
		}
		oldName = unquote(v[:end+1])
		newName = unquote(strings.TrimSpace(v[end+1:]))
		return stripPrefix(oldName, "a/"), stripPrefix(newName, "b/"), newName != ""
	}

	if !strings.HasPrefix(v, "a/") {
		return "", "", false
	}
	if strings.HasSuffix(v, `"`) {
		i := strings.Index(v, ` "`)
		if i < 0 {
			return "", "", false
		}
		return stripPrefix(v[:i], "a/"), stripPrefix(unquote(v[i+1:]), "b/"), true
	}

	first := -1
	for i := 0; ; {
		j := strings.Index(v[i:], " b/")
		if j < 0 {
			break
		}
		idx := i + j
		if first < 0 {
			first = idx
		}
		if v[2:idx] == v[idx+3:] {
			return v[2:idx], v[idx+3:], true
		}
		i = idx + 1
	}
	if first < 0 {
		return "", "", false
	}
	return v[2:first], v[first+3:], true
}

func closingQuote(v string) int {
	for i := 1; i < len(v); i++ {
		switch v[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}

func stripPrefix(name, prefix string) string {
	return strings.TrimPrefix(name, prefix)
}

func isZeroID(id string) bool {
	return strings.Trim(id, "0") == ""
}
