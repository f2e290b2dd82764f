package diffparse

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/fwojciec/diffset"
)

var (
	contextOldRe = regexp.MustCompile(`^\*\*\* (\d+)(?:,(\d+))? \*\*\*\*$`)
	contextNewRe = regexp.MustCompile(`^--- (\d+)(?:,(\d+))? ----$`)
)

const contextHunkMarker = "***************"

// parseContext reads old-style context diffs (diff -c).
func (s *state) parseContext() error {
	for !s.done() {
		t := s.text()
		if strings.HasPrefix(t, "*** ") && strings.HasPrefix(s.peek(1), "--- ") &&
			strings.HasPrefix(s.peek(2), contextHunkMarker) {
			f, err := s.parseContextFile()
			if err != nil {
				return err
			}
			s.ds.Files = append(s.ds.Files, f)
			continue
		}
		if strings.HasPrefix(t, contextHunkMarker) {
			return s.orphanHunk()
		}
		s.pos++
	}
	return nil
}

func (s *state) parseContextFile() (diffset.FileDiff, error) {
	oldName, _ := splitStamp(strings.TrimPrefix(s.text(), "*** "))
	newName, _ := splitStamp(strings.TrimPrefix(s.peek(1), "--- "))
	s.pos += 2

	f := diffset.FileDiff{
		OriginalPath:     oldName,
		ModifiedPath:     newName,
		OriginalRevision: diffset.Unknown,
		ModifiedRevision: diffset.NewFile,
	}
	switch {
	case oldName == devNull:
		f.Kind = diffset.Added
		f.OriginalPath = ""
		f.OriginalRevision = diffset.PreCreation
	case newName == devNull:
		f.Kind = diffset.Deleted
		f.ModifiedPath = ""
		f.ModifiedRevision = diffset.Null
	case oldName != newName:
		f.Kind = diffset.Renamed
	}

	for !s.done() && strings.HasPrefix(s.text(), contextHunkMarker) {
		section := strings.TrimSpace(strings.TrimPrefix(s.text(), contextHunkMarker))
		s.pos++
		hunk, err := s.parseContextHunk(f.Path())
		if err != nil {
			return diffset.FileDiff{}, err
		}
		hunk.Section = section
		f.Hunks = append(f.Hunks, hunk)
	}
	return f, nil
}

// contextRange is a "start,end" range from a context hunk header.
type contextRange struct {
	first, last int
	single      bool
}

func parseContextRange(m []string) contextRange {
	first, _ := strconv.Atoi(m[1])
	if m[2] == "" {
		return contextRange{first: first, last: first, single: true}
	}
	last, _ := strconv.Atoi(m[2])
	return contextRange{first: first, last: last}
}

// hunkRange converts to unified start and length given the actual number
// of lines on that side. An empty range names the line before the gap.
func (r contextRange) hunkRange(count int) (start, length int, ok bool) {
	if count == 0 {
		return r.last, 0, r.single || r.last < r.first
	}
	if r.single {
		return r.first, 1, count == 1
	}
	return r.first, r.last - r.first + 1, r.last-r.first+1 == count
}

// contextLine is one "  ", "- ", "+ " or "! " body line.
type contextLine struct {
	mark byte
	diffset.Line
}

func (s *state) parseContextHunk(path string) (diffset.Hunk, error) {
	if s.done() {
		return diffset.Hunk{}, s.errorf(diffset.ErrMalformedHunk, path, "missing original range")
	}
	m := contextOldRe.FindStringSubmatch(s.text())
	if m == nil {
		return diffset.Hunk{}, s.errorf(diffset.ErrMalformedHunk, path, "invalid original range %q", s.text())
	}
	oldRange := parseContextRange(m)
	s.pos++

	oldLines, err := s.readContextBlock(path, func(t string) bool { return contextNewRe.MatchString(t) })
	if err != nil {
		return diffset.Hunk{}, err
	}

	if s.done() {
		return diffset.Hunk{}, s.errorf(diffset.ErrMalformedHunk, path, "missing modified range")
	}
	m = contextNewRe.FindStringSubmatch(s.text())
	if m == nil {
		return diffset.Hunk{}, s.errorf(diffset.ErrMalformedHunk, path, "invalid modified range %q", s.text())
	}
	newRange := parseContextRange(m)
	headerLine := s.pos
	s.pos++

	newLines, err := s.readContextBlock(path, func(t string) bool {
		return strings.HasPrefix(t, contextHunkMarker) || strings.HasPrefix(t, "*** ")
	})
	if err != nil {
		return diffset.Hunk{}, err
	}

	lines, err := mergeContext(oldLines, newLines)
	if err != nil {
		return diffset.Hunk{}, &diffset.ParseError{Path: path, Line: headerLine + 1, Err: diffset.ErrMalformedHunk,
			Detail: err.Error()}
	}

	hunk := diffset.Hunk{Lines: lines}
	origCount, modCount := hunk.Counts()
	var ok1, ok2 bool
	hunk.OriginalStart, hunk.OriginalLength, ok1 = oldRange.hunkRange(origCount)
	hunk.ModifiedStart, hunk.ModifiedLength, ok2 = newRange.hunkRange(modCount)
	if !ok1 || !ok2 {
		return diffset.Hunk{}, &diffset.ParseError{Path: path, Line: headerLine + 1, Err: diffset.ErrMalformedHunk,
			Detail: "hunk body does not match its ranges"}
	}
	return hunk, nil
}

// readContextBlock reads body lines until stop matches, a non-body line is
// reached or the input ends.
func (s *state) readContextBlock(path string, stop func(string) bool) ([]contextLine, error) {
	var block []contextLine
	for !s.done() {
		raw := s.lines[s.pos]
		t := trimEOL(raw)
		if stop(t) {
			break
		}
		if strings.HasPrefix(raw, `\`) {
			if len(block) == 0 {
				return nil, s.errorf(diffset.ErrMalformedHunk, path, "no-newline marker before any line")
			}
			last := &block[len(block)-1]
			last.Content = trimEOL(last.Content)
			last.NoNewline = true
			s.pos++
			continue
		}

		var cl contextLine
		switch {
		case raw == "\n" || raw == "\r\n":
			cl = contextLine{mark: ' ', Line: diffset.Line{Content: raw}}
		case len(raw) >= 2 && raw[1] == ' ' && strings.IndexByte(" -+!", raw[0]) >= 0:
			cl = contextLine{mark: raw[0], Line: diffset.Line{Content: raw[2:]}}
		default:
			return block, nil
		}
		block = append(block, cl)
		s.pos++
	}
	return block, nil
}

// mergeContext interleaves the two blocks of a context hunk into unified
// lines. Either block may be omitted when it holds only context.
func mergeContext(oldBlock, newBlock []contextLine) ([]diffset.Line, error) {
	if len(oldBlock) == 0 {
		return convertBlock(newBlock, diffset.TagAdded)
	}
	if len(newBlock) == 0 {
		return convertBlock(oldBlock, diffset.TagRemoved)
	}

	var out []diffset.Line
	i, j := 0, 0
	for i < len(oldBlock) || j < len(newBlock) {
		switch {
		case i < len(oldBlock) && oldBlock[i].mark == '-':
			out = append(out, tagged(oldBlock[i].Line, diffset.TagRemoved))
			i++
		case j < len(newBlock) && newBlock[j].mark == '+':
			out = append(out, tagged(newBlock[j].Line, diffset.TagAdded))
			j++
		case i < len(oldBlock) && oldBlock[i].mark == '!':
			for i < len(oldBlock) && oldBlock[i].mark == '!' {
				out = append(out, tagged(oldBlock[i].Line, diffset.TagRemoved))
				i++
			}
			if j >= len(newBlock) || newBlock[j].mark != '!' {
				return nil, errUnpairedChange
			}
			for j < len(newBlock) && newBlock[j].mark == '!' {
				out = append(out, tagged(newBlock[j].Line, diffset.TagAdded))
				j++
			}
		case i < len(oldBlock) && j < len(newBlock) && oldBlock[i].mark == ' ' && newBlock[j].mark == ' ':
			out = append(out, tagged(oldBlock[i].Line, diffset.TagContext))
			i++
			j++
		default:
			return nil, errUnpairedChange
		}
	}
	return out, nil
}

// convertBlock expands a lone block. The omitted side holds the same
// context lines, so only changes of one kind may appear.
func convertBlock(block []contextLine, change diffset.Tag) ([]diffset.Line, error) {
	want := byte('+')
	if change == diffset.TagRemoved {
		want = '-'
	}
	out := make([]diffset.Line, 0, len(block))
	for _, cl := range block {
		switch cl.mark {
		case ' ':
			out = append(out, tagged(cl.Line, diffset.TagContext))
		case want:
			out = append(out, tagged(cl.Line, change))
		default:
			return nil, errUnpairedChange
		}
	}
	return out, nil
}

func tagged(l diffset.Line, tag diffset.Tag) diffset.Line {
	l.Tag = tag
	return l
}

var errUnpairedChange = errors.New("changed lines on one side have no counterpart on the other")
