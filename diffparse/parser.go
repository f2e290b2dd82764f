// Package diffparse implements a strict multi-dialect diff parser.
//
// Supported dialects are git (including rename, copy, mode and binary
// metadata), Mercurial (git-style and plain "diff -r" output with export
// headers), plain unified diffs (including Subversion's "Index:" form) and
// old-style context diffs. Hunk bodies must match their headers exactly; a
// mismatch is reported as diffset.ErrMalformedHunk rather than truncated.
package diffparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fwojciec/diffset"
)

// Compile-time interface verification.
var _ diffset.Parser = (*Parser)(nil)

// Parser parses diffs in any supported dialect. A Parser holds no
// per-parse state and is safe for concurrent use.
type Parser struct {
	binary diffset.BinaryDecoder
}

// NewParser creates a new Parser. binary decodes "GIT binary patch"
// sections; when nil, binary files are recorded without patch data.
func NewParser(binary diffset.BinaryDecoder) *Parser {
	return &Parser{binary: binary}
}

// Parse reads data in the given dialect, sniffing it when hint is
// diffset.DialectAuto.
func (p *Parser) Parse(data []byte, hint diffset.Dialect) (*diffset.DiffSet, error) {
	dialect := hint
	if dialect == diffset.DialectAuto {
		dialect = Sniff(data)
	}

	st := &state{
		lines:  splitLines(string(data)),
		binary: p.binary,
		ds:     &diffset.DiffSet{Dialect: dialect, Files: []diffset.FileDiff{}},
	}

	var err error
	switch dialect {
	case diffset.DialectGit:
		err = st.parseGit(false)
	case diffset.DialectMercurial:
		err = st.parseGit(true)
	case diffset.DialectUnified:
		err = st.parseUnified()
	case diffset.DialectContext:
		err = st.parseContext()
	default:
		return nil, fmt.Errorf("unsupported diff dialect %d", dialect)
	}
	if err != nil {
		return nil, err
	}
	if err := st.ds.Validate(); err != nil {
		return nil, &diffset.ParseError{Err: diffset.ErrMalformedHeader, Detail: err.Error()}
	}
	return st.ds, nil
}

// Sniff guesses the dialect of data from its first recognizable marker.
func Sniff(data []byte) diffset.Dialect {
	for _, line := range splitLines(string(data)) {
		t := trimEOL(line)
		switch {
		case strings.HasPrefix(t, "# HG changeset patch"), strings.HasPrefix(t, "# Node ID "),
			hgDiffRe.MatchString(t):
			return diffset.DialectMercurial
		case strings.HasPrefix(t, "diff --git "):
			return diffset.DialectGit
		case strings.HasPrefix(t, "***************"):
			return diffset.DialectContext
		}
	}
	return diffset.DialectUnified
}

// state is the cursor over a single parse.
type state struct {
	lines  []string // Input lines including terminators
	pos    int
	binary diffset.BinaryDecoder
	ds     *diffset.DiffSet
}

func (s *state) done() bool { return s.pos >= len(s.lines) }

// text returns the current line without its terminator.
func (s *state) text() string { return trimEOL(s.lines[s.pos]) }

// peek returns the line n positions ahead without its terminator, or "" past
// the end of input.
func (s *state) peek(n int) string {
	if s.pos+n >= len(s.lines) {
		return ""
	}
	return trimEOL(s.lines[s.pos+n])
}

func (s *state) errorf(kind error, path string, format string, args ...any) error {
	return &diffset.ParseError{
		Path:   path,
		Line:   s.pos + 1,
		Err:    kind,
		Detail: fmt.Sprintf(format, args...),
	}
}

var (
	hunkHeaderRe = regexp.MustCompile(`^@@ -(\S+) \+(\S+) @@ ?(.*)$`)

	// hgDiffRe matches a plain Mercurial section header. GNU "diff -r" puts
	// options or paths after -r, never a changeset hash.
	hgDiffRe = regexp.MustCompile(`^diff -r [0-9a-fA-F]{12,40}( |$)`)
	hgRevRe  = regexp.MustCompile(`^[0-9a-fA-F]{12,40}$`)
)

// parseHunk reads one unified hunk at the cursor, consuming exactly the
// number of lines its header declares.
func (s *state) parseHunk(path string) (diffset.Hunk, error) {
	m := hunkHeaderRe.FindStringSubmatch(s.text())
	if m == nil {
		return diffset.Hunk{}, s.errorf(diffset.ErrMalformedHunk, path, "invalid hunk header %q", s.text())
	}
	origStart, origLen, err := parseRange(m[1])
	if err != nil {
		return diffset.Hunk{}, s.errorf(diffset.ErrMalformedHunk, path, "invalid original range %q: %v", m[1], err)
	}
	modStart, modLen, err := parseRange(m[2])
	if err != nil {
		return diffset.Hunk{}, s.errorf(diffset.ErrMalformedHunk, path, "invalid modified range %q: %v", m[2], err)
	}

	hunk := diffset.Hunk{
		OriginalStart:  origStart,
		OriginalLength: origLen,
		ModifiedStart:  modStart,
		ModifiedLength: modLen,
		Section:        m[3],
	}
	s.pos++

	remOrig, remMod := origLen, modLen
	for remOrig > 0 || remMod > 0 {
		if s.done() {
			return diffset.Hunk{}, s.errorf(diffset.ErrMalformedHunk, path,
				"unexpected end of input with %d original and %d modified lines missing", remOrig, remMod)
		}
		raw := s.lines[s.pos]
		if strings.HasPrefix(raw, `\`) {
			if !markNoNewline(&hunk) {
				return diffset.Hunk{}, s.errorf(diffset.ErrMalformedHunk, path, "no-newline marker before any line")
			}
			s.pos++
			continue
		}

		line, ok := hunkLine(raw)
		if !ok {
			return diffset.Hunk{}, s.errorf(diffset.ErrMalformedHunk, path,
				"hunk ends early with %d original and %d modified lines missing", remOrig, remMod)
		}
		switch line.Tag {
		case diffset.TagContext:
			if remOrig == 0 || remMod == 0 {
				return diffset.Hunk{}, s.errorf(diffset.ErrMalformedHunk, path, "context line exceeds header counts")
			}
			remOrig--
			remMod--
		case diffset.TagRemoved:
			if remOrig == 0 {
				return diffset.Hunk{}, s.errorf(diffset.ErrMalformedHunk, path, "removed line exceeds header count")
			}
			remOrig--
		case diffset.TagAdded:
			if remMod == 0 {
				return diffset.Hunk{}, s.errorf(diffset.ErrMalformedHunk, path, "added line exceeds header count")
			}
			remMod--
		}
		hunk.Lines = append(hunk.Lines, line)
		s.pos++
	}

	if !s.done() && strings.HasPrefix(s.lines[s.pos], `\`) {
		markNoNewline(&hunk)
		s.pos++
	}
	return hunk, nil
}

// checkHunkEnd rejects body lines following a complete hunk, which means
// the hunk carried more lines than its header declared. Blank lines are
// skipped first: a blank line is a context line with its space stripped,
// so a hunk or body line after it would otherwise be cut off.
func (s *state) checkHunkEnd(path string) error {
	i := 0
	for s.pos+i < len(s.lines) && s.peek(i) == "" {
		i++
	}
	if s.pos+i >= len(s.lines) {
		return nil
	}
	t := s.peek(i)
	switch {
	case strings.HasPrefix(t, "@@"):
		if i == 0 {
			return nil
		}
		return s.errorf(diffset.ErrMalformedHunk, path, "hunk has more lines than its header declares")
	case isBodyLine(t):
		return s.errorf(diffset.ErrMalformedHunk, path, "hunk has more lines than its header declares")
	}
	return nil
}

// isBodyLine reports whether t looks like a hunk body line rather than a
// file header or a mail signature separator.
func isBodyLine(t string) bool {
	switch {
	case t == "":
		return false
	case strings.HasPrefix(t, "--- "), strings.HasPrefix(t, "+++ "), t == "-- ", t == "--":
		return false
	}
	return t[0] == '+' || t[0] == '-' || t[0] == ' '
}

// orphanHunk reports a hunk header found outside any file section.
func (s *state) orphanHunk() error {
	return s.errorf(diffset.ErrMalformedHunk, "", "hunk %q outside a file section", s.text())
}

// hunkLine classifies a raw hunk body line. A bare line terminator is a
// context line whose leading space was stripped.
func hunkLine(raw string) (diffset.Line, bool) {
	if raw == "\n" || raw == "\r\n" {
		return diffset.Line{Tag: diffset.TagContext, Content: raw}, true
	}
	if raw == "" {
		return diffset.Line{}, false
	}
	switch raw[0] {
	case ' ':
		return diffset.Line{Tag: diffset.TagContext, Content: raw[1:]}, true
	case '-':
		return diffset.Line{Tag: diffset.TagRemoved, Content: raw[1:]}, true
	case '+':
		return diffset.Line{Tag: diffset.TagAdded, Content: raw[1:]}, true
	}
	return diffset.Line{}, false
}

// markNoNewline strips the terminator of the hunk's last line.
func markNoNewline(h *diffset.Hunk) bool {
	if len(h.Lines) == 0 {
		return false
	}
	last := &h.Lines[len(h.Lines)-1]
	last.Content = trimEOL(last.Content)
	last.NoNewline = true
	return true
}

// parseRange parses "start" or "start,length"; length defaults to 1.
func parseRange(s string) (start, length int, err error) {
	startStr, lenStr, hasLen := strings.Cut(s, ",")
	start, err = strconv.Atoi(startStr)
	if err != nil {
		return 0, 0, err
	}
	length = 1
	if hasLen {
		length, err = strconv.Atoi(lenStr)
		if err != nil {
			return 0, 0, err
		}
	}
	if start < 0 || length < 0 {
		return 0, 0, fmt.Errorf("negative value")
	}
	return start, length, nil
}

// splitLines splits s into lines, keeping each line's terminator.
func splitLines(s string) []string {
	var lines []string
	for len(s) > 0 {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			lines = append(lines, s)
			break
		}
		lines = append(lines, s[:i+1])
		s = s[i+1:]
	}
	return lines
}

func trimEOL(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}

// splitStamp separates a "---"/"+++"/"***" header value into the file name
// and the trailing timestamp or revision stamp.
func splitStamp(s string) (name, stamp string) {
	if i := strings.IndexByte(s, '\t'); i >= 0 {
		return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:])
	}
	// Some tools separate the stamp with spaces: "path  (revision 12)".
	if i := strings.LastIndex(s, " ("); i >= 0 && strings.HasSuffix(s, ")") {
		return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:])
	}
	return strings.TrimSpace(s), ""
}

// unquote decodes a C-style quoted path as written by git for unusual names.
func unquote(name string) string {
	if len(name) >= 2 && name[0] == '"' && name[len(name)-1] == '"' {
		if u, err := strconv.Unquote(name); err == nil {
			return u
		}
	}
	return name
}

const devNull = "/dev/null"
