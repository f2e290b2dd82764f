// Package patch applies parsed hunks to file content.
//
// Hunks are located at their declared position first, then searched for
// within a bounded window around it, nearest offset first. A second pass
// compares lines with their terminators normalized so CRLF sources still
// accept LF diffs. Matched regions are spliced with go-udiff; context lines
// are always taken from the source, never from the diff.
package patch

import (
	"sort"
	"strings"

	"github.com/aymanbagabas/go-udiff"
	"github.com/fwojciec/diffset"
)

// DefaultMaxShift is the default search window, in lines, around a hunk's
// declared position.
const DefaultMaxShift = 32

// Compile-time interface verification.
var _ diffset.Patcher = (*Engine)(nil)

// Engine applies text hunks and delegates binary patches.
type Engine struct {
	MaxShift int                   // Search window in lines; 0 means DefaultMaxShift, negative disables shifting
	Binary   diffset.BinaryApplier // Nil rejects binary patches
}

// NewEngine creates an Engine with the default search window.
func NewEngine(binary diffset.BinaryApplier) *Engine {
	return &Engine{MaxShift: DefaultMaxShift, Binary: binary}
}

// indexedHunk keeps a hunk's position in the caller's slice for error
// reporting after sorting.
type indexedHunk struct {
	index int
	hunk  diffset.Hunk
}

// Apply applies hunks to original. Failures are reported as
// *diffset.PatchError wrapping diffset.ErrHunkMismatch.
func (e *Engine) Apply(original []byte, hunks []diffset.Hunk) ([]byte, error) {
	if len(hunks) == 0 {
		return append([]byte(nil), original...), nil
	}

	sorted := make([]indexedHunk, len(hunks))
	for i, h := range hunks {
		sorted[i] = indexedHunk{index: i, hunk: h}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].hunk.OriginalStart < sorted[j].hunk.OriginalStart
	})

	src := string(original)
	lines := splitLines(src)
	offsets := lineOffsets(lines)

	var edits []udiff.Edit
	cursor, drift := 0, 0
	for _, ih := range sorted {
		at, ok := e.locate(lines, ih.hunk, cursor, drift)
		if !ok {
			return nil, &diffset.PatchError{Hunk: ih.index, Err: diffset.ErrHunkMismatch}
		}
		edits = append(edits, hunkEdits(lines, offsets, ih.hunk, at)...)
		drift = at - declaredIndex(ih.hunk)
		orig, _ := ih.hunk.Counts()
		cursor = at + orig
	}

	out, err := udiff.Apply(src, edits)
	if err != nil {
		return nil, &diffset.PatchError{Hunk: -1, Err: diffset.ErrHunkMismatch}
	}
	return []byte(out), nil
}

// ApplyBinary delegates to the configured binary applier.
func (e *Engine) ApplyBinary(original []byte, patch *diffset.BinaryPatch) ([]byte, error) {
	if e.Binary == nil || patch == nil {
		return nil, &diffset.PatchError{Hunk: -1, Err: diffset.ErrBinaryUnsupported}
	}
	out, err := e.Binary.ApplyBinary(original, patch)
	if err != nil {
		return nil, &diffset.PatchError{Hunk: -1, Err: err}
	}
	return out, nil
}

func (e *Engine) maxShift() int {
	switch {
	case e.MaxShift < 0:
		return 0
	case e.MaxShift == 0:
		return DefaultMaxShift
	}
	return e.MaxShift
}

// locate finds the 0-based source line where the hunk's original side
// matches, never before cursor. The previous hunk's drift is applied to the
// declared position before searching.
func (e *Engine) locate(lines []string, h diffset.Hunk, cursor, drift int) (int, bool) {
	want := originalSide(h)
	start := declaredIndex(h) + drift
	shift := e.maxShift()

	for _, eq := range []func(a, b string) bool{exact, sameIgnoringEOL} {
		if matchAt(lines, want, start, cursor, eq) {
			return start, true
		}
		for d := 1; d <= shift; d++ {
			if matchAt(lines, want, start-d, cursor, eq) {
				return start - d, true
			}
			if matchAt(lines, want, start+d, cursor, eq) {
				return start + d, true
			}
		}
	}
	return 0, false
}

// declaredIndex converts the hunk's 1-based original start into a 0-based
// line index. An empty original side names the line after which content is
// inserted.
func declaredIndex(h diffset.Hunk) int {
	if h.OriginalLength == 0 {
		return h.OriginalStart
	}
	return h.OriginalStart - 1
}

func originalSide(h diffset.Hunk) []string {
	want := make([]string, 0, h.OriginalLength)
	for _, l := range h.Lines {
		if l.Tag != diffset.TagAdded {
			want = append(want, l.Content)
		}
	}
	return want
}

func matchAt(lines, want []string, at, cursor int, eq func(a, b string) bool) bool {
	if at < cursor || at < 0 || at+len(want) > len(lines) {
		return false
	}
	for i, w := range want {
		if !eq(lines[at+i], w) {
			return false
		}
	}
	return true
}

func exact(a, b string) bool { return a == b }

func sameIgnoringEOL(a, b string) bool {
	return trimEOL(a) == trimEOL(b)
}

// hunkEdits turns each run of removed and added lines into one byte-range
// edit of the source.
func hunkEdits(lines []string, offsets []int, h diffset.Hunk, at int) []udiff.Edit {
	var edits []udiff.Edit
	pos := at
	for i := 0; i < len(h.Lines); {
		if h.Lines[i].Tag == diffset.TagContext {
			pos++
			i++
			continue
		}
		from := pos
		var added strings.Builder
		for ; i < len(h.Lines) && h.Lines[i].Tag != diffset.TagContext; i++ {
			switch h.Lines[i].Tag {
			case diffset.TagRemoved:
				pos++
			case diffset.TagAdded:
				added.WriteString(h.Lines[i].Content)
			}
		}
		edits = append(edits, udiff.Edit{
			Start: offsets[from],
			End:   offsets[pos],
			New:   added.String(),
		})
	}
	return edits
}

// lineOffsets returns the byte offset of each line start plus the total
// length as a final entry.
func lineOffsets(lines []string) []int {
	offsets := make([]int, len(lines)+1)
	for i, l := range lines {
		offsets[i+1] = offsets[i] + len(l)
	}
	return offsets
}

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
