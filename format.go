package diffset

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"strconv"
)

// Compile-time interface verification.
var _ Formatter = (*GitFormatter)(nil)

// GitFormatter writes DiffSets as git-style unified diffs.
type GitFormatter struct{}

// Format renders every file of ds. Binary files are written as a
// "Binary files ... differ" marker since their patch data is not re-encoded.
func (f *GitFormatter) Format(w io.Writer, ds *DiffSet) error {
	bw := bufio.NewWriter(w)
	for _, file := range ds.Files {
		formatFile(bw, file)
	}
	return bw.Flush()
}

func formatFile(w *bufio.Writer, f FileDiff) {
	oldName := f.OriginalPath
	if oldName == "" {
		oldName = f.ModifiedPath
	}
	newName := f.ModifiedPath
	if newName == "" {
		newName = f.OriginalPath
	}
	fmt.Fprintf(w, "diff --git a/%s b/%s\n", oldName, newName)

	switch f.Kind {
	case Added:
		fmt.Fprintf(w, "new file mode %s\n", formatMode(f.NewMode))
	case Deleted:
		fmt.Fprintf(w, "deleted file mode %s\n", formatMode(f.OldMode))
	default:
		if f.OldMode != 0 && f.NewMode != 0 && f.OldMode != f.NewMode {
			fmt.Fprintf(w, "old mode %s\nnew mode %s\n", formatMode(f.OldMode), formatMode(f.NewMode))
		}
	}
	if f.Similarity != nil {
		fmt.Fprintf(w, "similarity index %d%%\n", *f.Similarity)
	}
	switch f.Kind {
	case Renamed:
		fmt.Fprintf(w, "rename from %s\nrename to %s\n", f.OriginalPath, f.ModifiedPath)
	case Copied:
		fmt.Fprintf(w, "copy from %s\ncopy to %s\n", f.OriginalPath, f.ModifiedPath)
	}
	if hasIndexLine(f) {
		fmt.Fprintf(w, "index %s..%s", indexID(f.OriginalRevision), indexID(f.ModifiedRevision))
		if f.Kind != Added && f.Kind != Deleted && f.NewMode != 0 && f.OldMode == f.NewMode {
			fmt.Fprintf(w, " %s", formatMode(f.NewMode))
		}
		w.WriteString("\n")
	}

	if f.IsBinary {
		fmt.Fprintf(w, "Binary files %s and %s differ\n", sideName("a/", f.OriginalPath), sideName("b/", f.ModifiedPath))
		return
	}
	if len(f.Hunks) == 0 {
		return
	}

	fmt.Fprintf(w, "--- %s\n+++ %s\n", sideName("a/", f.OriginalPath), sideName("b/", f.ModifiedPath))
	for _, hunk := range f.Hunks {
		fmt.Fprintf(w, "@@ -%s +%s @@", formatRange(hunk.OriginalStart, hunk.OriginalLength),
			formatRange(hunk.ModifiedStart, hunk.ModifiedLength))
		if hunk.Section != "" {
			w.WriteString(" " + hunk.Section)
		}
		w.WriteString("\n")
		for _, line := range hunk.Lines {
			w.WriteString(line.Tag.Prefix())
			w.WriteString(line.Content)
			if line.NoNewline {
				w.WriteString("\n\\ No newline at end of file\n")
			}
		}
	}
}

// hasIndexLine reports whether both revisions can be written as object IDs.
func hasIndexLine(f FileDiff) bool {
	if f.OriginalRevision == Unknown || f.OriginalRevision == Head || f.ModifiedRevision == NewFile ||
		f.ModifiedRevision == Unknown {
		return false
	}
	if f.OriginalRevision == Null || f.ModifiedRevision == PreCreation {
		return false
	}
	return true
}

func indexID(r Revision) string {
	if r == PreCreation || r == Null {
		return "0000000"
	}
	return string(r)
}

func sideName(prefix, path string) string {
	if path == "" {
		return "/dev/null"
	}
	return prefix + path
}

func formatRange(start, length int) string {
	if length == 1 {
		return strconv.Itoa(start)
	}
	return strconv.Itoa(start) + "," + strconv.Itoa(length)
}

// formatMode writes git mode bits, stored raw in an fs.FileMode the way
// go-gitdiff does, as octal.
func formatMode(m fs.FileMode) string {
	if m == 0 {
		return "100644"
	}
	return strconv.FormatUint(uint64(m), 8)
}
