package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/fwojciec/diffset"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

var (
	addedColor   = color.New(color.FgGreen)
	removedColor = color.New(color.FgRed)
	failedColor  = color.New(color.FgRed, color.Bold)
	skippedColor = color.New(color.FgYellow)
	okColor      = color.New(color.FgGreen)
)

// printFiles writes one table row per file. withStatus adds the upload
// outcome of each file.
func printFiles(w io.Writer, files []diffset.FileDiff, withStatus bool) error {
	table := tablewriter.NewWriter(w)

	headers := []string{"Path", "Change", "Source", "+", "-"}
	if withStatus {
		headers = append(headers, "Status")
	}
	table.Header(headers)

	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignLeft
	})

	var data [][]string
	var failures []diffset.FileDiff
	for _, f := range files {
		added, removed := f.Stats()
		row := []string{
			pathLabel(f),
			f.Kind.String(),
			sourceLabel(f),
			addedColor.Sprint(strconv.Itoa(added)),
			removedColor.Sprint(strconv.Itoa(removed)),
		}
		if f.IsBinary {
			row[3], row[4] = "bin", "bin"
		}
		if withStatus {
			row = append(row, statusLabel(f.Status))
			if f.Status == diffset.StatusFailed {
				failures = append(failures, f)
			}
		}
		data = append(data, row)
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	for _, f := range failures {
		if _, err := fmt.Fprintf(w, "%s %s: %s\n", failedColor.Sprint("✗"), f.Path(), f.Failure); err != nil {
			return err
		}
	}
	return nil
}

func pathLabel(f diffset.FileDiff) string {
	switch f.Kind {
	case diffset.Renamed, diffset.Copied:
		return f.OriginalPath + " → " + f.ModifiedPath
	}
	return f.Path()
}

func sourceLabel(f diffset.FileDiff) string {
	rev := f.SourceRevision
	if rev == "" {
		rev = f.OriginalRevision
	}
	if rev == diffset.Unknown {
		return "-"
	}
	return string(rev)
}

func statusLabel(s diffset.FileStatus) string {
	switch s {
	case diffset.StatusValidated:
		return okColor.Sprint("validated")
	case diffset.StatusSkipped:
		return skippedColor.Sprint("skipped")
	case diffset.StatusFailed:
		return failedColor.Sprint("failed")
	default:
		return "pending"
	}
}
