package diffset

import (
	"errors"
	"fmt"
	"strings"
)

// Parse errors.
var (
	ErrMalformedHunk   = errors.New("malformed hunk")
	ErrMalformedHeader = errors.New("malformed file header")
)

// Fetch errors.
var (
	// ErrFileNotFound is returned by backends when a path does not exist at
	// the requested revision.
	ErrFileNotFound = errors.New("file not found")

	ErrSourceMissing      = errors.New("source file missing")
	ErrFetchTimeout       = errors.New("fetch timed out")
	ErrBackendUnavailable = errors.New("repository backend unavailable")
)

// Patch errors.
var (
	ErrHunkMismatch      = errors.New("hunk does not match source")
	ErrBinaryUnsupported = errors.New("binary patch not supported")
)

// Upload errors.
var (
	ErrPartialFailure   = errors.New("one or more files failed")
	ErrCancelled        = errors.New("upload cancelled")
	ErrAlreadyFinalized = errors.New("cannot upload commits to a published diff")
)

// ErrNotFound is returned by stores when no DiffSet has the requested ID.
var ErrNotFound = errors.New("diffset not found")

// ParseError reports malformed diff input.
type ParseError struct {
	Path   string // File section being parsed, if known
	Line   int    // 1-based line in the input, 0 when not tied to a line
	Err    error  // ErrMalformedHunk or ErrMalformedHeader
	Detail string
}

func (e *ParseError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Err.Error())
	if e.Path != "" {
		fmt.Fprintf(&sb, " in %q", e.Path)
	}
	if e.Line > 0 {
		fmt.Fprintf(&sb, " at line %d", e.Line)
	}
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	return sb.String()
}

func (e *ParseError) Unwrap() error { return e.Err }

// FetchError reports a failure to obtain a source blob.
type FetchError struct {
	Path     string
	Revision Revision
	Err      error // ErrSourceMissing, ErrFetchTimeout or ErrBackendUnavailable
	Cause    error // Underlying backend error, if any
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s: %q at revision %q", e.Err, e.Path, e.Revision)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// Retryable reports whether fetching again may succeed.
func (e *FetchError) Retryable() bool {
	return errors.Is(e.Err, ErrFetchTimeout) || errors.Is(e.Err, ErrBackendUnavailable)
}

// PatchError reports a failure to apply a diff to a file.
type PatchError struct {
	Path string
	Hunk int // 0-based index of the failing hunk, -1 when not hunk-specific
	Err  error
}

func (e *PatchError) Error() string {
	if e.Hunk < 0 {
		return fmt.Sprintf("%s: %q", e.Err, e.Path)
	}
	return fmt.Sprintf("%s: %q hunk %d", e.Err, e.Path, e.Hunk+1)
}

func (e *PatchError) Unwrap() error { return e.Err }

// FileFailure pairs a file path with the reason it failed.
type FileFailure struct {
	Path string
	Err  error
}

// UploadError is surfaced to callers when an upload as a whole fails.
type UploadError struct {
	Err      error // ErrPartialFailure, ErrCancelled or ErrAlreadyFinalized
	Failures []FileFailure
}

func (e *UploadError) Error() string {
	if len(e.Failures) == 0 {
		return e.Err.Error()
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Path, f.Err))
	}
	return fmt.Sprintf("%s: %s", e.Err, strings.Join(parts, "; "))
}

func (e *UploadError) Unwrap() error { return e.Err }
