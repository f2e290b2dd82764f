// Package git reads repository content by shelling out to the git binary.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/fwojciec/diffset"
)

// Compile-time interface verification.
var _ diffset.Backend = (*Runner)(nil)

// Runner serves blobs from a local repository via git commands.
type Runner struct {
	repoPath string
}

// NewRunner creates a runner for the repository at repoPath.
func NewRunner(repoPath string) *Runner {
	return &Runner{repoPath: repoPath}
}

// GetFile returns the content of path at revision. A revision that names a
// blob is read directly; any other revision is resolved as a tree-ish.
func (r *Runner) GetFile(ctx context.Context, path string, revision diffset.Revision) ([]byte, error) {
	name, err := r.object(ctx, path, revision)
	if err != nil {
		return nil, err
	}
	output, err := r.run(ctx, "cat-file", "-p", name)
	if err != nil {
		if isMissing(err) {
			return nil, fmt.Errorf("%s@%s: %w", path, revision, diffset.ErrFileNotFound)
		}
		return nil, fmt.Errorf("git cat-file failed: %w", err)
	}
	return output, nil
}

// FileExists reports whether path exists at revision.
func (r *Runner) FileExists(ctx context.Context, path string, revision diffset.Revision) (bool, error) {
	name, err := r.object(ctx, path, revision)
	if err != nil {
		return false, err
	}
	_, err = r.run(ctx, "cat-file", "-e", name)
	if err == nil {
		return true, nil
	}
	if isMissing(err) {
		return false, nil
	}
	return false, fmt.Errorf("git cat-file failed: %w", err)
}

// DiffsUseAbsolutePaths is false: git diffs are relative to the repository root.
func (r *Runner) DiffsUseAbsolutePaths() bool { return false }

// object names the git object holding path at revision. Blob IDs from index
// lines are used as is; commits, branches and HEAD are combined with path.
func (r *Runner) object(ctx context.Context, path string, revision diffset.Revision) (string, error) {
	rev := string(revision)
	if revision == diffset.Unknown {
		rev = string(diffset.Head)
	}
	if isHex(rev) {
		kind, err := r.run(ctx, "cat-file", "-t", rev)
		if err != nil && !isMissing(err) {
			return "", fmt.Errorf("git cat-file failed: %w", err)
		}
		if err == nil && strings.TrimSpace(string(kind)) == "blob" {
			return rev, nil
		}
	}
	return rev + ":" + strings.TrimPrefix(path, "/"), nil
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}

// run executes git against the repository and returns its stdout.
func (r *Runner) run(ctx context.Context, args ...string) ([]byte, error) {
	args = append([]string{"-C", r.repoPath}, args...)
	cmd := exec.CommandContext(ctx, "git", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &commandError{code: exitErr.ExitCode(), stderr: strings.TrimSpace(stderr.String())}
		}
		return nil, err
	}
	return output, nil
}

type commandError struct {
	code   int
	stderr string
}

func (e *commandError) Error() string {
	if e.stderr == "" {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.stderr
}

// isMissing reports whether git failed because the object does not exist.
func isMissing(err error) bool {
	var ce *commandError
	if !errors.As(err, &ce) {
		return false
	}
	if ce.stderr == "" {
		// cat-file -e exits 1 silently for missing objects.
		return ce.code == 1
	}
	for _, s := range []string{"does not exist", "Not a valid object name", "exists on disk, but not in", "invalid object name", "bad file"} {
		if strings.Contains(ce.stderr, s) {
			return true
		}
	}
	return false
}
