// Package fs provides filesystem-backed caching for repository content.
package fs

import (
	"os"
	"path/filepath"
)

// DefaultCacheDir returns the directory blobs are cached in when none is
// configured: diffset/blobs under the user cache directory, or under the
// system temp directory when the user has none.
func DefaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil || base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, "diffset", "blobs")
}
