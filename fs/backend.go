package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/fwojciec/diffset"
)

// Compile-time interface verification.
var _ diffset.Backend = (*Backend)(nil)

// Backend wraps a diffset.Backend with a persistent on-disk blob cache.
// Only revisions that name immutable content are cached; HEAD and other
// symbolic revisions always reach the inner backend.
type Backend struct {
	inner    diffset.Backend
	cacheDir string
}

// NewBackend creates a new caching backend.
func NewBackend(inner diffset.Backend, cacheDir string) *Backend {
	return &Backend{
		inner:    inner,
		cacheDir: cacheDir,
	}
}

// entry is the on-disk form of a cached blob.
type entry struct {
	Path     string           `json:"path"`
	Revision diffset.Revision `json:"revision"`
	Content  []byte           `json:"content"`
}

// GetFile returns a cached blob or delegates to the inner backend.
func (b *Backend) GetFile(ctx context.Context, path string, revision diffset.Revision) ([]byte, error) {
	if !cacheable(revision) {
		return b.inner.GetFile(ctx, path, revision)
	}

	hash := b.hashKey(path, revision)
	if cached, err := b.loadFromCache(hash, path, revision); err == nil {
		return cached, nil
	}

	data, err := b.inner.GetFile(ctx, path, revision)
	if err != nil {
		return nil, err
	}

	// Store in cache (best-effort)
	_ = b.saveToCache(hash, entry{Path: path, Revision: revision, Content: data})

	return data, nil
}

// FileExists reports a cached blob as present without asking the inner
// backend.
func (b *Backend) FileExists(ctx context.Context, path string, revision diffset.Revision) (bool, error) {
	if cacheable(revision) {
		if _, err := b.loadFromCache(b.hashKey(path, revision), path, revision); err == nil {
			return true, nil
		}
	}
	return b.inner.FileExists(ctx, path, revision)
}

// DiffsUseAbsolutePaths delegates to the inner backend.
func (b *Backend) DiffsUseAbsolutePaths() bool {
	return b.inner.DiffsUseAbsolutePaths()
}

// cacheable reports whether revision is a content hash or numeric revision.
// Hex revisions shorter than an abbreviated git hash may name branches
// ("cafe", "beef") and are fetched every time.
func cacheable(revision diffset.Revision) bool {
	if revision == "" {
		return false
	}
	digits := true
	for _, c := range revision {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
			digits = false
		default:
			return false
		}
	}
	return digits || len(revision) >= minHashLen
}

const minHashLen = 7

func (b *Backend) hashKey(path string, revision diffset.Revision) string {
	sum := sha256.Sum256([]byte(string(revision) + "\x00" + path))
	return hex.EncodeToString(sum[:])
}

func (b *Backend) cachePath(hash string) string {
	return filepath.Join(b.cacheDir, hash[:2], hash+".json")
}

func (b *Backend) loadFromCache(hash, path string, revision diffset.Revision) ([]byte, error) {
	data, err := os.ReadFile(b.cachePath(hash))
	if err != nil {
		return nil, err
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if e.Path != path || e.Revision != revision {
		return nil, os.ErrNotExist
	}
	if e.Content == nil {
		e.Content = []byte{}
	}

	return e.Content, nil
}

func (b *Backend) saveToCache(hash string, e entry) error {
	p := b.cachePath(hash)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	return os.WriteFile(p, data, 0644)
}
