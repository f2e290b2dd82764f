package mock

import (
	"context"

	"github.com/fwojciec/diffset"
)

// Compile-time interface verification.
var (
	_ diffset.Backend   = (*Backend)(nil)
	_ diffset.Fetcher   = (*Fetcher)(nil)
	_ diffset.BlobCache = (*BlobCache)(nil)
)

// Backend is a mock implementation of diffset.Backend.
type Backend struct {
	GetFileFn               func(ctx context.Context, path string, revision diffset.Revision) ([]byte, error)
	FileExistsFn            func(ctx context.Context, path string, revision diffset.Revision) (bool, error)
	DiffsUseAbsolutePathsFn func() bool
}

func (b *Backend) GetFile(ctx context.Context, path string, revision diffset.Revision) ([]byte, error) {
	return b.GetFileFn(ctx, path, revision)
}

func (b *Backend) FileExists(ctx context.Context, path string, revision diffset.Revision) (bool, error) {
	return b.FileExistsFn(ctx, path, revision)
}

// DiffsUseAbsolutePaths returns false when DiffsUseAbsolutePathsFn is unset.
func (b *Backend) DiffsUseAbsolutePaths() bool {
	if b.DiffsUseAbsolutePathsFn == nil {
		return false
	}
	return b.DiffsUseAbsolutePathsFn()
}

// Fetcher is a mock implementation of diffset.Fetcher.
type Fetcher struct {
	FetchFn         func(ctx context.Context, path string, revision diffset.Revision) ([]byte, error)
	ExistsFn        func(ctx context.Context, path string, revision diffset.Revision) (bool, error)
	AbsolutePathsFn func() bool
}

func (f *Fetcher) Fetch(ctx context.Context, path string, revision diffset.Revision) ([]byte, error) {
	return f.FetchFn(ctx, path, revision)
}

func (f *Fetcher) Exists(ctx context.Context, path string, revision diffset.Revision) (bool, error) {
	return f.ExistsFn(ctx, path, revision)
}

// AbsolutePaths returns false when AbsolutePathsFn is unset.
func (f *Fetcher) AbsolutePaths() bool {
	if f.AbsolutePathsFn == nil {
		return false
	}
	return f.AbsolutePathsFn()
}

// BlobCache is a mock implementation of diffset.BlobCache.
type BlobCache struct {
	GetFn func(path string, revision diffset.Revision) ([]byte, bool)
	AddFn func(path string, revision diffset.Revision, data []byte)
}

func (c *BlobCache) Get(path string, revision diffset.Revision) ([]byte, bool) {
	return c.GetFn(path, revision)
}

func (c *BlobCache) Add(path string, revision diffset.Revision, data []byte) {
	c.AddFn(path, revision, data)
}
