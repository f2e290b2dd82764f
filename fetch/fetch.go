// Package fetch resolves source blobs from a repository backend with
// per-call timeouts, retries and caching.
package fetch

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fwojciec/diffset"
)

// Defaults used when the corresponding Fetcher field is zero.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultMaxRetries      = 2
	DefaultInitialInterval = 200 * time.Millisecond
)

// Compile-time interface verification.
var _ diffset.Fetcher = (*Fetcher)(nil)

// Fetcher wraps a Backend. The zero values of the tuning fields select the
// package defaults.
type Fetcher struct {
	Backend diffset.Backend
	Cache   diffset.BlobCache // Optional
	Logger  diffset.Logger

	Timeout         time.Duration // Per backend call
	MaxRetries      int           // Retries after the first attempt; negative disables retrying
	InitialInterval time.Duration // First backoff delay
}

// NewFetcher creates a Fetcher over backend. cache may be nil.
func NewFetcher(backend diffset.Backend, cache diffset.BlobCache) *Fetcher {
	return &Fetcher{
		Backend: backend,
		Cache:   cache,
		Logger:  diffset.NopLogger{},
	}
}

// Fetch returns the content of path at revision. An added file's original
// side is empty and never reaches the backend.
//
// Missing files fail immediately with diffset.ErrSourceMissing. Timeouts and
// other backend failures are retried with exponential backoff. When ctx is
// cancelled, its error is returned unwrapped.
func (f *Fetcher) Fetch(ctx context.Context, path string, revision diffset.Revision) ([]byte, error) {
	if revision == diffset.PreCreation {
		return []byte{}, nil
	}
	if f.Cache != nil {
		if data, ok := f.Cache.Get(path, revision); ok {
			return data, nil
		}
	}

	data, err := retry(ctx, f, path, revision, func(callCtx context.Context) ([]byte, error) {
		return f.Backend.GetFile(callCtx, path, revision)
	})
	if err != nil {
		return nil, err
	}

	if f.Cache != nil {
		f.Cache.Add(path, revision, data)
	}
	return data, nil
}

// Exists reports whether path exists at revision. An added file's
// original side always exists.
func (f *Fetcher) Exists(ctx context.Context, path string, revision diffset.Revision) (bool, error) {
	if revision == diffset.PreCreation {
		return true, nil
	}
	if f.Cache != nil {
		if _, ok := f.Cache.Get(path, revision); ok {
			return true, nil
		}
	}

	return retry(ctx, f, path, revision, func(callCtx context.Context) (bool, error) {
		return f.Backend.FileExists(callCtx, path, revision)
	})
}

// AbsolutePaths reports whether the backend's diffs use absolute paths.
func (f *Fetcher) AbsolutePaths() bool {
	return f.Backend.DiffsUseAbsolutePaths()
}

// retry runs op under a per-call timeout until it succeeds, fails
// permanently or runs out of retries.
func retry[T any](ctx context.Context, f *Fetcher, path string, revision diffset.Revision, op func(context.Context) (T, error)) (T, error) {
	var result T
	attempt := 0
	operation := func() error {
		attempt++
		v, err := call(ctx, f.timeout(), op)
		if err == nil {
			result = v
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		fe := classify(path, revision, err)
		if !fe.Retryable() {
			return backoff.Permanent(fe)
		}
		return fe
	}

	notify := func(err error, wait time.Duration) {
		f.logger().Warn(ctx, "retrying blob fetch", map[string]any{
			"path":     path,
			"revision": string(revision),
			"attempt":  attempt,
			"wait":     wait.String(),
			"error":    err.Error(),
		})
	}

	var zero T
	err := backoff.RetryNotify(operation, backoff.WithContext(f.backOff(), ctx), notify)
	if err != nil && ctx.Err() != nil {
		return zero, ctx.Err()
	}
	if err != nil {
		return zero, err
	}
	return result, nil
}

// outcome carries the result of one backend call.
type outcome[T any] struct {
	v   T
	err error
}

// call runs op with a deadline of timeout. The deadline holds even when the
// backend ignores its context: the call is abandoned and its late result
// discarded.
func call[T any](ctx context.Context, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		v, err := op(callCtx)
		done <- outcome[T]{v, err}
	}()

	var zero T
	select {
	case o := <-done:
		if o.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, &diffset.FetchError{Err: diffset.ErrFetchTimeout, Cause: o.err}
		}
		return o.v, o.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, &diffset.FetchError{Err: diffset.ErrFetchTimeout, Cause: callCtx.Err()}
	}
}

func (f *Fetcher) timeout() time.Duration {
	if f.Timeout <= 0 {
		return DefaultTimeout
	}
	return f.Timeout
}

func (f *Fetcher) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = DefaultInitialInterval
	if f.InitialInterval > 0 {
		b.InitialInterval = f.InitialInterval
	}
	b.MaxElapsedTime = 0

	retries := f.MaxRetries
	switch {
	case retries == 0:
		retries = DefaultMaxRetries
	case retries < 0:
		retries = 0
	}
	return backoff.WithMaxRetries(b, uint64(retries))
}

func (f *Fetcher) logger() diffset.Logger {
	if f.Logger == nil {
		return diffset.NopLogger{}
	}
	return f.Logger
}

// classify maps a backend error onto the fetch error taxonomy.
func classify(path string, revision diffset.Revision, err error) *diffset.FetchError {
	var fe *diffset.FetchError
	if errors.As(err, &fe) && fe.Path == "" {
		// Timeout raised by call; fill in the location.
		return &diffset.FetchError{Path: path, Revision: revision, Err: fe.Err, Cause: fe.Cause}
	}
	switch {
	case errors.Is(err, diffset.ErrFileNotFound):
		return &diffset.FetchError{Path: path, Revision: revision, Err: diffset.ErrSourceMissing, Cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &diffset.FetchError{Path: path, Revision: revision, Err: diffset.ErrFetchTimeout, Cause: err}
	default:
		return &diffset.FetchError{Path: path, Revision: revision, Err: diffset.ErrBackendUnavailable, Cause: err}
	}
}
