package mock

import (
	"context"

	"github.com/fwojciec/diffset"
)

// Compile-time interface verification.
var (
	_ diffset.History = (*History)(nil)
	_ diffset.Store   = (*Store)(nil)
)

// History is a mock implementation of diffset.History.
type History struct {
	IsFinalizedFn func(ctx context.Context, id string) (bool, error)
}

func (h *History) IsFinalized(ctx context.Context, id string) (bool, error) {
	return h.IsFinalizedFn(ctx, id)
}

// Store is a mock implementation of diffset.Store.
type Store struct {
	IsFinalizedFn func(ctx context.Context, id string) (bool, error)
	SaveFn        func(ctx context.Context, ds *diffset.DiffSet) error
	LoadFn        func(ctx context.Context, id string) (*diffset.DiffSet, error)
	FinalizeFn    func(ctx context.Context, id string) error
}

func (s *Store) IsFinalized(ctx context.Context, id string) (bool, error) {
	return s.IsFinalizedFn(ctx, id)
}

func (s *Store) Save(ctx context.Context, ds *diffset.DiffSet) error {
	return s.SaveFn(ctx, ds)
}

func (s *Store) Load(ctx context.Context, id string) (*diffset.DiffSet, error) {
	return s.LoadFn(ctx, id)
}

func (s *Store) Finalize(ctx context.Context, id string) error {
	return s.FinalizeFn(ctx, id)
}
