package cache

import (
	"context"
	"slices"
)

// List reads a slice-valued query through the store. The returned slice is
// a top-level copy: consumers get a snapshot, never the live cached slice.
func List[T any](ctx context.Context, s *Store, key Key, fn func(context.Context) ([]T, error)) ([]T, error) {
	v, err := s.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	data, _ := v.([]T)
	return slices.Clone(data), err
}

// Value reads a scalar-valued query through the store.
func Value[T any](ctx context.Context, s *Store, key Key, fn func(context.Context) (T, error)) (T, error) {
	v, err := s.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	data, _ := v.(T)
	return data, err
}
