package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// LoadJSON decodes the value at key into dst. It reports false when the key is
// absent. A value that does not decode is treated as absent and logged, since the
// mirror is only ever a fallback.
func LoadJSON(ctx context.Context, s Store, key string, dst any) (bool, error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		slog.WarnContext(ctx, "Discarding undecodable mirror value", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

// SaveJSON encodes v and stores it at key.
func SaveJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Collection is a typed view over an array stored under one key.
type Collection[T any] struct {
	store Store
	key   string
}

func NewCollection[T any](s Store, key string) *Collection[T] {
	return &Collection[T]{store: s, key: key}
}

// Load returns the cached items, or an empty slice when nothing is cached.
func (c *Collection[T]) Load(ctx context.Context) ([]T, error) {
	var items []T
	if _, err := LoadJSON(ctx, c.store, c.key, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// Save replaces the cached items.
func (c *Collection[T]) Save(ctx context.Context, items []T) error {
	if items == nil {
		items = []T{}
	}
	return SaveJSON(ctx, c.store, c.key, items)
}

// Update loads the items, applies fn and saves the result.
func (c *Collection[T]) Update(ctx context.Context, fn func([]T) []T) ([]T, error) {
	items, err := c.Load(ctx)
	if err != nil {
		return nil, err
	}
	items = fn(items)
	if err := c.Save(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Collection[T]) Key() string {
	return c.key
}
