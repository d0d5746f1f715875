package cache

import (
	"context"
	"fmt"
	"time"
)

// GetOrCompute is the typed wrapper around Cache.GetOrCompute. A cached
// value of the wrong type counts as a miss and is recomputed.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	var zero T
	if c == nil {
		if compute == nil {
			return zero, ErrNilCompute
		}
		return compute(ctx)
	}
	value, err := c.GetOrCompute(ctx, key, ttl, func(ctx context.Context) (any, error) {
		return compute(ctx)
	})
	if err != nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		c.Invalidate(key)
		return zero, fmt.Errorf("cache: wrong type under key %q: %T", key, value)
	}
	return typed, nil
}
