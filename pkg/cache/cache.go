package cache

import (
	"context"
	"time"
)

// ResultCache stores opaque serialized results by key, used to replay the
// outcome of a completed idempotent request.
type ResultCache interface {
	// Get returns the stored value and true, or nil and false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
