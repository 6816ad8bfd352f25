// Package common holds helpers shared by event handlers.
package common

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/amirasaad/corebank/pkg/domain/events"
	"github.com/amirasaad/corebank/pkg/eventbus"
	"golang.org/x/sync/singleflight"
)

// DefaultRetention is how long a handled event key is remembered.
const DefaultRetention = 24 * time.Hour

// KeyExtractor extracts an idempotency key from an event
type KeyExtractor func(events.Event) string

// IdempotencyTracker remembers which event keys a handler already handled.
// Redis and Kafka deliver at least once, so a redelivered TransferCompleted
// must not send a second alert. Keys are forgotten after the retention
// window to keep a long-running consumer's memory bounded.
type IdempotencyTracker struct {
	mu        sync.Mutex
	handled   map[string]time.Time
	retention time.Duration
	now       func() time.Time
	inflight  singleflight.Group
}

// TrackerOption configures an IdempotencyTracker.
type TrackerOption func(*IdempotencyTracker)

// WithRetention sets how long handled keys are remembered.
func WithRetention(d time.Duration) TrackerOption {
	return func(t *IdempotencyTracker) { t.retention = d }
}

// WithTrackerClock replaces time.Now, for tests.
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *IdempotencyTracker) { t.now = now }
}

// NewIdempotencyTracker creates an empty tracker.
func NewIdempotencyTracker(opts ...TrackerOption) *IdempotencyTracker {
	t := &IdempotencyTracker{
		handled:   make(map[string]time.Time),
		retention: DefaultRetention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Processed reports whether key was handled successfully within the
// retention window.
func (t *IdempotencyTracker) Processed(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.handled[key]
	if !ok {
		return false
	}
	if t.now().Sub(at) > t.retention {
		delete(t.handled, key)
		return false
	}
	return true
}

func (t *IdempotencyTracker) markHandled(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.handled[key] = now
	for k, at := range t.handled {
		if now.Sub(at) > t.retention {
			delete(t.handled, k)
		}
	}
}

// WithIdempotency wraps handler so each key is handled successfully at most
// once per retention window. Concurrent deliveries of one key share the
// in-flight attempt's result; a failed attempt leaves the key unhandled so
// the bus can redeliver it.
func WithIdempotency(
	handler eventbus.HandlerFunc,
	tracker *IdempotencyTracker,
	keyExtractor KeyExtractor,
	handlerName string,
	logger *slog.Logger,
) eventbus.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, e events.Event) error {
		key := keyExtractor(e)
		if key == "" {
			return handler(ctx, e)
		}
		if tracker.Processed(key) {
			logger.Info("🔁 [SKIP] Event already processed",
				"handler", handlerName,
				"event_type", e.Type(),
				"idempotency_key", key,
			)
			return nil
		}

		_, err, shared := tracker.inflight.Do(key, func() (any, error) {
			if tracker.Processed(key) {
				return nil, nil
			}
			if err := handler(ctx, e); err != nil {
				return nil, err
			}
			tracker.markHandled(key)
			return nil, nil
		})
		if err != nil {
			logger.Warn("event handler failed",
				"handler", handlerName,
				"event_type", e.Type(),
				"idempotency_key", key,
				"shared", shared,
				"error", err,
			)
		}
		return err
	}
}
