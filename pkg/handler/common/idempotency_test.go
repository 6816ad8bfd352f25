package common

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amirasaad/corebank/pkg/domain/events"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func byID(e events.Event) string {
	if evt, ok := e.(*events.AccountOpened); ok {
		return evt.ID.String()
	}
	return ""
}

func TestWithIdempotency(t *testing.T) {
	t.Parallel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("executes handler when key is empty", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		wrapped := WithIdempotency(func(context.Context, events.Event) error {
			calls.Add(1)
			return nil
		}, NewIdempotencyTracker(), byID, "test", logger)

		require.NoError(t, wrapped(ctx, &events.OTPIssued{}))
		require.NoError(t, wrapped(ctx, &events.OTPIssued{}))
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("skips redelivered event", func(t *testing.T) {
		t.Parallel()
		tracker := NewIdempotencyTracker()
		var calls atomic.Int32
		wrapped := WithIdempotency(func(context.Context, events.Event) error {
			calls.Add(1)
			return nil
		}, tracker, byID, "test", logger)

		evt := &events.AccountOpened{ID: uuid.New()}
		require.NoError(t, wrapped(ctx, evt))
		require.NoError(t, wrapped(ctx, evt))
		assert.Equal(t, int32(1), calls.Load())
		assert.True(t, tracker.Processed(evt.ID.String()))
	})

	t.Run("failed attempt can be retried", func(t *testing.T) {
		t.Parallel()
		tracker := NewIdempotencyTracker()
		fail := true
		wrapped := WithIdempotency(func(context.Context, events.Event) error {
			if fail {
				return errors.New("smtp down")
			}
			return nil
		}, tracker, byID, "test", logger)

		evt := &events.AccountOpened{ID: uuid.New()}
		require.Error(t, wrapped(ctx, evt))
		assert.False(t, tracker.Processed(evt.ID.String()))

		fail = false
		require.NoError(t, wrapped(ctx, evt))
		assert.True(t, tracker.Processed(evt.ID.String()))
	})

	t.Run("forgets keys after retention", func(t *testing.T) {
		t.Parallel()
		now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
		tracker := NewIdempotencyTracker(
			WithRetention(time.Hour),
			WithTrackerClock(func() time.Time { return now }),
		)
		var calls atomic.Int32
		wrapped := WithIdempotency(func(context.Context, events.Event) error {
			calls.Add(1)
			return nil
		}, tracker, byID, "test", logger)

		evt := &events.AccountOpened{ID: uuid.New()}
		require.NoError(t, wrapped(ctx, evt))
		now = now.Add(59 * time.Minute)
		require.NoError(t, wrapped(ctx, evt))
		assert.Equal(t, int32(1), calls.Load())

		now = now.Add(2 * time.Minute)
		assert.False(t, tracker.Processed(evt.ID.String()))
		require.NoError(t, wrapped(ctx, evt))
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("concurrent deliveries run once", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		wrapped := WithIdempotency(func(context.Context, events.Event) error {
			calls.Add(1)
			time.Sleep(10 * time.Millisecond)
			return nil
		}, NewIdempotencyTracker(), byID, "test", logger)

		evt := &events.AccountOpened{ID: uuid.New()}
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, wrapped(ctx, evt))
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), calls.Load())
	})
}
