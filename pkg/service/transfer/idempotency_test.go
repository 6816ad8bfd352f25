package transfer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	infracache "github.com/amirasaad/corebank/infra/cache"
	"github.com/amirasaad/corebank/pkg/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGuard(t *testing.T) *IdempotencyGuard {
	t.Helper()
	c := infracache.NewMemoryCache()
	t.Cleanup(func() { _ = c.Close() })
	return NewIdempotencyGuard(c, time.Hour, discardLogger())
}

func TestIdempotencyGuard_ReplaysCommittedTransfer(t *testing.T) {
	f := newFixture(t)
	src := f.holder(t, "Rae Sun", 2600000001, "100.00")
	f.holder(t, "Sid Moon", 2600000002, "0.00")
	guard := newGuard(t)
	req := Request{SourceUserID: src, DestinationAccount: 2600000002, Amount: dec("25.00")}

	first, replayed, err := guard.Do(context.Background(), "key-1", req, f.engine.Transfer)
	require.NoError(t, err)
	assert.False(t, replayed)

	second, replayed, err := guard.Do(context.Background(), "key-1", req, f.engine.Transfer)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Debit.Transaction.ID, second.Debit.Transaction.ID)
	assert.True(t, first.Credit.BalanceAfter.Equal(second.Credit.BalanceAfter))

	assert.Equal(t, "75.00", f.balance(t, 2600000001).StringFixed(2), "replay must not move money twice")
	assert.Len(t, f.entries(t, 2600000001), 1)
}

func TestIdempotencyGuard_KeyReusedWithDifferentBody(t *testing.T) {
	f := newFixture(t)
	src := f.holder(t, "Tia Star", 2600000001, "100.00")
	f.holder(t, "Uma Sky", 2600000002, "0.00")
	guard := newGuard(t)
	req := Request{SourceUserID: src, DestinationAccount: 2600000002, Amount: dec("25.00")}

	_, _, err := guard.Do(context.Background(), "key-1", req, f.engine.Transfer)
	require.NoError(t, err)

	req.Amount = dec("30.00")
	_, _, err = guard.Do(context.Background(), "key-1", req, f.engine.Transfer)
	require.ErrorIs(t, err, ErrIdempotencyKeyReused)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestIdempotencyGuard_KeysAreScopedPerUser(t *testing.T) {
	guard := newGuard(t)
	var calls atomic.Int32
	fn := func(_ context.Context, req Request) (*Result, error) {
		calls.Add(1)
		return &Result{ID: uuid.New()}, nil
	}
	a := Request{SourceUserID: uuid.New(), DestinationAccount: 1, Amount: dec("1.00")}
	b := Request{SourceUserID: uuid.New(), DestinationAccount: 1, Amount: dec("1.00")}

	_, replayed, err := guard.Do(context.Background(), "shared", a, fn)
	require.NoError(t, err)
	assert.False(t, replayed)
	_, replayed, err = guard.Do(context.Background(), "shared", b, fn)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, int32(2), calls.Load())
}

func TestIdempotencyGuard_FailuresAreNotStored(t *testing.T) {
	guard := newGuard(t)
	req := Request{SourceUserID: uuid.New(), DestinationAccount: 1, Amount: dec("1.00")}
	boom := errors.New("boom")

	_, _, err := guard.Do(context.Background(), "k", req, func(context.Context, Request) (*Result, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	res, replayed, err := guard.Do(context.Background(), "k", req, func(context.Context, Request) (*Result, error) {
		return &Result{ID: uuid.New()}, nil
	})
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.NotNil(t, res)
}

func TestIdempotencyGuard_ConcurrentDuplicatesRunOnce(t *testing.T) {
	guard := newGuard(t)
	req := Request{SourceUserID: uuid.New(), DestinationAccount: 1, Amount: dec("1.00")}
	var calls atomic.Int32
	fn := func(context.Context, Request) (*Result, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return &Result{ID: uuid.New()}, nil
	}

	const n = 10
	ids := make([]uuid.UUID, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, _, err := guard.Do(context.Background(), "same", req, fn)
			assert.NoError(t, err)
			if res != nil {
				ids[i] = res.ID
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestIdempotencyGuard_NoKeyAlwaysExecutes(t *testing.T) {
	guard := newGuard(t)
	var calls atomic.Int32
	fn := func(context.Context, Request) (*Result, error) {
		calls.Add(1)
		return &Result{}, nil
	}
	req := Request{SourceUserID: uuid.New()}
	for i := 0; i < 3; i++ {
		_, _, err := guard.Do(context.Background(), "", req, fn)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())
}
