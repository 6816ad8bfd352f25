package transfer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	infraeventbus "github.com/amirasaad/corebank/infra/eventbus"
	"github.com/amirasaad/corebank/infra/memory"
	"github.com/amirasaad/corebank/pkg/domain/account"
	"github.com/amirasaad/corebank/pkg/domain/events"
	"github.com/amirasaad/corebank/pkg/domain/user"
	"github.com/amirasaad/corebank/pkg/idgen"
	"github.com/amirasaad/corebank/pkg/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store  *memory.Store
	bus    *infraeventbus.MemoryEventBus
	engine *Engine
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, opts ...memory.Option) *fixture {
	t.Helper()
	ids, err := idgen.New(idgen.Config{DatacenterID: 1, WorkerID: 1})
	require.NoError(t, err)
	store := memory.New(opts...)
	bus := infraeventbus.NewWithMemory(discardLogger(), infraeventbus.WithRecording())
	return &fixture{
		store:  store,
		bus:    bus,
		engine: New(store, ids, bus, discardLogger()),
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// holder creates an active user owning one account with the given balance.
func (f *fixture) holder(t *testing.T, name string, number int64, balance string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	u, err := user.New(name, uuid.NewString()[:8]+"@example.com", "secret")
	require.NoError(t, err)
	u.Active = true
	users, _ := f.store.UserRepository()
	require.NoError(t, users.Create(ctx, u))

	acct, err := account.New().
		WithNumber(number).
		WithOwner(u.ID).
		WithBalance(dec(balance)).
		Build()
	require.NoError(t, err)
	accounts, _ := f.store.AccountRepository()
	require.NoError(t, accounts.Create(ctx, acct))
	return u.ID
}

func (f *fixture) balance(t *testing.T, number int64) decimal.Decimal {
	t.Helper()
	accounts, _ := f.store.AccountRepository()
	acct, err := accounts.Get(context.Background(), number)
	require.NoError(t, err)
	return acct.Balance
}

func (f *fixture) entries(t *testing.T, numbers ...int64) []*account.LedgerEntry {
	t.Helper()
	ledger, _ := f.store.LedgerRepository()
	entries, err := ledger.List(context.Background(), repository.LedgerFilter{Accounts: numbers})
	require.NoError(t, err)
	return entries
}

func TestTransfer_Success(t *testing.T) {
	f := newFixture(t)
	alice := f.holder(t, "Alice Doe", 2600000001, "20000.00")
	f.holder(t, "Bob Roe", 2600000002, "0.00")

	res, err := f.engine.Transfer(context.Background(), Request{
		SourceUserID:       alice,
		DestinationAccount: 2600000002,
		Amount:             dec("5000.00"),
		Description:        "rent",
	})
	require.NoError(t, err)

	assert.Equal(t, "15000.00", f.balance(t, 2600000001).StringFixed(2))
	assert.Equal(t, "5000.00", f.balance(t, 2600000002).StringFixed(2))

	assert.Equal(t, account.TransactionDebit, res.Debit.Transaction.Type)
	assert.Equal(t, account.TransactionCredit, res.Credit.Transaction.Type)
	assert.Equal(t, account.ModeMobileAppTransfer, res.Debit.Transaction.Mode)
	assert.NotEqual(t, res.Debit.Transaction.ID, res.Credit.Transaction.ID)
	assert.Equal(t, "15000.00", res.Debit.BalanceAfter.StringFixed(2))
	assert.Equal(t, "5000.00", res.Credit.BalanceAfter.StringFixed(2))
	assert.Equal(t, "Bob Roe", res.Debit.CounterpartyName)
	assert.Equal(t, "Alice Doe", res.Credit.CounterpartyName)
	assert.Equal(t, []State{
		StateInitiated, StateLocked, StateValidated, StateDebited,
		StateCredited, StateLedgerPosted, StateCommitted,
	}, res.States)

	entries := f.entries(t, 2600000001, 2600000002)
	require.Len(t, entries, 2)
	for _, e := range entries {
		require.NotNil(t, e.Transaction)
		assert.Equal(t, "rent", e.Transaction.Description)
		require.NotNil(t, e.Transaction.FromAccount)
		assert.Equal(t, int64(2600000001), *e.Transaction.FromAccount)
		assert.Equal(t, int64(2600000002), *e.Transaction.ToAccount)
	}

	published := f.bus.Published()
	require.Len(t, published, 1)
	evt, ok := published[0].(*events.TransferCompleted)
	require.True(t, ok)
	assert.Equal(t, res.ID, evt.ID)
	assert.Equal(t, int64(2600000002), evt.Credit.AccountNumber)
	assert.Equal(t, "Alice Doe", evt.Credit.CounterpartyName)
}

func TestTransfer_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		to     int64
		amount string
		err    error
	}{
		{name: "insufficient funds", to: 2600000002, amount: "100.00", err: account.ErrInsufficientFunds},
		{name: "unknown recipient", to: 2699999999, amount: "1.00", err: account.ErrUnknownRecipient},
		{name: "zero amount", to: 2600000002, amount: "0", err: account.ErrInvalidAmount},
		{name: "negative amount", to: 2600000002, amount: "-5.00", err: account.ErrInvalidAmount},
		{name: "sub-cent amount", to: 2600000002, amount: "0.001", err: account.ErrInvalidAmount},
		{name: "same account", to: 2600000001, amount: "1.00", err: account.ErrCannotTransferToSameAccount},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			src := f.holder(t, "Carol Poe", 2600000001, "50.00")
			f.holder(t, "Dan Moe", 2600000002, "10.00")

			_, err := f.engine.Transfer(context.Background(), Request{
				SourceUserID:       src,
				DestinationAccount: tc.to,
				Amount:             dec(tc.amount),
			})
			require.ErrorIs(t, err, tc.err)

			assert.Equal(t, "50.00", f.balance(t, 2600000001).StringFixed(2))
			assert.Equal(t, "10.00", f.balance(t, 2600000002).StringFixed(2))
			assert.Empty(t, f.entries(t, 2600000001, 2600000002))
			assert.Empty(t, f.bus.Published())
		})
	}
}

func TestTransfer_SourceWithoutAccount(t *testing.T) {
	f := newFixture(t)
	f.holder(t, "Erin Loe", 2600000002, "0.00")

	_, err := f.engine.Transfer(context.Background(), Request{
		SourceUserID:       uuid.New(),
		DestinationAccount: 2600000002,
		Amount:             dec("1.00"),
	})
	require.ErrorIs(t, err, account.ErrAccountNotFound)
}

func TestTransfer_DrainsExactBalance(t *testing.T) {
	f := newFixture(t)
	src := f.holder(t, "Finn Hoe", 2600000001, "42.50")
	f.holder(t, "Gail Toe", 2600000002, "0.00")

	_, err := f.engine.Transfer(context.Background(), Request{
		SourceUserID:       src,
		DestinationAccount: 2600000002,
		Amount:             dec("42.50"),
	})
	require.NoError(t, err)
	assert.True(t, f.balance(t, 2600000001).IsZero())
}

func TestTransfer_LockTimeout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.WithLockTimeout(30*time.Millisecond))
	src := f.holder(t, "Hana Woe", 2600000001, "100.00")
	f.holder(t, "Ivan Zoe", 2600000002, "0.00")

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- f.store.Do(ctx, func(uow repository.UnitOfWork) error {
			accounts, _ := uow.AccountRepository()
			if _, err := accounts.GetForUpdateByNumber(ctx, 2600000002); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	_, err := f.engine.Transfer(ctx, Request{
		SourceUserID:       src,
		DestinationAccount: 2600000002,
		Amount:             dec("10.00"),
	})
	require.ErrorIs(t, err, account.ErrLockTimeout)
	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, "100.00", f.balance(t, 2600000001).StringFixed(2))
	assert.Empty(t, f.entries(t, 2600000001, 2600000002))
}

var errDiskFull = errors.New("disk full")

// failingUoW fails ledger writes for one account, to exercise rollback after
// both balances were already mutated.
type failingUoW struct {
	repository.UnitOfWork
	failFor int64
}

func (f *failingUoW) Do(ctx context.Context, fn func(uow repository.UnitOfWork) error) error {
	return f.UnitOfWork.Do(ctx, func(inner repository.UnitOfWork) error {
		return fn(&failingUoW{UnitOfWork: inner, failFor: f.failFor})
	})
}

func (f *failingUoW) LedgerRepository() (repository.LedgerRepository, error) {
	inner, err := f.UnitOfWork.LedgerRepository()
	if err != nil {
		return nil, err
	}
	return &failingLedger{LedgerRepository: inner, failFor: f.failFor}, nil
}

type failingLedger struct {
	repository.LedgerRepository
	failFor int64
}

func (l *failingLedger) Create(ctx context.Context, e *account.LedgerEntry) error {
	if e.AccountNumber == l.failFor {
		return errDiskFull
	}
	return l.LedgerRepository.Create(ctx, e)
}

func TestTransfer_StorageFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	src := f.holder(t, "Jo Kay", 2600000001, "300.00")
	f.holder(t, "Lu Bay", 2600000002, "7.00")

	ids, err := idgen.New(idgen.Config{})
	require.NoError(t, err)
	engine := New(&failingUoW{UnitOfWork: f.store, failFor: 2600000002}, ids, f.bus, discardLogger())

	_, err = engine.Transfer(context.Background(), Request{
		SourceUserID:       src,
		DestinationAccount: 2600000002,
		Amount:             dec("100.00"),
	})
	require.ErrorIs(t, err, errDiskFull)

	assert.Equal(t, "300.00", f.balance(t, 2600000001).StringFixed(2))
	assert.Equal(t, "7.00", f.balance(t, 2600000002).StringFixed(2))
	assert.Empty(t, f.entries(t, 2600000001, 2600000002), "debit leg must not survive the failed credit leg")
	assert.Empty(t, f.bus.Published())
}

func TestTransfer_ConcurrentOppositeDirections(t *testing.T) {
	f := newFixture(t)
	a := f.holder(t, "Mia Ray", 2600000001, "1000.00")
	b := f.holder(t, "Ned Fay", 2600000002, "1000.00")

	const rounds = 40
	var wg sync.WaitGroup
	errs := make(chan error, 2*rounds)
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.engine.Transfer(context.Background(), Request{
				SourceUserID: a, DestinationAccount: 2600000002, Amount: dec("7.00"),
			})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := f.engine.Transfer(context.Background(), Request{
				SourceUserID: b, DestinationAccount: 2600000001, Amount: dec("3.00"),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	balA, balB := f.balance(t, 2600000001), f.balance(t, 2600000002)
	assert.Equal(t, "2000.00", balA.Add(balB).StringFixed(2), "money is conserved")
	assert.Equal(t, "840.00", balA.StringFixed(2))
	assert.Equal(t, "1160.00", balB.StringFixed(2))

	entries := f.entries(t, 2600000001, 2600000002)
	require.Len(t, entries, 4*rounds)

	// Replaying each account's ledger from its opening balance reproduces
	// the stored balance, and no snapshot is ever negative.
	replay := map[int64]decimal.Decimal{2600000001: dec("1000.00"), 2600000002: dec("1000.00")}
	latest := map[int64]*account.LedgerEntry{}
	for _, e := range entries {
		assert.False(t, e.BalanceAfter.IsNegative())
		replay[e.AccountNumber] = replay[e.AccountNumber].Add(e.Transaction.Delta())
		if cur, ok := latest[e.AccountNumber]; !ok || e.ID > cur.ID {
			latest[e.AccountNumber] = e
		}
	}
	assert.True(t, replay[2600000001].Equal(balA))
	assert.True(t, replay[2600000002].Equal(balB))
	assert.True(t, latest[2600000001].BalanceAfter.Equal(balA))
	assert.True(t, latest[2600000002].BalanceAfter.Equal(balB))
}

func TestTransfer_ConcurrentNeverOverdraws(t *testing.T) {
	f := newFixture(t)
	src := f.holder(t, "Ola Jay", 2600000001, "50.00")
	f.holder(t, "Pia Kay", 2600000002, "0.00")

	const attempts = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Transfer(context.Background(), Request{
				SourceUserID: src, DestinationAccount: 2600000002, Amount: dec("10.00"),
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, account.ErrInsufficientFunds)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.True(t, f.balance(t, 2600000001).IsZero())
	assert.Equal(t, "50.00", f.balance(t, 2600000002).StringFixed(2))
}

func TestSystemCredit(t *testing.T) {
	f := newFixture(t)
	f.holder(t, "Quin Lay", 2600000009, "0.00")

	var leg Leg
	err := f.store.Do(context.Background(), func(uow repository.UnitOfWork) error {
		var err error
		leg, err = f.engine.SystemCredit(context.Background(), uow, 2600000009, dec("20000.00"), "welcome")
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, "20000.00", f.balance(t, 2600000009).StringFixed(2))
	assert.Equal(t, account.ModeAutoCredit, leg.Transaction.Mode)
	assert.Nil(t, leg.Transaction.FromAccount)

	entries := f.entries(t, 2600000009)
	require.Len(t, entries, 1)
	assert.Equal(t, "20000.00", entries[0].BalanceAfter.StringFixed(2))
	assert.Equal(t, "welcome", entries[0].Transaction.Description)
}

func TestMachine(t *testing.T) {
	m := newMachine(discardLogger())
	m.advance(StateLocked)
	assert.Panics(t, func() { m.advance(StateDebited) })

	m.fail(errDiskFull)
	assert.Equal(t, StateFailed, m.state)
	assert.True(t, m.state.Terminal())
	assert.Panics(t, func() { m.advance(StateValidated) })

	m.fail(errDiskFull)
	assert.Equal(t, []State{StateInitiated, StateLocked, StateFailed}, m.history)
}

// movingPrimaryAccounts hands out a different primary under lock than the
// unlocked listing reported.
type movingPrimaryAccounts struct {
	repository.AccountRepository
	listed, locked, dest *account.Account
}

func (r *movingPrimaryAccounts) ListByOwner(context.Context, uuid.UUID) ([]*account.Account, error) {
	return []*account.Account{r.listed}, nil
}

func (r *movingPrimaryAccounts) GetForUpdateByOwner(context.Context, uuid.UUID) (*account.Account, error) {
	return r.locked, nil
}

func (r *movingPrimaryAccounts) GetForUpdateByNumber(context.Context, int64) (*account.Account, error) {
	return r.dest, nil
}

func TestLockPair_RejectsPrimaryChangedUnderLock(t *testing.T) {
	owner := uuid.New()
	repo := &movingPrimaryAccounts{
		listed: &account.Account{Number: 30, OwnerID: owner, Type: account.TypeSavings},
		locked: &account.Account{Number: 10, OwnerID: owner, Type: account.TypeSavings},
		dest:   &account.Account{Number: 20},
	}
	_, _, err := lockPair(context.Background(), repo, owner, 20)
	require.ErrorIs(t, err, errPrimaryMoved)

	repo.locked = repo.listed
	src, dst, err := lockPair(context.Background(), repo, owner, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(30), src.Number)
	assert.Equal(t, int64(20), dst.Number)
}
