package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/amirasaad/corebank/pkg/domain"
	"github.com/amirasaad/corebank/pkg/domain/account"
	"github.com/amirasaad/corebank/pkg/domain/user"
	"github.com/amirasaad/corebank/pkg/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSQLiteUoW(t *testing.T) *UoW {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(Models()...))
	return NewUoW(db)
}

func seedAccount(t *testing.T, uow *UoW, number int64, owner uuid.UUID, typ account.Type, balance string, created time.Time) {
	t.Helper()
	acct, err := account.New().
		WithNumber(number).
		WithOwner(owner).
		WithType(typ).
		WithBalance(decimal.RequireFromString(balance)).
		WithCreatedAt(created).
		Build()
	require.NoError(t, err)
	repo, err := uow.AccountRepository()
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), acct))
}

func TestSQLite_UnitOfWorkCommitAndList(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	ctx := context.Background()
	uow := newSQLiteUoW(t)

	alice, bob := uuid.New(), uuid.New()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	seedAccount(t, uow, 2400000001, alice, account.TypeSavings, "20000.00", base)
	seedAccount(t, uow, 2400000002, bob, account.TypeSavings, "0", base)

	at := base.Add(time.Hour)
	from, to := int64(2400000001), int64(2400000002)
	err := uow.Do(ctx, func(tx repository.UnitOfWork) error {
		accounts, _ := tx.AccountRepository()
		txs, _ := tx.TransactionRepository()
		ledger, _ := tx.LedgerRepository()

		src, err := accounts.GetForUpdateByOwner(ctx, alice)
		if err != nil {
			return err
		}
		dst, err := accounts.GetForUpdateByNumber(ctx, to)
		if err != nil {
			return err
		}
		amount := decimal.RequireFromString("5000.00")
		if err := src.Debit(amount, at); err != nil {
			return err
		}
		if err := dst.Credit(amount, at); err != nil {
			return err
		}
		for _, a := range []*account.Account{src, dst} {
			if err := accounts.Persist(ctx, a); err != nil {
				return err
			}
		}
		legs := []struct {
			id    int64
			typ   account.TransactionType
			acct  *account.Account
			entry int64
		}{
			{id: 1001, typ: account.TransactionDebit, acct: src, entry: 5001},
			{id: 1002, typ: account.TransactionCredit, acct: dst, entry: 5002},
		}
		for _, leg := range legs {
			if err := txs.Create(ctx, &account.Transaction{
				ID: leg.id, Type: leg.typ, Mode: account.ModeMobileAppTransfer,
				FromAccount: &from, ToAccount: &to, Amount: amount, Description: "rent", Timestamp: at,
			}); err != nil {
				return err
			}
			if err := ledger.Create(ctx, &account.LedgerEntry{
				ID: leg.entry, AccountNumber: leg.acct.Number, TransactionID: leg.id,
				BalanceAfter: leg.acct.Balance, Timestamp: at,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(err)

	accounts, _ := uow.AccountRepository()
	src, err := accounts.Get(ctx, from)
	require.NoError(err)
	dst, err := accounts.Get(ctx, to)
	require.NoError(err)
	assert.True(src.Balance.Equal(decimal.RequireFromString("15000")))
	assert.True(dst.Balance.Equal(decimal.RequireFromString("5000")))

	ledger, _ := uow.LedgerRepository()
	entries, err := ledger.List(ctx, repository.LedgerFilter{Accounts: []int64{from, to}})
	require.NoError(err)
	require.Len(entries, 2)
	assert.Equal(int64(5002), entries[0].ID, "ties on timestamp fall back to newest id")
	require.NotNil(entries[0].Transaction)
	assert.Equal(account.TransactionCredit, entries[0].Transaction.Type)
	assert.Equal("rent", entries[1].Transaction.Description)

	before := base.Add(30 * time.Minute)
	entries, err = ledger.List(ctx, repository.LedgerFilter{Accounts: []int64{from}, End: &before})
	require.NoError(err)
	assert.Empty(entries)

	entries, err = ledger.List(ctx, repository.LedgerFilter{Accounts: []int64{from}, Start: &at, End: &at})
	require.NoError(err)
	require.Len(entries, 1, "range bounds are inclusive")
}

func TestSQLite_UnitOfWorkRollback(t *testing.T) {
	ctx := context.Background()
	uow := newSQLiteUoW(t)
	owner := uuid.New()
	seedAccount(t, uow, 2400000010, owner, account.TypeSavings, "100.00", time.Now().UTC())

	boom := errors.New("storage failure")
	err := uow.Do(ctx, func(tx repository.UnitOfWork) error {
		accounts, _ := tx.AccountRepository()
		acct, err := accounts.GetForUpdateByOwner(ctx, owner)
		require.NoError(t, err)
		require.NoError(t, acct.Debit(decimal.RequireFromString("40.00"), time.Now().UTC()))
		require.NoError(t, accounts.Persist(ctx, acct))
		return boom
	})
	require.ErrorIs(t, err, boom)

	accounts, _ := uow.AccountRepository()
	acct, err := accounts.Get(ctx, 2400000010)
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(decimal.RequireFromString("100")))
}

func TestSQLite_PrimaryAccountSelection(t *testing.T) {
	ctx := context.Background()
	uow := newSQLiteUoW(t)
	owner := uuid.New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedAccount(t, uow, 11, owner, account.TypeCurrent, "1", base)
	seedAccount(t, uow, 12, owner, account.TypeSavings, "2", base.Add(time.Hour))
	seedAccount(t, uow, 13, owner, account.TypeSavings, "3", base.Add(2*time.Hour))

	err := uow.Do(ctx, func(tx repository.UnitOfWork) error {
		accounts, _ := tx.AccountRepository()
		acct, err := accounts.GetForUpdateByOwner(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, int64(12), acct.Number)

		_, err = accounts.GetForUpdateByOwner(ctx, uuid.New())
		assert.ErrorIs(t, err, account.ErrAccountNotFound)
		return nil
	})
	require.NoError(t, err)

	accounts, _ := uow.AccountRepository()
	list, err := accounts.ListByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, int64(11), list[0].Number)
}

func TestSQLite_PrimaryAccountTieBreak(t *testing.T) {
	ctx := context.Background()
	uow := newSQLiteUoW(t)
	owner := uuid.New()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedAccount(t, uow, 29, owner, account.TypeCurrent, "1", created)
	seedAccount(t, uow, 27, owner, account.TypeCurrent, "2", created)
	seedAccount(t, uow, 28, owner, account.TypeCurrent, "3", created)

	for i := 0; i < 3; i++ {
		err := uow.Do(ctx, func(tx repository.UnitOfWork) error {
			accounts, _ := tx.AccountRepository()
			acct, err := accounts.GetForUpdateByOwner(ctx, owner)
			require.NoError(t, err)
			assert.Equal(t, int64(27), acct.Number)
			return nil
		})
		require.NoError(t, err)
	}

	accounts, _ := uow.AccountRepository()
	list, err := accounts.ListByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int64{27, 28, 29}, []int64{list[0].Number, list[1].Number, list[2].Number})
}

func TestSQLite_Snapshot(t *testing.T) {
	ctx := context.Background()
	uow := newSQLiteUoW(t)
	owner := uuid.New()
	seedAccount(t, uow, 41, owner, account.TypeSavings, "7.50", time.Now().UTC())

	err := uow.Snapshot(ctx, func(tx repository.UnitOfWork) error {
		accounts, _ := tx.AccountRepository()
		list, err := accounts.ListByOwner(ctx, owner)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "7.50", list[0].Balance.StringFixed(2))

		ledger, _ := tx.LedgerRepository()
		entries, err := ledger.List(ctx, repository.LedgerFilter{Accounts: []int64{41}})
		require.NoError(t, err)
		assert.Empty(t, entries)
		return nil
	})
	require.NoError(t, err)
}

func TestSQLite_DuplicateKeys(t *testing.T) {
	ctx := context.Background()
	uow := newSQLiteUoW(t)
	owner := uuid.New()
	seedAccount(t, uow, 99, owner, account.TypeSavings, "0", time.Now().UTC())

	acct, err := account.New().WithNumber(99).WithOwner(owner).Build()
	require.NoError(t, err)
	accounts, _ := uow.AccountRepository()
	require.ErrorIs(t, accounts.Create(ctx, acct), domain.ErrAlreadyExists)

	users, _ := uow.UserRepository()
	u, err := user.New("Ada Obi", "ada@example.com", "pw")
	require.NoError(t, err)
	require.NoError(t, users.Create(ctx, u))
	dup, err := user.New("Ada Again", "ADA@example.com", "pw")
	require.NoError(t, err)
	require.ErrorIs(t, users.Create(ctx, dup), domain.ErrAlreadyExists)

	got, err := users.GetByEmail(ctx, "ADA@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "Ada Obi", got.FullName)
}
