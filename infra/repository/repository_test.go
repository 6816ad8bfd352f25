package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/amirasaad/corebank/pkg/domain"
	"github.com/amirasaad/corebank/pkg/domain/account"
	"github.com/amirasaad/corebank/pkg/domain/user"
	"github.com/amirasaad/corebank/pkg/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var accountColumns = []string{"account_number", "owner_id", "account_type", "current_balance", "created_at", "updated_at"}

func TestAccountRepository_GetForUpdateByNumber(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	db, mock := newMockDB(t)
	repo := accountRepository{db: db}
	ownerID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT \* FROM "accounts" WHERE account_number = \$1 ORDER BY "accounts"\."account_number" LIMIT \$2 FOR UPDATE`).
		WithArgs(int64(2612345678), 1).
		WillReturnRows(sqlmock.NewRows(accountColumns).
			AddRow(int64(2612345678), ownerID.String(), "SAVINGS", "20000.00", now, now))

	acct, err := repo.GetForUpdateByNumber(context.Background(), 2612345678)
	require.NoError(err)
	assert.Equal(int64(2612345678), acct.Number)
	assert.Equal(ownerID, acct.OwnerID)
	assert.Equal(account.TypeSavings, acct.Type)
	assert.Equal("20000.00", acct.Balance.StringFixed(2))
	require.NoError(mock.ExpectationsWereMet())
}

func TestAccountRepository_GetForUpdateByOwner(t *testing.T) {
	require := require.New(t)
	db, mock := newMockDB(t)
	repo := accountRepository{db: db}
	ownerID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT \* FROM "accounts" WHERE owner_id = \$1 ORDER BY .+,created_at,account_number LIMIT \$2 FOR UPDATE`).
		WithArgs(ownerID, 1).
		WillReturnRows(sqlmock.NewRows(accountColumns).
			AddRow(int64(2600000001), ownerID.String(), "CURRENT", "10.50", now, now))

	acct, err := repo.GetForUpdateByOwner(context.Background(), ownerID)
	require.NoError(err)
	require.Equal(account.TypeCurrent, acct.Type)
	require.NoError(mock.ExpectationsWereMet())
}

func TestAccountRepository_LockErrors(t *testing.T) {
	tests := []struct {
		name     string
		rows     *sqlmock.Rows
		queryErr error
		expected error
	}{
		{
			name:     "missing account",
			rows:     sqlmock.NewRows(accountColumns),
			expected: account.ErrAccountNotFound,
		},
		{
			name:     "lock timeout",
			queryErr: &pgconn.PgError{Code: "55P03", Message: "canceling statement due to lock timeout"},
			expected: account.ErrLockTimeout,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := accountRepository{db: db}
			q := mock.ExpectQuery(`SELECT \* FROM "accounts" WHERE account_number = \$1 .+ FOR UPDATE`).
				WithArgs(int64(42), 1)
			if tc.queryErr != nil {
				q.WillReturnError(tc.queryErr)
			} else {
				q.WillReturnRows(tc.rows)
			}

			acct, err := repo.GetForUpdateByNumber(context.Background(), 42)
			require.ErrorIs(t, err, tc.expected)
			assert.Nil(t, acct)
		})
	}
	assert.ErrorIs(t, account.ErrAccountNotFound, domain.ErrNotFound)
}

func TestAccountRepository_Persist(t *testing.T) {
	require := require.New(t)
	db, mock := newMockDB(t)
	repo := accountRepository{db: db}
	acct := &account.Account{Number: 7, Balance: decimal.RequireFromString("15000.00"), UpdatedAt: time.Now().UTC()}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "accounts" SET .+ WHERE account_number = \$3`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(repo.Persist(context.Background(), acct))

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "accounts" SET .+ WHERE account_number = \$3`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	require.ErrorIs(repo.Persist(context.Background(), acct), account.ErrAccountNotFound)
	require.NoError(mock.ExpectationsWereMet())
}

func TestTransactionRepository_Create(t *testing.T) {
	require := require.New(t)
	db, mock := newMockDB(t)
	repo := transactionRepository{db: db}
	from, to := int64(1), int64(2)
	tx := &account.Transaction{
		ID:          261234567890,
		Type:        account.TransactionDebit,
		Mode:        account.ModeMobileAppTransfer,
		FromAccount: &from,
		ToAccount:   &to,
		Amount:      decimal.RequireFromString("5000.00"),
		Description: "rent",
		Timestamp:   time.Now().UTC(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "transactions" (.+) VALUES (.+)`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	require.NoError(repo.Create(context.Background(), tx))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "transactions" (.+) VALUES (.+)`).
		WillReturnError(errors.New("create error"))
	mock.ExpectRollback()
	require.Error(repo.Create(context.Background(), tx))
	require.NoError(mock.ExpectationsWereMet())
}

func TestLedgerRepository_List(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	db, mock := newMockDB(t)
	repo := ledgerRepository{db: db}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ts := start.Add(time.Hour)
	from, to := int64(1), int64(2)

	rows := sqlmock.NewRows([]string{
		"id", "account_number", "transaction_id", "balance_after_transaction", "timestamp",
		"Transaction__transaction_id", "Transaction__transaction_type", "Transaction__transaction_mode",
		"Transaction__from_account", "Transaction__to_account", "Transaction__amount",
		"Transaction__description", "Transaction__timestamp",
	}).AddRow(int64(900), int64(1), int64(77), "15000.00", ts,
		int64(77), "DEBIT", "MOBILE_APP_TRANSFER", from, to, "5000.00", "rent", ts)

	mock.ExpectQuery(`SELECT .+ FROM "ledger_entries" LEFT JOIN "transactions" "Transaction" ON .+ WHERE ledger_entries\.account_number IN \(\$1,\$2\) AND "Transaction"\."timestamp" >= \$3 ORDER BY "Transaction"\."timestamp" DESC,"ledger_entries"\."id" DESC`).
		WithArgs(int64(1), int64(2), start).
		WillReturnRows(rows)

	entries, err := repo.List(context.Background(), repository.LedgerFilter{Accounts: []int64{1, 2}, Start: &start})
	require.NoError(err)
	require.Len(entries, 1)
	require.NotNil(entries[0].Transaction)
	assert.Equal(account.TransactionDebit, entries[0].Transaction.Type)
	assert.Equal("rent", entries[0].Transaction.Description)
	assert.Equal("15000.00", entries[0].BalanceAfter.StringFixed(2))
	require.NoError(mock.ExpectationsWereMet())
}

func TestLedgerRepository_ListWithoutAccounts(t *testing.T) {
	db, mock := newMockDB(t)
	repo := ledgerRepository{db: db}
	entries, err := repo.List(context.Background(), repository.LedgerFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByEmail(t *testing.T) {
	require := require.New(t)
	db, mock := newMockDB(t)
	repo := userRepository{db: db}

	mock.ExpectQuery(`SELECT \* FROM "users" WHERE email = \$1 ORDER BY "users"\."id" LIMIT \$2`).
		WithArgs("ada@example.com", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}))

	_, err := repo.GetByEmail(context.Background(), "Ada@Example.com")
	require.ErrorIs(err, user.ErrUserNotFound)
	require.ErrorIs(err, domain.ErrNotFound)
	require.NoError(mock.ExpectationsWereMet())
}

func TestUserRepository_GetForUpdateByEmail(t *testing.T) {
	require := require.New(t)
	db, mock := newMockDB(t)
	repo := userRepository{db: db}

	id := uuid.New()
	mock.ExpectQuery(`SELECT \* FROM "users" WHERE email = \$1 ORDER BY "users"\."id" LIMIT \$2 FOR UPDATE`).
		WithArgs("ada@example.com", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "otp_hash"}).
			AddRow(id, "ada@example.com", "$2a$10$hash"))

	u, err := repo.GetForUpdateByEmail(context.Background(), "Ada@Example.com")
	require.NoError(err)
	require.Equal(id, u.ID)
	require.Equal("$2a$10$hash", u.OTPHash)
	require.NoError(mock.ExpectationsWereMet())
}
