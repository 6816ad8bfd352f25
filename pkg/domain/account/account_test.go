package account

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_Build(t *testing.T) {
	owner := uuid.New()

	t.Run("defaults to savings with zero balance", func(t *testing.T) {
		acct, err := New().WithNumber(2612345678).WithOwner(owner).Build()
		require.NoError(t, err)
		assert.Equal(t, TypeSavings, acct.Type)
		assert.True(t, acct.Balance.IsZero())
		assert.Equal(t, owner, acct.OwnerID)
	})

	t.Run("rejects missing owner", func(t *testing.T) {
		_, err := New().WithNumber(1).Build()
		require.Error(t, err)
	})

	t.Run("rejects missing number", func(t *testing.T) {
		_, err := New().WithOwner(owner).Build()
		require.Error(t, err)
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		_, err := New().WithNumber(1).WithOwner(owner).WithType("CHECKING").Build()
		require.ErrorIs(t, err, ErrInvalidAccountType)
	})

	t.Run("rejects negative balance", func(t *testing.T) {
		_, err := New().WithNumber(1).WithOwner(owner).WithBalance(decimal.RequireFromString("-0.01")).Build()
		require.ErrorIs(t, err, ErrInsufficientFunds)
	})
}

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		amount string
		err    error
	}{
		{amount: "0.01"},
		{amount: "5000.00"},
		{amount: "5000"},
		{amount: "0", err: ErrInvalidAmount},
		{amount: "-1", err: ErrInvalidAmount},
		{amount: "1.005", err: ErrInvalidAmount},
	}
	for _, tc := range tests {
		t.Run(tc.amount, func(t *testing.T) {
			err := ValidateAmount(decimal.RequireFromString(tc.amount))
			if tc.err == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestAccount_DebitCredit(t *testing.T) {
	now := time.Now().UTC()
	acct, err := New().
		WithNumber(2600000001).
		WithOwner(uuid.New()).
		WithBalance(decimal.RequireFromString("100.00")).
		Build()
	require.NoError(t, err)

	require.ErrorIs(t, acct.Debit(decimal.RequireFromString("100.01"), now), ErrInsufficientFunds)
	assert.True(t, acct.Balance.Equal(decimal.RequireFromString("100.00")))

	require.NoError(t, acct.Debit(decimal.RequireFromString("100.00"), now))
	assert.True(t, acct.Balance.IsZero(), "debiting the full balance is allowed")

	require.NoError(t, acct.Credit(decimal.RequireFromString("25.50"), now))
	assert.Equal(t, "25.50", acct.Balance.StringFixed(Scale))

	require.ErrorIs(t, acct.Credit(decimal.Zero, now), ErrInvalidAmount)
}

func TestTransaction_Delta(t *testing.T) {
	amount := decimal.RequireFromString("12.34")
	debit := Transaction{Type: TransactionDebit, Amount: amount}
	credit := Transaction{Type: TransactionCredit, Amount: amount}
	assert.Equal(t, "-12.34", debit.Delta().StringFixed(Scale))
	assert.Equal(t, "12.34", credit.Delta().StringFixed(Scale))
}

func TestPrimary(t *testing.T) {
	current := &Account{Number: 1, Type: TypeCurrent}
	fixed := &Account{Number: 2, Type: TypeFixedDeposit}
	savings := &Account{Number: 3, Type: TypeSavings}
	laterSavings := &Account{Number: 4, Type: TypeSavings}

	assert.Nil(t, Primary(nil))
	assert.Same(t, current, Primary([]*Account{current, fixed}))
	assert.Same(t, savings, Primary([]*Account{current, fixed, savings, laterSavings}))
}
