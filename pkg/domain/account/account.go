package account

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places carried by every monetary value.
const Scale = 2

// Type is the product an account belongs to.
type Type string

const (
	TypeSavings      Type = "SAVINGS"
	TypeCurrent      Type = "CURRENT"
	TypeFixedDeposit Type = "FIXED_DEPOSIT"
)

// Valid reports whether t is one of the supported account types.
func (t Type) Valid() bool {
	switch t {
	case TypeSavings, TypeCurrent, TypeFixedDeposit:
		return true
	}
	return false
}

// Account is a balance record owned by exactly one user.
//
// Invariants:
//   - Number is assigned once and never changes.
//   - Balance is never negative; it only changes through Debit and Credit,
//     which the transfer engine calls while holding the account's row lock.
type Account struct {
	Number    int64
	OwnerID   uuid.UUID
	Type      Type
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Builder provides a fluent API for constructing Account instances.
type Builder struct {
	number    int64
	ownerID   uuid.UUID
	typ       Type
	balance   decimal.Decimal
	createdAt time.Time
}

// New creates a Builder for a SAVINGS account with a zero balance.
func New() *Builder {
	return &Builder{
		typ:       TypeSavings,
		balance:   decimal.Zero,
		createdAt: time.Now().UTC(),
	}
}

// WithNumber sets the account number.
func (b *Builder) WithNumber(number int64) *Builder {
	b.number = number
	return b
}

// WithOwner sets the owning user. Mandatory.
func (b *Builder) WithOwner(ownerID uuid.UUID) *Builder {
	b.ownerID = ownerID
	return b
}

// WithType sets the account type.
func (b *Builder) WithType(t Type) *Builder {
	b.typ = t
	return b
}

// WithBalance sets the balance. Only for hydration from storage and tests;
// new accounts are funded through a credit transaction.
func (b *Builder) WithBalance(balance decimal.Decimal) *Builder {
	b.balance = balance
	return b
}

// WithCreatedAt sets the creation timestamp.
func (b *Builder) WithCreatedAt(t time.Time) *Builder {
	b.createdAt = t
	return b
}

// Build validates the invariants and returns the Account.
func (b *Builder) Build() (*Account, error) {
	if b.ownerID == uuid.Nil {
		return nil, errors.New("owner is required")
	}
	if b.number <= 0 {
		return nil, errors.New("account number is required")
	}
	if !b.typ.Valid() {
		return nil, ErrInvalidAccountType
	}
	if b.balance.IsNegative() {
		return nil, ErrInsufficientFunds
	}
	return &Account{
		Number:    b.number,
		OwnerID:   b.ownerID,
		Type:      b.typ,
		Balance:   b.balance.Round(Scale),
		CreatedAt: b.createdAt,
		UpdatedAt: b.createdAt,
	}, nil
}

// ValidateAmount checks that amount is strictly positive and fits the monetary scale.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(Scale)) {
		return ErrInvalidAmount
	}
	return nil
}

// CanDebit reports whether amount can be taken from the account without
// driving the balance negative.
func (a *Account) CanDebit(amount decimal.Decimal) error {
	if err := ValidateAmount(amount); err != nil {
		return err
	}
	if a.Balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	return nil
}

// Debit subtracts amount from the balance.
func (a *Account) Debit(amount decimal.Decimal, at time.Time) error {
	if err := a.CanDebit(amount); err != nil {
		return err
	}
	a.Balance = a.Balance.Sub(amount)
	a.UpdatedAt = at
	return nil
}

// Credit adds amount to the balance.
func (a *Account) Credit(amount decimal.Decimal, at time.Time) error {
	if err := ValidateAmount(amount); err != nil {
		return err
	}
	a.Balance = a.Balance.Add(amount)
	a.UpdatedAt = at
	return nil
}

// Primary picks the account a user's outgoing transfers are drawn from: the
// oldest SAVINGS account, else the oldest account. accts must be ordered
// oldest first. It returns nil for an empty slice.
func Primary(accts []*Account) *Account {
	for _, a := range accts {
		if a.Type == TypeSavings {
			return a
		}
	}
	if len(accts) > 0 {
		return accts[0]
	}
	return nil
}
