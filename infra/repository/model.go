package repository

import (
	"time"

	"github.com/amirasaad/corebank/pkg/domain/account"
	"github.com/amirasaad/corebank/pkg/domain/user"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User represents a user record in the database.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	FullName     string    `gorm:"size:255;not null"`
	Email        string    `gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string    `gorm:"size:255;not null"`
	PinHash      string    `gorm:"size:255"`
	OTPHash      string    `gorm:"column:otp_hash;size:255"`
	OTPIssuedAt  *time.Time
	Active       bool `gorm:"not null;default:false"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Account represents an account record in the database.
type Account struct {
	AccountNumber  int64           `gorm:"primaryKey;autoIncrement:false"`
	OwnerID        uuid.UUID       `gorm:"type:uuid;not null;index"`
	AccountType    string          `gorm:"size:16;not null"`
	CurrentBalance decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Transaction represents one persisted transaction leg.
type Transaction struct {
	TransactionID   int64           `gorm:"primaryKey;autoIncrement:false"`
	TransactionType string          `gorm:"size:8;not null"`
	TransactionMode string          `gorm:"size:32;not null"`
	FromAccount     *int64          `gorm:"index"`
	ToAccount       *int64          `gorm:"index"`
	Amount          decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Description     string          `gorm:"size:255"`
	Timestamp       time.Time       `gorm:"not null;index"`
}

// LedgerEntry represents a balance snapshot row.
type LedgerEntry struct {
	ID                      int64           `gorm:"primaryKey;autoIncrement:false"`
	AccountNumber           int64           `gorm:"not null;uniqueIndex:idx_ledger_entries_account_transaction"`
	TransactionID           int64           `gorm:"not null;uniqueIndex:idx_ledger_entries_account_transaction"`
	BalanceAfterTransaction decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Timestamp               time.Time       `gorm:"not null"`

	Transaction Transaction `gorm:"foreignKey:TransactionID;references:TransactionID"`
}

func (User) TableName() string        { return "users" }
func (Account) TableName() string     { return "accounts" }
func (Transaction) TableName() string { return "transactions" }
func (LedgerEntry) TableName() string { return "ledger_entries" }

// Models lists every persisted model, in dependency order, for AutoMigrate.
func Models() []any {
	return []any{&User{}, &Account{}, &Transaction{}, &LedgerEntry{}}
}

func mapUserToModel(u *user.User) *User {
	m := &User{
		ID:           u.ID,
		FullName:     u.FullName,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		PinHash:      u.PinHash,
		OTPHash:      u.OTPHash,
		Active:       u.Active,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	if !u.OTPIssuedAt.IsZero() {
		issued := u.OTPIssuedAt
		m.OTPIssuedAt = &issued
	}
	return m
}

func mapUserModelToDomain(m *User) *user.User {
	u := &user.User{
		ID:           m.ID,
		FullName:     m.FullName,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		PinHash:      m.PinHash,
		OTPHash:      m.OTPHash,
		Active:       m.Active,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.OTPIssuedAt != nil {
		u.OTPIssuedAt = *m.OTPIssuedAt
	}
	return u
}

func mapAccountToModel(a *account.Account) *Account {
	return &Account{
		AccountNumber:  a.Number,
		OwnerID:        a.OwnerID,
		AccountType:    string(a.Type),
		CurrentBalance: a.Balance,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func mapAccountModelToDomain(m *Account) *account.Account {
	return &account.Account{
		Number:    m.AccountNumber,
		OwnerID:   m.OwnerID,
		Type:      account.Type(m.AccountType),
		Balance:   m.CurrentBalance,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func mapTransactionToModel(t *account.Transaction) *Transaction {
	return &Transaction{
		TransactionID:   t.ID,
		TransactionType: string(t.Type),
		TransactionMode: string(t.Mode),
		FromAccount:     t.FromAccount,
		ToAccount:       t.ToAccount,
		Amount:          t.Amount,
		Description:     t.Description,
		Timestamp:       t.Timestamp,
	}
}

func mapTransactionModelToDomain(m *Transaction) *account.Transaction {
	return &account.Transaction{
		ID:          m.TransactionID,
		Type:        account.TransactionType(m.TransactionType),
		Mode:        account.Mode(m.TransactionMode),
		FromAccount: m.FromAccount,
		ToAccount:   m.ToAccount,
		Amount:      m.Amount,
		Description: m.Description,
		Timestamp:   m.Timestamp,
	}
}

func mapLedgerEntryToModel(e *account.LedgerEntry) *LedgerEntry {
	return &LedgerEntry{
		ID:                      e.ID,
		AccountNumber:           e.AccountNumber,
		TransactionID:           e.TransactionID,
		BalanceAfterTransaction: e.BalanceAfter,
		Timestamp:               e.Timestamp,
	}
}

func mapLedgerEntryModelToDomain(m *LedgerEntry) *account.LedgerEntry {
	e := &account.LedgerEntry{
		ID:            m.ID,
		AccountNumber: m.AccountNumber,
		TransactionID: m.TransactionID,
		BalanceAfter:  m.BalanceAfterTransaction,
		Timestamp:     m.Timestamp,
	}
	if m.Transaction.TransactionID != 0 {
		e.Transaction = mapTransactionModelToDomain(&m.Transaction)
	}
	return e
}
