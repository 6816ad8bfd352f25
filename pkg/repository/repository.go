package repository

import (
	"context"
	"time"

	"github.com/amirasaad/corebank/pkg/domain/account"
	"github.com/amirasaad/corebank/pkg/domain/user"
	"github.com/google/uuid"
)

// AccountRepository defines the interface for account data access operations.
//
// The GetForUpdate methods take an exclusive row lock held until the
// enclosing unit of work commits or rolls back. They block while another unit
// of work holds the lock and fail with account.ErrLockTimeout once the
// configured bound elapses.
type AccountRepository interface {
	// GetForUpdateByOwner locks the owner's primary account: the oldest
	// SAVINGS account, else the oldest account of any type.
	GetForUpdateByOwner(ctx context.Context, ownerID uuid.UUID) (*account.Account, error)
	// GetForUpdateByNumber locks the account with the given number.
	GetForUpdateByNumber(ctx context.Context, number int64) (*account.Account, error)
	// Get reads an account without locking it.
	Get(ctx context.Context, number int64) (*account.Account, error)
	// ListByOwner returns the owner's accounts, oldest first.
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*account.Account, error)
	Create(ctx context.Context, a *account.Account) error
	// Persist writes the account's balance. Callers must hold its lock.
	Persist(ctx context.Context, a *account.Account) error
}

// TransactionRepository defines the interface for transaction data access operations.
type TransactionRepository interface {
	Create(ctx context.Context, tx *account.Transaction) error
	Get(ctx context.Context, id int64) (*account.Transaction, error)
}

// LedgerFilter selects ledger entries for statements. Start and End are
// inclusive bounds on the originating transaction's timestamp.
type LedgerFilter struct {
	Accounts []int64
	Start    *time.Time
	End      *time.Time
}

// LedgerRepository defines the append-only ledger.
type LedgerRepository interface {
	Create(ctx context.Context, entry *account.LedgerEntry) error
	// List returns entries matching filter, most recent first, each with its
	// Transaction populated.
	List(ctx context.Context, filter LedgerFilter) ([]*account.LedgerEntry, error)
}

// UserRepository defines the interface for user data access operations.
type UserRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	// GetForUpdate and GetForUpdateByEmail lock the user row until the
	// enclosing unit of work ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*user.User, error)
	GetForUpdateByEmail(ctx context.Context, email string) (*user.User, error)
	Create(ctx context.Context, u *user.User) error
	Update(ctx context.Context, u *user.User) error
}
