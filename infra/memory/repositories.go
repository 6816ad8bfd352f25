package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/amirasaad/corebank/pkg/domain"
	"github.com/amirasaad/corebank/pkg/domain/account"
	"github.com/amirasaad/corebank/pkg/domain/user"
	"github.com/amirasaad/corebank/pkg/repository"
	"github.com/google/uuid"
)

type accountRepo struct{ t *txn }

func (r *accountRepo) GetForUpdateByOwner(ctx context.Context, ownerID uuid.UUID) (*account.Account, error) {
	primary := account.Primary(r.t.ownerAccounts(ownerID))
	if primary == nil {
		return nil, account.ErrAccountNotFound
	}
	return r.GetForUpdateByNumber(ctx, primary.Number)
}

func (r *accountRepo) GetForUpdateByNumber(ctx context.Context, number int64) (*account.Account, error) {
	if _, ok := r.t.account(number); !ok {
		return nil, account.ErrAccountNotFound
	}
	if err := r.t.lock(ctx, accountKey(number)); err != nil {
		return nil, err
	}
	// Re-read under the lock: a previous holder may have committed a new balance.
	a, ok := r.t.account(number)
	if !ok {
		return nil, account.ErrAccountNotFound
	}
	return cloneAccount(a), nil
}

func (r *accountRepo) Get(_ context.Context, number int64) (*account.Account, error) {
	a, ok := r.t.account(number)
	if !ok {
		return nil, account.ErrAccountNotFound
	}
	return cloneAccount(a), nil
}

func (r *accountRepo) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]*account.Account, error) {
	accts := r.t.ownerAccounts(ownerID)
	out := make([]*account.Account, 0, len(accts))
	for _, a := range accts {
		out = append(out, cloneAccount(a))
	}
	return out, nil
}

func (r *accountRepo) Create(_ context.Context, a *account.Account) error {
	if _, ok := r.t.account(a.Number); ok {
		return fmt.Errorf("account %d: %w", a.Number, domain.ErrAlreadyExists)
	}
	r.t.accounts[a.Number] = cloneAccount(a)
	r.t.newAccounts[a.Number] = true
	return r.t.afterWrite()
}

func (r *accountRepo) Persist(_ context.Context, a *account.Account) error {
	current, ok := r.t.account(a.Number)
	if !ok {
		return fmt.Errorf("persist account %d: %w", a.Number, account.ErrAccountNotFound)
	}
	updated := cloneAccount(current)
	updated.Balance = a.Balance
	updated.UpdatedAt = a.UpdatedAt
	r.t.accounts[a.Number] = updated
	return r.t.afterWrite()
}

type transactionRepo struct{ t *txn }

func (r *transactionRepo) Create(_ context.Context, tx *account.Transaction) error {
	if _, ok := r.t.transaction(tx.ID); ok {
		return fmt.Errorf("transaction %d: %w", tx.ID, domain.ErrAlreadyExists)
	}
	for _, ref := range []*int64{tx.FromAccount, tx.ToAccount} {
		if ref == nil {
			continue
		}
		if _, ok := r.t.account(*ref); !ok {
			return fmt.Errorf("transaction %d references account %d: %w", tx.ID, *ref, account.ErrAccountNotFound)
		}
	}
	r.t.transactions[tx.ID] = cloneTransaction(tx)
	return r.t.afterWrite()
}

func (r *transactionRepo) Get(_ context.Context, id int64) (*account.Transaction, error) {
	tx, ok := r.t.transaction(id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

type ledgerRepo struct{ t *txn }

func (r *ledgerRepo) Create(_ context.Context, e *account.LedgerEntry) error {
	if _, ok := r.t.transaction(e.TransactionID); !ok {
		return fmt.Errorf("ledger entry %d references transaction %d: %w", e.ID, e.TransactionID, domain.ErrNotFound)
	}
	for _, existing := range r.entries() {
		if existing.ID == e.ID ||
			(existing.AccountNumber == e.AccountNumber && existing.TransactionID == e.TransactionID) {
			return fmt.Errorf("ledger entry %d: %w", e.ID, domain.ErrAlreadyExists)
		}
	}
	stored := *e
	stored.Transaction = nil
	r.t.ledger[e.ID] = &stored
	return r.t.afterWrite()
}

func (r *ledgerRepo) List(_ context.Context, filter repository.LedgerFilter) ([]*account.LedgerEntry, error) {
	wanted := make(map[int64]bool, len(filter.Accounts))
	for _, n := range filter.Accounts {
		wanted[n] = true
	}

	out := make([]*account.LedgerEntry, 0)
	for _, e := range r.entries() {
		if !wanted[e.AccountNumber] {
			continue
		}
		tx, ok := r.t.transaction(e.TransactionID)
		if !ok {
			continue
		}
		if filter.Start != nil && tx.Timestamp.Before(*filter.Start) {
			continue
		}
		if filter.End != nil && tx.Timestamp.After(*filter.End) {
			continue
		}
		joined := *e
		joined.Transaction = cloneTransaction(tx)
		out = append(out, &joined)
	}

	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].Transaction.Timestamp, out[j].Transaction.Timestamp
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// entries merges committed and staged ledger rows.
func (r *ledgerRepo) entries() []*account.LedgerEntry {
	r.t.s.mu.RLock()
	out := make([]*account.LedgerEntry, 0, len(r.t.s.ledger)+len(r.t.ledger))
	for _, e := range r.t.s.ledger {
		out = append(out, e)
	}
	r.t.s.mu.RUnlock()
	for _, e := range r.t.ledger {
		out = append(out, e)
	}
	return out
}

type userRepo struct{ t *txn }

func (r *userRepo) Get(_ context.Context, id uuid.UUID) (*user.User, error) {
	u, ok := r.t.user(func(u *user.User) bool { return u.ID == id })
	if !ok {
		return nil, user.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*user.User, error) {
	email = strings.ToLower(email)
	u, ok := r.t.user(func(u *user.User) bool { return u.Email == email })
	if !ok {
		return nil, user.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (r *userRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*user.User, error) {
	return r.lockUser(ctx, func(u *user.User) bool { return u.ID == id })
}

func (r *userRepo) GetForUpdateByEmail(ctx context.Context, email string) (*user.User, error) {
	email = strings.ToLower(email)
	return r.lockUser(ctx, func(u *user.User) bool { return u.Email == email })
}

// lockUser takes the user's row lock and re-reads it, so a previous holder's
// committed changes are visible.
func (r *userRepo) lockUser(ctx context.Context, match func(*user.User) bool) (*user.User, error) {
	u, ok := r.t.user(match)
	if !ok {
		return nil, user.ErrUserNotFound
	}
	id := u.ID
	if err := r.t.lock(ctx, userKey(id)); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *userRepo) Create(_ context.Context, u *user.User) error {
	if _, ok := r.t.user(func(existing *user.User) bool {
		return existing.ID == u.ID || existing.Email == u.Email
	}); ok {
		return fmt.Errorf("user %s: %w", u.Email, domain.ErrAlreadyExists)
	}
	clone := *u
	r.t.users[u.ID] = &clone
	r.t.newUsers[u.ID] = true
	return r.t.afterWrite()
}

func (r *userRepo) Update(_ context.Context, u *user.User) error {
	if _, ok := r.t.user(func(existing *user.User) bool { return existing.ID == u.ID }); !ok {
		return user.ErrUserNotFound
	}
	clone := *u
	r.t.users[u.ID] = &clone
	return r.t.afterWrite()
}

func cloneAccount(a *account.Account) *account.Account {
	c := *a
	return &c
}

func cloneTransaction(tx *account.Transaction) *account.Transaction {
	c := *tx
	if tx.FromAccount != nil {
		from := *tx.FromAccount
		c.FromAccount = &from
	}
	if tx.ToAccount != nil {
		to := *tx.ToAccount
		c.ToAccount = &to
	}
	return &c
}
