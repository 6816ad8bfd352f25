// Package memory is an in-process implementation of the repository contracts.
//
// Each account and each user has its own lock, held from GetForUpdate until
// the unit of work ends. Writes are staged per unit of work and applied to the shared
// state in one step on success, so concurrent readers never observe half a
// transfer.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/amirasaad/corebank/pkg/domain"
	"github.com/amirasaad/corebank/pkg/domain/account"
	"github.com/amirasaad/corebank/pkg/domain/user"
	"github.com/amirasaad/corebank/pkg/repository"
	"github.com/google/uuid"
)

// DefaultLockTimeout bounds the wait for a row lock.
const DefaultLockTimeout = 5 * time.Second

// Store holds committed state shared by all units of work.
type Store struct {
	// commitMu is held shared by Snapshot readers and exclusively by commit.
	commitMu     sync.RWMutex
	mu           sync.RWMutex
	users        map[uuid.UUID]*user.User
	accounts     map[int64]*account.Account
	transactions map[int64]*account.Transaction
	ledger       map[int64]*account.LedgerEntry
	ledgerPairs  map[[2]int64]struct{}

	locksMu     sync.Mutex
	locks       map[string]chan struct{}
	lockTimeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout overrides DefaultLockTimeout.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		users:        make(map[uuid.UUID]*user.User),
		accounts:     make(map[int64]*account.Account),
		transactions: make(map[int64]*account.Transaction),
		ledger:       make(map[int64]*account.LedgerEntry),
		ledgerPairs:  make(map[[2]int64]struct{}),
		locks:        make(map[string]chan struct{}),
		lockTimeout:  DefaultLockTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Do runs fn in a unit of work. Staged writes are applied only when fn
// returns nil; account locks are released on every exit path.
func (s *Store) Do(ctx context.Context, fn func(uow repository.UnitOfWork) error) error {
	t := s.begin(false)
	defer t.release()
	if err := fn(t); err != nil {
		return err
	}
	return t.commit()
}

// Snapshot runs fn with commits held off, so its reads see one committed
// state. Writes made by fn are discarded.
func (s *Store) Snapshot(_ context.Context, fn func(uow repository.UnitOfWork) error) error {
	s.commitMu.RLock()
	defer s.commitMu.RUnlock()
	t := s.begin(false)
	defer t.release()
	return fn(t)
}

// AccountRepository returns an auto-committing AccountRepository.
func (s *Store) AccountRepository() (repository.AccountRepository, error) {
	return &accountRepo{t: s.begin(true)}, nil
}

// TransactionRepository returns an auto-committing TransactionRepository.
func (s *Store) TransactionRepository() (repository.TransactionRepository, error) {
	return &transactionRepo{t: s.begin(true)}, nil
}

// LedgerRepository returns an auto-committing LedgerRepository.
func (s *Store) LedgerRepository() (repository.LedgerRepository, error) {
	return &ledgerRepo{t: s.begin(true)}, nil
}

// UserRepository returns an auto-committing UserRepository.
func (s *Store) UserRepository() (repository.UserRepository, error) {
	return &userRepo{t: s.begin(true)}, nil
}

func (s *Store) begin(auto bool) *txn {
	return &txn{
		s:            s,
		auto:         auto,
		held:         make(map[string]chan struct{}),
		users:        make(map[uuid.UUID]*user.User),
		newUsers:     make(map[uuid.UUID]bool),
		accounts:     make(map[int64]*account.Account),
		newAccounts:  make(map[int64]bool),
		transactions: make(map[int64]*account.Transaction),
		ledger:       make(map[int64]*account.LedgerEntry),
	}
}

func (s *Store) lockFor(key string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	return ch
}

func accountKey(number int64) string { return "account:" + strconv.FormatInt(number, 10) }
func userKey(id uuid.UUID) string    { return "user:" + id.String() }

// txn is one unit of work. It is not safe for concurrent use, matching a
// database session.
type txn struct {
	s    *Store
	auto bool
	held map[string]chan struct{}

	users        map[uuid.UUID]*user.User
	newUsers     map[uuid.UUID]bool
	accounts     map[int64]*account.Account
	newAccounts  map[int64]bool
	transactions map[int64]*account.Transaction
	ledger       map[int64]*account.LedgerEntry
}

func (t *txn) Do(_ context.Context, fn func(uow repository.UnitOfWork) error) error {
	return fn(t)
}

func (t *txn) Snapshot(_ context.Context, fn func(uow repository.UnitOfWork) error) error {
	return fn(t)
}

func (t *txn) AccountRepository() (repository.AccountRepository, error) {
	return &accountRepo{t: t}, nil
}

func (t *txn) TransactionRepository() (repository.TransactionRepository, error) {
	return &transactionRepo{t: t}, nil
}

func (t *txn) LedgerRepository() (repository.LedgerRepository, error) {
	return &ledgerRepo{t: t}, nil
}

func (t *txn) UserRepository() (repository.UserRepository, error) {
	return &userRepo{t: t}, nil
}

func (t *txn) lock(ctx context.Context, key string) error {
	if t.auto {
		return nil
	}
	if _, ok := t.held[key]; ok {
		return nil
	}
	ch := t.s.lockFor(key)
	timer := time.NewTimer(t.s.lockTimeout)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		t.held[key] = ch
		return nil
	case <-timer.C:
		return account.ErrLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *txn) release() {
	for key, ch := range t.held {
		<-ch
		delete(t.held, key)
	}
}

// afterWrite applies staged writes immediately for auto-committing repositories.
func (t *txn) afterWrite() error {
	if !t.auto {
		return nil
	}
	err := t.commit()
	t.reset()
	return err
}

func (t *txn) reset() {
	fresh := t.s.begin(true)
	t.users, t.newUsers = fresh.users, fresh.newUsers
	t.accounts, t.newAccounts = fresh.accounts, fresh.newAccounts
	t.transactions, t.ledger = fresh.transactions, fresh.ledger
}

// commit validates uniqueness against committed state and applies every
// staged write, or none of them.
func (t *txn) commit() error {
	s := t.s
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range t.newUsers {
		if _, ok := s.users[id]; ok {
			return fmt.Errorf("user %s: %w", id, domain.ErrAlreadyExists)
		}
		for _, u := range s.users {
			if u.Email == t.users[id].Email {
				return fmt.Errorf("user email %s: %w", u.Email, domain.ErrAlreadyExists)
			}
		}
	}
	for number := range t.newAccounts {
		if _, ok := s.accounts[number]; ok {
			return fmt.Errorf("account %d: %w", number, domain.ErrAlreadyExists)
		}
	}
	for id := range t.transactions {
		if _, ok := s.transactions[id]; ok {
			return fmt.Errorf("transaction %d: %w", id, domain.ErrAlreadyExists)
		}
	}
	for id, e := range t.ledger {
		if _, ok := s.ledger[id]; ok {
			return fmt.Errorf("ledger entry %d: %w", id, domain.ErrAlreadyExists)
		}
		if _, ok := s.ledgerPairs[[2]int64{e.AccountNumber, e.TransactionID}]; ok {
			return fmt.Errorf("ledger entry for account %d transaction %d: %w",
				e.AccountNumber, e.TransactionID, domain.ErrAlreadyExists)
		}
	}

	for id, u := range t.users {
		s.users[id] = u
	}
	for number, a := range t.accounts {
		s.accounts[number] = a
	}
	for id, tx := range t.transactions {
		s.transactions[id] = tx
	}
	for id, e := range t.ledger {
		s.ledger[id] = e
		s.ledgerPairs[[2]int64{e.AccountNumber, e.TransactionID}] = struct{}{}
	}
	return nil
}

func (t *txn) account(number int64) (*account.Account, bool) {
	if a, ok := t.accounts[number]; ok {
		return a, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	a, ok := t.s.accounts[number]
	return a, ok
}

// ownerAccounts returns the owner's accounts, staged writes included, oldest first.
func (t *txn) ownerAccounts(ownerID uuid.UUID) []*account.Account {
	seen := make(map[int64]*account.Account)
	t.s.mu.RLock()
	for number, a := range t.s.accounts {
		if a.OwnerID == ownerID {
			seen[number] = a
		}
	}
	t.s.mu.RUnlock()
	for number, a := range t.accounts {
		if a.OwnerID == ownerID {
			seen[number] = a
		}
	}
	out := make([]*account.Account, 0, len(seen))
	for _, a := range seen {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Number < out[j].Number
	})
	return out
}

func (t *txn) transaction(id int64) (*account.Transaction, bool) {
	if tx, ok := t.transactions[id]; ok {
		return tx, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	tx, ok := t.s.transactions[id]
	return tx, ok
}

func (t *txn) user(match func(*user.User) bool) (*user.User, bool) {
	for _, u := range t.users {
		if match(u) {
			return u, true
		}
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for _, u := range t.s.users {
		if match(u) {
			return u, true
		}
	}
	return nil, false
}

var (
	_ repository.UnitOfWork = (*Store)(nil)
	_ repository.UnitOfWork = (*txn)(nil)
)
