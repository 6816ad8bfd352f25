package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/amirasaad/corebank/pkg/repository"
	"gorm.io/gorm"
)

// UoW provides transaction boundary and repository access in one abstraction.
// Repositories handed out inside Do share the transaction session, so their
// writes commit or roll back together.
type UoW struct {
	db          *gorm.DB
	tx          *gorm.DB
	lockTimeout time.Duration
}

// Option configures a UoW.
type Option func(*UoW)

// WithLockTimeout bounds how long a unit of work waits for a row lock.
// Applied with SET LOCAL lock_timeout on postgres; other dialects ignore it.
func WithLockTimeout(d time.Duration) Option {
	return func(u *UoW) { u.lockTimeout = d }
}

// NewUoW creates a new UoW for the given *gorm.DB.
func NewUoW(db *gorm.DB, opts ...Option) *UoW {
	u := &UoW{db: db}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Do runs the given function in a transaction boundary, providing a UoW with repository access.
// Called on a UoW that is already inside Do, fn joins the enclosing transaction.
func (u *UoW) Do(ctx context.Context, fn func(uow repository.UnitOfWork) error) error {
	if u.tx != nil {
		return fn(u)
	}
	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := u.applyLockTimeout(tx); err != nil {
			return err
		}
		return fn(&UoW{db: u.db, tx: tx, lockTimeout: u.lockTimeout})
	})
	return MapGormErrorToDomain(err)
}

// Snapshot runs fn in a read-only transaction. On postgres it uses REPEATABLE
// READ so every statement sees the same snapshot; sqlite transactions are
// already serializable.
func (u *UoW) Snapshot(ctx context.Context, fn func(uow repository.UnitOfWork) error) error {
	if u.tx != nil {
		return fn(u)
	}
	var opts []*sql.TxOptions
	if u.db.Dialector.Name() == "postgres" {
		opts = append(opts, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	}
	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&UoW{db: u.db, tx: tx, lockTimeout: u.lockTimeout})
	}, opts...)
	return MapGormErrorToDomain(err)
}

func (u *UoW) applyLockTimeout(tx *gorm.DB) error {
	if u.lockTimeout <= 0 || tx.Dialector.Name() != "postgres" {
		return nil
	}
	// SET does not accept bind parameters.
	stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", u.lockTimeout.Milliseconds())
	if err := tx.Exec(stmt).Error; err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}
	return nil
}

func (u *UoW) session() *gorm.DB {
	if u.tx != nil {
		return u.tx
	}
	return u.db
}

// AccountRepository returns an AccountRepository bound to the current session.
func (u *UoW) AccountRepository() (repository.AccountRepository, error) {
	return NewAccountRepository(u.session()), nil
}

// TransactionRepository returns a TransactionRepository bound to the current session.
func (u *UoW) TransactionRepository() (repository.TransactionRepository, error) {
	return NewTransactionRepository(u.session()), nil
}

// LedgerRepository returns a LedgerRepository bound to the current session.
func (u *UoW) LedgerRepository() (repository.LedgerRepository, error) {
	return NewLedgerRepository(u.session()), nil
}

// UserRepository returns a UserRepository bound to the current session.
func (u *UoW) UserRepository() (repository.UserRepository, error) {
	return NewUserRepository(u.session()), nil
}

var _ repository.UnitOfWork = (*UoW)(nil)
