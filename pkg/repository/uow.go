package repository

import (
	"context"
)

// UnitOfWork defines the contract for transactional work and type-safe repository access.
//
// Do runs fn inside one atomic unit: every write made through the repositories
// of the UnitOfWork passed to fn becomes visible together when fn returns nil,
// and none of them survive when fn returns an error. Row locks taken inside fn
// are released on every exit path.
//
// Snapshot runs fn against one consistent view of committed state, so reads
// spanning several repositories agree with each other. fn must not write.
//
// Outside of Do the accessor methods return repositories bound to the plain
// connection, suitable for read paths.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(uow UnitOfWork) error) error
	Snapshot(ctx context.Context, fn func(uow UnitOfWork) error) error

	AccountRepository() (AccountRepository, error)
	TransactionRepository() (TransactionRepository, error)
	LedgerRepository() (LedgerRepository, error)
	UserRepository() (UserRepository, error)
}
