package repository

import (
	"context"
	"errors"

	"github.com/amirasaad/corebank/pkg/domain"
)

// DoWithConflictRetry runs fn in a unit of work, starting a fresh unit when it
// fails with domain.ErrAlreadyExists. Generated account numbers and
// transaction ids are only probabilistically unique, so a collision is
// resolved by regenerating them; fn must therefore generate ids inside the
// unit and re-read any state it depends on.
func DoWithConflictRetry(
	ctx context.Context,
	uow UnitOfWork,
	attempts int,
	fn func(uow UnitOfWork) error,
) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = uow.Do(ctx, fn)
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return err
		}
	}
	return err
}
