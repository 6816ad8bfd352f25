package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/amirasaad/corebank/pkg/domain"
	"github.com/amirasaad/corebank/pkg/domain/account"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	// pgLockNotAvailable is raised when lock_timeout expires.
	pgLockNotAvailable = "55P03"
	// pgQueryCanceled is raised when statement_timeout expires.
	pgQueryCanceled = "57014"
)

// MapGormErrorToDomain converts GORM errors to domain errors.
// This keeps infrastructure concerns (database errors) within the infrastructure layer.
// Traverses the error chain to find GORM errors and maps them to appropriate domain errors.
func MapGormErrorToDomain(err error) error {
	if err == nil {
		return nil
	}

	// pgx also reports a cancelled request as 57014; that is the caller
	// going away, not a lock wait expiring.
	if errors.Is(err, context.Canceled) {
		return err
	}
	if isLockTimeout(err) {
		return account.ErrLockTimeout
	}

	currentErr := err
	for currentErr != nil {
		switch {
		case errors.Is(currentErr, gorm.ErrDuplicatedKey):
			return domain.ErrAlreadyExists
		case errors.Is(currentErr, gorm.ErrRecordNotFound):
			return domain.ErrNotFound
		}
		currentErr = errors.Unwrap(currentErr)
	}

	return err
}

// WrapError wraps a GORM operation and automatically maps errors.
//
// Usage:
//
//	err := WrapError(func() error {
//	    return r.db.WithContext(ctx).Create(user).Error
//	})
func WrapError(op func() error) error {
	return MapGormErrorToDomain(op())
}

func isLockTimeout(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgLockNotAvailable || pgErr.Code == pgQueryCanceled
	}
	// sqlite reports a busy writer as SQLITE_BUSY.
	return strings.Contains(err.Error(), "database is locked")
}
