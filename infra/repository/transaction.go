package repository

import (
	"context"

	"github.com/amirasaad/corebank/pkg/domain/account"
	"github.com/amirasaad/corebank/pkg/repository"
	"gorm.io/gorm"
)

type transactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a gorm backed TransactionRepository.
func NewTransactionRepository(db *gorm.DB) repository.TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Create(ctx context.Context, tx *account.Transaction) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(mapTransactionToModel(tx)).Error
	})
}

func (r *transactionRepository) Get(ctx context.Context, id int64) (*account.Transaction, error) {
	var m Transaction
	if err := r.db.WithContext(ctx).First(&m, "transaction_id = ?", id).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return mapTransactionModelToDomain(&m), nil
}
