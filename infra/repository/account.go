package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirasaad/corebank/pkg/domain"
	"github.com/amirasaad/corebank/pkg/domain/account"
	"github.com/amirasaad/corebank/pkg/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// primaryAccountOrder ranks SAVINGS accounts ahead of the others.
const primaryAccountOrder = "CASE account_type WHEN 'SAVINGS' THEN 0 ELSE 1 END"

type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a gorm backed AccountRepository.
func NewAccountRepository(db *gorm.DB) repository.AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) forUpdate(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
}

func (r *accountRepository) GetForUpdateByOwner(ctx context.Context, ownerID uuid.UUID) (*account.Account, error) {
	var m Account
	err := r.forUpdate(ctx).
		Where("owner_id = ?", ownerID).
		Order(primaryAccountOrder).
		Order("created_at").
		Order("account_number").
		First(&m).Error
	if err != nil {
		return nil, lookupError(err)
	}
	return mapAccountModelToDomain(&m), nil
}

func (r *accountRepository) GetForUpdateByNumber(ctx context.Context, number int64) (*account.Account, error) {
	var m Account
	if err := r.forUpdate(ctx).First(&m, "account_number = ?", number).Error; err != nil {
		return nil, lookupError(err)
	}
	return mapAccountModelToDomain(&m), nil
}

func (r *accountRepository) Get(ctx context.Context, number int64) (*account.Account, error) {
	var m Account
	if err := r.db.WithContext(ctx).First(&m, "account_number = ?", number).Error; err != nil {
		return nil, lookupError(err)
	}
	return mapAccountModelToDomain(&m), nil
}

func (r *accountRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*account.Account, error) {
	var models []Account
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at").
		Order("account_number").
		Find(&models).Error
	if err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	out := make([]*account.Account, 0, len(models))
	for i := range models {
		out = append(out, mapAccountModelToDomain(&models[i]))
	}
	return out, nil
}

func (r *accountRepository) Create(ctx context.Context, a *account.Account) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(mapAccountToModel(a)).Error
	})
}

func (r *accountRepository) Persist(ctx context.Context, a *account.Account) error {
	res := r.db.WithContext(ctx).
		Model(&Account{}).
		Where("account_number = ?", a.Number).
		Updates(map[string]any{
			"current_balance": a.Balance,
			"updated_at":      a.UpdatedAt,
		})
	if res.Error != nil {
		return MapGormErrorToDomain(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("persist account %d: %w", a.Number, account.ErrAccountNotFound)
	}
	return nil
}

func lookupError(err error) error {
	mapped := MapGormErrorToDomain(err)
	if errors.Is(mapped, domain.ErrNotFound) {
		return account.ErrAccountNotFound
	}
	return mapped
}
