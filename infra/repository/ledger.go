package repository

import (
	"context"

	"github.com/amirasaad/corebank/pkg/domain/account"
	"github.com/amirasaad/corebank/pkg/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// transactionAlias is the alias gorm gives the joined transactions table.
const transactionAlias = "Transaction"

type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository creates a gorm backed LedgerRepository.
func NewLedgerRepository(db *gorm.DB) repository.LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) Create(ctx context.Context, entry *account.LedgerEntry) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).
			Omit(clause.Associations).
			Create(mapLedgerEntryToModel(entry)).Error
	})
}

func (r *ledgerRepository) List(ctx context.Context, filter repository.LedgerFilter) ([]*account.LedgerEntry, error) {
	if len(filter.Accounts) == 0 {
		return []*account.LedgerEntry{}, nil
	}

	txTimestamp := clause.Column{Table: transactionAlias, Name: "timestamp"}
	q := r.db.WithContext(ctx).
		Joins(transactionAlias).
		Where("ledger_entries.account_number IN ?", filter.Accounts)
	if filter.Start != nil {
		q = q.Where(clause.Gte{Column: txTimestamp, Value: *filter.Start})
	}
	if filter.End != nil {
		q = q.Where(clause.Lte{Column: txTimestamp, Value: *filter.End})
	}

	var models []LedgerEntry
	err := q.
		Order(clause.OrderByColumn{Column: txTimestamp, Desc: true}).
		Order(clause.OrderByColumn{Column: clause.Column{Table: "ledger_entries", Name: "id"}, Desc: true}).
		Find(&models).Error
	if err != nil {
		return nil, MapGormErrorToDomain(err)
	}

	out := make([]*account.LedgerEntry, 0, len(models))
	for i := range models {
		out = append(out, mapLedgerEntryModelToDomain(&models[i]))
	}
	return out, nil
}
