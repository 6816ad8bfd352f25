// Package statement reads the ledger for account statements.
package statement

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/amirasaad/corebank/pkg/domain"
	"github.com/amirasaad/corebank/pkg/domain/account"
	"github.com/amirasaad/corebank/pkg/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service lists ledger entries and summarizes them per account.
type Service struct {
	uow    repository.UnitOfWork
	logger *slog.Logger
}

// New creates a Service.
func New(uow repository.UnitOfWork, logger *slog.Logger) *Service {
	return &Service{uow: uow, logger: logger.With("service", "statement")}
}

// Query selects a statement window. A nil bound is open. Empty Accounts
// selects every account of the owner.
type Query struct {
	Accounts []int64
	Start    *time.Time
	End      *time.Time
}

// Summary aggregates the selected entries of one account.
type Summary struct {
	AccountNumber int64           `json:"account_number"`
	AccountType   account.Type    `json:"account_type"`
	Balance       decimal.Decimal `json:"current_balance"`
	TotalCredit   decimal.Decimal `json:"total_credit"`
	TotalDebit    decimal.Decimal `json:"total_debit"`
	CreditCount   int             `json:"credit_count"`
	DebitCount    int             `json:"debit_count"`
}

// Statement is the entries of a window, most recent first, with per-account totals.
type Statement struct {
	Start     *time.Time
	End       *time.Time
	Entries   []*account.LedgerEntry
	Summaries []Summary
}

// ListLedger returns the entries of the given accounts, optionally bounded by
// the inclusive [start, end] window on the transaction timestamp, most
// recent first. It performs no ownership check.
func (s *Service) ListLedger(ctx context.Context, accounts []int64, start, end *time.Time) ([]*account.LedgerEntry, error) {
	if start != nil && end != nil && start.After(*end) {
		return nil, fmt.Errorf("%w: start must not be after end", domain.ErrValidation)
	}
	return listLedger(ctx, s.uow, accounts, start, end)
}

func listLedger(
	ctx context.Context,
	uow repository.UnitOfWork,
	accounts []int64,
	start, end *time.Time,
) ([]*account.LedgerEntry, error) {
	if len(accounts) == 0 {
		return nil, nil
	}
	ledger, err := uow.LedgerRepository()
	if err != nil {
		return nil, err
	}
	return ledger.List(ctx, repository.LedgerFilter{Accounts: accounts, Start: start, End: end})
}

// ForOwner builds the statement of the owner's accounts selected by q.
// Requesting an account the owner does not hold fails with ErrAccountNotFound.
// Balances and entries come from one snapshot, so every summary balance
// reflects exactly the entries listed.
func (s *Service) ForOwner(ctx context.Context, ownerID uuid.UUID, q Query) (*Statement, error) {
	if q.Start != nil && q.End != nil && q.Start.After(*q.End) {
		return nil, fmt.Errorf("%w: start must not be after end", domain.ErrValidation)
	}
	var stmt *Statement
	err := s.uow.Snapshot(ctx, func(uow repository.UnitOfWork) error {
		var err error
		stmt, err = s.forOwner(ctx, uow, ownerID, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stmt, nil
}

func (s *Service) forOwner(
	ctx context.Context,
	uow repository.UnitOfWork,
	ownerID uuid.UUID,
	q Query,
) (*Statement, error) {
	repo, err := uow.AccountRepository()
	if err != nil {
		return nil, err
	}
	owned, err := repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	selected := owned
	if len(q.Accounts) > 0 {
		selected = selected[:0:0]
		for _, number := range q.Accounts {
			i := slices.IndexFunc(owned, func(a *account.Account) bool { return a.Number == number })
			if i < 0 {
				s.logger.Warn("statement requested for foreign account", "owner_id", ownerID, "account", number)
				return nil, account.ErrAccountNotFound
			}
			if !slices.Contains(selected, owned[i]) {
				selected = append(selected, owned[i])
			}
		}
	}

	numbers := make([]int64, len(selected))
	for i, a := range selected {
		numbers[i] = a.Number
	}
	entries, err := listLedger(ctx, uow, numbers, q.Start, q.End)
	if err != nil {
		return nil, err
	}
	return &Statement{
		Start:     q.Start,
		End:       q.End,
		Entries:   entries,
		Summaries: Summarize(selected, entries),
	}, nil
}

// Summarize totals entries per account, in the order of accts. Entries for
// accounts outside accts are ignored.
func Summarize(accts []*account.Account, entries []*account.LedgerEntry) []Summary {
	out := make([]Summary, len(accts))
	index := make(map[int64]int, len(accts))
	for i, a := range accts {
		index[a.Number] = i
		out[i] = Summary{
			AccountNumber: a.Number,
			AccountType:   a.Type,
			Balance:       a.Balance,
			TotalCredit:   decimal.Zero,
			TotalDebit:    decimal.Zero,
		}
	}
	for _, e := range entries {
		i, ok := index[e.AccountNumber]
		if !ok || e.Transaction == nil {
			continue
		}
		switch e.Transaction.Type {
		case account.TransactionCredit:
			out[i].TotalCredit = out[i].TotalCredit.Add(e.Transaction.Amount)
			out[i].CreditCount++
		case account.TransactionDebit:
			out[i].TotalDebit = out[i].TotalDebit.Add(e.Transaction.Amount)
			out[i].DebitCount++
		}
	}
	return out
}
