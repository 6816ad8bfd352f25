// Package account provides account opening and balance inquiries.
//
// Opening an account optionally credits the welcome bonus in the same unit
// of work, so a user never observes a new account without its bonus.
package account

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/corebank/pkg/config"
	"github.com/amirasaad/corebank/pkg/domain/account"
	"github.com/amirasaad/corebank/pkg/domain/events"
	"github.com/amirasaad/corebank/pkg/domain/user"
	"github.com/amirasaad/corebank/pkg/eventbus"
	"github.com/amirasaad/corebank/pkg/idgen"
	"github.com/amirasaad/corebank/pkg/repository"
	"github.com/amirasaad/corebank/pkg/service/transfer"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WelcomeBonusDescription is the narration of the welcome bonus credit.
const WelcomeBonusDescription = "Welcome! Enjoy your welcome bonus!"

// maxOpenAttempts bounds retries after an account number collision.
const maxOpenAttempts = 5

// Service provides account opening, listing and balance inquiries.
type Service struct {
	uow    repository.UnitOfWork
	ids    transfer.IDGenerator
	engine *transfer.Engine
	bus    eventbus.Bus
	bonus  decimal.Decimal
	logger *slog.Logger
}

// New creates a Service. A zero bonus disables the welcome credit.
func New(
	uow repository.UnitOfWork,
	ids transfer.IDGenerator,
	engine *transfer.Engine,
	bus eventbus.Bus,
	bonus decimal.Decimal,
	logger *slog.Logger,
) *Service {
	return &Service{
		uow:    uow,
		ids:    ids,
		engine: engine,
		bus:    bus,
		bonus:  bonus,
		logger: logger.With("service", "account"),
	}
}

// NewFromDeps creates a Service from the process dependencies.
func NewFromDeps(deps *config.Deps, engine *transfer.Engine) *Service {
	return New(deps.Uow, deps.IDs, engine, deps.EventBus, deps.Config.Bank.WelcomeBonus, deps.Logger)
}

// OpenRequest describes an account to open.
type OpenRequest struct {
	OwnerID uuid.UUID
	Type    account.Type
	// InitialCredit, when positive, is posted as an AUTO_CREDIT right after
	// creation with Description as its narration.
	InitialCredit decimal.Decimal
	Description   string
}

// Opened is a freshly created account and its opening credit, if any.
type Opened struct {
	Account *account.Account
	Bonus   *transfer.Leg
}

// Open creates an account inside the caller's unit of work. The caller
// publishes the result with Announce once the unit commits.
func (s *Service) Open(ctx context.Context, uow repository.UnitOfWork, req OpenRequest) (*Opened, error) {
	if req.Type == "" {
		req.Type = account.TypeSavings
	}
	accounts, err := uow.AccountRepository()
	if err != nil {
		return nil, err
	}
	number, err := s.ids.Generate(idgen.KindAccount)
	if err != nil {
		return nil, fmt.Errorf("generate account number: %w", err)
	}
	acct, err := account.New().
		WithNumber(number).
		WithOwner(req.OwnerID).
		WithType(req.Type).
		WithCreatedAt(time.Now().UTC()).
		Build()
	if err != nil {
		return nil, err
	}
	if err := accounts.Create(ctx, acct); err != nil {
		return nil, err
	}

	opened := &Opened{Account: acct}
	if req.InitialCredit.IsPositive() {
		leg, err := s.engine.SystemCredit(ctx, uow, acct.Number, req.InitialCredit, req.Description)
		if err != nil {
			return nil, fmt.Errorf("credit opening balance: %w", err)
		}
		acct.Balance = leg.BalanceAfter
		opened.Bonus = &leg
	}
	return opened, nil
}

// WithWelcomeBonus returns req with the configured welcome bonus as its
// initial credit.
func (s *Service) WithWelcomeBonus(req OpenRequest) OpenRequest {
	req.InitialCredit = s.bonus
	req.Description = WelcomeBonusDescription
	return req
}

// Announce publishes AccountOpened. Publish failures are logged only.
func (s *Service) Announce(ctx context.Context, opened *Opened) {
	s.logger.Info("account opened",
		"account", opened.Account.Number,
		"owner_id", opened.Account.OwnerID,
		"type", opened.Account.Type,
		"bonus", opened.Bonus != nil,
	)
	if s.bus == nil {
		return
	}
	evt := &events.AccountOpened{
		ID:             uuid.New(),
		AccountNumber:  opened.Account.Number,
		AccountType:    string(opened.Account.Type),
		OwnerID:        opened.Account.OwnerID,
		OpeningBalance: opened.Account.Balance,
		Timestamp:      opened.Account.CreatedAt,
	}
	if err := s.bus.Emit(ctx, evt); err != nil {
		s.logger.Error("failed to publish account opened", "account", opened.Account.Number, "error", err)
	}
}

// OpenAccount opens an additional account for an active user. The welcome
// bonus is only credited to a user's first account; the owner's row stays
// locked from that check until the account is written.
func (s *Service) OpenAccount(ctx context.Context, ownerID uuid.UUID, typ account.Type) (*Opened, error) {
	if typ != "" && !typ.Valid() {
		return nil, account.ErrInvalidAccountType
	}
	var opened *Opened
	err := repository.DoWithConflictRetry(ctx, s.uow, maxOpenAttempts, func(uow repository.UnitOfWork) error {
		users, err := uow.UserRepository()
		if err != nil {
			return err
		}
		u, err := users.GetForUpdate(ctx, ownerID)
		if err != nil {
			return err
		}
		if !u.Active {
			return user.ErrUserInactive
		}
		accounts, err := uow.AccountRepository()
		if err != nil {
			return err
		}
		existing, err := accounts.ListByOwner(ctx, ownerID)
		if err != nil {
			return err
		}
		req := OpenRequest{OwnerID: ownerID, Type: typ}
		if len(existing) == 0 {
			req = s.WithWelcomeBonus(req)
		}
		opened, err = s.Open(ctx, uow, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Announce(ctx, opened)
	return opened, nil
}

// ListAccounts returns the owner's accounts, oldest first.
func (s *Service) ListAccounts(ctx context.Context, ownerID uuid.UUID) ([]*account.Account, error) {
	accounts, err := s.uow.AccountRepository()
	if err != nil {
		return nil, err
	}
	return accounts.ListByOwner(ctx, ownerID)
}

// GetAccount returns one of the owner's accounts. Accounts owned by someone
// else are reported as not found.
func (s *Service) GetAccount(ctx context.Context, ownerID uuid.UUID, number int64) (*account.Account, error) {
	accounts, err := s.uow.AccountRepository()
	if err != nil {
		return nil, err
	}
	acct, err := accounts.Get(ctx, number)
	if err != nil {
		return nil, err
	}
	if acct.OwnerID != ownerID {
		s.logger.Warn("account access denied", "account", number, "owner_id", ownerID)
		return nil, account.ErrAccountNotFound
	}
	return acct, nil
}

// GetBalance returns the balance of one of the owner's accounts.
func (s *Service) GetBalance(ctx context.Context, ownerID uuid.UUID, number int64) (decimal.Decimal, error) {
	acct, err := s.GetAccount(ctx, ownerID, number)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.Balance, nil
}

