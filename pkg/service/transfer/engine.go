// Package transfer moves money between accounts.
//
// A transfer runs as one unit of work: both accounts are locked, the source
// balance is checked, both balances are mutated and two Transaction rows plus
// two LedgerEntry rows are written. Either all of it commits or none of it
// does. Locks are always taken in ascending account-number order, so two
// transfers in opposite directions between the same accounts cannot deadlock.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/corebank/pkg/config"
	"github.com/amirasaad/corebank/pkg/domain"
	"github.com/amirasaad/corebank/pkg/domain/account"
	"github.com/amirasaad/corebank/pkg/domain/events"
	"github.com/amirasaad/corebank/pkg/domain/user"
	"github.com/amirasaad/corebank/pkg/eventbus"
	"github.com/amirasaad/corebank/pkg/idgen"
	"github.com/amirasaad/corebank/pkg/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultMaxAttempts bounds retries after a generated-id collision.
const DefaultMaxAttempts = 3

// IDGenerator hands out transaction and ledger entry ids.
type IDGenerator interface {
	Generate(kind idgen.Kind) (int64, error)
}

// Request describes a user-to-user transfer.
type Request struct {
	SourceUserID       uuid.UUID
	DestinationAccount int64
	Amount             decimal.Decimal
	Description        string
	Mode               account.Mode
}

// Leg is one side of a transfer as seen by the account it was posted to.
type Leg struct {
	Transaction      *account.Transaction `json:"transaction"`
	LedgerEntry      *account.LedgerEntry `json:"ledger_entry"`
	AccountNumber    int64                `json:"account_number"`
	OwnerID          uuid.UUID            `json:"owner_id"`
	OwnerName        string               `json:"owner_name"`
	OwnerEmail       string               `json:"-"`
	CounterpartyName string               `json:"counterparty_name"`
	BalanceAfter     decimal.Decimal      `json:"balance_after"`
}

// Result is returned for a committed transfer.
type Result struct {
	ID     uuid.UUID `json:"id"`
	Debit  Leg       `json:"debit"`
	Credit Leg       `json:"credit"`
	States []State   `json:"-"`
}

// Engine executes transfers and system credits.
type Engine struct {
	uow         repository.UnitOfWork
	ids         IDGenerator
	bus         eventbus.Bus
	logger      *slog.Logger
	now         func() time.Time
	maxAttempts int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMaxAttempts overrides DefaultMaxAttempts.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) { e.maxAttempts = n }
}

// New creates an Engine. bus may be nil, in which case no events are published.
func New(uow repository.UnitOfWork, ids IDGenerator, bus eventbus.Bus, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		uow:         uow,
		ids:         ids,
		bus:         bus,
		logger:      logger.With("service", "transfer"),
		now:         func() time.Time { return time.Now().UTC() },
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewFromDeps creates an Engine from the process dependencies.
func NewFromDeps(deps *config.Deps, opts ...Option) *Engine {
	return New(deps.Uow, deps.IDs, deps.EventBus, deps.Logger, opts...)
}

// Transfer moves req.Amount from the source user's primary account to
// req.DestinationAccount. Caller-correctable failures (ErrInvalidAmount,
// ErrUnknownRecipient, ErrInsufficientFunds) and ErrLockTimeout leave no
// persisted side effects.
func (e *Engine) Transfer(ctx context.Context, req Request) (*Result, error) {
	logger := e.logger.With(
		"owner_id", req.SourceUserID,
		"to", req.DestinationAccount,
		"amount", req.Amount.StringFixed(account.Scale),
	)
	if req.Mode == "" {
		req.Mode = account.ModeMobileAppTransfer
	}
	if err := account.ValidateAmount(req.Amount); err != nil {
		newMachine(logger).fail(err)
		return nil, err
	}

	var (
		res *Result
		err error
	)
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		res, err = e.transferOnce(ctx, logger, req)
		if errors.Is(err, errPrimaryMoved) {
			logger.Warn("primary account changed while locking, retrying transfer", "attempt", attempt)
			continue
		}
		if !errors.Is(err, domain.ErrAlreadyExists) {
			break
		}
		logger.Warn("generated id collided, retrying transfer", "attempt", attempt)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("transfer committed",
		"transfer_id", res.ID,
		"from", res.Debit.AccountNumber,
		"debit_tx", res.Debit.Transaction.ID,
		"credit_tx", res.Credit.Transaction.ID,
	)
	e.publish(ctx, res)
	return res, nil
}

func (e *Engine) transferOnce(ctx context.Context, logger *slog.Logger, req Request) (*Result, error) {
	m := newMachine(logger)
	res := &Result{ID: uuid.New()}

	err := e.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		accounts, err := uow.AccountRepository()
		if err != nil {
			return err
		}
		src, dst, err := lockPair(ctx, accounts, req.SourceUserID, req.DestinationAccount)
		if err != nil {
			return err
		}
		m.advance(StateLocked)

		if err := src.CanDebit(req.Amount); err != nil {
			return err
		}
		m.advance(StateValidated)

		now := e.now()
		if err := src.Debit(req.Amount, now); err != nil {
			return err
		}
		if err := accounts.Persist(ctx, src); err != nil {
			return fmt.Errorf("persist source: %w", err)
		}
		m.advance(StateDebited)

		if err := dst.Credit(req.Amount, now); err != nil {
			return err
		}
		if err := accounts.Persist(ctx, dst); err != nil {
			return fmt.Errorf("persist destination: %w", err)
		}
		m.advance(StateCredited)

		from, to := src.Number, dst.Number
		res.Debit, err = e.post(ctx, uow, src, &account.Transaction{
			Type:        account.TransactionDebit,
			Mode:        req.Mode,
			FromAccount: &from,
			ToAccount:   &to,
			Amount:      req.Amount,
			Description: req.Description,
			Timestamp:   now,
		})
		if err != nil {
			return err
		}
		res.Credit, err = e.post(ctx, uow, dst, &account.Transaction{
			Type:        account.TransactionCredit,
			Mode:        req.Mode,
			FromAccount: &from,
			ToAccount:   &to,
			Amount:      req.Amount,
			Description: req.Description,
			Timestamp:   now,
		})
		if err != nil {
			return err
		}
		m.advance(StateLedgerPosted)

		return e.resolveNames(ctx, uow, res)
	})
	if err != nil {
		m.fail(err)
		return nil, err
	}
	m.advance(StateCommitted)
	res.States = m.history
	return res, nil
}

// errPrimaryMoved reports that the locked source is not the account the lock
// order was computed from, so the pair may have been locked out of order.
var errPrimaryMoved = errors.New("primary account changed while locking")

// lockPair locks the source user's primary account and the destination in
// ascending account-number order.
func lockPair(
	ctx context.Context,
	accounts repository.AccountRepository,
	owner uuid.UUID,
	destination int64,
) (src, dst *account.Account, err error) {
	owned, err := accounts.ListByOwner(ctx, owner)
	if err != nil {
		return nil, nil, err
	}
	primary := account.Primary(owned)
	if primary == nil {
		return nil, nil, account.ErrAccountNotFound
	}
	if primary.Number == destination {
		return nil, nil, account.ErrCannotTransferToSameAccount
	}

	lockDestination := func() error {
		dst, err = accounts.GetForUpdateByNumber(ctx, destination)
		if errors.Is(err, account.ErrAccountNotFound) {
			return account.ErrUnknownRecipient
		}
		return err
	}
	lockSource := func() error {
		src, err = accounts.GetForUpdateByOwner(ctx, owner)
		return err
	}

	first, second := lockSource, lockDestination
	if destination < primary.Number {
		first, second = lockDestination, lockSource
	}
	if err := first(); err != nil {
		return nil, nil, err
	}
	if err := second(); err != nil {
		return nil, nil, err
	}
	// The primary account can change between the unlocked lookup and the
	// lock, e.g. when the user opens an older-typed account concurrently.
	if src.Number == dst.Number {
		return nil, nil, account.ErrCannotTransferToSameAccount
	}
	if src.Number != primary.Number {
		return nil, nil, errPrimaryMoved
	}
	return src, dst, nil
}

// post writes one Transaction row and its LedgerEntry for acct, whose balance
// must already reflect the transaction.
func (e *Engine) post(
	ctx context.Context,
	uow repository.UnitOfWork,
	acct *account.Account,
	tx *account.Transaction,
) (Leg, error) {
	txs, err := uow.TransactionRepository()
	if err != nil {
		return Leg{}, err
	}
	ledger, err := uow.LedgerRepository()
	if err != nil {
		return Leg{}, err
	}
	if tx.ID, err = e.ids.Generate(idgen.KindTransaction); err != nil {
		return Leg{}, fmt.Errorf("generate transaction id: %w", err)
	}
	if err := txs.Create(ctx, tx); err != nil {
		return Leg{}, fmt.Errorf("create %s transaction: %w", tx.Type, err)
	}
	entryID, err := e.ids.Generate(idgen.KindLedgerEntry)
	if err != nil {
		return Leg{}, fmt.Errorf("generate ledger entry id: %w", err)
	}
	entry := &account.LedgerEntry{
		ID:            entryID,
		AccountNumber: acct.Number,
		TransactionID: tx.ID,
		BalanceAfter:  acct.Balance,
		Timestamp:     tx.Timestamp,
		Transaction:   tx,
	}
	if err := ledger.Create(ctx, entry); err != nil {
		return Leg{}, fmt.Errorf("append ledger entry: %w", err)
	}
	return Leg{
		Transaction:   tx,
		LedgerEntry:   entry,
		AccountNumber: acct.Number,
		OwnerID:       acct.OwnerID,
		BalanceAfter:  acct.Balance,
	}, nil
}

// resolveNames fills owner and counterparty names for notifications. Owners
// missing from the user store leave the names empty.
func (e *Engine) resolveNames(ctx context.Context, uow repository.UnitOfWork, res *Result) error {
	users, err := uow.UserRepository()
	if err != nil {
		return err
	}
	for _, leg := range []*Leg{&res.Debit, &res.Credit} {
		u, err := users.Get(ctx, leg.OwnerID)
		if errors.Is(err, user.ErrUserNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		leg.OwnerName, leg.OwnerEmail = u.FullName, u.Email
	}
	res.Debit.CounterpartyName = res.Credit.OwnerName
	res.Credit.CounterpartyName = res.Debit.OwnerName
	return nil
}

func (e *Engine) publish(ctx context.Context, res *Result) {
	if e.bus == nil {
		return
	}
	evt := &events.TransferCompleted{
		ID:          res.ID,
		Mode:        string(res.Debit.Transaction.Mode),
		Amount:      res.Debit.Transaction.Amount,
		Description: res.Debit.Transaction.Description,
		Debit:       legEvent(res.Debit),
		Credit:      legEvent(res.Credit),
		Timestamp:   res.Debit.Transaction.Timestamp,
	}
	if err := e.bus.Emit(ctx, evt); err != nil {
		e.logger.Error("failed to publish transfer event", "transfer_id", res.ID, "error", err)
	}
}

func legEvent(l Leg) events.Leg {
	return events.Leg{
		TransactionID:    l.Transaction.ID,
		LedgerEntryID:    l.LedgerEntry.ID,
		AccountNumber:    l.AccountNumber,
		OwnerID:          l.OwnerID,
		OwnerName:        l.OwnerName,
		OwnerEmail:       l.OwnerEmail,
		CounterpartyName: l.CounterpartyName,
		BalanceAfter:     l.BalanceAfter,
	}
}

// SystemCredit credits amount to the account with the given number inside
// the caller's unit of work, recording an AUTO_CREDIT transaction with no
// source account. It is used for the welcome bonus and takes the account's
// lock itself.
func (e *Engine) SystemCredit(
	ctx context.Context,
	uow repository.UnitOfWork,
	number int64,
	amount decimal.Decimal,
	description string,
) (Leg, error) {
	if err := account.ValidateAmount(amount); err != nil {
		return Leg{}, err
	}
	accounts, err := uow.AccountRepository()
	if err != nil {
		return Leg{}, err
	}
	acct, err := accounts.GetForUpdateByNumber(ctx, number)
	if err != nil {
		return Leg{}, err
	}
	now := e.now()
	if err := acct.Credit(amount, now); err != nil {
		return Leg{}, err
	}
	if err := accounts.Persist(ctx, acct); err != nil {
		return Leg{}, fmt.Errorf("persist credited account: %w", err)
	}
	to := acct.Number
	leg, err := e.post(ctx, uow, acct, &account.Transaction{
		Type:        account.TransactionCredit,
		Mode:        account.ModeAutoCredit,
		ToAccount:   &to,
		Amount:      amount,
		Description: description,
		Timestamp:   now,
	})
	if err != nil {
		return Leg{}, err
	}
	e.logger.Info("system credit posted",
		"account", number,
		"amount", amount.StringFixed(account.Scale),
		"transaction_id", leg.Transaction.ID,
	)
	return leg, nil
}
