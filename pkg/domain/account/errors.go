package account

import (
	"errors"
	"fmt"

	"github.com/amirasaad/corebank/pkg/domain"
)

var (
	// ErrInvalidAmount is returned when an amount is not strictly positive or has more than two decimal places.
	ErrInvalidAmount = errors.New("amount must be positive with at most two decimal places")

	// ErrUnknownRecipient is returned when the destination account of a transfer does not exist.
	ErrUnknownRecipient = errors.New("recipient account does not exist")

	// ErrInsufficientFunds is returned when the source balance is lower than the transfer amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrLockTimeout is returned when an account lock could not be acquired in time. Safe to retry.
	ErrLockTimeout = errors.New("timed out waiting for account lock")

	// ErrAccountNotFound is returned when an account cannot be found. It
	// matches domain.ErrNotFound.
	ErrAccountNotFound = fmt.Errorf("account %w", domain.ErrNotFound)

	// ErrCannotTransferToSameAccount is returned when source and destination are the same account.
	ErrCannotTransferToSameAccount = errors.New("cannot transfer to same account")

	// ErrInvalidAccountType is returned for an account type outside of the supported set.
	ErrInvalidAccountType = errors.New("invalid account type")
)
