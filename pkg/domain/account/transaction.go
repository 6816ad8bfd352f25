package account

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the side of a transfer a Transaction records.
type TransactionType string

const (
	TransactionDebit  TransactionType = "DEBIT"
	TransactionCredit TransactionType = "CREDIT"
)

// Mode tags the channel a transaction came through. Free form; the constants
// below are the ones the bank issues itself.
type Mode string

const (
	ModeMobileAppTransfer Mode = "MOBILE_APP_TRANSFER"
	ModeUSSDTransfer      Mode = "USSD_TRANSFER"
	ModeAutoCredit        Mode = "AUTO_CREDIT"
)

// Transaction is one leg of a money movement. A user to user transfer is
// recorded as two rows, a DEBIT and a CREDIT, written in the same unit of work.
//
// FromAccount is nil for system originated credits such as the welcome bonus;
// ToAccount is nil for a debit without an internal counterparty.
type Transaction struct {
	ID          int64
	Type        TransactionType
	Mode        Mode
	FromAccount *int64
	ToAccount   *int64
	Amount      decimal.Decimal
	Description string
	Timestamp   time.Time
}

// Delta is the signed effect of the transaction on the account it is posted to.
func (t *Transaction) Delta() decimal.Decimal {
	if t.Type == TransactionDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}
