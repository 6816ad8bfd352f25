package account

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry is the immutable balance snapshot of one account right after one
// transaction leg was applied. There is exactly one entry per
// (account, transaction) pair.
type LedgerEntry struct {
	ID            int64
	AccountNumber int64
	TransactionID int64
	BalanceAfter  decimal.Decimal
	Timestamp     time.Time

	// Transaction is populated by read paths that join through to the
	// originating transaction.
	Transaction *Transaction
}
