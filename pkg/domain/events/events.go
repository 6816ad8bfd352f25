package events

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event is anything that can travel over an event bus.
type Event interface {
	Type() string
}

// EventType represents the type of an event in the system.
type EventType string

func (t EventType) String() string { return string(t) }

const (
	EventTypeTransferCompleted EventType = "Transfer.Completed"
	EventTypeAccountOpened     EventType = "Account.Opened"
	EventTypeOTPIssued         EventType = "User.OTPIssued"
)

// Leg describes one side of a completed transfer as seen by the account holder
// it was posted to.
type Leg struct {
	TransactionID    int64           `json:"transaction_id"`
	LedgerEntryID    int64           `json:"ledger_entry_id"`
	AccountNumber    int64           `json:"account_number"`
	OwnerID          uuid.UUID       `json:"owner_id"`
	OwnerName        string          `json:"owner_name,omitempty"`
	OwnerEmail       string          `json:"owner_email,omitempty"`
	CounterpartyName string          `json:"counterparty_name,omitempty"`
	BalanceAfter     decimal.Decimal `json:"balance_after"`
}

// TransferCompleted is emitted once a transfer has committed.
type TransferCompleted struct {
	ID          uuid.UUID       `json:"id"`
	Mode        string          `json:"mode"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Debit       Leg             `json:"debit"`
	Credit      Leg             `json:"credit"`
	Timestamp   time.Time       `json:"timestamp"`
}

// AccountOpened is emitted once a new account and its optional opening credit
// have committed.
type AccountOpened struct {
	ID             uuid.UUID       `json:"id"`
	AccountNumber  int64           `json:"account_number"`
	AccountType    string          `json:"account_type"`
	OwnerID        uuid.UUID       `json:"owner_id"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Timestamp      time.Time       `json:"timestamp"`
}

// OTPIssued is emitted when a verification code has been generated for a user.
// A mailer subscribes to it.
type OTPIssued struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	OTP       string    `json:"otp"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (e TransferCompleted) Type() string { return EventTypeTransferCompleted.String() }
func (e AccountOpened) Type() string     { return EventTypeAccountOpened.String() }
func (e OTPIssued) Type() string         { return EventTypeOTPIssued.String() }

// Keyed events name the partition they belong to. Buses that partition, like
// Kafka, deliver events sharing a key in emission order.
type Keyed interface {
	PartitionKey() string
}

// PartitionKey keeps alerts for one source account in order.
func (e TransferCompleted) PartitionKey() string {
	return strconv.FormatInt(e.Debit.AccountNumber, 10)
}

func (e AccountOpened) PartitionKey() string { return strconv.FormatInt(e.AccountNumber, 10) }
func (e OTPIssued) PartitionKey() string     { return e.UserID.String() }

// EventTypes maps a wire type name to a constructor, used by bus consumers to
// decode envelopes.
var EventTypes = map[EventType]func() Event{
	EventTypeTransferCompleted: func() Event { return &TransferCompleted{} },
	EventTypeAccountOpened:     func() Event { return &AccountOpened{} },
	EventTypeOTPIssued:         func() Event { return &OTPIssued{} },
}
