package transfer

import (
	"time"

	"github.com/amirasaad/corebank/pkg/service/transfer"
	"github.com/shopspring/decimal"
)

//revive:disable

// TransferRequest represents the request body for sending money to another account.
type TransferRequest struct {
	DestinationAccount int64           `json:"destination_account" validate:"required,gt=0"`
	Amount             decimal.Decimal `json:"amount"`
	Description        string          `json:"description" validate:"max=255"`
	Mode               string          `json:"mode" validate:"omitempty,oneof=MOBILE_APP_TRANSFER USSD_TRANSFER"`
	Pin                string          `json:"pin" validate:"required,len=4,numeric"`
}

// TransferResponse is the sender's view of a completed transfer. The
// recipient's balance is never exposed.
type TransferResponse struct {
	ID                 string    `json:"id"`
	TransactionID      int64     `json:"transaction_id"`
	Mode               string    `json:"mode"`
	Amount             string    `json:"amount"`
	Description        string    `json:"description"`
	SourceAccount      int64     `json:"source_account"`
	DestinationAccount int64     `json:"destination_account"`
	RecipientName      string    `json:"recipient_name,omitempty"`
	BalanceAfter       string    `json:"balance_after"`
	Timestamp          time.Time `json:"timestamp"`
}

// ToTransferResponse maps an engine result to the sender's view.
func ToTransferResponse(res *transfer.Result) *TransferResponse {
	debit := res.Debit
	return &TransferResponse{
		ID:                 res.ID.String(),
		TransactionID:      debit.Transaction.ID,
		Mode:               string(debit.Transaction.Mode),
		Amount:             debit.Transaction.Amount.StringFixed(2),
		Description:        debit.Transaction.Description,
		SourceAccount:      debit.AccountNumber,
		DestinationAccount: res.Credit.AccountNumber,
		RecipientName:      debit.CounterpartyName,
		BalanceAfter:       debit.BalanceAfter.StringFixed(2),
		Timestamp:          debit.Transaction.Timestamp,
	}
}
