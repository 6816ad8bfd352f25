package account

import (
	"time"

	"github.com/amirasaad/corebank/pkg/domain/account"
	accountsvc "github.com/amirasaad/corebank/pkg/service/account"
	"github.com/amirasaad/corebank/pkg/service/statement"
)

//revive:disable

// CreateAccountRequest represents the request body for opening an account.
type CreateAccountRequest struct {
	Type string `json:"type" validate:"required,oneof=SAVINGS CURRENT FIXED_DEPOSIT"`
}

// AccountDTO is the API response representation of an account.
type AccountDTO struct {
	Number    int64     `json:"account_number"`
	Type      string    `json:"account_type"`
	Balance   string    `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

// OpenedDTO is returned when an account is opened.
type OpenedDTO struct {
	Account            AccountDTO `json:"account"`
	BonusCredit        string     `json:"bonus_credit,omitempty"`
	BonusTransactionID int64      `json:"bonus_transaction_id,omitempty"`
}

// BalanceDTO is the response of the balance endpoint.
type BalanceDTO struct {
	Number  int64  `json:"account_number"`
	Balance string `json:"balance"`
}

// EntryDTO is one ledger line of a statement.
type EntryDTO struct {
	ID            int64     `json:"id"`
	AccountNumber int64     `json:"account_number"`
	TransactionID int64     `json:"transaction_id"`
	Type          string    `json:"transaction_type"`
	Mode          string    `json:"mode"`
	FromAccount   *int64    `json:"from_account,omitempty"`
	ToAccount     *int64    `json:"to_account,omitempty"`
	Amount        string    `json:"amount"`
	Description   string    `json:"description"`
	BalanceAfter  string    `json:"balance_after"`
	Timestamp     time.Time `json:"timestamp"`
}

// SummaryDTO totals one account over the statement window.
type SummaryDTO struct {
	AccountNumber int64  `json:"account_number"`
	AccountType   string `json:"account_type"`
	Balance       string `json:"balance"`
	TotalCredit   string `json:"total_credit"`
	TotalDebit    string `json:"total_debit"`
	CreditCount   int    `json:"credit_count"`
	DebitCount    int    `json:"debit_count"`
}

// StatementDTO is the response of the statement endpoint.
type StatementDTO struct {
	Start     *time.Time   `json:"start,omitempty"`
	End       *time.Time   `json:"end,omitempty"`
	Summaries []SummaryDTO `json:"summaries"`
	Entries   []EntryDTO   `json:"entries"`
}

// ToAccountDTO maps a domain account to its API shape.
func ToAccountDTO(a *account.Account) AccountDTO {
	return AccountDTO{
		Number:    a.Number,
		Type:      string(a.Type),
		Balance:   a.Balance.StringFixed(account.Scale),
		CreatedAt: a.CreatedAt,
	}
}

// ToOpenedDTO maps an opened account and its optional bonus credit.
func ToOpenedDTO(o *accountsvc.Opened) OpenedDTO {
	dto := OpenedDTO{Account: ToAccountDTO(o.Account)}
	if o.Bonus != nil {
		dto.BonusCredit = o.Bonus.Transaction.Amount.StringFixed(account.Scale)
		dto.BonusTransactionID = o.Bonus.Transaction.ID
		dto.Account.Balance = o.Bonus.BalanceAfter.StringFixed(account.Scale)
	}
	return dto
}

// ToEntryDTO flattens a ledger entry and its transaction.
func ToEntryDTO(e *account.LedgerEntry) EntryDTO {
	dto := EntryDTO{
		ID:            e.ID,
		AccountNumber: e.AccountNumber,
		TransactionID: e.TransactionID,
		BalanceAfter:  e.BalanceAfter.StringFixed(account.Scale),
		Timestamp:     e.Timestamp,
	}
	if tx := e.Transaction; tx != nil {
		dto.Type = string(tx.Type)
		dto.Mode = string(tx.Mode)
		dto.FromAccount = tx.FromAccount
		dto.ToAccount = tx.ToAccount
		dto.Amount = tx.Amount.StringFixed(account.Scale)
		dto.Description = tx.Description
	}
	return dto
}

// ToStatementDTO maps a statement to its API shape.
func ToStatementDTO(s *statement.Statement) StatementDTO {
	dto := StatementDTO{
		Start:     s.Start,
		End:       s.End,
		Summaries: make([]SummaryDTO, len(s.Summaries)),
		Entries:   make([]EntryDTO, len(s.Entries)),
	}
	for i, sum := range s.Summaries {
		dto.Summaries[i] = SummaryDTO{
			AccountNumber: sum.AccountNumber,
			AccountType:   string(sum.AccountType),
			Balance:       sum.Balance.StringFixed(account.Scale),
			TotalCredit:   sum.TotalCredit.StringFixed(account.Scale),
			TotalDebit:    sum.TotalDebit.StringFixed(account.Scale),
			CreditCount:   sum.CreditCount,
			DebitCount:    sum.DebitCount,
		}
	}
	for i, e := range s.Entries {
		dto.Entries[i] = ToEntryDTO(e)
	}
	return dto
}
