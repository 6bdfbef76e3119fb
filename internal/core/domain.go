package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Asset     AccountType = "ASSET"
	Liability AccountType = "LIABILITY"

	Income  CategoryType = "INCOME"
	Expense CategoryType = "EXPENSE"
)

type (
	AccountType  string
	CategoryType string

	// Account is a named bucket of value owned by a single user. Balance is
	// maintained by the ledger service as the cumulative signed effect of all
	// transactions referencing the account.
	Account struct {
		ID       int64           `json:"id"`
		UserID   int64           `json:"user_id"`
		Name     string          `json:"name"`
		Type     AccountType     `json:"type"`
		Category string          `json:"category,omitempty"` // free-form grouping label (BANK, CASH, LOAN, ...)
		Balance  decimal.Decimal `json:"balance"`
		Currency string          `json:"currency"`

		// Debt fields, only meaningful for liabilities.
		InterestRate  *decimal.Decimal `json:"interest_rate,omitempty"`
		DueDate       *time.Time       `json:"due_date,omitempty"`
		PaymentAmount *decimal.Decimal `json:"payment_amount,omitempty"`
	}

	// Transaction moves Amount from one account to another:
	// FromAccount.Balance -= Amount, ToAccount.Balance += Amount.
	Transaction struct {
		ID            int64           `json:"id"`
		UserID        int64           `json:"user_id"`
		Description   string          `json:"description"`
		Amount        decimal.Decimal `json:"amount"`
		Date          time.Time       `json:"date"`
		FromAccountID int64           `json:"from_account_id"`
		ToAccountID   int64           `json:"to_account_id"`
		CategoryID    *int64          `json:"category_id,omitempty"`
		Notes         string          `json:"notes,omitempty"`

		// Optional breakdown for debt payments.
		PrincipalAmount *decimal.Decimal `json:"principal_amount,omitempty"`
		InterestAmount  *decimal.Decimal `json:"interest_amount,omitempty"`
		FeeAmount       *decimal.Decimal `json:"fee_amount,omitempty"`
		IsExtraPayment  bool             `json:"is_extra_payment,omitempty"`
	}

	// Category classifies transactions for reporting. It never affects
	// balances.
	Category struct {
		ID     int64        `json:"id"`
		UserID int64        `json:"user_id"`
		Name   string       `json:"name"`
		Type   CategoryType `json:"type"`
		Color  string       `json:"color,omitempty"`
		Icon   string       `json:"icon,omitempty"`
	}
)

func (t AccountType) Valid() bool {
	return t == Asset || t == Liability
}

func (t CategoryType) Valid() bool {
	return t == Income || t == Expense
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	if len(a.Name) > 200 {
		return InvalidArgumentf("account name too long (max 200 characters)")
	}
	if !a.Type.Valid() {
		return InvalidArgumentf("invalid account type %q", a.Type)
	}
	if a.Currency == "" {
		return InvalidArgumentf("currency is required")
	}
	if a.PaymentAmount != nil && a.PaymentAmount.Sign() <= 0 {
		return InvalidArgumentf("payment amount must be positive")
	}
	return nil
}

func (tx Transaction) Validate() error {
	if strings.TrimSpace(tx.Description) == "" {
		return ErrEmptyDescription
	}
	if len(tx.Description) > 200 {
		return InvalidArgumentf("description too long (max 200 characters)")
	}
	if tx.Amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if tx.Date.IsZero() {
		return InvalidArgumentf("date is required")
	}
	if tx.FromAccountID == tx.ToAccountID {
		return InvalidArgumentf("source and destination accounts must differ")
	}
	for _, sub := range []*decimal.Decimal{tx.PrincipalAmount, tx.InterestAmount, tx.FeeAmount} {
		if sub != nil && sub.Sign() < 0 {
			return InvalidArgumentf("sub-amounts must not be negative")
		}
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if !c.Type.Valid() {
		return InvalidArgumentf("category type must be INCOME or EXPENSE, got %q", c.Type)
	}
	return nil
}

// Effect returns the signed balance delta this transaction applies to the
// given account, zero if the account is not referenced.
func (tx Transaction) Effect(accountID int64) decimal.Decimal {
	var d decimal.Decimal
	if tx.FromAccountID == accountID {
		d = d.Sub(tx.Amount)
	}
	if tx.ToAccountID == accountID {
		d = d.Add(tx.Amount)
	}
	return d
}

// References reports whether the transaction touches the given account.
func (tx Transaction) References(accountID int64) bool {
	return tx.FromAccountID == accountID || tx.ToAccountID == accountID
}
