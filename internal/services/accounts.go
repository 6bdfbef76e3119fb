package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/storage"
)

// AccountService owns account lifecycle. It never derives balances from
// transactions; the direct balance override on update is the one trusted
// path that bypasses the ledger, and it breaks derivability of the balance
// from history until the next ledger write.
type AccountService struct {
	repo storage.Repository
}

func NewAccountService(repo storage.Repository) *AccountService {
	return &AccountService{repo: repo}
}

// AccountChanges carries mutable account fields. Nil means "leave
// unchanged".
type AccountChanges struct {
	Name          *string
	Type          *core.AccountType
	Balance       *decimal.Decimal
	Currency      *string
	Category      *string
	InterestRate  *decimal.Decimal
	DueDate       *time.Time
	PaymentAmount *decimal.Decimal
}

func (s *AccountService) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	if a.Currency == "" {
		a.Currency = "USD"
	}
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	if err := s.repo.CreateAccount(ctx, &a); err != nil {
		return core.Account{}, err
	}

	slog.InfoContext(ctx, "Account created",
		"id", a.ID,
		"user_id", a.UserID,
		"name", a.Name,
		"type", string(a.Type))
	return a, nil
}

func (s *AccountService) GetAccount(ctx context.Context, userID, id int64) (core.Account, error) {
	return s.repo.GetAccount(ctx, userID, id)
}

func (s *AccountService) ListAccounts(ctx context.Context, userID int64) ([]core.Account, error) {
	return s.repo.ListAccounts(ctx, userID)
}

func (s *AccountService) UpdateAccount(ctx context.Context, userID, id int64, changes AccountChanges) (core.Account, error) {
	var updated core.Account

	err := s.repo.InTx(ctx, func(st storage.Store) error {
		a, err := st.GetAccount(ctx, userID, id)
		if err != nil {
			return err
		}

		if changes.Name != nil {
			a.Name = *changes.Name
		}
		if changes.Type != nil {
			a.Type = *changes.Type
		}
		if changes.Balance != nil {
			a.Balance = *changes.Balance
		}
		if changes.Currency != nil {
			a.Currency = *changes.Currency
		}
		if changes.Category != nil {
			a.Category = *changes.Category
		}
		if changes.InterestRate != nil {
			d := *changes.InterestRate
			a.InterestRate = &d
		}
		if changes.DueDate != nil {
			t := *changes.DueDate
			a.DueDate = &t
		}
		if changes.PaymentAmount != nil {
			d := *changes.PaymentAmount
			a.PaymentAmount = &d
		}

		if err := a.Validate(); err != nil {
			return err
		}
		if err := st.UpdateAccount(ctx, a); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return core.Account{}, err
	}

	if changes.Balance != nil {
		slog.WarnContext(ctx, "Account balance overridden directly",
			"id", id,
			"user_id", userID,
			"balance", updated.Balance.String())
	}
	return updated, nil
}

// DeleteAccount removes an account only when no transaction references it.
// The count and the delete share one atomic unit so a concurrent ledger
// write cannot slip a transaction in between.
func (s *AccountService) DeleteAccount(ctx context.Context, userID, id int64) error {
	return s.repo.InTx(ctx, func(st storage.Store) error {
		if _, err := st.GetAccount(ctx, userID, id); err != nil {
			return err
		}
		n, err := st.CountAccountTransactions(ctx, userID, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return core.Conflictf("account %d has %d transactions", id, n)
		}
		return st.DeleteAccount(ctx, userID, id)
	})
}

// AccountTemplate is a named starter set of accounts.
type AccountTemplate struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Accounts    []core.Account `json:"accounts"`
}

// AccountTemplates lists the built-in provisioning templates.
func AccountTemplates() []AccountTemplate {
	return []AccountTemplate{
		{
			ID:          "basic",
			Name:        "Basic Accounts",
			Description: "Basic set of accounts for personal finance",
			Accounts: []core.Account{
				{Name: "Cash", Type: core.Asset, Category: "CASH"},
				{Name: "Checking Account", Type: core.Asset, Category: "BANK"},
				{Name: "Savings Account", Type: core.Asset, Category: "BANK"},
				{Name: "Credit Card", Type: core.Liability, Category: "CREDIT_CARD"},
			},
		},
		{
			ID:          "detailed",
			Name:        "Detailed Personal Finances",
			Description: "Comprehensive set of accounts for detailed personal finance tracking",
			Accounts: []core.Account{
				{Name: "Cash", Type: core.Asset, Category: "CASH"},
				{Name: "Primary Checking", Type: core.Asset, Category: "BANK"},
				{Name: "Emergency Fund", Type: core.Asset, Category: "BANK"},
				{Name: "Savings", Type: core.Asset, Category: "BANK"},
				{Name: "Investment Account", Type: core.Asset, Category: "INVESTMENT"},
				{Name: "Primary Credit Card", Type: core.Liability, Category: "CREDIT_CARD"},
				{Name: "Car Loan", Type: core.Liability, Category: "LOAN"},
				{Name: "Mortgage", Type: core.Liability, Category: "LOAN"},
			},
		},
	}
}

// ApplyTemplate provisions the accounts of a template for the user.
func (s *AccountService) ApplyTemplate(ctx context.Context, userID int64, templateID string) ([]core.Account, error) {
	var tpl *AccountTemplate
	for _, t := range AccountTemplates() {
		if t.ID == templateID {
			tpl = &t
			break
		}
	}
	if tpl == nil {
		return nil, core.NotFoundf("template %q", templateID)
	}

	created := make([]core.Account, 0, len(tpl.Accounts))
	for _, a := range tpl.Accounts {
		a.UserID = userID
		a.Currency = "USD"
		got, err := s.CreateAccount(ctx, a)
		if err != nil {
			return created, err
		}
		created = append(created, got)
	}
	return created, nil
}
