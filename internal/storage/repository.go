// Package storage defines the repository contract consumed by the ledger
// services and its SQLite and Postgres implementations.
package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/core"
)

// TransactionFilter narrows ListTransactions. Zero values mean "no filter".
type TransactionFilter struct {
	From       *time.Time
	To         *time.Time
	AccountID  *int64
	CategoryID *int64
	Search     string
	Limit      int
	Offset     int
}

// AuditEntry is one row of the append-only ledger event trail written by the
// worker.
type AuditEntry struct {
	ID            int64
	UserID        int64
	Event         string
	TransactionID int64
	Amount        decimal.Decimal
	BatchID       string
	OccurredAt    time.Time
}

// Store is the data-access surface available both directly and inside an
// atomic unit. All operations are scoped to a user: requesting another
// user's entity fails with core.ErrNotFound.
type Store interface {
	// Accounts.
	CreateAccount(ctx context.Context, a *core.Account) error
	GetAccount(ctx context.Context, userID, id int64) (core.Account, error)
	ListAccounts(ctx context.Context, userID int64) ([]core.Account, error)
	UpdateAccount(ctx context.Context, a core.Account) error
	// AddToBalance applies a signed delta to a single account balance.
	// Only the ledger service calls this, always inside InTx.
	AddToBalance(ctx context.Context, userID, id int64, delta decimal.Decimal) error
	DeleteAccount(ctx context.Context, userID, id int64) error
	CountAccountTransactions(ctx context.Context, userID, accountID int64) (int64, error)

	// Transactions.
	CreateTransaction(ctx context.Context, tx *core.Transaction) error
	GetTransaction(ctx context.Context, userID, id int64) (core.Transaction, error)
	ListTransactions(ctx context.Context, userID int64, f TransactionFilter) ([]core.Transaction, error)
	UpdateTransaction(ctx context.Context, tx core.Transaction) error
	DeleteTransaction(ctx context.Context, userID, id int64) error

	// Categories, read-mostly: reports classify by them, the ledger
	// validates references against them.
	CreateCategory(ctx context.Context, c *core.Category) error
	GetCategory(ctx context.Context, userID, id int64) (core.Category, error)
	ListCategories(ctx context.Context, userID int64) ([]core.Category, error)

	// Audit trail.
	AppendAuditEntry(ctx context.Context, e AuditEntry) error
}

// Repository is a Store that can open atomic units. InTx runs fn against a
// transactional Store: either every write in fn becomes visible at once, or
// none does. Balance-affecting operations must never write outside InTx.
type Repository interface {
	Store

	InTx(ctx context.Context, fn func(Store) error) error
	Close() error
}
