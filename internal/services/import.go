package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/storage"
)

// ImportItem is one row of a bulk import. Account references fall back to
// the batch defaults when absent.
type ImportItem struct {
	Description   string
	Amount        string
	Date          *time.Time
	FromAccountID *int64
	ToAccountID   *int64
	CategoryID    *int64
	Notes         string
}

// ImportDefaults supplies fallback accounts for items that do not name
// their own.
type ImportDefaults struct {
	FromAccountID *int64
	ToAccountID   *int64
}

// ImportResult reports the outcome of a single item. Err is empty on
// success.
type ImportResult struct {
	Success     bool
	Transaction core.Transaction
	Err         string
}

const (
	importedDescription = "Imported transaction"
	importedNotes       = "Imported from CSV"
)

// ImportTransactions runs each item as an independent atomic unit. A
// failing item is reported in its slot and does not roll back the items
// committed before it; the batch is deliberately not atomic.
func (s *LedgerService) ImportTransactions(ctx context.Context, userID int64, items []ImportItem, defaults ImportDefaults) ([]ImportResult, error) {
	if len(items) == 0 {
		return nil, core.InvalidArgumentf("no transactions to import")
	}

	// Default accounts are verified once, up front.
	if defaults.FromAccountID != nil {
		if _, err := s.repo.GetAccount(ctx, userID, *defaults.FromAccountID); err != nil {
			return nil, err
		}
	}
	if defaults.ToAccountID != nil {
		if _, err := s.repo.GetAccount(ctx, userID, *defaults.ToAccountID); err != nil {
			return nil, err
		}
	}

	batchID := uuid.NewString()
	results := make([]ImportResult, 0, len(items))
	succeeded := 0

	for _, item := range items {
		tx, err := s.importOne(ctx, userID, item, defaults, batchID)
		if err != nil {
			results = append(results, ImportResult{Err: err.Error()})
			continue
		}
		succeeded++
		results = append(results, ImportResult{Success: true, Transaction: tx})
	}

	slog.InfoContext(ctx, "Import completed",
		"batch_id", batchID,
		"user_id", userID,
		"total", len(items),
		"succeeded", succeeded,
		"failed", len(items)-succeeded)

	return results, nil
}

func (s *LedgerService) importOne(ctx context.Context, userID int64, item ImportItem, defaults ImportDefaults, batchID string) (core.Transaction, error) {
	fromID := item.FromAccountID
	if fromID == nil {
		fromID = defaults.FromAccountID
	}
	toID := item.ToAccountID
	if toID == nil {
		toID = defaults.ToAccountID
	}
	if fromID == nil || toID == nil {
		return core.Transaction{}, core.InvalidArgumentf("missing account information")
	}

	amount, err := core.ParseAmount(item.Amount)
	if err != nil {
		return core.Transaction{}, err
	}

	tx := core.Transaction{
		UserID:        userID,
		Description:   item.Description,
		Amount:        amount,
		Date:          time.Now(),
		FromAccountID: *fromID,
		ToAccountID:   *toID,
		CategoryID:    item.CategoryID,
		Notes:         item.Notes,
	}
	if tx.Description == "" {
		tx.Description = importedDescription
	}
	if tx.Notes == "" {
		tx.Notes = importedNotes
	}
	if item.Date != nil {
		tx.Date = *item.Date
	}

	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	err = s.repo.InTx(ctx, func(st storage.Store) error {
		if err := s.checkReferences(ctx, st, tx); err != nil {
			return err
		}
		deltas := map[int64]decimal.Decimal{
			tx.FromAccountID: tx.Amount.Neg(),
			tx.ToAccountID:   tx.Amount,
		}
		if err := applyDeltas(ctx, st, userID, deltas); err != nil {
			return err
		}
		return st.CreateTransaction(ctx, &tx)
	})
	if err != nil {
		return core.Transaction{}, err
	}

	s.publish(ctx, amqp.EventTransactionImported, tx, batchID)
	return tx, nil
}
