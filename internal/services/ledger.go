// Package services implements the write side of the ledger: the balance
// maintainer, account operations and bulk import.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/storage"
)

// LedgerService keeps account balances consistent with the transaction
// ledger. Every operation that touches a balance runs inside a single
// repository transaction: validation happens before any mutation, and a
// failure during the mutation phase leaves state untouched.
type LedgerService struct {
	repo   storage.Repository
	events *amqp.Client // optional, nil disables event publishing
}

func NewLedgerService(repo storage.Repository, events *amqp.Client) *LedgerService {
	return &LedgerService{repo: repo, events: events}
}

// TransactionChanges carries the mutable transaction fields for an update.
// Nil means "leave unchanged". Category can be set but not cleared, matching
// the external contract.
type TransactionChanges struct {
	Description     *string
	Amount          *decimal.Decimal
	Date            *time.Time
	FromAccountID   *int64
	ToAccountID     *int64
	CategoryID      *int64
	Notes           *string
	PrincipalAmount *decimal.Decimal
	InterestAmount  *decimal.Decimal
	FeeAmount       *decimal.Decimal
	IsExtraPayment  *bool
}

// CreateTransaction validates the transaction, applies its double-entry
// effect and persists the record as one atomic unit.
func (s *LedgerService) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	err := s.repo.InTx(ctx, func(st storage.Store) error {
		if err := s.checkReferences(ctx, st, tx); err != nil {
			return err
		}

		deltas := map[int64]decimal.Decimal{
			tx.FromAccountID: tx.Amount.Neg(),
			tx.ToAccountID:   tx.Amount,
		}
		if err := applyDeltas(ctx, st, tx.UserID, deltas); err != nil {
			return err
		}
		return st.CreateTransaction(ctx, &tx)
	})
	if err != nil {
		return core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Transaction created",
		"id", tx.ID,
		"user_id", tx.UserID,
		"amount", tx.Amount.String(),
		"from_account_id", tx.FromAccountID,
		"to_account_id", tx.ToAccountID)

	s.publish(ctx, amqp.EventTransactionCreated, tx, "")
	return tx, nil
}

// UpdateTransaction loads the stored record, reverses its stored effect and
// applies the new one inside the same atomic unit. The reversal is always
// computed from the previously stored accounts and amount, never from the
// incoming values; applying the new values first would corrupt balances.
//
// When neither accounts nor amount change, reverse-old plus apply-same-old
// nets to a zero delta per account. The deltas are still applied rather than
// skipped, so the no-op is an algebraic consequence, not a code path.
func (s *LedgerService) UpdateTransaction(ctx context.Context, userID, id int64, changes TransactionChanges) (core.Transaction, error) {
	var updated core.Transaction

	err := s.repo.InTx(ctx, func(st storage.Store) error {
		existing, err := st.GetTransaction(ctx, userID, id)
		if err != nil {
			return err
		}

		updated = merge(existing, changes)
		if err := updated.Validate(); err != nil {
			return err
		}
		if err := s.checkReferences(ctx, st, updated); err != nil {
			return err
		}

		deltas := make(map[int64]decimal.Decimal)
		// Reverse the stored effect.
		add(deltas, existing.FromAccountID, existing.Amount)
		add(deltas, existing.ToAccountID, existing.Amount.Neg())
		// Apply the new effect.
		add(deltas, updated.FromAccountID, updated.Amount.Neg())
		add(deltas, updated.ToAccountID, updated.Amount)

		if err := applyDeltas(ctx, st, userID, deltas); err != nil {
			return err
		}
		return st.UpdateTransaction(ctx, updated)
	})
	if err != nil {
		return core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Transaction updated",
		"id", id,
		"user_id", userID,
		"amount", updated.Amount.String())

	s.publish(ctx, amqp.EventTransactionUpdated, updated, "")
	return updated, nil
}

// DeleteTransaction reverses the stored effect and removes the record as one
// atomic unit. No tombstone remains.
func (s *LedgerService) DeleteTransaction(ctx context.Context, userID, id int64) error {
	var deleted core.Transaction

	err := s.repo.InTx(ctx, func(st storage.Store) error {
		existing, err := st.GetTransaction(ctx, userID, id)
		if err != nil {
			return err
		}
		deleted = existing

		deltas := map[int64]decimal.Decimal{
			existing.FromAccountID: existing.Amount,
			existing.ToAccountID:   existing.Amount.Neg(),
		}
		if err := applyDeltas(ctx, st, userID, deltas); err != nil {
			return err
		}
		return st.DeleteTransaction(ctx, userID, id)
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Transaction deleted", "id", id, "user_id", userID)

	s.publish(ctx, amqp.EventTransactionDeleted, deleted, "")
	return nil
}

// checkReferences verifies that both accounts and the optional category
// exist and belong to the transaction's user.
func (s *LedgerService) checkReferences(ctx context.Context, st storage.Store, tx core.Transaction) error {
	if _, err := st.GetAccount(ctx, tx.UserID, tx.FromAccountID); err != nil {
		return fmt.Errorf("source account: %w", err)
	}
	if _, err := st.GetAccount(ctx, tx.UserID, tx.ToAccountID); err != nil {
		return fmt.Errorf("destination account: %w", err)
	}
	if tx.CategoryID != nil {
		if _, err := st.GetCategory(ctx, tx.UserID, *tx.CategoryID); err != nil {
			return err
		}
	}
	return nil
}

func merge(tx core.Transaction, c TransactionChanges) core.Transaction {
	if c.Description != nil {
		tx.Description = *c.Description
	}
	if c.Amount != nil {
		tx.Amount = *c.Amount
	}
	if c.Date != nil {
		tx.Date = *c.Date
	}
	if c.FromAccountID != nil {
		tx.FromAccountID = *c.FromAccountID
	}
	if c.ToAccountID != nil {
		tx.ToAccountID = *c.ToAccountID
	}
	if c.CategoryID != nil {
		id := *c.CategoryID
		tx.CategoryID = &id
	}
	if c.Notes != nil {
		tx.Notes = *c.Notes
	}
	if c.PrincipalAmount != nil {
		d := *c.PrincipalAmount
		tx.PrincipalAmount = &d
	}
	if c.InterestAmount != nil {
		d := *c.InterestAmount
		tx.InterestAmount = &d
	}
	if c.FeeAmount != nil {
		d := *c.FeeAmount
		tx.FeeAmount = &d
	}
	if c.IsExtraPayment != nil {
		tx.IsExtraPayment = *c.IsExtraPayment
	}
	return tx
}

func add(deltas map[int64]decimal.Decimal, accountID int64, d decimal.Decimal) {
	deltas[accountID] = deltas[accountID].Add(d)
}

// applyDeltas writes the netted per-account deltas in ascending account-ID
// order. The fixed order keeps two-account operations from deadlocking on
// row locks when they overlap.
func applyDeltas(ctx context.Context, st storage.Store, userID int64, deltas map[int64]decimal.Decimal) error {
	ids := make([]int64, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if err := st.AddToBalance(ctx, userID, id, deltas[id]); err != nil {
			return err
		}
	}
	return nil
}

// publish emits a ledger event after a successful commit. Failures are
// logged, never surfaced: the write already happened.
func (s *LedgerService) publish(ctx context.Context, event string, tx core.Transaction, batchID string) {
	if s.events == nil {
		return
	}
	msg := amqp.NewLedgerEvent(event, tx.UserID, tx.ID, tx.Amount, batchID)
	if err := s.events.PublishLedgerEvent(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"event", event,
			"transaction_id", tx.ID,
			"error", err)
	}
}
