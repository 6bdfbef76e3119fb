package worker

import (
	"context"
	"fmt"
	"log/slog"

	"tally/internal/amqp"
	"tally/internal/storage"
)

// AuditWorker consumes ledger events and appends them to the audit log.
// The audit trail is append-only: entries are never updated or deleted,
// even when the transaction they describe is.
type AuditWorker struct {
	repo storage.Repository
}

func NewAuditWorker(repo storage.Repository) *AuditWorker {
	return &AuditWorker{repo: repo}
}

// HandleLedgerEvent processes a single ledger event from AMQP
func (w *AuditWorker) HandleLedgerEvent(ctx context.Context, msg *amqp.LedgerEvent) error {
	if msg.Event == "" {
		return fmt.Errorf("ledger event missing event name")
	}

	entry := storage.AuditEntry{
		UserID:        msg.UserID,
		Event:         msg.Event,
		TransactionID: msg.TransactionID,
		Amount:        msg.Amount,
		BatchID:       msg.BatchID,
		OccurredAt:    msg.Timestamp,
	}

	if err := w.repo.AppendAuditEntry(ctx, entry); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}

	slog.InfoContext(ctx, "Audit entry recorded",
		"event", msg.Event,
		"user_id", msg.UserID,
		"transaction_id", msg.TransactionID,
		"amount", msg.Amount.String())

	return nil
}

// EventStream is the consuming surface of the AMQP client.
type EventStream interface {
	ConsumeLedgerEvents(ctx context.Context, handler func(*amqp.LedgerEvent) error) error
	Reconnect(ctx context.Context) error
}

// Run consumes ledger events until the context is cancelled. When the
// broker connection drops, it reconnects with backoff and resumes
// consuming; any other consume failure is fatal.
func (w *AuditWorker) Run(ctx context.Context, events EventStream) error {
	for {
		err := events.ConsumeLedgerEvents(ctx, func(msg *amqp.LedgerEvent) error {
			return w.HandleLedgerEvent(ctx, msg)
		})
		if err == nil || ctx.Err() != nil {
			return err
		}
		if !amqp.IsConnectionError(err) {
			return err
		}

		slog.WarnContext(ctx, "Lost broker connection, reconnecting", "error", err)
		if rerr := events.Reconnect(ctx); rerr != nil {
			return fmt.Errorf("reconnect: %w", rerr)
		}
	}
}
