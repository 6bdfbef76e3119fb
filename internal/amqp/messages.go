package amqp

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger event names, used as the Event field of LedgerEvent.
const (
	EventTransactionCreated  = "transaction.created"
	EventTransactionUpdated  = "transaction.updated"
	EventTransactionDeleted  = "transaction.deleted"
	EventTransactionImported = "transaction.imported"
)

// LedgerEvent is the message published after every committed ledger write.
// It carries enough to build an audit record without a database round-trip.
type LedgerEvent struct {
	Event         string          `json:"event"`
	UserID        int64           `json:"user_id"`
	TransactionID int64           `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	BatchID       string          `json:"batch_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

func NewLedgerEvent(event string, userID, transactionID int64, amount decimal.Decimal, batchID string) *LedgerEvent {
	return &LedgerEvent{
		Event:         event,
		UserID:        userID,
		TransactionID: transactionID,
		Amount:        amount,
		BatchID:       batchID,
		Timestamp:     time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventFromJSON creates an event from JSON bytes
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
