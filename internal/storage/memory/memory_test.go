package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/storage"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seedAccount(t *testing.T, r *Repository, userID int64, name, balance string) core.Account {
	t.Helper()
	a := core.Account{UserID: userID, Name: name, Type: core.Asset, Balance: dec(balance), Currency: "USD"}
	if err := r.CreateAccount(context.Background(), &a); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return a
}

func TestInTxRollbackRestoresState(t *testing.T) {
	r := NewRepository()
	ctx := context.Background()

	a := seedAccount(t, r, 1, "A", "100")
	boom := errors.New("boom")

	err := r.InTx(ctx, func(st storage.Store) error {
		if err := st.AddToBalance(ctx, 1, a.ID, dec("-40")); err != nil {
			return err
		}
		tx := core.Transaction{
			UserID: 1, Description: "partial", Amount: dec("40"),
			Date: time.Now(), FromAccountID: a.ID, ToAccountID: 99,
		}
		if err := st.CreateTransaction(ctx, &tx); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx() error = %v, want boom", err)
	}

	got, err := r.GetAccount(ctx, 1, a.ID)
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if !got.Balance.Equal(dec("100")) {
		t.Errorf("balance after rollback = %s, want 100", got.Balance)
	}

	txs, err := r.ListTransactions(ctx, 1, storage.TransactionFilter{})
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(txs) != 0 {
		t.Errorf("rollback left %d transactions behind", len(txs))
	}
}

func TestInTxCommitKeepsState(t *testing.T) {
	r := NewRepository()
	ctx := context.Background()

	a := seedAccount(t, r, 1, "A", "100")

	err := r.InTx(ctx, func(st storage.Store) error {
		return st.AddToBalance(ctx, 1, a.ID, dec("25"))
	})
	if err != nil {
		t.Fatalf("InTx() error = %v", err)
	}

	got, _ := r.GetAccount(ctx, 1, a.ID)
	if !got.Balance.Equal(dec("125")) {
		t.Errorf("balance = %s, want 125", got.Balance)
	}
}

func TestOwnershipScoping(t *testing.T) {
	r := NewRepository()
	ctx := context.Background()

	a := seedAccount(t, r, 1, "Mine", "50")
	seedAccount(t, r, 2, "Theirs", "70")

	if _, err := r.GetAccount(ctx, 2, a.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("cross-owner get error = %v, want ErrNotFound", err)
	}

	mine, _ := r.ListAccounts(ctx, 1)
	if len(mine) != 1 || mine[0].Name != "Mine" {
		t.Errorf("user 1 accounts = %+v, want only Mine", mine)
	}
}

func TestListTransactionsFilterAndOrder(t *testing.T) {
	r := NewRepository()
	ctx := context.Background()

	a := seedAccount(t, r, 1, "A", "0")
	b := seedAccount(t, r, 1, "B", "0")

	mk := func(desc string, day int) core.Transaction {
		tx := core.Transaction{
			UserID: 1, Description: desc, Amount: dec("1"),
			Date:          time.Date(2024, time.March, day, 0, 0, 0, 0, time.UTC),
			FromAccountID: a.ID, ToAccountID: b.ID,
		}
		if err := r.CreateTransaction(ctx, &tx); err != nil {
			t.Fatalf("create %s: %v", desc, err)
		}
		return tx
	}

	mk("groceries", 1)
	mk("rent", 15)
	mk("coffee", 10)

	all, err := r.ListTransactions(ctx, 1, storage.TransactionFilter{})
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d transactions, want 3", len(all))
	}
	// Newest first.
	if all[0].Description != "rent" || all[2].Description != "groceries" {
		t.Errorf("order = [%s %s %s], want newest first", all[0].Description, all[1].Description, all[2].Description)
	}

	from := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)
	windowed, _ := r.ListTransactions(ctx, 1, storage.TransactionFilter{From: &from})
	if len(windowed) != 2 {
		t.Errorf("from-filtered count = %d, want 2", len(windowed))
	}

	found, _ := r.ListTransactions(ctx, 1, storage.TransactionFilter{Search: "COFF"})
	if len(found) != 1 || found[0].Description != "coffee" {
		t.Errorf("search result = %+v, want coffee", found)
	}

	paged, _ := r.ListTransactions(ctx, 1, storage.TransactionFilter{Limit: 1, Offset: 1})
	if len(paged) != 1 || paged[0].Description != "coffee" {
		t.Errorf("paged result = %+v, want coffee", paged)
	}
}

func TestAuditTrailAppendOnly(t *testing.T) {
	r := NewRepository()
	ctx := context.Background()

	for i, event := range []string{"transaction.created", "transaction.deleted"} {
		err := r.AppendAuditEntry(ctx, storage.AuditEntry{
			UserID:        1,
			Event:         event,
			TransactionID: int64(i + 1),
			Amount:        dec("10"),
			OccurredAt:    time.Now(),
		})
		if err != nil {
			t.Fatalf("AppendAuditEntry() error = %v", err)
		}
	}

	entries := r.AuditEntries(1)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].ID == 0 || entries[1].ID <= entries[0].ID {
		t.Errorf("audit ids not monotonic: %d, %d", entries[0].ID, entries[1].ID)
	}
	if len(r.AuditEntries(2)) != 0 {
		t.Error("audit trail leaked across owners")
	}
}
