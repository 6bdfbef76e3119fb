package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/storage"
	"tally/internal/storage/memory"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func mustAccount(t *testing.T, repo *memory.Repository, userID int64, name string, kind core.AccountType, balance string) core.Account {
	t.Helper()
	a := core.Account{
		UserID:   userID,
		Name:     name,
		Type:     kind,
		Balance:  dec(balance),
		Currency: "USD",
	}
	if err := repo.CreateAccount(context.Background(), &a); err != nil {
		t.Fatalf("create account %s: %v", name, err)
	}
	return a
}

func balanceOf(t *testing.T, repo *memory.Repository, userID, id int64) decimal.Decimal {
	t.Helper()
	a, err := repo.GetAccount(context.Background(), userID, id)
	if err != nil {
		t.Fatalf("get account %d: %v", id, err)
	}
	return a.Balance
}

func TestCreateTransactionAppliesEffect(t *testing.T) {
	repo := memory.NewRepository()
	svc := NewLedgerService(repo, nil)
	ctx := context.Background()

	x := mustAccount(t, repo, 1, "X", core.Asset, "100")
	y := mustAccount(t, repo, 1, "Y", core.Asset, "0")

	created, err := svc.CreateTransaction(ctx, core.Transaction{
		UserID:        1,
		Description:   "transfer",
		Amount:        dec("100"),
		Date:          time.Now(),
		FromAccountID: x.ID,
		ToAccountID:   y.ID,
	})
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}
	if created.ID == 0 {
		t.Error("created transaction has no id")
	}

	if got := balanceOf(t, repo, 1, x.ID); !got.IsZero() {
		t.Errorf("X balance = %s, want 0", got)
	}
	if got := balanceOf(t, repo, 1, y.ID); !got.Equal(dec("100")) {
		t.Errorf("Y balance = %s, want 100", got)
	}
}

func TestUpdateTransactionReversesStoredEffect(t *testing.T) {
	repo := memory.NewRepository()
	svc := NewLedgerService(repo, nil)
	ctx := context.Background()

	x := mustAccount(t, repo, 1, "X", core.Asset, "100")
	y := mustAccount(t, repo, 1, "Y", core.Asset, "0")

	tx, err := svc.CreateTransaction(ctx, core.Transaction{
		UserID:        1,
		Description:   "transfer",
		Amount:        dec("100"),
		Date:          time.Now(),
		FromAccountID: x.ID,
		ToAccountID:   y.ID,
	})
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}

	newAmount := dec("40")
	if _, err := svc.UpdateTransaction(ctx, 1, tx.ID, TransactionChanges{Amount: &newAmount}); err != nil {
		t.Fatalf("UpdateTransaction() error = %v", err)
	}

	if got := balanceOf(t, repo, 1, x.ID); !got.Equal(dec("60")) {
		t.Errorf("X balance = %s, want 60", got)
	}
	if got := balanceOf(t, repo, 1, y.ID); !got.Equal(dec("40")) {
		t.Errorf("Y balance = %s, want 40", got)
	}
}

func TestUpdateTransactionMovesAccounts(t *testing.T) {
	repo := memory.NewRepository()
	svc := NewLedgerService(repo, nil)
	ctx := context.Background()

	a := mustAccount(t, repo, 1, "A", core.Asset, "100")
	b := mustAccount(t, repo, 1, "B", core.Asset, "0")
	c := mustAccount(t, repo, 1, "C", core.Asset, "0")

	tx, err := svc.CreateTransaction(ctx, core.Transaction{
		UserID:        1,
		Description:   "transfer",
		Amount:        dec("30"),
		Date:          time.Now(),
		FromAccountID: a.ID,
		ToAccountID:   b.ID,
	})
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}

	// Redirect the destination from B to C. The reversal must be
	// computed against the stored destination B, not the incoming C.
	if _, err := svc.UpdateTransaction(ctx, 1, tx.ID, TransactionChanges{ToAccountID: &c.ID}); err != nil {
		t.Fatalf("UpdateTransaction() error = %v", err)
	}

	if got := balanceOf(t, repo, 1, a.ID); !got.Equal(dec("70")) {
		t.Errorf("A balance = %s, want 70", got)
	}
	if got := balanceOf(t, repo, 1, b.ID); !got.IsZero() {
		t.Errorf("B balance = %s, want 0 after redirect", got)
	}
	if got := balanceOf(t, repo, 1, c.ID); !got.Equal(dec("30")) {
		t.Errorf("C balance = %s, want 30", got)
	}
}

func TestUpdateTransactionUnchangedIsAlgebraicNoop(t *testing.T) {
	repo := memory.NewRepository()
	svc := NewLedgerService(repo, nil)
	ctx := context.Background()

	x := mustAccount(t, repo, 1, "X", core.Asset, "100")
	y := mustAccount(t, repo, 1, "Y", core.Asset, "0")

	tx, err := svc.CreateTransaction(ctx, core.Transaction{
		UserID:        1,
		Description:   "transfer",
		Amount:        dec("25"),
		Date:          time.Now(),
		FromAccountID: x.ID,
		ToAccountID:   y.ID,
	})
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}

	// Touch only the description; accounts and amount are untouched, so
	// reverse-old plus apply-same-old must net to zero.
	desc := "renamed"
	if _, err := svc.UpdateTransaction(ctx, 1, tx.ID, TransactionChanges{Description: &desc}); err != nil {
		t.Fatalf("UpdateTransaction() error = %v", err)
	}

	if got := balanceOf(t, repo, 1, x.ID); !got.Equal(dec("75")) {
		t.Errorf("X balance = %s, want 75", got)
	}
	if got := balanceOf(t, repo, 1, y.ID); !got.Equal(dec("25")) {
		t.Errorf("Y balance = %s, want 25", got)
	}
}

func TestDeleteTransactionRestoresBalances(t *testing.T) {
	repo := memory.NewRepository()
	svc := NewLedgerService(repo, nil)
	ctx := context.Background()

	x := mustAccount(t, repo, 1, "X", core.Asset, "100")
	y := mustAccount(t, repo, 1, "Y", core.Asset, "50")

	tx, err := svc.CreateTransaction(ctx, core.Transaction{
		UserID:        1,
		Description:   "transfer",
		Amount:        dec("33.33"),
		Date:          time.Now(),
		FromAccountID: x.ID,
		ToAccountID:   y.ID,
	})
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}

	if err := svc.DeleteTransaction(ctx, 1, tx.ID); err != nil {
		t.Fatalf("DeleteTransaction() error = %v", err)
	}

	if got := balanceOf(t, repo, 1, x.ID); !got.Equal(dec("100")) {
		t.Errorf("X balance = %s, want 100", got)
	}
	if got := balanceOf(t, repo, 1, y.ID); !got.Equal(dec("50")) {
		t.Errorf("Y balance = %s, want 50", got)
	}

	if _, err := repo.GetTransaction(ctx, 1, tx.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("deleted transaction still readable, err = %v", err)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	repo := memory.NewRepository()
	svc := NewLedgerService(repo, nil)
	ctx := context.Background()

	x := mustAccount(t, repo, 1, "X", core.Asset, "100")
	y := mustAccount(t, repo, 1, "Y", core.Asset, "0")

	tests := []struct {
		name string
		tx   core.Transaction
		want error
	}{
		{
			name: "non-positive amount",
			tx: core.Transaction{
				UserID: 1, Description: "bad", Amount: dec("0"),
				Date: time.Now(), FromAccountID: x.ID, ToAccountID: y.ID,
			},
			want: core.ErrInvalidArgument,
		},
		{
			name: "same source and destination",
			tx: core.Transaction{
				UserID: 1, Description: "bad", Amount: dec("10"),
				Date: time.Now(), FromAccountID: x.ID, ToAccountID: x.ID,
			},
			want: core.ErrInvalidArgument,
		},
		{
			name: "missing destination account",
			tx: core.Transaction{
				UserID: 1, Description: "bad", Amount: dec("10"),
				Date: time.Now(), FromAccountID: x.ID, ToAccountID: 999,
			},
			want: core.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateTransaction(ctx, tt.tx)
			if !errors.Is(err, tt.want) {
				t.Errorf("CreateTransaction() error = %v, want %v", err, tt.want)
			}

			// No partial writes: balances are exactly as seeded.
			if got := balanceOf(t, repo, 1, x.ID); !got.Equal(dec("100")) {
				t.Errorf("X balance = %s, want 100 (no partial writes)", got)
			}
			if got := balanceOf(t, repo, 1, y.ID); !got.IsZero() {
				t.Errorf("Y balance = %s, want 0 (no partial writes)", got)
			}
		})
	}
}

func TestTransactionOwnershipIsNotFound(t *testing.T) {
	repo := memory.NewRepository()
	svc := NewLedgerService(repo, nil)
	ctx := context.Background()

	x := mustAccount(t, repo, 1, "X", core.Asset, "100")
	y := mustAccount(t, repo, 1, "Y", core.Asset, "0")

	tx, err := svc.CreateTransaction(ctx, core.Transaction{
		UserID:        1,
		Description:   "transfer",
		Amount:        dec("10"),
		Date:          time.Now(),
		FromAccountID: x.ID,
		ToAccountID:   y.ID,
	})
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}

	// User 2 must not see, change or delete user 1's record.
	if _, err := repo.GetTransaction(ctx, 2, tx.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("cross-owner get error = %v, want ErrNotFound", err)
	}
	amount := dec("99")
	if _, err := svc.UpdateTransaction(ctx, 2, tx.ID, TransactionChanges{Amount: &amount}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("cross-owner update error = %v, want ErrNotFound", err)
	}
	if err := svc.DeleteTransaction(ctx, 2, tx.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("cross-owner delete error = %v, want ErrNotFound", err)
	}

	if got := balanceOf(t, repo, 1, x.ID); !got.Equal(dec("90")) {
		t.Errorf("X balance = %s, want 90 (untouched by cross-owner calls)", got)
	}
}

func TestImportTransactionsPartialBatch(t *testing.T) {
	repo := memory.NewRepository()
	svc := NewLedgerService(repo, nil)
	ctx := context.Background()

	x := mustAccount(t, repo, 1, "X", core.Asset, "1000")
	y := mustAccount(t, repo, 1, "Y", core.Asset, "0")

	missing := int64(999)
	items := []ImportItem{
		{Description: "one", Amount: "10"},
		{Description: "two", Amount: "20", ToAccountID: &missing},
		{Description: "three", Amount: "30"},
	}

	results, err := svc.ImportTransactions(ctx, 1, items, ImportDefaults{
		FromAccountID: &x.ID,
		ToAccountID:   &y.ID,
	})
	if err != nil {
		t.Fatalf("ImportTransactions() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	if !results[0].Success || !results[2].Success {
		t.Errorf("items 1 and 3 should succeed: %+v", results)
	}
	if results[1].Success || results[1].Err == "" {
		t.Errorf("item 2 should fail with a reason, got %+v", results[1])
	}

	// Items 1 and 3 committed; item 2 rolled back alone.
	if got := balanceOf(t, repo, 1, x.ID); !got.Equal(dec("960")) {
		t.Errorf("X balance = %s, want 960", got)
	}
	if got := balanceOf(t, repo, 1, y.ID); !got.Equal(dec("40")) {
		t.Errorf("Y balance = %s, want 40", got)
	}
}

func TestImportTransactionsEmptyBatch(t *testing.T) {
	repo := memory.NewRepository()
	svc := NewLedgerService(repo, nil)

	_, err := svc.ImportTransactions(context.Background(), 1, nil, ImportDefaults{})
	if !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("empty import error = %v, want ErrInvalidArgument", err)
	}
}

func TestImportTransactionsDefaults(t *testing.T) {
	repo := memory.NewRepository()
	svc := NewLedgerService(repo, nil)
	ctx := context.Background()

	x := mustAccount(t, repo, 1, "X", core.Asset, "100")
	y := mustAccount(t, repo, 1, "Y", core.Asset, "0")

	results, err := svc.ImportTransactions(ctx, 1, []ImportItem{
		{Amount: "15"}, // description and accounts all defaulted
	}, ImportDefaults{FromAccountID: &x.ID, ToAccountID: &y.ID})
	if err != nil {
		t.Fatalf("ImportTransactions() error = %v", err)
	}
	if !results[0].Success {
		t.Fatalf("item should succeed: %+v", results[0])
	}

	tx := results[0].Transaction
	if tx.Description != "Imported transaction" {
		t.Errorf("description = %q, want %q", tx.Description, "Imported transaction")
	}
	if tx.Notes != "Imported from CSV" {
		t.Errorf("notes = %q, want %q", tx.Notes, "Imported from CSV")
	}
	if tx.Date.IsZero() {
		t.Error("date should default to now")
	}
}

// Balance invariant: after an arbitrary write sequence, every balance
// equals its seed plus the summed effects of surviving transactions.
func TestBalanceInvariantAfterWriteSequence(t *testing.T) {
	repo := memory.NewRepository()
	svc := NewLedgerService(repo, nil)
	ctx := context.Background()

	seed := map[string]string{"A": "500", "B": "200", "C": "0"}
	accounts := map[string]core.Account{}
	for name, bal := range seed {
		accounts[name] = mustAccount(t, repo, 1, name, core.Asset, bal)
	}

	mk := func(amount, from, to string) core.Transaction {
		tx, err := svc.CreateTransaction(ctx, core.Transaction{
			UserID:        1,
			Description:   from + "->" + to,
			Amount:        dec(amount),
			Date:          time.Now(),
			FromAccountID: accounts[from].ID,
			ToAccountID:   accounts[to].ID,
		})
		if err != nil {
			t.Fatalf("create %s->%s: %v", from, to, err)
		}
		return tx
	}

	t1 := mk("100", "A", "B")
	mk("50", "B", "C")
	t3 := mk("25", "C", "A")

	amount := dec("75")
	if _, err := svc.UpdateTransaction(ctx, 1, t1.ID, TransactionChanges{Amount: &amount}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := svc.DeleteTransaction(ctx, 1, t3.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	remaining, err := repo.ListTransactions(ctx, 1, storage.TransactionFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	for name, a := range accounts {
		want := dec(seed[name])
		for _, tx := range remaining {
			want = want.Add(tx.Effect(a.ID))
		}
		if got := balanceOf(t, repo, 1, a.ID); !got.Equal(want) {
			t.Errorf("account %s balance = %s, want %s", name, got, want)
		}
	}
}
