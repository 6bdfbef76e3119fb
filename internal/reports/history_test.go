package reports

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/core"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func TestHistoricalBalancesReversesLaterTransactions(t *testing.T) {
	accounts := []core.Account{
		{ID: 1, Name: "Checking", Type: core.Asset, Balance: dec("500")},
		{ID: 2, Name: "Savings", Type: core.Asset, Balance: dec("1500")},
	}
	transactions := []core.Transaction{
		{ID: 10, Amount: dec("200"), Date: date(2024, time.March, 5), FromAccountID: 1, ToAccountID: 2},
		{ID: 11, Amount: dec("100"), Date: date(2024, time.March, 20), FromAccountID: 1, ToAccountID: 2},
	}

	balances := HistoricalBalances(accounts, transactions, date(2024, time.March, 10))

	if got := balances[1]; !got.Equal(dec("600")) {
		t.Errorf("account 1 balance = %s, want 600", got)
	}
	if got := balances[2]; !got.Equal(dec("1400")) {
		t.Errorf("account 2 balance = %s, want 1400", got)
	}
}

func TestHistoricalBalancesIdentityAtNow(t *testing.T) {
	accounts := []core.Account{
		{ID: 1, Balance: dec("123.45")},
		{ID: 2, Balance: dec("-67.89")},
	}
	transactions := []core.Transaction{
		{ID: 1, Amount: dec("50"), Date: date(2024, time.January, 1), FromAccountID: 1, ToAccountID: 2},
		{ID: 2, Amount: dec("25"), Date: date(2024, time.June, 1), FromAccountID: 2, ToAccountID: 1},
	}

	balances := HistoricalBalances(accounts, transactions, time.Now())

	for _, a := range accounts {
		if got := balances[a.ID]; !got.Equal(a.Balance) {
			t.Errorf("account %d: reconstruction at now = %s, want current balance %s", a.ID, got, a.Balance)
		}
	}
}

func TestHistoricalBalancesBoundaryInclusive(t *testing.T) {
	accounts := []core.Account{{ID: 1, Balance: dec("0")}, {ID: 2, Balance: dec("100")}}
	boundary := time.Date(2024, time.February, 29, 23, 59, 59, 0, time.UTC)
	transactions := []core.Transaction{
		// Dated exactly on the boundary: stays applied.
		{ID: 1, Amount: dec("100"), Date: boundary, FromAccountID: 1, ToAccountID: 2},
	}

	balances := HistoricalBalances(accounts, transactions, boundary)

	if got := balances[2]; !got.Equal(dec("100")) {
		t.Errorf("boundary transaction was reversed: account 2 = %s, want 100", got)
	}
}

func TestBucketBoundariesLeapYear(t *testing.T) {
	now := time.Date(2024, time.April, 15, 10, 0, 0, 0, time.UTC)

	boundaries := BucketBoundaries(PeriodMonth, 3, now)
	if len(boundaries) != 3 {
		t.Fatalf("got %d boundaries, want 3", len(boundaries))
	}

	feb := boundaries[0]
	if feb.Month() != time.February || feb.Day() != 29 {
		t.Errorf("leap-year February boundary = %v, want Feb 29", feb)
	}
	mar := boundaries[1]
	if mar.Month() != time.March || mar.Day() != 31 {
		t.Errorf("March boundary = %v, want Mar 31", mar)
	}
	apr := boundaries[2]
	if apr.Month() != time.April || apr.Day() != 30 {
		t.Errorf("April boundary = %v, want Apr 30", apr)
	}
}

func TestBucketBoundariesNonLeapYear(t *testing.T) {
	now := time.Date(2023, time.March, 10, 0, 0, 0, 0, time.UTC)

	boundaries := BucketBoundaries(PeriodMonth, 2, now)
	feb := boundaries[0]
	if feb.Month() != time.February || feb.Day() != 28 {
		t.Errorf("February boundary = %v, want Feb 28", feb)
	}
}

func TestBuildNetWorthHistory(t *testing.T) {
	accounts := []core.Account{
		{ID: 1, Name: "Checking", Type: core.Asset, Balance: dec("1000")},
		{ID: 2, Name: "Card", Type: core.Liability, Balance: dec("-300")},
	}
	now := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	transactions := []core.Transaction{
		// March payment: checking -> card.
		{ID: 1, Amount: dec("200"), Date: date(2024, time.March, 10), FromAccountID: 1, ToAccountID: 2},
	}

	h := BuildNetWorthHistory(accounts, transactions, PeriodMonth, 2, now)

	if !h.Current.NetWorth.Equal(dec("700")) {
		t.Errorf("current net worth = %s, want 700", h.Current.NetWorth)
	}
	if len(h.History) != 2 {
		t.Fatalf("got %d history points, want 2", len(h.History))
	}

	// End of February: the March payment is reversed out, so checking is
	// back to 1200 and the card owes 500.
	febPoint := h.History[0]
	if !febPoint.Assets.Equal(dec("1200")) {
		t.Errorf("February assets = %s, want 1200", febPoint.Assets)
	}
	if !febPoint.Liabilities.Equal(dec("500")) {
		t.Errorf("February liabilities = %s, want 500", febPoint.Liabilities)
	}
	if !febPoint.NetWorth.Equal(dec("700")) {
		t.Errorf("February net worth = %s, want 700", febPoint.NetWorth)
	}

	marPoint := h.History[1]
	if !marPoint.NetWorth.Equal(dec("700")) {
		t.Errorf("March net worth = %s, want 700", marPoint.NetWorth)
	}
}
