package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/core"
)

// HistoricalBalances derives every account's balance as of cutoff by
// walking the transaction history backwards: each transaction dated
// strictly after the cutoff has its effect reversed out of the current
// balance. A transaction dated exactly on the cutoff stays applied.
// No snapshots are stored anywhere; history is always recomputed.
func HistoricalBalances(accounts []core.Account, transactions []core.Transaction, cutoff time.Time) map[int64]decimal.Decimal {
	balances := make(map[int64]decimal.Decimal, len(accounts))
	for _, a := range accounts {
		balances[a.ID] = a.Balance
	}

	for _, tx := range transactions {
		if !tx.Date.After(cutoff) {
			continue
		}
		if b, ok := balances[tx.FromAccountID]; ok {
			balances[tx.FromAccountID] = b.Add(tx.Amount)
		}
		if b, ok := balances[tx.ToAccountID]; ok {
			balances[tx.ToAccountID] = b.Sub(tx.Amount)
		}
	}
	return balances
}

// Period granularities for history buckets.
const (
	PeriodDay   = "day"
	PeriodMonth = "month"
	PeriodYear  = "year"
)

// NetWorthPoint is the household net worth as of one bucket boundary.
type NetWorthPoint struct {
	Date        time.Time       `json:"date"`
	Assets      decimal.Decimal `json:"assets"`
	Liabilities decimal.Decimal `json:"liabilities"`
	NetWorth    decimal.Decimal `json:"net_worth"`
}

// NetWorthHistory holds the current net worth and one point per bucket,
// oldest first.
type NetWorthHistory struct {
	Current NetWorthPoint   `json:"current"`
	History []NetWorthPoint `json:"history"`
}

// BucketBoundaries returns the last count calendar-aligned bucket ends for
// the given granularity, oldest first, anchored at now. Month and year
// buckets end on the true last instant of the calendar unit, so February
// in a leap year ends on the 29th.
func BucketBoundaries(period string, count int, now time.Time) []time.Time {
	if count <= 0 {
		return nil
	}
	boundaries := make([]time.Time, 0, count)
	loc := now.Location()

	for i := count - 1; i >= 0; i-- {
		var end time.Time
		switch period {
		case PeriodDay:
			d := now.AddDate(0, 0, -i)
			end = time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), loc)
		case PeriodYear:
			end = time.Date(now.Year()-i, time.December, 31, 23, 59, 59, int(time.Second-time.Nanosecond), loc)
		default: // month
			// Day zero of the following month is the last day of this one.
			first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, -i, 0)
			end = time.Date(first.Year(), first.Month()+1, 0, 23, 59, 59, int(time.Second-time.Nanosecond), loc)
		}
		boundaries = append(boundaries, end)
	}
	return boundaries
}

// BuildNetWorthHistory reconstructs total assets, liabilities and net
// worth at each bucket boundary. Liabilities carry negative balances and
// are totalled by absolute value, so net worth is assets minus the
// liability magnitude.
func BuildNetWorthHistory(accounts []core.Account, transactions []core.Transaction, period string, count int, now time.Time) NetWorthHistory {
	history := make([]NetWorthPoint, 0, count)
	for _, boundary := range BucketBoundaries(period, count, now) {
		balances := HistoricalBalances(accounts, transactions, boundary)
		history = append(history, netWorthAt(accounts, balances, boundary))
	}

	current := make(map[int64]decimal.Decimal, len(accounts))
	for _, a := range accounts {
		current[a.ID] = a.Balance
	}

	return NetWorthHistory{
		Current: netWorthAt(accounts, current, now),
		History: history,
	}
}

func netWorthAt(accounts []core.Account, balances map[int64]decimal.Decimal, at time.Time) NetWorthPoint {
	assets := decimal.Zero
	liabilities := decimal.Zero
	for _, a := range accounts {
		b := balances[a.ID]
		switch a.Type {
		case core.Asset:
			assets = assets.Add(b)
		case core.Liability:
			liabilities = liabilities.Add(b.Abs())
		}
	}
	return NetWorthPoint{
		Date:        at,
		Assets:      assets,
		Liabilities: liabilities,
		NetWorth:    assets.Sub(liabilities),
	}
}
