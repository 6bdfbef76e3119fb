// Package reports builds read-only aggregates over ledger snapshots.
// Every function here is pure: it takes accounts, transactions and
// categories as values and never touches storage or mutates state.
package reports

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/core"
)

const uncategorized = "Uncategorized"

// AccountBalance is one account's contribution to a balance sheet side.
type AccountBalance struct {
	AccountID int64           `json:"account_id"`
	Name      string          `json:"name"`
	Category  string          `json:"category,omitempty"`
	Balance   decimal.Decimal `json:"balance"`
}

// BalanceSheetSide is one half of the balance sheet.
type BalanceSheetSide struct {
	Total      decimal.Decimal            `json:"total"`
	Accounts   []AccountBalance           `json:"accounts"`
	ByCategory map[string]decimal.Decimal `json:"by_category"`
}

type BalanceSheet struct {
	AsOf        time.Time        `json:"as_of"`
	Assets      BalanceSheetSide `json:"assets"`
	Liabilities BalanceSheetSide `json:"liabilities"`
	NetWorth    decimal.Decimal  `json:"net_worth"`
}

// BuildBalanceSheet partitions accounts by kind and totals each side.
// Liability balances are stored negative and totalled by absolute value.
// When asOf is non-zero, balances are first reconstructed as of that
// instant from the transaction history.
func BuildBalanceSheet(accounts []core.Account, transactions []core.Transaction, asOf time.Time) BalanceSheet {
	balances := make(map[int64]decimal.Decimal, len(accounts))
	if asOf.IsZero() {
		asOf = time.Now()
		for _, a := range accounts {
			balances[a.ID] = a.Balance
		}
	} else {
		balances = HistoricalBalances(accounts, transactions, asOf)
	}

	assets := BalanceSheetSide{Total: decimal.Zero, ByCategory: map[string]decimal.Decimal{}}
	liabilities := BalanceSheetSide{Total: decimal.Zero, ByCategory: map[string]decimal.Decimal{}}

	for _, a := range accounts {
		b := balances[a.ID]
		entry := AccountBalance{AccountID: a.ID, Name: a.Name, Category: a.Category, Balance: b}
		switch a.Type {
		case core.Asset:
			assets.Accounts = append(assets.Accounts, entry)
			assets.Total = assets.Total.Add(b)
			assets.ByCategory[a.Category] = assets.ByCategory[a.Category].Add(b)
		case core.Liability:
			liabilities.Accounts = append(liabilities.Accounts, entry)
			liabilities.Total = liabilities.Total.Add(b.Abs())
			liabilities.ByCategory[a.Category] = liabilities.ByCategory[a.Category].Add(b.Abs())
		}
	}

	return BalanceSheet{
		AsOf:        asOf,
		Assets:      assets,
		Liabilities: liabilities,
		NetWorth:    assets.Total.Sub(liabilities.Total),
	}
}

// CategoryAmount is one category's total within an income statement side.
type CategoryAmount struct {
	CategoryID *int64          `json:"category_id,omitempty"`
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`
}

type IncomeStatement struct {
	From       time.Time        `json:"from"`
	To         time.Time        `json:"to"`
	Income     decimal.Decimal  `json:"income"`
	Expenses   decimal.Decimal  `json:"expenses"`
	NetIncome  decimal.Decimal  `json:"net_income"`
	ByIncome   []CategoryAmount `json:"income_by_category"`
	ByExpenses []CategoryAmount `json:"expenses_by_category"`
}

// BuildIncomeStatement classifies the transactions in [from, to] by their
// category's direction and totals each side. Transactions without a
// category are excluded from both totals.
func BuildIncomeStatement(transactions []core.Transaction, categories []core.Category, from, to time.Time) IncomeStatement {
	byID := categoryIndex(categories)

	incomeTotals := map[int64]decimal.Decimal{}
	expenseTotals := map[int64]decimal.Decimal{}
	income := decimal.Zero
	expenses := decimal.Zero

	for _, tx := range inRange(transactions, from, to) {
		if tx.CategoryID == nil {
			continue
		}
		cat, ok := byID[*tx.CategoryID]
		if !ok {
			continue
		}
		switch cat.Type {
		case core.Income:
			income = income.Add(tx.Amount)
			incomeTotals[cat.ID] = incomeTotals[cat.ID].Add(tx.Amount)
		case core.Expense:
			expenses = expenses.Add(tx.Amount)
			expenseTotals[cat.ID] = expenseTotals[cat.ID].Add(tx.Amount)
		}
	}

	return IncomeStatement{
		From:       from,
		To:         to,
		Income:     income,
		Expenses:   expenses,
		NetIncome:  income.Sub(expenses),
		ByIncome:   sortedCategoryAmounts(incomeTotals, byID),
		ByExpenses: sortedCategoryAmounts(expenseTotals, byID),
	}
}

// CategorySpending is one category's share of spending in a window.
type CategorySpending struct {
	CategoryID *int64          `json:"category_id,omitempty"`
	Name       string          `json:"name"`
	Color      string          `json:"color,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Count      int             `json:"count"`
	Percentage float64         `json:"percentage"`
}

type SpendingReport struct {
	From          time.Time          `json:"from"`
	To            time.Time          `json:"to"`
	TotalSpending decimal.Decimal    `json:"total_spending"`
	Categories    []CategorySpending `json:"categories"`
}

// BuildSpendingReport sums expense-direction transactions per category in
// [from, to]. Uncategorized transactions appear in the breakdown but do
// not contribute to the total; percentages are shares of the total, zero
// when the total is zero. Categories come back largest first.
func BuildSpendingReport(transactions []core.Transaction, categories []core.Category, from, to time.Time) SpendingReport {
	byID := categoryIndex(categories)

	type bucket struct {
		spending CategorySpending
	}
	buckets := map[string]*bucket{}
	total := decimal.Zero

	for _, tx := range inRange(transactions, from, to) {
		var cat *core.Category
		if tx.CategoryID != nil {
			if c, ok := byID[*tx.CategoryID]; ok {
				cat = &c
			}
		}

		switch {
		case cat == nil:
			b := buckets[uncategorized]
			if b == nil {
				b = &bucket{spending: CategorySpending{Name: uncategorized}}
				buckets[uncategorized] = b
			}
			b.spending.Amount = b.spending.Amount.Add(tx.Amount)
			b.spending.Count++
		case cat.Type == core.Expense:
			b := buckets[cat.Name]
			if b == nil {
				id := cat.ID
				b = &bucket{spending: CategorySpending{CategoryID: &id, Name: cat.Name, Color: cat.Color}}
				buckets[cat.Name] = b
			}
			b.spending.Amount = b.spending.Amount.Add(tx.Amount)
			b.spending.Count++
			total = total.Add(tx.Amount)
		}
	}

	out := make([]CategorySpending, 0, len(buckets))
	for _, b := range buckets {
		if total.IsPositive() {
			pct, _ := b.spending.Amount.Div(total).Mul(decimal.NewFromInt(100)).Float64()
			b.spending.Percentage = pct
		}
		out = append(out, b.spending)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Amount.Equal(out[j].Amount) {
			return out[i].Amount.GreaterThan(out[j].Amount)
		}
		return out[i].Name < out[j].Name
	})

	return SpendingReport{From: from, To: to, TotalSpending: total, Categories: out}
}

// PeriodStats is one calendar bucket of the transaction time series.
type PeriodStats struct {
	Period  string          `json:"period"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Net     decimal.Decimal `json:"net"`
}

type TransactionStats struct {
	From               time.Time                  `json:"from"`
	To                 time.Time                  `json:"to"`
	TotalIncome        decimal.Decimal            `json:"total_income"`
	TotalExpenses      decimal.Decimal            `json:"total_expenses"`
	NetIncome          decimal.Decimal            `json:"net_income"`
	IncomeByCategory   map[string]decimal.Decimal `json:"income_by_category"`
	ExpensesByCategory map[string]decimal.Decimal `json:"expenses_by_category"`
	TimeSeries         []PeriodStats              `json:"time_series"`
}

// BuildTransactionStats groups the transactions in [from, to] into
// calendar buckets, accumulating income, expense and net per bucket, and
// totals both directions overall and per category name. Uncategorized
// transactions open buckets but contribute to no total. The series comes
// back ordered chronologically by bucket key.
func BuildTransactionStats(transactions []core.Transaction, categories []core.Category, period string, from, to time.Time) TransactionStats {
	byID := categoryIndex(categories)

	var layout string
	switch period {
	case PeriodDay:
		layout = "2006-01-02"
	case PeriodYear:
		layout = "2006"
	default:
		layout = "2006-01"
	}

	stats := TransactionStats{
		From:               from,
		To:                 to,
		TotalIncome:        decimal.Zero,
		TotalExpenses:      decimal.Zero,
		IncomeByCategory:   map[string]decimal.Decimal{},
		ExpensesByCategory: map[string]decimal.Decimal{},
	}

	buckets := map[string]*PeriodStats{}
	for _, tx := range inRange(transactions, from, to) {
		key := tx.Date.Format(layout)
		b := buckets[key]
		if b == nil {
			b = &PeriodStats{Period: key, Income: decimal.Zero, Expense: decimal.Zero}
			buckets[key] = b
		}

		if tx.CategoryID == nil {
			continue
		}
		cat, ok := byID[*tx.CategoryID]
		if !ok {
			continue
		}
		switch cat.Type {
		case core.Income:
			b.Income = b.Income.Add(tx.Amount)
			stats.TotalIncome = stats.TotalIncome.Add(tx.Amount)
			stats.IncomeByCategory[cat.Name] = stats.IncomeByCategory[cat.Name].Add(tx.Amount)
		case core.Expense:
			b.Expense = b.Expense.Add(tx.Amount)
			stats.TotalExpenses = stats.TotalExpenses.Add(tx.Amount)
			stats.ExpensesByCategory[cat.Name] = stats.ExpensesByCategory[cat.Name].Add(tx.Amount)
		}
	}

	series := make([]PeriodStats, 0, len(buckets))
	for _, b := range buckets {
		b.Net = b.Income.Sub(b.Expense)
		series = append(series, *b)
	}
	// Bucket keys are zero-padded so byte order is chronological order.
	sort.Slice(series, func(i, j int) bool { return series[i].Period < series[j].Period })

	stats.NetIncome = stats.TotalIncome.Sub(stats.TotalExpenses)
	stats.TimeSeries = series
	return stats
}

// DebtPayment is the date and amount of a single payment into a debt.
type DebtPayment struct {
	Date   time.Time       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// DebtInsight describes one liability account's payment history and a
// simplified payoff estimate.
type DebtInsight struct {
	AccountID     int64            `json:"account_id"`
	Name          string           `json:"name"`
	Balance       decimal.Decimal  `json:"balance"`
	InterestRate  *decimal.Decimal `json:"interest_rate,omitempty"`
	PaymentAmount *decimal.Decimal `json:"payment_amount,omitempty"`
	TotalPaid     decimal.Decimal  `json:"total_paid"`
	PrincipalPaid decimal.Decimal  `json:"principal_paid"`
	InterestPaid  decimal.Decimal  `json:"interest_paid"`
	PaymentCount  int              `json:"payment_count"`
	LastPayment   *DebtPayment     `json:"last_payment,omitempty"`

	// MonthsToPayoff divides the outstanding balance by the scheduled
	// payment and ignores compounding entirely. It is a rough estimate,
	// not an amortization schedule.
	MonthsToPayoff         *int             `json:"months_to_payoff,omitempty"`
	TotalInterestProjected *decimal.Decimal `json:"total_interest_projected,omitempty"`
}

type DebtSummary struct {
	TotalDebt            decimal.Decimal `json:"total_debt"`
	TotalPaid            decimal.Decimal `json:"total_paid"`
	TotalPrincipalPaid   decimal.Decimal `json:"total_principal_paid"`
	TotalInterestPaid    decimal.Decimal `json:"total_interest_paid"`
	TotalMonthlyPayments decimal.Decimal `json:"total_monthly_payments"`
	DebtCount            int             `json:"debt_count"`
}

type DebtReport struct {
	Summary DebtSummary   `json:"summary"`
	Debts   []DebtInsight `json:"debts"`
}

// BuildDebtReport analyses every liability account. A payment is a
// transaction whose destination is the liability and whose source is an
// asset account; principal defaults to the full amount and interest to
// zero when the sub-amounts are not recorded.
func BuildDebtReport(accounts []core.Account, transactions []core.Transaction) DebtReport {
	accountsByID := make(map[int64]core.Account, len(accounts))
	for _, a := range accounts {
		accountsByID[a.ID] = a
	}

	report := DebtReport{Summary: DebtSummary{
		TotalDebt:            decimal.Zero,
		TotalPaid:            decimal.Zero,
		TotalPrincipalPaid:   decimal.Zero,
		TotalInterestPaid:    decimal.Zero,
		TotalMonthlyPayments: decimal.Zero,
	}}

	for _, a := range accounts {
		if a.Type != core.Liability {
			continue
		}

		insight := DebtInsight{
			AccountID:     a.ID,
			Name:          a.Name,
			Balance:       a.Balance,
			InterestRate:  a.InterestRate,
			PaymentAmount: a.PaymentAmount,
			TotalPaid:     decimal.Zero,
			PrincipalPaid: decimal.Zero,
			InterestPaid:  decimal.Zero,
		}

		for _, tx := range transactions {
			if tx.ToAccountID != a.ID {
				continue
			}
			src, ok := accountsByID[tx.FromAccountID]
			if !ok || src.Type != core.Asset {
				continue
			}

			insight.TotalPaid = insight.TotalPaid.Add(tx.Amount)
			insight.PaymentCount++
			if insight.LastPayment == nil || tx.Date.After(insight.LastPayment.Date) {
				insight.LastPayment = &DebtPayment{Date: tx.Date, Amount: tx.Amount}
			}
			if tx.PrincipalAmount != nil {
				insight.PrincipalPaid = insight.PrincipalPaid.Add(*tx.PrincipalAmount)
			} else {
				insight.PrincipalPaid = insight.PrincipalPaid.Add(tx.Amount)
			}
			if tx.InterestAmount != nil {
				insight.InterestPaid = insight.InterestPaid.Add(*tx.InterestAmount)
			}
		}

		if a.PaymentAmount != nil && a.PaymentAmount.IsPositive() && a.Balance.IsNegative() {
			ratio, _ := a.Balance.Abs().Div(*a.PaymentAmount).Float64()
			months := int(math.Ceil(ratio))
			insight.MonthsToPayoff = &months
			projected := a.PaymentAmount.Mul(decimal.NewFromInt(int64(months))).Sub(a.Balance.Abs())
			insight.TotalInterestProjected = &projected
		}

		report.Debts = append(report.Debts, insight)
		report.Summary.TotalDebt = report.Summary.TotalDebt.Add(a.Balance.Abs())
		if a.PaymentAmount != nil {
			report.Summary.TotalMonthlyPayments = report.Summary.TotalMonthlyPayments.Add(*a.PaymentAmount)
		}
		report.Summary.TotalPaid = report.Summary.TotalPaid.Add(insight.TotalPaid)
		report.Summary.TotalPrincipalPaid = report.Summary.TotalPrincipalPaid.Add(insight.PrincipalPaid)
		report.Summary.TotalInterestPaid = report.Summary.TotalInterestPaid.Add(insight.InterestPaid)
		report.Summary.DebtCount++
	}

	return report
}

func categoryIndex(categories []core.Category) map[int64]core.Category {
	byID := make(map[int64]core.Category, len(categories))
	for _, c := range categories {
		byID[c.ID] = c
	}
	return byID
}

func inRange(transactions []core.Transaction, from, to time.Time) []core.Transaction {
	out := make([]core.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		if !from.IsZero() && tx.Date.Before(from) {
			continue
		}
		if !to.IsZero() && tx.Date.After(to) {
			continue
		}
		out = append(out, tx)
	}
	return out
}

func sortedCategoryAmounts(totals map[int64]decimal.Decimal, byID map[int64]core.Category) []CategoryAmount {
	out := make([]CategoryAmount, 0, len(totals))
	for id, amount := range totals {
		id := id
		out = append(out, CategoryAmount{CategoryID: &id, Name: byID[id].Name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Amount.Equal(out[j].Amount) {
			return out[i].Amount.GreaterThan(out[j].Amount)
		}
		return out[i].Name < out[j].Name
	})
	return out
}
