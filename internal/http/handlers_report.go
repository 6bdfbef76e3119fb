package http

import (
	"net/http"
	"time"

	"tally/internal/core"
	"tally/internal/reports"
	"tally/internal/storage"
)

// snapshot loads the full ledger state of one owner for report building.
// The three reads run inside one atomic unit so a concurrent write cannot
// leave the transaction list and the balances disagreeing about an effect.
func (s *Server) snapshot(r *http.Request, userID int64) ([]core.Account, []core.Transaction, []core.Category, error) {
	var (
		accounts     []core.Account
		transactions []core.Transaction
		categories   []core.Category
	)
	err := s.repo.InTx(r.Context(), func(st storage.Store) error {
		var err error
		if accounts, err = st.ListAccounts(r.Context(), userID); err != nil {
			return err
		}
		if transactions, err = st.ListTransactions(r.Context(), userID, storage.TransactionFilter{}); err != nil {
			return err
		}
		categories, err = st.ListCategories(r.Context(), userID)
		return err
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return accounts, transactions, categories, nil
}

func (s *Server) handleBalanceSheet(w http.ResponseWriter, r *http.Request) {
	userID, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var asOf time.Time
	if t, err := parseDateQuery(r, "as_of"); err != nil {
		writeError(w, r, err)
		return
	} else if t != nil {
		asOf = *t
	}

	key := reportCacheKey(userID, "balance-sheet", asOf.Format("2006-01-02"))
	if cached, ok := s.reportCache.Get(key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	accounts, transactions, _, err := s.snapshot(r, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	report := reports.BuildBalanceSheet(accounts, transactions, asOf)
	s.reportCache.Set(key, report)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleIncomeStatement(w http.ResponseWriter, r *http.Request) {
	userID, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	from, to, err := reportRange(r, func(now time.Time) (time.Time, time.Time) {
		return currentMonthRange(now)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	key := reportCacheKey(userID, "income-statement", from.Unix(), to.Unix())
	if cached, ok := s.reportCache.Get(key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	_, transactions, categories, err := s.snapshot(r, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	report := reports.BuildIncomeStatement(transactions, categories, from, to)
	s.reportCache.Set(key, report)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSpending(w http.ResponseWriter, r *http.Request) {
	userID, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	from, to, err := reportRange(r, func(now time.Time) (time.Time, time.Time) {
		return currentMonthRange(now)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	key := reportCacheKey(userID, "spending", from.Unix(), to.Unix())
	if cached, ok := s.reportCache.Get(key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	_, transactions, categories, err := s.snapshot(r, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	report := reports.BuildSpendingReport(transactions, categories, from, to)
	s.reportCache.Set(key, report)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	userID, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	period := r.URL.Query().Get("period")
	switch period {
	case "", reports.PeriodMonth:
		period = reports.PeriodMonth
	case reports.PeriodDay, reports.PeriodYear:
	default:
		writeError(w, r, core.InvalidArgumentf("invalid period %q: use day, month or year", period))
		return
	}

	// Stats default to the last three months.
	from, to, err := reportRange(r, func(now time.Time) (time.Time, time.Time) {
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -2, 0)
		return start, now
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	key := reportCacheKey(userID, "stats", period, from.Unix(), to.Unix())
	if cached, ok := s.reportCache.Get(key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	_, transactions, categories, err := s.snapshot(r, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	report := reports.BuildTransactionStats(transactions, categories, period, from, to)
	s.reportCache.Set(key, report)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleNetWorthHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	period := r.URL.Query().Get("period")
	switch period {
	case "", reports.PeriodMonth:
		period = reports.PeriodMonth
	case reports.PeriodDay, reports.PeriodYear:
	default:
		writeError(w, r, core.InvalidArgumentf("invalid period %q: use day, month or year", period))
		return
	}

	count := parseIntQuery(r, "count", 12)
	if count < 1 || count > 120 {
		writeError(w, r, core.InvalidArgumentf("invalid count %d: must be between 1 and 120", count))
		return
	}

	key := reportCacheKey(userID, "net-worth-history", period, count)
	if cached, ok := s.reportCache.Get(key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	accounts, transactions, _, err := s.snapshot(r, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	report := reports.BuildNetWorthHistory(accounts, transactions, period, count, time.Now())
	s.reportCache.Set(key, report)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleDebts(w http.ResponseWriter, r *http.Request) {
	userID, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	key := reportCacheKey(userID, "debts")
	if cached, ok := s.reportCache.Get(key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	accounts, transactions, _, err := s.snapshot(r, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	report := reports.BuildDebtReport(accounts, transactions)
	s.reportCache.Set(key, report)
	writeJSON(w, http.StatusOK, report)
}

// reportRange reads optional from/to query parameters, filling gaps with
// the report's default window.
func reportRange(r *http.Request, defaults func(time.Time) (time.Time, time.Time)) (time.Time, time.Time, error) {
	defFrom, defTo := defaults(time.Now())

	from := defFrom
	if t, err := parseDateQuery(r, "from"); err != nil {
		return time.Time{}, time.Time{}, err
	} else if t != nil {
		from = *t
	}

	to := defTo
	if t, err := parseDateQuery(r, "to"); err != nil {
		return time.Time{}, time.Time{}, err
	} else if t != nil {
		// Include the whole final day.
		to = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}

	if to.Before(from) {
		return time.Time{}, time.Time{}, core.InvalidArgumentf("invalid range: to precedes from")
	}
	return from, to, nil
}
