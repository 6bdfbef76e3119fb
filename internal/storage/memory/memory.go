// Package memory provides an in-memory Repository used by tests and the
// "memory" backend. Writes inside InTx are rolled back wholesale on error by
// restoring a snapshot of the state.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/storage"
)

type state struct {
	accounts     map[int64]core.Account
	transactions map[int64]core.Transaction
	categories   map[int64]core.Category
	audit        []storage.AuditEntry

	nextAccountID     int64
	nextTransactionID int64
	nextCategoryID    int64
	nextAuditID       int64
}

func newState() state {
	return state{
		accounts:     make(map[int64]core.Account),
		transactions: make(map[int64]core.Transaction),
		categories:   make(map[int64]core.Category),
	}
}

func (s *state) clone() state {
	c := state{
		accounts:          make(map[int64]core.Account, len(s.accounts)),
		transactions:      make(map[int64]core.Transaction, len(s.transactions)),
		categories:        make(map[int64]core.Category, len(s.categories)),
		audit:             append([]storage.AuditEntry(nil), s.audit...),
		nextAccountID:     s.nextAccountID,
		nextTransactionID: s.nextTransactionID,
		nextCategoryID:    s.nextCategoryID,
		nextAuditID:       s.nextAuditID,
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for k, v := range s.categories {
		c.categories[k] = v
	}
	return c
}

// Repository guards a state with a single RWMutex: reads take the read lock,
// writes and InTx take the write lock, so a reader can never observe a
// half-applied double entry.
type Repository struct {
	mu sync.RWMutex
	st state
}

func NewRepository() *Repository {
	return &Repository{st: newState()}
}

func (r *Repository) Close() error { return nil }

// InTx serializes the whole unit under the write lock and restores the
// pre-call state if fn fails.
func (r *Repository) InTx(ctx context.Context, fn func(storage.Store) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.st.clone()
	if err := fn(&txStore{st: &r.st}); err != nil {
		r.st = snapshot
		return err
	}
	return nil
}

// txStore exposes the state inside an atomic unit without re-locking.
type txStore struct {
	st *state
}

// Accounts.

func (s *state) createAccount(a *core.Account) error {
	s.nextAccountID++
	a.ID = s.nextAccountID
	s.accounts[a.ID] = *a
	return nil
}

func (s *state) getAccount(userID, id int64) (core.Account, error) {
	a, ok := s.accounts[id]
	if !ok || a.UserID != userID {
		return core.Account{}, core.NotFoundf("account %d", id)
	}
	return a, nil
}

func (s *state) listAccounts(userID int64) ([]core.Account, error) {
	var out []core.Account
	for _, a := range s.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *state) updateAccount(a core.Account) error {
	if _, err := s.getAccount(a.UserID, a.ID); err != nil {
		return err
	}
	s.accounts[a.ID] = a
	return nil
}

func (s *state) addToBalance(userID, id int64, delta decimal.Decimal) error {
	a, err := s.getAccount(userID, id)
	if err != nil {
		return err
	}
	a.Balance = a.Balance.Add(delta)
	s.accounts[id] = a
	return nil
}

func (s *state) deleteAccount(userID, id int64) error {
	if _, err := s.getAccount(userID, id); err != nil {
		return err
	}
	delete(s.accounts, id)
	return nil
}

func (s *state) countAccountTransactions(userID, accountID int64) (int64, error) {
	var n int64
	for _, tx := range s.transactions {
		if tx.UserID == userID && tx.References(accountID) {
			n++
		}
	}
	return n, nil
}

// Transactions.

func (s *state) createTransaction(tx *core.Transaction) error {
	s.nextTransactionID++
	tx.ID = s.nextTransactionID
	s.transactions[tx.ID] = *tx
	return nil
}

func (s *state) getTransaction(userID, id int64) (core.Transaction, error) {
	tx, ok := s.transactions[id]
	if !ok || tx.UserID != userID {
		return core.Transaction{}, core.NotFoundf("transaction %d", id)
	}
	return tx, nil
}

func (s *state) listTransactions(userID int64, f storage.TransactionFilter) ([]core.Transaction, error) {
	var out []core.Transaction
	for _, tx := range s.transactions {
		if tx.UserID != userID {
			continue
		}
		if f.From != nil && tx.Date.Before(*f.From) {
			continue
		}
		if f.To != nil && tx.Date.After(*f.To) {
			continue
		}
		if f.AccountID != nil && !tx.References(*f.AccountID) {
			continue
		}
		if f.CategoryID != nil && (tx.CategoryID == nil || *tx.CategoryID != *f.CategoryID) {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(tx.Description), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, tx)
	}
	// Newest first, matching the SQL backends.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *state) updateTransaction(tx core.Transaction) error {
	if _, err := s.getTransaction(tx.UserID, tx.ID); err != nil {
		return err
	}
	s.transactions[tx.ID] = tx
	return nil
}

func (s *state) deleteTransaction(userID, id int64) error {
	if _, err := s.getTransaction(userID, id); err != nil {
		return err
	}
	delete(s.transactions, id)
	return nil
}

// Categories.

func (s *state) createCategory(c *core.Category) error {
	s.nextCategoryID++
	c.ID = s.nextCategoryID
	s.categories[c.ID] = *c
	return nil
}

func (s *state) getCategory(userID, id int64) (core.Category, error) {
	c, ok := s.categories[id]
	if !ok || c.UserID != userID {
		return core.Category{}, core.NotFoundf("category %d", id)
	}
	return c, nil
}

func (s *state) listCategories(userID int64) ([]core.Category, error) {
	var out []core.Category
	for _, c := range s.categories {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *state) appendAuditEntry(e storage.AuditEntry) error {
	s.nextAuditID++
	e.ID = s.nextAuditID
	s.audit = append(s.audit, e)
	return nil
}

// Locking facade.

func (r *Repository) CreateAccount(_ context.Context, a *core.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.createAccount(a)
}

func (r *Repository) GetAccount(_ context.Context, userID, id int64) (core.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.st.getAccount(userID, id)
}

func (r *Repository) ListAccounts(_ context.Context, userID int64) ([]core.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.st.listAccounts(userID)
}

func (r *Repository) UpdateAccount(_ context.Context, a core.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.updateAccount(a)
}

func (r *Repository) AddToBalance(_ context.Context, userID, id int64, delta decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.addToBalance(userID, id, delta)
}

func (r *Repository) DeleteAccount(_ context.Context, userID, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.deleteAccount(userID, id)
}

func (r *Repository) CountAccountTransactions(_ context.Context, userID, accountID int64) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.st.countAccountTransactions(userID, accountID)
}

func (r *Repository) CreateTransaction(_ context.Context, tx *core.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.createTransaction(tx)
}

func (r *Repository) GetTransaction(_ context.Context, userID, id int64) (core.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.st.getTransaction(userID, id)
}

func (r *Repository) ListTransactions(_ context.Context, userID int64, f storage.TransactionFilter) ([]core.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.st.listTransactions(userID, f)
}

func (r *Repository) UpdateTransaction(_ context.Context, tx core.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.updateTransaction(tx)
}

func (r *Repository) DeleteTransaction(_ context.Context, userID, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.deleteTransaction(userID, id)
}

func (r *Repository) CreateCategory(_ context.Context, c *core.Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.createCategory(c)
}

func (r *Repository) GetCategory(_ context.Context, userID, id int64) (core.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.st.getCategory(userID, id)
}

func (r *Repository) ListCategories(_ context.Context, userID int64) ([]core.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.st.listCategories(userID)
}

func (r *Repository) AppendAuditEntry(_ context.Context, e storage.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.appendAuditEntry(e)
}

// AuditEntries returns a copy of the audit trail for a user, oldest first.
func (r *Repository) AuditEntries(userID int64) []storage.AuditEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []storage.AuditEntry
	for _, e := range r.st.audit {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

// Unlocked view used inside InTx.

func (t *txStore) CreateAccount(_ context.Context, a *core.Account) error {
	return t.st.createAccount(a)
}

func (t *txStore) GetAccount(_ context.Context, userID, id int64) (core.Account, error) {
	return t.st.getAccount(userID, id)
}

func (t *txStore) ListAccounts(_ context.Context, userID int64) ([]core.Account, error) {
	return t.st.listAccounts(userID)
}

func (t *txStore) UpdateAccount(_ context.Context, a core.Account) error {
	return t.st.updateAccount(a)
}

func (t *txStore) AddToBalance(_ context.Context, userID, id int64, delta decimal.Decimal) error {
	return t.st.addToBalance(userID, id, delta)
}

func (t *txStore) DeleteAccount(_ context.Context, userID, id int64) error {
	return t.st.deleteAccount(userID, id)
}

func (t *txStore) CountAccountTransactions(_ context.Context, userID, accountID int64) (int64, error) {
	return t.st.countAccountTransactions(userID, accountID)
}

func (t *txStore) CreateTransaction(_ context.Context, tx *core.Transaction) error {
	return t.st.createTransaction(tx)
}

func (t *txStore) GetTransaction(_ context.Context, userID, id int64) (core.Transaction, error) {
	return t.st.getTransaction(userID, id)
}

func (t *txStore) ListTransactions(_ context.Context, userID int64, f storage.TransactionFilter) ([]core.Transaction, error) {
	return t.st.listTransactions(userID, f)
}

func (t *txStore) UpdateTransaction(_ context.Context, tx core.Transaction) error {
	return t.st.updateTransaction(tx)
}

func (t *txStore) DeleteTransaction(_ context.Context, userID, id int64) error {
	return t.st.deleteTransaction(userID, id)
}

func (t *txStore) CreateCategory(_ context.Context, c *core.Category) error {
	return t.st.createCategory(c)
}

func (t *txStore) GetCategory(_ context.Context, userID, id int64) (core.Category, error) {
	return t.st.getCategory(userID, id)
}

func (t *txStore) ListCategories(_ context.Context, userID int64) ([]core.Category, error) {
	return t.st.listCategories(userID)
}

func (t *txStore) AppendAuditEntry(_ context.Context, e storage.AuditEntry) error {
	return t.st.appendAuditEntry(e)
}
