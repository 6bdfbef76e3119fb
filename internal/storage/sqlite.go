package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository stores the ledger in a local SQLite file. The write path
// always goes through InTx so the double entry and the balance updates land
// atomically.
type SQLiteRepository struct {
	db *sql.DB
	sqlStore
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY on concurrent transactions.
	db.SetMaxOpenConns(1)

	if err := RunSQLiteMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, sqlStore: sqlStore{q: db, dialect: dialectSQLite}}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// InTx runs fn inside a database transaction. Any error rolls the whole unit
// back, leaving balances exactly as they were.
func (r *SQLiteRepository) InTx(ctx context.Context, fn func(Store) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&sqlStore{q: tx, dialect: dialectSQLite}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// dbtx is satisfied by *sql.DB and *sql.Tx, so the same query code serves
// direct reads and transactional writes.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqlStore implements Store on top of database/sql for both dialects.
// Amounts travel as decimal strings, never as floats.
type sqlStore struct {
	q       dbtx
	dialect dialect
}

// rebind rewrites ? placeholders to $1..$n for Postgres.
func (s *sqlStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func fromNullDecimal(nd decimal.NullDecimal) *decimal.Decimal {
	if !nd.Valid {
		return nil
	}
	d := nd.Decimal
	return &d
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

// Accounts.

const accountColumns = `id, user_id, name, type, category, balance, currency, interest_rate, due_date, payment_amount`

func (s *sqlStore) CreateAccount(ctx context.Context, a *core.Account) error {
	query := s.rebind(`
		INSERT INTO accounts (user_id, name, type, category, balance, currency, interest_rate, due_date, payment_amount)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)
	err := s.q.QueryRowContext(ctx, query,
		a.UserID, a.Name, string(a.Type), a.Category, a.Balance, a.Currency,
		nullDecimal(a.InterestRate), nullTime(a.DueDate), nullDecimal(a.PaymentAmount),
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *sqlStore) scanAccount(row interface{ Scan(...any) error }) (core.Account, error) {
	var (
		a       core.Account
		accType string
		rate    decimal.NullDecimal
		due     sql.NullTime
		payment decimal.NullDecimal
	)
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &accType, &a.Category, &a.Balance, &a.Currency, &rate, &due, &payment)
	if err != nil {
		return core.Account{}, err
	}
	a.Type = core.AccountType(accType)
	a.InterestRate = fromNullDecimal(rate)
	a.PaymentAmount = fromNullDecimal(payment)
	if due.Valid {
		t := due.Time
		a.DueDate = &t
	}
	return a, nil
}

func (s *sqlStore) GetAccount(ctx context.Context, userID, id int64) (core.Account, error) {
	query := s.rebind(`SELECT ` + accountColumns + ` FROM accounts WHERE id = ? AND user_id = ?`)
	a, err := s.scanAccount(s.q.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, core.NotFoundf("account %d", id)
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (s *sqlStore) ListAccounts(ctx context.Context, userID int64) ([]core.Account, error) {
	query := s.rebind(`SELECT ` + accountColumns + ` FROM accounts WHERE user_id = ? ORDER BY name, id`)
	rows, err := s.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []core.Account
	for rows.Next() {
		a, err := s.scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqlStore) UpdateAccount(ctx context.Context, a core.Account) error {
	query := s.rebind(`
		UPDATE accounts
		SET name = ?, type = ?, category = ?, balance = ?, currency = ?,
		    interest_rate = ?, due_date = ?, payment_amount = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`)
	res, err := s.q.ExecContext(ctx, query,
		a.Name, string(a.Type), a.Category, a.Balance, a.Currency,
		nullDecimal(a.InterestRate), nullTime(a.DueDate), nullDecimal(a.PaymentAmount),
		a.ID, a.UserID)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return requireRow(res, "account", a.ID)
}

func (s *sqlStore) AddToBalance(ctx context.Context, userID, id int64, delta decimal.Decimal) error {
	// Read-modify-write keeps the arithmetic in decimal space instead of
	// relying on database numeric semantics over TEXT columns. Safe because
	// callers hold the surrounding transaction.
	a, err := s.GetAccount(ctx, userID, id)
	if err != nil {
		return err
	}
	query := s.rebind(`UPDATE accounts SET balance = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND user_id = ?`)
	res, err := s.q.ExecContext(ctx, query, a.Balance.Add(delta), id, userID)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	return requireRow(res, "account", id)
}

func (s *sqlStore) DeleteAccount(ctx context.Context, userID, id int64) error {
	query := s.rebind(`DELETE FROM accounts WHERE id = ? AND user_id = ?`)
	res, err := s.q.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return requireRow(res, "account", id)
}

func (s *sqlStore) CountAccountTransactions(ctx context.Context, userID, accountID int64) (int64, error) {
	query := s.rebind(`
		SELECT COUNT(*) FROM transactions
		WHERE user_id = ? AND (from_account_id = ? OR to_account_id = ?)`)
	var n int64
	if err := s.q.QueryRowContext(ctx, query, userID, accountID, accountID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count account transactions: %w", err)
	}
	return n, nil
}

// Transactions.

const transactionColumns = `id, user_id, description, amount, date, from_account_id, to_account_id,
	category_id, notes, principal_amount, interest_amount, fee_amount, is_extra_payment`

func (s *sqlStore) CreateTransaction(ctx context.Context, tx *core.Transaction) error {
	query := s.rebind(`
		INSERT INTO transactions (user_id, description, amount, date, from_account_id, to_account_id,
			category_id, notes, principal_amount, interest_amount, fee_amount, is_extra_payment)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)
	err := s.q.QueryRowContext(ctx, query,
		tx.UserID, tx.Description, tx.Amount, tx.Date, tx.FromAccountID, tx.ToAccountID,
		nullInt(tx.CategoryID), tx.Notes,
		nullDecimal(tx.PrincipalAmount), nullDecimal(tx.InterestAmount), nullDecimal(tx.FeeAmount),
		tx.IsExtraPayment,
	).Scan(&tx.ID)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *sqlStore) scanTransaction(row interface{ Scan(...any) error }) (core.Transaction, error) {
	var (
		tx        core.Transaction
		category  sql.NullInt64
		principal decimal.NullDecimal
		interest  decimal.NullDecimal
		fee       decimal.NullDecimal
	)
	err := row.Scan(&tx.ID, &tx.UserID, &tx.Description, &tx.Amount, &tx.Date,
		&tx.FromAccountID, &tx.ToAccountID, &category, &tx.Notes,
		&principal, &interest, &fee, &tx.IsExtraPayment)
	if err != nil {
		return core.Transaction{}, err
	}
	if category.Valid {
		id := category.Int64
		tx.CategoryID = &id
	}
	tx.PrincipalAmount = fromNullDecimal(principal)
	tx.InterestAmount = fromNullDecimal(interest)
	tx.FeeAmount = fromNullDecimal(fee)
	return tx, nil
}

func (s *sqlStore) GetTransaction(ctx context.Context, userID, id int64) (core.Transaction, error) {
	query := s.rebind(`SELECT ` + transactionColumns + ` FROM transactions WHERE id = ? AND user_id = ?`)
	tx, err := s.scanTransaction(s.q.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.NotFoundf("transaction %d", id)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

func (s *sqlStore) ListTransactions(ctx context.Context, userID int64, f TransactionFilter) ([]core.Transaction, error) {
	var (
		conds = []string{"user_id = ?"}
		args  = []any{userID}
	)
	if f.From != nil {
		conds = append(conds, "date >= ?")
		args = append(args, *f.From)
	}
	if f.To != nil {
		conds = append(conds, "date <= ?")
		args = append(args, *f.To)
	}
	if f.AccountID != nil {
		conds = append(conds, "(from_account_id = ? OR to_account_id = ?)")
		args = append(args, *f.AccountID, *f.AccountID)
	}
	if f.CategoryID != nil {
		conds = append(conds, "category_id = ?")
		args = append(args, *f.CategoryID)
	}
	if f.Search != "" {
		conds = append(conds, "description LIKE ?")
		args = append(args, "%"+f.Search+"%")
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY date DESC, id DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", f.Offset)
	}

	rows, err := s.q.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := s.scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (s *sqlStore) UpdateTransaction(ctx context.Context, tx core.Transaction) error {
	query := s.rebind(`
		UPDATE transactions
		SET description = ?, amount = ?, date = ?, from_account_id = ?, to_account_id = ?,
		    category_id = ?, notes = ?, principal_amount = ?, interest_amount = ?,
		    fee_amount = ?, is_extra_payment = ?
		WHERE id = ? AND user_id = ?`)
	res, err := s.q.ExecContext(ctx, query,
		tx.Description, tx.Amount, tx.Date, tx.FromAccountID, tx.ToAccountID,
		nullInt(tx.CategoryID), tx.Notes,
		nullDecimal(tx.PrincipalAmount), nullDecimal(tx.InterestAmount), nullDecimal(tx.FeeAmount),
		tx.IsExtraPayment, tx.ID, tx.UserID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return requireRow(res, "transaction", tx.ID)
}

func (s *sqlStore) DeleteTransaction(ctx context.Context, userID, id int64) error {
	query := s.rebind(`DELETE FROM transactions WHERE id = ? AND user_id = ?`)
	res, err := s.q.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return requireRow(res, "transaction", id)
}

// Categories.

func (s *sqlStore) CreateCategory(ctx context.Context, c *core.Category) error {
	query := s.rebind(`
		INSERT INTO categories (user_id, name, type, color, icon)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`)
	err := s.q.QueryRowContext(ctx, query, c.UserID, c.Name, string(c.Type), c.Color, c.Icon).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (s *sqlStore) GetCategory(ctx context.Context, userID, id int64) (core.Category, error) {
	query := s.rebind(`SELECT id, user_id, name, type, color, icon FROM categories WHERE id = ? AND user_id = ?`)
	var (
		c       core.Category
		catType string
	)
	err := s.q.QueryRowContext(ctx, query, id, userID).Scan(&c.ID, &c.UserID, &c.Name, &catType, &c.Color, &c.Icon)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.NotFoundf("category %d", id)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	c.Type = core.CategoryType(catType)
	return c, nil
}

func (s *sqlStore) ListCategories(ctx context.Context, userID int64) ([]core.Category, error) {
	query := s.rebind(`SELECT id, user_id, name, type, color, icon FROM categories WHERE user_id = ? ORDER BY name, id`)
	rows, err := s.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var (
			c       core.Category
			catType string
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &catType, &c.Color, &c.Icon); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Type = core.CategoryType(catType)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *sqlStore) AppendAuditEntry(ctx context.Context, e AuditEntry) error {
	query := s.rebind(`
		INSERT INTO audit_log (user_id, event, transaction_id, amount, batch_id, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := s.q.ExecContext(ctx, query, e.UserID, e.Event, e.TransactionID, e.Amount, e.BatchID, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func requireRow(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.NotFoundf("%s %d", entity, id)
	}
	return nil
}
