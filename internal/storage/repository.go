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

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"wedding-expenses/internal/core"
	"wedding-expenses/internal/log"
)

// Dialect selects the SQL flavour the repository talks to.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) driverName() string {
	return string(d)
}

func (d Dialect) placeholders() sq.PlaceholderFormat {
	if d == DialectPostgres {
		return sq.Dollar
	}
	return sq.Question
}

var expenseColumns = []string{
	"id", "category", "description", "amount_cents", "date_ms", "vendor",
	"payment_status", "total_paid_cents", "created_at_ms", "updated_at_ms",
}

var paymentColumns = []string{"id", "expense_id", "amount_cents", "notes", "paid_at_ms"}

// SQLRepository stores expenses and payments in SQLite or Postgres.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
	sb      sq.StatementBuilderType
}

// NewSQLiteRepository opens (creating if needed) the database file at dbPath
// and migrates it.
func NewSQLiteRepository(dbPath string) (*SQLRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	repo, err := open(DialectSQLite, dsn)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer.
	repo.db.SetMaxOpenConns(1)
	return repo, nil
}

// NewPostgresRepository connects to databaseURL and migrates the schema.
func NewPostgresRepository(databaseURL string) (*SQLRepository, error) {
	repo, err := open(DialectPostgres, databaseURL)
	if err != nil {
		return nil, err
	}
	repo.db.SetMaxOpenConns(10)
	repo.db.SetConnMaxIdleTime(5 * time.Minute)
	return repo, nil
}

func open(dialect Dialect, dsn string) (*SQLRepository, error) {
	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLRepository{
		db:      db,
		dialect: dialect,
		sb:      sq.StatementBuilder.PlaceholderFormat(dialect.placeholders()),
	}, nil
}

func (r *SQLRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func logger(ctx context.Context) *log.Logger {
	return log.FromContext(ctx).WithComponent(log.ComponentStorage)
}

func (r *SQLRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger(ctx).WarnContext(ctx, "Transaction rollback failed", log.FieldError, rbErr)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// CreateExpense inserts e and returns it with the generated id.
func (r *SQLRepository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	e = truncateTimes(e)
	query := r.sb.Insert("expenses").
		Columns(expenseColumns[1:]...).
		Values(
			string(e.Category), e.Description, e.Amount.Cents, toMillis(e.Date), e.Vendor,
			string(e.PaymentStatus), e.TotalPaid.Cents, toMillis(e.CreatedAt), toMillis(e.UpdatedAt),
		).
		Suffix("RETURNING id")

	if err := query.RunWith(r.db).QueryRowContext(ctx).Scan(&e.ID); err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}

	logger(ctx).DebugContext(ctx, "Expense saved", append(log.NewFields().
		WithOperation(log.OpCreate).
		WithExpense(e.ID, e.Description, e.Amount.Cents, string(e.Category), string(e.PaymentStatus)).
		ToSlice(), "dialect", r.dialect)...)

	return e, nil
}

// GetExpense returns the expense with the given id or core.ErrNotFound.
func (r *SQLRepository) GetExpense(ctx context.Context, id int64) (core.Expense, error) {
	return r.getExpense(ctx, r.db, id, false)
}

func (r *SQLRepository) getExpense(ctx context.Context, runner sq.BaseRunner, id int64, forUpdate bool) (core.Expense, error) {
	query := r.sb.Select(expenseColumns...).
		From("expenses").
		Where(sq.Eq{"id": id})
	if forUpdate && r.dialect == DialectPostgres {
		query = query.Suffix("FOR UPDATE")
	}

	e, err := scanExpense(query.RunWith(runner).QueryRowContext(ctx))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", id, err)
	}
	return e, nil
}

// ListExpenses returns the expenses matching filter in insertion order.
func (r *SQLRepository) ListExpenses(ctx context.Context, filter core.ExpenseFilter) ([]core.Expense, error) {
	query := r.sb.Select(expenseColumns...).
		From("expenses").
		OrderBy("id")
	if filter.Category != nil {
		query = query.Where(sq.Eq{"category": string(*filter.Category)})
	}
	if filter.Status != nil {
		query = query.Where(sq.Eq{"payment_status": string(*filter.Status)})
	}

	rows, err := query.RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	expenses := []core.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return expenses, nil
}

// UpdateExpense loads the expense, lets mutate change it and writes the
// result back, all in one transaction.
func (r *SQLRepository) UpdateExpense(ctx context.Context, id int64, mutate func(*core.Expense) error) (core.Expense, error) {
	var updated core.Expense
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		e, err := r.getExpense(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := mutate(&e); err != nil {
			return err
		}
		if err := r.writeExpense(ctx, tx, e); err != nil {
			return err
		}
		updated = truncateTimes(e)
		return nil
	})
	if err != nil {
		return core.Expense{}, err
	}
	return updated, nil
}

func (r *SQLRepository) writeExpense(ctx context.Context, tx *sql.Tx, e core.Expense) error {
	e = truncateTimes(e)
	query := r.sb.Update("expenses").
		SetMap(map[string]any{
			"category":         string(e.Category),
			"description":      e.Description,
			"amount_cents":     e.Amount.Cents,
			"date_ms":          toMillis(e.Date),
			"vendor":           e.Vendor,
			"payment_status":   string(e.PaymentStatus),
			"total_paid_cents": e.TotalPaid.Cents,
			"updated_at_ms":    toMillis(e.UpdatedAt),
		}).
		Where(sq.Eq{"id": e.ID})

	res, err := query.RunWith(tx).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("update expense %d: %w", e.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("expense %d: %w", e.ID, core.ErrNotFound)
	}
	return nil
}

// DeleteExpense removes the expense and its payments.
func (r *SQLRepository) DeleteExpense(ctx context.Context, id int64) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := r.sb.Delete("payments").Where(sq.Eq{"expense_id": id}).RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("delete payments of expense %d: %w", id, err)
		}
		res, err := r.sb.Delete("expenses").Where(sq.Eq{"id": id}).RunWith(tx).ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("delete expense %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete expense %d: %w", id, err)
		}
		if n == 0 {
			return fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
		}
		return nil
	})
}

// SumAmounts totals every expense amount; zero when there are none.
func (r *SQLRepository) SumAmounts(ctx context.Context) (core.Money, error) {
	var cents int64
	err := r.sb.Select("CAST(COALESCE(SUM(amount_cents), 0) AS BIGINT)").
		From("expenses").
		RunWith(r.db).
		QueryRowContext(ctx).
		Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum expenses: %w", err)
	}
	return core.Money{Cents: cents}, nil
}

// SummarizeByStatus groups expenses by payment status.
func (r *SQLRepository) SummarizeByStatus(ctx context.Context) ([]core.StatusSummary, error) {
	query := r.sb.Select(
		"payment_status",
		"COUNT(*)",
		"CAST(COALESCE(SUM(amount_cents), 0) AS BIGINT)",
		"CAST(COALESCE(SUM(total_paid_cents), 0) AS BIGINT)",
	).
		From("expenses").
		GroupBy("payment_status")

	rows, err := query.RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("summarize expenses: %w", err)
	}
	defer rows.Close()

	byStatus := make(map[core.PaymentStatus]*core.StatusSummary)
	for rows.Next() {
		var s core.StatusSummary
		var status string
		var amount, paid int64
		if err := rows.Scan(&status, &s.Count, &amount, &paid); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.Status = core.PaymentStatus(status)
		s.TotalAmount = core.Money{Cents: amount}
		s.TotalPaid = core.Money{Cents: paid}
		s.TotalRemaining = s.TotalAmount.Sub(s.TotalPaid)
		byStatus[s.Status] = &s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary: %w", err)
	}
	return core.OrderSummaries(byStatus), nil
}

// RecordPayment applies p to the expense and stores both in one transaction.
func (r *SQLRepository) RecordPayment(ctx context.Context, expenseID int64, p core.Payment) (core.Expense, core.Payment, error) {
	var (
		expense core.Expense
		payment = p
	)
	payment.ExpenseID = expenseID
	payment.Date = payment.Date.UTC().Truncate(time.Millisecond)

	err := r.inTx(ctx, func(tx *sql.Tx) error {
		e, err := r.getExpense(ctx, tx, expenseID, true)
		if err != nil {
			return err
		}
		if err := e.RecordPayment(payment.Amount, payment.Date); err != nil {
			return err
		}
		if err := r.writeExpense(ctx, tx, e); err != nil {
			return err
		}

		query := r.sb.Insert("payments").
			Columns(paymentColumns[1:]...).
			Values(expenseID, payment.Amount.Cents, payment.Notes, toMillis(payment.Date)).
			Suffix("RETURNING id")
		if err := query.RunWith(tx).QueryRowContext(ctx).Scan(&payment.ID); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		expense = truncateTimes(e)
		return nil
	})
	if err != nil {
		return core.Expense{}, core.Payment{}, err
	}
	return expense, payment, nil
}

// ListPayments returns the payments of an existing expense, oldest first.
func (r *SQLRepository) ListPayments(ctx context.Context, expenseID int64) ([]core.Payment, error) {
	if _, err := r.GetExpense(ctx, expenseID); err != nil {
		return nil, err
	}

	rows, err := r.sb.Select(paymentColumns...).
		From("payments").
		Where(sq.Eq{"expense_id": expenseID}).
		OrderBy("paid_at_ms", "id").
		RunWith(r.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := []core.Payment{}
	for rows.Next() {
		var p core.Payment
		var amount, paidAt int64
		if err := rows.Scan(&p.ID, &p.ExpenseID, &amount, &p.Notes, &paidAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		p.Amount = core.Money{Cents: amount}
		p.Date = fromMillis(paidAt)
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}

func scanExpense(row sq.RowScanner) (core.Expense, error) {
	var e core.Expense
	var category, status string
	var amount, paid, date, created, updated int64
	err := row.Scan(&e.ID, &category, &e.Description, &amount, &date, &e.Vendor,
		&status, &paid, &created, &updated)
	if err != nil {
		return core.Expense{}, err
	}
	e.Category = core.Category(category)
	e.PaymentStatus = core.PaymentStatus(strings.TrimSpace(status))
	e.Amount = core.Money{Cents: amount}
	e.TotalPaid = core.Money{Cents: paid}
	e.RemainingAmount = e.Amount.Sub(e.TotalPaid)
	e.Date = fromMillis(date)
	e.CreatedAt = fromMillis(created)
	e.UpdatedAt = fromMillis(updated)
	return e, nil
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// truncateTimes matches the millisecond precision the tables keep.
func truncateTimes(e core.Expense) core.Expense {
	e.Date = fromMillis(toMillis(e.Date))
	e.CreatedAt = fromMillis(toMillis(e.CreatedAt))
	e.UpdatedAt = fromMillis(toMillis(e.UpdatedAt))
	return e
}
