// Package storetest holds the behaviour every expense store must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wedding-expenses/internal/core"
)

// Store is the surface exercised by Run.
type Store interface {
	CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	GetExpense(ctx context.Context, id int64) (core.Expense, error)
	ListExpenses(ctx context.Context, filter core.ExpenseFilter) ([]core.Expense, error)
	UpdateExpense(ctx context.Context, id int64, mutate func(*core.Expense) error) (core.Expense, error)
	DeleteExpense(ctx context.Context, id int64) error
	SumAmounts(ctx context.Context) (core.Money, error)
	SummarizeByStatus(ctx context.Context) ([]core.StatusSummary, error)
	RecordPayment(ctx context.Context, expenseID int64, p core.Payment) (core.Expense, core.Payment, error)
	ListPayments(ctx context.Context, expenseID int64) ([]core.Payment, error)
}

var base = time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC)

func units(n int64) *core.Money {
	return &core.Money{Cents: n * 100}
}

func build(t *testing.T, cat core.Category, desc string, amount int64, status core.PaymentStatus, remaining *core.Money) core.Expense {
	t.Helper()
	e, err := core.NewExpense{
		Category:        cat,
		Description:     desc,
		Amount:          units(amount),
		Date:            base,
		PaymentStatus:   status,
		RemainingAmount: remaining,
	}.Build(base)
	require.NoError(t, err)
	return e
}

// Run executes the shared store behaviour against a fresh store per subtest.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("empty store", func(t *testing.T) {
		s := newStore(t)
		total, err := s.SumAmounts(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), total.Cents)

		list, err := s.ListExpenses(ctx, core.ExpenseFilter{})
		require.NoError(t, err)
		assert.NotNil(t, list)
		assert.Empty(t, list)

		summary, err := s.SummarizeByStatus(ctx)
		require.NoError(t, err)
		assert.Empty(t, summary)
	})

	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		created, err := s.CreateExpense(ctx, build(t, core.CategoryVenue, "Villa", 1000, core.StatusPaid, nil))
		require.NoError(t, err)
		assert.NotZero(t, created.ID)

		got, err := s.GetExpense(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, "Villa", got.Description)
		assert.Equal(t, core.StatusPaid, got.PaymentStatus)
		assert.Equal(t, int64(100000), got.TotalPaid.Cents)
		assert.Equal(t, int64(0), got.RemainingAmount.Cents)
		assert.True(t, base.Equal(got.Date))
	})

	t.Run("missing ids", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetExpense(ctx, 999)
		assert.ErrorIs(t, err, core.ErrNotFound)

		assert.ErrorIs(t, s.DeleteExpense(ctx, 999), core.ErrNotFound)

		_, err = s.UpdateExpense(ctx, 999, func(*core.Expense) error { return nil })
		assert.ErrorIs(t, err, core.ErrNotFound)

		_, err = s.ListPayments(ctx, 999)
		assert.ErrorIs(t, err, core.ErrNotFound)

		_, _, err = s.RecordPayment(ctx, 999, core.Payment{Amount: *units(1), Date: base})
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("filters and aggregates", func(t *testing.T) {
		s := newStore(t)
		for _, e := range []core.Expense{
			build(t, core.CategoryVenue, "Villa", 1000, core.StatusPaid, nil),
			build(t, core.CategoryCatering, "Dinner", 500, core.StatusPending, nil),
			build(t, core.CategoryVenue, "Chapel", 300, core.StatusPartiallyPaid, units(100)),
			build(t, core.CategoryMusic, "Band", 200, core.StatusPending, nil),
		} {
			_, err := s.CreateExpense(ctx, e)
			require.NoError(t, err)
		}

		venue := core.CategoryVenue
		list, err := s.ListExpenses(ctx, core.ExpenseFilter{Category: &venue})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "Villa", list[0].Description)
		assert.Equal(t, "Chapel", list[1].Description)

		pending := core.StatusPending
		list, err = s.ListExpenses(ctx, core.ExpenseFilter{Status: &pending})
		require.NoError(t, err)
		assert.Len(t, list, 2)

		unknown := core.Category("venue")
		list, err = s.ListExpenses(ctx, core.ExpenseFilter{Category: &unknown})
		require.NoError(t, err)
		assert.Empty(t, list)

		total, err := s.SumAmounts(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(200000), total.Cents)

		summary, err := s.SummarizeByStatus(ctx)
		require.NoError(t, err)
		require.Len(t, summary, 3)
		assert.Equal(t, core.StatusPaid, summary[0].Status)
		assert.Equal(t, core.StatusPending, summary[1].Status)
		assert.Equal(t, 2, summary[1].Count)
		assert.Equal(t, int64(70000), summary[1].TotalAmount.Cents)
		assert.Equal(t, core.StatusPartiallyPaid, summary[2].Status)
		assert.Equal(t, int64(20000), summary[2].TotalPaid.Cents)
		assert.Equal(t, int64(10000), summary[2].TotalRemaining.Cents)
	})

	t.Run("update keeps invariants", func(t *testing.T) {
		s := newStore(t)
		created, err := s.CreateExpense(ctx, build(t, core.CategoryAttire, "Dress", 800, core.StatusPartiallyPaid, units(300)))
		require.NoError(t, err)

		paid := core.StatusPaid
		later := base.Add(time.Hour)
		updated, err := s.UpdateExpense(ctx, created.ID, func(e *core.Expense) error {
			return e.Apply(core.ExpensePatch{PaymentStatus: &paid}, later)
		})
		require.NoError(t, err)
		assert.Equal(t, core.StatusPaid, updated.PaymentStatus)
		assert.Equal(t, int64(0), updated.RemainingAmount.Cents)

		got, err := s.GetExpense(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, updated.TotalPaid, got.TotalPaid)
		assert.True(t, later.Equal(got.UpdatedAt))
	})

	t.Run("failed update leaves the record untouched", func(t *testing.T) {
		s := newStore(t)
		created, err := s.CreateExpense(ctx, build(t, core.CategoryOther, "Favors", 100, core.StatusPending, nil))
		require.NoError(t, err)

		blank := "  "
		_, err = s.UpdateExpense(ctx, created.ID, func(e *core.Expense) error {
			return e.Apply(core.ExpensePatch{Description: &blank}, base)
		})
		require.Error(t, err)
		assert.True(t, core.IsValidation(err))

		got, err := s.GetExpense(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Favors", got.Description)
	})

	t.Run("delete removes expense and payments", func(t *testing.T) {
		s := newStore(t)
		created, err := s.CreateExpense(ctx, build(t, core.CategoryPhotography, "Photos", 400, core.StatusPending, nil))
		require.NoError(t, err)
		_, _, err = s.RecordPayment(ctx, created.ID, core.Payment{Amount: *units(100), Date: base})
		require.NoError(t, err)

		require.NoError(t, s.DeleteExpense(ctx, created.ID))
		_, err = s.GetExpense(ctx, created.ID)
		assert.ErrorIs(t, err, core.ErrNotFound)
		_, err = s.ListPayments(ctx, created.ID)
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("payments settle the balance", func(t *testing.T) {
		s := newStore(t)
		created, err := s.CreateExpense(ctx, build(t, core.CategoryTransportation, "Limo", 300, core.StatusPending, nil))
		require.NoError(t, err)

		e, p, err := s.RecordPayment(ctx, created.ID, core.Payment{Amount: *units(100), Notes: "deposit", Date: base})
		require.NoError(t, err)
		assert.NotZero(t, p.ID)
		assert.Equal(t, created.ID, p.ExpenseID)
		assert.Equal(t, core.StatusPartiallyPaid, e.PaymentStatus)
		assert.Equal(t, int64(20000), e.RemainingAmount.Cents)

		_, _, err = s.RecordPayment(ctx, created.ID, core.Payment{Amount: *units(500), Date: base})
		assert.ErrorIs(t, err, core.ErrPaymentOverBudget)

		e, _, err = s.RecordPayment(ctx, created.ID, core.Payment{Amount: *units(200), Date: base.Add(time.Minute)})
		require.NoError(t, err)
		assert.Equal(t, core.StatusPaid, e.PaymentStatus)
		assert.Equal(t, int64(0), e.RemainingAmount.Cents)

		got, err := s.GetExpense(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, core.StatusPaid, got.PaymentStatus)

		history, err := s.ListPayments(ctx, created.ID)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "deposit", history[0].Notes)
		assert.Equal(t, int64(20000), history[1].Amount.Cents)
	})

	t.Run("amounts at the maximum", func(t *testing.T) {
		s := newStore(t)
		const maxUnits = core.MaxAmountCents / 100
		_, err := s.CreateExpense(ctx, build(t, core.CategoryVenue, "Castle", maxUnits, core.StatusPaid, nil))
		require.NoError(t, err)
		_, err = s.CreateExpense(ctx, build(t, core.CategoryVenue, "Second castle", maxUnits, core.StatusPending, nil))
		require.NoError(t, err)

		total, err := s.SumAmounts(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2*core.MaxAmountCents, total.Cents)

		summary, err := s.SummarizeByStatus(ctx)
		require.NoError(t, err)
		require.Len(t, summary, 2)
		for _, sm := range summary {
			assert.Equal(t, core.MaxAmountCents, sm.TotalAmount.Cents)
		}
	})
}
