package memory

import (
	"context"
	"fmt"
	"sync"

	"wedding-expenses/internal/core"
)

// Store keeps expenses and payments in process memory. Used for local runs
// and tests.
type Store struct {
	mu       sync.Mutex
	nextID   int64
	nextPay  int64
	order    []int64
	items    map[int64]core.Expense
	payments map[int64][]core.Payment
}

func New() *Store {
	return &Store{
		items:    make(map[int64]core.Expense),
		payments: make(map[int64][]core.Payment),
	}
}

func (s *Store) CreateExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e.ID = s.nextID
	s.items[e.ID] = e
	s.order = append(s.order, e.ID)
	return e, nil
}

func (s *Store) GetExpense(_ context.Context, id int64) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return core.Expense{}, notFound(id)
	}
	return e, nil
}

// ListExpenses returns matching expenses in insertion order.
func (s *Store) ListExpenses(_ context.Context, filter core.ExpenseFilter) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.Expense{}
	for _, id := range s.order {
		if e := s.items[id]; filter.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// UpdateExpense runs mutate on a copy and keeps it only when mutate succeeds.
func (s *Store) UpdateExpense(_ context.Context, id int64, mutate func(*core.Expense) error) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return core.Expense{}, notFound(id)
	}
	if err := mutate(&e); err != nil {
		return core.Expense{}, err
	}
	e.ID = id
	s.items[id] = e
	return e, nil
}

func (s *Store) DeleteExpense(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return notFound(id)
	}
	delete(s.items, id)
	delete(s.payments, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) SumAmounts(ctx context.Context) (core.Money, error) {
	all, err := s.ListExpenses(ctx, core.ExpenseFilter{})
	if err != nil {
		return core.Money{}, err
	}
	return core.SumAmounts(all), nil
}

func (s *Store) SummarizeByStatus(ctx context.Context) ([]core.StatusSummary, error) {
	all, err := s.ListExpenses(ctx, core.ExpenseFilter{})
	if err != nil {
		return nil, err
	}
	return core.Summarize(all), nil
}

func (s *Store) RecordPayment(_ context.Context, expenseID int64, p core.Payment) (core.Expense, core.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[expenseID]
	if !ok {
		return core.Expense{}, core.Payment{}, notFound(expenseID)
	}
	if err := e.RecordPayment(p.Amount, p.Date); err != nil {
		return core.Expense{}, core.Payment{}, err
	}
	s.nextPay++
	p.ID = s.nextPay
	p.ExpenseID = expenseID
	s.items[expenseID] = e
	s.payments[expenseID] = append(s.payments[expenseID], p)
	return e, p, nil
}

func (s *Store) ListPayments(_ context.Context, expenseID int64) ([]core.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[expenseID]; !ok {
		return nil, notFound(expenseID)
	}
	return append([]core.Payment{}, s.payments[expenseID]...), nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func notFound(id int64) error {
	return fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
}
