package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"wedding-expenses/internal/amqp"
	"wedding-expenses/internal/cache"
	"wedding-expenses/internal/core"
	"wedding-expenses/internal/log"
)

const (
	totalCacheKey   = "total"
	summaryCacheKey = "summary"
)

// ExpenseStore persists expenses and their payments.
type ExpenseStore interface {
	CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	GetExpense(ctx context.Context, id int64) (core.Expense, error)
	ListExpenses(ctx context.Context, filter core.ExpenseFilter) ([]core.Expense, error)
	UpdateExpense(ctx context.Context, id int64, mutate func(*core.Expense) error) (core.Expense, error)
	DeleteExpense(ctx context.Context, id int64) error
	SumAmounts(ctx context.Context) (core.Money, error)
	SummarizeByStatus(ctx context.Context) ([]core.StatusSummary, error)
	RecordPayment(ctx context.Context, expenseID int64, p core.Payment) (core.Expense, core.Payment, error)
	ListPayments(ctx context.Context, expenseID int64) ([]core.Payment, error)
	Ping(ctx context.Context) error
	Close() error
}

// EventPublisher announces ledger changes to other processes.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, eventType amqp.EventType, expenseID int64) error
}

// Recorder receives service-level measurements.
type Recorder interface {
	CacheLookup(cache string, hit bool)
	EventPublished(eventType string, err error)
}

type Options struct {
	// Publisher is optional; nil disables change events.
	Publisher EventPublisher
	// CacheTTL bounds how long total and summary results are reused.
	// Zero disables the aggregate cache.
	CacheTTL time.Duration
	Metrics  Recorder
	Now      func() time.Time
}

// ExpenseService applies the bookkeeping rules on top of a store, caches the
// aggregates and publishes change events.
type ExpenseService struct {
	store     ExpenseStore
	publisher EventPublisher
	metrics   Recorder
	now       func() time.Time

	totals    *cache.LRUCache[core.Money]
	summaries *cache.LRUCache[[]core.StatusSummary]

	// gen counts invalidations. An aggregate read from the store is cached
	// only if no write invalidated the caches while it was being computed.
	mu  sync.Mutex
	gen uint64
}

func NewExpenseService(store ExpenseStore, opts Options) *ExpenseService {
	s := &ExpenseService{
		store:     store,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		now:       opts.Now,
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if opts.CacheTTL > 0 {
		s.totals = cache.NewLRUCache[core.Money](1, opts.CacheTTL)
		s.summaries = cache.NewLRUCache[[]core.StatusSummary](1, opts.CacheTTL)
	}
	return s
}

// Caches returns the aggregate caches so a cache.Manager can sweep them.
func (s *ExpenseService) Caches() []cache.Cleaner {
	if s.totals == nil {
		return nil
	}
	return []cache.Cleaner{s.totals, s.summaries}
}

func (s *ExpenseService) logger(ctx context.Context) *log.Logger {
	return log.FromContext(ctx).WithComponent(log.ComponentExpense)
}

// Create validates the input, stores the expense and announces it.
func (s *ExpenseService) Create(ctx context.Context, in core.NewExpense) (core.Expense, error) {
	e, err := in.Build(s.now())
	if err != nil {
		return core.Expense{}, err
	}

	created, err := s.store.CreateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	s.invalidate()

	s.logger(ctx).InfoContext(ctx, "Expense created", log.NewFields().
		WithOperation(log.OpCreate).
		WithExpense(created.ID, created.Description, created.Amount.Cents, string(created.Category), string(created.PaymentStatus)).
		ToSlice()...)

	s.publish(ctx, amqp.EventExpenseCreated, created.ID)
	return created, nil
}

func (s *ExpenseService) Get(ctx context.Context, id int64) (core.Expense, error) {
	s.logger(ctx).DebugContext(ctx, "Fetching expense",
		log.FieldOperation, log.OpRead,
		log.FieldExpenseID, id)
	return s.store.GetExpense(ctx, id)
}

// List returns every expense.
func (s *ExpenseService) List(ctx context.Context) ([]core.Expense, error) {
	return s.list(ctx, core.ExpenseFilter{})
}

// ListByCategory matches the category exactly; unknown values yield nothing.
func (s *ExpenseService) ListByCategory(ctx context.Context, category core.Category) ([]core.Expense, error) {
	return s.list(ctx, core.ExpenseFilter{Category: &category})
}

// ListByStatus matches the payment status exactly.
func (s *ExpenseService) ListByStatus(ctx context.Context, status core.PaymentStatus) ([]core.Expense, error) {
	return s.list(ctx, core.ExpenseFilter{Status: &status})
}

func (s *ExpenseService) list(ctx context.Context, filter core.ExpenseFilter) ([]core.Expense, error) {
	expenses, err := s.store.ListExpenses(ctx, filter)
	if err != nil {
		return nil, err
	}
	fields := log.NewFields().WithOperation(log.OpList)
	if filter.Category != nil {
		fields[log.FieldCategory] = string(*filter.Category)
	}
	if filter.Status != nil {
		fields[log.FieldPaymentStatus] = string(*filter.Status)
	}
	s.logger(ctx).DebugContext(ctx, "Listed expenses", append(fields.ToSlice(), "count", len(expenses))...)
	return expenses, nil
}

// Update merges the patch and re-derives the payment figures atomically.
func (s *ExpenseService) Update(ctx context.Context, id int64, patch core.ExpensePatch) (core.Expense, error) {
	now := s.now()
	updated, err := s.store.UpdateExpense(ctx, id, func(e *core.Expense) error {
		return e.Apply(patch, now)
	})
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense %d: %w", id, err)
	}
	s.invalidate()

	s.logger(ctx).InfoContext(ctx, "Expense updated", log.NewFields().
		WithOperation(log.OpUpdate).
		WithExpense(updated.ID, updated.Description, updated.Amount.Cents, string(updated.Category), string(updated.PaymentStatus)).
		ToSlice()...)

	s.publish(ctx, amqp.EventExpenseUpdated, updated.ID)
	return updated, nil
}

func (s *ExpenseService) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	s.invalidate()

	s.logger(ctx).InfoContext(ctx, "Expense deleted",
		log.FieldOperation, log.OpDelete,
		log.FieldExpenseID, id)

	s.publish(ctx, amqp.EventExpenseDeleted, id)
	return nil
}

// Total sums every expense amount; zero for an empty ledger.
func (s *ExpenseService) Total(ctx context.Context) (core.Money, error) {
	if s.totals != nil {
		v, ok := s.totals.Get(totalCacheKey)
		s.recordLookup(totalCacheKey, ok)
		if ok {
			return v, nil
		}
	}

	gen := s.generation()
	total, err := s.store.SumAmounts(ctx)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum expenses: %w", err)
	}
	if s.totals != nil {
		s.storeIfCurrent(gen, func() { s.totals.Set(totalCacheKey, total) })
	}
	return total, nil
}

// Summary groups the ledger by payment status.
func (s *ExpenseService) Summary(ctx context.Context) ([]core.StatusSummary, error) {
	if s.summaries != nil {
		v, ok := s.summaries.Get(summaryCacheKey)
		s.recordLookup(summaryCacheKey, ok)
		if ok {
			return append([]core.StatusSummary(nil), v...), nil
		}
	}

	gen := s.generation()
	summary, err := s.store.SummarizeByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("summarize expenses: %w", err)
	}
	if s.summaries != nil {
		cached := append([]core.StatusSummary(nil), summary...)
		s.storeIfCurrent(gen, func() { s.summaries.Set(summaryCacheKey, cached) })
	}
	return summary, nil
}

// RecordPayment adds an instalment and returns the updated expense with the
// stored payment.
func (s *ExpenseService) RecordPayment(ctx context.Context, expenseID int64, amount core.Money, notes string) (core.Expense, core.Payment, error) {
	p := core.Payment{
		ExpenseID: expenseID,
		Amount:    amount,
		Notes:     notes,
		Date:      s.now(),
	}
	if err := p.Validate(); err != nil {
		return core.Expense{}, core.Payment{}, err
	}

	e, stored, err := s.store.RecordPayment(ctx, expenseID, p)
	if err != nil {
		return core.Expense{}, core.Payment{}, fmt.Errorf("record payment for expense %d: %w", expenseID, err)
	}
	s.invalidate()

	s.logger(ctx).InfoContext(ctx, "Payment recorded", log.NewFields().
		WithOperation(log.OpPayment).
		WithExpense(e.ID, e.Description, stored.Amount.Cents, string(e.Category), string(e.PaymentStatus)).
		ToSlice()...)

	s.publish(ctx, amqp.EventPaymentRecorded, e.ID)
	return e, stored, nil
}

// ListPayments returns the payment history of an existing expense.
func (s *ExpenseService) ListPayments(ctx context.Context, expenseID int64) ([]core.Payment, error) {
	return s.store.ListPayments(ctx, expenseID)
}

// Ready reports whether the store can serve requests.
func (s *ExpenseService) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *ExpenseService) invalidate() {
	if s.totals == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.totals.Purge()
	s.summaries.Purge()
}

func (s *ExpenseService) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// storeIfCurrent runs set unless a write has invalidated the caches since gen
// was read.
func (s *ExpenseService) storeIfCurrent(gen uint64, set func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		set()
	}
}

func (s *ExpenseService) recordLookup(name string, hit bool) {
	if s.metrics != nil {
		s.metrics.CacheLookup(name, hit)
	}
}

// publish never fails the caller: the write already happened.
func (s *ExpenseService) publish(ctx context.Context, eventType amqp.EventType, id int64) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishExpenseEvent(ctx, eventType, id)
	if s.metrics != nil {
		s.metrics.EventPublished(string(eventType), err)
	}
	if err != nil {
		s.logger(ctx).WarnContext(ctx, "Failed to publish expense event",
			log.FieldEventType, eventType,
			log.FieldExpenseID, id,
			log.FieldError, err)
	}
}

// Close closes the store and, when it has one, the publisher.
func (s *ExpenseService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if c, ok := s.publisher.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close expense service: %w", err)
	}
	return nil
}
