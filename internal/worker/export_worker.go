package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"wedding-expenses/internal/amqp"
	"wedding-expenses/internal/core"
	"wedding-expenses/internal/log"
	"wedding-expenses/internal/sheets"
)

// EventSource delivers expense change events until ctx is done.
type EventSource interface {
	ConsumeExpenseEvents(ctx context.Context, handler func(context.Context, *amqp.ExpenseEvent) error) error
}

// ExpenseLister reads the ledger to export.
type ExpenseLister interface {
	ListExpenses(ctx context.Context, filter core.ExpenseFilter) ([]core.Expense, error)
}

// ExportWorker keeps a spreadsheet mirror of the ledger up to date. Every
// change event triggers a full export; a periodic export covers lost events.
type ExportWorker struct {
	store    ExpenseLister
	exporter sheets.LedgerExporter
	interval time.Duration

	mu sync.Mutex // one export at a time
}

// NewExportWorker creates a worker. An interval of zero disables the
// periodic export.
func NewExportWorker(store ExpenseLister, exporter sheets.LedgerExporter, interval time.Duration) *ExportWorker {
	return &ExportWorker{
		store:    store,
		exporter: exporter,
		interval: interval,
	}
}

func logger(ctx context.Context) *log.Logger {
	return log.FromContext(ctx).WithComponent(log.ComponentWorker)
}

// HandleEvent processes a single change event from AMQP. Every export writes
// the whole ledger, so when the periodic export is enabled a failure is
// logged and the event acknowledged: the next tick repairs the sheet.
// Without it the error is returned and the message requeued.
func (w *ExportWorker) HandleEvent(ctx context.Context, ev *amqp.ExpenseEvent) error {
	logger(ctx).InfoContext(ctx, "Processing expense event",
		log.FieldEventType, ev.Type,
		log.FieldExpenseID, ev.ExpenseID,
		"timestamp", ev.Timestamp)

	err := w.Export(ctx)
	if err == nil || w.interval <= 0 {
		return err
	}
	logger(ctx).WarnContext(ctx, "Event export failed, leaving it to the periodic export",
		append(log.NewFields().WithOperation(log.OpExport).WithError(err).ToSlice(),
			log.FieldEventType, ev.Type,
			"retry_in", w.interval)...)
	return nil
}

// Export writes the current ledger to the spreadsheet.
func (w *ExportWorker) Export(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	expenses, err := w.store.ListExpenses(ctx, core.ExpenseFilter{})
	if err != nil {
		return fmt.Errorf("list expenses: %w", err)
	}

	if err := w.exporter.ExportLedger(ctx, expenses); err != nil {
		return fmt.Errorf("export ledger: %w", err)
	}
	return nil
}

// Run exports once, then follows source (when not nil) and the periodic
// ticker until ctx is done.
func (w *ExportWorker) Run(ctx context.Context, source EventSource) error {
	if err := w.Export(ctx); err != nil {
		logger(ctx).WarnContext(ctx, "Startup export failed",
			log.NewFields().WithOperation(log.OpExport).WithError(err).ToSlice()...)
	}

	parent := ctx
	g, ctx := errgroup.WithContext(ctx)

	if source != nil {
		g.Go(func() error {
			return source.ConsumeExpenseEvents(ctx, w.HandleEvent)
		})
	}

	if w.interval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(w.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					if err := w.Export(ctx); err != nil {
						logger(ctx).ErrorContext(ctx, "Periodic export failed",
							log.NewFields().WithOperation(log.OpExport).WithError(err).ToSlice()...)
					}
				}
			}
		})
	}

	// Stopping because the caller is done is not an error.
	if err := g.Wait(); err != nil && parent.Err() == nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
