package sheets

import (
	"context"

	"wedding-expenses/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerExporter mirrors the whole expense ledger somewhere humans read
	// it. Exports replace the previous content, so repeating one is harmless.
	LedgerExporter interface {
		ExportLedger(ctx context.Context, expenses []core.Expense) error
	}
)
