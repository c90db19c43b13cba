package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"wedding-expenses/internal/core"
	"wedding-expenses/internal/log"
	ports "wedding-expenses/internal/sheets"
)

const dateLayout = "2006-01-02"

var ledgerHeader = []any{
	"ID", "Date", "Category", "Description", "Vendor",
	"Amount", "Status", "Paid", "Remaining",
}

// Config selects the spreadsheet and the service account used to write it.
type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountFile string
	ServiceAccountJSON string
}

type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

// Ensure interface conformance
var _ ports.LedgerExporter = (*Exporter)(nil)

// New creates an exporter authenticated with service account credentials.
func New(ctx context.Context, cfg Config) (*Exporter, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}

	credentialsJSON, err := loadCredentials(cfg)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	logger(ctx).InfoContext(ctx, "Google Sheets exporter ready",
		"spreadsheet_id", cfg.SpreadsheetID,
		"sheet", cfg.SheetName)

	return newExporter(svc, cfg.SpreadsheetID, cfg.SheetName), nil
}

func logger(ctx context.Context) *log.Logger {
	return log.FromContext(ctx).WithComponent(log.ComponentSheets)
}

func newExporter(svc *gsheet.Service, spreadsheetID, sheetName string) *Exporter {
	if sheetName == "" {
		sheetName = "Expenses"
	}
	return &Exporter{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName}
}

func loadCredentials(cfg Config) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.ServiceAccountJSON) != "":
		return []byte(cfg.ServiceAccountJSON), nil
	case cfg.ServiceAccountFile != "":
		b, err := os.ReadFile(cfg.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}

// ExportLedger replaces the sheet content with a header, one row per expense
// and a totals row.
func (x *Exporter) ExportLedger(ctx context.Context, expenses []core.Expense) error {
	if x.svc == nil {
		return errors.New("sheets service not initialized")
	}

	sheet := quoteSheet(x.sheetName)
	_, err := x.svc.Spreadsheets.Values.Clear(x.spreadsheetID, sheet+"!A:I", &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear sheet %s: %w", x.sheetName, err)
	}

	// RAW stores user text verbatim so descriptions starting with "=" are
	// never evaluated as formulas.
	vr := &gsheet.ValueRange{Values: ledgerRows(expenses)}
	_, err = x.svc.Spreadsheets.Values.Update(x.spreadsheetID, sheet+"!A1", vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write sheet %s: %w", x.sheetName, err)
	}

	logger(ctx).InfoContext(ctx, "Ledger exported",
		log.FieldOperation, log.OpExport,
		"sheet", x.sheetName,
		"rows", len(expenses))
	return nil
}

func ledgerRows(expenses []core.Expense) [][]any {
	rows := make([][]any, 0, len(expenses)+2)
	rows = append(rows, ledgerHeader)

	var amount, paid, remaining core.Money
	for _, e := range expenses {
		rows = append(rows, []any{
			e.ID,
			e.Date.Format(dateLayout),
			string(e.Category),
			e.Description,
			e.Vendor,
			e.Amount.Float(),
			string(e.PaymentStatus),
			e.TotalPaid.Float(),
			e.RemainingAmount.Float(),
		})
		amount = amount.Add(e.Amount)
		paid = paid.Add(e.TotalPaid)
		remaining = remaining.Add(e.RemainingAmount)
	}

	rows = append(rows, []any{
		"TOTAL", "", "", "", "",
		amount.Float(), "", paid.Float(), remaining.Float(),
	})
	return rows
}

// quoteSheet wraps a sheet name for A1 notation.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
