package sheets

import "context"

// FallbackSheetKey receives rows whose date never parsed and therefore has no
// year-month bucket of its own. Restore scans this sheet too.
const FallbackSheetKey = "unknown"

// Ports for the spreadsheet sync collaborator. Sheets are keyed by "YYYY-MM";
// rows use the same field order as the CSV export so restore is consistent
// with export.
type (
	// RowSource reads every monthly sheet.
	RowSource interface {
		// ReadAllRows returns data rows (header excluded) keyed by sheet.
		ReadAllRows(ctx context.Context) (map[string][][]string, error)
	}

	// RowSink writes rows into a monthly sheet.
	RowSink interface {
		// WriteRows replaces the sheet's data rows.
		WriteRows(ctx context.Context, sheetKey string, rows [][]string) error
		// AppendRow adds a single row after the existing ones.
		AppendRow(ctx context.Context, sheetKey string, row []string) error
	}
)
