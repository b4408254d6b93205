// Package google implements the spreadsheet ports against the Google Sheets
// API using service-account credentials.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"moneybook/internal/importer"
	ports "moneybook/internal/sheets"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
}

// Ensure interface conformance
var (
	_ ports.RowSource = (*Client)(nil)
	_ ports.RowSink   = (*Client)(nil)
)

// Monthly sheets are titled "YYYY-MM"; anything else is ignored on read,
// except the fallback sheet holding rows with unparseable dates.
var sheetKeyPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

func isDataSheet(title string) bool {
	return sheetKeyPattern.MatchString(title) || title == ports.FallbackSheetKey
}

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID.
// Credentials: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or
// GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{svc: svc, spreadsheetID: spreadsheetID}, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// ReadAllRows scans every monthly sheet plus the fallback sheet and returns
// their data rows. The header row is skipped; row shape is the CSV field
// order.
func (c *Client) ReadAllRows(ctx context.Context) (map[string][][]string, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}

	meta, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get spreadsheet metadata: %w", err)
	}

	out := map[string][][]string{}
	for _, sheet := range meta.Sheets {
		title := sheet.Properties.Title
		if !isDataSheet(title) {
			continue
		}
		rng := fmt.Sprintf("%s!A2:H", title)
		resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", rng, err)
		}
		var rows [][]string
		for _, row := range resp.Values {
			cols := toStrings(row)
			if isEmptyRow(cols) {
				continue
			}
			rows = append(rows, cols)
		}
		if len(rows) > 0 {
			out[title] = rows
		}
	}

	slog.InfoContext(ctx, "Read spreadsheet rows", "sheets", len(out))
	return out, nil
}

// WriteRows replaces the data rows of a monthly sheet, creating the sheet and
// its header when missing.
func (c *Client) WriteRows(ctx context.Context, sheetKey string, rows [][]string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if err := c.ensureSheet(ctx, sheetKey); err != nil {
		return err
	}

	clearRange := fmt.Sprintf("%s!A2:H", sheetKey)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", clearRange, err)
	}

	values := make([][]any, 0, len(rows)+1)
	values = append(values, toAnys(importer.Header))
	for _, row := range rows {
		values = append(values, toAnys(row))
	}
	vr := &gsheet.ValueRange{Values: values}
	rng := fmt.Sprintf("%s!A1", sheetKey)
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}

	return nil
}

// AppendRow adds a single row to a monthly sheet.
func (c *Client) AppendRow(ctx context.Context, sheetKey string, row []string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if err := c.ensureSheet(ctx, sheetKey); err != nil {
		return err
	}

	vr := &gsheet.ValueRange{Values: [][]any{toAnys(row)}}
	rng := fmt.Sprintf("%s!A1:H", sheetKey)
	if _, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do(); err != nil {
		return fmt.Errorf("append to %s: %w", rng, err)
	}
	return nil
}

// ensureSheet creates the monthly sheet with its header row if it does not
// exist yet.
func (c *Client) ensureSheet(ctx context.Context, sheetKey string) error {
	meta, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet metadata: %w", err)
	}
	for _, sheet := range meta.Sheets {
		if sheet.Properties.Title == sheetKey {
			return nil
		}
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: sheetKey},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", sheetKey, err)
	}

	vr := &gsheet.ValueRange{Values: [][]any{toAnys(importer.Header)}}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, sheetKey+"!A1", vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write header for %s: %w", sheetKey, err)
	}

	slog.InfoContext(ctx, "Created monthly sheet", "sheet", sheetKey)
	return nil
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func toAnys(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func isEmptyRow(cols []string) bool {
	for _, c := range cols {
		if c != "" {
			return false
		}
	}
	return true
}
