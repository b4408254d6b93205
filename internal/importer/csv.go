// Package importer reconciles externally-sourced rows (CSV files, spreadsheet
// restores) against the account and category namespace, and produces the
// matching CSV export.
package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"moneybook/internal/category"
	"moneybook/internal/core"
)

// Header is the bit-exact CSV contract: this exact first row is required on
// import and written on export.
var Header = []string{"日期", "類型", "金額", "分類", "備註", "地點", "帳戶", "轉入帳戶"}

// Localized type-column labels.
const (
	LabelIncome   = "收入"
	LabelExpense  = "支出"
	LabelTransfer = "轉帳"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrBadHeader rejects files that do not open with the expected header row.
var ErrBadHeader = errors.New("unexpected CSV header")

// ParseTypeLabel maps a localized type label onto a transaction type.
// Unrecognized labels default to EXPENSE.
func ParseTypeLabel(label string) core.TransactionType {
	switch strings.TrimSpace(label) {
	case LabelIncome:
		return core.Income
	case LabelTransfer:
		return core.Transfer
	default:
		return core.Expense
	}
}

// TypeLabel renders a transaction type as its localized CSV label.
func TypeLabel(t core.TransactionType) string {
	switch t {
	case core.Income:
		return LabelIncome
	case core.Transfer:
		return LabelTransfer
	default:
		return LabelExpense
	}
}

// ParseCSV validates the header and returns the raw data rows. Ragged rows
// are tolerated here; per-row validation happens during reconciliation.
func ParseCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrBadHeader
	}

	header := records[0]
	if len(header) != len(Header) {
		return nil, ErrBadHeader
	}
	for i, h := range header {
		if strings.TrimSpace(h) != Header[i] {
			return nil, ErrBadHeader
		}
	}

	return records[1:], nil
}

// ExportCSV renders transactions in the CSV contract: UTF-8 with byte-order
// mark, header row, one quoted row per transaction. Account ids are rendered
// as names so the file round-trips through Reconcile.
func ExportCSV(transactions []core.Transaction, accounts []core.Account, registry *category.Registry) []byte {
	names := make(map[string]string, len(accounts))
	for _, a := range accounts {
		names[a.ID] = a.Name
	}

	var buf bytes.Buffer
	buf.Write(utf8BOM)
	w := csv.NewWriter(&buf)
	w.Write(Header)
	for _, t := range transactions {
		w.Write(ExportRow(t, names, registry))
	}
	w.Flush()
	return buf.Bytes()
}

// ExportRow renders a single transaction in the CSV field order. The same
// shape is written to spreadsheet rows so restore stays consistent with
// export.
func ExportRow(t core.Transaction, accountNames map[string]string, registry *category.Registry) []string {
	amount := ""
	if t.Amount.Valid {
		amount = strconv.FormatInt(t.Amount.Value, 10)
	}
	toName := ""
	if t.ToAccountID != "" {
		toName = accountName(accountNames, t.ToAccountID)
	}
	return []string{
		string(t.Date),
		TypeLabel(t.Type),
		amount,
		registry.NameOrID(t.Category),
		t.Description,
		t.Location,
		accountName(accountNames, t.AccountID),
		toName,
	}
}

func accountName(names map[string]string, id string) string {
	if name, ok := names[id]; ok {
		return name
	}
	return id
}
