package importer

import (
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"moneybook/internal/category"
	"moneybook/internal/core"
)

// accountColors is the fixed rotation used when synthesizing accounts for
// names the import has never seen.
var accountColors = []string{
	"#4CAF50", "#2196F3", "#FF9800", "#9C27B0",
	"#F44336", "#00BCD4", "#795548", "#607D8B",
}

// RowResult is the tagged per-row outcome of a reconciliation: either a
// produced transaction or a skip with its reason. Row numbers are 1-based
// over the data rows (the header is not counted).
type RowResult struct {
	Row         int
	Transaction *core.Transaction
	SkipReason  string
}

// Ok reports whether the row produced a transaction.
func (r RowResult) Ok() bool { return r.Transaction != nil }

// Result aggregates a reconciliation run. Accounts is the input account list
// possibly extended with synthesized entries; inputs are never mutated.
type Result struct {
	Rows         []RowResult
	Transactions []core.Transaction
	Accounts     []core.Account
	Imported     int
}

// Reconciler maps raw external rows onto the internal namespace.
type Reconciler struct {
	registry *category.Registry
	newID    func() string
}

// NewReconciler builds a reconciler over the given category registry. newID
// may be nil, in which case UUIDs are generated; tests inject a deterministic
// generator.
func NewReconciler(registry *category.Registry, newID func() string) *Reconciler {
	if newID == nil {
		newID = uuid.NewString
	}
	return &Reconciler{registry: registry, newID: newID}
}

// Reconcile turns raw rows into transactions, resolving account and category
// names against a working account list seeded from existing. Rows share the
// working list, so two rows naming the same unknown account resolve to the
// same synthesized id. Row-level failures are isolated; the batch never
// aborts. Running twice without persisting in between duplicates transactions
// under fresh ids; cross-run dedup is out of scope.
//
// Two row shapes are accepted: the full 8-field CSV shape
// [date, type, amount, category, description, location, account, toAccount]
// and the 4-field spreadsheet-restore subset [date, amount, description, category].
func (r *Reconciler) Reconcile(rows [][]string, existing []core.Account) Result {
	result := Result{
		Accounts: append([]core.Account(nil), existing...),
	}
	byName := make(map[string]string, len(existing))
	for _, a := range existing {
		byName[a.Name] = a.ID
	}

	for i, raw := range rows {
		rowNum := i + 1
		tx, reason := r.reconcileRow(raw, &result.Accounts, byName)
		if tx == nil {
			result.Rows = append(result.Rows, RowResult{Row: rowNum, SkipReason: reason})
			continue
		}
		result.Rows = append(result.Rows, RowResult{Row: rowNum, Transaction: tx})
		result.Transactions = append(result.Transactions, *tx)
		result.Imported++
	}

	return result
}

func (r *Reconciler) reconcileRow(raw []string, accounts *[]core.Account, byName map[string]string) (*core.Transaction, string) {
	var dateRaw, typeLabel, amountRaw, categoryName, description, location, accountName, toAccountName string

	switch {
	case len(raw) >= 8:
		dateRaw, typeLabel, amountRaw = raw[0], raw[1], raw[2]
		categoryName, description, location = raw[3], raw[4], raw[5]
		accountName, toAccountName = raw[6], raw[7]
	case len(raw) == 4:
		// Spreadsheet-restore subset: [date, amount, description, category].
		dateRaw, amountRaw, description, categoryName = raw[0], raw[1], raw[2], raw[3]
	default:
		return nil, "not enough fields"
	}

	amount, ok := parseAmount(amountRaw)
	if !ok {
		// Discard the whole row before any account synthesis side effect.
		return nil, "non-numeric amount: " + strings.TrimSpace(amountRaw)
	}

	txType := ParseTypeLabel(typeLabel)

	// Keep the raw text when the date does not normalize; downstream views
	// misplace such rows, they are never dropped for the date alone.
	date, normalized := core.NormalizeDate(dateRaw)
	if !normalized {
		slog.Debug("keeping unnormalized import date", "raw", dateRaw)
	}

	tx := &core.Transaction{
		ID:          r.newID(),
		Date:        date,
		Amount:      core.NewAmount(amount),
		Type:        txType,
		Category:    r.registry.Resolve(strings.TrimSpace(categoryName), txType),
		Description: strings.TrimSpace(description),
		Location:    strings.TrimSpace(location),
	}

	if name := strings.TrimSpace(accountName); name != "" {
		tx.AccountID = r.resolveAccount(name, accounts, byName)
	}
	if name := strings.TrimSpace(toAccountName); name != "" && txType == core.Transfer {
		tx.ToAccountID = r.resolveAccount(name, accounts, byName)
	}

	return tx, ""
}

// resolveAccount finds an account by exact name in the working list, or
// synthesizes one with a fresh id, OTHER type, zero initial balance and the
// next color in the rotation.
func (r *Reconciler) resolveAccount(name string, accounts *[]core.Account, byName map[string]string) string {
	if id, ok := byName[name]; ok {
		return id
	}
	account := core.Account{
		ID:    r.newID(),
		Name:  name,
		Type:  core.Other,
		Color: accountColors[len(*accounts)%len(accountColors)],
	}
	*accounts = append(*accounts, account)
	byName[name] = account.ID
	return account.ID
}

// parseAmount strips grouping separators and parses the amount, rounding to a
// whole unit. Negative or non-numeric values fail.
func parseAmount(raw string) (int64, bool) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return 0, false
	}
	return d.Round(0).IntPart(), true
}
