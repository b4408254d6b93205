// Package category provides the static category namespace: stable ids mapped
// to display names, scoped by transaction kind.
package category

import (
	"moneybook/internal/core"
)

// Fallback ids used when an imported category name matches nothing; the
// registry never invents new categories.
const (
	FallbackIncome   = "cat_other_inc"
	FallbackExpense  = "cat_other_exp"
	FallbackTransfer = "cat_transfer"
)

type entry struct {
	id   string
	name string
	kind core.TransactionType
}

// Registry is an immutable id/name lookup.
type Registry struct {
	entries []entry
	byID    map[string]int
}

// Default returns the built-in category set.
func Default() *Registry {
	return newRegistry([]entry{
		{"cat_salary", "薪資", core.Income},
		{"cat_bonus", "獎金", core.Income},
		{"cat_invest_inc", "投資收入", core.Income},
		{"cat_other_inc", "其他收入", core.Income},

		{"cat_food", "飲食", core.Expense},
		{"cat_transport", "交通", core.Expense},
		{"cat_housing", "居住", core.Expense},
		{"cat_entertainment", "娛樂", core.Expense},
		{"cat_medical", "醫療", core.Expense},
		{"cat_shopping", "購物", core.Expense},
		{"cat_education", "教育", core.Expense},
		{"cat_other_exp", "其他支出", core.Expense},

		{"cat_transfer", "轉帳", core.Transfer},
	})
}

func newRegistry(entries []entry) *Registry {
	r := &Registry{entries: entries, byID: make(map[string]int, len(entries))}
	for i, e := range entries {
		r.byID[e.id] = i
	}
	return r
}

// Name returns the display name for a category id.
func (r *Registry) Name(id string) (string, bool) {
	i, ok := r.byID[id]
	if !ok {
		return "", false
	}
	return r.entries[i].name, true
}

// IDs lists the category ids for a transaction kind, in display order.
func (r *Registry) IDs(kind core.TransactionType) []string {
	var out []string
	for _, e := range r.entries {
		if e.kind == kind {
			out = append(out, e.id)
		}
	}
	return out
}

// Fallback returns the catch-all category id for a transaction kind.
func (r *Registry) Fallback(kind core.TransactionType) string {
	switch kind {
	case core.Income:
		return FallbackIncome
	case core.Transfer:
		return FallbackTransfer
	default:
		return FallbackExpense
	}
}

// Resolve maps a display name (or a raw id) onto a category id. Exact matches
// win; anything else falls back by transaction kind.
func (r *Registry) Resolve(name string, kind core.TransactionType) string {
	for _, e := range r.entries {
		if e.name == name || e.id == name {
			return e.id
		}
	}
	return r.Fallback(kind)
}

// NameOrID returns the display name when the id is known, otherwise the id
// itself. Exported rows stay readable even for categories from older data.
func (r *Registry) NameOrID(id string) string {
	if name, ok := r.Name(id); ok {
		return name
	}
	return id
}
