package category

import (
	"testing"

	"moneybook/internal/core"
)

func TestResolve(t *testing.T) {
	r := Default()

	tests := []struct {
		name  string
		input string
		kind  core.TransactionType
		want  string
	}{
		{"exact expense name", "飲食", core.Expense, "cat_food"},
		{"exact income name", "薪資", core.Income, "cat_salary"},
		{"raw id passes through", "cat_transport", core.Expense, "cat_transport"},
		{"unknown expense falls back", "神秘", core.Expense, FallbackExpense},
		{"unknown income falls back", "神秘", core.Income, FallbackIncome},
		{"unknown transfer falls back", "神秘", core.Transfer, FallbackTransfer},
		{"empty name falls back", "", core.Expense, FallbackExpense},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Resolve(tt.input, tt.kind); got != tt.want {
				t.Errorf("Resolve(%q, %s) = %q, want %q", tt.input, tt.kind, got, tt.want)
			}
		})
	}
}

func TestName(t *testing.T) {
	r := Default()

	name, ok := r.Name("cat_food")
	if !ok || name != "飲食" {
		t.Errorf("Name(cat_food) = %q, %v", name, ok)
	}
	if _, ok := r.Name("cat_nothing"); ok {
		t.Error("unknown id reported as known")
	}
}

func TestNameOrID(t *testing.T) {
	r := Default()
	if got := r.NameOrID("cat_salary"); got != "薪資" {
		t.Errorf("NameOrID(cat_salary) = %q", got)
	}
	if got := r.NameOrID("cat_legacy"); got != "cat_legacy" {
		t.Errorf("NameOrID(cat_legacy) = %q", got)
	}
}

func TestIDsScopedByKind(t *testing.T) {
	r := Default()

	income := r.IDs(core.Income)
	if len(income) != 4 {
		t.Errorf("got %d income categories, want 4", len(income))
	}
	expense := r.IDs(core.Expense)
	if len(expense) != 8 {
		t.Errorf("got %d expense categories, want 8", len(expense))
	}
	transfer := r.IDs(core.Transfer)
	if len(transfer) != 1 || transfer[0] != FallbackTransfer {
		t.Errorf("transfer categories = %v", transfer)
	}

	// Fallbacks are real members of their kind's list.
	found := false
	for _, id := range expense {
		if id == FallbackExpense {
			found = true
		}
	}
	if !found {
		t.Errorf("%s missing from expense ids", FallbackExpense)
	}
}
