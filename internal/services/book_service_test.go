package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"moneybook/internal/category"
	"moneybook/internal/core"
	"moneybook/internal/importer"
	"moneybook/internal/sheets/memory"
	"moneybook/internal/storage"
)

func newTestService(t *testing.T) *BookService {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "moneybook.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	svc, err := NewBookService(context.Background(), repo, nil, category.Default())
	if err != nil {
		t.Fatalf("NewBookService: %v", err)
	}
	svc.newID = sequentialIDs("id")
	return svc
}

func addTestAccount(t *testing.T, svc *BookService, name string) core.Account {
	t.Helper()
	a, err := svc.AddAccount(context.Background(), core.Account{Name: name, Type: core.Cash})
	if err != nil {
		t.Fatalf("AddAccount(%s): %v", name, err)
	}
	return a
}

func TestAddTransactionPrepends(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	acc := addTestAccount(t, svc, "現金")

	first, err := svc.AddTransaction(ctx, core.Transaction{
		Date: "2024-03-05", Amount: core.NewAmount(120), Type: core.Expense,
		Category: "cat_food", Description: "午餐", AccountID: acc.ID,
	})
	if err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}
	second, err := svc.AddTransaction(ctx, core.Transaction{
		Date: "2024-03-06", Amount: core.NewAmount(80), Type: core.Expense,
		Category: "cat_food", Description: "早餐", AccountID: acc.ID,
	})
	if err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}

	snap := svc.Snapshot()
	if len(snap.Transactions) != 2 {
		t.Fatalf("got %d transactions, want 2", len(snap.Transactions))
	}
	if snap.Transactions[0].ID != second.ID || snap.Transactions[1].ID != first.ID {
		t.Errorf("log order = [%s, %s], want newest first", snap.Transactions[0].ID, snap.Transactions[1].ID)
	}
}

func TestAddTransactionValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	acc := addTestAccount(t, svc, "現金")

	tests := []struct {
		name string
		tx   core.Transaction
		want error
	}{
		{"invalid amount", core.Transaction{Type: core.Expense, AccountID: acc.ID}, core.ErrInvalidAmount},
		{"unknown type", core.Transaction{Amount: core.NewAmount(10), Type: "REFUND", AccountID: acc.ID}, core.ErrUnknownType},
		{"missing account", core.Transaction{Amount: core.NewAmount(10), Type: core.Expense}, core.ErrMissingAccount},
		{"transfer without destination", core.Transaction{Amount: core.NewAmount(10), Type: core.Transfer, AccountID: acc.ID}, core.ErrMissingAccount},
		{"self transfer", core.Transaction{Amount: core.NewAmount(10), Type: core.Transfer, AccountID: acc.ID, ToAccountID: acc.ID}, core.ErrSameAccount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.AddTransaction(ctx, tt.tx); err != tt.want {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if n := len(svc.Snapshot().Transactions); n != 0 {
		t.Errorf("rejected transactions reached the log: %d", n)
	}
}

func TestBalancesReflectLog(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cash, _ := svc.AddAccount(ctx, core.Account{Name: "現金", Type: core.Cash, InitialBalance: 2000})
	bank, _ := svc.AddAccount(ctx, core.Account{Name: "銀行", Type: core.Bank, InitialBalance: 150000})

	svc.AddTransaction(ctx, core.Transaction{Date: "2024-03-05", Amount: core.NewAmount(500),
		Type: core.Expense, Category: "cat_food", AccountID: cash.ID})
	svc.AddTransaction(ctx, core.Transaction{Date: "2024-03-06", Amount: core.NewAmount(1000),
		Type: core.Transfer, Category: "cat_transfer", AccountID: cash.ID, ToAccountID: bank.ID})

	balances := svc.Balances()
	if balances[cash.ID] != 500 {
		t.Errorf("cash balance = %d, want 500", balances[cash.ID])
	}
	if balances[bank.ID] != 151000 {
		t.Errorf("bank balance = %d, want 151000", balances[bank.ID])
	}
}

func TestMoveAccount(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	a := addTestAccount(t, svc, "A")
	b := addTestAccount(t, svc, "B")
	c := addTestAccount(t, svc, "C")

	if err := svc.MoveAccount(ctx, c.ID, 0); err != nil {
		t.Fatalf("MoveAccount: %v", err)
	}
	got := svc.Snapshot().Accounts
	if got[0].ID != c.ID || got[1].ID != a.ID || got[2].ID != b.ID {
		t.Errorf("order = [%s %s %s], want [C A B]", got[0].Name, got[1].Name, got[2].Name)
	}

	// Out-of-range target clamps to the end.
	if err := svc.MoveAccount(ctx, c.ID, 99); err != nil {
		t.Fatalf("MoveAccount: %v", err)
	}
	got = svc.Snapshot().Accounts
	if got[2].ID != c.ID {
		t.Errorf("clamped move: order = [%s %s %s]", got[0].Name, got[1].Name, got[2].Name)
	}

	if err := svc.MoveAccount(ctx, "nope", 0); err == nil {
		t.Error("expected error for unknown account")
	}
}

func TestProcessDueTemplates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	acc := addTestAccount(t, svc, "現金")

	if _, err := svc.AddRecurring(ctx, core.RecurringTransaction{
		Frequency: core.Monthly, StartDate: "2024-01-31", NextDueDate: "2024-01-31",
		Amount: core.NewAmount(1200), Type: core.Expense, Category: "cat_housing",
		Description: "Rent", AccountID: acc.ID,
	}); err != nil {
		t.Fatalf("AddRecurring: %v", err)
	}

	created, err := svc.ProcessDueTemplates(ctx, time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ProcessDueTemplates: %v", err)
	}
	if created != 2 {
		t.Fatalf("created = %d, want 2", created)
	}

	snap := svc.Snapshot()
	if len(snap.Transactions) != 2 {
		t.Fatalf("log has %d transactions, want 2", len(snap.Transactions))
	}
	for _, tx := range snap.Transactions {
		if !tx.IsRecurringInstance {
			t.Errorf("instance %s not flagged recurring", tx.ID)
		}
	}
	if snap.RecurringTransactions[0].NextDueDate != "2024-03-29" {
		t.Errorf("NextDueDate = %s, want 2024-03-29", snap.RecurringTransactions[0].NextDueDate)
	}

	// Same-day rerun is a no-op.
	created, err = svc.ProcessDueTemplates(ctx, time.Date(2024, time.March, 15, 23, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ProcessDueTemplates rerun: %v", err)
	}
	if created != 0 {
		t.Errorf("rerun created %d instances, want 0", created)
	}
}

func TestProcessDueTemplatesKeepsOtherWritersTransactions(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "moneybook.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	defer repo.Close()
	ctx := context.Background()

	// Two services over the same database, as the API server and the
	// recurring worker run in the shipped deployment.
	api, err := NewBookService(ctx, repo, nil, category.Default())
	if err != nil {
		t.Fatalf("NewBookService api: %v", err)
	}
	worker, err := NewBookService(ctx, repo, nil, category.Default())
	if err != nil {
		t.Fatalf("NewBookService worker: %v", err)
	}

	acc, err := api.AddAccount(ctx, core.Account{Name: "現金", Type: core.Cash})
	if err != nil {
		t.Fatalf("AddAccount: %v", err)
	}
	if _, err := api.AddTransaction(ctx, core.Transaction{
		Date: "2024-03-05", Amount: core.NewAmount(120), Type: core.Expense,
		Category: "cat_food", AccountID: acc.ID,
	}); err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}

	// The worker never saw that transaction; its pass must not rewrite the
	// persisted log from its stale snapshot.
	if _, err := worker.ProcessDueTemplates(ctx, time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("ProcessDueTemplates: %v", err)
	}

	snap, err := repo.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(snap.Transactions) != 1 {
		t.Fatalf("persisted transactions = %d, want 1", len(snap.Transactions))
	}
}

func TestProcessDueTemplatesPersistsAdvancedSchedule(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "moneybook.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	defer repo.Close()
	ctx := context.Background()

	svc, err := NewBookService(ctx, repo, nil, category.Default())
	if err != nil {
		t.Fatalf("NewBookService: %v", err)
	}
	acc := addTestAccount(t, svc, "現金")
	if _, err := svc.AddRecurring(ctx, core.RecurringTransaction{
		Frequency: core.Monthly, StartDate: "2024-01-31", NextDueDate: "2024-01-31",
		Amount: core.NewAmount(1200), Type: core.Expense, Category: "cat_housing",
		Description: "Rent", AccountID: acc.ID,
	}); err != nil {
		t.Fatalf("AddRecurring: %v", err)
	}

	if _, err := svc.ProcessDueTemplates(ctx, time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("ProcessDueTemplates: %v", err)
	}

	reloaded, err := NewBookService(ctx, repo, nil, category.Default())
	if err != nil {
		t.Fatalf("NewBookService reload: %v", err)
	}
	snap := reloaded.Snapshot()
	if len(snap.Transactions) != 2 {
		t.Fatalf("persisted instances = %d, want 2", len(snap.Transactions))
	}
	rt := snap.RecurringTransactions[0]
	if rt.NextDueDate != "2024-03-29" || rt.LastGenerated != "2024-02-29" {
		t.Errorf("persisted schedule = (%s, %s), want (2024-03-29, 2024-02-29)",
			rt.NextDueDate, rt.LastGenerated)
	}

	// A fresh process running the same day spawns nothing more.
	created, err := reloaded.ProcessDueTemplates(ctx, time.Date(2024, time.March, 15, 23, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ProcessDueTemplates rerun: %v", err)
	}
	if created != 0 {
		t.Errorf("rerun created %d instances, want 0", created)
	}
}

func TestRecurringFromTransaction(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	acc := addTestAccount(t, svc, "現金")

	tx, err := svc.AddTransaction(ctx, core.Transaction{
		Date: "2024-03-31", Amount: core.NewAmount(299), Type: core.Expense,
		Category: "cat_entertainment", Description: "訂閱", AccountID: acc.ID,
	})
	if err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}

	rt, err := svc.CreateRecurringFromTransaction(ctx, tx, core.Monthly, "")
	if err != nil {
		t.Fatalf("CreateRecurringFromTransaction: %v", err)
	}
	if rt.StartDate != "2024-03-31" {
		t.Errorf("StartDate = %s", rt.StartDate)
	}
	// The saved transaction covers March; the template starts with April,
	// clamped to the month end.
	if rt.NextDueDate != "2024-04-30" {
		t.Errorf("NextDueDate = %s, want 2024-04-30", rt.NextDueDate)
	}
	if rt.Amount != tx.Amount || rt.Category != tx.Category || rt.AccountID != tx.AccountID {
		t.Errorf("template fields diverge: %+v", rt)
	}
}

func TestImportCSVAndPersistence(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	csv := "日期,類型,金額,分類,備註,地點,帳戶,轉入帳戶\n" +
		"2024-03-05,支出,120,飲食,午餐,台北,現金,\n" +
		"2024-03-06,支出,oops,飲食,bad,,現金,\n"

	result, err := svc.ImportCSV(ctx, []byte(csv))
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if result.Imported != 1 {
		t.Errorf("Imported = %d, want 1", result.Imported)
	}

	snap := svc.Snapshot()
	if len(snap.Accounts) != 1 || snap.Accounts[0].Name != "現金" {
		t.Errorf("accounts = %+v", snap.Accounts)
	}
	if len(snap.Transactions) != 1 || snap.Transactions[0].Description != "午餐" {
		t.Errorf("transactions = %+v", snap.Transactions)
	}
}

func TestImportCSVRejectsBadHeader(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.ImportCSV(context.Background(), []byte("a,b,c\n")); err != importer.ErrBadHeader {
		t.Errorf("err = %v, want ErrBadHeader", err)
	}
}

func TestRestoreFromSheets(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	src := memory.New()
	_ = src.AppendRow(ctx, "2024-03", []string{"2024-03-05", "支出", "120", "飲食", "午餐", "", "現金", ""})
	_ = src.AppendRow(ctx, "2024-04", []string{"2024-04-02", "收入", "50000", "薪資", "薪水", "", "銀行", ""})

	result, err := svc.RestoreFromSheets(ctx, src)
	if err != nil {
		t.Fatalf("RestoreFromSheets: %v", err)
	}
	if result.Imported != 2 {
		t.Errorf("Imported = %d, want 2", result.Imported)
	}
	if len(svc.Snapshot().Accounts) != 2 {
		t.Errorf("accounts = %+v", svc.Snapshot().Accounts)
	}
}

func TestExportCSVRoundTripsThroughImport(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	acc := addTestAccount(t, svc, "現金")

	svc.AddTransaction(ctx, core.Transaction{Date: "2024-03-05", Amount: core.NewAmount(120),
		Type: core.Expense, Category: "cat_food", Description: "午餐", AccountID: acc.ID})

	data := svc.ExportCSV()
	rows, err := importer.ParseCSV(data)
	if err != nil {
		t.Fatalf("ParseCSV on export: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("export rows = %d, want 1", len(rows))
	}
}

func TestBackupStampsSnapshot(t *testing.T) {
	svc := newTestService(t)
	now := time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

	backup := svc.Backup(now)
	if backup.Version != core.BackupVersion {
		t.Errorf("Version = %q", backup.Version)
	}
	if !backup.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v", backup.Timestamp)
	}
}

func TestThemeSurvivesReload(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "moneybook.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	defer repo.Close()
	ctx := context.Background()

	svc, err := NewBookService(ctx, repo, nil, category.Default())
	if err != nil {
		t.Fatalf("NewBookService: %v", err)
	}
	svc.SetTheme(ctx, "dark")

	reloaded, err := NewBookService(ctx, repo, nil, category.Default())
	if err != nil {
		t.Fatalf("NewBookService reload: %v", err)
	}
	if got := reloaded.Snapshot().Theme; got != "dark" {
		t.Errorf("theme after reload = %q, want dark", got)
	}
}

func TestDeleteAccountKeepsTransactions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	acc := addTestAccount(t, svc, "現金")

	svc.AddTransaction(ctx, core.Transaction{Date: "2024-03-05", Amount: core.NewAmount(120),
		Type: core.Expense, Category: "cat_food", AccountID: acc.ID})

	if err := svc.DeleteAccount(ctx, acc.ID); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}

	snap := svc.Snapshot()
	if len(snap.Transactions) != 1 {
		t.Errorf("transactions after account delete = %d, want 1", len(snap.Transactions))
	}
	if len(svc.Balances()) != 0 {
		t.Errorf("balances include deleted account: %v", svc.Balances())
	}
}
