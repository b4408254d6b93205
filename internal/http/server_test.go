package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"moneybook/internal/category"
	"moneybook/internal/core"
	"moneybook/internal/services"
	"moneybook/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "moneybook.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	book, err := services.NewBookService(context.Background(), repo, nil, category.Default())
	if err != nil {
		t.Fatalf("NewBookService: %v", err)
	}

	srv := NewServer(":0", book, nil, nil)
	t.Cleanup(func() { srv.rateLimiter.stop() })
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, srv, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}
}

func TestBalancesIncludeCaughtUpInstances(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/accounts", core.Account{Name: "現金", Type: core.Cash, InitialBalance: 5000})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create account status = %d: %s", rec.Code, rec.Body)
	}
	var created struct {
		Account core.Account `json:"account"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode account: %v", err)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/recurring", core.RecurringTransaction{
		Frequency: core.Monthly, StartDate: "2024-01-15", NextDueDate: "2024-01-15",
		Amount: core.NewAmount(1000), Type: core.Expense, Category: "cat_housing",
		Description: "Rent", AccountID: created.Account.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create recurring status = %d: %s", rec.Code, rec.Body)
	}

	// The startup catch-up pass runs before the server reads balances.
	if _, err := srv.book.ProcessDueTemplates(context.Background(),
		time.Date(2024, time.March, 20, 9, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("ProcessDueTemplates: %v", err)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/balances", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("balances status = %d: %s", rec.Code, rec.Body)
	}
	var balances map[string]int64
	if err := json.Unmarshal(rec.Body.Bytes(), &balances); err != nil {
		t.Fatalf("decode balances: %v", err)
	}
	// Three monthly instances (Jan, Feb, Mar) debited.
	if balances[created.Account.ID] != 2000 {
		t.Errorf("balance = %d, want 2000", balances[created.Account.ID])
	}
}

func TestAccountAndTransactionFlow(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/accounts", core.Account{Name: "現金", Type: core.Cash, InitialBalance: 2000})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create account status = %d: %s", rec.Code, rec.Body)
	}
	var created struct {
		Account core.Account `json:"account"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode account: %v", err)
	}
	if created.Account.ID == "" {
		t.Fatal("account id not assigned")
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"date":      "2024-03-05",
		"amount":    120,
		"type":      "EXPENSE",
		"category":  "cat_food",
		"accountId": created.Account.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create transaction status = %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/balances", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("balances status = %d", rec.Code)
	}
	var balances struct {
		Balances map[string]int64 `json:"balances"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &balances); err != nil {
		t.Fatalf("decode balances: %v", err)
	}
	if balances.Balances[created.Account.ID] != 1880 {
		t.Errorf("balance = %d, want 1880", balances.Balances[created.Account.ID])
	}
}

func TestCreateTransactionWithRecurrence(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/accounts", core.Account{Name: "現金", Type: core.Cash})
	var created struct {
		Account core.Account `json:"account"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &created)

	rec = doJSON(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"date":      "2024-03-31",
		"amount":    299,
		"type":      "EXPENSE",
		"category":  "cat_entertainment",
		"accountId": created.Account.ID,
		"recurring": map[string]any{"frequency": "MONTHLY"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Recurring core.RecurringTransaction `json:"recurring"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Recurring.NextDueDate != "2024-04-30" {
		t.Errorf("NextDueDate = %s, want 2024-04-30", resp.Recurring.NextDueDate)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"date": "2024-03-05", "amount": 120, "type": "EXPENSE", "category": "cat_food",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing account status = %d, want 400", rec.Code)
	}
}

func TestDeleteUnknownTransaction(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodDelete, "/api/transactions/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestThemeEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPut, "/api/theme", map[string]string{"theme": "dark"})
	if rec.Code != http.StatusOK {
		t.Fatalf("set theme status = %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPut, "/api/theme", map[string]string{"theme": "sepia"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid theme status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/theme", nil)
	var got struct {
		Theme string `json:"theme"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Theme != "dark" {
		t.Errorf("theme = %q, want dark", got.Theme)
	}
}

func TestImportExportRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	csv := "日期,類型,金額,分類,備註,地點,帳戶,轉入帳戶\n2024-03-05,支出,120,飲食,午餐,台北,現金,\n"
	req := httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader(csv))
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("import status = %d: %s", rec.Code, rec.Body)
	}
	var summary struct {
		Imported int `json:"imported"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &summary)
	if summary.Imported != 1 {
		t.Errorf("imported = %d, want 1", summary.Imported)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/export", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("export content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "午餐") {
		t.Error("export missing imported row")
	}
}

func TestImportRejectsBadHeader(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader("a,b,c\n1,2,3\n"))
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUnconfiguredIntegrationsAnswer503(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/api/ai/receipt", "/api/ai/voice", "/api/restore"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader("x"))
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", path, rec.Code)
		}
	}
}

func TestBackupEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/backup", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("backup status = %d", rec.Code)
	}
	var backup core.Backup
	if err := json.Unmarshal(rec.Body.Bytes(), &backup); err != nil {
		t.Fatalf("decode backup: %v", err)
	}
	if backup.Version != core.BackupVersion {
		t.Errorf("version = %q", backup.Version)
	}
	if backup.Timestamp.IsZero() {
		t.Error("timestamp not stamped")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodDelete, "/api/balances", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
