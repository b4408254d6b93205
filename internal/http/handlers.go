package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"moneybook/internal/core"
)

const maxBodyBytes = 10 << 20 // uploads: CSV imports, receipt images, voice clips

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeServiceError(w http.ResponseWriter, err error) {
	if strings.Contains(err.Error(), "not found") {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// pathID extracts the trailing id segment from e.g. /api/transactions/{id}.
// A second return segment covers sub-actions like /api/accounts/{id}/move.
func pathID(path, prefix string) (id, action string) {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	parts := strings.SplitN(rest, "/", 2)
	id = parts[0]
	if len(parts) == 2 {
		action = parts[1]
	}
	return id, action
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.book.Snapshot())
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balances": s.book.Balances()})
}

func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"theme": s.book.Snapshot().Theme})
	case http.MethodPut:
		var req struct {
			Theme string `json:"theme"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Theme != "light" && req.Theme != "dark" {
			writeError(w, http.StatusBadRequest, "theme must be 'light' or 'dark'")
			return
		}
		s.book.SetTheme(r.Context(), req.Theme)
		writeJSON(w, http.StatusOK, map[string]string{"theme": req.Theme})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type categoryView struct {
	ID   string               `json:"id"`
	Name string               `json:"name"`
	Type core.TransactionType `json:"type"`
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	registry := s.book.Registry()
	var out []categoryView
	for _, kind := range []core.TransactionType{core.Income, core.Expense, core.Transfer} {
		for _, id := range registry.IDs(kind) {
			out = append(out, categoryView{ID: id, Name: registry.NameOrID(id), Type: kind})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": out})
}

type createTransactionRequest struct {
	core.Transaction
	Recurring *struct {
		Frequency core.Frequency `json:"frequency"`
		EndDate   core.Date      `json:"endDate"`
	} `json:"recurring"`
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"transactions": s.book.Snapshot().Transactions})
	case http.MethodPost:
		var req createTransactionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		t, err := s.book.AddTransaction(r.Context(), req.Transaction)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if req.Recurring != nil {
			rt, err := s.book.CreateRecurringFromTransaction(r.Context(), t, req.Recurring.Frequency, req.Recurring.EndDate)
			if err != nil {
				slog.ErrorContext(r.Context(), "Failed to create recurring template from transaction",
					"id", t.ID, "error", err)
			} else {
				writeJSON(w, http.StatusCreated, map[string]any{"transaction": t, "recurring": rt})
				return
			}
		}
		writeJSON(w, http.StatusCreated, map[string]any{"transaction": t})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleTransactionByID(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r.URL.Path, "/api/transactions/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing transaction id")
		return
	}

	switch r.Method {
	case http.MethodPut:
		var t core.Transaction
		if !decodeJSON(w, r, &t) {
			return
		}
		t.ID = id
		updated, err := s.book.UpdateTransaction(r.Context(), t)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transaction": updated})
	case http.MethodDelete:
		if err := s.book.DeleteTransaction(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"accounts": s.book.Snapshot().Accounts})
	case http.MethodPost:
		var a core.Account
		if !decodeJSON(w, r, &a) {
			return
		}
		created, err := s.book.AddAccount(r.Context(), a)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"account": created})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleAccountByID(w http.ResponseWriter, r *http.Request) {
	id, action := pathID(r.URL.Path, "/api/accounts/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing account id")
		return
	}

	if action == "move" {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req struct {
			ToIndex int `json:"toIndex"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := s.book.MoveAccount(r.Context(), id, req.ToIndex); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"accounts": s.book.Snapshot().Accounts})
		return
	}

	switch r.Method {
	case http.MethodPut:
		var a core.Account
		if !decodeJSON(w, r, &a) {
			return
		}
		a.ID = id
		updated, err := s.book.UpdateAccount(r.Context(), a)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"account": updated})
	case http.MethodDelete:
		if err := s.book.DeleteAccount(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleRecurring(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"recurringTransactions": s.book.Snapshot().RecurringTransactions})
	case http.MethodPost:
		var rt core.RecurringTransaction
		if !decodeJSON(w, r, &rt) {
			return
		}
		created, err := s.book.AddRecurring(r.Context(), rt)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"recurringTransaction": created})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleRecurringByID(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r.URL.Path, "/api/recurring/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing recurring transaction id")
		return
	}

	switch r.Method {
	case http.MethodDelete:
		if err := s.book.DeleteRecurring(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type importSummary struct {
	Imported int      `json:"imported"`
	Skipped  []string `json:"skipped,omitempty"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	result, err := s.book.ImportCSV(r.Context(), data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary := importSummary{Imported: result.Imported}
	for _, row := range result.Rows {
		if !row.Ok() {
			summary.Skipped = append(summary.Skipped, row.SkipReason)
		}
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	data := s.book.ExportCSV()
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="moneybook-export.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.book.Backup(time.Now()))
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.restoreSrc == nil {
		writeError(w, http.StatusServiceUnavailable, "spreadsheet backend not configured")
		return
	}

	result, err := s.book.RestoreFromSheets(r.Context(), s.restoreSrc)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	summary := importSummary{Imported: result.Imported}
	for _, row := range result.Rows {
		if !row.Ok() {
			summary.Skipped = append(summary.Skipped, row.SkipReason)
		}
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleReceiptExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.extractor == nil {
		writeError(w, http.StatusServiceUnavailable, "AI extraction not configured")
		return
	}

	mimeType, data, ok := readUpload(w, r, "image/jpeg")
	if !ok {
		return
	}

	fields, err := s.extractor.ExtractReceipt(r.Context(), data, mimeType)
	if err != nil {
		slog.ErrorContext(r.Context(), "Receipt extraction failed", "error", err)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, fields)
}

func (s *Server) handleVoiceExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.extractor == nil {
		writeError(w, http.StatusServiceUnavailable, "AI extraction not configured")
		return
	}

	mimeType, data, ok := readUpload(w, r, "audio/webm")
	if !ok {
		return
	}

	fields, err := s.extractor.ExtractVoice(r.Context(), data, mimeType)
	if err != nil {
		slog.ErrorContext(r.Context(), "Voice extraction failed", "error", err)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, fields)
}

// readUpload reads a raw binary upload, taking the media type from the
// Content-Type header.
func readUpload(w http.ResponseWriter, r *http.Request, defaultMime string) (mimeType string, data []byte, ok bool) {
	defer r.Body.Close()

	mimeType = r.Header.Get("Content-Type")
	if mimeType == "" || strings.HasPrefix(mimeType, "application/octet-stream") {
		mimeType = defaultMime
	}
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return "", nil, false
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty body")
		return "", nil, false
	}
	return mimeType, data, true
}
