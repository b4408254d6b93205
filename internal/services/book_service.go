package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"moneybook/internal/amqp"
	"moneybook/internal/category"
	"moneybook/internal/core"
	"moneybook/internal/importer"
	"moneybook/internal/sheets"
	"moneybook/internal/storage"
)

// BookService owns the in-memory snapshot and orchestrates persistence and
// spreadsheet sync around it. The snapshot is the source of truth for the
// session: a failed persistence write is logged, never propagated as data
// loss.
type BookService struct {
	mu       sync.Mutex
	snap     core.Snapshot
	store    *storage.SQLiteRepository
	amqp     *amqp.Client
	registry *category.Registry
	newID    func() string
}

// NewBookService loads the persisted snapshot and wraps it. amqpClient may be
// nil, in which case spreadsheet sync messages are skipped.
func NewBookService(ctx context.Context, store *storage.SQLiteRepository, amqpClient *amqp.Client, registry *category.Registry) (*BookService, error) {
	snap, err := store.LoadSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return &BookService{
		snap:     snap,
		store:    store,
		amqp:     amqpClient,
		registry: registry,
		newID:    uuid.NewString,
	}, nil
}

// Registry exposes the category namespace.
func (s *BookService) Registry() *category.Registry { return s.registry }

// Snapshot returns a copy of the current state.
func (s *BookService) Snapshot() core.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

// Balances derives current balances from the full transaction log. Callers
// that also run the scheduler in the same cycle must run it first.
func (s *BookService) Balances() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.ComputeBalances(s.snap.Accounts, s.snap.Transactions)
}

// SetTheme updates the persisted UI theme.
func (s *BookService) SetTheme(ctx context.Context, theme string) {
	s.mu.Lock()
	s.snap.Theme = theme
	snap := s.snap.Clone()
	s.mu.Unlock()
	s.persistSnapshot(ctx, snap)
}

// AddTransaction validates, assigns an id when missing, prepends the
// transaction to the log, persists it and publishes a sync message.
func (s *BookService) AddTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if t.ID == "" {
		t.ID = s.newID()
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	s.mu.Lock()
	s.snap.Transactions = append([]core.Transaction{t}, s.snap.Transactions...)
	s.mu.Unlock()

	if err := s.store.AppendTransaction(ctx, t); err != nil {
		slog.ErrorContext(ctx, "Failed to persist transaction, keeping in-memory state",
			"id", t.ID, "error", err)
	}
	s.publishSync(ctx, t.ID)

	return t, nil
}

// UpdateTransaction replaces a transaction by id.
func (s *BookService) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	s.mu.Lock()
	found := false
	for i, existing := range s.snap.Transactions {
		if existing.ID == t.ID {
			s.snap.Transactions[i] = t
			found = true
			break
		}
	}
	snap := s.snap.Clone()
	s.mu.Unlock()

	if !found {
		return core.Transaction{}, fmt.Errorf("transaction %s not found", t.ID)
	}
	s.persistSnapshot(ctx, snap)
	s.publishSync(ctx, t.ID)
	return t, nil
}

// DeleteTransaction removes a transaction by id.
func (s *BookService) DeleteTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	found := false
	for i, t := range s.snap.Transactions {
		if t.ID == id {
			s.snap.Transactions = append(s.snap.Transactions[:i], s.snap.Transactions[i+1:]...)
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("transaction %s not found", id)
	}
	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		slog.ErrorContext(ctx, "Failed to delete persisted transaction", "id", id, "error", err)
	}
	return nil
}

// AddAccount creates a user-defined account.
func (s *BookService) AddAccount(ctx context.Context, a core.Account) (core.Account, error) {
	if a.ID == "" {
		a.ID = s.newID()
	}
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}

	s.mu.Lock()
	for _, existing := range s.snap.Accounts {
		if existing.ID == a.ID {
			s.mu.Unlock()
			return core.Account{}, fmt.Errorf("account id %s already exists", a.ID)
		}
	}
	s.snap.Accounts = append(s.snap.Accounts, a)
	snap := s.snap.Clone()
	s.mu.Unlock()

	s.persistSnapshot(ctx, snap)
	return a, nil
}

// UpdateAccount replaces an account by id. The id itself is immutable.
func (s *BookService) UpdateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}

	s.mu.Lock()
	found := false
	for i, existing := range s.snap.Accounts {
		if existing.ID == a.ID {
			s.snap.Accounts[i] = a
			found = true
			break
		}
	}
	snap := s.snap.Clone()
	s.mu.Unlock()

	if !found {
		return core.Account{}, fmt.Errorf("account %s not found", a.ID)
	}
	s.persistSnapshot(ctx, snap)
	return a, nil
}

// DeleteAccount removes an account. Transactions referencing it are kept;
// their contributions simply drop out of derived balances.
func (s *BookService) DeleteAccount(ctx context.Context, id string) error {
	s.mu.Lock()
	found := false
	for i, a := range s.snap.Accounts {
		if a.ID == id {
			s.snap.Accounts = append(s.snap.Accounts[:i], s.snap.Accounts[i+1:]...)
			found = true
			break
		}
	}
	snap := s.snap.Clone()
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("account %s not found", id)
	}
	s.persistSnapshot(ctx, snap)
	return nil
}

// MoveAccount reorders an account to the given index. Display order is
// user-facing only; balances are unaffected.
func (s *BookService) MoveAccount(ctx context.Context, id string, toIndex int) error {
	s.mu.Lock()
	from := -1
	for i, a := range s.snap.Accounts {
		if a.ID == id {
			from = i
			break
		}
	}
	if from == -1 {
		s.mu.Unlock()
		return fmt.Errorf("account %s not found", id)
	}
	if toIndex < 0 {
		toIndex = 0
	}
	if toIndex >= len(s.snap.Accounts) {
		toIndex = len(s.snap.Accounts) - 1
	}
	account := s.snap.Accounts[from]
	s.snap.Accounts = append(s.snap.Accounts[:from], s.snap.Accounts[from+1:]...)
	s.snap.Accounts = append(s.snap.Accounts[:toIndex],
		append([]core.Account{account}, s.snap.Accounts[toIndex:]...)...)
	snap := s.snap.Clone()
	s.mu.Unlock()

	s.persistSnapshot(ctx, snap)
	return nil
}

// AddRecurring registers a recurring-transaction template.
func (s *BookService) AddRecurring(ctx context.Context, rt core.RecurringTransaction) (core.RecurringTransaction, error) {
	if rt.ID == "" {
		rt.ID = s.newID()
	}
	if rt.NextDueDate == "" {
		rt.NextDueDate = rt.StartDate
	}
	if err := rt.Validate(); err != nil {
		return core.RecurringTransaction{}, err
	}

	s.mu.Lock()
	s.snap.RecurringTransactions = append(s.snap.RecurringTransactions, rt)
	snap := s.snap.Clone()
	s.mu.Unlock()

	s.persistSnapshot(ctx, snap)
	return rt, nil
}

// CreateRecurringFromTransaction builds a template from a transaction saved
// with the recurring flag. The transaction itself covers the start date, so
// the template's first due date is one step later.
func (s *BookService) CreateRecurringFromTransaction(ctx context.Context, t core.Transaction, freq core.Frequency, endDate core.Date) (core.RecurringTransaction, error) {
	start, ok := t.Date.Time()
	if !ok {
		return core.RecurringTransaction{}, core.ErrInvalidDate
	}
	next, err := StepDate(start, freq)
	if err != nil {
		return core.RecurringTransaction{}, err
	}
	return s.AddRecurring(ctx, core.RecurringTransaction{
		Frequency:   freq,
		StartDate:   t.Date,
		NextDueDate: core.DateOf(next),
		EndDate:     endDate,
		Amount:      t.Amount,
		Type:        t.Type,
		Category:    t.Category,
		Description: t.Description,
		Location:    t.Location,
		AccountID:   t.AccountID,
		ToAccountID: t.ToAccountID,
	})
}

// DeleteRecurring removes a template. Instances it spawned stay in the log.
func (s *BookService) DeleteRecurring(ctx context.Context, id string) error {
	s.mu.Lock()
	found := false
	for i, rt := range s.snap.RecurringTransactions {
		if rt.ID == id {
			s.snap.RecurringTransactions = append(s.snap.RecurringTransactions[:i], s.snap.RecurringTransactions[i+1:]...)
			found = true
			break
		}
	}
	snap := s.snap.Clone()
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("recurring transaction %s not found", id)
	}
	s.persistSnapshot(ctx, snap)
	return nil
}

// ProcessDueTemplates runs one catch-up pass over every template, prepending
// spawned instances to the log. Per-template failures are isolated; the pass
// is idempotent per calendar day. Callers reading balances in the same cycle
// must call this first.
//
// Persistence is incremental: instances are appended and advanced templates
// updated in place. The pass never rewrites the whole snapshot, so another
// process writing to the same database keeps its transactions.
func (s *BookService) ProcessDueTemplates(ctx context.Context, today time.Time) (int, error) {
	s.mu.Lock()
	templates := append([]core.RecurringTransaction(nil), s.snap.RecurringTransactions...)
	s.mu.Unlock()

	slog.InfoContext(ctx, "Processing recurring templates",
		"total", len(templates),
		"processing_date", today.Format("2006-01-02"))

	created := 0
	for _, tpl := range templates {
		if tpl.Dormant() {
			continue
		}
		result := Advance(tpl, today, s.newID)
		if len(result.Instances) == 0 {
			continue
		}

		s.mu.Lock()
		s.snap.Transactions = append(append([]core.Transaction(nil), result.Instances...), s.snap.Transactions...)
		for j := range s.snap.RecurringTransactions {
			if s.snap.RecurringTransactions[j].ID == tpl.ID {
				s.snap.RecurringTransactions[j] = result.Template
				break
			}
		}
		s.mu.Unlock()

		if err := s.store.UpdateRecurring(ctx, result.Template); err != nil {
			slog.ErrorContext(ctx, "Failed to persist advanced template",
				"template_id", tpl.ID, "error", err)
		}

		for _, instance := range result.Instances {
			if err := s.store.AppendTransaction(ctx, instance); err != nil {
				slog.ErrorContext(ctx, "Failed to persist recurring instance",
					"template_id", tpl.ID, "id", instance.ID, "error", err)
				continue
			}
			s.publishSync(ctx, instance.ID)
		}
		created += len(result.Instances)

		slog.InfoContext(ctx, "Created instances from recurring template",
			"template_id", tpl.ID,
			"description", tpl.Description,
			"instances", len(result.Instances),
			"next_due", result.Template.NextDueDate)
	}

	slog.InfoContext(ctx, "Recurring template processing complete",
		"created", created,
		"templates_checked", len(templates))

	return created, nil
}

// ImportCSV parses and reconciles a CSV export, absorbing the produced
// transactions and any synthesized accounts.
func (s *BookService) ImportCSV(ctx context.Context, data []byte) (importer.Result, error) {
	rows, err := importer.ParseCSV(data)
	if err != nil {
		return importer.Result{}, err
	}
	return s.absorbRows(ctx, rows), nil
}

// RestoreFromSheets pulls every monthly sheet from the spreadsheet backend
// and reconciles the rows.
func (s *BookService) RestoreFromSheets(ctx context.Context, src sheets.RowSource) (importer.Result, error) {
	bySheet, err := src.ReadAllRows(ctx)
	if err != nil {
		return importer.Result{}, fmt.Errorf("read spreadsheet rows: %w", err)
	}
	var rows [][]string
	for _, sheetRows := range bySheet {
		rows = append(rows, sheetRows...)
	}
	return s.absorbRows(ctx, rows), nil
}

func (s *BookService) absorbRows(ctx context.Context, rows [][]string) importer.Result {
	s.mu.Lock()
	existing := append([]core.Account(nil), s.snap.Accounts...)
	s.mu.Unlock()

	rec := importer.NewReconciler(s.registry, s.newID)
	result := rec.Reconcile(rows, existing)

	s.mu.Lock()
	s.snap.Accounts = result.Accounts
	s.snap.Transactions = append(append([]core.Transaction(nil), result.Transactions...), s.snap.Transactions...)
	snap := s.snap.Clone()
	s.mu.Unlock()

	s.persistSnapshot(ctx, snap)
	for _, t := range result.Transactions {
		s.publishSync(ctx, t.ID)
	}

	slog.InfoContext(ctx, "Reconciled external rows",
		"rows", len(rows),
		"imported", result.Imported,
		"accounts", len(result.Accounts)-len(existing))

	return result
}

// ExportCSV renders the whole transaction log in the CSV contract.
func (s *BookService) ExportCSV() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return importer.ExportCSV(s.snap.Transactions, s.snap.Accounts, s.registry)
}

// Backup stamps the current snapshot for a backup file.
func (s *BookService) Backup(now time.Time) core.Backup {
	return core.NewBackup(s.Snapshot(), now)
}

func (s *BookService) persistSnapshot(ctx context.Context, snap core.Snapshot) {
	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		slog.ErrorContext(ctx, "Failed to persist snapshot, keeping in-memory state", "error", err)
	}
}

func (s *BookService) publishSync(ctx context.Context, id string) {
	if s.amqp == nil {
		return
	}
	if err := s.amqp.PublishTransactionSync(ctx, id); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sync message", "id", id, "error", err)
	}
}
