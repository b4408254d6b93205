// Package storage persists the application snapshot in SQLite. The rest of
// the system only depends on the load/save contract; everything below it
// (schema, sync bookkeeping, quota handling) is owned here.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"moneybook/internal/core"

	_ "modernc.org/sqlite"
)

// maxReceiptRefBytes caps the stored receipt reference. Oversized blobs are
// dropped to keep snapshots inside storage quotas; transactional fields are
// never dropped.
const maxReceiptRefBytes = 256 * 1024

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// LoadSnapshot reads the full application state. Transactions come back
// newest-first (insertion order reversed), matching the prepend semantics of
// the in-memory log.
func (r *SQLiteRepository) LoadSnapshot(ctx context.Context) (core.Snapshot, error) {
	var snap core.Snapshot

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, type, initial_balance, color FROM accounts ORDER BY position, rowid`)
	if err != nil {
		return snap, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a core.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Type, &a.InitialBalance, &a.Color); err != nil {
			return snap, fmt.Errorf("scan account: %w", err)
		}
		snap.Accounts = append(snap.Accounts, a)
	}
	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("iterate accounts: %w", err)
	}

	txRows, err := r.db.QueryContext(ctx,
		`SELECT id, date, amount, type, category, description, location,
		        account_id, to_account_id, receipt_image, is_recurring
		 FROM transactions ORDER BY rowid DESC`)
	if err != nil {
		return snap, fmt.Errorf("query transactions: %w", err)
	}
	defer txRows.Close()
	for txRows.Next() {
		t, err := scanTransaction(txRows)
		if err != nil {
			return snap, err
		}
		snap.Transactions = append(snap.Transactions, t)
	}
	if err := txRows.Err(); err != nil {
		return snap, fmt.Errorf("iterate transactions: %w", err)
	}

	recRows, err := r.db.QueryContext(ctx,
		`SELECT id, frequency, start_date, next_due_date, end_date, last_generated,
		        amount, type, category, description, location, account_id, to_account_id
		 FROM recurring_transactions ORDER BY rowid`)
	if err != nil {
		return snap, fmt.Errorf("query recurring transactions: %w", err)
	}
	defer recRows.Close()
	for recRows.Next() {
		var rt core.RecurringTransaction
		var amount int64
		if err := recRows.Scan(&rt.ID, &rt.Frequency, &rt.StartDate, &rt.NextDueDate,
			&rt.EndDate, &rt.LastGenerated, &amount, &rt.Type, &rt.Category,
			&rt.Description, &rt.Location, &rt.AccountID, &rt.ToAccountID); err != nil {
			return snap, fmt.Errorf("scan recurring transaction: %w", err)
		}
		rt.Amount = core.NewAmount(amount)
		snap.RecurringTransactions = append(snap.RecurringTransactions, rt)
	}
	if err := recRows.Err(); err != nil {
		return snap, fmt.Errorf("iterate recurring transactions: %w", err)
	}

	theme, err := r.getSetting(ctx, "theme")
	if err != nil {
		return snap, err
	}
	snap.Theme = theme

	return snap, nil
}

// SaveSnapshot replaces the stored state with the given snapshot inside one
// transaction. Sync bookkeeping of already-synced transactions is preserved.
func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, snap core.Snapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot save: %w", err)
	}
	defer tx.Rollback()

	synced := map[string]bool{}
	rows, err := tx.QueryContext(ctx, `SELECT id FROM transactions WHERE synced = 1`)
	if err != nil {
		return fmt.Errorf("query synced ids: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan synced id: %w", err)
		}
		synced[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate synced ids: %w", err)
	}

	for _, table := range []string{"transactions", "accounts", "recurring_transactions"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for i, a := range snap.Accounts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO accounts (id, name, type, initial_balance, color, position) VALUES (?, ?, ?, ?, ?, ?)`,
			a.ID, a.Name, string(a.Type), a.InitialBalance, a.Color, i); err != nil {
			return fmt.Errorf("insert account %s: %w", a.ID, err)
		}
	}

	// The in-memory log is newest-first; store oldest-first so rowid order
	// reverses back on load.
	for i := len(snap.Transactions) - 1; i >= 0; i-- {
		t := snap.Transactions[i]
		if err := insertTransaction(ctx, tx, t, synced[t.ID]); err != nil {
			return err
		}
	}

	for _, rt := range snap.RecurringTransactions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO recurring_transactions
			 (id, frequency, start_date, next_due_date, end_date, last_generated,
			  amount, type, category, description, location, account_id, to_account_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rt.ID, string(rt.Frequency), string(rt.StartDate), string(rt.NextDueDate),
			string(rt.EndDate), string(rt.LastGenerated), rt.Amount.Value, string(rt.Type),
			rt.Category, rt.Description, rt.Location, rt.AccountID, rt.ToAccountID); err != nil {
			return fmt.Errorf("insert recurring transaction %s: %w", rt.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES ('theme', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, snap.Theme); err != nil {
		return fmt.Errorf("save theme: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot save: %w", err)
	}
	return nil
}

// AppendTransaction persists a single new transaction without rewriting the
// snapshot.
func (r *SQLiteRepository) AppendTransaction(ctx context.Context, t core.Transaction) error {
	if err := insertTransaction(ctx, r.db, t, false); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Transaction saved",
		"id", t.ID,
		"type", t.Type,
		"amount", t.Amount.Value,
		"date", t.Date)
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTransaction(ctx context.Context, db execer, t core.Transaction, synced bool) error {
	receipt := t.ReceiptImage
	if len(receipt) > maxReceiptRefBytes {
		slog.WarnContext(ctx, "Dropping oversized receipt reference",
			"id", t.ID, "bytes", len(receipt))
		receipt = ""
	}
	syncedInt := 0
	if synced {
		syncedInt = 1
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO transactions
		 (id, date, amount, type, category, description, location,
		  account_id, to_account_id, receipt_image, is_recurring, synced)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.Date), t.Amount.Value, string(t.Type), t.Category,
		t.Description, t.Location, t.AccountID, t.ToAccountID, receipt,
		boolToInt(t.IsRecurringInstance), syncedInt)
	if err != nil {
		return fmt.Errorf("insert transaction %s: %w", t.ID, err)
	}
	return nil
}

// UpdateRecurring persists the advanced schedule of a single template without
// rewriting the snapshot.
func (r *SQLiteRepository) UpdateRecurring(ctx context.Context, rt core.RecurringTransaction) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE recurring_transactions SET next_due_date = ?, last_generated = ? WHERE id = ?`,
		string(rt.NextDueDate), string(rt.LastGenerated), rt.ID); err != nil {
		return fmt.Errorf("update recurring transaction %s: %w", rt.ID, err)
	}
	return nil
}

// DeleteTransaction removes a transaction by id.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	return nil
}

// GetTransaction fetches a single transaction by id.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, date, amount, type, category, description, location,
		        account_id, to_account_id, receipt_image, is_recurring
		 FROM transactions WHERE id = ?`, id)
	return scanTransaction(row)
}

// GetAccountNames returns the id -> name mapping for row export.
func (r *SQLiteRepository) GetAccountNames(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM accounts`)
	if err != nil {
		return nil, fmt.Errorf("query account names: %w", err)
	}
	defer rows.Close()
	names := map[string]string{}
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan account name: %w", err)
		}
		names[id] = name
	}
	return names, rows.Err()
}

// GetPendingSyncTransactions lists transactions not yet mirrored to the
// spreadsheet backend, oldest first.
func (r *SQLiteRepository) GetPendingSyncTransactions(ctx context.Context, limit int) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, date, amount, type, category, description, location,
		        account_id, to_account_id, receipt_image, is_recurring
		 FROM transactions WHERE synced = 0 ORDER BY rowid LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending transactions: %w", err)
	}
	defer rows.Close()
	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MarkSynced records a successful spreadsheet sync.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET synced = 1, sync_error = 0 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark transaction synced: %w", err)
	}
	return nil
}

// MarkSyncError flags a transaction whose spreadsheet sync failed.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_error = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark transaction sync error: %w", err)
	}
	slog.WarnContext(ctx, "Transaction marked with sync error", "id", id)
	return nil
}

func (r *SQLiteRepository) getSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var t core.Transaction
	var amount int64
	var isRecurring int
	if err := row.Scan(&t.ID, &t.Date, &amount, &t.Type, &t.Category, &t.Description,
		&t.Location, &t.AccountID, &t.ToAccountID, &t.ReceiptImage, &isRecurring); err != nil {
		return t, fmt.Errorf("scan transaction: %w", err)
	}
	t.Amount = core.NewAmount(amount)
	t.IsRecurringInstance = isRecurring != 0
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
