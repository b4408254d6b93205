package worker

import (
	"context"
	"fmt"
	"log/slog"

	"moneybook/internal/amqp"
	"moneybook/internal/category"
	"moneybook/internal/core"
	"moneybook/internal/importer"
	"moneybook/internal/sheets"
	"moneybook/internal/storage"
)

// SyncWorker pushes transactions from SQLite to the spreadsheet backend, one
// monthly sheet per year-month.
type SyncWorker struct {
	storage   *storage.SQLiteRepository
	sink      sheets.RowSink
	registry  *category.Registry
	batchSize int
}

func NewSyncWorker(storage *storage.SQLiteRepository, sink sheets.RowSink, registry *category.Registry, batchSize int) *SyncWorker {
	return &SyncWorker{
		storage:   storage,
		sink:      sink,
		registry:  registry,
		batchSize: batchSize,
	}
}

// HandleSyncMessage processes a single transaction sync message from AMQP.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.TransactionSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"id", msg.ID,
		"timestamp", msg.Timestamp)

	t, err := w.storage.GetTransaction(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}

	if err := w.syncTransactionToSheets(ctx, t); err != nil {
		return fmt.Errorf("sync transaction to sheets: %w", err)
	}

	return nil
}

// ProcessPendingTransactions syncs any transactions that haven't reached the
// spreadsheet yet. This is a backup mechanism in case AMQP messages are lost.
func (w *SyncWorker) ProcessPendingTransactions(ctx context.Context) error {
	pending, err := w.storage.GetPendingSyncTransactions(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending transactions: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending transactions", "count", len(pending))

	for _, t := range pending {
		if err := w.syncTransactionToSheets(ctx, t); err != nil {
			slog.ErrorContext(ctx, "Failed to sync transaction", "id", t.ID, "error", err)
			continue
		}
	}

	return nil
}

// StartupSyncCheck drains the pending backlog at worker startup. This is
// useful to recover from missed AMQP messages or worker downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	pending, err := w.storage.GetPendingSyncTransactions(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending transactions for startup check: %w", err)
	}

	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending transactions found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending transactions on startup, processing...",
		"count", len(pending))

	successCount := 0
	errorCount := 0

	for _, t := range pending {
		if err := w.syncTransactionToSheets(ctx, t); err != nil {
			slog.ErrorContext(ctx, "Failed to sync transaction during startup",
				"id", t.ID, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(pending),
		"synced", successCount,
		"errors", errorCount)

	return nil
}

func (w *SyncWorker) syncTransactionToSheets(ctx context.Context, t core.Transaction) error {
	accountNames, err := w.storage.GetAccountNames(ctx)
	if err != nil {
		return fmt.Errorf("get account names: %w", err)
	}

	sheetKey := t.Date.YearMonth()
	if sheetKey == "" {
		sheetKey = sheets.FallbackSheetKey
	}
	row := importer.ExportRow(t, accountNames, w.registry)

	if err := w.sink.AppendRow(ctx, sheetKey, row); err != nil {
		if markErr := w.storage.MarkSyncError(ctx, t.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "id", t.ID, "error", markErr)
		}
		return fmt.Errorf("append row to sheet %s: %w", sheetKey, err)
	}

	if err := w.storage.MarkSynced(ctx, t.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as synced", "id", t.ID, "error", err)
		// Don't return error here - the sync actually worked
	}

	slog.InfoContext(ctx, "Successfully synced transaction",
		"id", t.ID,
		"sheet", sheetKey,
		"description", t.Description)

	return nil
}
