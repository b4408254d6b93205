package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"moneybook/internal/ai"
	"moneybook/internal/amqp"
	"moneybook/internal/category"
	"moneybook/internal/config"
	apphttp "moneybook/internal/http"
	"moneybook/internal/services"
	ports "moneybook/internal/sheets"
	gsheet "moneybook/internal/sheets/google"
	"moneybook/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting moneybook")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	sqliteRepo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer sqliteRepo.Close()

	// AMQP publishing is optional; without it transactions stay local until
	// the sync worker's pending sweep picks them up.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing in SQLite-only mode", "error", err)
			amqpClient = nil
		} else {
			defer amqpClient.Close()
			logger.Info("AMQP client initialized - transactions will sync via sync-worker")
		}
	} else {
		logger.Info("AMQP disabled - transactions will not sync to Google Sheets")
	}

	registry := category.Default()

	book, err := services.NewBookService(context.Background(), sqliteRepo, amqpClient, registry)
	if err != nil {
		logger.Error("Failed to load book data", "error", err)
		os.Exit(1)
	}
	if book.Snapshot().Theme == "" {
		book.SetTheme(context.Background(), cfg.DefaultTheme)
	}

	// Catch up recurring templates before serving balances. The recurring
	// worker handles later days; this covers instances due since its last run.
	if created, err := book.ProcessDueTemplates(context.Background(), time.Now()); err != nil {
		logger.Error("Startup recurring pass failed", "error", err)
	} else if created > 0 {
		logger.Info("Startup recurring pass created instances", "created", created)
	}

	// Spreadsheet restore endpoint needs a read client; optional.
	var restoreSrc ports.RowSource
	if cfg.GoogleSpreadsheetID != "" {
		cli, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Warn("Failed to initialize Google Sheets client, restore disabled", "error", err)
		} else {
			restoreSrc = cli
			logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
		}
	}

	// AI extraction is optional; without an API key the endpoints answer 503.
	var extractor ai.Extractor
	if cfg.GeminiAPIKey != "" {
		extractor = ai.NewGeminiExtractor(cfg.GeminiAPIKey, registry)
		logger.Info("Gemini extractor initialized")
	} else {
		logger.Info("AI extraction disabled - no GEMINI_API_KEY provided")
	}

	srv := apphttp.NewServer(":"+cfg.Port, book, extractor, restoreSrc)

	// Configure server timeouts and limits
	srv.ReadTimeout = 30 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	// Graceful shutdown handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting moneybook server", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
