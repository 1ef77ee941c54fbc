package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"bursar/internal/amqp"
	"bursar/internal/cli"
	"bursar/internal/sheets"
	gsheet "bursar/internal/sheets/google"
	sheetmem "bursar/internal/sheets/memory"
	"bursar/internal/worker"
)

func main() {
	logger, cfg := cli.Bootstrap()

	logger.Info("Starting bursar-worker")

	// SQLite is the source of truth the worker drains export work from.
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Remittance register target: Google Sheets when configured, otherwise an
	// in-process sink so the export pipeline still drains.
	var register sheets.RemittanceWriter
	if cfg.ExportEnabled() {
		client, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		register = client
		logger.Info("Google Sheets register initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		register = sheetmem.New()
		logger.Info("Google Sheets disabled - using in-memory register")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	exportWorker := worker.NewExportWorker(repo, register, cfg.ExportBatchSize)

	// On startup, drain anything a previous run left pending.
	logger.Info("Performing startup export check...")
	if err := exportWorker.StartupExportCheck(ctx); err != nil {
		logger.Error("Failed startup export check", "error", err)
		// Don't exit - continue with normal operation
	}

	g, ctx := errgroup.WithContext(ctx)

	// Fast lane: payment.recorded events from the collection service.
	g.Go(func() error {
		err := amqpClient.ConsumePaymentRecorded(ctx, func(msg *amqp.PaymentRecordedMessage) error {
			return exportWorker.HandlePaymentRecorded(ctx, msg)
		})
		if err != nil && err != context.Canceled {
			logger.Error("Message consumption failed", "error", err)
			return err
		}
		return nil
	})

	// Backup lane: periodic scan for entries the fast lane missed.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.ExportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := exportWorker.ProcessPendingExports(ctx); err != nil {
					logger.Error("Periodic export failed", "error", err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
