package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"talahum/internal/amqp"
	"talahum/internal/cli"
	"talahum/internal/config"
	applog "talahum/internal/log"
	"talahum/internal/render"
	"talahum/internal/services"
	"talahum/internal/sheets"
	gsheet "talahum/internal/sheets/google"
	"talahum/internal/storage"
	"talahum/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting receipt-worker")

	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateWorker)

	// The journal is written by the dashboard; the worker archives what it finds there.
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	labels := render.Labels{
		AssociationName:    cfg.AssociationName,
		AssociationAddress: cfg.AssociationAddress,
		Currency:           cfg.CurrencyLabel,
	}
	renderer, err := render.NewPDFExporter(cfg.ReceiptFontFile, labels, logger.WithComponent(applog.ComponentRender).Slog())
	if err != nil {
		logger.Error("Failed to initialize PDF exporter", "error", err, "font", cfg.ReceiptFontFile)
		os.Exit(1)
	}

	// Google Sheets ledger (optional)
	var ledger sheets.ReceiptLedger
	if cfg.LedgerEnabled() {
		client, err := gsheet.New(context.Background(), gsheet.Config{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			SheetName:          cfg.GoogleSheetName,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
			OAuthClientJSON:    cfg.GoogleOAuthClientJSON,
			OAuthClientFile:    cfg.GoogleOAuthClientFile,
			OAuthTokenJSON:     cfg.GoogleOAuthTokenJSON,
			OAuthTokenFile:     cfg.GoogleOAuthTokenFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		ledger = client
		logger.Info("Google Sheets ledger initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets ledger disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	receiptWorker := worker.NewReceiptWorker(repo, renderer, ledger, cfg.ReceiptArchiveDir, cfg.SyncBatchSize)
	processor := services.NewArchiveProcessor(receiptWorker, services.ArchiveProcessorConfig{
		PollInterval: cfg.SyncInterval,
		BatchSize:    cfg.SyncBatchSize,
	})

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
	} else {
		logger.Info("AMQP disabled - relying on the periodic archive sweep")
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := processor.Stop(ctx); err != nil {
			logger.Error("Archive processor stop error", "error", err)
		}
	})

	// Recover receipts journaled while the worker was down
	if err := receiptWorker.StartupArchiveCheck(ctx, cfg.SyncBatchSize); err != nil {
		logger.Error("Failed startup archive check", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return processor.Start(gctx)
	})
	if amqpClient != nil {
		g.Go(func() error {
			err := amqpClient.ConsumeReceiptIssued(gctx, receiptWorker.HandleReceiptIssued)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Receipt worker failed", "error", err)
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = processor.Stop(stopCtx)
		return
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Receipt worker stopped")
}
