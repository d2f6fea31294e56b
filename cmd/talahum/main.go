package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"talahum/internal/backend"
	"talahum/internal/capture"
	"talahum/internal/cli"
	apphttp "talahum/internal/http"
	applog "talahum/internal/log"
	"talahum/internal/reconcile"
	"talahum/internal/render"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger, nil)

	// Choose data backend (default: memory with the embedded seed)
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Slog()).
		CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	labels := render.Labels{
		AssociationName:    cfg.AssociationName,
		AssociationAddress: cfg.AssociationAddress,
		Currency:           cfg.CurrencyLabel,
	}
	exporter, err := render.NewPDFExporter(cfg.ReceiptFontFile, labels, logger.WithComponent(applog.ComponentRender).Slog())
	if err != nil {
		logger.Error("Failed to initialize PDF exporter", "error", err, "font", cfg.ReceiptFontFile)
		os.Exit(1)
	}

	loader := reconcile.NewLoader(result.Backend, cfg.PeriodCacheTTL, logger.WithComponent(applog.ComponentReconcile).Slog())
	flows := capture.NewRegistry(capture.Deps{
		Sequencer:  result.Backend,
		Writer:     result.Backend,
		Exporter:   exporter,
		Logger:     logger.WithComponent(applog.ComponentCapture).Slog(),
		OnRecorded: loader.Invalidate,
	}, 0, 0)

	checks := map[string]func(context.Context) error{}
	if result.Journal != nil {
		checks["journal"] = result.Journal.Ping
	}

	srv := apphttp.NewServer(apphttp.Config{
		Addr:            net.JoinHostPort("", cfg.Port),
		AssociationName: cfg.AssociationName,
		Currency:        cfg.CurrencyLabel,
	}, apphttp.Deps{
		Loader:   loader,
		Flows:    flows,
		Exporter: exporter,
		Logger:   logger,
		Checks:   checks,
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", "error", err)
			}
		}
	})

	logger.Info("Starting talahum server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"sequence", cfg.SequenceBackend,
		"journal_enabled", cfg.JournalEnabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
