package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"talahum/internal/amqp"
	"talahum/internal/render"
	"talahum/internal/sheets"
	"talahum/internal/storage"
)

// Journal is the part of the receipt journal the worker needs.
type Journal interface {
	GetReceipt(ctx context.Context, id int64) (storage.Receipt, error)
	ListPendingArchive(ctx context.Context, limit int) ([]storage.Receipt, error)
	MarkArchived(ctx context.Context, id int64, path string) error
	MarkArchiveError(ctx context.Context, id int64) error
}

// ReceiptRenderer produces the receipt PDF.
type ReceiptRenderer interface {
	RenderReceipt(ctx context.Context, doc render.ReceiptDocument) (render.Artifact, error)
}

// ReceiptWorker writes a PDF copy of every journaled receipt to disk and
// mirrors it into the ledger when one is configured.
type ReceiptWorker struct {
	journal     Journal
	renderer    ReceiptRenderer
	ledger      sheets.ReceiptLedger
	archiveDir  string
	concurrency int
}

// NewReceiptWorker creates a worker. ledger may be nil.
func NewReceiptWorker(journal Journal, renderer ReceiptRenderer, ledger sheets.ReceiptLedger, archiveDir string, concurrency int) *ReceiptWorker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &ReceiptWorker{
		journal:     journal,
		renderer:    renderer,
		ledger:      ledger,
		archiveDir:  archiveDir,
		concurrency: concurrency,
	}
}

// HandleReceiptIssued processes a single ReceiptIssued message from AMQP
func (w *ReceiptWorker) HandleReceiptIssued(ctx context.Context, msg *amqp.ReceiptIssuedMessage) error {
	slog.InfoContext(ctx, "Processing receipt issued message",
		"id", msg.ReceiptID,
		"receipt_number", msg.ReceiptNumber)

	receipt, err := w.journal.GetReceipt(ctx, msg.ReceiptID)
	if err != nil {
		return fmt.Errorf("get receipt from journal: %w", err)
	}
	if receipt.ArchiveStatus == storage.ArchiveArchived {
		slog.DebugContext(ctx, "Receipt already archived", "id", receipt.ID, "path", receipt.ArchivePath)
		return nil
	}
	return w.archive(ctx, receipt)
}

// ArchivePending archives up to limit receipts still waiting for a PDF copy.
// It is the fallback for lost messages and returns how many were attempted.
func (w *ReceiptWorker) ArchivePending(ctx context.Context, limit int) (int, error) {
	pending, err := w.journal.ListPendingArchive(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending receipts: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "Archiving pending receipts", "count", len(pending))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, r := range pending {
		g.Go(func() error {
			if err := w.archive(gctx, r); err != nil {
				slog.ErrorContext(gctx, "Failed to archive receipt", "id", r.ID, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return len(pending), err
	}
	return len(pending), ctx.Err()
}

// archive renders, stores and mirrors one receipt, recording the outcome
// in the journal.
func (w *ReceiptWorker) archive(ctx context.Context, r storage.Receipt) error {
	path, err := w.writePDF(ctx, r)
	if err != nil {
		w.markError(ctx, r.ID)
		return err
	}

	if w.ledger != nil {
		ref, err := w.ledger.AppendReceipt(ctx, ledgerEntry(r, path))
		if err != nil {
			w.markError(ctx, r.ID)
			return fmt.Errorf("append to ledger: %w", err)
		}
		slog.DebugContext(ctx, "Receipt mirrored to ledger", "id", r.ID, "sheets_ref", ref)
	}

	if err := w.journal.MarkArchived(ctx, r.ID, path); err != nil {
		// The PDF exists; the next sweep overwrites it.
		return fmt.Errorf("mark archived: %w", err)
	}

	slog.InfoContext(ctx, "Successfully archived receipt",
		"id", r.ID,
		"receipt_number", r.ReceiptNumber,
		"path", path)
	return nil
}

func (w *ReceiptWorker) writePDF(ctx context.Context, r storage.Receipt) (string, error) {
	art, err := w.renderer.RenderReceipt(ctx, render.ReceiptDocument{
		ReceiptNumber: r.ReceiptNumber,
		Date:          r.PaidAt,
		Name:          r.SubscriberName,
		Phone:         r.SubscriberPhone,
		MemberType:    r.MemberType,
		Amount:        r.Amount,
		Period:        r.Period,
		Description:   r.Description,
	})
	if err != nil {
		return "", fmt.Errorf("render receipt %d: %w", r.ID, err)
	}

	dir := filepath.Join(w.archiveDir, fmt.Sprintf("%04d", r.Period.Year), fmt.Sprintf("%02d", r.Period.Month))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%d-%s", r.ID, art.Filename))

	// Write to a temp file and rename into place.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, art.Body, 0o644); err != nil {
		return "", fmt.Errorf("write receipt pdf: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename receipt pdf: %w", err)
	}
	return path, nil
}

func (w *ReceiptWorker) markError(ctx context.Context, id int64) {
	if err := w.journal.MarkArchiveError(ctx, id); err != nil && !errors.Is(err, context.Canceled) {
		slog.ErrorContext(ctx, "Failed to mark archive error", "id", id, "error", err)
	}
}

func ledgerEntry(r storage.Receipt, path string) sheets.LedgerEntry {
	return sheets.LedgerEntry{
		ReceiptNumber: r.ReceiptNumber,
		PaidAt:        r.PaidAt,
		Name:          r.SubscriberName,
		Phone:         r.SubscriberPhone,
		MemberType:    r.MemberType,
		Amount:        r.Amount,
		Period:        r.Period,
		Description:   r.Description,
		ArchivePath:   path,
	}
}

// StartupArchiveCheck runs one larger sweep at worker startup to recover
// from missed messages or downtime.
func (w *ReceiptWorker) StartupArchiveCheck(ctx context.Context, batchSize int) error {
	n, err := w.ArchivePending(ctx, batchSize*5)
	if err != nil {
		return fmt.Errorf("startup archive check: %w", err)
	}
	if n == 0 {
		slog.InfoContext(ctx, "No pending receipts found on startup")
		return nil
	}
	slog.InfoContext(ctx, "Startup archive check completed", "total", n)
	return nil
}
