package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ArchiveProcessorConfig holds configuration for the archive sweep
type ArchiveProcessorConfig struct {
	// PollInterval is how often to look for receipts without an archived PDF (default: 1m)
	PollInterval time.Duration

	// BatchSize is the max number of receipts to archive per cycle (default: 10)
	BatchSize int
}

// DefaultArchiveProcessorConfig returns sensible defaults
func DefaultArchiveProcessorConfig() ArchiveProcessorConfig {
	return ArchiveProcessorConfig{
		PollInterval: time.Minute,
		BatchSize:    10,
	}
}

// PendingArchiver archives up to limit journaled receipts and reports how
// many it handled.
type PendingArchiver interface {
	ArchivePending(ctx context.Context, limit int) (int, error)
}

// ArchiveProcessor periodically archives receipts whose ReceiptIssued
// message was lost or whose first attempt failed.
type ArchiveProcessor struct {
	archiver PendingArchiver
	config   ArchiveProcessorConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewArchiveProcessor(archiver PendingArchiver, config ArchiveProcessorConfig) *ArchiveProcessor {
	def := DefaultArchiveProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	return &ArchiveProcessor{
		archiver: archiver,
		config:   config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *ArchiveProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("archive processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Archive processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *ArchiveProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Archive processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Archive processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

func (p *ArchiveProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ArchiveProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	// Process immediately on startup
	p.processBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.processBatch(ctx)
		}
	}
}

// processBatch runs one sweep and keeps going while full batches come back.
func (p *ArchiveProcessor) processBatch(ctx context.Context) {
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		n, err := p.archiver.ArchivePending(ctx, p.config.BatchSize)
		if err != nil {
			slog.ErrorContext(ctx, "Archive sweep failed", "error", err)
			return
		}
		if n > 0 {
			slog.DebugContext(ctx, "Archive sweep processed receipts", "count", n)
		}
		if n < p.config.BatchSize {
			return
		}
	}
}
