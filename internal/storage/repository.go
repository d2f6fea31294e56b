// Package storage is the local SQLite journal of issued receipts.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"talahum/internal/core"

	_ "modernc.org/sqlite"
)

// Archive states of a journal entry.
const (
	ArchivePending  = "pending"
	ArchiveArchived = "archived"
	ArchiveError    = "error"
)

// MaxArchiveAttempts bounds how often a failing entry is retried by the sweep.
const MaxArchiveAttempts = 5

var ErrReceiptNotFound = errors.New("receipt not found")

// Receipt is a journal entry for one successful payment.
type Receipt struct {
	ID              int64
	FlowID          string
	ReceiptNumber   string
	SubscriberID    int64
	SubscriberName  string
	SubscriberPhone string
	MemberType      core.MemberType
	Amount          core.Money
	Period          core.Period
	PaidAt          core.Date
	Description     string
	CreatedAt       time.Time
	ArchiveStatus   string
	ArchivePath     string
	ArchiveAttempts int
	ArchivedAt      *time.Time
}

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; the web process and the worker share the file.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// RecordReceipt journals a payment. Recording the same flow twice returns
// the existing entry.
func (r *SQLiteRepository) RecordReceipt(ctx context.Context, p core.Payment) (Receipt, error) {
	if p.FlowID == "" {
		return Receipt{}, fmt.Errorf("record receipt: missing flow id")
	}
	err := r.queries.CreateReceipt(ctx, CreateReceiptParams{
		FlowID:          p.FlowID,
		ReceiptNumber:   p.ReceiptNumber,
		SubscriberID:    p.SubscriberID,
		SubscriberName:  p.Subscriber.Name,
		SubscriberPhone: p.Subscriber.Phone,
		MemberType:      string(p.Subscriber.MemberType()),
		AmountCents:     p.Amount.Cents,
		Month:           int64(p.Month),
		Year:            int64(p.Year),
		PaidAt:          p.PaidAt.String(),
		Description:     p.Description,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("create receipt: %w", err)
	}

	row, err := r.queries.GetReceiptByFlow(ctx, p.FlowID)
	if err != nil {
		return Receipt{}, fmt.Errorf("get receipt by flow: %w", err)
	}

	slog.InfoContext(ctx, "Receipt journaled",
		"id", row.ID,
		"receipt_number", row.ReceiptNumber,
		"subscriber_id", row.SubscriberID,
		"amount_cents", row.AmountCents,
		"month", row.Month,
		"year", row.Year)

	return toReceipt(row), nil
}

func (r *SQLiteRepository) GetReceipt(ctx context.Context, id int64) (Receipt, error) {
	row, err := r.queries.GetReceipt(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Receipt{}, fmt.Errorf("%w: %d", ErrReceiptNotFound, id)
	}
	if err != nil {
		return Receipt{}, fmt.Errorf("get receipt by id: %w", err)
	}
	return toReceipt(row), nil
}

// ListByPeriod returns the receipts issued for a period, oldest first.
func (r *SQLiteRepository) ListByPeriod(ctx context.Context, p core.Period) ([]Receipt, error) {
	rows, err := r.queries.ListReceiptsByPeriod(ctx, int64(p.Year), int64(p.Month))
	if err != nil {
		return nil, fmt.Errorf("list receipts by period: %w", err)
	}
	return toReceipts(rows), nil
}

// ListPendingArchive returns entries that still need a PDF copy, oldest first.
func (r *SQLiteRepository) ListPendingArchive(ctx context.Context, limit int) ([]Receipt, error) {
	rows, err := r.queries.ListPendingArchive(ctx, MaxArchiveAttempts, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list pending archive: %w", err)
	}
	return toReceipts(rows), nil
}

func (r *SQLiteRepository) MarkArchived(ctx context.Context, id int64, path string) error {
	n, err := r.queries.MarkReceiptArchived(ctx, path, id)
	if err != nil {
		return fmt.Errorf("mark receipt archived: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrReceiptNotFound, id)
	}
	slog.InfoContext(ctx, "Receipt marked as archived", "id", id, "path", path)
	return nil
}

func (r *SQLiteRepository) MarkArchiveError(ctx context.Context, id int64) error {
	if err := r.queries.MarkReceiptArchiveError(ctx, id); err != nil {
		return fmt.Errorf("mark receipt archive error: %w", err)
	}
	slog.WarnContext(ctx, "Receipt marked with archive error", "id", id)
	return nil
}

func (r *SQLiteRepository) CountReceipts(ctx context.Context) (int64, error) {
	n, err := r.queries.CountReceipts(ctx)
	if err != nil {
		return 0, fmt.Errorf("count receipts: %w", err)
	}
	return n, nil
}

func toReceipts(rows []receiptRow) []Receipt {
	out := make([]Receipt, len(rows))
	for i, row := range rows {
		out[i] = toReceipt(row)
	}
	return out
}

func toReceipt(row receiptRow) Receipt {
	rec := Receipt{
		ID:              row.ID,
		FlowID:          row.FlowID,
		ReceiptNumber:   row.ReceiptNumber,
		SubscriberID:    row.SubscriberID,
		SubscriberName:  row.SubscriberName,
		SubscriberPhone: row.SubscriberPhone,
		MemberType:      core.MemberType(row.MemberType),
		Amount:          core.Money{Cents: row.AmountCents},
		Period:          core.Period{Month: int(row.Month), Year: int(row.Year)},
		Description:     row.Description,
		CreatedAt:       row.CreatedAt.Time,
		ArchiveStatus:   row.ArchiveStatus,
		ArchivePath:     row.ArchivePath,
		ArchiveAttempts: int(row.ArchiveAttempts),
	}
	if d, err := core.ParseDate(row.PaidAt); err == nil {
		rec.PaidAt = d
	}
	if row.ArchivedAt.Valid {
		t := row.ArchivedAt.Time
		rec.ArchivedAt = &t
	}
	return rec
}
