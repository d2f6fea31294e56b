package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// receiptRow mirrors one row of the receipts table.
type receiptRow struct {
	ID              int64
	FlowID          string
	ReceiptNumber   string
	SubscriberID    int64
	SubscriberName  string
	SubscriberPhone string
	MemberType      string
	AmountCents     int64
	Month           int64
	Year            int64
	PaidAt          string
	Description     string
	CreatedAt       sql.NullTime
	ArchiveStatus   string
	ArchivePath     string
	ArchiveAttempts int64
	ArchivedAt      sql.NullTime
}

const receiptColumns = `id, flow_id, receipt_number, subscriber_id, subscriber_name, subscriber_phone,
	member_type, amount_cents, month, year, paid_at, description, created_at,
	archive_status, archive_path, archive_attempts, archived_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(s rowScanner) (receiptRow, error) {
	var r receiptRow
	err := s.Scan(
		&r.ID,
		&r.FlowID,
		&r.ReceiptNumber,
		&r.SubscriberID,
		&r.SubscriberName,
		&r.SubscriberPhone,
		&r.MemberType,
		&r.AmountCents,
		&r.Month,
		&r.Year,
		&r.PaidAt,
		&r.Description,
		&r.CreatedAt,
		&r.ArchiveStatus,
		&r.ArchivePath,
		&r.ArchiveAttempts,
		&r.ArchivedAt,
	)
	return r, err
}

type CreateReceiptParams struct {
	FlowID          string
	ReceiptNumber   string
	SubscriberID    int64
	SubscriberName  string
	SubscriberPhone string
	MemberType      string
	AmountCents     int64
	Month           int64
	Year            int64
	PaidAt          string
	Description     string
}

const createReceipt = `INSERT INTO receipts (
	flow_id, receipt_number, subscriber_id, subscriber_name, subscriber_phone,
	member_type, amount_cents, month, year, paid_at, description
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (flow_id) DO NOTHING`

func (q *Queries) CreateReceipt(ctx context.Context, arg CreateReceiptParams) error {
	_, err := q.db.ExecContext(ctx, createReceipt,
		arg.FlowID,
		arg.ReceiptNumber,
		arg.SubscriberID,
		arg.SubscriberName,
		arg.SubscriberPhone,
		arg.MemberType,
		arg.AmountCents,
		arg.Month,
		arg.Year,
		arg.PaidAt,
		arg.Description,
	)
	return err
}

const getReceipt = `SELECT ` + receiptColumns + ` FROM receipts WHERE id = ?`

func (q *Queries) GetReceipt(ctx context.Context, id int64) (receiptRow, error) {
	return scanReceipt(q.db.QueryRowContext(ctx, getReceipt, id))
}

const getReceiptByFlow = `SELECT ` + receiptColumns + ` FROM receipts WHERE flow_id = ?`

func (q *Queries) GetReceiptByFlow(ctx context.Context, flowID string) (receiptRow, error) {
	return scanReceipt(q.db.QueryRowContext(ctx, getReceiptByFlow, flowID))
}

const listReceiptsByPeriod = `SELECT ` + receiptColumns + ` FROM receipts
WHERE year = ? AND month = ?
ORDER BY id`

func (q *Queries) ListReceiptsByPeriod(ctx context.Context, year, month int64) ([]receiptRow, error) {
	return q.list(ctx, listReceiptsByPeriod, year, month)
}

const listPendingArchive = `SELECT ` + receiptColumns + ` FROM receipts
WHERE archive_status = 'pending'
   OR (archive_status = 'error' AND archive_attempts < ?)
ORDER BY created_at, id
LIMIT ?`

func (q *Queries) ListPendingArchive(ctx context.Context, maxAttempts, limit int64) ([]receiptRow, error) {
	return q.list(ctx, listPendingArchive, maxAttempts, limit)
}

const markReceiptArchived = `UPDATE receipts
SET archive_status = 'archived', archive_path = ?, archive_attempts = archive_attempts + 1, archived_at = CURRENT_TIMESTAMP
WHERE id = ?`

func (q *Queries) MarkReceiptArchived(ctx context.Context, path string, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, markReceiptArchived, path, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const markReceiptArchiveError = `UPDATE receipts
SET archive_status = 'error', archive_attempts = archive_attempts + 1
WHERE id = ? AND archive_status != 'archived'`

func (q *Queries) MarkReceiptArchiveError(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, markReceiptArchiveError, id)
	return err
}

const countReceipts = `SELECT COUNT(*) FROM receipts`

func (q *Queries) CountReceipts(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countReceipts).Scan(&n)
	return n, err
}

func (q *Queries) list(ctx context.Context, query string, args ...any) ([]receiptRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []receiptRow
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
