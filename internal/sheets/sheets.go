// Package sheets defines the ledger the receipt worker mirrors journaled
// receipts into.
package sheets

import (
	"context"

	"talahum/internal/core"
)

// LedgerEntry is one archived receipt as written to the ledger.
type LedgerEntry struct {
	ReceiptNumber string
	PaidAt        core.Date
	Name          string
	Phone         string
	MemberType    core.MemberType
	Amount        core.Money
	Period        core.Period
	Description   string
	ArchivePath   string
}

// ReceiptLedger appends entries and returns a reference to the written row.
type ReceiptLedger interface {
	AppendReceipt(ctx context.Context, e LedgerEntry) (string, error)
}
