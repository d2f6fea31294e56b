// Package render turns receipts and period summaries into printable PDF files.
package render

import (
	"context"
	"errors"
	"time"

	"talahum/internal/core"
)

// ErrRender wraps every failure to produce a document.
var ErrRender = errors.New("render document")

const ContentTypePDF = "application/pdf"

// Artifact is a rendered, downloadable file.
type Artifact struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ReceiptDocument is the content of a payment receipt.
type ReceiptDocument struct {
	ReceiptNumber string
	Date          core.Date
	Name          string
	Phone         string
	MemberType    core.MemberType
	Amount        core.Money
	Period        core.Period
	Description   string
}

// PeriodReport is the content of a period summary export.
type PeriodReport struct {
	Period      core.Period
	Rows        []core.PeriodRow
	Summary     core.Summary
	GeneratedAt time.Time
}

// Exporter renders documents to files.
type Exporter interface {
	RenderReceipt(ctx context.Context, doc ReceiptDocument) (Artifact, error)
	RenderPeriodReport(ctx context.Context, report PeriodReport) (Artifact, error)
}
