package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"os"
	"time"

	"github.com/fogleman/gg"
	"github.com/go-pdf/fpdf"
	"github.com/go-text/typesetting/font"

	"talahum/assets"
)

// Labels are the association details printed on every document.
type Labels struct {
	AssociationName    string
	AssociationAddress string
	Currency           string
}

func DefaultLabels() Labels {
	return Labels{
		AssociationName:    "جمعية التلاحم الخيرية",
		AssociationAddress: "تعز - المعافر - الشعوبة - الظهرة",
		Currency:           "ريال يمني",
	}
}

// PDFExporter draws each page as an image and wraps the pages in a PDF.
type PDFExporter struct {
	font        *font.Font
	labels      Labels
	rowsPerPage int
	now         func() time.Time
	logger      *slog.Logger
}

var _ Exporter = (*PDFExporter)(nil)

type Option func(*PDFExporter)

// WithRowsPerPage sets how many table rows fit on one report page.
func WithRowsPerPage(n int) Option {
	return func(e *PDFExporter) {
		if n > 0 {
			e.rowsPerPage = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *PDFExporter) { e.now = now }
}

// NewPDFExporter loads the TTF at fontPath. An empty path uses the embedded
// DejaVu Sans Condensed. The font must cover Arabic.
func NewPDFExporter(fontPath string, labels Labels, logger *slog.Logger, opts ...Option) (*PDFExporter, error) {
	f, err := loadFont(fontPath)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultLabels()
	if labels.AssociationName == "" {
		labels.AssociationName = def.AssociationName
	}
	if labels.AssociationAddress == "" {
		labels.AssociationAddress = def.AssociationAddress
	}
	if labels.Currency == "" {
		labels.Currency = def.Currency
	}
	e := &PDFExporter{
		font:        f,
		labels:      labels,
		rowsPerPage: 24,
		now:         time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func loadFont(path string) (*font.Font, error) {
	fontBytes := assets.ReceiptFont
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read font file: %w", err)
		}
		fontBytes = b
	}
	face, err := font.ParseTTF(bytes.NewReader(fontBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	if _, ok := face.NominalGlyph('ع'); !ok {
		return nil, fmt.Errorf("font %q has no Arabic glyphs", path)
	}
	return face.Font, nil
}

// RenderReceipt draws the receipt on one A5 landscape page.
func (e *PDFExporter) RenderReceipt(ctx context.Context, doc ReceiptDocument) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	page, err := e.drawReceipt(doc, newTypesetter(e.font))
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: receipt %s: %v", ErrRender, doc.ReceiptNumber, err)
	}
	body, err := assemble("L", "A5", "سند قبض "+doc.ReceiptNumber, []image.Image{page})
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: receipt %s: %v", ErrRender, doc.ReceiptNumber, err)
	}
	e.logger.DebugContext(ctx, "Receipt rendered", "receipt_number", doc.ReceiptNumber, "bytes", len(body))
	return Artifact{
		Filename:    receiptFilename(doc.ReceiptNumber),
		ContentType: ContentTypePDF,
		Body:        body,
	}, nil
}

// RenderPeriodReport draws the summary cards and the subscriber table on A4
// portrait pages.
func (e *PDFExporter) RenderPeriodReport(ctx context.Context, report PeriodReport) (Artifact, error) {
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = e.now()
	}
	ts := newTypesetter(e.font)
	chunks := paginate(len(report.Rows), e.rowsPerPage)
	pages := make([]image.Image, 0, len(chunks))
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return Artifact{}, err
		}
		pages = append(pages, e.drawReportPage(report, report.Rows[c.start:c.end], i, len(chunks), ts))
	}
	title := "إدارة الاشتراكات الشهرية " + report.Period.MonthName()
	body, err := assemble("P", "A4", title, pages)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: period report %s: %v", ErrRender, report.Period, err)
	}
	e.logger.DebugContext(ctx, "Period report rendered",
		"month", report.Period.Month,
		"year", report.Period.Year,
		"pages", len(pages),
		"rows", len(report.Rows))
	return Artifact{
		Filename:    periodReportFilename(report.Period),
		ContentType: ContentTypePDF,
		Body:        body,
	}, nil
}

type span struct{ start, end int }

// paginate splits n rows into pages; an empty report still has one page.
func paginate(n, perPage int) []span {
	if n == 0 {
		return []span{{0, 0}}
	}
	var out []span
	for start := 0; start < n; start += perPage {
		end := start + perPage
		if end > n {
			end = n
		}
		out = append(out, span{start, end})
	}
	return out
}

// assemble places every page image full-bleed on its own PDF page.
func assemble(orientation, size, title string, pages []image.Image) ([]byte, error) {
	pdf := fpdf.New(orientation, "mm", size, "")
	pdf.SetTitle(title, true)
	pdf.SetCreator("talahum", false)
	pdf.SetAutoPageBreak(false, 0)
	w, h := pdf.GetPageSize()

	opts := fpdf.ImageOptions{ImageType: "JPG"}
	for i, img := range pages {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
			return nil, fmt.Errorf("encode page %d: %w", i+1, err)
		}
		name := fmt.Sprintf("page-%d", i+1)
		pdf.AddPage()
		pdf.RegisterImageOptionsReader(name, opts, &buf)
		pdf.ImageOptions(name, 0, 0, w, h, false, opts, 0, "")
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return out.Bytes(), nil
}

func newPage(width, height int) *gg.Context {
	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	return dc
}
