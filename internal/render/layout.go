package render

import (
	"fmt"
	"image"
	"strings"

	"github.com/fogleman/gg"
	"github.com/skip2/go-qrcode"

	"talahum/internal/core"
)

// Page sizes in pixels, 150 dpi.
const (
	a5Width, a5Height = 1240, 874
	a4Width, a4Height = 1240, 1754
	margin            = 60.0
)

var (
	colorInk    = [3]float64{0.13, 0.13, 0.13}
	colorMuted  = [3]float64{0.42, 0.45, 0.50}
	colorBorder = [3]float64{0.80, 0.82, 0.85}
	colorHeader = [3]float64{0.93, 0.95, 0.97}
)

func setRGB(dc *gg.Context, c [3]float64) { dc.SetRGB(c[0], c[1], c[2]) }

func receiptFilename(n string) string { return core.ReceiptFilename(n) }

func periodReportFilename(p core.Period) string { return core.PeriodReportFilename(p) }

func (e *PDFExporter) drawReceipt(doc ReceiptDocument, ts *typesetter) (image.Image, error) {
	dc := newPage(a5Width, a5Height)
	w, h := float64(a5Width), float64(a5Height)

	setRGB(dc, colorBorder)
	dc.SetLineWidth(3)
	dc.DrawRectangle(margin/2, margin/2, w-margin, h-margin)
	dc.Stroke()

	setRGB(dc, colorInk)
	ts.setSize(sizeTitle)
	ts.draw(dc, e.labels.AssociationName, w/2, 95, 0.5)
	setRGB(dc, colorMuted)
	ts.setSize(sizeSmall)
	ts.draw(dc, e.labels.AssociationAddress, w/2, 140, 0.5)
	setRGB(dc, colorInk)
	ts.setSize(sizeTitle)
	ts.draw(dc, "سند قبض", w/2, 205, 0.5)

	qr, err := qrcode.New(receiptQRContent(doc), qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("qr code: %w", err)
	}
	dc.DrawImage(qr.Image(180), int(margin), 60)

	lines := [][2]string{
		{"رقم السند", doc.ReceiptNumber},
		{"التاريخ", doc.Date.String()},
		{"الاسم", doc.Name},
		{"رقم الهاتف", doc.Phone},
		{"المبلغ", doc.Amount.String() + " " + e.labels.Currency},
		{"نوع العضو", doc.MemberType.Label()},
		{"عن شهر", fmt.Sprintf("%s %d", doc.Period.MonthName(), doc.Period.Year)},
	}
	if strings.TrimSpace(doc.Description) != "" {
		lines = append(lines, [2]string{"البيان", doc.Description})
	}

	ts.setSize(sizeBody)
	y := 290.0
	for _, l := range lines {
		ts.draw(dc, l[0]+": "+l[1], w-margin-20, y, 1)
		y += 48
	}

	// Signature footer.
	sigY := h - 110
	dc.SetLineWidth(2)
	setRGB(dc, colorMuted)
	dc.DrawLine(w-margin-360, sigY, w-margin-40, sigY)
	dc.DrawLine(margin+40, sigY, margin+360, sigY)
	dc.Stroke()
	setRGB(dc, colorInk)
	ts.setSize(sizeSmall)
	ts.draw(dc, "توقيع المستلم", w-margin-200, sigY+35, 0.5)
	ts.draw(dc, "توقيع أمين الصندوق", margin+200, sigY+35, 0.5)

	return dc.Image(), nil
}

func receiptQRContent(doc ReceiptDocument) string {
	return fmt.Sprintf("receipt=%s;date=%s;amount=%s;period=%s",
		doc.ReceiptNumber, doc.Date.String(), doc.Amount.String(), doc.Period.Key())
}

// report table columns, right to left.
var reportColumns = []struct {
	title string
	width float64
}{
	{"الاسم", 300},
	{"الهاتف", 200},
	{"نوع العضو", 160},
	{"الحالة", 160},
	{"تاريخ الدفع", 160},
	{"المبلغ", 140},
}

func (e *PDFExporter) drawReportPage(report PeriodReport, rows []core.PeriodRow, pageIdx, pageCount int, ts *typesetter) image.Image {
	dc := newPage(a4Width, a4Height)
	w, h := float64(a4Width), float64(a4Height)

	setRGB(dc, colorInk)
	ts.setSize(sizeTitle)
	ts.draw(dc, "إدارة الاشتراكات الشهرية", w/2, 100, 0.5)
	ts.setSize(sizeBody)
	setRGB(dc, colorMuted)
	ts.draw(dc, fmt.Sprintf("%s - %s %d", e.labels.AssociationName, report.Period.MonthName(), report.Period.Year), w/2, 150, 0.5)

	y := 200.0
	if pageIdx == 0 {
		y = e.drawSummaryCards(dc, report.Summary, y, ts)
	}
	drawTable(dc, rows, y, ts)

	// Footer.
	setRGB(dc, colorMuted)
	ts.setSize(sizeSmall)
	ts.draw(dc, "تاريخ الإنشاء: "+report.GeneratedAt.Format("2006-01-02"), w-margin, h-60, 1)
	ts.draw(dc, "الجمعية الخيرية - لوحة التحكم", w/2, h-60, 0.5)
	ts.draw(dc, fmt.Sprintf("%d / %d", pageIdx+1, pageCount), margin, h-60, 0)
	return dc.Image()
}

func (e *PDFExporter) drawSummaryCards(dc *gg.Context, s core.Summary, y float64, ts *typesetter) float64 {
	cards := [][2]string{
		{"إجمالي الاشتراكات", fmt.Sprint(s.Total)},
		{"الاشتراكات المدفوعة", fmt.Sprint(s.Paid)},
		{"قيد الانتظار", fmt.Sprint(s.Pending)},
		{"إجمالي المبالغ", s.Amount.String() + " " + e.labels.Currency},
	}
	gap := 20.0
	cardW := (float64(a4Width) - 2*margin - 3*gap) / 4
	cardH := 150.0
	x := float64(a4Width) - margin - cardW
	for _, c := range cards {
		setRGB(dc, colorHeader)
		dc.DrawRoundedRectangle(x, y, cardW, cardH, 12)
		dc.Fill()
		setRGB(dc, colorMuted)
		ts.setSize(sizeSmall)
		ts.draw(dc, c[0], x+cardW/2, y+45, 0.5)
		setRGB(dc, colorInk)
		ts.setSize(sizeBody)
		ts.draw(dc, c[1], x+cardW/2, y+105, 0.5)
		x -= cardW + gap
	}
	return y + cardH + 40
}

func drawTable(dc *gg.Context, rows []core.PeriodRow, y float64, ts *typesetter) {
	const rowH = 50.0
	right := float64(a4Width) - margin
	tableW := float64(a4Width) - 2*margin

	setRGB(dc, colorHeader)
	dc.DrawRectangle(margin, y, tableW, rowH)
	dc.Fill()
	setRGB(dc, colorInk)
	ts.setSize(sizeSmall)
	x := right
	for _, col := range reportColumns {
		ts.draw(dc, col.title, x-10, y+rowH/2, 1)
		x -= col.width
	}
	y += rowH

	for _, r := range rows {
		cells := []string{
			r.Subscriber.Name,
			r.Subscriber.Phone,
			r.Subscriber.MemberType().Label(),
			r.StatusLabel(),
			r.PaidAtLabel(),
			r.Amount().String(),
		}
		x = right
		for i, col := range reportColumns {
			ts.draw(dc, ts.fit(cells[i], col.width-20), x-10, y+rowH/2, 1)
			x -= col.width
		}
		setRGB(dc, colorBorder)
		dc.SetLineWidth(1)
		dc.DrawLine(margin, y+rowH, right, y+rowH)
		dc.Stroke()
		setRGB(dc, colorInk)
		y += rowH
	}
}
