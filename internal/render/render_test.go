package render

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-text/typesetting/di"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	"talahum/internal/core"
)

func newTestExporter(t *testing.T, opts ...Option) *PDFExporter {
	t.Helper()
	e, err := NewPDFExporter("", Labels{}, nil, opts...)
	require.NoError(t, err)
	return e
}

func TestRenderReceipt(t *testing.T) {
	e := newTestExporter(t)
	art, err := e.RenderReceipt(context.Background(), ReceiptDocument{
		ReceiptNumber: "000042",
		Date:          core.NewDate(2024, 3, 10),
		Name:          "أحمد علي",
		Phone:         "777100200",
		MemberType:    core.MemberAffiliated,
		Amount:        core.Money{Cents: 5000},
		Period:        core.Period{Month: 3, Year: 2024},
	})
	require.NoError(t, err)
	assert.Equal(t, "سند_دفع_000042.pdf", art.Filename)
	assert.Equal(t, ContentTypePDF, art.ContentType)
	assert.True(t, bytes.HasPrefix(art.Body, []byte("%PDF")))
}

func TestRenderPeriodReportPaginates(t *testing.T) {
	e := newTestExporter(t, WithRowsPerPage(2), WithClock(func() time.Time {
		return time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	}))
	rows := make([]core.PeriodRow, 5)
	for i := range rows {
		rows[i] = core.PeriodRow{Subscriber: core.Subscriber{ID: int64(i + 1), Name: "عضو"}}
	}
	rows[0].Subscription = &core.SubscriptionRecord{Month: 3, Year: 2024, Status: core.StatusPaid, Amount: core.Money{Cents: 1000}}

	art, err := e.RenderPeriodReport(context.Background(), PeriodReport{
		Period:  core.Period{Month: 3, Year: 2024},
		Rows:    rows,
		Summary: core.Summarize(rows),
	})
	require.NoError(t, err)
	assert.Equal(t, "اشتراكات-مارس-2024.pdf", art.Filename)
	assert.True(t, bytes.HasPrefix(art.Body, []byte("%PDF")))
	assert.Equal(t, 3, bytes.Count(art.Body, []byte("/Type /Page\n")))
}

func TestRenderPeriodReportEmpty(t *testing.T) {
	e := newTestExporter(t)
	art, err := e.RenderPeriodReport(context.Background(), PeriodReport{Period: core.Period{Month: 1, Year: 2025}})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(art.Body, []byte("%PDF")))
}

func TestRenderHonoursCancellation(t *testing.T) {
	e := newTestExporter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.RenderReceipt(ctx, ReceiptDocument{ReceiptNumber: "000001"})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNewPDFExporterMissingFont(t *testing.T) {
	_, err := NewPDFExporter("/nonexistent/font.ttf", Labels{}, nil)
	assert.Error(t, err)
}

func TestPaginate(t *testing.T) {
	assert.Equal(t, []span{{0, 0}}, paginate(0, 10))
	assert.Equal(t, []span{{0, 10}}, paginate(10, 10))
	assert.Equal(t, []span{{0, 10}, {10, 11}}, paginate(11, 10))
}

func TestNewPDFExporterRejectsFontWithoutArabic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "go.ttf")
	require.NoError(t, os.WriteFile(path, goregular.TTF, 0o600))
	_, err := NewPDFExporter(path, Labels{}, nil)
	assert.ErrorContains(t, err, "no Arabic glyphs")
}

func TestLayoutJoinsArabicLetters(t *testing.T) {
	e := newTestExporter(t)
	ts := newTypesetter(e.font)

	runs, width := ts.layout("سند")
	require.Len(t, runs, 1)
	assert.Equal(t, di.DirectionRTL, runs[0].Direction)
	assert.Positive(t, int(width))

	glyphs := runs[0].Glyphs
	require.Len(t, glyphs, 3)
	// Left to right on the page: dal, noon, seen.
	assert.Equal(t, []int{2, 1, 0}, []int{glyphs[0].ClusterIndex, glyphs[1].ClusterIndex, glyphs[2].ClusterIndex})

	// Seen and noon take their initial and medial forms, not the isolated ones.
	seen, _ := ts.face.NominalGlyph('س')
	noon, _ := ts.face.NominalGlyph('ن')
	assert.NotEqual(t, seen, glyphs[2].GlyphID)
	assert.NotEqual(t, noon, glyphs[1].GlyphID)
}

func TestLayoutOrdersMixedRuns(t *testing.T) {
	e := newTestExporter(t)
	ts := newTypesetter(e.font)

	runs, _ := ts.layout("رقم 12")
	require.Len(t, runs, 2)
	// The number is read left to right and sits left of the Arabic label.
	assert.Equal(t, di.DirectionLTR, runs[0].Direction)
	assert.Equal(t, 4, runs[0].Runes.Offset)
	assert.Equal(t, di.DirectionRTL, runs[1].Direction)
	assert.Equal(t, 0, runs[1].Runes.Offset)

	runs, _ = ts.layout("Receipt 42")
	require.Len(t, runs, 1)
	assert.Equal(t, di.DirectionLTR, runs[0].Direction)
	require.Len(t, runs[0].Glyphs, 10)
	assert.Equal(t, 0, runs[0].Glyphs[0].ClusterIndex)

	runs, width := ts.layout("")
	assert.Empty(t, runs)
	assert.Zero(t, width)
}

func TestFitTruncatesWithEllipsis(t *testing.T) {
	e := newTestExporter(t)
	ts := newTypesetter(e.font)
	ts.setSize(sizeSmall)

	name := "عبدالرحمن بن محمد بن عبدالله الحميري"
	assert.Equal(t, name, ts.fit(name, 10000))

	short := ts.fit(name, 120)
	assert.True(t, strings.HasSuffix(short, "…"), short)
	assert.LessOrEqual(t, ts.measure(short), 120.0)
}

func TestBaseDirection(t *testing.T) {
	assert.Equal(t, di.DirectionRTL, baseDirection([]rune("12 سند")))
	assert.Equal(t, di.DirectionLTR, baseDirection([]rune("PDF سند")))
	assert.Equal(t, di.DirectionLTR, baseDirection([]rune("2024-03")))
}
