package render

import (
	"slices"
	"strings"

	"github.com/fogleman/gg"
	"github.com/go-text/typesetting/di"
	"github.com/go-text/typesetting/font"
	ot "github.com/go-text/typesetting/font/opentype"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/unicode/bidi"
)

// Text sizes in pixels.
const (
	sizeTitle = 44.0
	sizeBody  = 28.0
	sizeSmall = 22.0
)

// maxLineWidth keeps every label on a single line.
const maxLineWidth = 1 << 20

var arabic = language.NewLanguage("ar")

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// typesetter shapes single lines with HarfBuzz and draws the glyph outlines
// on a gg context. It is not safe for concurrent use.
type typesetter struct {
	face    *font.Face
	size    float64
	shaper  shaping.HarfbuzzShaper
	seg     shaping.Segmenter
	wrapper shaping.LineWrapper
}

func newTypesetter(f *font.Font) *typesetter {
	return &typesetter{face: font.NewFace(f), size: sizeBody}
}

func (t *typesetter) setSize(px float64) { t.size = px }

// singleFace resolves every rune to the document font.
type singleFace struct{ face *font.Face }

func (s singleFace) ResolveFace(rune) *font.Face { return s.face }

// layout shapes s and returns its runs left to right with the total advance.
func (t *typesetter) layout(s string) ([]shaping.Output, fixed.Int26_6) {
	text := []rune(lineBreaks.Replace(s))
	if len(text) == 0 {
		return nil, 0
	}
	dir := baseDirection(text)
	input := shaping.Input{
		Text:      text,
		RunEnd:    len(text),
		Direction: dir,
		Face:      t.face,
		Size:      fixed.Int26_6(t.size * 64),
		Language:  arabic,
	}
	items := t.seg.Split(input, singleFace{t.face})
	shaped := make([]shaping.Output, len(items))
	for i, item := range items {
		shaped[i] = t.shaper.Shape(item)
	}

	cfg := shaping.WrapConfig{
		Direction:                     dir,
		BreakPolicy:                   shaping.Never,
		DisableTrailingWhitespaceTrim: true,
	}
	lines, _ := t.wrapper.WrapParagraph(cfg, maxLineWidth, text, shaping.NewSliceIterator(shaped))

	var (
		runs  []shaping.Output
		width fixed.Int26_6
	)
	for _, line := range lines {
		ordered := slices.Clone(line)
		slices.SortFunc(ordered, func(a, b shaping.Output) int { return int(a.VisualIndex - b.VisualIndex) })
		for _, run := range ordered {
			width += run.Advance
		}
		runs = append(runs, ordered...)
	}
	return runs, width
}

// measure returns the advance of s in pixels.
func (t *typesetter) measure(s string) float64 {
	_, w := t.layout(s)
	return toFloat(w)
}

// fit shortens s with an ellipsis until it is at most width pixels wide.
func (t *typesetter) fit(s string, width float64) string {
	if t.measure(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 {
		r = r[:len(r)-1]
		if cut := strings.TrimSpace(string(r)) + "…"; t.measure(cut) <= width {
			return cut
		}
	}
	return ""
}

// draw fills s vertically centred on y; ax is the horizontal anchor
// (0 left, 0.5 centre, 1 right).
func (t *typesetter) draw(dc *gg.Context, s string, x, y, ax float64) {
	runs, width := t.layout(s)
	if len(runs) == 0 {
		return
	}
	var ascent, descent fixed.Int26_6
	for _, run := range runs {
		ascent = max(ascent, run.LineBounds.Ascent)
		descent = min(descent, run.LineBounds.Descent)
	}

	pen := x - ax*toFloat(width)
	baseline := y + toFloat(ascent+descent)/2
	for i := range runs {
		run := &runs[i]
		scale := toFloat(run.Size) / float64(run.Face.Upem())
		for _, g := range run.Glyphs {
			if outline, ok := run.Face.GlyphData(g.GlyphID).(font.GlyphOutline); ok {
				tracePath(dc, outline, pen+toFloat(g.XOffset), baseline-toFloat(g.YOffset), scale)
			}
			pen += toFloat(g.XAdvance)
		}
	}
	dc.Fill()
}

// tracePath appends a glyph outline, in font units with Y up, to the
// current path at origin (x, y).
func tracePath(dc *gg.Context, o font.GlyphOutline, x, y, scale float64) {
	px := func(p font.SegmentPoint) (float64, float64) {
		return x + float64(p.X)*scale, y - float64(p.Y)*scale
	}
	for _, seg := range o.Segments {
		a := seg.Args
		switch seg.Op {
		case ot.SegmentOpMoveTo:
			dc.MoveTo(px(a[0]))
		case ot.SegmentOpLineTo:
			dc.LineTo(px(a[0]))
		case ot.SegmentOpQuadTo:
			x1, y1 := px(a[0])
			x2, y2 := px(a[1])
			dc.QuadraticTo(x1, y1, x2, y2)
		case ot.SegmentOpCubeTo:
			x1, y1 := px(a[0])
			x2, y2 := px(a[1])
			x3, y3 := px(a[2])
			dc.CubicTo(x1, y1, x2, y2, x3, y3)
		}
	}
	dc.ClosePath()
}

// baseDirection applies the first-strong-character rule; text without a
// strong character is laid out left to right.
func baseDirection(text []rune) di.Direction {
	for _, r := range text {
		p, _ := bidi.LookupRune(r)
		switch p.Class() {
		case bidi.L:
			return di.DirectionLTR
		case bidi.R, bidi.AL:
			return di.DirectionRTL
		}
	}
	return di.DirectionLTR
}

func toFloat(v fixed.Int26_6) float64 { return float64(v) / 64 }
