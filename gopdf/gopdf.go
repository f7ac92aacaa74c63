// Package gopdf renders artifacts to PDF using gopdf.
package gopdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/fwojciec/medic"
	"github.com/fwojciec/medic/artifact"
	"github.com/fwojciec/medic/goldmark"
	"github.com/signintech/gopdf"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	margin       = 50.0
	regularFont  = "body"
	boldFont     = "body-bold"
	titleSize    = 20
	headingSize  = 14
	bodySize     = 11
	smallSize    = 9
	leadingRatio = 1.4
)

// FontPair names a regular and bold TrueType font file.
type FontPair struct {
	Regular string
	Bold    string
}

// DefaultFonts are the DejaVu locations of common Linux distributions.
var DefaultFonts = []FontPair{
	{"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf", "/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf"},
	{"/usr/share/fonts/dejavu/DejaVuSans.ttf", "/usr/share/fonts/dejavu/DejaVuSans-Bold.ttf"},
	{"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf", "/usr/share/fonts/ttf-dejavu/DejaVuSans-Bold.ttf"},
}

var _ medic.Renderer = (*Renderer)(nil)

// Renderer renders artifacts as A4 PDF documents. The first loadable font
// pair is used; the embedded Go fonts are the fallback.
type Renderer struct {
	fonts []FontPair
	now   func() time.Time
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithFonts replaces the font search list.
func WithFonts(fonts ...FontPair) Option {
	return func(r *Renderer) { r.fonts = fonts }
}

// WithClock sets the clock used for undated artifacts.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) { r.now = now }
}

// New creates a Renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{fonts: DefaultFonts, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ContentType implements medic.Renderer.
func (r *Renderer) ContentType() string {
	return "application/pdf"
}

// Render implements medic.Renderer.
func (r *Renderer) Render(ctx context.Context, a *medic.Artifact) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.SetMargins(margin, margin, margin, margin)
	if err := r.loadFonts(pdf); err != nil {
		return nil, err
	}
	pdf.AddPage()

	w := &writer{pdf: pdf, width: gopdf.PageSizeA4.W - 2*margin, bottom: gopdf.PageSizeA4.H - margin}
	w.paragraph(a.Title, boldFont, titleSize, 0)
	generated := a.CreatedAt
	if generated.IsZero() {
		generated = r.now()
	}
	w.paragraph(fmt.Sprintf("%s - Generated %s", artifact.DefaultTitle(a.Type),
		generated.UTC().Format("January 2, 2006 15:04 MST")), regularFont, smallSize, 0)
	w.rule()

	for _, s := range a.Sections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w.space(6)
		w.paragraph(s.Heading, boldFont, headingSize, 0)
		for _, f := range s.Fields {
			w.paragraph(f.Name+": "+f.Value, regularFont, bodySize, 10)
		}
		w.blocks(goldmark.Blocks(s.Body))
	}

	w.space(12)
	w.rule()
	for _, b := range goldmark.Blocks(medic.Disclaimer) {
		w.paragraph(b.Text, regularFont, smallSize, 0)
	}
	if w.err != nil {
		return nil, fmt.Errorf("layout: %w", w.err)
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) loadFonts(pdf *gopdf.GoPdf) error {
	for _, f := range r.fonts {
		if pdf.AddTTFFont(regularFont, f.Regular) != nil {
			continue
		}
		if pdf.AddTTFFont(boldFont, f.Bold) != nil {
			if err := pdf.AddTTFFont(boldFont, f.Regular); err != nil {
				continue
			}
		}
		return nil
	}
	if err := pdf.AddTTFFontData(regularFont, goregular.TTF); err != nil {
		return fmt.Errorf("load font: %w", err)
	}
	if err := pdf.AddTTFFontData(boldFont, gobold.TTF); err != nil {
		return fmt.Errorf("load bold font: %w", err)
	}
	return nil
}

// writer lays out text top to bottom, adding pages as needed. The first
// error sticks and stops further output.
type writer struct {
	pdf    *gopdf.GoPdf
	width  float64
	bottom float64
	err    error
}

func (w *writer) blocks(bs []goldmark.Block) {
	for _, b := range bs {
		switch b.Kind {
		case goldmark.BlockHeading:
			w.space(4)
			w.paragraph(b.Text, boldFont, bodySize+1, 0)
		case goldmark.BlockListItem:
			w.paragraph(b.Marker+b.Text, regularFont, bodySize, 10+12*float64(b.Depth))
		case goldmark.BlockCode:
			w.paragraph(b.Text, regularFont, bodySize-1, 10)
		case goldmark.BlockRule:
			w.rule()
		default:
			font := regularFont
			if b.Bold {
				font = boldFont
			}
			w.paragraph(b.Text, font, bodySize, 0)
			w.space(4)
		}
	}
}

func (w *writer) paragraph(text, font string, size, indent float64) {
	if w.err != nil {
		return
	}
	if w.err = w.pdf.SetFont(font, "", size); w.err != nil {
		return
	}
	leading := size * leadingRatio
	for _, raw := range strings.Split(clean(text), "\n") {
		lines, err := w.wrap(raw, w.width-indent)
		if err != nil {
			w.err = err
			return
		}
		for _, line := range lines {
			w.ensure(leading)
			w.pdf.SetX(margin + indent)
			if line != "" {
				if w.err = w.pdf.Cell(nil, line); w.err != nil {
					return
				}
			}
			w.pdf.Br(leading)
		}
	}
}

// wrap breaks text on word boundaries to fit width. Words wider than a
// line are split by character.
func (w *writer) wrap(text string, width float64) ([]string, error) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}, nil
	}
	var lines []string
	var cur string
	for _, word := range words {
		candidate := word
		if cur != "" {
			candidate = cur + " " + word
		}
		fits, err := w.pdf.MeasureTextWidth(candidate)
		if err != nil {
			return nil, err
		}
		if fits <= width {
			cur = candidate
			continue
		}
		if cur != "" {
			lines = append(lines, cur)
		}
		ww, err := w.pdf.MeasureTextWidth(word)
		if err != nil {
			return nil, err
		}
		if ww <= width {
			cur = word
			continue
		}
		parts, err := w.pdf.SplitText(word, width)
		if err != nil {
			return nil, err
		}
		if len(parts) == 0 {
			cur = ""
			continue
		}
		lines = append(lines, parts[:len(parts)-1]...)
		cur = parts[len(parts)-1]
	}
	return append(lines, cur), nil
}

func (w *writer) ensure(h float64) {
	if w.pdf.GetY()+h > w.bottom {
		w.pdf.AddPage()
		w.pdf.SetY(margin)
	}
}

func (w *writer) space(h float64) {
	if w.err != nil {
		return
	}
	w.ensure(h)
	w.pdf.Br(h)
}

func (w *writer) rule() {
	if w.err != nil {
		return
	}
	w.ensure(8)
	y := w.pdf.GetY() + 4
	w.pdf.SetLineWidth(0.5)
	w.pdf.Line(margin, y, margin+w.width, y)
	w.pdf.Br(8)
}

// clean drops emoji, symbols and format characters that text fonts do not
// carry.
func clean(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n':
			return r
		case r == '\t':
			return ' '
		case r > 0xFFFF, !unicode.IsPrint(r),
			r > 0xFF && unicode.In(r, unicode.So, unicode.Mn, unicode.Cf, unicode.Co):
			return -1
		}
		return r
	}, s)
}
