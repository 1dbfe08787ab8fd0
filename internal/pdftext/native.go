package pdftext

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
)

const (
	// approxCharWidth estimates glyph advance in points when the PDF row
	// data carries no widths.
	approxCharWidth = 5.0
	// columnGap is the horizontal gap, in points, treated as a column break.
	columnGap = 12.0
)

// Native extracts text with the pure-Go ledongthuc/pdf reader, rebuilding
// each row with runs of spaces where the layout has column gaps so the
// table detector sees the same shape pdftotext -layout produces.
type Native struct{}

// NewNative creates a Native extractor.
func NewNative() *Native {
	return &Native{}
}

// ExtractPages reads every page of the PDF. A page that fails to decode is
// returned with Err set.
func (n *Native) ExtractPages(ctx context.Context, pdfPath string) ([]Page, error) {
	f, r, err := pdf.Open(pdfPath)
	if err != nil {
		return nil, eris.Wrapf(err, "pdftext: open %s", pdfPath)
	}
	defer f.Close() //nolint:errcheck

	total := r.NumPage()
	pages := make([]Page, 0, total)
	for num := 1; num <= total; num++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "pdftext: context cancelled")
		}
		page := Page{Number: num}
		p := r.Page(num)
		if p.V.IsNull() {
			pages = append(pages, page)
			continue
		}
		rows, err := p.GetTextByRow()
		if err != nil {
			page.Err = eris.Wrapf(err, "pdftext: read page %d", num)
			pages = append(pages, page)
			continue
		}
		page.Text = renderRows(rows)
		pages = append(pages, page)
	}
	return pages, nil
}

// renderRows lays rows out top to bottom. PDF y coordinates grow upwards.
func renderRows(rows pdf.Rows) string {
	sorted := make(pdf.Rows, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Position > sorted[j].Position
	})

	var sb strings.Builder
	for _, row := range sorted {
		texts := make([]pdf.Text, len(row.Content))
		copy(texts, row.Content)
		sort.SliceStable(texts, func(i, j int) bool { return texts[i].X < texts[j].X })

		var line strings.Builder
		end := math.Inf(-1)
		for _, t := range texts {
			if t.S == "" {
				continue
			}
			if line.Len() > 0 {
				switch gap := t.X - end; {
				case gap >= columnGap:
					line.WriteString("   ")
				case gap >= approxCharWidth/2:
					line.WriteByte(' ')
				}
			}
			line.WriteString(t.S)
			width := t.W
			if width <= 0 {
				width = float64(utf8.RuneCountInString(t.S)) * approxCharWidth
			}
			end = t.X + width
		}
		sb.WriteString(line.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
