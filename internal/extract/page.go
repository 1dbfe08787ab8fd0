package extract

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/mre-cli/internal/model"
	"github.com/sells-group/mre-cli/internal/vocab"
)

const (
	// maxSectionLen bounds the length of a deposit sub-heading row.
	maxSectionLen = 60
	// captionReach is how many lines above a header a caption may sit.
	captionReach = 3
	// closeAfter is the number of consecutive non-table lines that end a table.
	closeAfter = 2
)

var (
	gapRe    = regexp.MustCompile(`\t+| {2,}`)
	numberRe = regexp.MustCompile(`^[<>~≈]?\(?[-−–]?\d[\d,]*(?:\.\d+)?\)?(?:\s*[\p{L}%/'’.]{1,8}(?:\s+\p{L}{1,3})?)?$`)
	inlineRe = regexp.MustCompile(`(?i)^(?:[-•*·]\s*)?(\p{L}[\p{L}\s&+'’./-]*?)\s*[:–—-]\s*(\d[\d,]*(?:\.\d+)?)\s*((?:'000\s*)?\p{L}+(?:\s+tonnes)?)\s*(?:@|at|grading)\s*(\d[\d,]*(?:\.\d+)?)\s*([\p{L}%/]+)(.*)$`)
)

var placeholders = map[string]bool{
	"-": true, "–": true, "—": true, "n/a": true, "na": true, "n.a.": true, "nil": true,
}

// IsNumeric reports whether a cell holds a number, optionally followed by a
// short unit ("10.5", "1,200", "2.1 Mt").
func IsNumeric(s string) bool {
	return numberRe.MatchString(strings.TrimSpace(s))
}

// IsPlaceholder reports whether a cell is an explicit "no value" marker.
func IsPlaceholder(s string) bool {
	return placeholders[strings.ToLower(strings.TrimSpace(s))]
}

type cell struct {
	text       string
	start, end int
}

type line struct {
	raw   string
	cells []cell
	sep   bool
}

func (l line) blank() bool {
	return strings.TrimSpace(l.raw) == ""
}

func (l line) filled() []cell {
	out := make([]cell, 0, len(l.cells))
	for _, c := range l.cells {
		if c.text != "" {
			out = append(out, c)
		}
	}
	return out
}

func (l line) collapsed() string {
	return strings.Join(strings.Fields(l.raw), " ")
}

func parseLine(raw string) line {
	raw = strings.ReplaceAll(raw, "\u00a0", " ")
	trimmed := strings.TrimSpace(raw)
	l := line{raw: raw}
	if trimmed == "" {
		return l
	}
	if isSeparator(trimmed) {
		l.sep = true
		return l
	}
	if strings.HasPrefix(trimmed, "|") {
		parts := strings.Split(strings.Trim(trimmed, "|"), "|")
		for i, p := range parts {
			l.cells = append(l.cells, cell{text: cleanCell(p), start: i, end: i + 1})
		}
		return l
	}

	prev := 0
	add := func(from, to int) {
		seg := raw[from:to]
		text := cleanCell(seg)
		if text == "" {
			return
		}
		lead := len(seg) - len(strings.TrimLeft(seg, " \t"))
		start := utf8.RuneCountInString(raw[:from+lead])
		l.cells = append(l.cells, cell{text: text, start: start, end: start + utf8.RuneCountInString(strings.TrimSpace(seg))})
	}
	for _, loc := range gapRe.FindAllStringIndex(raw, -1) {
		add(prev, loc[0])
		prev = loc[1]
	}
	add(prev, len(raw))
	return l
}

// cleanCell strips padding and markdown emphasis or footnote asterisks.
func cleanCell(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "*_"))
}

func isSeparator(s string) bool {
	if !strings.Contains(s, "---") {
		return false
	}
	return strings.Trim(s, "|-: ") == ""
}

type column struct {
	header     string
	start, end int
}

type table struct {
	header   int
	caption  int
	label    *column
	cols     []column
	labels   []string
	grid     [][]string
	lines    []int
	pending  []int
	dataRows int
}

// column returns the index of the column a cell sits under, or -1 for the
// row-label column.
func (t *table) column(c cell) int {
	best, bestDist, bestOverlap := 0, math.MaxInt, -1
	consider := func(idx int, col column) {
		dist := max(0, max(c.start, col.start)-min(c.end, col.end))
		overlap := min(c.end, col.end) - max(c.start, col.start)
		if dist < bestDist || (dist == bestDist && overlap > bestOverlap) {
			best, bestDist, bestOverlap = idx, dist, overlap
		}
	}
	if t.label != nil {
		consider(-1, *t.label)
	}
	for i, col := range t.cols {
		consider(i, col)
	}
	return best
}

func (t *table) assign(cells []cell) (string, []string) {
	var label string
	grid := make([]string, len(t.cols))
	first := true
	for _, c := range cells {
		if c.text == "" {
			continue
		}
		if first && t.label == nil && !IsNumeric(c.text) && !IsPlaceholder(c.text) {
			label = c.text
			first = false
			continue
		}
		first = false
		if idx := t.column(c); idx < 0 {
			label = joinText(label, c.text)
		} else {
			grid[idx] = joinText(grid[idx], c.text)
		}
	}
	return label, grid
}

func joinText(a, b string) string {
	if a == "" {
		return b
	}
	return a + " " + b
}

type positioned struct {
	at   int
	frag model.RawTableFragment
}

type pageParser struct {
	v          *vocab.Vocabulary
	companyID  string
	documentID string
	page       int
	lines      []line
	used       []bool
	frags      []positioned
}

// ParsePage finds the candidate fragments on one page of text. It is a pure
// function of its inputs.
func ParsePage(v *vocab.Vocabulary, companyID, documentID string, page int, text string) []model.RawTableFragment {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	p := &pageParser{
		v:          v,
		companyID:  companyID,
		documentID: documentID,
		page:       page,
		lines:      make([]line, len(raw)),
		used:       make([]bool, len(raw)),
	}
	for i, r := range raw {
		p.lines[i] = parseLine(r)
	}

	p.tables()
	p.inline()
	if len(p.frags) == 0 {
		p.prose()
	}

	sort.SliceStable(p.frags, func(i, j int) bool { return p.frags[i].at < p.frags[j].at })
	out := make([]model.RawTableFragment, len(p.frags))
	for i, f := range p.frags {
		out[i] = f.frag
	}
	return out
}

func (p *pageParser) fragment(kind model.FragmentKind) model.RawTableFragment {
	return model.RawTableFragment{
		CompanyID:  p.companyID,
		DocumentID: p.documentID,
		PageNumber: p.page,
		Kind:       kind,
	}
}

func (p *pageParser) isHeader(l line) bool {
	filled := l.filled()
	if len(filled) < 2 {
		return false
	}
	score := 0
	for _, c := range filled {
		if IsNumeric(c.text) {
			return false
		}
		if p.v.ClassifyHeader(c.text).Field != vocab.FieldNone {
			score++
			continue
		}
		if _, ok := p.v.Category(c.text); ok {
			score++
		}
	}
	return score >= 2
}

func (p *pageParser) isDataRow(l line) bool {
	filled := l.filled()
	if len(filled) < 2 {
		return false
	}
	numeric, values := 0, 0
	for _, c := range filled {
		switch {
		case IsNumeric(c.text):
			numeric++
			values++
		case IsPlaceholder(c.text):
			numeric++
		}
	}
	return values > 0 && numeric*2 >= len(filled)
}

func (p *pageParser) isSectionLine(l line) bool {
	filled := l.filled()
	if len(filled) != 1 {
		return false
	}
	text := filled[0].text
	if IsNumeric(text) || utf8.RuneCountInString(text) > maxSectionLen || strings.HasSuffix(text, ".") {
		return false
	}
	return !inlineRe.MatchString(l.collapsed())
}

func (p *pageParser) isUnitLine(l line) bool {
	filled := l.filled()
	if len(filled) == 0 {
		return false
	}
	for _, c := range filled {
		if IsNumeric(c.text) {
			return false
		}
		if strings.HasPrefix(c.text, "(") && strings.HasSuffix(c.text, ")") {
			continue
		}
		if _, ok := p.v.TonnageUnit(c.text); ok {
			continue
		}
		if _, ok := p.v.GradeUnit(c.text); ok {
			continue
		}
		if _, ok := p.v.MetalUnit(c.text); ok {
			continue
		}
		return false
	}
	return true
}

func (p *pageParser) nextNonBlank(from int) int {
	for i := from; i < len(p.lines); i++ {
		if !p.lines[i].blank() {
			return i
		}
	}
	return -1
}

// captionFor returns the index of the free line just above a block, or -1.
func (p *pageParser) captionFor(start int) int {
	for i := start - 1; i >= 0 && i >= start-captionReach; i-- {
		l := p.lines[i]
		if l.blank() {
			continue
		}
		if p.used[i] || l.sep || p.isDataRow(l) || p.isHeader(l) {
			return -1
		}
		return i
	}
	return -1
}

func (p *pageParser) tables() {
	var t *table
	flush := func() {
		if t != nil {
			p.emitTable(t)
			t = nil
		}
	}

	for i := 0; i < len(p.lines); i++ {
		l := p.lines[i]
		if l.blank() || l.sep {
			continue
		}
		if p.isHeader(l) {
			flush()
			t = p.openTable(i)
			if j := p.nextNonBlank(i + 1); j >= 0 && p.isUnitLine(p.lines[j]) {
				t.mergeUnits(p.lines[j])
				t.lines = append(t.lines, j)
				i = j
			}
			continue
		}
		if t == nil {
			continue
		}
		if p.isDataRow(l) {
			if len(t.pending) == 1 && p.isSectionLine(p.lines[t.pending[0]]) {
				j := t.pending[0]
				t.labels = append(t.labels, p.lines[j].filled()[0].text)
				t.grid = append(t.grid, make([]string, len(t.cols)))
				t.lines = append(t.lines, j)
			}
			t.pending = nil
			label, row := t.assign(l.cells)
			t.labels = append(t.labels, label)
			t.grid = append(t.grid, row)
			t.lines = append(t.lines, i)
			t.dataRows++
			continue
		}
		t.pending = append(t.pending, i)
		if len(t.pending) >= closeAfter {
			flush()
		}
	}
	flush()
}

func (p *pageParser) openTable(i int) *table {
	t := &table{header: i, caption: p.captionFor(i), lines: []int{i}}
	cells := p.lines[i].cells
	first := cells[0]
	switch p.v.ClassifyHeader(first.text).Field {
	case vocab.FieldTonnage, vocab.FieldGrade, vocab.FieldMetal:
	default:
		t.label = &column{header: first.text, start: first.start, end: first.end}
		cells = cells[1:]
	}
	for _, c := range cells {
		t.cols = append(t.cols, column{header: c.text, start: c.start, end: c.end})
	}
	return t
}

func (t *table) mergeUnits(l line) {
	for _, c := range l.filled() {
		idx := t.column(c)
		if idx < 0 {
			t.label.header = joinText(t.label.header, c.text)
			continue
		}
		t.cols[idx].header = joinText(t.cols[idx].header, c.text)
	}
}

func (p *pageParser) emitTable(t *table) {
	if t.dataRows == 0 || len(t.cols) == 0 {
		return
	}
	f := p.fragment(model.FragmentTable)
	first := t.header
	if t.caption >= 0 {
		f.Caption = p.lines[t.caption].collapsed()
		first = t.caption
		p.used[t.caption] = true
	}
	if t.label != nil {
		f.LabelHeader = t.label.header
	}
	for _, c := range t.cols {
		f.ColumnHeaders = append(f.ColumnHeaders, c.header)
	}
	f.RowLabels = t.labels
	f.Grid = t.grid

	last := first
	for _, i := range t.lines {
		p.used[i] = true
		last = max(last, i)
	}
	f.Text = p.joinLines(first, last)
	p.frags = append(p.frags, positioned{at: first, frag: f})
}

func (p *pageParser) joinLines(from, to int) string {
	var parts []string
	for i := from; i <= to; i++ {
		if s := strings.TrimRight(p.lines[i].raw, " \t"); strings.TrimSpace(s) != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

// inline groups consecutive "<label>: <tonnes> @ <grade>" statements.
func (p *pageParser) inline() {
	var (
		block   []int
		matches [][]string
	)
	flush := func() {
		if len(block) == 0 {
			return
		}
		f := p.fragment(model.FragmentInline)
		first := block[0]
		if c := p.captionFor(block[0]); c >= 0 {
			f.Caption = p.lines[c].collapsed()
			first = c
			p.used[c] = true
		}
		f.LabelHeader = "Category"
		f.ColumnHeaders = []string{"Tonnage", "Grade"}
		for k, m := range matches {
			grade := m[4] + " " + m[5]
			if toks := vocab.Tokens(m[6]); len(toks) > 0 {
				if _, ok := p.v.Commodity(toks[0]); ok {
					grade += " " + toks[0]
				}
			}
			f.RowLabels = append(f.RowLabels, strings.TrimSpace(m[1]))
			f.Grid = append(f.Grid, []string{m[2] + " " + m[3], grade})
			p.used[block[k]] = true
		}
		f.Text = p.joinLines(first, block[len(block)-1])
		p.frags = append(p.frags, positioned{at: first, frag: f})
		block, matches = nil, nil
	}

	for i, l := range p.lines {
		if p.used[i] {
			flush()
			continue
		}
		if l.blank() {
			continue
		}
		m := inlineRe.FindStringSubmatch(l.collapsed())
		if m == nil {
			flush()
			continue
		}
		block = append(block, i)
		matches = append(matches, m)
	}
	flush()
}

// prose emits paragraphs that mention a resource category and a number.
func (p *pageParser) prose() {
	var para []int
	flush := func() {
		if len(para) == 0 {
			return
		}
		var parts []string
		for _, i := range para {
			parts = append(parts, p.lines[i].collapsed())
		}
		text := strings.Join(parts, "\n")
		if p.v.MentionsCategory(text) && strings.ContainsAny(text, "0123456789") {
			f := p.fragment(model.FragmentText)
			f.Text = text
			p.frags = append(p.frags, positioned{at: para[0], frag: f})
		}
		para = nil
	}

	for i, l := range p.lines {
		if p.used[i] || l.blank() || l.sep {
			flush()
			continue
		}
		para = append(para, i)
	}
	flush()
}
