// Package normalize maps raw table fragments onto MRE records.
package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/mre-cli/internal/extract"
	"github.com/sells-group/mre-cli/internal/model"
	"github.com/sells-group/mre-cli/internal/vocab"
)

// Options are the fixed settings of a Normalizer.
type Options struct {
	// DefaultCommodity applies when neither headers, cells nor caption name one.
	DefaultCommodity model.Commodity
	// FallbackDeposit names rows whose deposit cannot be determined.
	FallbackDeposit string
	// MetalTolerance is the relative difference between reported and computed
	// contained gold above which a warning is logged. Zero disables the check.
	MetalTolerance float64
}

// DefaultOptions returns the built-in options.
func DefaultOptions() Options {
	return Options{
		DefaultCommodity: model.CommodityGold,
		FallbackDeposit:  "Unspecified",
		MetalTolerance:   0.05,
	}
}

// Normalizer turns fragments into records. It holds no mutable state and is
// safe for concurrent use.
type Normalizer struct {
	vocab *vocab.Vocabulary
	opts  Options
}

// New creates a Normalizer.
func New(v *vocab.Vocabulary, opts Options) *Normalizer {
	if opts.DefaultCommodity == "" {
		opts.DefaultCommodity = model.CommodityGold
	}
	if opts.FallbackDeposit == "" {
		opts.FallbackDeposit = "Unspecified"
	}
	return &Normalizer{vocab: v, opts: opts}
}

// Result is the outcome of normalizing one fragment. Unmapped fragments have
// no usable structure and are candidates for enrichment; their rows carry no
// outcomes.
type Result struct {
	Outcomes []model.Outcome
	Unmapped bool
	Reason   string
}

// Records returns the produced records in row order.
func (r Result) Records() []model.MRERecord {
	var out []model.MRERecord
	for _, o := range r.Outcomes {
		if o.OK() {
			out = append(out, *o.Record)
		}
	}
	return out
}

// Skips returns the skipped rows in row order.
func (r Result) Skips() []model.Skip {
	var out []model.Skip
	for _, o := range r.Outcomes {
		if o.Skip != nil {
			out = append(out, *o.Skip)
		}
	}
	return out
}

type layout struct {
	tonnage, grade, metal, category, deposit int
	cols                                     []vocab.Column
	labelsAreDeposits                        bool
}

func (n *Normalizer) layout(f model.RawTableFragment) (layout, string) {
	l := layout{tonnage: -1, grade: -1, metal: -1, category: -1, deposit: -1}
	for i, h := range f.ColumnHeaders {
		col := n.vocab.ClassifyHeader(h)
		l.cols = append(l.cols, col)
		var slot *int
		switch col.Field {
		case vocab.FieldTonnage:
			slot = &l.tonnage
		case vocab.FieldGrade:
			slot = &l.grade
		case vocab.FieldMetal:
			slot = &l.metal
		case vocab.FieldCategory:
			slot = &l.category
		case vocab.FieldDeposit:
			slot = &l.deposit
		default:
			continue
		}
		if *slot < 0 {
			*slot = i
		}
	}

	if l.tonnage < 0 || l.grade < 0 {
		return l, "no tonnage and grade columns"
	}
	if l.category >= 0 {
		l.labelsAreDeposits = true
		return l, ""
	}
	if n.vocab.ClassifyHeader(f.LabelHeader).Field == vocab.FieldDeposit {
		return l, "no category column"
	}
	return l, ""
}

// Normalize maps every row of a fragment to an outcome.
func (n *Normalizer) Normalize(f model.RawTableFragment) Result {
	if f.Kind == model.FragmentText || !f.HasGrid() {
		return Result{Unmapped: true, Reason: "no table structure"}
	}
	l, reason := n.layout(f)
	if reason != "" {
		return Result{Unmapped: true, Reason: reason}
	}

	commodity := n.fragmentCommodity(f, l)
	captionDeposit := n.captionDeposit(f.Caption)

	var (
		res     Result
		section string
		carried string
	)
	for i := range f.Grid {
		label := clean(rowLabel(f, i))

		if f.IsSectionRow(i) {
			if label == "" || n.vocab.Ignored(label) {
				continue
			}
			if _, ok := n.vocab.Category(label); ok {
				continue
			}
			section, carried = label, ""
			continue
		}

		skip := func(kind model.SkipKind, format string, args ...any) {
			res.Outcomes = append(res.Outcomes, model.Skipped(model.Skip{
				Kind:       kind,
				Detail:     fmt.Sprintf(format, args...),
				CompanyID:  f.CompanyID,
				DocumentID: f.DocumentID,
				PageNumber: f.PageNumber,
				Row:        i,
			}))
		}

		var catText string
		if l.labelsAreDeposits {
			if label != "" && !n.vocab.Ignored(label) {
				carried = label
			}
			catText = clean(f.Cell(i, l.category))
		} else {
			catText = label
			if l.deposit >= 0 {
				if d := clean(f.Cell(i, l.deposit)); d != "" {
					carried = d
				}
			}
		}

		if n.vocab.Ignored(label) || n.vocab.Ignored(catText) {
			skip(model.SkipIgnored, "total row %q", firstNonEmpty(label, catText))
			continue
		}
		category, ok := n.vocab.Category(catText)
		if !ok {
			skip(model.SkipUnmappedLabel, "unmapped category label %q", catText)
			continue
		}

		tonnage, _, err := n.quantity(f.Cell(i, l.tonnage), l.cols[l.tonnage], n.vocab.TonnageUnit)
		if err != nil {
			skip(err.kind, "tonnage: %s", err.detail)
			continue
		}
		grade, gradeUnit, err := n.quantity(f.Cell(i, l.grade), l.cols[l.grade], n.vocab.GradeUnit)
		if err != nil {
			skip(err.kind, "grade: %s", err.detail)
			continue
		}

		rowCommodity := commodity
		if c, ok := n.vocab.Commodity(gradeUnit); ok {
			rowCommodity = c
		}

		deposit := firstNonEmpty(carried, section, captionDeposit, n.opts.FallbackDeposit)
		rec := BuildRecord(f.CompanyID, deposit, category, tonnage, grade, rowCommodity, model.SourceParsed, f.DocumentID, f.PageNumber)
		if l.metal >= 0 {
			n.crossCheck(rec, f.Cell(i, l.metal), l.cols[l.metal])
		}
		res.Outcomes = append(res.Outcomes, model.Produced(rec))
	}
	return res
}

func rowLabel(f model.RawTableFragment, i int) string {
	if i < len(f.RowLabels) {
		return f.RowLabels[i]
	}
	return ""
}

// BuildRecord assembles a record, deriving contained metal from tonnage (t)
// and grade (g/t).
func BuildRecord(companyID, deposit string, category model.Category, tonnage, grade float64, commodity model.Commodity, source model.Source, documentID string, page int) model.MRERecord {
	return model.MRERecord{
		CompanyID:      companyID,
		DepositName:    clean(deposit),
		Category:       category,
		Tonnage:        tonnage,
		Grade:          grade,
		ContainedMetal: model.ContainedMetal(tonnage, grade, commodity),
		Commodity:      commodity,
		Source:         source,
		DocumentID:     documentID,
		PageNumber:     page,
	}
}

func (n *Normalizer) fragmentCommodity(f model.RawTableFragment, l layout) model.Commodity {
	for _, idx := range []int{l.grade, l.metal, l.tonnage} {
		if idx >= 0 && l.cols[idx].Commodity != "" {
			return l.cols[idx].Commodity
		}
	}
	if c, ok := n.vocab.Commodity(f.Caption); ok {
		return c
	}
	return n.opts.DefaultCommodity
}

// crossCheck compares reported contained gold with the derived value. The
// record always keeps the derived value.
func (n *Normalizer) crossCheck(rec model.MRERecord, cell string, col vocab.Column) {
	if n.opts.MetalTolerance <= 0 || rec.Commodity != model.CommodityGold || rec.ContainedMetal == 0 {
		return
	}
	reported, _, err := n.quantity(cell, col, n.vocab.MetalUnit)
	if err != nil {
		return
	}
	if diff := math.Abs(reported-rec.ContainedMetal) / rec.ContainedMetal; diff > n.opts.MetalTolerance {
		zap.L().Warn("normalize: reported contained metal disagrees with tonnage x grade",
			zap.String("company", rec.CompanyID),
			zap.String("document", rec.DocumentID),
			zap.Int("page", rec.PageNumber),
			zap.String("key", rec.Key().String()),
			zap.Float64("reported_koz", reported),
			zap.Float64("computed_koz", rec.ContainedMetal),
		)
	}
}

type quantityError struct {
	kind   model.SkipKind
	detail string
}

var quantityRe = regexp.MustCompile(`^\(?([-−–]?\d[\d,]*(?:\.\d+)?)\)?\s*(.*)$`)

// quantity parses a cell into canonical units. A unit in the cell overrides
// the column header's unit. It returns the unit text found in the cell.
func (n *Normalizer) quantity(cell string, col vocab.Column, lookup func(string) (vocab.Unit, bool)) (float64, string, *quantityError) {
	cell = strings.TrimSpace(cell)
	if cell == "" || extract.IsPlaceholder(cell) {
		return 0, "", &quantityError{model.SkipInvalidValue, "no value"}
	}
	m := quantityRe.FindStringSubmatch(strings.TrimLeft(cell, "<>~≈ "))
	if m == nil {
		return 0, "", &quantityError{model.SkipInvalidValue, fmt.Sprintf("not a number %q", cell)}
	}
	num := strings.NewReplacer(",", "", "−", "-", "–", "-").Replace(m[1])
	v, err := strconv.ParseFloat(num, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, "", &quantityError{model.SkipInvalidValue, fmt.Sprintf("not a number %q", cell)}
	}
	if v < 0 {
		return 0, "", &quantityError{model.SkipInvalidValue, fmt.Sprintf("negative value %q", cell)}
	}

	unitText := strings.TrimSpace(m[2])
	switch {
	case unitText != "":
		u, ok := lookup(unitText)
		if !ok {
			return 0, unitText, &quantityError{model.SkipUnit, fmt.Sprintf("unrecognised unit %q", unitText)}
		}
		return v * u.Factor, unitText, nil
	case col.Unit != nil:
		return v * col.Unit.Factor, "", nil
	case col.UnitText != "":
		return 0, "", &quantityError{model.SkipUnit, fmt.Sprintf("unrecognised unit %q in header %q", col.UnitText, col.Header)}
	default:
		return 0, "", &quantityError{model.SkipUnit, fmt.Sprintf("no unit in header %q", col.Header)}
	}
}

var (
	captionPrefixRe = regexp.MustCompile(`(?i)^(?:table|figure|appendix)\s*[\w.]*\s*[:.\-–—]\s*`)
	captionMarkerRe = regexp.MustCompile(`(?i)\b(?:mineral\s+resources?|ore\s+reserves?|resources?|mre|jorc)\b`)
	captionStop     = map[string]bool{
		"updated": true, "maiden": true, "global": true, "total": true, "group": true,
		"company": true, "the": true, "project": true, "and": true, "estimate": true,
	}
)

// captionDeposit takes the deposit name from a caption such as
// "Table 1: Mt Morgans Gold Project Mineral Resource Estimate".
func (n *Normalizer) captionDeposit(caption string) string {
	loc := captionMarkerRe.FindStringIndex(caption)
	if loc == nil {
		return ""
	}
	name := captionPrefixRe.ReplaceAllString(strings.TrimSpace(caption[:loc[0]]), "")
	name = strings.Trim(name, " -–—:,.")
	if name == "" || len(name) > 60 {
		return ""
	}
	if _, ok := n.vocab.Category(name); ok {
		return ""
	}
	for _, tok := range vocab.Tokens(name) {
		if captionStop[tok] {
			continue
		}
		if _, ok := n.vocab.Commodity(tok); ok {
			continue
		}
		return clean(name)
	}
	return ""
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
