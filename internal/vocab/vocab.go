// Package vocab holds the synonym, unit and commodity dictionaries used to
// recognise Mineral Resource tables. A Vocabulary is immutable once built and
// is passed explicitly to the extractor and normalizer.
package vocab

import (
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/mre-cli/internal/model"
)

// Field is the role a table column plays.
type Field string

const (
	FieldNone     Field = ""
	FieldDeposit  Field = "deposit"
	FieldCategory Field = "category"
	FieldTonnage  Field = "tonnage"
	FieldGrade    Field = "grade"
	FieldMetal    Field = "metal"
)

// File is the YAML shape of a vocabulary.
type File struct {
	Categories  map[string][]string `yaml:"categories"`
	IgnoreRows  []string            `yaml:"ignore_rows"`
	Columns     map[string][]string `yaml:"columns"`
	Units       UnitTables          `yaml:"units"`
	Commodities map[string][]string `yaml:"commodities"`
}

// UnitTables maps unit strings to the factor converting them to the
// canonical unit of their kind.
type UnitTables struct {
	Tonnage map[string]float64 `yaml:"tonnage"`
	Grade   map[string]float64 `yaml:"grade"`
	Metal   map[string]float64 `yaml:"metal"`
}

// Unit is a recognised unit string and its conversion factor.
type Unit struct {
	Name   string
	Factor float64
}

// Column is the classification of one column header.
type Column struct {
	Header    string
	Field     Field
	Unit      *Unit
	UnitText  string // unit text present in the header but not recognised
	Commodity model.Commodity
}

// Vocabulary is the compiled, read-only form of a File.
type Vocabulary struct {
	file        File
	categories  map[string]model.Category
	ignore      []string
	columns     map[Field][]string
	tonnage     map[string]float64
	grade       map[string]float64
	metal       map[string]float64
	commodities map[string]model.Commodity
}

var (
	tokenRe = regexp.MustCompile(`[\p{L}\p{N}%/'&+.]+`)
	parenRe = regexp.MustCompile(`[(\[]([^)\]]*)[)\]]`)
	dashes  = strings.NewReplacer("‐", "-", "‑", "-", "‒", "-", "–", "-", "—", "-", "−", "-", "’", "'", "‘", "'", "`", "'")
)

// Default returns the built-in vocabulary.
func Default() *Vocabulary {
	v, err := New(DefaultFile())
	if err != nil {
		panic(err)
	}
	return v
}

// Load reads a vocabulary YAML file. Sections missing from the file fall back
// to the built-in defaults.
func Load(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "vocab: read %s", path)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "vocab: parse %s", path)
	}

	def := DefaultFile()
	if len(f.Categories) == 0 {
		f.Categories = def.Categories
	}
	if len(f.IgnoreRows) == 0 {
		f.IgnoreRows = def.IgnoreRows
	}
	if len(f.Columns) == 0 {
		f.Columns = def.Columns
	}
	if len(f.Units.Tonnage) == 0 {
		f.Units.Tonnage = def.Units.Tonnage
	}
	if len(f.Units.Grade) == 0 {
		f.Units.Grade = def.Units.Grade
	}
	if len(f.Units.Metal) == 0 {
		f.Units.Metal = def.Units.Metal
	}
	if len(f.Commodities) == 0 {
		f.Commodities = def.Commodities
	}
	return New(f)
}

// New compiles a File into a Vocabulary.
func New(f File) (*Vocabulary, error) {
	v := &Vocabulary{
		file:        f,
		categories:  make(map[string]model.Category),
		columns:     make(map[Field][]string),
		tonnage:     make(map[string]float64),
		grade:       make(map[string]float64),
		metal:       make(map[string]float64),
		commodities: make(map[string]model.Commodity),
	}

	for name, synonyms := range f.Categories {
		cat, ok := parseCategory(name)
		if !ok {
			return nil, eris.Errorf("vocab: unknown category %q", name)
		}
		v.categories[Fold(name)] = cat
		for _, s := range synonyms {
			v.categories[Fold(s)] = cat
		}
	}

	for _, s := range f.IgnoreRows {
		v.ignore = append(v.ignore, Fold(s))
	}

	for name, synonyms := range f.Columns {
		field := Field(name)
		switch field {
		case FieldDeposit, FieldCategory, FieldTonnage, FieldGrade, FieldMetal:
		default:
			return nil, eris.Errorf("vocab: unknown column field %q", name)
		}
		for _, s := range synonyms {
			v.columns[field] = append(v.columns[field], Fold(s))
		}
	}

	for _, t := range []struct {
		kind string
		src  map[string]float64
		dst  map[string]float64
	}{
		{"tonnage", f.Units.Tonnage, v.tonnage},
		{"grade", f.Units.Grade, v.grade},
		{"metal", f.Units.Metal, v.metal},
	} {
		for name, factor := range t.src {
			if factor <= 0 {
				return nil, eris.Errorf("vocab: %s unit %q has non-positive factor %v", t.kind, name, factor)
			}
			t.dst[strings.ReplaceAll(Fold(name), " ", "")] = factor
		}
	}

	for name, tokens := range f.Commodities {
		c, ok := model.ParseCommodity(name)
		if !ok {
			return nil, eris.Errorf("vocab: unknown commodity %q", name)
		}
		for _, tok := range tokens {
			v.commodities[Fold(tok)] = c
		}
	}

	return v, nil
}

func parseCategory(name string) (model.Category, bool) {
	for _, c := range model.Categories {
		if string(c) == name {
			return c, true
		}
	}
	return "", false
}

// File returns the vocabulary's source definition.
func (v *Vocabulary) File() File {
	return v.file
}

// Fold canonicalises text for dictionary lookups: NFKC, case folding,
// ASCII dashes and quotes, single spaces.
func Fold(s string) string {
	s = norm.NFKC.String(s)
	s = dashes.Replace(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// Tokens splits folded text into lookup tokens, dropping trailing periods.
func Tokens(s string) []string {
	raw := tokenRe.FindAllString(Fold(s), -1)
	out := raw[:0]
	for _, t := range raw {
		t = strings.TrimRight(t, ".")
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

var labelSuffixes = []string{"resources", "resource", "mineral", "ore", "material"}

// Category maps a row label to a resource category.
func (v *Vocabulary) Category(label string) (model.Category, bool) {
	s := strings.Trim(Fold(label), " :.-*•·")
	if s == "" {
		return "", false
	}
	if c, ok := v.categories[s]; ok {
		return c, true
	}
	words := strings.Fields(s)
	for len(words) > 1 && contains(labelSuffixes, words[len(words)-1]) {
		words = words[:len(words)-1]
		if c, ok := v.categories[strings.Join(words, " ")]; ok {
			return c, true
		}
	}
	return "", false
}

// Ignored reports whether a row label names a total or subtotal row.
func (v *Vocabulary) Ignored(label string) bool {
	s := strings.Trim(Fold(label), " :.-*")
	for _, ig := range v.ignore {
		if s == ig || strings.HasPrefix(s, ig+" ") {
			return true
		}
	}
	return false
}

// MentionsCategory reports whether text names a resource category.
func (v *Vocabulary) MentionsCategory(text string) bool {
	for _, tok := range Tokens(text) {
		if len(tok) < 4 {
			continue
		}
		if _, ok := v.categories[tok]; ok {
			return true
		}
	}
	return false
}

// ClassifyHeader determines a column's field, unit and commodity.
func (v *Vocabulary) ClassifyHeader(header string) Column {
	col := Column{Header: header}
	folded := Fold(header)
	if folded == "" {
		return col
	}
	tokens := Tokens(folded)
	padded := " " + strings.Join(tokens, " ") + " "

	has := func(field Field) bool {
		for _, syn := range v.columns[field] {
			if strings.Contains(padded, " "+syn+" ") {
				return true
			}
		}
		return false
	}
	hasUnit := func(units map[string]float64) bool {
		for _, t := range tokens {
			if _, ok := units[t]; ok {
				return true
			}
		}
		return false
	}

	switch {
	case has(FieldMetal) || (hasUnit(v.metal) && !hasUnit(v.grade)):
		col.Field = FieldMetal
	case has(FieldGrade) || hasUnit(v.grade):
		col.Field = FieldGrade
	case has(FieldTonnage) || hasUnit(v.tonnage):
		col.Field = FieldTonnage
	case has(FieldCategory):
		col.Field = FieldCategory
	case has(FieldDeposit):
		col.Field = FieldDeposit
	}

	col.Commodity, _ = v.commodityOf(tokens)

	var units map[string]float64
	switch col.Field {
	case FieldTonnage:
		units = v.tonnage
	case FieldGrade:
		units = v.grade
	case FieldMetal:
		units = v.metal
	default:
		return col
	}

	// A bracketed unit is authoritative; otherwise take the last unit token.
	if m := parenRe.FindAllStringSubmatch(folded, -1); len(m) > 0 {
		for _, group := range m {
			for _, t := range Tokens(group[1]) {
				if f, ok := units[t]; ok {
					col.Unit = &Unit{Name: t, Factor: f}
					return col
				}
			}
		}
		for _, group := range m {
			if text := v.unitText(group[1]); text != "" {
				col.UnitText = text
				return col
			}
		}
	}
	for i := len(tokens) - 1; i >= 0; i-- {
		if f, ok := units[tokens[i]]; ok {
			col.Unit = &Unit{Name: tokens[i], Factor: f}
			break
		}
	}
	return col
}

// unitText returns the tokens of a bracketed header segment that are neither
// commodity names nor column keywords.
func (v *Vocabulary) unitText(segment string) string {
	var rest []string
	for _, t := range Tokens(segment) {
		if _, ok := v.commodities[t]; ok {
			continue
		}
		if v.isKeyword(t) {
			continue
		}
		rest = append(rest, t)
	}
	return strings.Join(rest, " ")
}

func (v *Vocabulary) isKeyword(tok string) bool {
	for _, syns := range v.columns {
		if contains(syns, tok) {
			return true
		}
	}
	return false
}

// TonnageUnit resolves a tonnage unit string.
func (v *Vocabulary) TonnageUnit(s string) (Unit, bool) {
	return lookupUnit(v.tonnage, s)
}

// GradeUnit resolves a grade unit string.
func (v *Vocabulary) GradeUnit(s string) (Unit, bool) {
	return lookupUnit(v.grade, s)
}

// MetalUnit resolves a contained-metal unit string.
func (v *Vocabulary) MetalUnit(s string) (Unit, bool) {
	return lookupUnit(v.metal, s)
}

func lookupUnit(units map[string]float64, s string) (Unit, bool) {
	key := strings.ReplaceAll(Fold(s), " ", "")
	if f, ok := units[key]; ok {
		return Unit{Name: key, Factor: f}, true
	}
	// Trailing commodity symbols ("g/t Au") do not change the unit.
	toks := Tokens(s)
	if len(toks) > 0 {
		if f, ok := units[toks[0]]; ok {
			return Unit{Name: toks[0], Factor: f}, true
		}
	}
	return Unit{}, false
}

// Commodity finds the commodity named in text. Gold wins when both appear.
func (v *Vocabulary) Commodity(text string) (model.Commodity, bool) {
	return v.commodityOf(Tokens(text))
}

func (v *Vocabulary) commodityOf(tokens []string) (model.Commodity, bool) {
	var found model.Commodity
	for _, t := range tokens {
		c, ok := v.commodities[t]
		if !ok {
			continue
		}
		if c == model.CommodityGold {
			return c, true
		}
		found = c
	}
	return found, found != ""
}

// CategoryNames returns the known category synonyms sorted, for display.
func (v *Vocabulary) CategoryNames() []string {
	out := make([]string, 0, len(v.categories))
	for k := range v.categories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
