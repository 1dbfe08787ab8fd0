package enrich

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mre-cli/internal/model"
	"github.com/sells-group/mre-cli/internal/normalize"
	"github.com/sells-group/mre-cli/internal/vocab"
)

// Response keys. The first four are required in every block.
const (
	keyDeposit   = "deposit"
	keyCategory  = "category"
	keyTonnage   = "tonnage"
	keyGrade     = "grade"
	keyCommodity = "commodity"
)

var (
	requiredKeys = []string{keyDeposit, keyCategory, keyTonnage, keyGrade}
	knownKeys    = map[string]bool{keyDeposit: true, keyCategory: true, keyTonnage: true, keyGrade: true, keyCommodity: true}

	amountRe = regexp.MustCompile(`^(\d[\d,]*(?:\.\d+)?|\.\d+)\s*(.*)$`)
)

// Parser turns a model response into records. It accepts only the block
// grammar of DefaultTemplate and rejects the whole response otherwise.
type Parser struct {
	vocab            *vocab.Vocabulary
	defaultCommodity model.Commodity
}

// NewParser creates a Parser.
func NewParser(v *vocab.Vocabulary, defaultCommodity model.Commodity) *Parser {
	if defaultCommodity == "" {
		defaultCommodity = model.CommodityGold
	}
	return &Parser{vocab: v, defaultCommodity: defaultCommodity}
}

// Parse validates text and builds one llm-sourced record per block. The
// NONE answer yields no records and no error.
func (p *Parser) Parse(text string, f model.RawTableFragment) ([]model.MRERecord, error) {
	lines := stripFence(strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n"))

	var (
		records []model.MRERecord
		block   map[string]string
		none    bool
		sawAny  bool
	)
	for n, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		sawAny = true
		switch {
		case block == nil && line == "NONE":
			if none || len(records) > 0 {
				return nil, eris.Errorf("enrich: line %d: NONE mixed with records", n+1)
			}
			none = true
		case block == nil && line == "RECORD":
			if none {
				return nil, eris.Errorf("enrich: line %d: NONE mixed with records", n+1)
			}
			block = make(map[string]string)
		case block == nil:
			return nil, eris.Errorf("enrich: line %d: unexpected text outside a record: %q", n+1, line)
		case line == "END":
			rec, err := p.record(block, f)
			if err != nil {
				return nil, eris.Wrapf(err, "enrich: record ending line %d", n+1)
			}
			records = append(records, rec)
			block = nil
		default:
			key, value, ok := strings.Cut(line, ":")
			if !ok {
				return nil, eris.Errorf("enrich: line %d: expected key: value, got %q", n+1, line)
			}
			key = strings.ToLower(strings.TrimSpace(key))
			if !knownKeys[key] {
				return nil, eris.Errorf("enrich: line %d: unknown key %q", n+1, key)
			}
			if _, dup := block[key]; dup {
				return nil, eris.Errorf("enrich: line %d: duplicate key %q", n+1, key)
			}
			block[key] = strings.TrimSpace(value)
		}
	}

	switch {
	case block != nil:
		return nil, eris.New("enrich: unterminated record")
	case !sawAny:
		return nil, eris.New("enrich: empty response")
	}
	return records, nil
}

func (p *Parser) record(block map[string]string, f model.RawTableFragment) (model.MRERecord, error) {
	for _, k := range requiredKeys {
		if block[k] == "" {
			return model.MRERecord{}, eris.Errorf("missing %s", k)
		}
	}

	category, ok := p.vocab.Category(block[keyCategory])
	if !ok {
		return model.MRERecord{}, eris.Errorf("unmapped category %q", block[keyCategory])
	}
	tonnage, _, err := amount(block[keyTonnage], p.vocab.TonnageUnit)
	if err != nil {
		return model.MRERecord{}, eris.Wrap(err, keyTonnage)
	}
	grade, gradeUnit, err := amount(block[keyGrade], p.vocab.GradeUnit)
	if err != nil {
		return model.MRERecord{}, eris.Wrap(err, keyGrade)
	}

	commodity := p.defaultCommodity
	if c, ok := p.vocab.Commodity(gradeUnit); ok {
		commodity = c
	}
	if s := block[keyCommodity]; s != "" {
		c, ok := model.ParseCommodity(strings.ToLower(s))
		if !ok {
			return model.MRERecord{}, eris.Errorf("unknown commodity %q", s)
		}
		commodity = c
	}

	return normalize.BuildRecord(f.CompanyID, block[keyDeposit], category, tonnage, grade,
		commodity, model.SourceLLM, f.DocumentID, f.PageNumber), nil
}

// amount parses "<number> <unit>" and converts it to the canonical unit.
func amount(s string, lookup func(string) (vocab.Unit, bool)) (float64, string, error) {
	m := amountRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, "", eris.Errorf("not a non-negative number: %q", s)
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, "", eris.Wrapf(err, "parse %q", m[1])
	}
	unitText := strings.TrimSpace(m[2])
	if unitText == "" {
		return 0, "", eris.Errorf("no unit in %q", s)
	}
	unit, ok := lookup(unitText)
	if !ok {
		return 0, "", eris.Errorf("unrecognised unit %q", unitText)
	}
	return v * unit.Factor, unitText, nil
}

// stripFence drops a surrounding ``` code fence.
func stripFence(lines []string) []string {
	first, last := 0, len(lines)-1
	for first <= last && strings.TrimSpace(lines[first]) == "" {
		first++
	}
	for last >= first && strings.TrimSpace(lines[last]) == "" {
		last--
	}
	if first > last {
		return nil
	}
	if strings.HasPrefix(strings.TrimSpace(lines[first]), "```") {
		first++
		if last >= first && strings.TrimSpace(lines[last]) == "```" {
			last--
		}
	}
	return lines[first : last+1]
}
