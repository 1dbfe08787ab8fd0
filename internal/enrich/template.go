package enrich

import (
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mre-cli/internal/model"
)

// Template placeholders.
const (
	PlaceholderCompany  = "{{COMPANY}}"
	PlaceholderDocument = "{{DOCUMENT}}"
	PlaceholderPage     = "{{PAGE}}"
	PlaceholderFragment = "{{FRAGMENT}}"
)

// DefaultTemplate is used when no prompt file is configured.
const DefaultTemplate = `The text below was taken from page {{PAGE}} of ASX announcement {{DOCUMENT}} by {{COMPANY}}.
It may contain a JORC Mineral Resource Estimate that could not be read as a table.

For every resource line you can find, answer with one block:

RECORD
deposit: <deposit or project name>
category: <Measured, Indicated, Measured & Indicated or Inferred>
tonnage: <number> <unit, e.g. Mt, kt, t>
grade: <number> <unit, e.g. g/t, %, ppm>
commodity: <gold or other>
END

Skip totals and sub-totals. If the text holds no resource figures, answer with the single line NONE.
Do not add any other text.

---
{{FRAGMENT}}
---
`

// Template is a prompt with placeholder markers.
type Template struct {
	text string
}

// NewTemplate validates text as a prompt template.
func NewTemplate(text string) (*Template, error) {
	if !strings.Contains(text, PlaceholderFragment) {
		return nil, eris.Errorf("enrich: template has no %s placeholder", PlaceholderFragment)
	}
	return &Template{text: text}, nil
}

// LoadTemplate reads a template file. An empty path yields DefaultTemplate.
func LoadTemplate(path string) (*Template, error) {
	if path == "" {
		return NewTemplate(DefaultTemplate)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: read template %s", path)
	}
	t, err := NewTemplate(string(data))
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: template %s", path)
	}
	return t, nil
}

// Render substitutes the fragment into the template.
func (t *Template) Render(f model.RawTableFragment) string {
	r := strings.NewReplacer(
		PlaceholderCompany, f.CompanyID,
		PlaceholderDocument, f.DocumentID,
		PlaceholderPage, strconv.Itoa(f.PageNumber),
		PlaceholderFragment, fragmentText(f),
	)
	return r.Replace(t.text)
}

// fragmentText prefers the source text; a grid-only fragment is rendered
// as pipe-separated rows.
func fragmentText(f model.RawTableFragment) string {
	if strings.TrimSpace(f.Text) != "" {
		return strings.TrimSpace(f.Text)
	}
	var b strings.Builder
	if f.Caption != "" {
		b.WriteString(f.Caption)
		b.WriteByte('\n')
	}
	if len(f.ColumnHeaders) > 0 {
		b.WriteString(f.LabelHeader + " | " + strings.Join(f.ColumnHeaders, " | "))
		b.WriteByte('\n')
	}
	for i, row := range f.Grid {
		label := ""
		if i < len(f.RowLabels) {
			label = f.RowLabels[i]
		}
		b.WriteString(label + " | " + strings.Join(row, " | "))
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}
