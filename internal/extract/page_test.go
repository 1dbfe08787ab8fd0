package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mre-cli/internal/model"
	"github.com/sells-group/mre-cli/internal/vocab"
)

const layoutTable = `Table 1: Mt Morgans Gold Project Mineral Resource Estimate

Category        Tonnes (Mt)   Grade (g/t Au)   Contained Au (koz)
Measured                2.1              1.5                  101
Indicated              10.5              1.2                  405
Inferred                3.0              1.0                   96
Total                  15.6              1.2                  602

The Mineral Resource is reported above a 0.5 g/t cut-off.`

const sectionTable = `Deposit / Category     Tonnes       Grade      Ounces
                       ('000 t)     (g/t)      (koz)
Boomer
Indicated                 1,200       2.10          81
Inferred                    450       1.80          26
Sunrise
Indicated                   800       1.50          39`

const depositColumnTable = `Deposit        Category       Tonnes (Mt)    Grade (g/t)
Boomer         Indicated              1.2           2.1
               Inferred               0.4           1.8
Sunrise        Inferred               0.8           1.5`

const markdownTable = `Copper Resource
| Category | Tonnes (Mt) | Grade (% Cu) |
|---|---|---|
| Indicated | 4.0 | 1.5 |
| **Inferred** | 2.0 | 0.9 |`

const inlineBlock = `Highlights
Indicated Resources: 10.5 Mt @ 1.2 g/t Au
Inferred Resources: 4.0 Mt at 0.9 g/t Au for 116 koz`

const prosePage = `The updated Indicated Resource now stands at 10.5 million tonnes
grading 1.2 grams per tonne gold.

Drilling continues at the northern extension.`

func parse(text string) []model.RawTableFragment {
	return ParsePage(vocab.Default(), "RMS", "02791234", 3, text)
}

func TestParsePage_LayoutTable(t *testing.T) {
	frags := parse(layoutTable)
	require.Len(t, frags, 1)

	f := frags[0]
	assert.Equal(t, model.FragmentTable, f.Kind)
	assert.Equal(t, "RMS", f.CompanyID)
	assert.Equal(t, "02791234", f.DocumentID)
	assert.Equal(t, 3, f.PageNumber)
	assert.Equal(t, "Table 1: Mt Morgans Gold Project Mineral Resource Estimate", f.Caption)
	assert.Equal(t, "Category", f.LabelHeader)
	assert.Equal(t, []string{"Tonnes (Mt)", "Grade (g/t Au)", "Contained Au (koz)"}, f.ColumnHeaders)
	assert.Equal(t, []string{"Measured", "Indicated", "Inferred", "Total"}, f.RowLabels)
	assert.Equal(t, []string{"10.5", "1.2", "405"}, f.Grid[1])
	assert.True(t, strings.HasPrefix(f.Text, "Table 1:"))
	assert.NotContains(t, f.Text, "cut-off")
}

func TestParsePage_UnitLineAndSectionRows(t *testing.T) {
	frags := parse(sectionTable)
	require.Len(t, frags, 1)

	f := frags[0]
	assert.Equal(t, "Deposit / Category", f.LabelHeader)
	assert.Equal(t, []string{"Tonnes ('000 t)", "Grade (g/t)", "Ounces (koz)"}, f.ColumnHeaders)
	assert.Equal(t, []string{"Boomer", "Indicated", "Inferred", "Sunrise", "Indicated"}, f.RowLabels)
	assert.True(t, f.IsSectionRow(0))
	assert.False(t, f.IsSectionRow(1))
	assert.True(t, f.IsSectionRow(3))
	assert.Equal(t, []string{"800", "1.50", "39"}, f.Grid[4])
	assert.Empty(t, f.Caption)
}

func TestParsePage_DepositColumnWithBlankCells(t *testing.T) {
	frags := parse(depositColumnTable)
	require.Len(t, frags, 1)

	f := frags[0]
	assert.Equal(t, "Deposit", f.LabelHeader)
	assert.Equal(t, []string{"Category", "Tonnes (Mt)", "Grade (g/t)"}, f.ColumnHeaders)
	assert.Equal(t, []string{"Boomer", "", "Sunrise"}, f.RowLabels)
	assert.Equal(t, []string{"Inferred", "0.4", "1.8"}, f.Grid[1])
}

func TestParsePage_MarkdownTable(t *testing.T) {
	frags := parse(markdownTable)
	require.Len(t, frags, 1)

	f := frags[0]
	assert.Equal(t, "Copper Resource", f.Caption)
	assert.Equal(t, "Category", f.LabelHeader)
	assert.Equal(t, []string{"Tonnes (Mt)", "Grade (% Cu)"}, f.ColumnHeaders)
	assert.Equal(t, []string{"Indicated", "Inferred"}, f.RowLabels)
	assert.Equal(t, [][]string{{"4.0", "1.5"}, {"2.0", "0.9"}}, f.Grid)
}

func TestParsePage_InlineStatements(t *testing.T) {
	frags := parse(inlineBlock)
	require.Len(t, frags, 1)

	f := frags[0]
	assert.Equal(t, model.FragmentInline, f.Kind)
	assert.Equal(t, "Highlights", f.Caption)
	assert.Equal(t, "Category", f.LabelHeader)
	assert.Equal(t, []string{"Tonnage", "Grade"}, f.ColumnHeaders)
	assert.Equal(t, []string{"Indicated Resources", "Inferred Resources"}, f.RowLabels)
	assert.Equal(t, []string{"10.5 Mt", "1.2 g/t au"}, f.Grid[0])
	assert.Equal(t, []string{"4.0 Mt", "0.9 g/t au"}, f.Grid[1])
}

func TestParsePage_ProseFallback(t *testing.T) {
	frags := parse(prosePage)
	require.Len(t, frags, 1)

	f := frags[0]
	assert.Equal(t, model.FragmentText, f.Kind)
	assert.False(t, f.HasGrid())
	assert.Contains(t, f.Text, "Indicated Resource now stands at 10.5 million tonnes")
	assert.NotContains(t, f.Text, "Drilling")
}

func TestParsePage_ProseSuppressedWhenTableFound(t *testing.T) {
	frags := parse(prosePage + "\n\n" + layoutTable)
	require.Len(t, frags, 1)
	assert.Equal(t, model.FragmentTable, frags[0].Kind)
}

func TestParsePage_NoTabularContent(t *testing.T) {
	assert.Empty(t, parse("Quarterly Activities Report\n\nCash at bank $4.2m."))
	assert.Empty(t, parse(""))
}

func TestParsePage_HeaderWithoutRowsIsDropped(t *testing.T) {
	text := "Category        Tonnes (Mt)   Grade (g/t)\n\nNo resource has been estimated."
	assert.Empty(t, parse(text))
}

func TestParsePage_MultipleTablesInOrder(t *testing.T) {
	frags := parse(markdownTable + "\n\n\n" + depositColumnTable)
	require.Len(t, frags, 2)
	assert.Equal(t, "Copper Resource", frags[0].Caption)
	assert.Equal(t, "Deposit", frags[1].LabelHeader)
}

func TestParsePage_TableClosesAfterTwoTextLines(t *testing.T) {
	text := layoutTable + "\nNotes to the table follow.\nMeasured        9.9    9.9    9.9"
	frags := parse(text)
	require.Len(t, frags, 1)
	assert.Len(t, frags[0].RowLabels, 4)
}

func TestParsePage_Deterministic(t *testing.T) {
	page := layoutTable + "\n\n" + inlineBlock + "\n\n" + sectionTable
	first := parse(page)
	second := parse(page)
	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestIsNumeric(t *testing.T) {
	for _, s := range []string{"10.5", "1,200", "2.1 Mt", "(0.5)", "405", "1.2 g/t Au", "<0.1"} {
		assert.True(t, IsNumeric(s), s)
	}
	for _, s := range []string{"Indicated", "n/a", "-", "Table 1", "10.5 million tonnes of ore"} {
		assert.False(t, IsNumeric(s), s)
	}
}

func TestIsPlaceholder(t *testing.T) {
	for _, s := range []string{"-", "–", "N/A", " nil "} {
		assert.True(t, IsPlaceholder(s), s)
	}
	assert.False(t, IsPlaceholder("0"))
}

func TestParseLine_SplitsOnGapsAndPipes(t *testing.T) {
	l := parseLine("Indicated   10.5\t1.2 g/t")
	require.Len(t, l.cells, 3)
	assert.Equal(t, cell{text: "Indicated", start: 0, end: 9}, l.cells[0])
	assert.Equal(t, "1.2 g/t", l.cells[2].text)

	p := parseLine("| Inferred | | 0.9 |")
	require.Len(t, p.cells, 3)
	assert.Equal(t, "", p.cells[1].text)
	assert.Len(t, p.filled(), 2)

	assert.True(t, parseLine("| --- | :---: |").sep)
}
