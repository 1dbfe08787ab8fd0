package enrich

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mre-cli/internal/model"
)

func TestLoadTemplate_Default(t *testing.T) {
	tmpl, err := LoadTemplate("")
	require.NoError(t, err)

	out := tmpl.Render(testFragment)
	assert.Contains(t, out, "page 4 of ASX announcement 02812345 by NST")
	assert.Contains(t, out, testFragment.Text)
	assert.NotContains(t, out, "{{")
}

func TestLoadTemplate_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("{{COMPANY}}|{{DOCUMENT}}|{{PAGE}}|{{FRAGMENT}}"), 0o644))

	tmpl, err := LoadTemplate(path)
	require.NoError(t, err)
	assert.Equal(t, "NST|02812345|4|"+testFragment.Text, tmpl.Render(testFragment))
}

func TestLoadTemplate_MissingPlaceholder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("Extract the MRE for {{COMPANY}}"), 0o644))

	_, err := LoadTemplate(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no {{FRAGMENT}} placeholder")
}

func TestLoadTemplate_MissingFile(t *testing.T) {
	_, err := LoadTemplate(filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enrich: read template")
}

func TestFragmentText_GridOnly(t *testing.T) {
	f := model.RawTableFragment{
		Caption:       "Table 1 Jundee Mineral Resource",
		LabelHeader:   "Category",
		ColumnHeaders: []string{"Tonnes (Mt)", "Grade"},
		RowLabels:     []string{"Indicated"},
		Grid:          [][]string{{"10.5", "1.2 g/t"}},
	}
	assert.Equal(t,
		"Table 1 Jundee Mineral Resource\nCategory | Tonnes (Mt) | Grade\nIndicated | 10.5 | 1.2 g/t",
		fragmentText(f))
}
