package model

import "strings"

// FragmentKind describes how a fragment was recognised on the page.
type FragmentKind string

const (
	// FragmentTable is a column-aligned grid with a header row.
	FragmentTable FragmentKind = "table"
	// FragmentInline is a run of "<category>: <tonnes> @ <grade>" statements.
	FragmentInline FragmentKind = "inline"
	// FragmentText is prose that mentions resource categories but has no grid.
	FragmentText FragmentKind = "text"
)

// RawTableFragment is a candidate table lifted from one page of a document.
// RowLabels[i] labels Grid[i]; ColumnHeaders label the Grid columns and
// LabelHeader labels the row-label column. A row whose cells are all empty
// is a section row (typically a deposit sub-heading).
type RawTableFragment struct {
	CompanyID     string       `json:"company_id"`
	DocumentID    string       `json:"document_id"`
	PageNumber    int          `json:"page_number"`
	Kind          FragmentKind `json:"kind"`
	Caption       string       `json:"caption,omitempty"`
	LabelHeader   string       `json:"label_header,omitempty"`
	ColumnHeaders []string     `json:"column_headers,omitempty"`
	RowLabels     []string     `json:"row_labels,omitempty"`
	Grid          [][]string   `json:"grid,omitempty"`
	Text          string       `json:"text"`
}

// HasGrid reports whether the fragment carries tabular data.
func (f RawTableFragment) HasGrid() bool {
	return len(f.Grid) > 0 && len(f.ColumnHeaders) > 0
}

// IsSectionRow reports whether row i has a label but no values.
func (f RawTableFragment) IsSectionRow(i int) bool {
	for _, c := range f.Grid[i] {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Cell returns Grid[row][col], or "" for a short row.
func (f RawTableFragment) Cell(row, col int) string {
	if col < 0 || row >= len(f.Grid) || col >= len(f.Grid[row]) {
		return ""
	}
	return f.Grid[row][col]
}
