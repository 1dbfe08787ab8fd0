package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mre-cli/internal/model"
)

func TestInspectAnnouncement(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		company string
		wantCo  string
		wantDoc string
	}{
		{"flat name", "/pdfs/nst_02812345.pdf", "", "NST", "02812345"},
		{"flat name with date", "pdfs/RMS_02791234_20240115.pdf", "", "RMS", "02791234"},
		{"bare document", "pdfs/RMS/02791234.pdf", "", "", "02791234"},
		{"explicit company", "pdfs/RMS/02791234.pdf", "rms", "RMS", "02791234"},
		{"code too long", "pdfs/NORTHERNSTAR_02812345.pdf", "", "", "NORTHERNSTAR_02812345"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ann := inspectAnnouncement(tt.path, tt.company)
			assert.Equal(t, tt.wantCo, ann.CompanyID)
			assert.Equal(t, tt.wantDoc, ann.DocumentID)
			assert.Equal(t, tt.path, ann.FilePath)
		})
	}
}

func TestInspectAnnouncement_ParsesDate(t *testing.T) {
	ann := inspectAnnouncement("pdfs/RMS_02791234_20240115.pdf", "")
	assert.Equal(t, "2024-01-15", ann.PublicationDate.Format("2006-01-02"))
}

func TestWriteInspect_OmitsEmptyRecordSections(t *testing.T) {
	var buf bytes.Buffer
	err := writeInspect(&buf, inspectOutput{
		Announcement: model.Announcement{CompanyID: "NST", DocumentID: "02812345"},
		Fragments:    []model.RawTableFragment{{CompanyID: "NST", Kind: model.FragmentText, Text: "Indicated 1 Mt"}},
	})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Contains(t, got, "fragments")
	assert.NotContains(t, got, "records")
	assert.NotContains(t, got, "unmapped")
}
