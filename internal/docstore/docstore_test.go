package docstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalPDF builds a one-page PDF with a correct xref table.
func minimalPDF(text string) []byte {
	stream := "BT\n/F1 12 Tf\n72 720 Td\n(" + text + ") Tj\nET"
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return []byte(b.String())
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestOpen_MissingDir(t *testing.T) {
	_, err := Open(context.Background(), Options{Dir: filepath.Join(t.TempDir(), "nope")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "docstore: read")
}

func TestOpen_LayoutsAndOrder(t *testing.T) {
	dir := t.TempDir()
	pdf := minimalPDF("Mineral Resource")
	writeFile(t, filepath.Join(dir, "rrl_02799001_20240131.pdf"), pdf)
	writeFile(t, filepath.Join(dir, "NST_02812345.PDF"), pdf)
	writeFile(t, filepath.Join(dir, "NST", "02700001.pdf"), pdf)
	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("ignore me"))
	writeFile(t, filepath.Join(dir, "quarterly report.pdf"), pdf)

	s, err := Open(context.Background(), Options{Dir: dir})
	require.NoError(t, err)

	anns := s.Announcements()
	require.Len(t, anns, 3)
	assert.Equal(t, "NST", anns[0].CompanyID)
	assert.Equal(t, "02700001", anns[0].DocumentID)
	assert.Equal(t, "NST", anns[1].CompanyID)
	assert.Equal(t, "02812345", anns[1].DocumentID)
	assert.Equal(t, "RRL", anns[2].CompanyID)
	assert.Equal(t, "02799001", anns[2].DocumentID)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), anns[2].PublicationDate)

	require.Len(t, s.Skipped(), 1)
	assert.Equal(t, "unrecognised file name", s.Skipped()[0].Reason)

	groups := s.Groups()
	require.Len(t, groups, 2)
	assert.Equal(t, "NST", groups[0].CompanyID)
	assert.Len(t, groups[0].Announcements, 2)
	assert.Equal(t, "RRL", groups[1].CompanyID)
}

func TestOpen_CompanyFilter(t *testing.T) {
	dir := t.TempDir()
	pdf := minimalPDF("x")
	writeFile(t, filepath.Join(dir, "NST_1.pdf"), pdf)
	writeFile(t, filepath.Join(dir, "RRL_2.pdf"), pdf)

	s, err := Open(context.Background(), Options{Dir: dir, Companies: []string{" rrl "}})
	require.NoError(t, err)
	require.Len(t, s.Announcements(), 1)
	assert.Equal(t, "RRL", s.Announcements()[0].CompanyID)
}

func TestOpen_DuplicateIdentity(t *testing.T) {
	dir := t.TempDir()
	pdf := minimalPDF("x")
	writeFile(t, filepath.Join(dir, "NST_1.pdf"), pdf)
	writeFile(t, filepath.Join(dir, "NST", "1.pdf"), pdf)

	s, err := Open(context.Background(), Options{Dir: dir})
	require.NoError(t, err)
	assert.Len(t, s.Announcements(), 1)
	require.Len(t, s.Skipped(), 1)
	assert.Contains(t, s.Skipped()[0].Reason, "duplicate announcement NST/1")
}

func TestOpen_Preflight(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "NST_good.pdf"), minimalPDF("Indicated"))
	writeFile(t, filepath.Join(dir, "NST_bad.pdf"), []byte("this is not a pdf"))

	s, err := Open(context.Background(), Options{Dir: dir, Preflight: true, Concurrency: 2})
	require.NoError(t, err)

	require.Len(t, s.Announcements(), 1)
	assert.Equal(t, "good", s.Announcements()[0].DocumentID)
	assert.Equal(t, 1, s.Announcements()[0].PageCount)

	require.Len(t, s.Skipped(), 1)
	assert.Contains(t, s.Skipped()[0].Reason, "preflight")
}

func TestOpen_Manifest(t *testing.T) {
	dir := t.TempDir()
	pdf := minimalPDF("x")
	writeFile(t, filepath.Join(dir, "02812345.pdf"), pdf)
	writeFile(t, filepath.Join(dir, "02899999.pdf"), pdf)

	manifest := filepath.Join(t.TempDir(), "downloads.csv")
	writeFile(t, manifest, []byte(
		"col1,col2,col3,file_link,filename\n"+
			"NST,15/03/2024,Resource update,https://example.com/asx/02812345.pdf#page=1,02812345.pdf\n"+
			"RRL,16/03/2024,Quarterly,https://example.com/asx/02899999.pdf,\n"+
			"EVN,17/03/2024,No PDF,,\n",
	))

	s, err := Open(context.Background(), Options{Dir: dir, Manifest: manifest})
	require.NoError(t, err)

	anns := s.Announcements()
	require.Len(t, anns, 2)
	assert.Equal(t, "NST", anns[0].CompanyID)
	assert.Equal(t, "02812345", anns[0].DocumentID)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), anns[0].PublicationDate)
	assert.Equal(t, "RRL", anns[1].CompanyID)
	assert.Equal(t, "02899999", anns[1].DocumentID)
}

func TestLoadManifest_NoFilenameColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.csv")
	writeFile(t, path, []byte("a,b\n1,2\n"))

	_, err := LoadManifest(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no filename column")
}

func TestLoadManifest_Missing(t *testing.T) {
	_, err := LoadManifest(context.Background(), filepath.Join(t.TempDir(), "none.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "docstore: open manifest")
}

func TestPageCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.pdf")
	writeFile(t, path, minimalPDF("hello"))

	n, err := PageCount(path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestParseDate(t *testing.T) {
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), parseDate("20240131"))
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), parseDate("2024-01-31"))
	assert.True(t, parseDate("yesterday").IsZero())
	assert.True(t, parseDate("").IsZero())
}

func TestParseName(t *testing.T) {
	tests := []struct {
		name    string
		ok      bool
		company string
		doc     string
		date    time.Time
	}{
		{"nst_02812345.pdf", true, "NST", "02812345", time.Time{}},
		{"RMS_02791234_20240115.pdf", true, "RMS", "02791234", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"/pdfs/RMS_02791234.PDF", true, "RMS", "02791234", time.Time{}},
		{"NORTHERNSTAR_02812345.pdf", false, "", "", time.Time{}},
		{"02791234.pdf", false, "", "", time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ann, ok := ParseName(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.company, ann.CompanyID)
			assert.Equal(t, tt.doc, ann.DocumentID)
			assert.True(t, tt.date.Equal(ann.PublicationDate), "date %v", ann.PublicationDate)
			assert.Empty(t, ann.FilePath)
		})
	}
}
