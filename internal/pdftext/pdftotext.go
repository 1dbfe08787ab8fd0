package pdftext

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"
)

// PdfToText extracts text from PDFs using the pdftotext CLI tool.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// ExtractPages runs pdftotext -layout and splits its output on form feeds,
// which pdftotext emits at the end of every page.
func (p *PdfToText) ExtractPages(ctx context.Context, pdfPath string) ([]Page, error) {
	cmd := exec.CommandContext(ctx, p.binPath, "-layout", "-enc", "UTF-8", pdfPath, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "pdftext: pdftotext failed for %s: %s", pdfPath, stderr.String())
	}

	return splitPages(stdout.String()), nil
}

func splitPages(out string) []Page {
	parts := strings.Split(out, "\f")
	// Output ends with a form feed, leaving an empty trailing element.
	if n := len(parts); n > 1 && strings.TrimSpace(parts[n-1]) == "" {
		parts = parts[:n-1]
	}
	pages := make([]Page, 0, len(parts))
	for i, text := range parts {
		pages = append(pages, Page{Number: i + 1, Text: text})
	}
	return pages
}
