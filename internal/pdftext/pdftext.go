// Package pdftext turns announcement PDFs into per-page text.
package pdftext

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mre-cli/internal/config"
)

// Page is the text of one PDF page. Err is set when the page alone could not
// be read; the rest of the document is still usable.
type Page struct {
	Number int
	Text   string
	Err    error
}

// Extractor extracts page text from PDF files.
type Extractor interface {
	ExtractPages(ctx context.Context, pdfPath string) ([]Page, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.TextConfig) (Extractor, error) {
	switch cfg.Provider {
	case "local", "":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "native":
		return NewNative(), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("pdftext: mistral provider requires mistral_api_key")
		}
		return NewMistralOCR(cfg.MistralKey, cfg.MistralModel), nil
	default:
		return nil, eris.Errorf("pdftext: unknown provider %q", cfg.Provider)
	}
}
