// Package extract lifts candidate resource tables out of announcement PDFs.
package extract

import (
	"context"
	"errors"
	"iter"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mre-cli/internal/model"
	"github.com/sells-group/mre-cli/internal/pdftext"
	"github.com/sells-group/mre-cli/internal/vocab"
)

// PageError reports a single page that could not be read. The remaining
// pages of the document are still extracted.
type PageError struct {
	DocumentID string
	Page       int
	Err        error
}

func (e *PageError) Error() string {
	return eris.Wrapf(e.Err, "extract: document %s page %d", e.DocumentID, e.Page).Error()
}

func (e *PageError) Unwrap() error { return e.Err }

// Extractor produces RawTableFragments from PDF files.
type Extractor struct {
	text  pdftext.Extractor
	vocab *vocab.Vocabulary
}

// New creates an Extractor reading page text from text and recognising
// headers with v.
func New(text pdftext.Extractor, v *vocab.Vocabulary) *Extractor {
	return &Extractor{text: text, vocab: v}
}

// Fragments returns the fragments of one announcement in page order. A
// document that cannot be opened yields a single error and stops. An
// unreadable page yields a *PageError and extraction continues with the
// next page. Iterating again re-reads the file.
func (e *Extractor) Fragments(ctx context.Context, ann model.Announcement) iter.Seq2[model.RawTableFragment, error] {
	return func(yield func(model.RawTableFragment, error) bool) {
		pages, err := e.text.ExtractPages(ctx, ann.FilePath)
		if err != nil {
			yield(model.RawTableFragment{}, eris.Wrapf(err, "extract: document %s/%s", ann.CompanyID, ann.DocumentID))
			return
		}

		for _, p := range pages {
			if p.Err != nil {
				zap.L().Warn("extract: skipping unreadable page",
					zap.String("company", ann.CompanyID),
					zap.String("document", ann.DocumentID),
					zap.Int("page", p.Number),
					zap.Error(p.Err),
				)
				if !yield(model.RawTableFragment{}, &PageError{DocumentID: ann.DocumentID, Page: p.Number, Err: p.Err}) {
					return
				}
				continue
			}
			for _, f := range ParsePage(e.vocab, ann.CompanyID, ann.DocumentID, p.Number, p.Text) {
				if !yield(f, nil) {
					return
				}
			}
		}
	}
}

// Collect drains a fragment sequence. Page errors are counted; any other
// error stops collection and is returned.
func Collect(seq iter.Seq2[model.RawTableFragment, error]) ([]model.RawTableFragment, int, error) {
	var (
		out     []model.RawTableFragment
		skipped int
	)
	for f, err := range seq {
		if err != nil {
			var pe *PageError
			if errors.As(err, &pe) {
				skipped++
				continue
			}
			return out, skipped, err
		}
		out = append(out, f)
	}
	return out, skipped, nil
}
