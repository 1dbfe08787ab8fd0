package docstore

import (
	"context"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// preflight validates every announcement with pdfcpu and records its page
// count. Files that fail validation are moved to the skipped list.
func (s *Store) preflight(ctx context.Context, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 4
	}

	results := make([]error, len(s.announcements))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := range s.announcements {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			pages, err := PageCount(s.announcements[i].FilePath)
			if err != nil {
				results[i] = err
				return nil
			}
			s.announcements[i].PageCount = pages
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "docstore: preflight")
	}

	kept := s.announcements[:0]
	for i, a := range s.announcements {
		if results[i] != nil {
			s.skip(a.FilePath, "preflight: "+results[i].Error())
			continue
		}
		kept = append(kept, a)
	}
	s.announcements = kept
	return nil
}

// PageCount validates a PDF and returns its number of pages.
func PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, eris.Wrapf(err, "docstore: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	pdfCtx, err := api.ReadValidateAndOptimize(f, pdfmodel.NewDefaultConfiguration())
	if err != nil {
		return 0, eris.Wrapf(err, "docstore: validate %s", path)
	}
	if pdfCtx.PageCount == 0 {
		return 0, eris.Errorf("docstore: %s has no pages", path)
	}
	return pdfCtx.PageCount, nil
}
