package docstore

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ManifestEntry is one downloaded file as recorded by the downloader.
type ManifestEntry struct {
	Filename        string
	CompanyID       string
	DocumentID      string
	PublicationDate time.Time
}

// Column names accepted for each manifest field, in priority order. The
// downloader writes positional col1..colN columns followed by file_link and
// filename; col1 holds the ASX code and col2 the release date.
var manifestColumns = map[string][]string{
	"filename": {"filename", "file_name", "file"},
	"link":     {"file_link", "link", "url"},
	"company":  {"company_id", "company", "asx_code", "code", "ticker", "col1"},
	"document": {"document_id", "document", "doc_id"},
	"date":     {"publication_date", "date", "release_date", "col2"},
}

// LoadManifest reads the downloader's CSV manifest keyed by file name.
// Rows without a file name (failed downloads) are ignored.
func LoadManifest(ctx context.Context, p string) (map[string]ManifestEntry, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, eris.Wrapf(err, "docstore: open manifest %s", p)
	}
	defer f.Close() //nolint:errcheck

	headerCh := make(chan []string, 1)
	rowCh, errCh := streamCSV(ctx, f, headerCh)

	var idx map[string]int
	out := make(map[string]ManifestEntry)
	for row := range rowCh {
		if idx == nil {
			idx = manifestIndex(<-headerCh)
			if _, ok := idx["filename"]; !ok {
				if _, ok := idx["link"]; !ok {
					// Drain so the reader goroutine can finish.
					for range rowCh {
					}
					return nil, eris.Errorf("docstore: manifest %s has no filename column", p)
				}
			}
		}
		e := manifestEntry(row, idx)
		if e.Filename == "" {
			continue
		}
		out[e.Filename] = e
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrapf(err, "docstore: read manifest %s", p)
	}
	return out, nil
}

func manifestIndex(header []string) map[string]int {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.ToLower(strings.TrimSpace(h))] = i
	}
	idx := make(map[string]int)
	for field, names := range manifestColumns {
		for _, n := range names {
			if i, ok := pos[n]; ok {
				idx[field] = i
				break
			}
		}
	}
	return idx
}

func manifestEntry(row []string, idx map[string]int) ManifestEntry {
	get := func(field string) string {
		i, ok := idx[field]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	name := get("filename")
	if name == "" || strings.EqualFold(name, "none") {
		// Fall back to the last path segment of the link, minus any fragment.
		link, _, _ := strings.Cut(get("link"), "#")
		name = path.Base(link)
		if link == "" || name == "." || name == "/" {
			name = ""
		}
	}
	return ManifestEntry{
		Filename:        name,
		CompanyID:       get("company"),
		DocumentID:      get("document"),
		PublicationDate: parseDate(get("date")),
	}
}

// streamCSV reads r and sends rows to a channel. The first row is sent to
// headerCh. Both returned channels are closed when reading completes.
func streamCSV(ctx context.Context, r io.Reader, headerCh chan<- []string) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1 // allow variable fields
		reader.LazyQuotes = true

		first := true
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			if first {
				first = false
				headerCh <- record
				continue
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}
