// Package docstore lists the announcement PDFs downloaded for a run.
package docstore

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mre-cli/internal/model"
)

// Options configures Open.
type Options struct {
	Dir         string
	Manifest    string
	Preflight   bool
	Concurrency int
	// Companies restricts the store to these company IDs when non-empty.
	Companies []string
}

// Skipped is a file that was found but will not be processed.
type Skipped struct {
	Path   string
	Reason string
}

// Group is one company's announcements in document order.
type Group struct {
	CompanyID     string
	Announcements []model.Announcement
}

// Store is the read-only set of announcements for a run.
type Store struct {
	dir           string
	announcements []model.Announcement
	skipped       []Skipped
}

// flatNameRe matches COMPANY_DOCID[_YYYYMMDD].
var flatNameRe = regexp.MustCompile(`^([A-Za-z0-9]{2,6})_([A-Za-z0-9-]+?)(?:_(\d{8}))?$`)

// Open scans opts.Dir. PDFs may sit in per-company sub-directories
// (<dir>/<COMPANY>/<DOCID>.pdf) or flat in the directory
// (<COMPANY>_<DOCID>[_YYYYMMDD].pdf). Manifest entries override the file
// name convention. A missing or unreadable directory is an error; files
// that cannot be identified or fail preflight are skipped.
func Open(ctx context.Context, opts Options) (*Store, error) {
	entries, err := os.ReadDir(opts.Dir)
	if err != nil {
		return nil, eris.Wrapf(err, "docstore: read %s", opts.Dir)
	}

	var manifest map[string]ManifestEntry
	if opts.Manifest != "" {
		manifest, err = LoadManifest(ctx, opts.Manifest)
		if err != nil {
			return nil, err
		}
	}

	s := &Store{dir: opts.Dir}
	for _, e := range entries {
		path := filepath.Join(opts.Dir, e.Name())
		if e.IsDir() {
			if err := s.scanCompanyDir(path, e.Name()); err != nil {
				return nil, err
			}
			continue
		}
		if !isPDF(e.Name()) {
			continue
		}
		ann, ok := identify(path, manifest)
		if !ok {
			s.skip(path, "unrecognised file name")
			continue
		}
		s.announcements = append(s.announcements, ann)
	}

	s.filter(opts.Companies)
	s.dedupe()

	if opts.Preflight {
		if err := s.preflight(ctx, opts.Concurrency); err != nil {
			return nil, err
		}
	}

	sort.Slice(s.announcements, func(i, j int) bool {
		a, b := s.announcements[i], s.announcements[j]
		if a.CompanyID != b.CompanyID {
			return a.CompanyID < b.CompanyID
		}
		return a.DocumentID < b.DocumentID
	})

	zap.L().Info("docstore: opened",
		zap.String("dir", opts.Dir),
		zap.Int("announcements", len(s.announcements)),
		zap.Int("skipped", len(s.skipped)),
	)
	return s, nil
}

func (s *Store) scanCompanyDir(dir, company string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return eris.Wrapf(err, "docstore: read %s", dir)
	}
	for _, e := range entries {
		if e.IsDir() || !isPDF(e.Name()) {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		ann := model.Announcement{
			CompanyID:  strings.ToUpper(company),
			DocumentID: stem,
			FilePath:   filepath.Join(dir, e.Name()),
		}
		if flat, ok := ParseName(e.Name()); ok && flat.CompanyID == ann.CompanyID {
			ann.DocumentID = flat.DocumentID
			ann.PublicationDate = flat.PublicationDate
		}
		s.announcements = append(s.announcements, ann)
	}
	return nil
}

// ParseName parses a downloader file name, COMPANY_DOCID[_YYYYMMDD].pdf,
// into an announcement without a file path.
func ParseName(name string) (model.Announcement, bool) {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	m := flatNameRe.FindStringSubmatch(stem)
	if m == nil {
		return model.Announcement{}, false
	}
	return model.Announcement{
		CompanyID:       strings.ToUpper(m[1]),
		DocumentID:      m[2],
		PublicationDate: parseDate(m[3]),
	}, true
}

func identify(path string, manifest map[string]ManifestEntry) (model.Announcement, bool) {
	name := filepath.Base(path)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	ann, _ := ParseName(name)
	ann.FilePath = path

	if me, ok := manifest[name]; ok {
		if me.CompanyID != "" {
			ann.CompanyID = strings.ToUpper(me.CompanyID)
		}
		if me.DocumentID != "" {
			ann.DocumentID = me.DocumentID
		} else if ann.DocumentID == "" {
			ann.DocumentID = stem
		}
		if !me.PublicationDate.IsZero() {
			ann.PublicationDate = me.PublicationDate
		}
	}
	return ann, ann.CompanyID != "" && ann.DocumentID != ""
}

func (s *Store) filter(companies []string) {
	if len(companies) == 0 {
		return
	}
	want := make(map[string]bool, len(companies))
	for _, c := range companies {
		want[strings.ToUpper(strings.TrimSpace(c))] = true
	}
	kept := s.announcements[:0]
	for _, a := range s.announcements {
		if want[a.CompanyID] {
			kept = append(kept, a)
		}
	}
	s.announcements = kept
}

// dedupe keeps the first file seen for each (company, document) identity.
func (s *Store) dedupe() {
	seen := make(map[string]bool, len(s.announcements))
	kept := s.announcements[:0]
	for _, a := range s.announcements {
		if seen[a.Key()] {
			s.skip(a.FilePath, "duplicate announcement "+a.Key())
			continue
		}
		seen[a.Key()] = true
		kept = append(kept, a)
	}
	s.announcements = kept
}

func (s *Store) skip(path, reason string) {
	zap.L().Warn("docstore: skipping file", zap.String("path", path), zap.String("reason", reason))
	s.skipped = append(s.skipped, Skipped{Path: path, Reason: reason})
}

// Dir returns the scanned directory.
func (s *Store) Dir() string { return s.dir }

// Announcements returns every announcement sorted by company then document.
func (s *Store) Announcements() []model.Announcement {
	return s.announcements
}

// Skipped returns the files that were found but excluded.
func (s *Store) Skipped() []Skipped {
	return s.skipped
}

// Groups returns the announcements grouped by company, in company order.
func (s *Store) Groups() []Group {
	var groups []Group
	for _, a := range s.announcements {
		if n := len(groups); n == 0 || groups[n-1].CompanyID != a.CompanyID {
			groups = append(groups, Group{CompanyID: a.CompanyID})
		}
		g := &groups[len(groups)-1]
		g.Announcements = append(g.Announcements, a)
	}
	return groups
}

func isPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

var dateLayouts = []string{"20060102", "2006-01-02", "02/01/2006", "2/01/2006", "02/01/06"}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
