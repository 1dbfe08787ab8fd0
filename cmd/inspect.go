package main

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/mre-cli/internal/docstore"
	"github.com/sells-group/mre-cli/internal/extract"
	"github.com/sells-group/mre-cli/internal/model"
	"github.com/sells-group/mre-cli/internal/normalize"
	"github.com/sells-group/mre-cli/internal/pdftext"
)

var (
	inspectCompany string
	inspectRecords bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <pdf>",
	Short: "Print the fragments (and optionally records) found in one PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("inspect"); err != nil {
			return err
		}

		v, err := loadVocabulary(cfg)
		if err != nil {
			return err
		}
		text, err := pdftext.NewExtractor(cfg.Text)
		if err != nil {
			return err
		}

		ann := inspectAnnouncement(args[0], inspectCompany)
		frags, skipped, err := extract.Collect(extract.New(text, v).Fragments(ctx, ann))
		if err != nil {
			return eris.Wrap(err, "inspect")
		}

		out := inspectOutput{Announcement: ann, PagesSkipped: skipped, Fragments: frags}
		if inspectRecords {
			c := normalize.New(v, normalizeOptions(cfg)).Company(frags)
			out.Records = c.Set.Records()
			out.Skips = c.Skips
			for _, u := range c.Unmapped {
				out.Unmapped = append(out.Unmapped, unmappedOutput{
					PageNumber: u.Fragment.PageNumber,
					Kind:       u.Fragment.Kind,
					Reason:     u.Reason,
				})
			}
		}
		return writeInspect(os.Stdout, out)
	},
}

type unmappedOutput struct {
	PageNumber int                `json:"page_number"`
	Kind       model.FragmentKind `json:"kind"`
	Reason     string             `json:"reason"`
}

type inspectOutput struct {
	Announcement model.Announcement       `json:"announcement"`
	PagesSkipped int                      `json:"pages_skipped"`
	Fragments    []model.RawTableFragment `json:"fragments"`
	Records      []model.MRERecord        `json:"records,omitempty"`
	Skips        []model.Skip             `json:"skips,omitempty"`
	Unmapped     []unmappedOutput         `json:"unmapped,omitempty"`
}

// inspectAnnouncement derives company and document IDs the way the
// document store does for flat downloader names. An explicit company wins.
func inspectAnnouncement(path, company string) model.Announcement {
	ann, ok := docstore.ParseName(path)
	if !ok {
		ann.DocumentID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	ann.FilePath = path
	if company != "" {
		ann.CompanyID = strings.ToUpper(company)
	}
	return ann
}

func writeInspect(w io.Writer, out inspectOutput) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func init() {
	inspectCmd.Flags().StringVar(&inspectCompany, "company", "", "ASX code to attribute fragments to")
	inspectCmd.Flags().BoolVar(&inspectRecords, "records", false, "also normalize fragments into records")
	rootCmd.AddCommand(inspectCmd)
}
