// Package output writes the final MRE table.
package output

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/mre-cli/internal/model"
)

// Formats lists the supported output formats.
var Formats = []string{"csv", "xlsx", "json"}

// Columns defines the ordered output columns.
var Columns = []string{
	"company_id",
	"deposit_name",
	"category",
	"commodity",
	"tonnage_t",
	"grade_gpt",
	"contained_metal",
	"contained_metal_unit",
	"extraction_source",
	"document_id",
	"page_number",
}

// Write serializes records to path in the given format. The file is
// written beside path under a temporary name and renamed into place, so a
// failed run never leaves a partial table at path.
func Write(path, format string, records []model.MRERecord) error {
	encode, err := encoder(format)
	if err != nil {
		return err
	}
	if err := check(records); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "output: create dir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "output: create temp file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck

	if err := encode(tmp, records); err != nil {
		tmp.Close() //nolint:errcheck
		return err
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "output: close temp file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return eris.Wrapf(err, "output: rename to %s", path)
	}
	return nil
}

// metalTolerance bounds the relative error allowed between a record's
// contained metal and the value derived from its tonnage and grade.
const metalTolerance = 1e-6

// check rejects records that break the output invariants before anything
// is written.
func check(records []model.MRERecord) error {
	for _, r := range records {
		if r.Tonnage < 0 || r.Grade < 0 {
			return eris.Errorf("output: negative tonnage or grade for %s", r.Key())
		}
		if !r.Consistent(metalTolerance) {
			return eris.Errorf("output: contained metal %g for %s does not match tonnage and grade", r.ContainedMetal, r.Key())
		}
	}
	return nil
}

func encoder(format string) (func(io.Writer, []model.MRERecord) error, error) {
	switch format {
	case "csv", "":
		return writeCSV, nil
	case "xlsx":
		return writeXLSX, nil
	case "json":
		return writeJSON, nil
	default:
		return nil, eris.Errorf("output: unknown format %q", format)
	}
}

// Row maps a record to its output cells.
func Row(r model.MRERecord) []string {
	return []string{
		r.CompanyID,
		r.DepositName,
		string(r.Category),
		string(r.Commodity),
		formatFloat(r.Tonnage),
		formatFloat(r.Grade),
		formatFloat(r.ContainedMetal),
		r.Commodity.MetalUnit(),
		string(r.Source),
		r.DocumentID,
		strconv.Itoa(r.PageNumber),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeCSV(w io.Writer, records []model.MRERecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return eris.Wrap(err, "output: write csv header")
	}
	for _, r := range records {
		if err := cw.Write(Row(r)); err != nil {
			return eris.Wrap(err, "output: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "output: flush csv")
}

func writeXLSX(w io.Writer, records []model.MRERecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("MRE")
	if err != nil {
		return eris.Wrap(err, "output: add sheet")
	}

	header := sheet.AddRow()
	for _, c := range Columns {
		header.AddCell().SetString(c)
	}
	for _, r := range records {
		row := sheet.AddRow()
		row.AddCell().SetString(r.CompanyID)
		row.AddCell().SetString(r.DepositName)
		row.AddCell().SetString(string(r.Category))
		row.AddCell().SetString(string(r.Commodity))
		row.AddCell().SetFloat(r.Tonnage)
		row.AddCell().SetFloat(r.Grade)
		row.AddCell().SetFloat(r.ContainedMetal)
		row.AddCell().SetString(r.Commodity.MetalUnit())
		row.AddCell().SetString(string(r.Source))
		row.AddCell().SetString(r.DocumentID)
		row.AddCell().SetInt(r.PageNumber)
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "output: write xlsx")
	}
	return nil
}

type jsonRecord struct {
	model.MRERecord
	ContainedMetalUnit string `json:"contained_metal_unit"`
}

func writeJSON(w io.Writer, records []model.MRERecord) error {
	out := make([]jsonRecord, len(records))
	for i, r := range records {
		out[i] = jsonRecord{MRERecord: r, ContainedMetalUnit: r.Commodity.MetalUnit()}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return eris.Wrap(err, "output: encode json")
	}
	return nil
}
