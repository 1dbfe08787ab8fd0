package model

// SkipKind classifies why a row or fragment produced no record.
type SkipKind string

const (
	SkipUnparseable   SkipKind = "unparseable"
	SkipUnmappedLabel SkipKind = "unmapped_label"
	SkipUnit          SkipKind = "unit"
	SkipInvalidValue  SkipKind = "invalid_value"
	SkipIgnored       SkipKind = "ignored"
	SkipUnresolved    SkipKind = "unresolved"
)

// Skip describes a row or fragment that was excluded from output.
type Skip struct {
	Kind       SkipKind `json:"kind"`
	Detail     string   `json:"detail"`
	CompanyID  string   `json:"company_id"`
	DocumentID string   `json:"document_id"`
	PageNumber int      `json:"page_number"`
	Row        int      `json:"row"`
}

// Outcome is the result of mapping one row: either a Record or a Skip.
type Outcome struct {
	Record *MRERecord `json:"record,omitempty"`
	Skip   *Skip      `json:"skip,omitempty"`
}

// OK reports whether the outcome produced a record.
func (o Outcome) OK() bool {
	return o.Record != nil
}

// Produced wraps a record as an outcome.
func Produced(r MRERecord) Outcome {
	return Outcome{Record: &r}
}

// Skipped wraps a skip as an outcome.
func Skipped(s Skip) Outcome {
	return Outcome{Skip: &s}
}
