// Package model defines the documents, table fragments and Mineral Resource
// Estimate records that flow through the extraction pipeline.
package model

import (
	"fmt"
	"math"
)

// Category is a resource confidence category.
type Category string

const (
	CategoryMeasured          Category = "Measured"
	CategoryIndicated         Category = "Indicated"
	CategoryInferred          Category = "Inferred"
	CategoryMeasuredIndicated Category = "Measured+Indicated"
)

// Categories lists every category in reporting order.
var Categories = []Category{
	CategoryMeasured,
	CategoryIndicated,
	CategoryMeasuredIndicated,
	CategoryInferred,
}

// Commodity identifies the metal an estimate reports.
type Commodity string

const (
	CommodityGold  Commodity = "gold"
	CommodityOther Commodity = "other"
)

// ParseCommodity maps a string to a Commodity.
func ParseCommodity(s string) (Commodity, bool) {
	switch Commodity(s) {
	case CommodityGold:
		return CommodityGold, true
	case CommodityOther:
		return CommodityOther, true
	}
	return "", false
}

// Contained metal is computed from tonnes × g/t, which yields grams.
const (
	// GramsPerKoz is grams per thousand troy ounces (1 troy oz = 31.1034768 g).
	GramsPerKoz = 31103.4768
	// GramsPerTonne converts grams of metal to tonnes of metal.
	GramsPerTonne = 1e6
)

// ConversionFactor returns the constant applied to tonnes × g/t to obtain
// contained metal in the commodity's reporting unit.
func (c Commodity) ConversionFactor() float64 {
	if c == CommodityGold {
		return 1 / GramsPerKoz
	}
	return 1 / GramsPerTonne
}

// MetalUnit is the unit contained metal is reported in.
func (c Commodity) MetalUnit() string {
	if c == CommodityGold {
		return "koz"
	}
	return "t"
}

// ContainedMetal computes tonnage (t) × grade (g/t) × the commodity's factor.
func ContainedMetal(tonnage, grade float64, c Commodity) float64 {
	return tonnage * grade * c.ConversionFactor()
}

// Source records how a record was produced.
type Source string

const (
	SourceParsed Source = "parsed"
	SourceLLM    Source = "llm"
)

// MRERecord is one normalized Mineral Resource Estimate line.
type MRERecord struct {
	CompanyID      string    `json:"company_id"`
	DepositName    string    `json:"deposit_name"`
	Category       Category  `json:"category"`
	Tonnage        float64   `json:"tonnage_t"`
	Grade          float64   `json:"grade_gpt"`
	ContainedMetal float64   `json:"contained_metal"`
	Commodity      Commodity `json:"commodity"`
	Source         Source    `json:"extraction_source"`
	DocumentID     string    `json:"document_id"`
	PageNumber     int       `json:"page_number"`
}

// RecordKey is the uniqueness key of an MRERecord.
type RecordKey struct {
	CompanyID   string
	DepositName string
	Category    Category
	Commodity   Commodity
}

// Key returns the record's uniqueness key.
func (r MRERecord) Key() RecordKey {
	return RecordKey{
		CompanyID:   r.CompanyID,
		DepositName: r.DepositName,
		Category:    r.Category,
		Commodity:   r.Commodity,
	}
}

func (k RecordKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.CompanyID, k.DepositName, k.Category, k.Commodity)
}

// Less orders keys by company, deposit, category then commodity.
func (k RecordKey) Less(o RecordKey) bool {
	if k.CompanyID != o.CompanyID {
		return k.CompanyID < o.CompanyID
	}
	if k.DepositName != o.DepositName {
		return k.DepositName < o.DepositName
	}
	if k.Category != o.Category {
		return categoryRank(k.Category) < categoryRank(o.Category)
	}
	return k.Commodity < o.Commodity
}

func categoryRank(c Category) int {
	for i, cat := range Categories {
		if cat == c {
			return i
		}
	}
	return len(Categories)
}

// SameValues reports whether two records carry the same measured values.
func (r MRERecord) SameValues(o MRERecord) bool {
	return closeEnough(r.Tonnage, o.Tonnage) && closeEnough(r.Grade, o.Grade)
}

// Consistent reports whether ContainedMetal matches tonnage × grade × factor
// within the given relative tolerance.
func (r MRERecord) Consistent(tolerance float64) bool {
	want := ContainedMetal(r.Tonnage, r.Grade, r.Commodity)
	if want == 0 {
		return r.ContainedMetal == 0
	}
	return math.Abs(r.ContainedMetal-want)/math.Abs(want) <= tolerance
}

func closeEnough(a, b float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= 1e-9*math.Max(math.Abs(a), math.Abs(b))
}
