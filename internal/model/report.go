package model

import "github.com/shopspring/decimal"

// CanonicalField is a field of the canonical report vocabulary that a
// detected column can map to.
type CanonicalField string

const (
	FieldNetSales                CanonicalField = "net_sales"
	FieldGrossSales              CanonicalField = "gross_sales"
	FieldReturns                 CanonicalField = "returns"
	FieldProductCategory         CanonicalField = "product_category"
	FieldLicenseeReportedRoyalty CanonicalField = "licensee_reported_royalty"
	FieldTerritory               CanonicalField = "territory"
	FieldMetadata                CanonicalField = "metadata"
	FieldIgnore                  CanonicalField = "ignore"
)

// CanonicalFields lists every valid mapping target in declared order.
var CanonicalFields = []CanonicalField{
	FieldNetSales,
	FieldGrossSales,
	FieldReturns,
	FieldProductCategory,
	FieldLicenseeReportedRoyalty,
	FieldTerritory,
	FieldMetadata,
	FieldIgnore,
}

// Valid reports whether f is one of the canonical fields.
func (f CanonicalField) Valid() bool {
	for _, c := range CanonicalFields {
		if f == c {
			return true
		}
	}
	return false
}

// Numeric reports whether columns mapped to f contribute numeric values.
func (f CanonicalField) Numeric() bool {
	switch f {
	case FieldNetSales, FieldGrossSales, FieldReturns, FieldLicenseeReportedRoyalty:
		return true
	}
	return false
}

// MappingSource records which resolution layer produced a mapping.
type MappingSource string

const (
	SourceSaved   MappingSource = "saved"
	SourceKeyword MappingSource = "keyword"
	SourceExact   MappingSource = "exact"
	SourceFuzzy   MappingSource = "fuzzy"
	SourceAI      MappingSource = "ai"
	SourceNone    MappingSource = "none"
)

// ColumnMapping maps a detected column name to a canonical field. Multiple
// columns may map to the same numeric field; their values are summed.
type ColumnMapping map[string]CanonicalField

// ParsedSheet is the result of structure detection over a raw cell grid.
// Created once per upload and immutable afterwards.
type ParsedSheet struct {
	SheetName           string              `json:"sheetName"`
	ColumnNames         []string            `json:"columnNames"`
	AllRows             []map[string]string `json:"-"`
	SampleRows          []map[string]string `json:"sampleRows"`
	DataRows            int                 `json:"dataRows"`
	TotalRows           int                 `json:"totalRows"`
	MetadataPeriodStart string              `json:"metadataPeriodStart,omitempty"`
	MetadataPeriodEnd   string              `json:"metadataPeriodEnd,omitempty"`
}

// MappedData is the aggregation result of applying a column mapping to all
// data rows of a parsed sheet.
type MappedData struct {
	NetSales                decimal.Decimal            `json:"netSales"`
	CategorySales           map[string]decimal.Decimal `json:"categorySales,omitempty"`
	LicenseeReportedRoyalty *decimal.Decimal           `json:"licenseeReportedRoyalty,omitempty"`
	GrossSales              *decimal.Decimal           `json:"grossSales,omitempty"`
	Returns                 *decimal.Decimal           `json:"returns,omitempty"`
}
