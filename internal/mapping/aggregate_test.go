package mapping

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"royaltydesk/internal/model"
)

func sheetOf(columns []string, rows ...[]string) *model.ParsedSheet {
	s := &model.ParsedSheet{ColumnNames: columns}
	for _, r := range rows {
		m := make(map[string]string, len(columns))
		for i, col := range columns {
			if i < len(r) {
				m[col] = r[i]
			}
		}
		s.AllRows = append(s.AllRows, m)
	}
	s.DataRows = len(s.AllRows)
	return s
}

func TestAggregate_NetSalesDirect(t *testing.T) {
	t.Parallel()

	sheet := sheetOf([]string{"Product", "Net Sales"},
		[]string{"Widget", "$1,250.50"},
		[]string{"Gadget", "749.50"},
	)
	mapping := model.ColumnMapping{"Net Sales": model.FieldNetSales}

	data, err := Aggregate(sheet, mapping)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if !data.NetSales.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("net sales = %s, want 2000", data.NetSales)
	}
	if data.GrossSales != nil || data.Returns != nil {
		t.Fatalf("gross/returns must be absent when net is mapped directly")
	}
}

func TestAggregate_DeriveNetFromGrossMinusReturns(t *testing.T) {
	t.Parallel()

	sheet := sheetOf([]string{"Gross", "Returns"},
		[]string{"87500", "4200"},
	)
	mapping := model.ColumnMapping{
		"Gross":   model.FieldGrossSales,
		"Returns": model.FieldReturns,
	}

	data, err := Aggregate(sheet, mapping)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if !data.NetSales.Equal(decimal.NewFromInt(83300)) {
		t.Fatalf("derived net = %s, want 83300", data.NetSales)
	}
	if data.GrossSales == nil || !data.GrossSales.Equal(decimal.NewFromInt(87500)) {
		t.Fatalf("gross total not preserved: %v", data.GrossSales)
	}
	if data.Returns == nil || !data.Returns.Equal(decimal.NewFromInt(4200)) {
		t.Fatalf("returns total not preserved: %v", data.Returns)
	}
}

func TestAggregate_GrossAloneCountsAsNet(t *testing.T) {
	t.Parallel()

	sheet := sheetOf([]string{"Gross"}, []string{"100"}, []string{"200"})
	data, err := Aggregate(sheet, model.ColumnMapping{"Gross": model.FieldGrossSales})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if !data.NetSales.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("net = %s, want 300", data.NetSales)
	}
}

func TestAggregate_CategoryTotalsSumToNet(t *testing.T) {
	t.Parallel()

	sheet := sheetOf([]string{"Category", "Net Sales"},
		[]string{"Apparel", "100"},
		[]string{"Apparel", "150"},
		[]string{"Accessories", "50"},
		[]string{"", "25"},
	)
	mapping := model.ColumnMapping{
		"Category":  model.FieldProductCategory,
		"Net Sales": model.FieldNetSales,
	}

	data, err := Aggregate(sheet, mapping)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if !data.CategorySales["Apparel"].Equal(decimal.NewFromInt(250)) {
		t.Fatalf("Apparel = %s", data.CategorySales["Apparel"])
	}
	if !data.CategorySales["Uncategorized"].Equal(decimal.NewFromInt(25)) {
		t.Fatalf("blank category not bucketed: %v", data.CategorySales)
	}

	sum := decimal.Zero
	for _, v := range data.CategorySales {
		sum = sum.Add(v)
	}
	if !sum.Equal(data.NetSales) {
		t.Fatalf("category totals %s do not sum to net %s", sum, data.NetSales)
	}
}

func TestAggregate_LicenseeReportedRoyalty(t *testing.T) {
	t.Parallel()

	sheet := sheetOf([]string{"Net Sales", "Royalty Due"},
		[]string{"100", "8.00"},
		[]string{"200", "16.00"},
	)
	mapping := model.ColumnMapping{
		"Net Sales":   model.FieldNetSales,
		"Royalty Due": model.FieldLicenseeReportedRoyalty,
	}
	data, err := Aggregate(sheet, mapping)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if data.LicenseeReportedRoyalty == nil || !data.LicenseeReportedRoyalty.Equal(decimal.NewFromInt(24)) {
		t.Fatalf("reported royalty = %v, want 24", data.LicenseeReportedRoyalty)
	}
}

func TestAggregate_MissingNetSalesColumn(t *testing.T) {
	t.Parallel()

	sheet := sheetOf([]string{"Product"}, []string{"Widget"})
	_, err := Aggregate(sheet, model.ColumnMapping{"Product": model.FieldIgnore})
	var ce *model.CodedError
	if !errors.As(err, &ce) || ce.Code != model.ErrCodeMissingNetSalesColumn {
		t.Fatalf("expected %s, got %v", model.ErrCodeMissingNetSalesColumn, err)
	}
}

func TestAggregate_NegativeNetRejected(t *testing.T) {
	t.Parallel()

	sheet := sheetOf([]string{"Net Sales"}, []string{"(500)"}, []string{"100"})
	_, err := Aggregate(sheet, model.ColumnMapping{"Net Sales": model.FieldNetSales})
	var ce *model.CodedError
	if !errors.As(err, &ce) || ce.Code != model.ErrCodeNegativeNetSales {
		t.Fatalf("expected %s, got %v", model.ErrCodeNegativeNetSales, err)
	}
}

func TestParseAmount(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"100", "100", true},
		{"$1,250.50", "1250.5", true},
		{"(4,200)", "-4200", true},
		{"-42", "-42", true},
		{"", "0", false},
		{"n/a", "0", false},
	}
	for _, tc := range cases {
		got, ok := parseAmount(tc.in)
		if ok != tc.ok {
			t.Fatalf("parseAmount(%q) ok = %v, want %v", tc.in, ok, tc.ok)
		}
		if ok && got.String() != tc.want {
			t.Fatalf("parseAmount(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}
