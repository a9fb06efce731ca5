package mapping

import (
	"strings"

	"github.com/shopspring/decimal"

	"royaltydesk/internal/model"
)

// uncategorizedKey collects per-row sales whose category cell is blank even
// after forward fill, so category totals still sum to net sales.
const uncategorizedKey = "Uncategorized"

// Aggregate applies a resolved column mapping to every data row of a parsed
// sheet. Net sales come from columns mapped to net_sales directly, or are
// derived per row as gross minus returns (gross alone counts as net when no
// returns column is mapped). When a product_category column is mapped the
// per-row net is also accumulated per category; a licensee-reported royalty
// column is summed independently for later discrepancy comparison.
func Aggregate(sheet *model.ParsedSheet, mapping model.ColumnMapping) (*model.MappedData, error) {
	var netCols, grossCols, returnCols, royaltyCols []string
	categoryCol := ""
	for _, name := range sheet.ColumnNames {
		switch mapping[name] {
		case model.FieldNetSales:
			netCols = append(netCols, name)
		case model.FieldGrossSales:
			grossCols = append(grossCols, name)
		case model.FieldReturns:
			returnCols = append(returnCols, name)
		case model.FieldLicenseeReportedRoyalty:
			royaltyCols = append(royaltyCols, name)
		case model.FieldProductCategory:
			if categoryCol == "" {
				categoryCol = name
			}
		}
	}

	if len(netCols) == 0 && len(grossCols) == 0 {
		return nil, model.NewCodedError(model.ErrCodeMissingNetSalesColumn,
			"no column is mapped to net_sales or gross_sales")
	}

	deriveFromGross := len(netCols) == 0

	netTotal := decimal.Zero
	grossTotal := decimal.Zero
	returnsTotal := decimal.Zero
	royaltyTotal := decimal.Zero
	royaltySeen := false
	var categorySales map[string]decimal.Decimal
	if categoryCol != "" {
		categorySales = make(map[string]decimal.Decimal)
	}

	for _, row := range sheet.AllRows {
		var rowNet decimal.Decimal
		if deriveFromGross {
			rowGross := sumCells(row, grossCols)
			rowReturns := sumCells(row, returnCols)
			rowNet = rowGross.Sub(rowReturns)
			grossTotal = grossTotal.Add(rowGross)
			returnsTotal = returnsTotal.Add(rowReturns)
		} else {
			rowNet = sumCells(row, netCols)
		}
		netTotal = netTotal.Add(rowNet)

		if categorySales != nil {
			key := strings.TrimSpace(row[categoryCol])
			if key == "" {
				key = uncategorizedKey
			}
			categorySales[key] = categorySales[key].Add(rowNet)
		}

		for _, col := range royaltyCols {
			if v, ok := parseAmount(row[col]); ok {
				royaltyTotal = royaltyTotal.Add(v)
				royaltySeen = true
			}
		}
	}

	if netTotal.IsNegative() {
		return nil, model.NewCodedError(model.ErrCodeNegativeNetSales,
			"aggregated net sales is negative (%s)", netTotal.String())
	}

	data := &model.MappedData{
		NetSales:      netTotal,
		CategorySales: categorySales,
	}
	if deriveFromGross {
		g, r := grossTotal, returnsTotal
		data.GrossSales = &g
		data.Returns = &r
	}
	if len(royaltyCols) > 0 && royaltySeen {
		rr := royaltyTotal
		data.LicenseeReportedRoyalty = &rr
	}
	return data, nil
}

func sumCells(row map[string]string, cols []string) decimal.Decimal {
	total := decimal.Zero
	for _, col := range cols {
		if v, ok := parseAmount(row[col]); ok {
			total = total.Add(v)
		}
	}
	return total
}

// parseAmount reads a spreadsheet money cell: currency symbols, thousands
// separators and accounting-style parentheses for negatives are tolerated.
func parseAmount(cell string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return decimal.Zero, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer("$", "", ",", "", "%", "", " ", "").Replace(s)
	if s == "" {
		return decimal.Zero, false
	}

	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		v = v.Neg()
	}
	return v, true
}
