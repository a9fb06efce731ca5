// Package royalty computes contractual royalties from aggregated sales.
//
// Minimum guarantees are handled in two strictly separate ways. A per-period
// floor (the guarantee divided across the periods of a contract year) is
// applied only when a caller explicitly asks for it via
// CalculateWithMinimum. An annual guarantee is a year-end true-up: it is
// surfaced exclusively through YTDSummary as a shortfall and is never folded
// into a single period's royalty. Collapsing the two once inflated an $800
// quarterly royalty to a $20,000 annual minimum; the split exists to make
// that class of bug impossible.
package royalty

import (
	"strings"

	"github.com/shopspring/decimal"

	"royaltydesk/internal/model"
)

// Calculate computes the royalty owed for one reporting period from a rate
// spec and net sales. Category rate specs additionally require the
// per-category breakdown. All arithmetic is exact decimal; no rounding is
// applied here.
func Calculate(spec model.RateSpec, netSales decimal.Decimal, categoryBreakdown map[string]decimal.Decimal) (decimal.Decimal, error) {
	if err := spec.Validate(); err != nil {
		return decimal.Zero, err
	}

	switch spec.Type {
	case model.RateTypeFlat:
		return netSales.Mul(spec.FlatRate), nil
	case model.RateTypeTiered:
		return calculateTiered(spec, netSales), nil
	case model.RateTypeCategory:
		if len(categoryBreakdown) == 0 {
			return decimal.Zero, model.NewCodedError(model.ErrCodeCategoryBreakdownRequired,
				"category rate spec requires a per-category sales breakdown")
		}
		return calculateCategory(spec, categoryBreakdown)
	}
	// Unreachable: Validate rejects unknown types.
	return decimal.Zero, model.NewCodedError(model.ErrCodeInvalidRateSpec, "unknown rate type %q", spec.Type)
}

// calculateTiered applies marginal brackets: each tier's rate applies only
// to the slice of sales inside that tier. Sales exactly at a boundary stay
// in the lower bracket because the span of the next tier is zero there.
func calculateTiered(spec model.RateSpec, netSales decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, tier := range spec.SortedTiers() {
		upper := netSales
		if tier.UpperBound != nil && tier.UpperBound.LessThan(netSales) {
			upper = *tier.UpperBound
		}
		span := upper.Sub(tier.LowerBound)
		if span.IsPositive() {
			total = total.Add(span.Mul(tier.Rate))
		}
	}
	return total
}

func calculateCategory(spec model.RateSpec, breakdown map[string]decimal.Decimal) (decimal.Decimal, error) {
	total := decimal.Zero
	for category, sales := range breakdown {
		rate, ok := resolveCategoryRate(spec, category)
		if !ok {
			return decimal.Zero, model.NewCodedError(model.ErrCodeNoRateForCategory,
				"no rate found for category %q", category)
		}
		total = total.Add(sales.Mul(rate))
	}
	return total, nil
}

// resolveCategoryRate finds the rate for a report category: exact
// case-insensitive match first, then bidirectional substring match, both in
// the rate table's declared order.
func resolveCategoryRate(spec model.RateSpec, category string) (decimal.Decimal, bool) {
	c := strings.ToLower(strings.TrimSpace(category))
	for _, cr := range spec.CategoryRates {
		if c == strings.ToLower(strings.TrimSpace(cr.Category)) {
			return cr.Rate, true
		}
	}
	for _, cr := range spec.CategoryRates {
		key := strings.ToLower(strings.TrimSpace(cr.Category))
		if key == "" || c == "" {
			continue
		}
		if strings.Contains(c, key) || strings.Contains(key, c) {
			return cr.Rate, true
		}
	}
	return decimal.Zero, false
}

// CalculateWithMinimum computes a period royalty and, only when
// applyPeriodFloor is set, raises it to the guarantee's per-period floor
// (amount divided by the periods in a contract year). The floor applies only
// when the calculated royalty is strictly below it; an exactly-equal royalty
// is not "applied". Callers on the upload-confirmation path must pass
// applyPeriodFloor=false and rely on YTDSummary for annual guarantees.
func CalculateWithMinimum(spec model.RateSpec, netSales decimal.Decimal, categoryBreakdown map[string]decimal.Decimal, guarantee *model.MinimumGuarantee, applyPeriodFloor bool) (decimal.Decimal, bool, error) {
	royalty, err := Calculate(spec, netSales, categoryBreakdown)
	if err != nil {
		return decimal.Zero, false, err
	}
	if !applyPeriodFloor || guarantee == nil || !guarantee.Amount.IsPositive() {
		return royalty, false, nil
	}

	periods := decimal.NewFromInt(int64(guarantee.Period.PeriodsPerYear()))
	floor := guarantee.Amount.Div(periods)
	if royalty.LessThan(floor) {
		return floor, true, nil
	}
	return royalty, false, nil
}

// AdvanceCreditRemaining returns the advance-payment credit left after the
// royalties earned so far. Advances are consumed only within contract year
// 1; any later year has zero credit by definition.
func AdvanceCreditRemaining(advance, royaltiesEarnedYTD decimal.Decimal, contractYear int) decimal.Decimal {
	if contractYear != 1 || !advance.IsPositive() {
		return decimal.Zero
	}
	remaining := advance.Sub(royaltiesEarnedYTD)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// YTDSummary totals the sales periods of one contract year and computes the
// annual-guarantee shortfall and remaining advance credit. An empty period
// set yields zero totals, not an error. The shortfall compares year-to-date
// royalties against the guarantee's full annual amount, regardless of the
// period granularity its floors are applied at.
func YTDSummary(contractID string, contractYear int, periods []model.SalesPeriod, guarantee *model.MinimumGuarantee, advance decimal.Decimal) model.YTDSummary {
	summary := model.YTDSummary{
		ContractID:     contractID,
		ContractYear:   contractYear,
		PeriodCount:    len(periods),
		TotalNetSales:  decimal.Zero,
		TotalRoyalties: decimal.Zero,
		AnnualMinimum:  decimal.Zero,
		AdvancePayment: advance,
	}

	for _, p := range periods {
		summary.TotalNetSales = summary.TotalNetSales.Add(p.NetSales)
		summary.TotalRoyalties = summary.TotalRoyalties.Add(p.RoyaltyCalculated)
	}

	if guarantee != nil && guarantee.Amount.IsPositive() {
		summary.AnnualMinimum = guarantee.AnnualAmount()
		shortfall := summary.AnnualMinimum.Sub(summary.TotalRoyalties)
		if shortfall.IsPositive() {
			summary.GuaranteeShortfall = shortfall
		} else {
			summary.GuaranteeShortfall = decimal.Zero
		}
	} else {
		summary.GuaranteeShortfall = decimal.Zero
	}

	summary.AdvanceCreditRemaining = AdvanceCreditRemaining(advance, summary.TotalRoyalties, contractYear)
	return summary
}
