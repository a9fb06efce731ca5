package model

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// RateType selects the active variant of a RateSpec.
type RateType string

const (
	RateTypeFlat     RateType = "flat"
	RateTypeTiered   RateType = "tiered"
	RateTypeCategory RateType = "category"
)

// Tier is one marginal bracket of a tiered rate. A nil UpperBound means the
// bracket is open-ended.
type Tier struct {
	LowerBound decimal.Decimal  `json:"lower_bound"`
	UpperBound *decimal.Decimal `json:"upper_bound,omitempty"`
	Rate       decimal.Decimal  `json:"rate"`
}

// CategoryRate is one entry of a per-category rate table. Declared order is
// preserved because it is the tie-break for fuzzy category matching.
type CategoryRate struct {
	Category string          `json:"category"`
	Rate     decimal.Decimal `json:"rate"`
}

// RateSpec is a tagged union with exactly one active variant. Rates are
// decimal fractions (0.08 for 8%).
type RateSpec struct {
	Type          RateType        `json:"type"`
	FlatRate      decimal.Decimal `json:"rate,omitempty"`
	Tiers         []Tier          `json:"tiers,omitempty"`
	CategoryRates []CategoryRate  `json:"rates,omitempty"`
}

// Validate rejects rate specs whose shape does not match a known variant.
func (s RateSpec) Validate() error {
	switch s.Type {
	case RateTypeFlat:
		if s.FlatRate.IsNegative() {
			return NewCodedError(ErrCodeInvalidRateSpec, "flat rate must not be negative")
		}
	case RateTypeTiered:
		if len(s.Tiers) == 0 {
			return NewCodedError(ErrCodeInvalidRateSpec, "tiered rate spec has no tiers")
		}
		for _, t := range s.Tiers {
			if t.UpperBound != nil && t.UpperBound.LessThan(t.LowerBound) {
				return NewCodedError(ErrCodeInvalidRateSpec,
					"tier upper bound %s is below lower bound %s", t.UpperBound, t.LowerBound)
			}
		}
	case RateTypeCategory:
		if len(s.CategoryRates) == 0 {
			return NewCodedError(ErrCodeInvalidRateSpec, "category rate spec has no rates")
		}
	default:
		return NewCodedError(ErrCodeInvalidRateSpec, "unknown rate type %q", s.Type)
	}
	return nil
}

// SortedTiers returns the tiers sorted ascending by lower bound, leaving the
// declared order untouched.
func (s RateSpec) SortedTiers() []Tier {
	tiers := make([]Tier, len(s.Tiers))
	copy(tiers, s.Tiers)
	sort.SliceStable(tiers, func(i, j int) bool {
		return tiers[i].LowerBound.LessThan(tiers[j].LowerBound)
	})
	return tiers
}

// CategoryNames returns the rate-table categories in declared order.
func (s RateSpec) CategoryNames() []string {
	names := make([]string, len(s.CategoryRates))
	for i, cr := range s.CategoryRates {
		names[i] = cr.Category
	}
	return names
}

// GuaranteePeriod is the period a minimum guarantee amount is expressed in.
type GuaranteePeriod string

const (
	PeriodMonthly      GuaranteePeriod = "monthly"
	PeriodQuarterly    GuaranteePeriod = "quarterly"
	PeriodSemiAnnually GuaranteePeriod = "semi_annually"
	PeriodAnnually     GuaranteePeriod = "annually"
)

// PeriodsPerYear returns how many reporting periods of this length fit in a
// contract year. Unknown periods count as annual.
func (p GuaranteePeriod) PeriodsPerYear() int {
	switch p {
	case PeriodMonthly:
		return 12
	case PeriodQuarterly:
		return 4
	case PeriodSemiAnnually:
		return 2
	default:
		return 1
	}
}

// MinimumGuarantee is a contractual minimum royalty. Amount is always the
// guarantee for a full contract year; Period only controls how that amount
// is divided into per-period floors.
type MinimumGuarantee struct {
	Amount decimal.Decimal `json:"amount"`
	Period GuaranteePeriod `json:"period"`
}

// AnnualAmount is the guarantee for a full contract year, which is Amount
// itself. It exists so callers comparing against year-to-date royalties
// state which reading of the guarantee they mean.
func (m MinimumGuarantee) AnnualAmount() decimal.Decimal {
	return m.Amount
}

// Contract holds the terms the royalty engine needs, passed in as plain data.
type Contract struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	LicenseeName       string            `json:"licenseeName"`
	RateSpec           RateSpec          `json:"rateSpec"`
	MinimumGuarantee   *MinimumGuarantee `json:"minimumGuarantee,omitempty"`
	AdvancePayment     decimal.Decimal   `json:"advancePayment"`
	ReportingFrequency GuaranteePeriod   `json:"reportingFrequency"`
	StartDate          time.Time         `json:"startDate"`
	EndDate            time.Time         `json:"endDate"`
	CreatedAt          time.Time         `json:"createdAt"`
}

// ContractYearRange returns the date window [start, end) of contract year n
// (1-based) relative to the contract start date.
func (c Contract) ContractYearRange(year int) (time.Time, time.Time) {
	start := c.StartDate.AddDate(year-1, 0, 0)
	end := c.StartDate.AddDate(year, 0, 0)
	return start, end
}

// SalesPeriod is one confirmed reporting period for a contract.
type SalesPeriod struct {
	ID                      string           `json:"id"`
	ContractID              string           `json:"contractId"`
	PeriodStart             time.Time        `json:"periodStart"`
	PeriodEnd               time.Time        `json:"periodEnd"`
	NetSales                decimal.Decimal  `json:"netSales"`
	RoyaltyCalculated       decimal.Decimal  `json:"royaltyCalculated"`
	LicenseeReportedRoyalty *decimal.Decimal `json:"licenseeReportedRoyalty,omitempty"`
	MinimumApplied          bool             `json:"minimumApplied"`
	SourceFile              string           `json:"sourceFile,omitempty"`
	CreatedAt               time.Time        `json:"createdAt"`
}

// YTDSummary aggregates one contract year for the annual true-up view.
type YTDSummary struct {
	ContractID             string          `json:"contractId"`
	ContractYear           int             `json:"contractYear"`
	PeriodCount            int             `json:"periodCount"`
	TotalNetSales          decimal.Decimal `json:"totalNetSales"`
	TotalRoyalties         decimal.Decimal `json:"totalRoyalties"`
	AnnualMinimum          decimal.Decimal `json:"annualMinimum"`
	GuaranteeShortfall     decimal.Decimal `json:"guaranteeShortfall"`
	AdvancePayment         decimal.Decimal `json:"advancePayment"`
	AdvanceCreditRemaining decimal.Decimal `json:"advanceCreditRemaining"`
}
