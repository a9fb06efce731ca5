package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"royaltydesk/internal/model"
	"royaltydesk/internal/royalty"
)

// CreateContractRequest carries contract terms as plain data. Rates are
// decimal fractions ("0.08" for 8%).
type CreateContractRequest struct {
	Name               string            `json:"name" binding:"required"`
	LicenseeName       string            `json:"licenseeName"`
	RateSpec           model.RateSpec    `json:"rateSpec" binding:"required"`
	MinimumGuarantee   *minimumGuarantee `json:"minimumGuarantee"`
	AdvancePayment     string            `json:"advancePayment"`
	ReportingFrequency string            `json:"reportingFrequency"`
	StartDate          string            `json:"startDate" binding:"required"`
	EndDate            string            `json:"endDate" binding:"required"`
}

type minimumGuarantee struct {
	Amount string `json:"amount" binding:"required"`
	Period string `json:"period" binding:"required"`
}

// CreateContract stores a new contract.
// POST /api/contracts
func (h *Handler) CreateContract(c *gin.Context) {
	var req CreateContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	startDate, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "startDate must be YYYY-MM-DD"})
		return
	}
	endDate, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endDate must be YYYY-MM-DD"})
		return
	}

	contract := model.Contract{
		Name:               req.Name,
		LicenseeName:       req.LicenseeName,
		RateSpec:           req.RateSpec,
		ReportingFrequency: model.GuaranteePeriod(req.ReportingFrequency),
		StartDate:          startDate,
		EndDate:            endDate,
		AdvancePayment:     decimal.Zero,
	}
	if contract.ReportingFrequency == "" {
		contract.ReportingFrequency = model.PeriodQuarterly
	}
	if req.AdvancePayment != "" {
		if contract.AdvancePayment, err = decimal.NewFromString(req.AdvancePayment); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "advancePayment must be a decimal string"})
			return
		}
	}
	if req.MinimumGuarantee != nil {
		amount, err := decimal.NewFromString(req.MinimumGuarantee.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "minimumGuarantee.amount must be a decimal string"})
			return
		}
		contract.MinimumGuarantee = &model.MinimumGuarantee{
			Amount: amount,
			Period: model.GuaranteePeriod(req.MinimumGuarantee.Period),
		}
	}

	created, err := h.store.CreateContract(contract)
	if err != nil {
		abortCoded(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// ListContracts returns all contracts.
// GET /api/contracts
func (h *Handler) ListContracts(c *gin.Context) {
	contracts, err := h.store.ListContracts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if contracts == nil {
		contracts = []model.Contract{}
	}
	c.JSON(http.StatusOK, contracts)
}

// GetContract returns one contract.
// GET /api/contracts/:id
func (h *Handler) GetContract(c *gin.Context) {
	contract, err := h.store.GetContract(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "contract not found"})
		return
	}
	c.JSON(http.StatusOK, contract)
}

// CreatePeriodRequest is the standalone sales-period creation flow: net
// sales are supplied directly instead of coming from an uploaded report.
// This is the only path that may request the per-period minimum floor.
type CreatePeriodRequest struct {
	PeriodStart   string            `json:"periodStart" binding:"required"`
	PeriodEnd     string            `json:"periodEnd" binding:"required"`
	NetSales      string            `json:"netSales" binding:"required"`
	CategorySales map[string]string `json:"categorySales"`
	ApplyMinimum  bool              `json:"applyMinimum"`
}

// CreatePeriod computes and stores a sales period from directly entered
// figures.
// POST /api/contracts/:id/periods
func (h *Handler) CreatePeriod(c *gin.Context) {
	contract, err := h.store.GetContract(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "contract not found"})
		return
	}

	var req CreatePeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	periodStart, err := time.Parse(dateLayout, req.PeriodStart)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "periodStart must be YYYY-MM-DD"})
		return
	}
	periodEnd, err := time.Parse(dateLayout, req.PeriodEnd)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "periodEnd must be YYYY-MM-DD"})
		return
	}
	netSales, err := decimal.NewFromString(req.NetSales)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "netSales must be a decimal string"})
		return
	}

	var breakdown map[string]decimal.Decimal
	if len(req.CategorySales) > 0 {
		breakdown = make(map[string]decimal.Decimal, len(req.CategorySales))
		for category, amount := range req.CategorySales {
			v, err := decimal.NewFromString(amount)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "categorySales values must be decimal strings"})
				return
			}
			breakdown[category] = v
		}
	}

	calculated, minimumApplied, err := royalty.CalculateWithMinimum(
		contract.RateSpec, netSales, breakdown, contract.MinimumGuarantee, req.ApplyMinimum)
	if err != nil {
		abortCoded(c, http.StatusUnprocessableEntity, err)
		return
	}

	period, err := h.store.CreateSalesPeriod(model.SalesPeriod{
		ContractID:        contract.ID,
		PeriodStart:       periodStart,
		PeriodEnd:         periodEnd,
		NetSales:          netSales,
		RoyaltyCalculated: calculated,
		MinimumApplied:    minimumApplied,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"salesPeriod":    period,
		"royalty":        calculated,
		"minimumApplied": minimumApplied,
	})
}

// GetYTDSummary returns the year-to-date totals, the annual-guarantee
// shortfall and the remaining advance credit for a contract year.
// GET /api/contracts/:id/ytd?year=1
func (h *Handler) GetYTDSummary(c *gin.Context) {
	contract, err := h.store.GetContract(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "contract not found"})
		return
	}

	year := 1
	if v := c.Query("year"); v != "" {
		year, err = strconv.Atoi(v)
		if err != nil || year < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "year must be a positive integer"})
			return
		}
	}

	start, end := contract.ContractYearRange(year)
	periods, err := h.store.GetSalesPeriodsInRange(contract.ID, start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	summary := royalty.YTDSummary(contract.ID, year, periods,
		contract.MinimumGuarantee, contract.AdvancePayment)
	c.JSON(http.StatusOK, summary)
}
