package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"royaltydesk/internal/mapping"
	"royaltydesk/internal/model"
	"royaltydesk/internal/reader"
	"royaltydesk/internal/royalty"
	"royaltydesk/internal/sheet"
	"royaltydesk/internal/uploadcache"
)

const dateLayout = "2006-01-02"

// UploadReport parses an uploaded royalty report, classifies its columns and
// caches the result for confirmation.
// POST /api/reports/upload (multipart: file, contract_id)
func (h *Handler) UploadReport(c *gin.Context) {
	contractID := c.PostForm("contract_id")
	if contractID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "contract_id is required"})
		return
	}
	contract, err := h.store.GetContract(contractID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "contract not found"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file uploaded"})
		return
	}
	maxSize := int64(h.cfg.Upload.MaxSizeMB) << 20
	if fileHeader.Size > maxSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("file exceeds %d MB limit", h.cfg.Upload.MaxSizeMB)})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read upload"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read upload"})
		return
	}

	grid, sheetName, err := reader.Read(data, fileHeader.Filename)
	if err != nil {
		h.logImport(contractID, fileHeader.Filename, "error", err.Error())
		abortCoded(c, http.StatusUnprocessableEntity, err)
		return
	}
	parsed, err := sheet.Detect(grid, sheetName)
	if err != nil {
		h.logImport(contractID, fileHeader.Filename, "error", err.Error())
		abortCoded(c, http.StatusUnprocessableEntity, err)
		return
	}

	saved, err := h.store.GetColumnMappings(contractID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	opts := mapping.ClassifyOptions{
		Saved:      saved,
		SampleRows: parsed.SampleRows,
	}
	if h.suggester != nil {
		opts.Suggester = h.suggester
		opts.ContractContext = contractContext(contract)
	}
	columnMapping, sources := mapping.ClassifyColumns(c.Request.Context(), parsed.ColumnNames, opts)

	uploadID := h.uploads.Put(&uploadcache.PendingUpload{
		ContractID: contractID,
		Filename:   fileHeader.Filename,
		Sheet:      parsed,
		Mapping:    columnMapping,
		Sources:    sources,
	})
	h.logImport(contractID, fileHeader.Filename, "pending", "")

	c.JSON(http.StatusOK, gin.H{
		"uploadId":            uploadID,
		"sheetName":           parsed.SheetName,
		"columnNames":         parsed.ColumnNames,
		"mapping":             columnMapping,
		"sources":             sources,
		"sampleRows":          parsed.SampleRows,
		"dataRows":            parsed.DataRows,
		"totalRows":           parsed.TotalRows,
		"metadataPeriodStart": parsed.MetadataPeriodStart,
		"metadataPeriodEnd":   parsed.MetadataPeriodEnd,
	})
}

// ConfirmRequest finalizes a pending upload: the user's mapping edits, the
// reporting period and any manual category aliases.
type ConfirmRequest struct {
	Mapping         map[string]string `json:"mapping"`
	CategoryMapping map[string]string `json:"categoryMapping"`
	PeriodStart     string            `json:"periodStart" binding:"required"`
	PeriodEnd       string            `json:"periodEnd" binding:"required"`
}

// ConfirmUpload aggregates a pending upload under the confirmed mapping,
// computes the royalty and persists the sales period. No per-period minimum
// floor is ever applied here; annual guarantees surface through the YTD
// summary instead.
// POST /api/reports/:uploadId/confirm
func (h *Handler) ConfirmUpload(c *gin.Context) {
	upload, ok := h.uploads.Get(c.Param("uploadId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "upload not found or expired"})
		return
	}

	var req ConfirmRequest
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

	contract, err := h.store.GetContract(upload.ContractID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "contract not found"})
		return
	}

	// User edits win over every automatic layer.
	finalMapping := make(model.ColumnMapping, len(upload.Mapping))
	for col, field := range upload.Mapping {
		finalMapping[col] = field
	}
	for col, field := range req.Mapping {
		f := model.CanonicalField(field)
		if !f.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown field %q for column %q", field, col)})
			return
		}
		finalMapping[col] = f
	}

	mapped, err := mapping.Aggregate(upload.Sheet, finalMapping)
	if err != nil {
		abortCoded(c, http.StatusUnprocessableEntity, err)
		return
	}

	breakdown := mapped.CategorySales
	var confirmedAliases map[string]string
	if contract.RateSpec.Type == model.RateTypeCategory {
		breakdown, confirmedAliases, err = h.resolveBreakdown(c, contract, mapped, req.CategoryMapping)
		if err != nil {
			abortCoded(c, http.StatusUnprocessableEntity, err)
			return
		}
	}

	calculated, err := royalty.Calculate(contract.RateSpec, mapped.NetSales, breakdown)
	if err != nil {
		abortCoded(c, http.StatusUnprocessableEntity, err)
		return
	}

	warnings := crossCheckWarnings(contract, upload.Sheet, periodStart, periodEnd)

	var discrepancy *decimal.Decimal
	if mapped.LicenseeReportedRoyalty != nil {
		d := calculated.Sub(*mapped.LicenseeReportedRoyalty)
		discrepancy = &d
		if !d.IsZero() {
			warnings = append(warnings, fmt.Sprintf(
				"calculated royalty %s differs from licensee-reported %s by %s",
				calculated, mapped.LicenseeReportedRoyalty, d))
		}
	}

	period, err := h.store.CreateSalesPeriod(model.SalesPeriod{
		ContractID:              contract.ID,
		PeriodStart:             periodStart,
		PeriodEnd:               periodEnd,
		NetSales:                mapped.NetSales,
		RoyaltyCalculated:       calculated,
		LicenseeReportedRoyalty: mapped.LicenseeReportedRoyalty,
		MinimumApplied:          false,
		SourceFile:              upload.Filename,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.SaveColumnMappings(contract.ID, finalMapping); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(confirmedAliases) > 0 {
		if err := h.store.SaveCategoryMappings(contract.ID, confirmedAliases); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	h.uploads.Delete(upload.ID)
	h.logImport(contract.ID, upload.Filename, "confirmed", "")

	resp := gin.H{
		"salesPeriod":    period,
		"mappedData":     mapped,
		"royalty":        calculated,
		"minimumApplied": false,
		"warnings":       warnings,
	}
	if discrepancy != nil {
		resp["royaltyDiscrepancy"] = discrepancy
	}
	c.JSON(http.StatusOK, resp)
}

// resolveBreakdown maps the report's category breakdown onto the contract's
// rate-table categories. Unresolved categories are a hard stop surfaced as
// unknown_category so the caller can supply manual aliases.
func (h *Handler) resolveBreakdown(c *gin.Context, contract model.Contract, mapped *model.MappedData, manual map[string]string) (map[string]decimal.Decimal, map[string]string, error) {
	if len(mapped.CategorySales) == 0 {
		return nil, nil, model.NewCodedError(model.ErrCodeCategoryBreakdownRequired,
			"contract uses category rates but no product_category column was mapped")
	}

	saved, err := h.store.GetCategoryMappings(contract.ID)
	if err != nil {
		return nil, nil, err
	}
	for report, alias := range manual {
		saved[report] = alias
	}

	reportCategories := make([]string, 0, len(mapped.CategorySales))
	for rc := range mapped.CategorySales {
		reportCategories = append(reportCategories, rc)
	}

	opts := mapping.ResolveOptions{Saved: saved}
	if h.suggester != nil {
		opts.Suggester = h.suggester
	}
	resolved, sources := mapping.ResolveCategories(c.Request.Context(), reportCategories, contract.RateSpec.CategoryNames(), opts)

	if unresolved := mapping.UnresolvedCategories(reportCategories, sources); len(unresolved) > 0 {
		return nil, nil, model.NewCodedError(model.ErrCodeUnknownCategory,
			"categories need manual resolution: %s", strings.Join(unresolved, ", "))
	}

	breakdown := make(map[string]decimal.Decimal, len(resolved))
	for report, sales := range mapped.CategorySales {
		target := resolved[report]
		breakdown[target] = breakdown[target].Add(sales)
	}
	return breakdown, resolved, nil
}

// crossCheckWarnings compares the report's own metadata and the contract
// terms against the confirmed period. These are advisories, never errors.
func crossCheckWarnings(contract model.Contract, parsed *model.ParsedSheet, periodStart, periodEnd time.Time) []string {
	warnings := []string{}

	if metaStart, ok := parseMetaDate(parsed.MetadataPeriodStart); ok && !metaStart.Equal(periodStart) {
		warnings = append(warnings, fmt.Sprintf(
			"report metadata says the period starts %s but %s was confirmed",
			metaStart.Format(dateLayout), periodStart.Format(dateLayout)))
	}
	if metaEnd, ok := parseMetaDate(parsed.MetadataPeriodEnd); ok && !metaEnd.Equal(periodEnd) {
		warnings = append(warnings, fmt.Sprintf(
			"report metadata says the period ends %s but %s was confirmed",
			metaEnd.Format(dateLayout), periodEnd.Format(dateLayout)))
	}
	if periodStart.Before(contract.StartDate) || periodEnd.After(contract.EndDate) {
		warnings = append(warnings, fmt.Sprintf(
			"period %s to %s falls outside the contract term %s to %s",
			periodStart.Format(dateLayout), periodEnd.Format(dateLayout),
			contract.StartDate.Format(dateLayout), contract.EndDate.Format(dateLayout)))
	}
	return warnings
}

var metaDateLayouts = []string{dateLayout, "01/02/2006", "1/2/2006", "Jan 2, 2006", "January 2, 2006"}

func parseMetaDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range metaDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func contractContext(contract model.Contract) string {
	ctx := fmt.Sprintf("contract %q licensed to %q, %s rate",
		contract.Name, contract.LicenseeName, contract.RateSpec.Type)
	if contract.RateSpec.Type == model.RateTypeCategory {
		ctx += ", categories: " + strings.Join(contract.RateSpec.CategoryNames(), ", ")
	}
	return ctx
}

func (h *Handler) logImport(contractID, filename, status, message string) {
	// The import log is best-effort bookkeeping.
	_ = h.store.LogImport(contractID, filename, status, message)
}
