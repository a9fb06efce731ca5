package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"royaltydesk/internal/config"
	"royaltydesk/internal/model"
	"royaltydesk/internal/store"
	"royaltydesk/internal/uploadcache"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestAPI(t *testing.T) (*gin.Engine, *store.Store) {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.DefaultConfig()
	h := New(st, uploadcache.New(time.Minute), nil, cfg)

	router := gin.New()
	h.RegisterRoutes(router.Group("/api"))
	return router, st
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := map[string]interface{}{}
	if w.Body.Len() > 0 && w.Body.Bytes()[0] == '{' {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}
	return w, resp
}

func uploadCSV(t *testing.T, router *gin.Engine, contractID, filename, content string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("contract_id", contractID); err != nil {
		t.Fatalf("write field: %v", err)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("write file: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/reports/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := map[string]interface{}{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode upload response %q: %v", w.Body.String(), err)
	}
	return w, resp
}

func flatContract(t *testing.T, st *store.Store) model.Contract {
	t.Helper()
	c, err := st.CreateContract(model.Contract{
		Name:         "Acme Apparel License",
		LicenseeName: "Acme Corp",
		RateSpec: model.RateSpec{
			Type:     model.RateTypeFlat,
			FlatRate: decimal.RequireFromString("0.08"),
		},
		MinimumGuarantee: &model.MinimumGuarantee{
			// 20000 per contract year, prorated to 5000 quarterly floors.
			Amount: decimal.RequireFromString("20000"),
			Period: model.PeriodQuarterly,
		},
		AdvancePayment:     decimal.RequireFromString("10000"),
		ReportingFrequency: model.PeriodQuarterly,
		StartDate:          time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:            time.Date(2027, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}
	return c
}

func TestUploadConfirmYTDFlow(t *testing.T) {
	t.Parallel()

	router, st := newTestAPI(t)
	contract := flatContract(t, st)

	csv := "Product,Gross Sales,Returns\n" +
		"Widget,50000,2500\n" +
		"Gadget,37500,1700\n" +
		"Total,87500,4200\n"
	w, resp := uploadCSV(t, router, contract.ID, "q1.csv", csv)
	if w.Code != http.StatusOK {
		t.Fatalf("upload status %d: %s", w.Code, w.Body.String())
	}
	uploadID, _ := resp["uploadId"].(string)
	if uploadID == "" {
		t.Fatalf("no uploadId in response: %v", resp)
	}
	mapping, _ := resp["mapping"].(map[string]interface{})
	if mapping["Gross Sales"] != "gross_sales" || mapping["Returns"] != "returns" {
		t.Fatalf("keyword classification missing from preview: %v", mapping)
	}
	if resp["dataRows"].(float64) != 2 {
		t.Fatalf("summary row counted as data: %v", resp["dataRows"])
	}

	w, resp = doJSON(t, router, http.MethodPost, "/api/reports/"+uploadID+"/confirm", ConfirmRequest{
		PeriodStart: "2025-01-01",
		PeriodEnd:   "2025-03-31",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("confirm status %d: %s", w.Code, w.Body.String())
	}
	// Net 87500 - 4200 = 83300 at 8%.
	if resp["royalty"] != "6664" {
		t.Fatalf("royalty = %v, want 6664", resp["royalty"])
	}
	if resp["minimumApplied"] != false {
		t.Fatalf("report confirmation must never apply a period minimum")
	}
	period, _ := resp["salesPeriod"].(map[string]interface{})
	if period["netSales"] != "83300" {
		t.Fatalf("net sales = %v, want 83300", period["netSales"])
	}

	// The confirmed mapping becomes the saved mapping for the next upload.
	saved, err := st.GetColumnMappings(contract.ID)
	if err != nil {
		t.Fatalf("get saved mappings: %v", err)
	}
	if saved["Gross Sales"] != model.FieldGrossSales {
		t.Fatalf("confirmed mapping not saved: %v", saved)
	}

	// A confirmed upload cannot be confirmed twice.
	w, _ = doJSON(t, router, http.MethodPost, "/api/reports/"+uploadID+"/confirm", ConfirmRequest{
		PeriodStart: "2025-01-01",
		PeriodEnd:   "2025-03-31",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("second confirm status %d, want 404", w.Code)
	}

	w, resp = doJSON(t, router, http.MethodGet, "/api/contracts/"+contract.ID+"/ytd?year=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ytd status %d: %s", w.Code, w.Body.String())
	}
	if resp["totalRoyalties"] != "6664" {
		t.Fatalf("ytd royalties = %v, want 6664", resp["totalRoyalties"])
	}
	if resp["annualMinimum"] != "20000" {
		t.Fatalf("annual minimum = %v, want 20000", resp["annualMinimum"])
	}
	if resp["guaranteeShortfall"] != "13336" {
		t.Fatalf("shortfall = %v, want 13336", resp["guaranteeShortfall"])
	}
	if resp["advanceCreditRemaining"] != "3336" {
		t.Fatalf("advance credit = %v, want 3336", resp["advanceCreditRemaining"])
	}
}

func TestConfirmUpload_AnnualGuaranteeStaysOutOfPeriodRoyalty(t *testing.T) {
	t.Parallel()

	router, st := newTestAPI(t)
	contract, err := st.CreateContract(model.Contract{
		Name:         "Annual MG License",
		LicenseeName: "Acme Corp",
		RateSpec: model.RateSpec{
			Type:     model.RateTypeFlat,
			FlatRate: decimal.RequireFromString("0.08"),
		},
		MinimumGuarantee: &model.MinimumGuarantee{
			Amount: decimal.RequireFromString("20000"),
			Period: model.PeriodAnnually,
		},
		AdvancePayment:     decimal.Zero,
		ReportingFrequency: model.PeriodQuarterly,
		StartDate:          time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:            time.Date(2027, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}

	w, resp := uploadCSV(t, router, contract.ID, "q1.csv", "Product,Net Sales\nWidget,10000\n")
	if w.Code != http.StatusOK {
		t.Fatalf("upload status %d: %s", w.Code, w.Body.String())
	}
	uploadID := resp["uploadId"].(string)

	w, resp = doJSON(t, router, http.MethodPost, "/api/reports/"+uploadID+"/confirm", ConfirmRequest{
		PeriodStart: "2025-01-01",
		PeriodEnd:   "2025-03-31",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("confirm status %d: %s", w.Code, w.Body.String())
	}
	// A quarter earning 800 must stay 800; the 20000 annual guarantee is a
	// year-end true-up, never a substitute for the period royalty.
	if resp["royalty"] != "800" {
		t.Fatalf("royalty = %v, want 800", resp["royalty"])
	}
	if resp["minimumApplied"] != false {
		t.Fatalf("annual guarantee must not mark the period as minimum-applied")
	}

	w, resp = doJSON(t, router, http.MethodGet, "/api/contracts/"+contract.ID+"/ytd?year=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ytd status %d: %s", w.Code, w.Body.String())
	}
	if resp["annualMinimum"] != "20000" {
		t.Fatalf("annual minimum = %v, want 20000", resp["annualMinimum"])
	}
	if resp["guaranteeShortfall"] != "19200" {
		t.Fatalf("shortfall = %v, want 19200", resp["guaranteeShortfall"])
	}
}

func TestConfirmUpload_UserEditsOverrideClassification(t *testing.T) {
	t.Parallel()

	router, st := newTestAPI(t)
	contract := flatContract(t, st)

	csv := "Mystery Column,Gross Sales\nWidget,1000\n"
	w, resp := uploadCSV(t, router, contract.ID, "q2.csv", csv)
	if w.Code != http.StatusOK {
		t.Fatalf("upload status %d: %s", w.Code, w.Body.String())
	}
	uploadID := resp["uploadId"].(string)

	// Re-point gross to net via a manual edit.
	w, resp = doJSON(t, router, http.MethodPost, "/api/reports/"+uploadID+"/confirm", ConfirmRequest{
		Mapping:     map[string]string{"Gross Sales": "net_sales"},
		PeriodStart: "2025-04-01",
		PeriodEnd:   "2025-06-30",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("confirm status %d: %s", w.Code, w.Body.String())
	}
	period := resp["salesPeriod"].(map[string]interface{})
	if period["netSales"] != "1000" {
		t.Fatalf("net sales = %v, want 1000", period["netSales"])
	}
}

func TestConfirmUpload_UnknownCategoryHardStop(t *testing.T) {
	t.Parallel()

	router, st := newTestAPI(t)
	contract, err := st.CreateContract(model.Contract{
		Name: "Category Contract",
		RateSpec: model.RateSpec{
			Type: model.RateTypeCategory,
			CategoryRates: []model.CategoryRate{
				{Category: "Apparel", Rate: decimal.RequireFromString("0.08")},
			},
		},
		AdvancePayment:     decimal.Zero,
		ReportingFrequency: model.PeriodQuarterly,
		StartDate:          time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:            time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}

	csv := "Category,Net Sales\nApparel,1000\nPosters,500\n"
	w, resp := uploadCSV(t, router, contract.ID, "q1.csv", csv)
	if w.Code != http.StatusOK {
		t.Fatalf("upload status %d: %s", w.Code, w.Body.String())
	}
	uploadID := resp["uploadId"].(string)

	confirm := ConfirmRequest{PeriodStart: "2025-01-01", PeriodEnd: "2025-03-31"}
	w, resp = doJSON(t, router, http.MethodPost, "/api/reports/"+uploadID+"/confirm", confirm)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, want 422 for unresolved category", w.Code)
	}
	if resp["code"] != string(model.ErrCodeUnknownCategory) {
		t.Fatalf("error code = %v, want %s", resp["code"], model.ErrCodeUnknownCategory)
	}

	// The upload stays pending; a manual alias resolves it.
	confirm.CategoryMapping = map[string]string{"Posters": "Apparel"}
	w, resp = doJSON(t, router, http.MethodPost, "/api/reports/"+uploadID+"/confirm", confirm)
	if w.Code != http.StatusOK {
		t.Fatalf("confirm with alias status %d: %s", w.Code, w.Body.String())
	}
	if resp["royalty"] != "120" {
		t.Fatalf("royalty = %v, want 120 (1500 at 8%%)", resp["royalty"])
	}

	aliases, err := st.GetCategoryMappings(contract.ID)
	if err != nil {
		t.Fatalf("get aliases: %v", err)
	}
	if aliases["Posters"] != "Apparel" {
		t.Fatalf("manual alias not saved: %v", aliases)
	}
}

func TestContractAPI(t *testing.T) {
	t.Parallel()

	router, _ := newTestAPI(t)

	w, resp := doJSON(t, router, http.MethodPost, "/api/contracts", map[string]interface{}{
		"name":         "Acme Apparel License",
		"licenseeName": "Acme Corp",
		"rateSpec":     map[string]interface{}{"type": "flat", "rate": "0.08"},
		"minimumGuarantee": map[string]interface{}{
			"amount": "5000",
			"period": "quarterly",
		},
		"advancePayment": "10000",
		"startDate":      "2025-01-01",
		"endDate":        "2027-12-31",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", w.Code, w.Body.String())
	}
	id, _ := resp["id"].(string)
	if id == "" {
		t.Fatalf("no contract id: %v", resp)
	}

	w, resp = doJSON(t, router, http.MethodGet, "/api/contracts/"+id, nil)
	if w.Code != http.StatusOK || resp["name"] != "Acme Apparel License" {
		t.Fatalf("get status %d: %v", w.Code, resp)
	}

	w, _ = doJSON(t, router, http.MethodGet, "/api/contracts/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing contract status %d, want 404", w.Code)
	}

	w, resp = doJSON(t, router, http.MethodPost, "/api/contracts", map[string]interface{}{
		"name":      "Broken",
		"rateSpec":  map[string]interface{}{"type": "tiered"},
		"startDate": "2025-01-01",
		"endDate":   "2026-01-01",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid rate spec status %d, want 400", w.Code)
	}
	if resp["code"] != string(model.ErrCodeInvalidRateSpec) {
		t.Fatalf("error code = %v, want %s", resp["code"], model.ErrCodeInvalidRateSpec)
	}
}

func TestCreatePeriod_ManualFloor(t *testing.T) {
	t.Parallel()

	router, st := newTestAPI(t)
	contract := flatContract(t, st)

	w, resp := doJSON(t, router, http.MethodPost, "/api/contracts/"+contract.ID+"/periods", CreatePeriodRequest{
		PeriodStart:  "2025-01-01",
		PeriodEnd:    "2025-03-31",
		NetSales:     "10000",
		ApplyMinimum: true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create period status %d: %s", w.Code, w.Body.String())
	}
	// Calculated 800 is below the quarterly floor of 5000.
	if resp["royalty"] != "5000" || resp["minimumApplied"] != true {
		t.Fatalf("royalty=%v minimumApplied=%v, want 5000/true", resp["royalty"], resp["minimumApplied"])
	}

	w, resp = doJSON(t, router, http.MethodPost, "/api/contracts/"+contract.ID+"/periods", CreatePeriodRequest{
		PeriodStart: "2025-04-01",
		PeriodEnd:   "2025-06-30",
		NetSales:    "10000",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create period status %d: %s", w.Code, w.Body.String())
	}
	if resp["royalty"] != "800" || resp["minimumApplied"] != false {
		t.Fatalf("without applyMinimum the royalty stays as calculated: %v/%v",
			resp["royalty"], resp["minimumApplied"])
	}
}

func TestUploadReport_Validation(t *testing.T) {
	t.Parallel()

	router, st := newTestAPI(t)
	contract := flatContract(t, st)

	w, _ := uploadCSV(t, router, "missing", "q1.csv", "Net Sales\n100\n")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown contract status %d, want 404", w.Code)
	}

	w, resp := uploadCSV(t, router, contract.ID, "report.pdf", "not a report")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("pdf upload status %d, want 422", w.Code)
	}
	if resp["code"] != string(model.ErrCodeUnsupportedFormat) {
		t.Fatalf("error code = %v, want %s", resp["code"], model.ErrCodeUnsupportedFormat)
	}
}

func TestStatusAndConfig(t *testing.T) {
	t.Parallel()

	router, _ := newTestAPI(t)

	w, resp := doJSON(t, router, http.MethodGet, "/api/status", nil)
	if w.Code != http.StatusOK || resp["status"] != "ok" {
		t.Fatalf("status endpoint: %d %v", w.Code, resp)
	}
	if resp["aiEnabled"] != false {
		t.Fatalf("aiEnabled should be false without a suggester")
	}

	w, resp = doJSON(t, router, http.MethodGet, "/api/config", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("config endpoint: %d", w.Code)
	}
	if _, ok := resp["uploadTTLMinutes"]; !ok {
		t.Fatalf("config missing uploadTTLMinutes: %v", resp)
	}
}
