// Package handlers wires the parsing, mapping and royalty packages to the
// HTTP API. Handlers are thin: they move plain data across the boundaries
// and hold no calculation logic of their own.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"royaltydesk/internal/config"
	"royaltydesk/internal/mapping"
	"royaltydesk/internal/model"
	"royaltydesk/internal/store"
	"royaltydesk/internal/uploadcache"
)

// Suggester bundles both AI collaborator roles; a nil Suggester disables the
// AI resolution layer entirely.
type Suggester interface {
	mapping.ColumnSuggester
	mapping.CategorySuggester
}

// Handler holds the API dependencies.
type Handler struct {
	store     *store.Store
	uploads   *uploadcache.Cache
	suggester Suggester
	cfg       *config.AppConfig
}

// New creates the API handler. suggester may be nil.
func New(st *store.Store, uploads *uploadcache.Cache, suggester Suggester, cfg *config.AppConfig) *Handler {
	return &Handler{
		store:     st,
		uploads:   uploads,
		suggester: suggester,
		cfg:       cfg,
	}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/status", h.GetStatus)
	router.GET("/config", h.GetConfig)

	router.POST("/contracts", h.CreateContract)
	router.GET("/contracts", h.ListContracts)
	router.GET("/contracts/:id", h.GetContract)
	router.POST("/contracts/:id/periods", h.CreatePeriod)
	router.GET("/contracts/:id/ytd", h.GetYTDSummary)

	router.POST("/reports/upload", h.UploadReport)
	router.POST("/reports/:uploadId/confirm", h.ConfirmUpload)
}

// GetStatus reports service health.
// GET /api/status
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"aiEnabled":      h.suggester != nil,
		"pendingUploads": h.uploads.Len(),
	})
}

// GetConfig exposes the non-sensitive runtime configuration.
// GET /api/config
func (h *Handler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"uploadTTLMinutes": h.cfg.Upload.TTLMinutes,
		"maxUploadSizeMB":  h.cfg.Upload.MaxSizeMB,
		"aiEnabled":        h.suggester != nil,
		"aiModel":          h.cfg.AI.Model,
	})
}

// abortCoded writes a CodedError (or a generic internal error) as JSON.
func abortCoded(c *gin.Context, status int, err error) {
	if ce, ok := err.(*model.CodedError); ok {
		c.JSON(status, gin.H{"code": ce.Code, "error": ce.Message})
		return
	}
	c.JSON(status, gin.H{"code": model.ErrorCode(err), "error": err.Error()})
}
