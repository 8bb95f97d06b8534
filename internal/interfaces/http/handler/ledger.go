package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	appsettlement "github.com/storefront/backend/internal/application/settlement"
	"github.com/storefront/backend/internal/infrastructure/auth"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// maxLinkLifetime bounds the expires_in a caller may ask for
const maxLinkLifetime = 7 * 24 * time.Hour

// LedgerHandler serves cross-agent ledger views, day exports and the
// maintenance operations (projection rebuild, verification)
type LedgerHandler struct {
	BaseHandler
	service  *appsettlement.SettlementService
	exporter *appsettlement.LedgerExporter
	linkTTL  time.Duration
}

// NewLedgerHandler creates a new LedgerHandler. linkTTL is the default
// lifetime of export download links.
func NewLedgerHandler(service *appsettlement.SettlementService, exporter *appsettlement.LedgerExporter, linkTTL time.Duration) *LedgerHandler {
	if linkTTL <= 0 {
		linkTTL = 15 * time.Minute
	}
	return &LedgerHandler{service: service, exporter: exporter, linkTTL: linkTTL}
}

// RegisterRoutes mounts the /ledger routes
func (h *LedgerHandler) RegisterRoutes(rg *gin.RouterGroup) {
	read := middleware.RequireAnyPermission(auth.PermSettlementRead, auth.PermSettlementWrite)
	export := middleware.RequirePermission(auth.PermLedgerExport)
	admin := middleware.RequirePermission(auth.PermSettlementSettle)

	ledger := rg.Group("/ledger")
	ledger.GET("/days/:date", read, h.Day)
	ledger.GET("/days/:date/download", export, h.Download)
	ledger.POST("/exports/:date", export, h.Export)
	ledger.GET("/exports/:date", export, h.ExportLink)
	ledger.POST("/rebuild", admin, h.Rebuild)
	ledger.GET("/verify/:id", read, h.Verify)
}

// Day handles GET /ledger/days/:date
func (h *LedgerHandler) Day(c *gin.Context) {
	day, ok := h.ParseDay(c, c.Param("date"))
	if !ok {
		return
	}
	entries, err := h.service.LedgerForDay(c.Request.Context(), *day)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entries)
}

// Download handles GET /ledger/days/:date/download, streaming the day as
// JSON lines without touching the object store
func (h *LedgerHandler) Download(c *gin.Context) {
	day, ok := h.ParseDay(c, c.Param("date"))
	if !ok {
		return
	}
	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Content-Disposition", `attachment; filename="ledger-`+c.Param("date")+`.jsonl"`)
	c.Status(http.StatusOK)

	n, err := h.exporter.WriteDay(c.Request.Context(), *day, c.Writer)
	if err != nil {
		if n == 0 && !c.Writer.Written() {
			c.Writer.Header().Del("Content-Type")
			c.Writer.Header().Del("Content-Disposition")
			h.HandleError(c, err)
			return
		}
		// headers are gone, the client sees a truncated body
		_ = c.Error(err)
		logger.L(c.Request.Context()).Error("ledger download interrupted",
			zap.String("date", c.Param("date")), zap.Int("entries", n), zap.Error(err))
	}
}

// Export handles POST /ledger/exports/:date
func (h *LedgerHandler) Export(c *gin.Context) {
	day, ok := h.ParseDay(c, c.Param("date"))
	if !ok {
		return
	}
	result, err := h.exporter.ExportDay(c.Request.Context(), *day)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// ExportLink handles GET /ledger/exports/:date?expires_in=1h
func (h *LedgerHandler) ExportLink(c *gin.Context) {
	day, ok := h.ParseDay(c, c.Param("date"))
	if !ok {
		return
	}
	ttl := h.linkTTL
	if raw := c.Query("expires_in"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 || d > maxLinkLifetime {
			h.BadRequest(c, "expires_in must be a positive duration up to 168h")
			return
		}
		ttl = d
	}
	link, err := h.exporter.DownloadLink(c.Request.Context(), *day, ttl)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, link)
}

// Rebuild handles POST /ledger/rebuild
func (h *LedgerHandler) Rebuild(c *gin.Context) {
	result, err := h.service.RebuildProjections(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Verify handles GET /ledger/verify/:id
func (h *LedgerHandler) Verify(c *gin.Context) {
	id, ok := h.ParseUUID(c, "id")
	if !ok {
		return
	}
	report, err := h.service.VerifyAgent(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}
