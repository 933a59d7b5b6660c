package handler

import (
	"net/http"
	"strconv"

	"github.com/evetabi/prediction/internal/config"
	"github.com/evetabi/prediction/internal/repository"
	"github.com/evetabi/prediction/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RiskHandler serves /admin/risk endpoints, backed by the LiquidityMonitor
// and the event log it writes.
type RiskHandler struct {
	liquidityMon *service.LiquidityMonitor
	eventRepo    *repository.LiquidityEventRepository
	cfg          *config.Config
}

// NewRiskHandler creates a RiskHandler.
func NewRiskHandler(
	liquidityMon *service.LiquidityMonitor,
	eventRepo *repository.LiquidityEventRepository,
	cfg *config.Config,
) *RiskHandler {
	return &RiskHandler{liquidityMon: liquidityMon, eventRepo: eventRepo, cfg: cfg}
}

// Live godoc
// GET /admin/risk/live
// Runs an on-demand liquidity scan across every open market.
func (h *RiskHandler) Live(c *gin.Context) {
	report, err := h.liquidityMon.Scan(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	if report == nil {
		respondError(c, http.StatusConflict, "ERR_SCAN_IN_PROGRESS", "a liquidity scan is already running")
		return
	}
	respondSuccess(c, http.StatusOK, report)
}

// Events godoc
// GET /admin/risk/events?limit=50
func (h *RiskHandler) Events(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 500 {
		limit = 50
	}
	events, err := h.eventRepo.ListRecent(c.Request.Context(), limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"events": events})
}

// MarketEvents godoc
// GET /admin/risk/markets/:id/events?limit=50
func (h *RiskHandler) MarketEvents(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid market id")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 500 {
		limit = 50
	}
	events, err := h.eventRepo.ListByMarket(c.Request.Context(), id, limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"events": events})
}
