package handler

import (
	"net/http"
	"time"

	"github.com/evetabi/prediction/internal/config"
	"github.com/evetabi/prediction/internal/domain"
	"github.com/evetabi/prediction/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MarketAdminHandler serves /admin/markets endpoints.
type MarketAdminHandler struct {
	marketSvc     *service.MarketService
	resolutionSvc *service.ResolutionService
	cfg           *config.Config
}

// NewMarketAdminHandler creates a MarketAdminHandler.
func NewMarketAdminHandler(
	marketSvc *service.MarketService,
	resolutionSvc *service.ResolutionService,
	cfg *config.Config,
) *MarketAdminHandler {
	return &MarketAdminHandler{marketSvc: marketSvc, resolutionSvc: resolutionSvc, cfg: cfg}
}

// List godoc
// GET /admin/markets?status=open&page=1&limit=20
func (h *MarketAdminHandler) List(c *gin.Context) {
	status := c.Query("status")
	page, limit := adminPagination(c)
	offset := (page - 1) * limit

	markets, total, err := h.marketSvc.List(c.Request.Context(), limit, offset, status)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondList(c, markets, total, page, limit)
}

// Detail godoc
// GET /admin/markets/:id
func (h *MarketAdminHandler) Detail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid market id")
		return
	}

	market, err := h.marketSvc.Get(c.Request.Context(), id)
	if err != nil {
		if err == domain.ErrMarketNotFound {
			respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"market": market})
}

// Create godoc
// POST /admin/markets
// Body: {"question":"...", "mechanism":"lmsr", "closes_at":"...",
//        "min_bet":"1", "max_bet":"1000", "liquidity_b":"100"}
func (h *MarketAdminHandler) Create(c *gin.Context) {
	var body struct {
		Question   string    `json:"question"   binding:"required"`
		Mechanism  string    `json:"mechanism"  binding:"required"`
		ClosesAt   time.Time `json:"closes_at"  binding:"required"`
		MinBet     string    `json:"min_bet"`
		MaxBet     string    `json:"max_bet"`
		LiquidityB string    `json:"liquidity_b"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	minBet, _ := decimal.NewFromString(body.MinBet)
	maxBet, _ := decimal.NewFromString(body.MaxBet)
	liquidityB, _ := decimal.NewFromString(body.LiquidityB)

	market, err := h.marketSvc.CreateMarket(
		c.Request.Context(), body.Question, domain.Mechanism(body.Mechanism),
		body.ClosesAt, minBet, maxBet, liquidityB,
	)
	if err != nil {
		if err == domain.ErrWrongMechanism {
			respondError(c, http.StatusBadRequest, "ERR_INVALID_MECHANISM", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusCreated, market)
}

// Update godoc
// POST /admin/markets/:id/update
// Body: {"closes_at":"...", "min_bet":"1", "max_bet":"1000"}
func (h *MarketAdminHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid market id")
		return
	}
	var body struct {
		ClosesAt time.Time `json:"closes_at" binding:"required"`
		MinBet   string    `json:"min_bet"   binding:"required"`
		MaxBet   string    `json:"max_bet"   binding:"required"`
	}
	if err = c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	minBet, err1 := decimal.NewFromString(body.MinBet)
	maxBet, err2 := decimal.NewFromString(body.MaxBet)
	if err1 != nil || err2 != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "min_bet/max_bet must be decimal strings")
		return
	}

	if err = h.marketSvc.UpdateMarket(c.Request.Context(), id, body.ClosesAt, minBet, maxBet); err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"market_id": id, "status": "updated"})
}

// Cancel godoc
// POST /admin/markets/:id/cancel
func (h *MarketAdminHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid market id")
		return
	}
	if err = h.resolutionSvc.CancelMarket(c.Request.Context(), id); err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "cancelled", "market_id": id})
}

// Resolve godoc
// POST /admin/markets/:id/resolve
// Body: {"outcome": "yes"}
// Manual resolution bypasses the scheduler's resolve_expired_voting /
// close_expired_markets jobs and is used for emergency overrides.
func (h *MarketAdminHandler) Resolve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid market id")
		return
	}
	var body struct {
		Outcome string `json:"outcome" binding:"required"`
	}
	if err = c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	outcome := domain.Outcome(body.Outcome)
	if !outcome.IsValid() {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_OUTCOME", "outcome must be yes or no")
		return
	}

	if err = h.resolutionSvc.ResolveMarket(c.Request.Context(), id, outcome); err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"market_id": id, "outcome": outcome})
}
