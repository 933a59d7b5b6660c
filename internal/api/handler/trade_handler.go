package handler

import (
	"net/http"

	"github.com/evetabi/prediction/internal/api/middleware"
	"github.com/evetabi/prediction/internal/domain"
	"github.com/evetabi/prediction/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TradeHandler serves the LMSR AMM's buy/sell endpoints.
type TradeHandler struct {
	trader *service.AMMTrader
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(trader *service.AMMTrader) *TradeHandler {
	return &TradeHandler{trader: trader}
}

// Buy godoc
// POST /api/markets/:id/buy [JWT]
// Body: {"outcome":"yes","amount":"500.00"}
func (h *TradeHandler) Buy(c *gin.Context) {
	userID := middleware.GetUserID(c)

	marketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_MARKET_ID", "invalid market id")
		return
	}

	var body struct {
		Outcome string `json:"outcome" binding:"required"`
		Amount  string `json:"amount"  binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	amount, err := decimal.NewFromString(body.Amount)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "amount must be a decimal string")
		return
	}

	result, err := h.trader.Buy(c.Request.Context(), userID, marketID, domain.Outcome(body.Outcome), amount)
	if err != nil {
		respondTradeError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, result)
}

// Sell godoc
// POST /api/markets/:id/sell [JWT]
// Body: {"outcome":"yes","shares":"120.0000"}
func (h *TradeHandler) Sell(c *gin.Context) {
	userID := middleware.GetUserID(c)

	marketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_MARKET_ID", "invalid market id")
		return
	}

	var body struct {
		Outcome string `json:"outcome" binding:"required"`
		Shares  string `json:"shares"  binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	shares, err := decimal.NewFromString(body.Shares)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_SHARES", "shares must be a decimal string")
		return
	}

	result, err := h.trader.Sell(c.Request.Context(), userID, marketID, domain.Outcome(body.Outcome), shares)
	if err != nil {
		respondTradeError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, result)
}

// respondTradeError maps a domain error to the stable HTTP status/code pairs
// shared by every trading-core write endpoint (buy, sell, place_order,
// cancel_order, private-bet writes).
func respondTradeError(c *gin.Context, err error) {
	switch {
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
	case domain.IsAuthzError(err):
		respondError(c, http.StatusForbidden, "ERR_FORBIDDEN", err.Error())
	case domain.IsInsufficientResources(err):
		respondError(c, http.StatusBadRequest, "ERR_INSUFFICIENT_RESOURCES", err.Error())
	case domain.IsStateError(err):
		respondError(c, http.StatusBadRequest, "ERR_STATE", err.Error())
	case domain.IsConflict(err):
		respondError(c, http.StatusInternalServerError, "ERR_CONFLICT", err.Error())
	case err == domain.ErrInvalidOutcome, err == domain.ErrInvalidAmount,
		err == domain.ErrInvalidPrice, err == domain.ErrInvalidQuantity,
		err == domain.ErrAmountOutOfRange, err == domain.ErrInvalidIntent:
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "request could not be completed")
	}
}
