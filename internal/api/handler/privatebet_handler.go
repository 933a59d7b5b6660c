package handler

import (
	"net/http"
	"time"

	"github.com/evetabi/prediction/internal/api/middleware"
	"github.com/evetabi/prediction/internal/domain"
	"github.com/evetabi/prediction/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PrivateBetHandler serves the small-group vote-resolved bet endpoints.
type PrivateBetHandler struct {
	betSvc *service.PrivateBetService
}

// NewPrivateBetHandler creates a PrivateBetHandler.
func NewPrivateBetHandler(betSvc *service.PrivateBetService) *PrivateBetHandler {
	return &PrivateBetHandler{betSvc: betSvc}
}

// Create godoc
// POST /api/private-bets [JWT]
// Body: {"question":"...","stake_amount":"100","closes_at":"2026-08-01T00:00:00Z","outcome":"yes"}
func (h *PrivateBetHandler) Create(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var body struct {
		Question    string    `json:"question"     binding:"required"`
		StakeAmount string    `json:"stake_amount" binding:"required"`
		ClosesAt    time.Time `json:"closes_at"    binding:"required"`
		Outcome     string    `json:"outcome"      binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	stake, err := decimal.NewFromString(body.StakeAmount)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "stake_amount must be a decimal string")
		return
	}

	bet, err := h.betSvc.Create(c.Request.Context(), userID, body.Question, stake, body.ClosesAt, domain.Outcome(body.Outcome))
	if err != nil {
		respondTradeError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, bet)
}

// Join godoc
// POST /api/private-bets/by-code/:code/join [JWT]
// Body: {"outcome":"no"}
func (h *PrivateBetHandler) Join(c *gin.Context) {
	userID := middleware.GetUserID(c)
	code := c.Param("code")

	var body struct {
		Outcome string `json:"outcome" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	bet, err := h.betSvc.Join(c.Request.Context(), userID, code, domain.Outcome(body.Outcome))
	if err != nil {
		respondTradeError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, bet)
}

// StartVoting godoc
// POST /api/private-bets/:id/start-voting [JWT, creator only]
func (h *PrivateBetHandler) StartVoting(c *gin.Context) {
	userID := middleware.GetUserID(c)

	betID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_BET_ID", "invalid bet id")
		return
	}

	bet, err := h.betSvc.StartVoting(c.Request.Context(), betID, userID)
	if err != nil {
		respondTradeError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, bet)
}

// CastVote godoc
// POST /api/private-bets/:id/vote [JWT, participant only]
// Body: {"vote":"yes"}
func (h *PrivateBetHandler) CastVote(c *gin.Context) {
	userID := middleware.GetUserID(c)

	betID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_BET_ID", "invalid bet id")
		return
	}

	var body struct {
		Vote string `json:"vote" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	bet, err := h.betSvc.CastVote(c.Request.Context(), betID, userID, domain.Outcome(body.Vote))
	if err != nil {
		respondTradeError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, bet)
}

// Lookup godoc
// GET /api/private-bets/by-code/:code
func (h *PrivateBetHandler) Lookup(c *gin.Context) {
	bet, err := h.betSvc.Lookup(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondTradeError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, bet)
}

// Detail godoc
// GET /api/private-bets/:id [JWT]
func (h *PrivateBetHandler) Detail(c *gin.Context) {
	betID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_BET_ID", "invalid bet id")
		return
	}

	bet, participants, err := h.betSvc.Detail(c.Request.Context(), betID)
	if err != nil {
		respondTradeError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"bet":          bet,
		"participants": participants,
	})
}

// MyBets godoc
// GET /api/private-bets/my [JWT]
func (h *PrivateBetHandler) MyBets(c *gin.Context) {
	userID := middleware.GetUserID(c)

	bets, err := h.betSvc.MyBets(c.Request.Context(), userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch private bets")
		return
	}
	respondSuccess(c, http.StatusOK, bets)
}
