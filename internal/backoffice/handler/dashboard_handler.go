package handler

import (
	"net/http"
	"time"

	"github.com/evetabi/prediction/internal/config"
	"github.com/evetabi/prediction/internal/repository"
	"github.com/evetabi/prediction/internal/service"
	"github.com/evetabi/prediction/internal/ws"
	"github.com/gin-gonic/gin"
)

// DashboardHandler serves the /admin/dashboard endpoint.
type DashboardHandler struct {
	marketSvc *service.MarketService
	eventRepo *repository.LiquidityEventRepository
	userRepo  *repository.UserRepository
	hub       *ws.Hub
	cfg       *config.Config
}

// NewDashboardHandler creates a DashboardHandler.
func NewDashboardHandler(
	marketSvc *service.MarketService,
	eventRepo *repository.LiquidityEventRepository,
	userRepo *repository.UserRepository,
	hub *ws.Hub,
	cfg *config.Config,
) *DashboardHandler {
	return &DashboardHandler{
		marketSvc: marketSvc,
		eventRepo: eventRepo,
		userRepo:  userRepo,
		hub:       hub,
		cfg:       cfg,
	}
}

// Dashboard godoc
// GET /admin/dashboard
func (h *DashboardHandler) Dashboard(c *gin.Context) {
	ctx := c.Request.Context()

	openMarkets, openTotal, _ := h.marketSvc.List(ctx, 10, 0, "open")
	recentEvents, _ := h.eventRepo.ListRecent(ctx, 20)
	leaders, _ := h.userRepo.ListLeaderboard(ctx, 10)

	var wsConnections int
	if h.hub != nil {
		wsConnections = h.hub.ConnectedCount()
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"timestamp":          time.Now().UTC(),
		"open_market_count":  openTotal,
		"open_markets":       openMarkets,
		"recent_liquidity":   recentEvents,
		"top_traders":        leaders,
		"ws_connections":     wsConnections,
	})
}
