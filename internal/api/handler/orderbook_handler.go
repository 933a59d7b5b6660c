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

// OrderBookHandler serves the CLOB's place_order/cancel_order/book endpoints.
type OrderBookHandler struct {
	book *service.OrderBookService
}

// NewOrderBookHandler creates an OrderBookHandler.
func NewOrderBookHandler(book *service.OrderBookService) *OrderBookHandler {
	return &OrderBookHandler{book: book}
}

// PlaceOrder godoc
// POST /api/markets/:id/orders [JWT]
// Body: {"intent":"buy_yes","price_yes":"0.55","quantity":"10"}
func (h *OrderBookHandler) PlaceOrder(c *gin.Context) {
	userID := middleware.GetUserID(c)

	marketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_MARKET_ID", "invalid market id")
		return
	}

	var body struct {
		Intent   string `json:"intent"    binding:"required"`
		PriceYes string `json:"price_yes" binding:"required"`
		Quantity string `json:"quantity"  binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	priceYes, err := decimal.NewFromString(body.PriceYes)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_PRICE", "price_yes must be a decimal string")
		return
	}
	quantity, err := decimal.NewFromString(body.Quantity)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_QUANTITY", "quantity must be a decimal string")
		return
	}

	result, err := h.book.PlaceOrder(c.Request.Context(), userID, marketID, domain.Intent(body.Intent), priceYes, quantity)
	if err != nil {
		respondTradeError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, result)
}

// CancelOrder godoc
// POST /api/orders/:id/cancel [JWT]
func (h *OrderBookHandler) CancelOrder(c *gin.Context) {
	userID := middleware.GetUserID(c)

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ORDER_ID", "invalid order id")
		return
	}

	result, err := h.book.CancelOrder(c.Request.Context(), userID, orderID)
	if err != nil {
		respondTradeError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, result)
}

// Book godoc
// GET /api/markets/:id/book
func (h *OrderBookHandler) Book(c *gin.Context) {
	marketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_MARKET_ID", "invalid market id")
		return
	}

	view, err := h.book.Book(c.Request.Context(), marketID)
	if err != nil {
		respondTradeError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, view)
}

// MyOrders godoc
// GET /api/orders/my?page=1&limit=20 [JWT]
func (h *OrderBookHandler) MyOrders(c *gin.Context) {
	userID := middleware.GetUserID(c)
	page, limit := parsePagination(c)
	offset := (page - 1) * limit

	orders, err := h.book.UserOrders(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch orders")
		return
	}
	respondList(c, orders, len(orders), page, limit)
}
