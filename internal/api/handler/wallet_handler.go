package handler

import (
	"net/http"

	"github.com/evetabi/prediction/internal/api/middleware"
	"github.com/evetabi/prediction/internal/repository"
	"github.com/gin-gonic/gin"
)

// WalletHandler serves balance and transaction-history endpoints. There is
// no real-money withdrawal path — PRC is an internal play-currency (spec.md
// §1) with no cash-out collaborator.
type WalletHandler struct {
	userRepo *repository.UserRepository
	txnRepo  *repository.TransactionRepository
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(userRepo *repository.UserRepository, txnRepo *repository.TransactionRepository) *WalletHandler {
	return &WalletHandler{userRepo: userRepo, txnRepo: txnRepo}
}

// GetBalance godoc
// GET /api/wallet/balance [JWT]
func (h *WalletHandler) GetBalance(c *gin.Context) {
	userID := middleware.GetUserID(c)
	user, err := h.userRepo.GetByID(c.Request.Context(), userID)
	if err != nil {
		respondError(c, http.StatusNotFound, "ERR_USER_NOT_FOUND", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"balance":          user.Balance,
		"reserved_balance": user.ReservedBalance,
		"available":        user.Available(),
	})
}

// GetTransactions godoc
// GET /api/wallet/transactions?page=1&limit=20 [JWT]
func (h *WalletHandler) GetTransactions(c *gin.Context) {
	userID := middleware.GetUserID(c)
	page, limit := parsePagination(c)
	offset := (page - 1) * limit

	txns, err := h.txnRepo.ListByUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch transactions")
		return
	}
	respondList(c, txns, len(txns), page, limit)
}
