package handler

import (
	"net/http"
	"time"

	"github.com/evetabi/prediction/internal/config"
	"github.com/evetabi/prediction/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// FinanceHandler serves /admin/finance endpoints. There is no withdrawal
// queue to approve — PRC is an internal play-currency with no cash-out
// collaborator — so this surface is limited to exposure/fee reporting and
// per-user ledger inspection.
type FinanceHandler struct {
	marketRepo *repository.MarketRepository
	txnRepo    *repository.TransactionRepository
	cfg        *config.Config
}

// NewFinanceHandler creates a FinanceHandler.
func NewFinanceHandler(
	marketRepo *repository.MarketRepository,
	txnRepo *repository.TransactionRepository,
	cfg *config.Config,
) *FinanceHandler {
	return &FinanceHandler{marketRepo: marketRepo, txnRepo: txnRepo, cfg: cfg}
}

// Report godoc
// GET /admin/finance/report?from=2024-01-01&to=2024-01-31
func (h *FinanceHandler) Report(c *gin.Context) {
	ctx := c.Request.Context()

	fromStr := c.Query("from")
	toStr := c.Query("to")

	var from, to time.Time
	var err error
	if fromStr != "" {
		from, err = time.Parse("2006-01-02", fromStr)
		if err != nil {
			respondError(c, http.StatusBadRequest, "ERR_INVALID_DATE", "from must be YYYY-MM-DD")
			return
		}
	} else {
		from = time.Now().UTC().AddDate(0, -1, 0).Truncate(24 * time.Hour) // default: last calendar month
	}
	if toStr != "" {
		to, err = time.Parse("2006-01-02", toStr)
		if err != nil {
			respondError(c, http.StatusBadRequest, "ERR_INVALID_DATE", "to must be YYYY-MM-DD")
			return
		}
		to = to.Add(24 * time.Hour) // inclusive
	} else {
		to = time.Now().UTC()
	}

	report, err := h.marketRepo.GetExposureReport(ctx, from, to)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, report)
}

// UserTransactions godoc
// GET /admin/finance/users/:id/transactions?page=1&limit=50
func (h *FinanceHandler) UserTransactions(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid user id")
		return
	}
	page, limit := adminPagination(c)
	offset := (page - 1) * limit

	txns, err := h.txnRepo.ListByUser(c.Request.Context(), id, limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondList(c, txns, len(txns), page, limit)
}

// MarketTransactions godoc
// GET /admin/finance/markets/:id/transactions?page=1&limit=50
func (h *FinanceHandler) MarketTransactions(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid market id")
		return
	}
	page, limit := adminPagination(c)
	offset := (page - 1) * limit

	txns, err := h.txnRepo.ListByMarket(c.Request.Context(), id, limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondList(c, txns, len(txns), page, limit)
}
