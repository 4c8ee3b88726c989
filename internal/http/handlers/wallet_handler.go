package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/marketplace-backend/internal/http/handlers/common"
	"github.com/ignatzorin/marketplace-backend/internal/service"
)

// WalletHandler предоставляет HTTP слой для кошелька.
type WalletHandler struct {
	wallet *service.WalletService
}

// NewWalletHandler создаёт хэндлер.
func NewWalletHandler(wallet *service.WalletService) *WalletHandler {
	return &WalletHandler{wallet: wallet}
}

// Balance обрабатывает GET /wallet/balance.
func (h *WalletHandler) Balance(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	wallet, err := h.wallet.GetBalance(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, wallet)
}

// Deposit обрабатывает POST /wallet/deposit.
func (h *WalletHandler) Deposit(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	var req struct {
		Amount float64 `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	tx, err := h.wallet.Deposit(c.Request.Context(), userID, req.Amount)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{"transaction": tx})
}

// Withdraw обрабатывает POST /wallet/withdraw.
func (h *WalletHandler) Withdraw(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	var req struct {
		Amount float64 `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	tx, err := h.wallet.Withdraw(c.Request.Context(), userID, req.Amount)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{"transaction": tx})
}

// Transactions обрабатывает GET /wallet/transactions.
func (h *WalletHandler) Transactions(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	limit, offset := common.GetPagination(c)

	txs, err := h.wallet.ListTransactions(c.Request.Context(), userID, limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{
		"transactions": txs,
		"limit":        limit,
		"offset":       offset,
	})
}
