package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/marketplace-backend/internal/http/handlers/common"
	"github.com/ignatzorin/marketplace-backend/internal/service"
)

// DisputeHandler предоставляет HTTP слой для споров по заказам.
type DisputeHandler struct {
	orders *service.OrderService
}

// NewDisputeHandler создаёт хэндлер.
func NewDisputeHandler(orders *service.OrderService) *DisputeHandler {
	return &DisputeHandler{orders: orders}
}

// Open обрабатывает POST /orders/:id/dispute.
func (h *DisputeHandler) Open(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		Reason  string `json:"reason" binding:"required"`
		Details string `json:"details"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	order, err := h.orders.OpenDispute(c.Request.Context(), orderID, userID, service.DisputeInput{
		Reason:  req.Reason,
		Details: req.Details,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"order": order})
}

// AddEvidence обрабатывает POST /orders/:id/dispute/evidence.
func (h *DisputeHandler) AddEvidence(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	role, err := common.CurrentUserRole(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		Type    string `json:"type" binding:"required"`
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	evidence, err := h.orders.AddDisputeEvidence(c.Request.Context(), orderID, userID, role, req.Type, req.Content)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"evidence": evidence})
}

// Get обрабатывает GET /orders/:id/dispute.
func (h *DisputeHandler) Get(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	role, err := common.CurrentUserRole(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	view, err := h.orders.GetDispute(c.Request.Context(), orderID, userID, role)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{"dispute": view})
}

// AdminList обрабатывает GET /admin/disputes.
func (h *DisputeHandler) AdminList(c *gin.Context) {
	limit, offset := common.GetPagination(c)

	orders, err := h.orders.ListDisputed(c.Request.Context(), limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{
		"disputes": orders,
		"limit":    limit,
		"offset":   offset,
	})
}

// Resolve обрабатывает POST /admin/disputes/:id/resolve.
func (h *DisputeHandler) Resolve(c *gin.Context) {
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		Decision string `json:"decision" binding:"required"`
		Notes    string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	order, err := h.orders.ResolveDispute(c.Request.Context(), orderID, req.Decision, req.Notes)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{"order": order})
}
