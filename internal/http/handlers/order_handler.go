package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/http/handlers/common"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/service"
	"github.com/ignatzorin/marketplace-backend/internal/storage"
)

// OrderHandler предоставляет HTTP слой для жизненного цикла заказа.
type OrderHandler struct {
	orders *service.OrderService
	files  *storage.FileStorage
}

// NewOrderHandler создаёт хэндлер.
func NewOrderHandler(orders *service.OrderService, files *storage.FileStorage) *OrderHandler {
	return &OrderHandler{orders: orders, files: files}
}

// Create обрабатывает POST /orders.
func (h *OrderHandler) Create(c *gin.Context) {
	buyerID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	var req struct {
		SellerID     string  `json:"seller_id" binding:"required,uuid"`
		ServiceName  string  `json:"service_name" binding:"required"`
		Tier         string  `json:"tier" binding:"required"`
		Price        float64 `json:"price" binding:"required"`
		DeliveryTime int     `json:"delivery_time" binding:"required"`
		Requirements string  `json:"requirements"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	sellerID, err := uuid.Parse(req.SellerID)
	if err != nil {
		common.RespondBadRequest(c, "неверный формат seller_id")
		return
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), service.CreateOrderInput{
		BuyerID:      buyerID,
		SellerID:     sellerID,
		ServiceName:  req.ServiceName,
		Tier:         req.Tier,
		Price:        req.Price,
		DeliveryTime: req.DeliveryTime,
		Requirements: req.Requirements,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"order": order})
}

// Get обрабатывает GET /orders/:id.
func (h *OrderHandler) Get(c *gin.Context) {
	userID, role, orderID, ok := h.requestContext(c)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), orderID, userID, role)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{"order": order})
}

// My обрабатывает GET /orders/my.
func (h *OrderHandler) My(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	asBuyer, asSeller, err := h.orders.ListMyOrders(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{
		"as_buyer":  asBuyer,
		"as_seller": asSeller,
	})
}

// Accept обрабатывает POST /orders/:id/accept.
func (h *OrderHandler) Accept(c *gin.Context) {
	userID, _, orderID, ok := h.requestContext(c)
	if !ok {
		return
	}

	order, err := h.orders.AcceptOrder(c.Request.Context(), orderID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{"order": order})
}

// Decline обрабатывает POST /orders/:id/decline.
func (h *OrderHandler) Decline(c *gin.Context) {
	userID, _, orderID, ok := h.requestContext(c)
	if !ok {
		return
	}

	order, err := h.orders.DeclineOrder(c.Request.Context(), orderID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{"order": order})
}

// Cancel обрабатывает POST /orders/:id/cancel.
func (h *OrderHandler) Cancel(c *gin.Context) {
	userID, _, orderID, ok := h.requestContext(c)
	if !ok {
		return
	}

	order, err := h.orders.CancelOrder(c.Request.Context(), orderID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{"order": order})
}

// Start обрабатывает POST /orders/:id/start.
func (h *OrderHandler) Start(c *gin.Context) {
	userID, _, orderID, ok := h.requestContext(c)
	if !ok {
		return
	}

	order, err := h.orders.StartProgress(c.Request.Context(), orderID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{"order": order})
}

// SubmitDelivery обрабатывает POST /orders/:id/delivery.
func (h *OrderHandler) SubmitDelivery(c *gin.Context) {
	userID, _, orderID, ok := h.requestContext(c)
	if !ok {
		return
	}

	var req struct {
		Files   []string `json:"files"`
		Message string   `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	order, err := h.orders.SubmitDelivery(c.Request.Context(), orderID, userID, service.DeliveryInput{
		Files:   req.Files,
		Message: req.Message,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{"order": order})
}

// UploadDeliveryFile обрабатывает POST /orders/:id/files.
// Продавец загружает файл результата, путь затем передаётся в delivery.
func (h *OrderHandler) UploadDeliveryFile(c *gin.Context) {
	userID, role, orderID, ok := h.requestContext(c)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), orderID, userID, role)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if order.SellerID != userID {
		common.RespondForbidden(c, "файлы результата загружает продавец")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		common.RespondBadRequest(c, "файл не передан")
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		_ = c.Error(err)
		return
	}
	defer f.Close()

	path, size, err := h.files.Save(c.Request.Context(), orderID, fileHeader.Filename, f)
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	c.JSON(http.StatusCreated, gin.H{"path": path, "size": size})
}

// Release обрабатывает POST /orders/:id/release.
func (h *OrderHandler) Release(c *gin.Context) {
	userID, _, orderID, ok := h.requestContext(c)
	if !ok {
		return
	}

	order, err := h.orders.ReleasePayment(c.Request.Context(), orderID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{"order": order})
}

// UpdateRequirements обрабатывает PATCH /orders/:id/requirements.
func (h *OrderHandler) UpdateRequirements(c *gin.Context) {
	userID, _, orderID, ok := h.requestContext(c)
	if !ok {
		return
	}

	var req struct {
		Requirements string `json:"requirements" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	order, err := h.orders.UpdateRequirements(c.Request.Context(), orderID, userID, req.Requirements)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{"order": order})
}

// PostMessage обрабатывает POST /orders/:id/messages.
func (h *OrderHandler) PostMessage(c *gin.Context) {
	userID, role, orderID, ok := h.requestContext(c)
	if !ok {
		return
	}

	var req struct {
		Text  string   `json:"text" binding:"required"`
		Files []string `json:"files"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	message, err := h.orders.AddMessage(c.Request.Context(), orderID, userID, role, req.Text, req.Files)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": message})
}

// ListMessages обрабатывает GET /orders/:id/messages.
func (h *OrderHandler) ListMessages(c *gin.Context) {
	userID, role, orderID, ok := h.requestContext(c)
	if !ok {
		return
	}

	messages, err := h.orders.ListMessages(c.Request.Context(), orderID, userID, role)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{"messages": messages})
}

// AdminList обрабатывает GET /admin/orders.
func (h *OrderHandler) AdminList(c *gin.Context) {
	limit, offset := common.GetPagination(c)

	status := c.Query("status")
	var (
		orders []models.Order
		err    error
	)
	if status != "" {
		if _, ok := models.ValidOrderStatuses[status]; !ok {
			common.RespondBadRequest(c, "неизвестный статус заказа")
			return
		}
		orders, err = h.orders.ListByStatus(c.Request.Context(), status, limit, offset)
	} else {
		orders, err = h.orders.ListAll(c.Request.Context(), limit, offset)
	}
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{
		"orders": orders,
		"limit":  limit,
		"offset": offset,
	})
}

// requestContext достаёт из контекста пользователя, его роль и id заказа из URL.
func (h *OrderHandler) requestContext(c *gin.Context) (userID uuid.UUID, role string, orderID uuid.UUID, ok bool) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return uuid.Nil, "", uuid.Nil, false
	}

	role, err = common.CurrentUserRole(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return uuid.Nil, "", uuid.Nil, false
	}

	orderID, err = common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return uuid.Nil, "", uuid.Nil, false
	}

	return userID, role, orderID, true
}
