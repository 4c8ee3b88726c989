package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/marketplace-backend/internal/http/handlers/common"
	"github.com/ignatzorin/marketplace-backend/internal/service"
	"github.com/ignatzorin/marketplace-backend/internal/validation"
)

// AuthHandler предоставляет HTTP слой для регистрации и логина.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler создаёт хэндлер.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Register обрабатывает POST /auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
		Username string `json:"username"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	// Валидация email
	if err := validation.ValidateEmail(req.Email); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	// Валидация пароля
	if err := validation.ValidatePassword(req.Password); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	// Валидация username
	if req.Username != "" {
		if err := validation.ValidateUsername(req.Username); err != nil {
			common.RespondBadRequest(c, err.Error())
			return
		}
	}

	result, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user":   result.User,
		"tokens": result.TokenPair,
	})
}

// Login обрабатывает POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := validation.ValidateEmail(req.Email); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if strings.TrimSpace(req.Password) == "" {
		common.RespondBadRequest(c, "пароль обязателен")
		return
	}

	result, err := h.auth.Login(c.Request.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{
		"user":   result.User,
		"tokens": result.TokenPair,
	})
}

// Refresh обрабатывает POST /auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{"tokens": pair})
}
