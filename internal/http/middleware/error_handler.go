package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
)

// ErrorHandler обрабатывает ошибки централизованно.
// Маскирует внутренние ошибки и возвращает понятные сообщения клиенту.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last()

		statusCode := http.StatusInternalServerError
		message := "внутренняя ошибка сервера"
		code := apperror.ErrCodeInternal

		if logger.Log != nil {
			logger.Log.WithFields(logrus.Fields{
				"error":  err.Error(),
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Error("Request error")
		}

		var appErr *apperror.AppError
		switch {
		case errors.As(err.Err, &appErr):
			statusCode = appErr.HTTPStatus
			message = appErr.Message
			code = appErr.Code
		case errors.Is(err.Err, repository.ErrUserNotFound):
			statusCode = http.StatusNotFound
			message = "пользователь не найден"
			code = apperror.ErrCodeNotFound
		case errors.Is(err.Err, repository.ErrOrderNotFound):
			statusCode = http.StatusNotFound
			message = "заказ не найден"
			code = apperror.ErrCodeNotFound
		case errors.Is(err.Err, repository.ErrInsufficientFunds):
			statusCode = http.StatusUnprocessableEntity
			message = "недостаточно средств на балансе"
			code = apperror.ErrCodeInsufficientFunds
		default:
			if errStr := err.Error(); errStr != "" && !containsInternalKeywords(errStr) {
				message = errStr
				statusCode = http.StatusBadRequest
				code = apperror.ErrCodeBadRequest
			}
		}

		c.JSON(statusCode, gin.H{"error": message, "code": code})
	}
}

// containsInternalKeywords проверяет, содержит ли строка ключевые слова внутренних ошибок.
func containsInternalKeywords(s string) bool {
	keywords := []string{
		"sql:",
		"database",
		"connection",
		"timeout",
		"internal",
		"panic",
		"runtime",
	}

	for _, keyword := range keywords {
		if contains(s, keyword) {
			return true
		}
	}
	return false
}

// contains проверяет, содержит ли строка подстроку (case-insensitive).
func contains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
