package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UUIDValidator проверяет, что URL параметр является валидным UUID.
// Ставится перед хэндлерами маршрутов вида /orders/:id.
func UUIDValidator(paramName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Param(paramName)
		if _, err := uuid.Parse(raw); raw == "" || err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "параметр " + paramName + " должен быть валидным UUID",
			})
			return
		}

		c.Next()
	}
}
