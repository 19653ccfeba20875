package middleware

import (
	"net/http"

	"github.com/otabeknarz/11tutors-backend/utils"

	"github.com/gin-gonic/gin"
)

// RecoveryMiddleware пишет панику в logs/panics.log и отвечает 500.
// Провайдер, получивший 500 на webhook, повторит доставку.
func RecoveryMiddleware() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		utils.LogPanic(recovered, c.Request.Method+" "+c.FullPath())
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Внутренняя ошибка сервера"})
	})
}
