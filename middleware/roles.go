package middleware

import (
	"net/http"

	"github.com/otabeknarz/11tutors-backend/models"

	"github.com/gin-gonic/gin"
)

// RequireRole пропускает только перечисленные роли. Ставится после JWTAuthMiddleware.
func RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := models.UserRole(c.GetInt("role"))
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "Недостаточно прав"})
		c.Abort()
	}
}
