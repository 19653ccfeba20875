package controllers

import (
	"errors"
	"net/http"

	"github.com/otabeknarz/11tutors-backend/models"
	"github.com/otabeknarz/11tutors-backend/services"
	"github.com/otabeknarz/11tutors-backend/utils"

	"github.com/gin-gonic/gin"
)

// respondError переводит доменные ошибки в HTTP ответ
func respondError(c *gin.Context, err error, context string) {
	var (
		validation *services.ValidationError
		transition *services.InvalidTransitionError
		auth       *services.AuthenticationError
		gateway    *services.GatewayError
		rateLimit  *services.RateLimitError
	)
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный запрос", "details": err.Error()})
	case errors.Is(err, services.ErrPaymentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Платеж не найден"})
	case errors.Is(err, services.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Пользователь не найден"})
	case errors.As(err, &transition):
		c.JSON(http.StatusConflict, gin.H{"error": "Недопустимая смена статуса платежа", "details": err.Error()})
	case errors.As(err, &auth), errors.Is(err, services.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Ошибка авторизации", "details": err.Error()})
	case errors.Is(err, services.ErrEmailNotVerified):
		c.JSON(http.StatusForbidden, gin.H{"error": "Email не подтвержден"})
	case errors.Is(err, services.ErrUserExists):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Пользователь уже существует"})
	case errors.As(err, &rateLimit):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.As(err, &gateway):
		utils.LogError(err, context)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Платежный провайдер недоступен", "details": err.Error()})
	default:
		utils.LogError(err, context)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Внутренняя ошибка сервера"})
	}
}

func isAdmin(c *gin.Context) bool {
	return models.UserRole(c.GetInt("role")) == models.RoleAdmin
}
