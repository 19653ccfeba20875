package controllers

import (
	"errors"
	"io"
	"net/http"

	"github.com/otabeknarz/11tutors-backend/services"
	"github.com/otabeknarz/11tutors-backend/utils"

	"github.com/gin-gonic/gin"
)

// Stripe ограничивает тело webhook 64 КБ
const maxWebhookBody = 65536

// WebhookController принимает уведомления провайдеров и передает их в сверку
type WebhookController struct {
	reconciler *services.Reconciler
}

func NewWebhookController(reconciler *services.Reconciler) *WebhookController {
	return &WebhookController{reconciler: reconciler}
}

// Handle - обработчик webhook для конкретного провайдера.
// Подпись проверяется до любого обращения к БД.
func (wc *WebhookController) Handle(gw services.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Не удалось прочитать тело запроса"})
			return
		}

		ev, err := gw.ParseWebhook(payload, c.Request.Header)
		if err != nil {
			var auth *services.AuthenticationError
			if errors.As(err, &auth) {
				utils.LogSecurity("webhook signature rejected: "+gw.Name(), c.ClientIP(), err)
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Неверная подпись", "details": err.Error()})
				return
			}
			respondError(c, err, "Webhook "+gw.Name())
			return
		}

		res, err := wc.reconciler.Reconcile(c.Request.Context(), ev)
		if err != nil {
			respondError(c, err, "Reconcile "+gw.Name()+" "+ev.EventID)
			return
		}
		c.JSON(http.StatusOK, gin.H{"received": true, "result": res})
	}
}
