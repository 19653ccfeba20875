package routes

import (
	"github.com/otabeknarz/11tutors-backend/controllers"
	"github.com/otabeknarz/11tutors-backend/middleware"
	"github.com/otabeknarz/11tutors-backend/models"

	"github.com/gin-gonic/gin"
)

// SetupPaymentRoutes настраивает маршруты для платежей и webhook провайдеров
func SetupPaymentRoutes(r *gin.Engine, deps *Dependencies, auth gin.HandlerFunc) {
	paymentCtrl := controllers.NewPaymentController(deps.Payments, deps.Checkout)
	webhookCtrl := controllers.NewWebhookController(deps.Reconciler)
	admin := middleware.RequireRole(models.RoleAdmin)

	api := r.Group("/api/payments")
	{
		api.POST("/checkout", auth, paymentCtrl.Checkout)         // Заказ + платеж
		api.GET("", auth, paymentCtrl.List)                       // Список платежей
		api.GET("/anomalies", auth, admin, paymentCtrl.Anomalies) // Расхождения сверки
		api.GET("/:id", auth, paymentCtrl.Get)                    // Платеж
		api.POST("/:id/complete", auth, admin, paymentCtrl.Complete)
		api.POST("/:id/fail", auth, admin, paymentCtrl.Fail)
		api.POST("/:id/refund", auth, admin, paymentCtrl.Refund)
	}

	// Webhook без JWT: подлинность проверяется подписью провайдера
	if gw, ok := deps.Gateways["stripe"]; ok {
		api.POST("/stripe/webhook/", webhookCtrl.Handle(gw))
		r.POST("/webhook/", webhookCtrl.Handle(gw))
	}
	if gw, ok := deps.Gateways["multicard"]; ok {
		api.POST("/multicard/callback", webhookCtrl.Handle(gw))
	}
}
