package controllers

import (
	"errors"
	"net/http"

	"github.com/otabeknarz/11tutors-backend/models"
	"github.com/otabeknarz/11tutors-backend/services"
	"github.com/otabeknarz/11tutors-backend/utils"

	"github.com/gin-gonic/gin"
)

// PaymentController - оформление покупки и администрирование платежей
type PaymentController struct {
	payments *services.PaymentService
	checkout *services.CheckoutService
}

func NewPaymentController(payments *services.PaymentService, checkout *services.CheckoutService) *PaymentController {
	return &PaymentController{payments: payments, checkout: checkout}
}

// Checkout - создает заказ и платеж
// POST /api/payments/checkout
func (pc *PaymentController) Checkout(c *gin.Context) {
	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Неверный запрос",
			"details": err.Error(),
		})
		return
	}

	res, err := pc.checkout.Checkout(c.Request.Context(), c.GetString("user_id"), services.CheckoutInput{
		CourseIDs: req.CourseIDs,
		Method:    req.Method,
		Currency:  req.Currency,
	})
	if err != nil {
		respondError(c, err, "Checkout")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"payment":       res.Payment,
			"order_id":      res.Order.ID,
			"order":         res.Order.Response(),
			"client_secret": res.ClientSecret,
			"checkout_url":  res.CheckoutURL,
		},
	})
}

// List - список платежей; не-администратор видит только свои
// GET /api/payments?user=&status=&limit=&offset=
func (pc *PaymentController) List(c *gin.Context) {
	filter := services.PaymentFilter{UserID: c.GetString("user_id")}
	if isAdmin(c) {
		filter.UserID = c.Query("user")
	}
	if s := c.Query("status"); s != "" {
		status, ok := models.ParsePaymentStatus(s)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неизвестный статус", "details": s})
			return
		}
		filter.Status = &status
	}
	filter.Limit, filter.Offset = utils.ClampPage(utils.ParseIntSafe(c.Query("limit")), utils.ParseIntSafe(c.Query("offset")), 20, 100)

	payments, total, err := pc.payments.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, "ListPayments")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    payments,
		"total":   total,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

// Get - платеж владельца или любой для администратора
// GET /api/payments/:id
func (pc *PaymentController) Get(c *gin.Context) {
	p, err := pc.payments.Get(c.Request.Context(), c.Param("id"))
	if err == nil && !isAdmin(c) && (p.UserID == nil || *p.UserID != c.GetString("user_id")) {
		err = services.ErrPaymentNotFound
	}
	if err != nil {
		respondError(c, err, "GetPayment")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": p})
}

// Complete - ручное подтверждение (BANK/CASH)
// POST /api/payments/:id/complete
func (pc *PaymentController) Complete(c *gin.Context) {
	var req models.SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "transaction_id обязателен", "details": err.Error()})
		return
	}

	ctx := c.Request.Context()
	p, err := pc.payments.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err, "CompletePayment")
		return
	}
	if p.Method != models.MethodBank && p.Method != models.MethodCash {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Онлайн-платежи подтверждаются провайдером",
			"details": string(p.Method),
		})
		return
	}

	res, err := pc.payments.MarkCompleted(ctx, p.ID, req.TransactionID, req.Reason)
	var partial *services.PartialGrantFailure
	if errors.As(err, &partial) {
		c.JSON(http.StatusOK, gin.H{
			"success":        true,
			"data":           res.Payment,
			"grants":         res.Grants,
			"grant_failures": partial.Report.Failed,
		})
		return
	}
	if err != nil {
		respondError(c, err, "CompletePayment")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": res.Payment, "idempotent": res.Idempotent, "grants": res.Grants})
}

// Fail - отмена платежа
// POST /api/payments/:id/fail
func (pc *PaymentController) Fail(c *gin.Context) {
	var req models.ReasonRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный запрос", "details": err.Error()})
			return
		}
	}
	reason := models.ReasonUnknownError
	if req.Reason != nil {
		reason = *req.Reason
	}

	res, err := pc.payments.MarkFailed(c.Request.Context(), c.Param("id"), reason)
	if err != nil {
		respondError(c, err, "FailPayment")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": res.Payment, "idempotent": res.Idempotent})
}

// Refund - возврат: сначала у провайдера (для онлайн-методов), затем статус REFUNDED
// POST /api/payments/:id/refund
func (pc *PaymentController) Refund(c *gin.Context) {
	var req models.ReasonRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный запрос", "details": err.Error()})
			return
		}
	}
	reason := models.ReasonRefund
	if req.Reason != nil {
		reason = *req.Reason
	}

	ctx := c.Request.Context()
	p, err := pc.payments.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err, "RefundPayment")
		return
	}
	if gw := pc.checkout.GatewayFor(p.Method); gw != nil && p.Status == models.PaymentStatusCompleted {
		if err := gw.Refund(ctx, p); err != nil {
			respondError(c, err, "RefundPayment gateway")
			return
		}
	}

	res, err := pc.payments.MarkRefunded(ctx, p.ID, reason)
	if err != nil {
		respondError(c, err, "RefundPayment")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": res.Payment, "idempotent": res.Idempotent})
}

// Anomalies - расхождения сверки для ручного разбора
// GET /api/payments/anomalies
func (pc *PaymentController) Anomalies(c *gin.Context) {
	limit, offset := utils.ClampPage(utils.ParseIntSafe(c.Query("limit")), utils.ParseIntSafe(c.Query("offset")), 50, 200)
	anomalies, total, err := pc.payments.ListAnomalies(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err, "ListAnomalies")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": anomalies, "total": total})
}
