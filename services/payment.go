package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/otabeknarz/11tutors-backend/models"
	"github.com/otabeknarz/11tutors-backend/utils"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TransitionResult - итог смены статуса платежа
type TransitionResult struct {
	Payment *models.Payment
	// Idempotent - платеж уже был в целевом статусе, ничего не менялось
	Idempotent bool
	Grants     *GrantReport
}

// PaymentService - машина состояний платежа:
// PENDING -> COMPLETED | FAILED, COMPLETED -> REFUNDED.
type PaymentService struct {
	db      *gorm.DB
	granter EnrollmentGranter
}

func NewPaymentService(db *gorm.DB, granter EnrollmentGranter) *PaymentService {
	return &PaymentService{db: db, granter: granter}
}

// CreatePending создает платеж в статусе PENDING. tx может быть nil.
func (s *PaymentService) CreatePending(ctx context.Context, tx *gorm.DB, order *models.Order, amount decimal.Decimal,
	currency models.Currency, method models.PaymentMethod, description string) (*models.Payment, error) {
	if tx == nil {
		tx = s.db
	}
	if order == nil || order.ID == "" {
		return nil, validationErr("order", "order is required")
	}
	if !amount.IsPositive() {
		return nil, validationErr("amount", "must be greater than zero")
	}
	if len(order.Courses) == 0 {
		return nil, validationErr("order", "order has no courses")
	}
	if !amount.Equal(order.TotalAmount) {
		return nil, validationErr("amount", "%s does not match order total %s", amount.StringFixed(2), order.TotalAmount.StringFixed(2))
	}
	orderCurrency := order.Currency
	if orderCurrency == "" {
		orderCurrency = models.CurrencyUSD
	}
	if currency == "" {
		currency = orderCurrency
	}
	if !currency.Valid() {
		return nil, validationErr("currency", "unsupported currency %q", currency)
	}
	if currency != orderCurrency {
		return nil, validationErr("currency", "order is priced in %s, not %s", orderCurrency, currency)
	}
	if !method.Valid() {
		return nil, validationErr("method", "unsupported payment method %q", method)
	}

	token, err := utils.GenerateSessionID()
	if err != nil {
		return nil, fmt.Errorf("correlation token: %w", err)
	}
	userID := order.UserID
	orderID := order.ID
	payment := &models.Payment{
		UserID:           &userID,
		Amount:           amount,
		Currency:         currency,
		Method:           method,
		Status:           models.PaymentStatusPending,
		CorrelationToken: token,
		OrderID:          &orderID,
		Description:      description,
	}
	if err := tx.WithContext(ctx).Create(payment).Error; err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	return payment, nil
}

func (s *PaymentService) Get(ctx context.Context, id string) (*models.Payment, error) {
	var p models.Payment
	err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// PaymentFilter - параметры выборки списка платежей
type PaymentFilter struct {
	UserID string
	Status *models.PaymentStatus
	Limit  int
	Offset int
}

func (s *PaymentService) List(ctx context.Context, f PaymentFilter) ([]models.Payment, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Payment{})
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var payments []models.Payment
	err := q.Order("created_at DESC").Limit(f.Limit).Offset(f.Offset).Find(&payments).Error
	return payments, total, err
}

// MarkCompleted переводит PENDING -> COMPLETED и выдает доступ к курсам заказа.
// При частичной выдаче платеж остается COMPLETED, а вторым значением возвращается *PartialGrantFailure.
func (s *PaymentService) MarkCompleted(ctx context.Context, paymentID, transactionID string, reason *models.PaymentReason) (*TransitionResult, error) {
	var res *TransitionResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := lockPayment(tx, "id = ?", paymentID)
		if err != nil {
			return err
		}
		res, err = s.completeLocked(ctx, tx, p, transactionID, reason)
		if err != nil {
			return err
		}
		if res.Grants.HasFailures() {
			return recordAnomaly(tx, &models.PaymentAnomaly{
				Kind:          models.AnomalyPartialGrant,
				Provider:      "manual",
				TransactionID: transactionID,
				PaymentID:     &p.ID,
				PaymentStatus: p.Status,
				Detail:        (&PartialGrantFailure{PaymentID: p.ID, Report: res.Grants}).Error(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.Grants.HasFailures() {
		return res, &PartialGrantFailure{PaymentID: res.Payment.ID, Report: res.Grants}
	}
	return res, nil
}

// MarkFailed переводит PENDING -> FAILED
func (s *PaymentService) MarkFailed(ctx context.Context, paymentID string, reason models.PaymentReason) (*TransitionResult, error) {
	var res *TransitionResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := lockPayment(tx, "id = ?", paymentID)
		if err != nil {
			return err
		}
		res, err = s.failLocked(ctx, tx, p, reason)
		return err
	})
	return res, err
}

// MarkRefunded переводит COMPLETED -> REFUNDED. Доступ к курсам не отзывается.
func (s *PaymentService) MarkRefunded(ctx context.Context, paymentID string, reason models.PaymentReason) (*TransitionResult, error) {
	var res *TransitionResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := lockPayment(tx, "id = ?", paymentID)
		if err != nil {
			return err
		}
		res, err = s.refundLocked(ctx, tx, p, reason)
		return err
	})
	return res, err
}

// lockPayment читает платеж с блокировкой строки (SELECT ... FOR UPDATE)
func lockPayment(tx *gorm.DB, query string, args ...interface{}) (*models.Payment, error) {
	var p models.Payment
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where(query, args...).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock payment: %w", err)
	}
	return &p, nil
}

// casUpdate применяет изменения только если статус не поменялся с момента чтения
func casUpdate(tx *gorm.DB, p *models.Payment, updates map[string]interface{}) error {
	res := tx.Model(&models.Payment{}).
		Where("id = ? AND status = ?", p.ID, p.Status).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update payment %s: %w", p.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		var current models.Payment
		if err := tx.Select("status").First(&current, "id = ?", p.ID).Error; err != nil {
			return fmt.Errorf("reload payment %s: %w", p.ID, err)
		}
		next, _ := updates["status"].(models.PaymentStatus)
		return &InvalidTransitionError{PaymentID: p.ID, From: current.Status, To: next}
	}
	return nil
}

func (s *PaymentService) completeLocked(ctx context.Context, tx *gorm.DB, p *models.Payment, transactionID string, reason *models.PaymentReason) (*TransitionResult, error) {
	if p.Status == models.PaymentStatusCompleted && (transactionID == "" || p.HasTransaction(transactionID)) {
		return &TransitionResult{Payment: p, Idempotent: true}, nil
	}
	if !p.Status.CanTransitionTo(models.PaymentStatusCompleted) {
		return nil, &InvalidTransitionError{PaymentID: p.ID, From: p.Status, To: models.PaymentStatusCompleted}
	}
	if transactionID != "" && p.TransactionID != nil && !p.HasTransaction(transactionID) {
		return nil, validationErr("transaction_id", "payment is bound to another transaction")
	}
	if reason != nil && !reason.Valid() {
		return nil, validationErr("reason", "unknown reason %d", *reason)
	}

	updates := map[string]interface{}{
		"status":      models.PaymentStatusCompleted,
		"cancel_time": time.Now(),
	}
	if reason != nil {
		updates["reason"] = *reason
	}
	if p.TransactionID == nil && transactionID != "" {
		var taken int64
		if err := tx.Model(&models.Payment{}).Where("transaction_id = ? AND id <> ?", transactionID, p.ID).Count(&taken).Error; err != nil {
			return nil, err
		}
		if taken > 0 {
			return nil, validationErr("transaction_id", "already used by another payment")
		}
		updates["transaction_id"] = transactionID
	}
	if err := casUpdate(tx, p, updates); err != nil {
		return nil, err
	}

	p.Status = models.PaymentStatusCompleted
	now := updates["cancel_time"].(time.Time)
	p.CancelTime = &now
	if reason != nil {
		p.Reason = reason
	}
	if v, ok := updates["transaction_id"].(string); ok {
		p.TransactionID = &v
	}

	res := &TransitionResult{Payment: p}
	if p.OrderID != nil {
		var order models.Order
		err := tx.Preload("Courses").First(&order, "id = ?", *p.OrderID).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("load order %s: %w", *p.OrderID, err)
		}
		if err == nil {
			res.Grants = s.granter.Grant(ctx, tx, order.UserID, order.CourseIDs())
		}
	}

	ev := newPaymentEvent(p)
	ev.Grants = res.Grants
	if err := enqueueEvent(tx, models.EventPaymentCompleted, ev); err != nil {
		return nil, err
	}
	if res.Grants.HasFailures() {
		if err := enqueueEvent(tx, models.EventEnrollmentGrantFail, ev); err != nil {
			return nil, err
		}
		utils.LogError(&PartialGrantFailure{PaymentID: p.ID, Report: res.Grants}, "completeLocked")
	}
	return res, nil
}

func (s *PaymentService) failLocked(ctx context.Context, tx *gorm.DB, p *models.Payment, reason models.PaymentReason) (*TransitionResult, error) {
	if !p.Status.CanTransitionTo(models.PaymentStatusFailed) {
		return nil, &InvalidTransitionError{PaymentID: p.ID, From: p.Status, To: models.PaymentStatusFailed}
	}
	if !reason.Valid() {
		return nil, validationErr("reason", "unknown reason %d", reason)
	}
	now := time.Now()
	if err := casUpdate(tx, p, map[string]interface{}{
		"status":      models.PaymentStatusFailed,
		"reason":      reason,
		"cancel_time": now,
	}); err != nil {
		return nil, err
	}
	p.Status = models.PaymentStatusFailed
	p.Reason = reason.Ptr()
	p.CancelTime = &now

	if err := enqueueEvent(tx, models.EventPaymentFailed, newPaymentEvent(p)); err != nil {
		return nil, err
	}
	return &TransitionResult{Payment: p}, nil
}

func (s *PaymentService) refundLocked(ctx context.Context, tx *gorm.DB, p *models.Payment, reason models.PaymentReason) (*TransitionResult, error) {
	if !p.Status.CanTransitionTo(models.PaymentStatusRefunded) {
		return nil, &InvalidTransitionError{PaymentID: p.ID, From: p.Status, To: models.PaymentStatusRefunded}
	}
	if !reason.Valid() {
		return nil, validationErr("reason", "unknown reason %d", reason)
	}
	if err := casUpdate(tx, p, map[string]interface{}{
		"status": models.PaymentStatusRefunded,
		"reason": reason,
	}); err != nil {
		return nil, err
	}
	p.Status = models.PaymentStatusRefunded
	p.Reason = reason.Ptr()

	if err := enqueueEvent(tx, models.EventPaymentRefunded, newPaymentEvent(p)); err != nil {
		return nil, err
	}
	return &TransitionResult{Payment: p}, nil
}

// ProviderCanceller закрывает намерение или счет у провайдера
type ProviderCanceller interface {
	CancelAtProvider(ctx context.Context, p *models.Payment) error
}

// ExpireStale переводит зависшие PENDING платежи в FAILED (TIMEOUT_CANCELLED).
// Сначала платеж отменяется у провайдера; если отмена не прошла, платеж остается PENDING до следующего запуска.
func (s *PaymentService) ExpireStale(ctx context.Context, olderThan time.Duration, canceller ProviderCanceller) (int, error) {
	var stale []models.Payment
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.PaymentStatusPending, time.Now().Add(-olderThan)).
		Find(&stale).Error
	if err != nil {
		return 0, err
	}
	expired := 0
	for i := range stale {
		p := &stale[i]
		if canceller != nil {
			if err := canceller.CancelAtProvider(ctx, p); err != nil {
				utils.LogError(err, "ExpireStale cancel "+p.ID)
				continue
			}
		}
		_, err := s.MarkFailed(ctx, p.ID, models.ReasonTimeoutCancelled)
		var invalid *InvalidTransitionError
		if errors.As(err, &invalid) {
			// успел завершиться через webhook
			continue
		}
		if err != nil {
			utils.LogError(err, "ExpireStale "+p.ID)
			continue
		}
		expired++
	}
	return expired, nil
}

// SetProviderReference сохраняет ссылку провайдера (PaymentIntent / uuid счета) и адрес оплаты
func (s *PaymentService) SetProviderReference(ctx context.Context, p *models.Payment, ref, checkoutURL string) error {
	updates := map[string]interface{}{}
	if ref != "" {
		updates["stripe_payment_intent"] = ref
		p.PaymentIntent = &ref
	}
	if checkoutURL != "" {
		updates["checkout_url"] = checkoutURL
		p.CheckoutURL = checkoutURL
	}
	if len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.Payment{}).Where("id = ?", p.ID).Updates(updates).Error
}

// recordAnomaly сохраняет аномалию сверки и ставит событие payment.anomaly в outbox
func recordAnomaly(tx *gorm.DB, a *models.PaymentAnomaly) error {
	if err := tx.Create(a).Error; err != nil {
		return fmt.Errorf("record anomaly: %w", err)
	}
	paymentID := ""
	if a.PaymentID != nil {
		paymentID = *a.PaymentID
	}
	utils.LogAnomaly(a.Kind, paymentID, a.Detail)
	return enqueueEvent(tx, models.EventPaymentAnomaly, a)
}

func (s *PaymentService) ListAnomalies(ctx context.Context, limit, offset int) ([]models.PaymentAnomaly, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.PaymentAnomaly{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var anomalies []models.PaymentAnomaly
	err := q.Order("id DESC").Limit(limit).Offset(offset).Find(&anomalies).Error
	return anomalies, total, err
}
