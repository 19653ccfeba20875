package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/otabeknarz/11tutors-backend/models"

	"gorm.io/gorm"
)

// ReconcileResult - что произошло с платежом после события провайдера
type ReconcileResult struct {
	PaymentID  string               `json:"payment_id,omitempty"`
	Status     models.PaymentStatus `json:"status,omitempty"`
	Idempotent bool                 `json:"idempotent"`
	Ignored    bool                 `json:"ignored"`
	// Anomaly - вид записанной аномалии, если событие не удалось применить
	Anomaly string       `json:"anomaly,omitempty"`
	Grants  *GrantReport `json:"grants,omitempty"`
}

// Reconciler применяет уведомления провайдеров к локальным платежам
type Reconciler struct {
	db       *gorm.DB
	payments *PaymentService
}

func NewReconciler(db *gorm.DB, payments *PaymentService) *Reconciler {
	return &Reconciler{db: db, payments: payments}
}

// Reconcile ищет платеж по transaction_id, затем по токену корреляции, и применяет переход.
// Поиск, переход и выдача доступа выполняются в одной транзакции под блокировкой строки платежа.
func (r *Reconciler) Reconcile(ctx context.Context, ev *WebhookEvent) (*ReconcileResult, error) {
	if ev.Type == EventIgnored {
		return &ReconcileResult{Ignored: true}, nil
	}
	if ev.TransactionID == "" && ev.CorrelationToken == "" {
		return nil, validationErr("event", "no transaction id or correlation token")
	}

	result := &ReconcileResult{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := r.lookup(tx, ev)
		if err != nil {
			return err
		}
		result.PaymentID = p.ID

		if ev.TransactionID != "" && p.TransactionID != nil && !p.HasTransaction(ev.TransactionID) {
			result.Status = p.Status
			result.Anomaly = models.AnomalyTokenMismatch
			return recordAnomaly(tx, r.anomaly(ev, p, models.AnomalyTokenMismatch,
				fmt.Sprintf("payment bound to %s, event carries %s", *p.TransactionID, ev.TransactionID)))
		}
		if ev.TransactionID != "" && p.TransactionID == nil {
			if err := tx.Model(&models.Payment{}).
				Where("id = ? AND transaction_id IS NULL", p.ID).
				Update("transaction_id", ev.TransactionID).Error; err != nil {
				return fmt.Errorf("bind transaction id: %w", err)
			}
			txID := ev.TransactionID
			p.TransactionID = &txID
		}

		// повтор уведомления о неуспехе/возврате уже примененного к этому платежу
		if (ev.Type == EventFailed && p.Status == models.PaymentStatusFailed) ||
			(ev.Type == EventRefunded && p.Status == models.PaymentStatusRefunded) {
			result.Status = p.Status
			result.Idempotent = true
			return nil
		}

		var res *TransitionResult
		switch ev.Type {
		case EventSucceeded:
			res, err = r.payments.completeLocked(ctx, tx, p, ev.TransactionID, ev.Reason)
		case EventFailed:
			res, err = r.payments.failLocked(ctx, tx, p, reasonOr(ev.Reason, models.ReasonUnknownError))
		case EventRefunded:
			res, err = r.payments.refundLocked(ctx, tx, p, reasonOr(ev.Reason, models.ReasonRefund))
		default:
			return validationErr("event", "unknown event type %q", ev.Type)
		}

		var invalid *InvalidTransitionError
		if errors.As(err, &invalid) {
			// провайдеру отвечаем 200, иначе он будет бесконечно повторять
			result.Status = p.Status
			result.Anomaly = models.AnomalyTransitionConflict
			return recordAnomaly(tx, r.anomaly(ev, p, models.AnomalyTransitionConflict, invalid.Error()))
		}
		if err != nil {
			return err
		}

		result.Status = res.Payment.Status
		result.Idempotent = res.Idempotent
		result.Grants = res.Grants
		if res.Grants.HasFailures() {
			result.Anomaly = models.AnomalyPartialGrant
			failure := &PartialGrantFailure{PaymentID: p.ID, Report: res.Grants}
			return recordAnomaly(tx, r.anomaly(ev, p, models.AnomalyPartialGrant, failure.Error()))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[RECONCILE] %s %s (%s) payment=%s status=%s idempotent=%t anomaly=%s",
		ev.Provider, ev.EventID, ev.RawType, result.PaymentID, result.Status, result.Idempotent, result.Anomaly)
	return result, nil
}

func (r *Reconciler) lookup(tx *gorm.DB, ev *WebhookEvent) (*models.Payment, error) {
	if ev.TransactionID != "" {
		p, err := lockPayment(tx, "transaction_id = ?", ev.TransactionID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrPaymentNotFound) {
			return nil, err
		}
	}
	if ev.CorrelationToken != "" {
		return lockPayment(tx, "correlation_token = ?", ev.CorrelationToken)
	}
	return nil, ErrPaymentNotFound
}

func (r *Reconciler) anomaly(ev *WebhookEvent, p *models.Payment, kind, detail string) *models.PaymentAnomaly {
	a := &models.PaymentAnomaly{
		Kind:          kind,
		Provider:      ev.Provider,
		EventID:       ev.EventID,
		EventType:     ev.RawType,
		TransactionID: ev.TransactionID,
		PaymentID:     &p.ID,
		PaymentStatus: p.Status,
		Detail:        detail,
	}
	if len(ev.Payload) > 0 && json.Valid(ev.Payload) {
		a.Payload = ev.Payload
	}
	return a
}

func reasonOr(r *models.PaymentReason, def models.PaymentReason) models.PaymentReason {
	if r != nil {
		return *r
	}
	return def
}
