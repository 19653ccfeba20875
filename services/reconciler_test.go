package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otabeknarz/11tutors-backend/models"
)

func succeeded(p *models.Payment, txID string) *WebhookEvent {
	return &WebhookEvent{
		Provider:         "stripe",
		EventID:          "evt_" + txID,
		RawType:          "payment_intent.succeeded",
		Type:             EventSucceeded,
		TransactionID:    txID,
		CorrelationToken: p.CorrelationToken,
		Payload:          []byte(`{"id":"evt"}`),
	}
}

func TestReconcileSucceededGrantsCourses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pending(t, f.order(t, f.courseA, f.courseB), models.MethodStripe)

	res, err := f.reconciler.Reconcile(ctx, succeeded(p, "pi_100"))
	require.NoError(t, err)
	assert.Equal(t, p.ID, res.PaymentID)
	assert.Equal(t, models.PaymentStatusCompleted, res.Status)
	assert.Empty(t, res.Anomaly)

	stored := f.reload(t, p.ID)
	assert.Equal(t, models.PaymentStatusCompleted, stored.Status)
	require.NotNil(t, stored.TransactionID)
	assert.Equal(t, "pi_100", *stored.TransactionID)
	assert.EqualValues(t, 1, f.count(t, &models.Enrollment{}, "student_id = ? AND course_id = ?", f.student.ID, f.courseA.ID))
	assert.EqualValues(t, 1, f.count(t, &models.Enrollment{}, "student_id = ? AND course_id = ?", f.student.ID, f.courseB.ID))
}

func TestReconcileDuplicateDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pending(t, f.order(t, f.courseA, f.courseB), models.MethodStripe)
	ev := succeeded(p, "pi_200")

	_, err := f.reconciler.Reconcile(ctx, ev)
	require.NoError(t, err)

	// повторная доставка: находим по transaction_id, ничего не меняем
	ev.CorrelationToken = ""
	res, err := f.reconciler.Reconcile(ctx, ev)
	require.NoError(t, err)
	assert.True(t, res.Idempotent)
	assert.Equal(t, models.PaymentStatusCompleted, res.Status)
	assert.EqualValues(t, 2, f.count(t, &models.Enrollment{}, ""))
	assert.EqualValues(t, 1, f.count(t, &models.Payment{}, "transaction_id = ?", "pi_200"))
	assert.Zero(t, f.count(t, &models.PaymentAnomaly{}, ""))
}

func TestReconcileConcurrentDeliveries(t *testing.T) {
	f := newFixture(t)
	p := f.pending(t, f.order(t, f.courseA, f.courseB), models.MethodStripe)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]*ReconcileResult, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.reconciler.Reconcile(context.Background(), succeeded(p, "pi_300"))
		}(i)
	}
	wg.Wait()

	applied := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		if !results[i].Idempotent {
			applied++
		}
	}
	assert.Equal(t, 1, applied)
	assert.EqualValues(t, 2, f.count(t, &models.Enrollment{}, ""))
	assert.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "type = ?", models.EventPaymentCompleted))
}

func TestReconcileUnknownPayment(t *testing.T) {
	f := newFixture(t)
	p := f.pending(t, f.order(t, f.courseA), models.MethodStripe)

	_, err := f.reconciler.Reconcile(context.Background(), &WebhookEvent{
		Provider:         "stripe",
		Type:             EventSucceeded,
		TransactionID:    "pi_unknown",
		CorrelationToken: "not-a-token",
	})
	assert.ErrorIs(t, err, ErrPaymentNotFound)

	stored := f.reload(t, p.ID)
	assert.Equal(t, models.PaymentStatusPending, stored.Status)
	assert.Nil(t, stored.TransactionID)
	assert.EqualValues(t, 1, f.count(t, &models.Payment{}, ""))
	assert.Zero(t, f.count(t, &models.PaymentAnomaly{}, ""))
	assert.Zero(t, f.count(t, &models.Enrollment{}, ""))
}

func TestReconcileConflictRecordsAnomaly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pending(t, f.order(t, f.courseA), models.MethodStripe)

	_, err := f.payments.MarkFailed(ctx, p.ID, models.ReasonTimeoutCancelled)
	require.NoError(t, err)

	// поздний "succeeded" после истечения платежа
	res, err := f.reconciler.Reconcile(ctx, succeeded(p, "pi_400"))
	require.NoError(t, err)
	assert.Equal(t, models.AnomalyTransitionConflict, res.Anomaly)
	assert.Equal(t, models.PaymentStatusFailed, res.Status)

	assert.Equal(t, models.PaymentStatusFailed, f.reload(t, p.ID).Status)
	assert.Zero(t, f.count(t, &models.Enrollment{}, ""))

	var anomaly models.PaymentAnomaly
	require.NoError(t, f.db.First(&anomaly).Error)
	assert.Equal(t, models.AnomalyTransitionConflict, anomaly.Kind)
	assert.Equal(t, "pi_400", anomaly.TransactionID)
	assert.Equal(t, p.ID, *anomaly.PaymentID)
	assert.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "type = ?", models.EventPaymentAnomaly))
}

func TestReconcileSucceededAfterRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pending(t, f.order(t, f.courseA), models.MethodStripe)

	_, err := f.reconciler.Reconcile(ctx, succeeded(p, "pi_500"))
	require.NoError(t, err)
	_, err = f.reconciler.Reconcile(ctx, &WebhookEvent{Provider: "stripe", Type: EventRefunded, TransactionID: "pi_500"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, f.reload(t, p.ID).Status)

	res, err := f.reconciler.Reconcile(ctx, succeeded(p, "pi_500"))
	require.NoError(t, err)
	assert.Equal(t, models.AnomalyTransitionConflict, res.Anomaly)
	assert.Equal(t, models.PaymentStatusRefunded, f.reload(t, p.ID).Status)
}

func TestReconcileTokenMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pending(t, f.order(t, f.courseA), models.MethodCard)

	_, err := f.reconciler.Reconcile(ctx, succeeded(p, "mc-1"))
	require.NoError(t, err)

	// тот же токен, но другая транзакция провайдера
	res, err := f.reconciler.Reconcile(ctx, succeeded(p, "mc-2"))
	require.NoError(t, err)
	assert.Equal(t, models.AnomalyTokenMismatch, res.Anomaly)
	assert.Equal(t, "mc-1", *f.reload(t, p.ID).TransactionID)
	assert.EqualValues(t, 1, f.count(t, &models.PaymentAnomaly{}, "kind = ?", models.AnomalyTokenMismatch))
}

func TestReconcileFailedEvent(t *testing.T) {
	f := newFixture(t)
	p := f.pending(t, f.order(t, f.courseA), models.MethodStripe)

	res, err := f.reconciler.Reconcile(context.Background(), &WebhookEvent{
		Provider:         "stripe",
		Type:             EventFailed,
		TransactionID:    "pi_600",
		CorrelationToken: p.CorrelationToken,
		Reason:           models.ReasonTransactionError.Ptr(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, res.Status)

	stored := f.reload(t, p.ID)
	assert.Equal(t, models.ReasonTransactionError, *stored.Reason)
	assert.Equal(t, "pi_600", *stored.TransactionID)
}

func TestReconcileRepeatedFailedEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pending(t, f.order(t, f.courseA), models.MethodStripe)
	ev := &WebhookEvent{
		Provider:         "stripe",
		EventID:          "evt_fail",
		Type:             EventFailed,
		TransactionID:    "pi_610",
		CorrelationToken: p.CorrelationToken,
		Reason:           models.ReasonDebitError.Ptr(),
	}

	_, err := f.reconciler.Reconcile(ctx, ev)
	require.NoError(t, err)

	res, err := f.reconciler.Reconcile(ctx, ev)
	require.NoError(t, err)
	assert.True(t, res.Idempotent)
	assert.Empty(t, res.Anomaly)
	assert.Equal(t, models.PaymentStatusFailed, res.Status)
	assert.Zero(t, f.count(t, &models.PaymentAnomaly{}, ""))
	assert.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "type = ?", models.EventPaymentFailed))

	// после локальной просрочки уведомление о неуспехе тоже не аномалия
	q := f.pending(t, f.order(t, f.courseB), models.MethodStripe)
	_, err = f.payments.MarkFailed(ctx, q.ID, models.ReasonTimeoutCancelled)
	require.NoError(t, err)
	res, err = f.reconciler.Reconcile(ctx, &WebhookEvent{Provider: "stripe", Type: EventFailed, TransactionID: "pi_611", CorrelationToken: q.CorrelationToken})
	require.NoError(t, err)
	assert.True(t, res.Idempotent)
	assert.Empty(t, res.Anomaly)
	assert.Equal(t, models.ReasonTimeoutCancelled, *f.reload(t, q.ID).Reason)
}

func TestReconcileRepeatedRefundedEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pending(t, f.order(t, f.courseA), models.MethodStripe)

	_, err := f.reconciler.Reconcile(ctx, succeeded(p, "pi_620"))
	require.NoError(t, err)
	refund := &WebhookEvent{Provider: "stripe", EventID: "evt_refund", Type: EventRefunded, TransactionID: "pi_620"}
	_, err = f.reconciler.Reconcile(ctx, refund)
	require.NoError(t, err)

	res, err := f.reconciler.Reconcile(ctx, refund)
	require.NoError(t, err)
	assert.True(t, res.Idempotent)
	assert.Empty(t, res.Anomaly)
	assert.Equal(t, models.PaymentStatusRefunded, res.Status)
	assert.Zero(t, f.count(t, &models.PaymentAnomaly{}, ""))
	assert.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "type = ?", models.EventPaymentRefunded))

	// возврат по чужой транзакции с тем же токеном - аномалия
	res, err = f.reconciler.Reconcile(ctx, &WebhookEvent{Provider: "stripe", Type: EventRefunded, TransactionID: "pi_621", CorrelationToken: p.CorrelationToken})
	require.NoError(t, err)
	assert.Equal(t, models.AnomalyTokenMismatch, res.Anomaly)
}

func TestReconcileIgnoredEvent(t *testing.T) {
	f := newFixture(t)
	res, err := f.reconciler.Reconcile(context.Background(), &WebhookEvent{Provider: "stripe", Type: EventIgnored})
	require.NoError(t, err)
	assert.True(t, res.Ignored)
}

func TestReconcilePartialGrant(t *testing.T) {
	f := newFixture(t)
	f.payments = NewPaymentService(f.db, &flakyGranter{inner: f.enrollments, fail: f.courseA.ID})
	f.reconciler = NewReconciler(f.db, f.payments)
	p := f.pending(t, f.order(t, f.courseA, f.courseB), models.MethodStripe)

	res, err := f.reconciler.Reconcile(context.Background(), succeeded(p, "pi_700"))
	require.NoError(t, err)
	assert.Equal(t, models.AnomalyPartialGrant, res.Anomaly)
	assert.Equal(t, models.PaymentStatusCompleted, f.reload(t, p.ID).Status)
	assert.EqualValues(t, 1, f.count(t, &models.Enrollment{}, ""))
	assert.EqualValues(t, 1, f.count(t, &models.PaymentAnomaly{}, "kind = ?", models.AnomalyPartialGrant))
}
