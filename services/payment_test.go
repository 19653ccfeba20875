package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otabeknarz/11tutors-backend/models"
)

func TestCreatePendingValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.order(t, f.courseA, f.courseB)

	tests := []struct {
		name     string
		order    *models.Order
		amount   decimal.Decimal
		currency models.Currency
		method   models.PaymentMethod
	}{
		{"zero amount", o, decimal.Zero, models.CurrencyUSD, models.MethodStripe},
		{"negative amount", o, decimal.NewFromInt(-5), models.CurrencyUSD, models.MethodStripe},
		{"amount differs from order total", o, decimal.NewFromInt(10), models.CurrencyUSD, models.MethodStripe},
		{"order without courses", &models.Order{ID: "o1", UserID: f.student.ID, TotalAmount: decimal.NewFromInt(50)}, decimal.NewFromInt(50), models.CurrencyUSD, models.MethodStripe},
		{"unknown currency", o, o.TotalAmount, models.Currency("GBP"), models.MethodStripe},
		{"currency differs from order", o, o.TotalAmount, models.CurrencyUZS, models.MethodStripe},
		{"unknown method", o, o.TotalAmount, models.CurrencyUSD, models.PaymentMethod("PAYPAL")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.payments.CreatePending(ctx, nil, tt.order, tt.amount, tt.currency, tt.method, "")
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr), "got %v", err)
		})
	}
	assert.Zero(t, f.count(t, &models.Payment{}, ""))
}

func TestCreatePending(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, f.courseA, f.courseB)

	p, err := f.payments.CreatePending(context.Background(), nil, o, decimal.RequireFromString("50.00"), "", models.MethodStripe, "two courses")
	require.NoError(t, err)

	stored := f.reload(t, p.ID)
	assert.Equal(t, models.PaymentStatusPending, stored.Status)
	assert.Nil(t, stored.TransactionID)
	assert.Equal(t, models.CurrencyUSD, stored.Currency)
	assert.Len(t, stored.CorrelationToken, 32)
	assert.Equal(t, o.ID, *stored.OrderID)
	assert.Equal(t, f.student.ID, *stored.UserID)
	assert.True(t, stored.Amount.Equal(decimal.NewFromInt(50)))
}

func TestMarkCompletedGrantsEnrollments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pending(t, f.order(t, f.courseA, f.courseB), models.MethodBank)

	res, err := f.payments.MarkCompleted(ctx, p.ID, "bank-001", nil)
	require.NoError(t, err)
	assert.False(t, res.Idempotent)
	assert.ElementsMatch(t, []string{f.courseA.ID, f.courseB.ID}, res.Grants.Granted)

	stored := f.reload(t, p.ID)
	assert.Equal(t, models.PaymentStatusCompleted, stored.Status)
	assert.NotNil(t, stored.CancelTime)
	assert.Equal(t, "bank-001", *stored.TransactionID)
	assert.EqualValues(t, 2, f.count(t, &models.Enrollment{}, "student_id = ?", f.student.ID))
	assert.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "type = ?", models.EventPaymentCompleted))

	// повтор с той же транзакцией - no-op
	res, err = f.payments.MarkCompleted(ctx, p.ID, "bank-001", nil)
	require.NoError(t, err)
	assert.True(t, res.Idempotent)
	assert.EqualValues(t, 2, f.count(t, &models.Enrollment{}, ""))
	assert.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "type = ?", models.EventPaymentCompleted))

	// другая транзакция для завершенного платежа - конфликт
	_, err = f.payments.MarkCompleted(ctx, p.ID, "bank-002", nil)
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, models.PaymentStatusCompleted, invalid.From)
}

func TestMarkCompletedRejectsUsedTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.pending(t, f.order(t, f.courseA), models.MethodCash)
	p2 := f.pending(t, f.order(t, f.courseB), models.MethodCash)

	_, err := f.payments.MarkCompleted(ctx, p1.ID, "cash-1", nil)
	require.NoError(t, err)

	_, err = f.payments.MarkCompleted(ctx, p2.ID, "cash-1", nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, models.PaymentStatusPending, f.reload(t, p2.ID).Status)
}

func TestFailedCannotComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pending(t, f.order(t, f.courseA), models.MethodStripe)

	res, err := f.payments.MarkFailed(ctx, p.ID, models.ReasonDebitError)
	require.NoError(t, err)
	assert.Equal(t, models.ReasonDebitError, *res.Payment.Reason)

	_, err = f.payments.MarkCompleted(ctx, p.ID, "tx", nil)
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, models.PaymentStatusFailed, invalid.From)
	assert.Equal(t, models.PaymentStatusCompleted, invalid.To)
	assert.Zero(t, f.count(t, &models.Enrollment{}, ""))

	_, err = f.payments.MarkFailed(ctx, p.ID, models.ReasonTimeoutCancelled)
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, models.PaymentStatusFailed, invalid.From)
	assert.Equal(t, models.PaymentStatusFailed, invalid.To)
	assert.Equal(t, models.ReasonDebitError, *f.reload(t, p.ID).Reason)
	assert.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "type = ?", models.EventPaymentFailed))
}

func TestRefundFromPendingRejected(t *testing.T) {
	f := newFixture(t)
	p := f.pending(t, f.order(t, f.courseA), models.MethodStripe)

	_, err := f.payments.MarkRefunded(context.Background(), p.ID, models.ReasonRefund)
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, models.PaymentStatusPending, f.reload(t, p.ID).Status)
}

func TestRefundKeepsEnrollments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pending(t, f.order(t, f.courseA, f.courseB), models.MethodBank)

	_, err := f.payments.MarkCompleted(ctx, p.ID, "bank-9", nil)
	require.NoError(t, err)

	res, err := f.payments.MarkRefunded(ctx, p.ID, models.ReasonRefund)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, res.Payment.Status)
	assert.EqualValues(t, 2, f.count(t, &models.Enrollment{}, ""))
	assert.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "type = ?", models.EventPaymentRefunded))

	_, err = f.payments.MarkCompleted(ctx, p.ID, "bank-9", nil)
	assert.Error(t, err)

	_, err = f.payments.MarkRefunded(ctx, p.ID, models.ReasonRefund)
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, models.PaymentStatusRefunded, invalid.From)
	assert.Equal(t, models.PaymentStatusRefunded, invalid.To)
	assert.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "type = ?", models.EventPaymentRefunded))
}

func TestMarkUnknownPayment(t *testing.T) {
	f := newFixture(t)
	_, err := f.payments.MarkFailed(context.Background(), "nope", models.ReasonUnknownError)
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestMarkCompletedPartialGrant(t *testing.T) {
	f := newFixture(t)
	f.payments = NewPaymentService(f.db, &flakyGranter{inner: f.enrollments, fail: f.courseB.ID})
	p := f.pending(t, f.order(t, f.courseA, f.courseB), models.MethodBank)

	res, err := f.payments.MarkCompleted(context.Background(), p.ID, "bank-5", nil)
	var partial *PartialGrantFailure
	require.ErrorAs(t, err, &partial)
	require.NotNil(t, res)
	assert.Contains(t, partial.Report.Failed, f.courseB.ID)

	assert.Equal(t, models.PaymentStatusCompleted, f.reload(t, p.ID).Status)
	assert.EqualValues(t, 1, f.count(t, &models.Enrollment{}, "course_id = ?", f.courseA.ID))
	assert.EqualValues(t, 1, f.count(t, &models.PaymentAnomaly{}, "kind = ?", models.AnomalyPartialGrant))
	assert.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "type = ?", models.EventEnrollmentGrantFail))
}

func TestExpireStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stale := f.pending(t, f.order(t, f.courseA), models.MethodStripe)
	fresh := f.pending(t, f.order(t, f.courseB), models.MethodStripe)
	require.NoError(t, f.db.Model(&models.Payment{}).Where("id = ?", stale.ID).
		UpdateColumn("created_at", time.Now().Add(-48*time.Hour)).Error)

	n, err := f.payments.ExpireStale(ctx, 24*time.Hour, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	expired := f.reload(t, stale.ID)
	assert.Equal(t, models.PaymentStatusFailed, expired.Status)
	assert.Equal(t, models.ReasonTimeoutCancelled, *expired.Reason)
	assert.Equal(t, models.PaymentStatusPending, f.reload(t, fresh.ID).Status)

	n, err = f.payments.ExpireStale(ctx, 24*time.Hour, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExpireStaleCancelsAtProvider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gw := &fakeGateway{name: "stripe"}
	checkout := newCheckout(f, gw)

	online := f.pending(t, f.order(t, f.courseA), models.MethodStripe)
	require.NoError(t, f.payments.SetProviderReference(ctx, online, "pi_stale", ""))
	manual := f.pending(t, f.order(t, f.courseB), models.MethodBank)
	require.NoError(t, f.db.Model(&models.Payment{}).Where("id IN ?", []string{online.ID, manual.ID}).
		UpdateColumn("created_at", time.Now().Add(-48*time.Hour)).Error)

	n, err := f.payments.ExpireStale(ctx, 24*time.Hour, checkout)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{online.ID}, gw.cancels)
	assert.Equal(t, models.PaymentStatusFailed, f.reload(t, online.ID).Status)
	assert.Equal(t, models.PaymentStatusFailed, f.reload(t, manual.ID).Status)
}

func TestExpireStaleKeepsPendingWhenCancelFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gw := &fakeGateway{name: "stripe", cancelErr: &GatewayError{Provider: "stripe", Err: errors.New("intent already succeeded")}}
	checkout := newCheckout(f, gw)

	p := f.pending(t, f.order(t, f.courseA), models.MethodStripe)
	require.NoError(t, f.payments.SetProviderReference(ctx, p, "pi_paid", ""))
	require.NoError(t, f.db.Model(&models.Payment{}).Where("id = ?", p.ID).
		UpdateColumn("created_at", time.Now().Add(-48*time.Hour)).Error)

	n, err := f.payments.ExpireStale(ctx, 24*time.Hour, checkout)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []string{p.ID}, gw.cancels)
	assert.Equal(t, models.PaymentStatusPending, f.reload(t, p.ID).Status)

	// поздний webhook провайдера все еще применим
	res, err := f.reconciler.Reconcile(ctx, &WebhookEvent{Provider: "stripe", Type: EventSucceeded, TransactionID: "pi_paid", CorrelationToken: p.CorrelationToken})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, res.Status)
	assert.Empty(t, res.Anomaly)
}

func TestListPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.pending(t, f.order(t, f.courseA), models.MethodStripe)
	f.pending(t, f.order(t, f.courseB), models.MethodStripe)
	_, err := f.payments.MarkFailed(ctx, p1.ID, models.ReasonDebitError)
	require.NoError(t, err)

	all, total, err := f.payments.List(ctx, PaymentFilter{UserID: f.student.ID, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, all, 2)

	failed := models.PaymentStatusFailed
	list, total, err := f.payments.List(ctx, PaymentFilter{Status: &failed, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, p1.ID, list[0].ID)

	_, total, err = f.payments.List(ctx, PaymentFilter{UserID: f.tutor.ID, Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
}
