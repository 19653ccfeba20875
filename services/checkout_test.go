package services

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otabeknarz/11tutors-backend/models"
)

type fakeGateway struct {
	name    string
	err     error
	calls   []GatewayCheckout
	refunds []string

	cancels   []string
	cancelErr error
}

func (g *fakeGateway) Name() string { return g.name }

func (g *fakeGateway) CreateCheckout(_ context.Context, req GatewayCheckout) (*CheckoutSession, error) {
	g.calls = append(g.calls, req)
	if g.err != nil {
		return nil, g.err
	}
	return &CheckoutSession{ProviderRef: "pi_" + req.PaymentID, ClientSecret: "secret_" + req.PaymentID}, nil
}

func (g *fakeGateway) Refund(_ context.Context, p *models.Payment) error {
	g.refunds = append(g.refunds, p.ID)
	return g.err
}

func (g *fakeGateway) Cancel(_ context.Context, p *models.Payment) error {
	g.cancels = append(g.cancels, p.ID)
	return g.cancelErr
}

func (g *fakeGateway) ParseWebhook([]byte, http.Header) (*WebhookEvent, error) {
	return nil, errors.New("not implemented")
}

func newCheckout(f *fixture, gw Gateway) *CheckoutService {
	return NewCheckoutService(f.db, f.payments, f.enrollments, map[models.PaymentMethod]Gateway{models.MethodStripe: gw})
}

func TestCheckoutStripe(t *testing.T) {
	f := newFixture(t)
	gw := &fakeGateway{name: "stripe"}
	svc := newCheckout(f, gw)

	res, err := svc.Checkout(context.Background(), f.student.ID, CheckoutInput{
		CourseIDs: []string{f.courseA.ID, f.courseB.ID, f.courseA.ID},
		Method:    models.MethodStripe,
	})
	require.NoError(t, err)
	assert.True(t, res.Order.TotalAmount.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, "secret_"+res.Payment.ID, res.ClientSecret)

	require.Len(t, gw.calls, 1)
	assert.Equal(t, res.Payment.CorrelationToken, gw.calls[0].CorrelationToken)
	assert.Equal(t, f.student.Email, gw.calls[0].CustomerEmail)

	stored := f.reload(t, res.Payment.ID)
	assert.Equal(t, models.PaymentStatusPending, stored.Status)
	require.NotNil(t, stored.PaymentIntent)
	assert.Equal(t, "pi_"+res.Payment.ID, *stored.PaymentIntent)
	assert.Nil(t, stored.TransactionID)
	var linked int64
	require.NoError(t, f.db.Table("order_courses").Where("order_id = ?", res.Order.ID).Count(&linked).Error)
	assert.EqualValues(t, 2, linked)
}

func TestCheckoutSkipsEnrolledCourses(t *testing.T) {
	f := newFixture(t)
	svc := newCheckout(f, &fakeGateway{name: "stripe"})
	f.enrollments.Grant(context.Background(), nil, f.student.ID, []string{f.courseA.ID})

	res, err := svc.Checkout(context.Background(), f.student.ID, CheckoutInput{
		CourseIDs: []string{f.courseA.ID, f.courseB.ID},
		Method:    models.MethodStripe,
	})
	require.NoError(t, err)
	assert.True(t, res.Payment.Amount.Equal(f.courseB.Price))
	assert.Equal(t, []string{f.courseB.ID}, res.Order.CourseIDs())

	_, err = svc.Checkout(context.Background(), f.student.ID, CheckoutInput{
		CourseIDs: []string{f.courseA.ID},
		Method:    models.MethodStripe,
	})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestCheckoutValidation(t *testing.T) {
	f := newFixture(t)
	svc := newCheckout(f, &fakeGateway{name: "stripe"})
	ctx := context.Background()
	require.NoError(t, f.db.Model(f.courseB).Update("is_published", false).Error)

	cases := []CheckoutInput{
		{CourseIDs: nil, Method: models.MethodStripe},
		{CourseIDs: []string{"missing"}, Method: models.MethodStripe},
		{CourseIDs: []string{f.courseB.ID}, Method: models.MethodStripe},
		{CourseIDs: []string{f.courseA.ID}, Method: models.MethodCard},
		{CourseIDs: []string{f.courseA.ID}, Method: "PAYPAL"},
		{CourseIDs: []string{f.courseA.ID}, Method: models.MethodStripe, Currency: "GBP"},
	}
	for _, in := range cases {
		_, err := svc.Checkout(ctx, f.student.ID, in)
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr, "%+v", in)
	}
	assert.Zero(t, f.count(t, &models.Payment{}, ""))
}

func TestCheckoutManualMethod(t *testing.T) {
	f := newFixture(t)
	svc := newCheckout(f, nil)

	res, err := svc.Checkout(context.Background(), f.student.ID, CheckoutInput{
		CourseIDs: []string{f.courseA.ID},
		Method:    models.MethodCash,
	})
	require.NoError(t, err)
	assert.Empty(t, res.ClientSecret)
	assert.Equal(t, models.CurrencyUSD, res.Payment.Currency)
	assert.Equal(t, models.CurrencyUSD, res.Order.Currency)
	assert.True(t, res.Payment.Amount.Equal(f.courseA.Price))
}

func TestCheckoutCurrencyFollowsCatalog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tashkent := &models.Course{Title: "Algebra", Slug: "algebra", Price: decimal.RequireFromString("250000"), Currency: models.CurrencyUZS, IsPublished: true}
	require.NoError(t, f.db.Create(tashkent).Error)

	card := &fakeGateway{name: "multicard"}
	svc := NewCheckoutService(f.db, f.payments, f.enrollments, map[models.PaymentMethod]Gateway{
		models.MethodStripe: &fakeGateway{name: "stripe"},
		models.MethodCard:   card,
	})

	// сумма в USD не может быть списана как UZS и наоборот
	rejected := []CheckoutInput{
		{CourseIDs: []string{f.courseA.ID}, Method: models.MethodCash, Currency: models.CurrencyUZS},
		{CourseIDs: []string{f.courseA.ID}, Method: models.MethodStripe, Currency: models.CurrencyUZS},
		{CourseIDs: []string{f.courseA.ID}, Method: models.MethodCard, Currency: models.CurrencyUZS},
		{CourseIDs: []string{f.courseA.ID}, Method: models.MethodCard},
		{CourseIDs: []string{tashkent.ID}, Method: models.MethodStripe, Currency: models.CurrencyUSD},
		{CourseIDs: []string{tashkent.ID, f.courseB.ID}, Method: models.MethodCash},
	}
	for _, in := range rejected {
		_, err := svc.Checkout(ctx, f.student.ID, in)
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr, "%+v", in)
	}
	assert.Zero(t, f.count(t, &models.Payment{}, ""))
	assert.Zero(t, f.count(t, &models.Order{}, ""))
	assert.Empty(t, card.calls)

	res, err := svc.Checkout(ctx, f.student.ID, CheckoutInput{CourseIDs: []string{tashkent.ID}, Method: models.MethodCard})
	require.NoError(t, err)
	assert.Equal(t, models.CurrencyUZS, res.Payment.Currency)
	assert.Equal(t, models.CurrencyUZS, res.Order.Currency)
	assert.True(t, res.Payment.Amount.Equal(tashkent.Price))
	require.Len(t, card.calls, 1)
	assert.Equal(t, models.CurrencyUZS, card.calls[0].Currency)
}

func TestCheckoutGatewayFailure(t *testing.T) {
	f := newFixture(t)
	svc := newCheckout(f, &fakeGateway{name: "stripe", err: errors.New("connection reset")})

	_, err := svc.Checkout(context.Background(), f.student.ID, CheckoutInput{
		CourseIDs: []string{f.courseA.ID},
		Method:    models.MethodStripe,
	})
	var gerr *GatewayError
	require.ErrorAs(t, err, &gerr)

	var p models.Payment
	require.NoError(t, f.db.First(&p).Error)
	assert.Equal(t, models.PaymentStatusFailed, p.Status)
	assert.Equal(t, models.ReasonUnknownError, *p.Reason)
}
