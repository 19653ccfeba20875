package services

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/otabeknarz/11tutors-backend/models"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const stripeProvider = "stripe"

// StripeGateway - оплата через Stripe PaymentIntents
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	return &StripeGateway{
		api:           client.New(secretKey, nil),
		webhookSecret: webhookSecret,
	}
}

func (g *StripeGateway) Name() string { return stripeProvider }

func (g *StripeGateway) CreateCheckout(ctx context.Context, req GatewayCheckout) (*CheckoutSession, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(minorUnits(req.Amount)),
		Currency:    stripe.String(strings.ToLower(string(req.Currency))),
		Description: stripe.String(req.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(req.CustomerEmail)
	}
	params.AddMetadata("correlation_token", req.CorrelationToken)
	params.AddMetadata("payment_id", req.PaymentID)
	params.SetIdempotencyKey(req.CorrelationToken)
	params.Context = ctx

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, &GatewayError{Provider: stripeProvider, Err: err}
	}
	return &CheckoutSession{ProviderRef: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (g *StripeGateway) Refund(ctx context.Context, p *models.Payment) error {
	intentID := ""
	switch {
	case p.TransactionID != nil:
		intentID = *p.TransactionID
	case p.PaymentIntent != nil:
		intentID = *p.PaymentIntent
	default:
		return validationErr("payment", "no stripe payment intent to refund")
	}
	params := &stripe.RefundParams{PaymentIntent: stripe.String(intentID)}
	params.SetIdempotencyKey("refund-" + p.ID)
	params.Context = ctx
	if _, err := g.api.Refunds.New(params); err != nil {
		return &GatewayError{Provider: stripeProvider, Err: err}
	}
	return nil
}

func (g *StripeGateway) Cancel(ctx context.Context, p *models.Payment) error {
	if p.PaymentIntent == nil {
		return nil
	}
	params := &stripe.PaymentIntentCancelParams{CancellationReason: stripe.String("abandoned")}
	params.Context = ctx
	if _, err := g.api.PaymentIntents.Cancel(*p.PaymentIntent, params); err != nil {
		return &GatewayError{Provider: stripeProvider, Err: err}
	}
	return nil
}

func (g *StripeGateway) ParseWebhook(payload []byte, header http.Header) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, header.Get("Stripe-Signature"), g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, &AuthenticationError{Provider: stripeProvider, Err: err}
	}

	ev := &WebhookEvent{
		Provider: stripeProvider,
		EventID:  event.ID,
		RawType:  string(event.Type),
		Payload:  payload,
	}

	switch string(event.Type) {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, validationErr("payload", "bad payment_intent object: %v", err)
		}
		ev.TransactionID = pi.ID
		ev.CorrelationToken = pi.Metadata["correlation_token"]
		switch string(event.Type) {
		case "payment_intent.succeeded":
			ev.Type = EventSucceeded
		case "payment_intent.payment_failed":
			ev.Type = EventFailed
			ev.Reason = models.ReasonTransactionError.Ptr()
		default:
			ev.Type = EventFailed
			ev.Reason = models.ReasonTimeoutCancelled.Ptr()
		}
	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, validationErr("payload", "bad charge object: %v", err)
		}
		if ch.PaymentIntent == nil || ch.PaymentIntent.ID == "" {
			return nil, validationErr("payload", "charge %s has no payment_intent", ch.ID)
		}
		ev.Type = EventRefunded
		ev.TransactionID = ch.PaymentIntent.ID
		ev.CorrelationToken = ch.Metadata["correlation_token"]
		ev.Reason = models.ReasonRefund.Ptr()
	default:
		ev.Type = EventIgnored
	}
	return ev, nil
}
