package services

import (
	"context"
	"net/http"

	"github.com/otabeknarz/11tutors-backend/models"

	"github.com/shopspring/decimal"
)

// Типы событий провайдера после нормализации
type WebhookEventType string

const (
	EventSucceeded WebhookEventType = "succeeded"
	EventFailed    WebhookEventType = "failed"
	EventRefunded  WebhookEventType = "refunded"
	// EventIgnored - событие провайдера, не влияющее на статус платежа
	EventIgnored WebhookEventType = ""
)

// WebhookEvent - уведомление провайдера, прошедшее проверку подписи
type WebhookEvent struct {
	Provider         string
	EventID          string
	RawType          string
	Type             WebhookEventType
	TransactionID    string
	CorrelationToken string
	Reason           *models.PaymentReason
	Payload          []byte
}

// GatewayCheckout - данные для создания платежа у провайдера
type GatewayCheckout struct {
	PaymentID        string
	CorrelationToken string
	Amount           decimal.Decimal
	Currency         models.Currency
	Description      string
	CustomerEmail    string
}

// CheckoutSession - ответ провайдера для клиента
type CheckoutSession struct {
	ProviderRef  string
	ClientSecret string
	CheckoutURL  string
}

// Gateway - платежный провайдер
type Gateway interface {
	Name() string
	CreateCheckout(ctx context.Context, req GatewayCheckout) (*CheckoutSession, error)
	Refund(ctx context.Context, p *models.Payment) error
	// Cancel закрывает неоплаченное намерение/счет, чтобы по нему нельзя было заплатить
	Cancel(ctx context.Context, p *models.Payment) error
	// ParseWebhook проверяет подпись и нормализует событие; ошибка подписи - *AuthenticationError
	ParseWebhook(payload []byte, header http.Header) (*WebhookEvent, error)
}

// minorUnits переводит сумму в центы/тийины
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
