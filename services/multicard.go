package services

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/otabeknarz/11tutors-backend/models"
)

const multicardProvider = "multicard"

// MulticardConfig - настройки доступа к Multicard
type MulticardConfig struct {
	BaseURL     string
	AppID       string
	Secret      string
	StoreID     string
	CallbackURL string
	ReturnURL   string
}

// Multicard - сервис для работы с платежным шлюзом Multicard (карты UZS)
type Multicard struct {
	cfg    MulticardConfig
	client *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewMulticard создает новый сервис Multicard
func NewMulticard(cfg MulticardConfig) *Multicard {
	return &Multicard{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (m *Multicard) Name() string { return multicardProvider }

// multicardResponse - общий конверт ответов API
type multicardResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Details string `json:"details"`
	} `json:"error"`
}

func (r *multicardResponse) err(action string) error {
	errMsg := "unknown error"
	if r.Error != nil {
		errMsg = r.Error.Details
	}
	return fmt.Errorf("%s failed: %s", action, errMsg)
}

// getToken получает токен авторизации
func (m *Multicard) getToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Проверяем, есть ли действующий токен
	if m.token != "" && time.Now().Before(m.tokenExpiry.Add(-5*time.Minute)) {
		return m.token, nil
	}

	jsonData, _ := json.Marshal(map[string]string{
		"application_id": m.cfg.AppID,
		"secret":         m.cfg.Secret,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+"/auth", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("auth failed: %s", string(body))
	}

	var result struct {
		Token  string `json:"token"`
		Expiry string `json:"expiry"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("auth response: %w", err)
	}
	m.token = result.Token

	// Парсим время истечения
	if expiry, err := time.Parse("2006-01-02 15:04:05", result.Expiry); err == nil {
		m.tokenExpiry = expiry
	} else {
		m.tokenExpiry = time.Now().Add(1 * time.Hour)
	}

	log.Printf("Multicard: получили токен, действует до %s", m.tokenExpiry.Format("2006-01-02 15:04:05"))
	return m.token, nil
}

// request делает запрос к Multicard API и разбирает конверт ответа
func (m *Multicard) request(ctx context.Context, method, endpoint string, body interface{}) (*multicardResponse, error) {
	token, err := m.getToken(ctx)
	if err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.cfg.BaseURL+endpoint, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var result multicardResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &result, nil
}

// CreateCheckout создает счет; invoice_id = токен корреляции, он вернется в callback
func (m *Multicard) CreateCheckout(ctx context.Context, req GatewayCheckout) (*CheckoutSession, error) {
	if req.Currency != models.CurrencyUZS {
		return nil, validationErr("currency", "multicard accepts UZS only")
	}
	storeIDInt, _ := strconv.Atoi(m.cfg.StoreID)

	payload := map[string]interface{}{
		"store_id":     storeIDInt,
		"amount":       minorUnits(req.Amount),
		"invoice_id":   req.CorrelationToken,
		"return_url":   m.cfg.ReturnURL,
		"callback_url": m.cfg.CallbackURL,
		"lang":         "ru",
	}

	result, err := m.request(ctx, http.MethodPost, "/payment/invoice", payload)
	if err != nil {
		return nil, &GatewayError{Provider: multicardProvider, Err: err}
	}
	if !result.Success {
		return nil, &GatewayError{Provider: multicardProvider, Err: result.err("invoice creation")}
	}

	var data struct {
		UUID        string `json:"uuid"`
		CheckoutURL string `json:"checkout_url"`
	}
	if err := json.Unmarshal(result.Data, &data); err != nil {
		return nil, &GatewayError{Provider: multicardProvider, Err: err}
	}
	return &CheckoutSession{ProviderRef: data.UUID, CheckoutURL: data.CheckoutURL}, nil
}

// Refund отменяет (возвращает) оплаченную транзакцию
func (m *Multicard) Refund(ctx context.Context, p *models.Payment) error {
	uuid := ""
	switch {
	case p.TransactionID != nil:
		uuid = *p.TransactionID
	case p.PaymentIntent != nil:
		uuid = *p.PaymentIntent
	default:
		return validationErr("payment", "no multicard transaction to refund")
	}
	result, err := m.request(ctx, http.MethodDelete, "/payment/"+uuid, nil)
	if err != nil {
		return &GatewayError{Provider: multicardProvider, Err: err}
	}
	if !result.Success {
		return &GatewayError{Provider: multicardProvider, Err: result.err("refund")}
	}
	return nil
}

// Cancel аннулирует неоплаченный счет
func (m *Multicard) Cancel(ctx context.Context, p *models.Payment) error {
	if p.PaymentIntent == nil {
		return nil
	}
	result, err := m.request(ctx, http.MethodDelete, "/payment/invoice/"+*p.PaymentIntent, nil)
	if err != nil {
		return &GatewayError{Provider: multicardProvider, Err: err}
	}
	if !result.Success {
		return &GatewayError{Provider: multicardProvider, Err: result.err("invoice cancellation")}
	}
	return nil
}

// MulticardCallback - тело callback от Multicard
type MulticardCallback struct {
	StoreID        json.Number `json:"store_id"`
	InvoiceID      string      `json:"invoice_id"`
	StoreInvoiceID string      `json:"store_invoice_id"`
	UUID           string      `json:"uuid"`
	Amount         json.Number `json:"amount"`
	Status         string      `json:"status"`
	Sign           string      `json:"sign"`
}

func (cb *MulticardCallback) invoice() string {
	if cb.InvoiceID != "" {
		return cb.InvoiceID
	}
	return cb.StoreInvoiceID
}

// MulticardSign = md5(store_id + invoice_id + amount + secret)
func MulticardSign(storeID, invoiceID, amount, secret string) string {
	sum := md5.Sum([]byte(storeID + invoiceID + amount + secret))
	return hex.EncodeToString(sum[:])
}

func (m *Multicard) ParseWebhook(payload []byte, header http.Header) (*WebhookEvent, error) {
	var cb MulticardCallback
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&cb); err != nil {
		return nil, &AuthenticationError{Provider: multicardProvider, Err: fmt.Errorf("malformed callback: %w", err)}
	}

	expected := MulticardSign(cb.StoreID.String(), cb.invoice(), cb.Amount.String(), m.cfg.Secret)
	if cb.Sign == "" || subtle.ConstantTimeCompare([]byte(strings.ToLower(cb.Sign)), []byte(expected)) != 1 {
		return nil, &AuthenticationError{Provider: multicardProvider, Err: fmt.Errorf("sign mismatch for invoice %s", cb.invoice())}
	}
	if cb.StoreID.String() != m.cfg.StoreID {
		return nil, &AuthenticationError{Provider: multicardProvider, Err: fmt.Errorf("unexpected store_id %s", cb.StoreID)}
	}

	ev := &WebhookEvent{
		Provider:         multicardProvider,
		EventID:          cb.UUID + ":" + cb.Status,
		RawType:          cb.Status,
		TransactionID:    cb.UUID,
		CorrelationToken: cb.invoice(),
		Payload:          payload,
	}
	switch strings.ToLower(cb.Status) {
	case "success":
		ev.Type = EventSucceeded
	case "error", "failed", "cancelled", "canceled":
		ev.Type = EventFailed
		ev.Reason = models.ReasonDebitError.Ptr()
	case "revert", "refunded":
		ev.Type = EventRefunded
		ev.Reason = models.ReasonRefund.Ptr()
	default:
		ev.Type = EventIgnored
	}
	return ev, nil
}
