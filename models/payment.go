package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PaymentStatus - статус платежа. Значения совпадают с историческими кодами в БД.
type PaymentStatus int

const (
	PaymentStatusPending   PaymentStatus = 1
	PaymentStatusCompleted PaymentStatus = 2
	PaymentStatusFailed    PaymentStatus = -1
	PaymentStatusRefunded  PaymentStatus = -2
)

func (s PaymentStatus) String() string {
	switch s {
	case PaymentStatusPending:
		return "pending"
	case PaymentStatusCompleted:
		return "completed"
	case PaymentStatusFailed:
		return "failed"
	case PaymentStatusRefunded:
		return "refunded"
	}
	return "unknown"
}

func (s PaymentStatus) Valid() bool {
	return s.String() != "unknown"
}

// CanTransitionTo: PENDING -> COMPLETED|FAILED, COMPLETED -> REFUNDED. Больше ничего.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return next == PaymentStatusCompleted || next == PaymentStatusFailed
	case PaymentStatusCompleted:
		return next == PaymentStatusRefunded
	}
	return false
}

// ParsePaymentStatus принимает как код ("2"), так и имя ("completed")
func ParsePaymentStatus(v string) (PaymentStatus, bool) {
	for _, s := range []PaymentStatus{PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded} {
		if v == s.String() {
			return s, true
		}
	}
	switch v {
	case "1":
		return PaymentStatusPending, true
	case "2":
		return PaymentStatusCompleted, true
	case "-1":
		return PaymentStatusFailed, true
	case "-2":
		return PaymentStatusRefunded, true
	}
	return 0, false
}

// PaymentReason - причина отмены/возврата (коды провайдера)
type PaymentReason int

const (
	ReasonRecipientNotFound PaymentReason = 1
	ReasonDebitError        PaymentReason = 2
	ReasonTransactionError  PaymentReason = 3
	ReasonTimeoutCancelled  PaymentReason = 4
	ReasonRefund            PaymentReason = 5
	ReasonUnknownError      PaymentReason = 10
)

func (r PaymentReason) Valid() bool {
	switch r {
	case ReasonRecipientNotFound, ReasonDebitError, ReasonTransactionError,
		ReasonTimeoutCancelled, ReasonRefund, ReasonUnknownError:
		return true
	}
	return false
}

func (r PaymentReason) Ptr() *PaymentReason {
	return &r
}

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyUZS Currency = "UZS"
	CurrencyRUB Currency = "RUB"
)

func (c Currency) Valid() bool {
	switch c {
	case CurrencyUSD, CurrencyEUR, CurrencyUZS, CurrencyRUB:
		return true
	}
	return false
}

type PaymentMethod string

const (
	MethodCard   PaymentMethod = "CARD"
	MethodStripe PaymentMethod = "STRIPE"
	MethodBank   PaymentMethod = "BANK"
	MethodCash   PaymentMethod = "CASH"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCard, MethodStripe, MethodBank, MethodCash:
		return true
	}
	return false
}

// Payment - одна попытка оплаты заказа.
// TransactionID уникален, когда задан: это ключ идемпотентности при сверке с провайдером.
// CorrelationToken выдается при создании платежа и передается провайдеру,
// чтобы первый webhook смог найти платеж еще до того, как мы узнали TransactionID.
type Payment struct {
	ID               string          `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID           *string         `json:"user_id" gorm:"type:varchar(40);index"`
	User             *User           `json:"-" gorm:"constraint:OnDelete:SET NULL;"`
	Amount           decimal.Decimal `json:"amount" gorm:"type:decimal(10,2);not null"`
	Currency         Currency        `json:"currency" gorm:"type:varchar(10);not null;default:'USD'"`
	Method           PaymentMethod   `json:"method" gorm:"type:varchar(10);not null"`
	Status           PaymentStatus   `json:"status" gorm:"not null;index"`
	Reason           *PaymentReason  `json:"reason"`
	TransactionID    *string         `json:"transaction_id,omitempty" gorm:"type:varchar(100);uniqueIndex"`
	PaymentIntent    *string         `json:"payment_intent,omitempty" gorm:"column:stripe_payment_intent;type:varchar(100)"`
	CorrelationToken string          `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	OrderID          *string         `json:"order_id" gorm:"type:varchar(36);index"`
	Order            *Order          `json:"-" gorm:"constraint:OnDelete:SET NULL;"`
	Description      string          `json:"description"`
	CheckoutURL      string          `json:"checkout_url,omitempty"`
	CancelTime       *time.Time      `json:"cancel_time"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// HasTransaction сообщает, привязан ли платеж к данной транзакции провайдера
func (p *Payment) HasTransaction(transactionID string) bool {
	return p.TransactionID != nil && *p.TransactionID == transactionID
}

// Типы аномалий сверки
const (
	AnomalyTransitionConflict = "transition_conflict"
	AnomalyTokenMismatch      = "token_mismatch"
	AnomalyPartialGrant       = "partial_grant"
)

// PaymentAnomaly - событие, требующее ручного разбора (конфликт статусов, частичная выдача доступа)
type PaymentAnomaly struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	Kind          string         `json:"kind" gorm:"type:varchar(32);not null;index"`
	Provider      string         `json:"provider" gorm:"type:varchar(32)"`
	EventID       string         `json:"event_id" gorm:"type:varchar(255)"`
	EventType     string         `json:"event_type" gorm:"type:varchar(64)"`
	TransactionID string         `json:"transaction_id" gorm:"type:varchar(100);index"`
	PaymentID     *string        `json:"payment_id" gorm:"type:varchar(36);index"`
	Payment       *Payment       `json:"-" gorm:"constraint:OnDelete:SET NULL;"`
	PaymentStatus PaymentStatus  `json:"payment_status"`
	Detail        string         `json:"detail"`
	Payload       datatypes.JSON `json:"payload"`
	CreatedAt     time.Time      `json:"created_at"`
}

// CheckoutRequest - запрос на оформление покупки
type CheckoutRequest struct {
	CourseIDs []string      `json:"course_ids" binding:"required,min=1"`
	Method    PaymentMethod `json:"method" binding:"required"`
	Currency  Currency      `json:"currency"`
}

// SettleRequest - ручное подтверждение платежа администратором
type SettleRequest struct {
	TransactionID string         `json:"transaction_id" binding:"required"`
	Reason        *PaymentReason `json:"reason,omitempty"`
}

// ReasonRequest - отмена или возврат с указанием причины
type ReasonRequest struct {
	Reason *PaymentReason `json:"reason,omitempty"`
}
