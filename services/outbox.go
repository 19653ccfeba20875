package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/otabeknarz/11tutors-backend/models"
	"github.com/otabeknarz/11tutors-backend/utils"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentEvent - полезная нагрузка событий payment.*
type PaymentEvent struct {
	PaymentID     string                `json:"payment_id"`
	UserID        *string               `json:"user_id"`
	OrderID       *string               `json:"order_id"`
	Status        string                `json:"status"`
	Amount        decimal.Decimal       `json:"amount"`
	Currency      models.Currency       `json:"currency"`
	TransactionID *string               `json:"transaction_id,omitempty"`
	Reason        *models.PaymentReason `json:"reason,omitempty"`
	Grants        *GrantReport          `json:"grants,omitempty"`
	OccurredAt    time.Time             `json:"occurred_at"`
}

func newPaymentEvent(p *models.Payment) PaymentEvent {
	return PaymentEvent{
		PaymentID:     p.ID,
		UserID:        p.UserID,
		OrderID:       p.OrderID,
		Status:        p.Status.String(),
		Amount:        p.Amount,
		Currency:      p.Currency,
		TransactionID: p.TransactionID,
		Reason:        p.Reason,
		OccurredAt:    time.Now(),
	}
}

// enqueueEvent пишет событие в outbox в рамках текущей транзакции
func enqueueEvent(tx *gorm.DB, eventType string, payload interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return tx.Create(&models.OutboxEvent{
		Type:    eventType,
		Payload: b,
		Status:  models.OutboxStatusPending,
	}).Error
}

// Publisher отправляет событие во внешний брокер
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload []byte) error
}

// AMQPPublisher публикует события в очередь RabbitMQ
type AMQPPublisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewAMQPPublisher(url, queue string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	_, err = ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, eventType string, payload []byte) error {
	return p.ch.PublishWithContext(ctx,
		"",
		p.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         payload,
			Type:         eventType,
			Timestamp:    time.Now(),
		},
	)
}

func (p *AMQPPublisher) Close() error {
	p.ch.Close()
	return p.conn.Close()
}

// OutboxRelay переносит pending события из outbox_events в брокер
type OutboxRelay struct {
	db        *gorm.DB
	publisher Publisher
	batchSize int
}

func NewOutboxRelay(db *gorm.DB, publisher Publisher) *OutboxRelay {
	return &OutboxRelay{db: db, publisher: publisher, batchSize: 50}
}

// ProcessPending публикует очередную пачку событий и возвращает число отправленных
func (r *OutboxRelay) ProcessPending(ctx context.Context) (int, error) {
	var events []models.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("status = ?", models.OutboxStatusPending).
		Order("id").
		Limit(r.batchSize).
		Find(&events).Error
	if err != nil {
		return 0, fmt.Errorf("load outbox events: %w", err)
	}

	sent := 0
	for _, ev := range events {
		if err := r.publisher.Publish(ctx, ev.Type, ev.Payload); err != nil {
			// остальные попробуем на следующем тике, порядок сохраняется
			utils.LogError(err, fmt.Sprintf("outbox publish id=%d type=%s", ev.ID, ev.Type))
			return sent, err
		}
		now := time.Now()
		err := r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
			Where("id = ?", ev.ID).
			Updates(map[string]interface{}{"status": models.OutboxStatusProcessed, "processed_at": now}).Error
		if err != nil {
			utils.LogError(err, fmt.Sprintf("outbox mark processed id=%d", ev.ID))
			return sent, err
		}
		sent++
	}
	if sent > 0 {
		log.Printf("[OUTBOX] отправлено событий: %d", sent)
	}
	return sent, nil
}
