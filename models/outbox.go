package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	OutboxStatusPending   = "pending"
	OutboxStatusProcessed = "processed"
)

// Типы событий платежного контура
const (
	EventPaymentCompleted    = "payment.completed"
	EventPaymentFailed       = "payment.failed"
	EventPaymentRefunded     = "payment.refunded"
	EventPaymentAnomaly      = "payment.anomaly"
	EventEnrollmentGrantFail = "enrollment.grant_failed"
)

// OutboxEvent пишется в той же транзакции, что и изменение платежа,
// и позже публикуется в брокер (см. services.OutboxRelay)
type OutboxEvent struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	Type        string         `json:"type" gorm:"type:varchar(100);not null"`
	Payload     datatypes.JSON `json:"payload" gorm:"not null"`
	Status      string         `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	ProcessedAt *time.Time     `json:"processed_at"`
	CreatedAt   time.Time      `json:"created_at"`
}
