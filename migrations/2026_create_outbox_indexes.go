package migrations

import "gorm.io/gorm"

// CreateOutboxIndexes создает индекс для выборки неопубликованных событий
func CreateOutboxIndexes(db *gorm.DB) error {
	return db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_outbox_events_pending
		ON outbox_events(id)
		WHERE status = 'pending';

		CREATE INDEX IF NOT EXISTS idx_payment_anomalies_created_at ON payment_anomalies(created_at DESC);
	`).Error
}
