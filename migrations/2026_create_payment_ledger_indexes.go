package migrations

import "gorm.io/gorm"

// CreatePaymentLedgerIndexes - ограничения и частичные индексы, которые AutoMigrate не создает
func CreatePaymentLedgerIndexes(db *gorm.DB) error {
	return db.Exec(`
		DO $$
		BEGIN
			IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_payments_amount_positive') THEN
				ALTER TABLE payments ADD CONSTRAINT chk_payments_amount_positive CHECK (amount > 0);
			END IF;
			IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_payments_status') THEN
				ALTER TABLE payments ADD CONSTRAINT chk_payments_status CHECK (status IN (1, 2, -1, -2));
			END IF;
		END $$;

		-- Поиск просроченных PENDING платежей
		CREATE INDEX IF NOT EXISTS idx_payments_pending_created_at
		ON payments(created_at)
		WHERE status = 1;

		CREATE INDEX IF NOT EXISTS idx_payments_intent
		ON payments(stripe_payment_intent)
		WHERE stripe_payment_intent IS NOT NULL;

		CREATE INDEX IF NOT EXISTS idx_payments_user_created_at ON payments(user_id, created_at DESC);
	`).Error
}
