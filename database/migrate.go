package database

import (
	"fmt"

	"github.com/otabeknarz/11tutors-backend/migrations"
	"github.com/otabeknarz/11tutors-backend/models"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return err
	}

	// Остальное - только для PostgreSQL (в тестах sqlite)
	if db.Dialector.Name() != "postgres" {
		return nil
	}

	// Внешние ключи таблиц, созданных до появления тегов constraint
	m := db.Migrator()
	for _, rel := range models.Relations {
		if m.HasConstraint(rel.Model, rel.Field) {
			continue
		}
		if err := m.CreateConstraint(rel.Model, rel.Field); err != nil {
			return fmt.Errorf("constraint %T.%s: %w", rel.Model, rel.Field, err)
		}
	}

	if err := migrations.CreatePaymentLedgerIndexes(db); err != nil {
		return err
	}
	return migrations.CreateOutboxIndexes(db)
}
