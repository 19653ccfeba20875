package services

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Jobs - фоновые задачи платежного контура и справочников
type Jobs struct {
	Payments   *PaymentService
	PendingTTL time.Duration
	Relay      *OutboxRelay
	Importer   *UniversityImporter

	// Canceller закрывает счет у провайдера перед просрочкой; nil - только локально
	Canceller ProviderCanceller
}

// StartCron регистрирует задачи и запускает планировщик. Остановка - Stop() у результата.
func StartCron(jobs Jobs) *cron.Cron {
	c := cron.New()

	if jobs.Payments != nil && jobs.PendingTTL > 0 {
		c.AddFunc("@every 10m", func() { // каждые 10 минут
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			n, err := jobs.Payments.ExpireStale(ctx, jobs.PendingTTL, jobs.Canceller)
			if err != nil {
				log.Printf("[PAYMENT CRON] ошибка: %v", err)
				return
			}
			if n > 0 {
				log.Printf("[PAYMENT CRON] просрочено платежей: %d", n)
			}
		})
	}

	if jobs.Relay != nil {
		c.AddFunc("@every 5s", func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if _, err := jobs.Relay.ProcessPending(ctx); err != nil {
				log.Printf("[OUTBOX] ошибка: %v", err)
			}
		})
	}

	if jobs.Importer != nil && jobs.Importer.url != "" {
		c.AddFunc("0 3 * * 1", func() { // по понедельникам в 03:00
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			if _, err := jobs.Importer.Import(ctx); err != nil {
				log.Printf("[UNIVERSITY CRON] ошибка: %v", err)
			}
		})
	}

	c.Start()
	log.Printf("[CRON] Планировщик запущен, задач: %d", len(c.Entries()))
	return c
}
