package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/otabeknarz/11tutors-backend/config"
	"github.com/otabeknarz/11tutors-backend/database"
	"github.com/otabeknarz/11tutors-backend/models"
	"github.com/otabeknarz/11tutors-backend/routes"
	"github.com/otabeknarz/11tutors-backend/services"
	"github.com/otabeknarz/11tutors-backend/utils"
)

func main() {
	// Устанавливаем часовой пояс Узбекистана для всех логов
	time.Local = utils.TashkentLocation()

	cfg := config.LoadConfig()

	if err := utils.InitLogger(); err != nil {
		log.Printf("file loggers disabled: %v", err)
	}

	// Подключение к PostgreSQL
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	log.Println("Connected to PostgreSQL")

	// Миграция
	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}
	log.Println("Migration complete")

	if err := database.SeedAdmin(db, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Fatalf("failed to seed admin: %v", err)
	}
	if err := database.SeedCategories(db); err != nil {
		log.Fatalf("failed to seed categories: %v", err)
	}

	// Подключение к Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	log.Println("Connected to Redis")

	var mailer utils.Mailer
	if cfg.SMTPHost != "" {
		mailer = &utils.SMTPMailer{Host: cfg.SMTPHost, Port: cfg.SMTPPort, User: cfg.SMTPUser, Password: cfg.SMTPPass}
	} else {
		log.Println("SMTP_HOST is empty, verification emails are not sent")
	}

	// Платежные провайдеры
	checkoutGateways := map[models.PaymentMethod]services.Gateway{}
	webhookGateways := map[string]services.Gateway{}
	if cfg.StripeSecretKey != "" {
		gw := services.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
		checkoutGateways[models.MethodStripe] = gw
		webhookGateways[gw.Name()] = gw
		log.Println("Stripe gateway enabled")
	}
	if cfg.MulticardAppID != "" {
		gw := services.NewMulticard(services.MulticardConfig{
			BaseURL:     cfg.MulticardBaseURL,
			AppID:       cfg.MulticardAppID,
			Secret:      cfg.MulticardSecret,
			StoreID:     cfg.MulticardStoreID,
			CallbackURL: cfg.MulticardCallback,
			ReturnURL:   cfg.PaymentReturnURL,
		})
		checkoutGateways[models.MethodCard] = gw
		webhookGateways[gw.Name()] = gw
		log.Println("Multicard gateway enabled")
	}

	enrollments := services.NewEnrollmentService(db)
	payments := services.NewPaymentService(db, enrollments)
	checkout := services.NewCheckoutService(db, payments, enrollments, checkoutGateways)
	importer := services.NewUniversityImporter(db, cfg.UniversityRankingURL)

	jobs := services.Jobs{
		Payments:   payments,
		PendingTTL: cfg.PaymentPendingTTL,
		Importer:   importer,
		Canceller:  checkout,
	}
	if cfg.RabbitMQURL != "" {
		publisher, err := services.NewAMQPPublisher(cfg.RabbitMQURL, cfg.PaymentEventsQueue)
		if err != nil {
			log.Fatalf("failed to connect to rabbitmq: %v", err)
		}
		defer publisher.Close()
		jobs.Relay = services.NewOutboxRelay(db, publisher)
		log.Println("Connected to RabbitMQ")
	} else {
		log.Println("RABBITMQ_URL is empty, outbox relay disabled")
	}
	scheduler := services.StartCron(jobs)
	defer scheduler.Stop()

	r := routes.SetupRouter(&routes.Dependencies{
		Config:      cfg,
		DB:          db,
		RDB:         rdb,
		Users:       services.NewUserService(db, rdb, mailer, cfg.JWTSecret, cfg.BaseURL),
		Payments:    payments,
		Checkout:    checkout,
		Enrollments: enrollments,
		Reconciler:  services.NewReconciler(db, payments),
		Stats:       services.NewStatsService(db, rdb),
		Importer:    importer,
		Gateways:    webhookGateways,
	})

	go func() {
		log.Printf("Server is running on port %s", cfg.Port)
		if err := r.Run(":" + cfg.Port); err != nil {
			log.Fatalf("Failed to run server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")
}
