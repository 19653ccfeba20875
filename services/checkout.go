package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/otabeknarz/11tutors-backend/models"
	"github.com/otabeknarz/11tutors-backend/utils"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CheckoutInput - список курсов и способ оплаты
type CheckoutInput struct {
	CourseIDs []string
	Method    models.PaymentMethod
	Currency  models.Currency
}

// CheckoutResult - созданный заказ, платеж и данные для клиента
type CheckoutResult struct {
	Order        *models.Order   `json:"order"`
	Payment      *models.Payment `json:"payment"`
	ClientSecret string          `json:"client_secret,omitempty"`
	CheckoutURL  string          `json:"checkout_url,omitempty"`
}

type CheckoutService struct {
	db          *gorm.DB
	payments    *PaymentService
	enrollments *EnrollmentService
	gateways    map[models.PaymentMethod]Gateway
}

// NewCheckoutService: gateways - провайдер для каждого онлайн-метода (STRIPE, CARD).
// BANK и CASH подтверждаются администратором вручную.
func NewCheckoutService(db *gorm.DB, payments *PaymentService, enrollments *EnrollmentService, gateways map[models.PaymentMethod]Gateway) *CheckoutService {
	if gateways == nil {
		gateways = map[models.PaymentMethod]Gateway{}
	}
	return &CheckoutService{db: db, payments: payments, enrollments: enrollments, gateways: gateways}
}

// GatewayFor возвращает провайдера метода оплаты (nil для ручных методов)
func (s *CheckoutService) GatewayFor(method models.PaymentMethod) Gateway {
	return s.gateways[method]
}

// CancelAtProvider закрывает счет провайдера для зависшего платежа; для ручных методов ничего не делает
func (s *CheckoutService) CancelAtProvider(ctx context.Context, p *models.Payment) error {
	gateway := s.gateways[p.Method]
	if gateway == nil || p.PaymentIntent == nil {
		return nil
	}
	return gateway.Cancel(ctx, p)
}

func (s *CheckoutService) Checkout(ctx context.Context, userID string, in CheckoutInput) (*CheckoutResult, error) {
	if !in.Method.Valid() {
		return nil, validationErr("method", "unsupported payment method %q", in.Method)
	}
	if in.Currency != "" && !in.Currency.Valid() {
		return nil, validationErr("currency", "unsupported currency %q", in.Currency)
	}
	gateway := s.gateways[in.Method]
	if gateway == nil && (in.Method == models.MethodStripe || in.Method == models.MethodCard) {
		return nil, validationErr("method", "%s payments are not configured", in.Method)
	}

	courseIDs := dedupe(in.CourseIDs)
	if len(courseIDs) == 0 {
		return nil, validationErr("course_ids", "at least one course is required")
	}

	var user models.User
	result := &CheckoutResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return validationErr("user", "user not found")
			}
			return err
		}

		var courses []models.Course
		if err := tx.Where("id IN ? AND is_published = ?", courseIDs, true).Find(&courses).Error; err != nil {
			return err
		}
		if len(courses) != len(courseIDs) {
			return validationErr("course_ids", "unknown or unpublished courses: %s", strings.Join(missing(courseIDs, courses), ", "))
		}

		enrolled, err := s.enrollments.EnrolledCourseIDs(ctx, tx, userID, courseIDs)
		if err != nil {
			return err
		}
		toBuy := make([]models.Course, 0, len(courses))
		titles := make([]string, 0, len(courses))
		total := decimal.Zero
		for _, c := range courses {
			if enrolled[c.ID] {
				continue
			}
			toBuy = append(toBuy, c)
			titles = append(titles, c.Title)
			total = total.Add(c.Price)
		}
		if len(toBuy) == 0 {
			return validationErr("course_ids", "already enrolled in all selected courses")
		}
		currency, err := catalogCurrency(toBuy)
		if err != nil {
			return err
		}
		// сумма берется из каталога как есть, конвертации нет
		if in.Currency != "" && in.Currency != currency {
			return validationErr("currency", "courses are priced in %s, not %s", currency, in.Currency)
		}
		if in.Method == models.MethodCard && currency != models.CurrencyUZS {
			return validationErr("currency", "card payments are accepted for UZS-priced courses only")
		}

		order := &models.Order{UserID: userID, Courses: toBuy, TotalAmount: total, Currency: currency}
		if err := tx.Omit("Courses.*").Create(order).Error; err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		description := fmt.Sprintf("Оплата курсов: %s (%s)", strings.Join(titles, ", "), utils.FormatAmount(total, string(currency)))
		payment, err := s.payments.CreatePending(ctx, tx, order, total, currency, in.Method, description)
		if err != nil {
			return err
		}
		result.Order = order
		result.Payment = payment
		return nil
	})
	if err != nil {
		return nil, err
	}

	if gateway == nil {
		return result, nil
	}

	// вызов провайдера вне транзакции БД
	session, err := gateway.CreateCheckout(ctx, GatewayCheckout{
		PaymentID:        result.Payment.ID,
		CorrelationToken: result.Payment.CorrelationToken,
		Amount:           result.Payment.Amount,
		Currency:         result.Payment.Currency,
		Description:      result.Payment.Description,
		CustomerEmail:    user.Email,
	})
	if err != nil {
		utils.LogError(err, "Checkout "+gateway.Name())
		if _, ferr := s.payments.MarkFailed(ctx, result.Payment.ID, models.ReasonUnknownError); ferr != nil {
			utils.LogError(ferr, "Checkout mark failed")
		}
		var verr *ValidationError
		if errors.As(err, &verr) {
			return nil, err
		}
		var gerr *GatewayError
		if errors.As(err, &gerr) {
			return nil, err
		}
		return nil, &GatewayError{Provider: gateway.Name(), Err: err}
	}

	if err := s.payments.SetProviderReference(ctx, result.Payment, session.ProviderRef, session.CheckoutURL); err != nil {
		return nil, fmt.Errorf("save provider reference: %w", err)
	}
	result.ClientSecret = session.ClientSecret
	result.CheckoutURL = session.CheckoutURL
	return result, nil
}

// catalogCurrency - общая валюта цен курсов; смешанные валюты в одном заказе не допускаются
func catalogCurrency(courses []models.Course) (models.Currency, error) {
	currency := models.CurrencyUSD
	for i, c := range courses {
		cc := c.Currency
		if cc == "" {
			cc = models.CurrencyUSD
		}
		if i == 0 {
			currency = cc
			continue
		}
		if cc != currency {
			return "", validationErr("course_ids", "courses are priced in different currencies (%s, %s)", currency, cc)
		}
	}
	return currency, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func missing(ids []string, found []models.Course) []string {
	have := make(map[string]bool, len(found))
	for _, c := range found {
		have[c.ID] = true
	}
	var out []string
	for _, id := range ids {
		if !have[id] {
			out = append(out, id)
		}
	}
	return out
}
