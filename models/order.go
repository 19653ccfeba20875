package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order - намерение купить один или несколько курсов. Все курсы заказа в одной валюте.
type Order struct {
	ID          string          `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID      string          `json:"user_id" gorm:"type:varchar(40);not null;index:idx_user_orders"`
	User        *User           `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
	Courses     []Course        `json:"courses,omitempty" gorm:"many2many:order_courses;constraint:OnDelete:CASCADE;"`
	TotalAmount decimal.Decimal `json:"total_amount" gorm:"type:decimal(10,2);not null"`
	Currency    Currency        `json:"currency" gorm:"type:varchar(10);not null;default:'USD'"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Currency == "" {
		o.Currency = CurrencyUSD
	}
	return nil
}

// CourseIDs возвращает идентификаторы курсов заказа (Courses должны быть подгружены)
func (o *Order) CourseIDs() []string {
	ids := make([]string, 0, len(o.Courses))
	for _, c := range o.Courses {
		ids = append(ids, c.ID)
	}
	return ids
}

// OrderResponse структура ответа для заказа
type OrderResponse struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	CourseIDs   []string        `json:"course_ids"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    Currency        `json:"currency"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (o *Order) Response() OrderResponse {
	return OrderResponse{
		ID:          o.ID,
		UserID:      o.UserID,
		CourseIDs:   o.CourseIDs(),
		TotalAmount: o.TotalAmount,
		Currency:    o.Currency,
		CreatedAt:   o.CreatedAt,
	}
}
