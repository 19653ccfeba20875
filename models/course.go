package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Category struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"type:varchar(100);not null"`
	Slug        string    `json:"slug" gorm:"type:varchar(100);uniqueIndex"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Course - курс. Price указана в Currency (по умолчанию USD).
type Course struct {
	ID          string          `json:"id" gorm:"type:varchar(36);primaryKey"`
	Title       string          `json:"title" gorm:"type:varchar(255);not null"`
	Slug        string          `json:"slug" gorm:"type:varchar(255);uniqueIndex"`
	Thumbnail   string          `json:"thumbnail"`
	Description string          `json:"description"`
	Tutors      []User          `json:"-" gorm:"many2many:course_tutors;constraint:OnDelete:CASCADE;"`
	CategoryID  *uint           `json:"category_id" gorm:"index"`
	Category    *Category       `json:"category,omitempty" gorm:"constraint:OnDelete:SET NULL;"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(10,2);not null;default:0"`
	Currency    Currency        `json:"currency" gorm:"type:varchar(10);not null;default:'USD'"`
	IsPublished bool            `json:"is_published" gorm:"default:false"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (c *Course) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Currency == "" {
		c.Currency = CurrencyUSD
	}
	return nil
}

type CoursePart struct {
	ID          string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	CourseID    string    `json:"course_id" gorm:"type:varchar(36);not null;index"`
	Course      *Course   `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
	Title       string    `json:"title" gorm:"type:varchar(255);not null"`
	Description string    `json:"description"`
	Order       int       `json:"order" gorm:"column:sort_order;default:0"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (p *CoursePart) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

type Lesson struct {
	ID             string         `json:"id" gorm:"type:varchar(36);primaryKey"`
	PartID         string         `json:"part_id" gorm:"type:varchar(36);not null;index"`
	Part           *CoursePart    `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
	Title          string         `json:"title" gorm:"type:varchar(255);not null"`
	Description    string         `json:"description"`
	VideoServiceID *string        `json:"-" gorm:"type:varchar(255)"`
	Order          int            `json:"order" gorm:"column:sort_order;default:0"`
	Duration       *time.Duration `json:"duration"`
	IsFreePreview  bool           `json:"is_free_preview" gorm:"default:false"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (l *Lesson) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// Enrollment - право доступа студента к курсу. Пара (student, course) уникальна.
type Enrollment struct {
	ID         string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	StudentID  string    `json:"student_id" gorm:"type:varchar(40);not null;uniqueIndex:idx_enrollment_student_course"`
	Student    *User     `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
	CourseID   string    `json:"course_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_enrollment_student_course;index"`
	Course     *Course   `json:"course,omitempty" gorm:"constraint:OnDelete:CASCADE;"`
	EnrolledAt time.Time `json:"enrolled_at" gorm:"not null"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (e *Enrollment) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.EnrolledAt.IsZero() {
		e.EnrolledAt = time.Now()
	}
	return nil
}
