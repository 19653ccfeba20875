package models

import (
	"crypto/rand"
	"time"

	"gorm.io/gorm"
)

// UserRole - роль пользователя
type UserRole int

const (
	RoleAdmin   UserRole = 1
	RoleTutor   UserRole = 2
	RoleStudent UserRole = 3
	RoleUser    UserRole = 4
)

func (r UserRole) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleTutor:
		return "tutor"
	case RoleStudent:
		return "student"
	case RoleUser:
		return "user"
	}
	return "unknown"
}

// User - аккаунт платформы. ID - 12 случайных цифр.
type User struct {
	ID              string    `json:"id" gorm:"type:varchar(40);primaryKey"`
	Email           string    `json:"email" gorm:"type:varchar(254);uniqueIndex;not null"`
	FirstName       string    `json:"first_name" gorm:"type:varchar(150)"`
	LastName        string    `json:"last_name" gorm:"type:varchar(150)"`
	Password        string    `json:"-"`
	Role            UserRole  `json:"role" gorm:"not null;default:4"`
	IsEmailVerified bool      `json:"is_email_verified" gorm:"default:false"`
	GoogleID        *string   `json:"-" gorm:"type:varchar(64)"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = RandomDigits(12)
	}
	if u.Role == 0 {
		u.Role = RoleUser
	}
	return nil
}

func (u *User) FullName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// RandomDigits возвращает строку из n случайных цифр
func RandomDigits(n int) string {
	const digits = "0123456789"
	b := make([]byte, n)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = digits[int(b[i])%len(digits)]
	}
	return string(b)
}

// University - запись справочника университетов
type University struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"type:varchar(200);uniqueIndex;not null"`
	Description string    `json:"description"`
	Logo        string    `json:"logo"`
	Website     string    `json:"website" gorm:"type:varchar(200)"`
	Country     string    `json:"country" gorm:"type:varchar(200)"`
	City        string    `json:"city" gorm:"type:varchar(200)"`
	Location    string    `json:"location" gorm:"type:varchar(200)"`
	GlobalRank  *int      `json:"global_rank"`
	CountryRank *int      `json:"country_rank"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// OnboardingAnswer - ответ пользователя на анкету при первом входе
type OnboardingAnswer struct {
	ID           uint        `json:"id" gorm:"primaryKey"`
	UserID       *string     `json:"user_id" gorm:"type:varchar(40);index"`
	User         *User       `json:"-" gorm:"constraint:OnDelete:SET NULL;"`
	UniversityID *uint       `json:"university_id" gorm:"index"`
	University   *University `json:"university,omitempty" gorm:"constraint:OnDelete:SET NULL;"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}
