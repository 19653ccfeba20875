package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/otabeknarz/11tutors-backend/models"
	"github.com/otabeknarz/11tutors-backend/utils"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailNotVerified   = errors.New("email is not verified")
	ErrUserNotFound       = errors.New("user not found")
)

// RateLimitError - письмо уже отправлялось недавно
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string { return e.Message }

// TokenPair - access + refresh токены
type TokenPair struct {
	Access        string `json:"access"`
	Refresh       string `json:"refresh"`
	RefreshExpiry int64  `json:"refresh_expires_at"`
}

type RegisterInput struct {
	Email     string          `json:"email" binding:"required"`
	Password  string          `json:"password" binding:"required,min=8"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	Role      models.UserRole `json:"role"`
}

type UserService struct {
	DB        *gorm.DB
	RDB       *redis.Client
	Mailer    utils.Mailer
	JWTSecret string
	BaseURL   string
}

func NewUserService(db *gorm.DB, rdb *redis.Client, mailer utils.Mailer, jwtSecret, baseURL string) *UserService {
	return &UserService{DB: db, RDB: rdb, Mailer: mailer, JWTSecret: jwtSecret, BaseURL: baseURL}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register создает студента или преподавателя и отправляет письмо подтверждения
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := normalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, validationErr("email", "invalid email")
	}
	role := in.Role
	if role == 0 {
		role = models.RoleStudent
	}
	if role != models.RoleStudent && role != models.RoleTutor {
		return nil, validationErr("role", "only student or tutor can register")
	}

	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if count > 0 {
		return nil, ErrUserExists
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &models.User{
		Email:     email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Password:  hash,
		Role:      role,
	}
	if err := s.DB.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	if err := s.SendVerification(ctx, user); err != nil {
		// аккаунт создан, письмо можно запросить повторно
		utils.LogError(err, "Register: send verification")
	}
	return user, nil
}

// SendVerification отправляет письмо со ссылкой (не чаще 1/мин и 10/час)
func (s *UserService) SendVerification(ctx context.Context, user *models.User) error {
	if ok, msg := utils.CanSendVerification(ctx, s.RDB, user.Email); !ok {
		return &RateLimitError{Message: msg}
	}
	token, err := utils.GenerateEmailToken(user.Email, s.JWTSecret)
	if err != nil {
		return err
	}
	subject, body := utils.VerificationEmail(s.BaseURL, token)
	if s.Mailer != nil {
		if err := s.Mailer.Send(user.Email, subject, body); err != nil {
			return fmt.Errorf("send email: %w", err)
		}
	}
	utils.MarkVerificationSent(ctx, s.RDB, user.Email)
	return nil
}

func (s *UserService) ResendVerification(ctx context.Context, email string) error {
	var user models.User
	if err := s.DB.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		return ErrUserNotFound
	}
	if user.IsEmailVerified {
		return validationErr("email", "already verified")
	}
	return s.SendVerification(ctx, &user)
}

func (s *UserService) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	email, err := utils.ParseEmailToken(token, s.JWTSecret)
	if err != nil {
		return nil, validationErr("token", "invalid or expired token")
	}
	var user models.User
	if err := s.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, ErrUserNotFound
	}
	if !user.IsEmailVerified {
		user.IsEmailVerified = true
		if err := s.DB.WithContext(ctx).Model(&user).Update("is_email_verified", true).Error; err != nil {
			return nil, err
		}
	}
	return &user, nil
}

func (s *UserService) issueTokens(user *models.User) (*TokenPair, error) {
	access, err := utils.GenerateJWT(user.ID, int(user.Role), s.JWTSecret)
	if err != nil {
		return nil, err
	}
	refresh, exp, err := utils.GenerateRefreshToken(user.ID, s.JWTSecret)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh, RefreshExpiry: exp}, nil
}

func (s *UserService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		return nil, ErrInvalidCredentials
	}
	if user.Password == "" || !utils.CheckPasswordHash(password, user.Password) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsEmailVerified {
		return nil, ErrEmailNotVerified
	}
	return s.issueTokens(&user)
}

func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if s.isRevoked(ctx, refreshToken) {
		return nil, ErrInvalidCredentials
	}
	claims, err := utils.ParseTypedJWT(refreshToken, s.JWTSecret, utils.TokenTypeRefresh)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	userID, _ := claims["user_id"].(string)
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issueTokens(user)
}

// Logout заносит токены в черный список до истечения их срока
func (s *UserService) Logout(ctx context.Context, tokens ...string) error {
	if s.RDB == nil {
		return nil
	}
	for _, t := range tokens {
		if t == "" {
			continue
		}
		claims, err := utils.ParseJWT(t, s.JWTSecret)
		if err != nil {
			continue
		}
		ttl := time.Until(utils.TokenExpiry(claims))
		if ttl <= 0 {
			continue
		}
		if err := s.RDB.Set(ctx, utils.BlacklistKey(t), 1, ttl).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (s *UserService) isRevoked(ctx context.Context, token string) bool {
	if s.RDB == nil {
		return false
	}
	n, err := s.RDB.Exists(ctx, utils.BlacklistKey(token)).Result()
	return err == nil && n > 0
}

func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GoogleLogin: существующий email - вход, иначе новый подтвержденный аккаунт USER
func (s *UserService) GoogleLogin(ctx context.Context, googleID, email, name string) (*TokenPair, *models.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, nil, validationErr("email", "email not found in Google profile")
	}
	var user models.User
	err := s.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{}
		if user.GoogleID == nil && googleID != "" {
			updates["google_id"] = googleID
			user.GoogleID = &googleID
		}
		if !user.IsEmailVerified {
			updates["is_email_verified"] = true
			user.IsEmailVerified = true
		}
		if len(updates) > 0 {
			if err := s.DB.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
				return nil, nil, err
			}
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		first, last, _ := strings.Cut(name, " ")
		user = models.User{
			Email:           email,
			FirstName:       first,
			LastName:        last,
			Role:            models.RoleUser,
			IsEmailVerified: true,
		}
		if googleID != "" {
			user.GoogleID = &googleID
		}
		if err := s.DB.WithContext(ctx).Create(&user).Error; err != nil {
			return nil, nil, fmt.Errorf("create google user: %w", err)
		}
	default:
		return nil, nil, err
	}
	tokens, err := s.issueTokens(&user)
	return tokens, &user, err
}

// SaveOnboarding сохраняет ответ анкеты (выбранный университет)
func (s *UserService) SaveOnboarding(ctx context.Context, userID string, universityID *uint) (*models.OnboardingAnswer, error) {
	if universityID != nil {
		var count int64
		if err := s.DB.WithContext(ctx).Model(&models.University{}).Where("id = ?", *universityID).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("check university: %w", err)
		}
		if count == 0 {
			return nil, validationErr("university_id", "university not found")
		}
	}
	answer := &models.OnboardingAnswer{UserID: &userID, UniversityID: universityID}
	if err := s.DB.WithContext(ctx).Create(answer).Error; err != nil {
		return nil, err
	}
	return answer, nil
}

func (s *UserService) ListOnboarding(ctx context.Context, userID string) ([]models.OnboardingAnswer, error) {
	var answers []models.OnboardingAnswer
	err := s.DB.WithContext(ctx).Preload("University").
		Where("user_id = ?", userID).Order("id DESC").Find(&answers).Error
	return answers, err
}
