package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
)

const (
	TokenTypeAccess      = "access"
	TokenTypeRefresh     = "refresh"
	TokenTypeVerifyEmail = "verify_email"

	AccessTokenTTL       = 72 * time.Hour
	RefreshTokenTTL      = 30 * 24 * time.Hour
	VerificationTokenTTL = time.Hour
)

var ErrInvalidToken = errors.New("invalid token")

func GenerateJWT(userID string, role int, secret string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"type":    TokenTypeAccess,
		"exp":     time.Now().Add(AccessTokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func GenerateRefreshToken(userID string, secret string) (string, int64, error) {
	expiry := time.Now().Add(RefreshTokenTTL).Unix() // 30 дней
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     expiry,
		"type":    TokenTypeRefresh,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString([]byte(secret))
	return tokenStr, expiry, err
}

// GenerateEmailToken - подписанный токен подтверждения почты, живет час
func GenerateEmailToken(email, secret string) (string, error) {
	claims := jwt.MapClaims{
		"email": email,
		"type":  TokenTypeVerifyEmail,
		"exp":   time.Now().Add(VerificationTokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseJWT(tokenStr, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if token != nil && token.Valid {
		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			return claims, nil
		}
	}
	return nil, ErrInvalidToken
}

// ParseTypedJWT проверяет подпись и тип токена
func ParseTypedJWT(tokenStr, secret, tokenType string) (jwt.MapClaims, error) {
	claims, err := ParseJWT(tokenStr, secret)
	if err != nil {
		return nil, err
	}
	if t, _ := claims["type"].(string); t != tokenType {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseEmailToken возвращает email из токена подтверждения
func ParseEmailToken(tokenStr, secret string) (string, error) {
	claims, err := ParseTypedJWT(tokenStr, secret, TokenTypeVerifyEmail)
	if err != nil {
		return "", err
	}
	email, _ := claims["email"].(string)
	if email == "" {
		return "", ErrInvalidToken
	}
	return email, nil
}

// TokenExpiry возвращает время истечения токена из claims
func TokenExpiry(claims jwt.MapClaims) time.Time {
	if exp, ok := claims["exp"].(float64); ok {
		return time.Unix(int64(exp), 0)
	}
	return time.Now()
}
