package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/otabeknarz/11tutors-backend/models"
)

// ErrPaymentNotFound - ни transaction_id, ни токен корреляции не привели к платежу
var ErrPaymentNotFound = errors.New("payment not found")

// ValidationError - некорректные входные данные, 400
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func validationErr(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError - недопустимая смена статуса платежа, 409
type InvalidTransitionError struct {
	PaymentID string
	From      models.PaymentStatus
	To        models.PaymentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("payment %s: invalid transition %s -> %s", e.PaymentID, e.From, e.To)
}

// AuthenticationError - подпись webhook не прошла проверку
type AuthenticationError struct {
	Provider string
	Err      error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s webhook authentication failed: %v", e.Provider, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// PartialGrantFailure - платеж завершен, но часть курсов не выдана
type PartialGrantFailure struct {
	PaymentID string
	Report    *GrantReport
}

func (e *PartialGrantFailure) Error() string {
	failed := make([]string, 0, len(e.Report.Failed))
	for courseID, reason := range e.Report.Failed {
		failed = append(failed, courseID+": "+reason)
	}
	return fmt.Sprintf("payment %s: enrollment grant failed for %d course(s): %s",
		e.PaymentID, len(e.Report.Failed), strings.Join(failed, "; "))
}

// GatewayError - платежный провайдер недоступен или отказал, 502
type GatewayError struct {
	Provider string
	Err      error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
