package utils

import (
	"fmt"
	"strconv"

	"gopkg.in/gomail.v2"
)

// Mailer отправляет письма через SMTP
type Mailer interface {
	Send(to, subject, body string) error
}

type SMTPMailer struct {
	Host     string
	Port     string
	User     string
	Password string
}

func (m *SMTPMailer) Send(to, subject, body string) error {
	return SendEmail(to, subject, body, m.Host, m.Port, m.User, m.Password)
}

func SendEmail(to, subject, body, smtpHost, smtpPort, smtpUser, smtpPass string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", smtpUser)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	port, err := strconv.Atoi(smtpPort)
	if err != nil || port == 0 {
		port = 587
	}
	d := gomail.NewDialer(smtpHost, port, smtpUser, smtpPass)
	return d.DialAndSend(msg)
}

// VerificationEmail - текст письма со ссылкой подтверждения
func VerificationEmail(baseURL, token string) (string, string) {
	link := fmt.Sprintf("%s/api/auth/verify-email?token=%s", baseURL, token)
	body := fmt.Sprintf("Здравствуйте!\n\nПодтвердите ваш email, перейдя по ссылке:\n%s\n\nСсылка действительна 1 час.", link)
	return "Подтверждение email - 11tutors", body
}
