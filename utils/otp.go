package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

var randReader io.Reader = rand.Reader

// GenerateSessionID - 32 hex-символа, используется для state OAuth и токенов корреляции платежей
func GenerateSessionID() (string, error) {
	b := make([]byte, 16)
	if _, err := io.ReadFull(randReader, b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
