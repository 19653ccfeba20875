package utils

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

var (
	ErrorLogger    *log.Logger
	PanicLogger    *log.Logger
	SecurityLogger *log.Logger
	AnomalyLogger  *log.Logger
)

func InitLogger() error {
	logsDir := "logs"
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %v", err)
	}

	open := func(name string) (*log.Logger, error) {
		f, err := os.OpenFile(filepath.Join(logsDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %v", name, err)
		}
		return log.New(f, "", 0), nil
	}

	var err error
	if ErrorLogger, err = open("errors.log"); err != nil {
		return err
	}
	if PanicLogger, err = open("panics.log"); err != nil {
		return err
	}
	if SecurityLogger, err = open("security.log"); err != nil {
		return err
	}
	if AnomalyLogger, err = open("anomalies.log"); err != nil {
		return err
	}
	return nil
}

func caller(skip int) (string, int) {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown", 0
	}
	return filepath.Base(file), line
}

func timestamp() string {
	return time.Now().Format("2006-01-02 15:04:05")
}

func LogError(err error, context string) {
	if ErrorLogger == nil {
		return
	}
	file, line := caller(2)
	ErrorLogger.Printf("[%s] ERROR in %s:%d - %s: %v", timestamp(), file, line, context, err)
}

func LogPanic(recovered interface{}, context string) {
	if PanicLogger == nil {
		return
	}
	file, line := caller(3)
	PanicLogger.Printf("[%s] PANIC in %s:%d - %s: %v", timestamp(), file, line, context, recovered)
}

// LogSecurity - отклоненные подписи webhook, подозрительные запросы
func LogSecurity(event, remoteIP string, err error) {
	log.Printf("security: %s from %s: %v", event, remoteIP, err)
	if SecurityLogger == nil {
		return
	}
	SecurityLogger.Printf("[%s] SECURITY %s ip=%s: %v", timestamp(), event, remoteIP, err)
}

// LogAnomaly - расхождения при сверке платежей, требуют ручного разбора
func LogAnomaly(kind, paymentID, detail string) {
	log.Printf("anomaly %s payment=%s: %s", kind, paymentID, detail)
	if AnomalyLogger == nil {
		return
	}
	AnomalyLogger.Printf("[%s] ANOMALY %s payment=%s: %s", timestamp(), kind, paymentID, detail)
}
