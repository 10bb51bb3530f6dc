// Package logger builds the service's zap loggers.
package logger

import (
	"strings"

	"go.uber.org/zap"
)

// New returns a JSON production logger for "prod"/"production" and a console development logger
// otherwise.
func New(mode string) (*zap.Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	return cfg.Build()
}

// RedactEmail keeps the domain of an address for logs.
func RedactEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return "***" + email[at:]
}
