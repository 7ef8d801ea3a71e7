package logger_test

import (
	"errors"

	"github.com/wonny/lianban/pkg/config"
	"github.com/wonny/lianban/pkg/logger"
)

// Example_withFields demonstrates structured logging with fields
func Example_withFields() {
	log := logger.New(&config.Config{
		Env:       "production",
		LogLevel:  "info",
		LogFormat: "json",
	})

	log.WithCode("002001.SZ").WithFields(map[string]interface{}{
		"boards": 3,
		"action": "buy",
	}).Info("Signal generated")
}

// Example_withError demonstrates error logging
func Example_withError() {
	log := logger.New(&config.Config{
		Env:       "production",
		LogLevel:  "error",
		LogFormat: "json",
	})

	err := errors.New("zhitu: 429 too many requests")
	log.WithRun("run-20240115").WithError(err).
		WithFields(map[string]interface{}{
			"retry_count": 3,
			"date":        "2024-01-15",
		}).
		Error("Failed to fetch limit-up pool")
}
