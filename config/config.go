// Package config provides configuration for the talker service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Telegram
	BotToken   string
	WebhookURL string

	// Model gateway
	OpenAIBaseURL string

	// Timeouts
	LLMTimeout      time.Duration
	TelegramTimeout time.Duration
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:        getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:     getEnv("DATABASE_URL", "file:talker.db?cache=shared&mode=rwc"),
		BotToken:        getEnv("TELEGRAM_BOT_TOKEN", ""),
		WebhookURL:      getEnv("WEBHOOK_URL", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", "https://api.openai.com"),
		LLMTimeout:      time.Duration(getEnvInt("LLM_TIMEOUT_MS", 60000)) * time.Millisecond,
		TelegramTimeout: time.Duration(getEnvInt("TELEGRAM_TIMEOUT_MS", 7000)) * time.Millisecond,
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
