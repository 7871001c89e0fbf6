package config

import (
	"errors"
	"os"
	"strconv"
)

type Config struct {
	ServerPort  string
	DatabaseURL string
	LogLevel    string
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", "file:localsync.db"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}

	if _, err := strconv.Atoi(cfg.ServerPort); err != nil {
		return nil, errors.New("SERVER_PORT must be a number")
	}

	return cfg, nil
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
