// Package config provides application configuration management.
// It loads configuration from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/care-billing/internal/logger"
	"github.com/warp/care-billing/rates"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Billing   BillingConfig
	Scheduler SchedulerConfig
	Log       logger.LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds SQLite configuration.
type DatabaseConfig struct {
	Path string
}

// BillingConfig holds the system-wide billing fallbacks.
type BillingConfig struct {
	DefaultHourlyRate decimal.Decimal
	MinAppliesToZero  bool
}

// SchedulerConfig holds overdue-detection configuration.
type SchedulerConfig struct {
	Enabled          bool
	OverdueAfterDays int
	CheckInterval    time.Duration
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvAsInt("PORT", 8080),
			CORSOrigins:  getEnvAsList("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "billing.db"),
		},
		Billing: BillingConfig{
			MinAppliesToZero: getEnvAsBool("MIN_APPLIES_TO_ZERO", false),
		},
		Scheduler: SchedulerConfig{
			Enabled:          getEnvAsBool("SCHEDULER_ENABLED", true),
			OverdueAfterDays: getEnvAsInt("OVERDUE_AFTER_DAYS", 30),
			CheckInterval:    getEnvAsDuration("OVERDUE_CHECK_INTERVAL", time.Hour),
		},
		Log: logger.LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "console"),
			TimeFormat: getEnv("LOG_TIME_FORMAT", time.RFC3339),
			Output:     getEnv("LOG_OUTPUT", "stdout"),
		},
	}

	rate, err := decimal.NewFromString(getEnv("DEFAULT_HOURLY_RATE", rates.DefaultHourlyRate.String()))
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_HOURLY_RATE: %w", err)
	}
	cfg.Billing.DefaultHourlyRate = rate

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if !c.Billing.DefaultHourlyRate.IsPositive() {
		return fmt.Errorf("DEFAULT_HOURLY_RATE must be positive, got %s", c.Billing.DefaultHourlyRate)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Server.Port)
	}
	if c.Scheduler.OverdueAfterDays < 0 {
		return fmt.Errorf("OVERDUE_AFTER_DAYS must not be negative")
	}
	if c.Scheduler.CheckInterval <= 0 {
		return fmt.Errorf("OVERDUE_CHECK_INTERVAL must be positive")
	}
	return nil
}

// SystemRules returns the final fallback rule set for the resolver.
func (c *Config) SystemRules() rates.EffectiveRuleSet {
	system := rates.SystemDefault()
	system.HourlyRate = c.Billing.DefaultHourlyRate
	if c.Billing.MinAppliesToZero {
		system.ZeroDuration = rates.ZeroChargesMinimum
	}
	return system
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
