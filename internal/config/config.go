package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string

	DefaultTenantSlug string
	DefaultTenantName string

	// Default working window applied when an employee has no
	// availability record for a day.
	WorkStartHour int
	WorkEndHour   int

	// Abuse guard limits for the public reservation endpoint.
	PublicMaxPerIP      int
	PublicIPWindow      time.Duration
	PublicMaxPerPhone   int
	PublicPhoneWindow   time.Duration
	PublicBurstPerIP    int
	PublicBurstRatePerS float64

	// Background job runner.
	WorkerCount        int
	JobMaxAttempts     int
	JobPollInterval    time.Duration
	JobStaleThreshold  time.Duration
	CalendarWebhookURL string

	// Reservations in "new" older than this are swept to expired.
	ReservationExpiryAge time.Duration

	// HMAC secret for the operator bearer token guarding integrity and job
	// queue endpoints. Empty disables the operator surface.
	OperatorJWTSecret string

	// Origins allowed to call the public booking endpoints from a browser.
	AllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		DefaultTenantSlug: getEnv("DEFAULT_TENANT_SLUG", "default"),
		DefaultTenantName: getEnv("DEFAULT_TENANT_NAME", "Default Salon"),

		WorkStartHour: getEnvAsInt("WORK_START_HOUR", 9),
		WorkEndHour:   getEnvAsInt("WORK_END_HOUR", 18),

		PublicMaxPerIP:      getEnvAsInt("PUBLIC_MAX_PER_IP", 10),
		PublicIPWindow:      getEnvAsDuration("PUBLIC_IP_WINDOW", time.Hour),
		PublicMaxPerPhone:   getEnvAsInt("PUBLIC_MAX_PER_PHONE", 5),
		PublicPhoneWindow:   getEnvAsDuration("PUBLIC_PHONE_WINDOW", time.Hour),
		PublicBurstPerIP:    getEnvAsInt("PUBLIC_BURST_PER_IP", 20),
		PublicBurstRatePerS: getEnvAsFloat("PUBLIC_BURST_RATE_PER_S", 5),

		WorkerCount:        getEnvAsInt("WORKER_COUNT", 2),
		JobMaxAttempts:     getEnvAsInt("JOB_MAX_ATTEMPTS", 5),
		JobPollInterval:    getEnvAsDuration("JOB_POLL_INTERVAL", 2*time.Second),
		JobStaleThreshold:  getEnvAsDuration("JOB_STALE_THRESHOLD", 15*time.Minute),
		CalendarWebhookURL: getEnv("CALENDAR_WEBHOOK_URL", ""),

		ReservationExpiryAge: getEnvAsDuration("RESERVATION_EXPIRY_AGE", 72*time.Hour),

		OperatorJWTSecret: getEnv("OPERATOR_JWT_SECRET", ""),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
