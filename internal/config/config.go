package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DB_USERNAME string
	DB_PASSWORD string
	DB_HOST     string
	DB_PORT     string
	DB_NAME     string
	DISABLE_TLS string

	HTTP_ADDR    string
	APP_BASE_URL string

	// Extra origins beyond APP_BASE_URL, comma separated
	ALLOWED_ORIGINS string
	ALLOWED_HEADERS string

	LOG_LEVEL  string
	LOG_FORMAT string

	// Access tokens
	JWT_SIGNING_KEY  string
	ACCESS_TOKEN_TTL time.Duration
	COOKIE_SECURE    bool

	// Optional OIDC login
	OIDC_ISSUER        string
	OIDC_CLIENT_ID     string
	OIDC_CLIENT_SECRET string
	OIDC_CALLBACK_URL  string
	OIDC_AUDIENCE      string
	STATE_SECRET       string

	// Transactional email
	EMAIL_API_URL             string
	EMAIL_SERVICE_ID          string
	EMAIL_PUBLIC_KEY          string
	EMAIL_PRIVATE_KEY         string
	EMAIL_INVITE_TEMPLATE_ID  string
	EMAIL_CONTACT_TEMPLATE_ID string
	EMAIL_CONTACT_RECIPIENT   string
	EMAIL_DISPATCH_TIMEOUT    time.Duration

	// Invitation email rate limit, disabled when REDIS_ADDR is empty
	REDIS_ADDR              string
	REDIS_PASSWORD          string
	REDIS_DB                int
	INVITE_EMAIL_RATE_LIMIT int
	INVITE_EMAIL_RATE_UNIT  string

	INVITATION_RETENTION         time.Duration
	INVITATION_REAP_INTERVAL     time.Duration
	TRANSFER_RETAIN_FORMER_OWNER bool

	// Otel
	OTEL_EXPORTER_OTLP_ENDPOINT string
}

func ReadConfig() *Config {
	return &Config{
		DB_USERNAME: os.Getenv("DB_USERNAME"),
		DB_PASSWORD: os.Getenv("DB_PASSWORD"),
		DB_HOST:     os.Getenv("DB_HOST"),
		DB_PORT:     os.Getenv("DB_PORT"),
		DB_NAME:     os.Getenv("DB_NAME"),
		DISABLE_TLS: os.Getenv("DISABLE_TLS"),

		HTTP_ADDR:    GetEnvOrDefault("HTTP_ADDR", "0.0.0.0:6060"),
		APP_BASE_URL: strings.TrimSuffix(GetEnvOrDefault("APP_BASE_URL", "http://localhost:3000"), "/"),

		ALLOWED_ORIGINS: os.Getenv("ALLOWED_ORIGINS"),
		ALLOWED_HEADERS: GetEnvOrDefault("ALLOWED_HEADERS", "Content-Type,Authorization,traceparent"),

		LOG_LEVEL:  GetEnvOrDefault("LOG_LEVEL", "info"),
		LOG_FORMAT: GetEnvOrDefault("LOG_FORMAT", "text"),

		JWT_SIGNING_KEY:  os.Getenv("JWT_SIGNING_KEY"),
		ACCESS_TOKEN_TTL: getDurationOrDefault("ACCESS_TOKEN_TTL", 24*time.Hour),
		COOKIE_SECURE:    os.Getenv("COOKIE_SECURE") == "true",

		OIDC_ISSUER:        os.Getenv("OIDC_ISSUER"),
		OIDC_CLIENT_ID:     os.Getenv("OIDC_CLIENT_ID"),
		OIDC_CLIENT_SECRET: os.Getenv("OIDC_CLIENT_SECRET"),
		OIDC_CALLBACK_URL:  os.Getenv("OIDC_CALLBACK_URL"),
		OIDC_AUDIENCE:      GetEnvOrDefault("OIDC_AUDIENCE", "projecthub-api"),
		STATE_SECRET:       os.Getenv("STATE_SECRET"),

		EMAIL_API_URL:             GetEnvOrDefault("EMAIL_API_URL", "https://api.emailjs.com/api/v1.0/email/send"),
		EMAIL_SERVICE_ID:          os.Getenv("EMAIL_SERVICE_ID"),
		EMAIL_PUBLIC_KEY:          os.Getenv("EMAIL_PUBLIC_KEY"),
		EMAIL_PRIVATE_KEY:         os.Getenv("EMAIL_PRIVATE_KEY"),
		EMAIL_INVITE_TEMPLATE_ID:  GetEnvOrDefault("EMAIL_INVITE_TEMPLATE_ID", "project_invitation"),
		EMAIL_CONTACT_TEMPLATE_ID: GetEnvOrDefault("EMAIL_CONTACT_TEMPLATE_ID", "contact_form"),
		EMAIL_CONTACT_RECIPIENT:   os.Getenv("EMAIL_CONTACT_RECIPIENT"),
		EMAIL_DISPATCH_TIMEOUT:    getDurationOrDefault("EMAIL_DISPATCH_TIMEOUT", 10*time.Second),

		REDIS_ADDR:              os.Getenv("REDIS_ADDR"),
		REDIS_PASSWORD:          os.Getenv("REDIS_PASSWORD"),
		REDIS_DB:                getIntOrDefault("REDIS_DB", 0),
		INVITE_EMAIL_RATE_LIMIT: getIntOrDefault("INVITE_EMAIL_RATE_LIMIT", 20),
		INVITE_EMAIL_RATE_UNIT:  GetEnvOrDefault("INVITE_EMAIL_RATE_UNIT", "1h"),

		INVITATION_RETENTION:         getDurationOrDefault("INVITATION_RETENTION", 30*24*time.Hour),
		INVITATION_REAP_INTERVAL:     getDurationOrDefault("INVITATION_REAP_INTERVAL", 0),
		TRANSFER_RETAIN_FORMER_OWNER: os.Getenv("TRANSFER_RETAIN_FORMER_OWNER") == "true",

		OTEL_EXPORTER_OTLP_ENDPOINT: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LOG_LEVEL) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// AllowedOrigins splits ALLOWED_ORIGINS into a lookup set.
func (c *Config) AllowedOrigins() map[string]bool {
	origins := map[string]bool{}
	for _, o := range strings.Split(c.ALLOWED_ORIGINS, ",") {
		if o = strings.TrimSuffix(strings.TrimSpace(o), "/"); o != "" {
			origins[o] = true
		}
	}
	return origins
}

// EmailEnabled reports whether enough email settings are present to dispatch.
func (c *Config) EmailEnabled() bool {
	return c.EMAIL_SERVICE_ID != "" && c.EMAIL_PUBLIC_KEY != ""
}

func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
		slog.Warn("Ignoring invalid integer setting", slog.String("key", key), slog.String("value", raw))
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil {
			return v
		}
		slog.Warn("Ignoring invalid duration setting", slog.String("key", key), slog.String("value", raw))
	}
	return defaultValue
}
