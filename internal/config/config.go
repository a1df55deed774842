package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all engine configuration.
type Config struct {
	ServerPort string
	GinMode    string
	LogLevel   string
	LogFormat  string
	RedisURL   string
	// UpstreamBaseURL is the root of the learning-platform API the engine
	// drives sessions against (e.g. https://api.example.com/api/v1).
	UpstreamBaseURL string
	UpstreamTimeout time.Duration
	// Locale is sent upstream as Accept-Language on every request.
	Locale           string
	AutosaveInterval time.Duration
	// ContentLoadTimeout bounds how long a session may sit in "loading"
	// while its content document is fetched.
	ContentLoadTimeout time.Duration
	// StatusDisplayWindow is how long saved/error autosave indicators stay
	// visible before reverting to idle.
	StatusDisplayWindow time.Duration
	// AllowedOrigins controls HTTP CORS and WebSocket origin validation.
	// Empty slice means all origins are permitted (dev default).
	AllowedOrigins []string
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load() // Ignore error — .env is optional

	return &Config{
		ServerPort:          getEnv("SERVER_PORT", "7600"),
		GinMode:             getEnv("GIN_MODE", "debug"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "pretty"),
		RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379/0"),
		UpstreamBaseURL:     getEnv("UPSTREAM_BASE_URL", "http://localhost:8080/api/v1"),
		UpstreamTimeout:     time.Duration(getEnvInt("UPSTREAM_TIMEOUT_SECONDS", 30)) * time.Second,
		Locale:              getEnv("LOCALE", "id"),
		AutosaveInterval:    time.Duration(getEnvInt("AUTOSAVE_INTERVAL_SECONDS", 30)) * time.Second,
		ContentLoadTimeout:  time.Duration(getEnvInt("CONTENT_LOAD_TIMEOUT_SECONDS", 30)) * time.Second,
		StatusDisplayWindow: time.Duration(getEnvInt("STATUS_DISPLAY_SECONDS", 2)) * time.Second,
		AllowedOrigins:      parseOrigins(getEnv("ALLOWED_ORIGINS", "")),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// parseOrigins splits a comma-separated origins string into a trimmed slice.
// Returns nil (allow-all) if the input is empty.
func parseOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
