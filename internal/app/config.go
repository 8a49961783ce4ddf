package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Host           string
	Port           int
	Login          string
	Password       string
	Persist        bool
	RequestTimeout time.Duration
	RateLimit      float64 // requests per second; 0 = unlimited

	LogLevel  string
	LogFormat string

	RedisURL     string
	MongoURI     string // empty disables play history
	MongoDB      string
	MetricsAddr  string // empty disables the /metrics listener
	OTLPEndpoint string
	TraceSample  float64
}

func LoadConfig() Config {
	return Config{
		Host:           getEnv("TORRSERVE_HOST", "127.0.0.1"),
		Port:           int(getEnvInt64("TORRSERVE_PORT", 8090)),
		Login:          getEnv("TORRSERVE_LOGIN", ""),
		Password:       getEnv("TORRSERVE_PASSWORD", ""),
		Persist:        getEnvBool("TORRSERVE_SAVE", false),
		RequestTimeout: time.Duration(getEnvInt64("TORRSERVE_REQUEST_TIMEOUT_SECONDS", 15)) * time.Second,
		RateLimit:      getEnvFloat("TORRSERVE_RATE_LIMIT", 0),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", "text")),
		RedisURL:       getEnv("REDIS_URL", ""),
		MongoURI:       getEnv("MONGO_URI", ""),
		MongoDB:        getEnv("MONGO_DB", "torrserve"),
		MetricsAddr:    getEnv("METRICS_ADDR", ""),
		OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		TraceSample:    getEnvFloat("OTEL_TRACE_SAMPLE_RATE", 0.1),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
