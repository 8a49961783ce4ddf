package app

import (
	"os"
	"testing"
	"time"
)

var configEnv = []string{
	"TORRSERVE_HOST", "TORRSERVE_PORT", "TORRSERVE_LOGIN", "TORRSERVE_PASSWORD",
	"TORRSERVE_SAVE", "TORRSERVE_REQUEST_TIMEOUT_SECONDS", "TORRSERVE_RATE_LIMIT",
	"LOG_LEVEL", "LOG_FORMAT", "REDIS_URL", "MONGO_URI", "MONGO_DB", "METRICS_ADDR",
	"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_TRACE_SAMPLE_RATE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnv {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	cfg := LoadConfig()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"Host", cfg.Host, "127.0.0.1"},
		{"Port", cfg.Port, 8090},
		{"Login", cfg.Login, ""},
		{"Persist", cfg.Persist, false},
		{"RequestTimeout", cfg.RequestTimeout, 15 * time.Second},
		{"RateLimit", cfg.RateLimit, 0.0},
		{"LogLevel", cfg.LogLevel, "info"},
		{"LogFormat", cfg.LogFormat, "text"},
		{"MongoURI", cfg.MongoURI, ""},
		{"MongoDB", cfg.MongoDB, "torrserve"},
		{"MetricsAddr", cfg.MetricsAddr, ""},
		{"TraceSample", cfg.TraceSample, 0.1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, tc.got)
			}
		})
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TORRSERVE_HOST", "10.0.0.5")
	t.Setenv("TORRSERVE_PORT", "8091")
	t.Setenv("TORRSERVE_SAVE", "true")
	t.Setenv("TORRSERVE_REQUEST_TIMEOUT_SECONDS", "3")
	t.Setenv("TORRSERVE_RATE_LIMIT", "2.5")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg := LoadConfig()
	if cfg.Host != "10.0.0.5" || cfg.Port != 8091 {
		t.Fatalf("unexpected server %s:%d", cfg.Host, cfg.Port)
	}
	if !cfg.Persist {
		t.Fatal("expected persist to be enabled")
	}
	if cfg.RequestTimeout != 3*time.Second {
		t.Fatalf("expected 3s timeout, got %v", cfg.RequestTimeout)
	}
	if cfg.RateLimit != 2.5 {
		t.Fatalf("expected rate limit 2.5, got %v", cfg.RateLimit)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected lower-cased level, got %q", cfg.LogLevel)
	}
}

func TestLoadConfigInvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("TORRSERVE_PORT", "abc")
	t.Setenv("TORRSERVE_SAVE", "maybe")
	t.Setenv("TORRSERVE_RATE_LIMIT", "-1")

	cfg := LoadConfig()
	if cfg.Port != 8090 || cfg.Persist || cfg.RateLimit != 0 {
		t.Fatalf("expected defaults, got port=%d persist=%v rate=%v", cfg.Port, cfg.Persist, cfg.RateLimit)
	}
}
