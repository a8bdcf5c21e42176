package internal

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/coachly_test")
	t.Setenv("JWT_SECRET", "secret")
}

func TestNewConfig_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "local", cfg.StorageProvider)
	assert.Equal(t, 120, cfg.WSEventsPerMinute)
	assert.Equal(t, time.Minute, cfg.APIRateWindow)
	assert.Empty(t, cfg.WSAllowedOrigins)
	assert.False(t, cfg.BillingEnabled())
}

func TestNewConfig_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "9090")
	t.Setenv("MAX_ATTACHMENT_BYTES", "5242880")
	t.Setenv("WS_ALLOWED_ORIGINS", "https://app.example.com, ,https://admin.example.com")
	t.Setenv("WS_EVENTS_PER_MINUTE", "30")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_1")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_1")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, int64(5<<20), cfg.MaxAttachmentBytes)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.WSAllowedOrigins)
	assert.Equal(t, 30, cfg.WSEventsPerMinute)
	assert.True(t, cfg.BillingEnabled())
}

func TestNewConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing database", map[string]string{"DATABASE_URL": "", "JWT_SECRET": "s"}},
		{"missing jwt secret", map[string]string{"DATABASE_URL": "postgres://x", "JWT_SECRET": ""}},
		{"unknown storage", map[string]string{"STORAGE_PROVIDER": "gcs"}},
		{"r2 without bucket", map[string]string{"STORAGE_PROVIDER": "r2", "R2_ACCOUNT_ID": "a", "R2_ACCESS_KEY_ID": "k", "R2_SECRET_ACCESS_KEY": "s"}},
		{"stripe without webhook secret", map[string]string{"STRIPE_SECRET_KEY": "sk_test_1"}},
		{"zero event rate", map[string]string{"WS_EVENTS_PER_MINUTE": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := NewConfig()
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "production", "warn")

	logger.Info("hidden")
	logger.Warn("quota store slow", "user_id", "u1")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "quota store slow", line["msg"])
	assert.Equal(t, "coachly", line["service"])
	assert.Equal(t, "u1", line["user_id"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNewLogger_DevelopmentIsText(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "development", "debug").Debug("relay started", "rooms", 0)

	out := buf.String()
	assert.True(t, strings.Contains(out, "level=DEBUG"), out)
	assert.Contains(t, out, "service=coachly")
	assert.Contains(t, out, "source=")
}
