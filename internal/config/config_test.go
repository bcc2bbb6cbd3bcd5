package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	assert.Empty(t, cfg.AuthSecret, "AUTH_SECRET must stay empty when unset")
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "APP_ENV", "DATABASE_URL", "REDIS_ADDR", "NOTIFY_BUFFER", "DEFAULT_CURRENCY", "ACCESS_TOKEN_TTL_MINUTES", "RUN_MIGRATIONS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, "IDR", cfg.DefaultCurrency)
	assert.Equal(t, 256, cfg.NotifyBuffer)
	assert.Equal(t, 10, cfg.SummaryCacheMinutes)
	assert.Equal(t, 480, cfg.AccessTokenTTLMinutes)
	assert.Empty(t, cfg.DatabaseURL)
	assert.False(t, cfg.IsProduction())
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "Production")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("NOTIFY_BUFFER", "-4")
	t.Setenv("RUN_MIGRATIONS", "false")
	t.Setenv("DEFAULT_CURRENCY", "usd")

	cfg := Load()
	assert.Equal(t, ":9090", cfg.Address())
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 256, cfg.NotifyBuffer)
	assert.False(t, cfg.RunMigrations)
	assert.Equal(t, "USD", cfg.DefaultCurrency)
}
