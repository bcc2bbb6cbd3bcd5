package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port                  string
	AppEnv                string
	LogLevel              string
	LogFormat             string
	AllowedOrigin         string
	DatabaseURL           string
	RunMigrations         bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	NotifyQueueKey        string
	NotifyBuffer          int
	SummaryCacheMinutes   int
	AuthSecret            string
	AccessTokenTTLMinutes int
	DefaultCurrency       string
}

// Load reads the process environment. Secrets have no defaults; cmd/server
// refuses to start without them.
func Load() Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("RUN_MIGRATIONS", true)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("NOTIFY_QUEUE_KEY", "restopos:notifications")
	v.SetDefault("NOTIFY_BUFFER", 256)
	v.SetDefault("SUMMARY_CACHE_MINUTES", 10)
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	v.SetDefault("DEFAULT_CURRENCY", "IDR")

	tokenTTL := v.GetInt("ACCESS_TOKEN_TTL_MINUTES")
	if tokenTTL < 1 {
		tokenTTL = 480
	}
	buffer := v.GetInt("NOTIFY_BUFFER")
	if buffer < 1 {
		buffer = 256
	}
	summaryTTL := v.GetInt("SUMMARY_CACHE_MINUTES")
	if summaryTTL < 1 {
		summaryTTL = 10
	}
	currency := strings.ToUpper(strings.TrimSpace(v.GetString("DEFAULT_CURRENCY")))
	if currency == "" {
		currency = "IDR"
	}

	return Config{
		Port:                  v.GetString("PORT"),
		AppEnv:                strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV"))),
		LogLevel:              v.GetString("LOG_LEVEL"),
		LogFormat:             strings.ToLower(strings.TrimSpace(v.GetString("LOG_FORMAT"))),
		AllowedOrigin:         v.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:           strings.TrimSpace(v.GetString("DATABASE_URL")),
		RunMigrations:         v.GetBool("RUN_MIGRATIONS"),
		RedisAddr:             strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:         v.GetString("REDIS_PASSWORD"),
		RedisDB:               v.GetInt("REDIS_DB"),
		NotifyQueueKey:        v.GetString("NOTIFY_QUEUE_KEY"),
		NotifyBuffer:          buffer,
		SummaryCacheMinutes:   summaryTTL,
		AuthSecret:            strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		DefaultCurrency:       currency,
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}
