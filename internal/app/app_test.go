package app

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"ADDR", "DATABASE_URL", "PAGE_CACHE_TTL", "MAX_UPLOAD_MB", "SESSION_LIFETIME_HOURS"} {
		t.Setenv(k, "")
	}
	cfg := LoadConfig()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, 20*time.Second, cfg.PageCacheTTL)
	assert.Equal(t, int64(5<<20), cfg.MaxUploadBytes())
	assert.Equal(t, 14*24*time.Hour, cfg.SessionLifetime)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("ADDR", ":9000")
	t.Setenv("PAGE_CACHE_TTL", "0s")
	t.Setenv("SESSION_LIFETIME_HOURS", "2")
	t.Setenv("RATE_LIMIT_RPS", "not-a-number")
	t.Setenv("SEED_GROUPS", "cats:Cats")

	cfg := LoadConfig()
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, time.Duration(0), cfg.PageCacheTTL)
	assert.Equal(t, 2*time.Hour, cfg.SessionLifetime)
	assert.Equal(t, float64(2), cfg.RateLimitRPS)
	assert.Equal(t, "cats:Cats", cfg.SeedGroups)
}

func TestNewLoggerLevel(t *testing.T) {
	log := NewLogger(Config{LogLevel: "debug", LogFormat: "json"})
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	log = NewLogger(Config{LogLevel: "loud"})
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}
