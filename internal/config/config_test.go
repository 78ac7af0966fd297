package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv("TTL_SECS", "")
	t.Setenv("ACCEPT_WINDOW_SECS", "")
	t.Setenv("SWEEPER_INTERVAL_SECS", "")
	t.Setenv("MATCH_LOOKAHEAD", "")

	cfg := New()

	assert.Equal(t, 120*time.Second, cfg.Match.QueueTTL)
	assert.Equal(t, 25*time.Second, cfg.Match.AcceptWindow)
	assert.Equal(t, 5*time.Second, cfg.Match.SweepInterval)
	assert.Equal(t, 30*time.Second, cfg.Match.LockTTL)
	assert.Equal(t, 10, cfg.Match.Lookahead)
	assert.Equal(t, 5*time.Minute, cfg.Catalog.CacheTTL)
}

func TestNew_Overrides(t *testing.T) {
	t.Setenv("TTL_SECS", "60")
	t.Setenv("ACCEPT_WINDOW_SECS", "10")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("MYSQL_DSN", "user:pw@tcp(db:3306)/x")

	cfg := New()

	assert.Equal(t, time.Minute, cfg.Match.QueueTTL)
	assert.Equal(t, 10*time.Second, cfg.Match.AcceptWindow)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, "user:pw@tcp(db:3306)/x", cfg.DB.DSN)
}

func TestNew_InvalidSecondsFallBack(t *testing.T) {
	t.Setenv("SWEEPER_INTERVAL_SECS", "-4")
	t.Setenv("MATCH_LOCK_TTL_SECS", "abc")

	cfg := New()

	assert.Equal(t, 5*time.Second, cfg.Match.SweepInterval)
	assert.Equal(t, 30*time.Second, cfg.Match.LockTTL)
}

func TestIsTruthy(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", " on "} {
		assert.True(t, isTruthy(v), v)
	}
	for _, v := range []string{"", "0", "off", "nope"} {
		assert.False(t, isTruthy(v), v)
	}
}
