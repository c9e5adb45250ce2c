package configs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.True(t, cfg.TrackIP)
	assert.False(t, cfg.AnonymizeIP)
	assert.False(t, cfg.TrackUserAgent)
	assert.True(t, cfg.AllowDataExport)
	assert.True(t, cfg.AllowDataDeletion)
	assert.Equal(t, 365, cfg.LogRetentionDays)
	assert.True(t, cfg.AutoCleanupEnabled)
	assert.Equal(t, 24*time.Hour, cfg.CleanupInterval)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TRACK_IP", "false")
	t.Setenv("ANONYMIZE_IP", "true")
	t.Setenv("LOG_RETENTION_DAYS", "30")
	t.Setenv("RATE_LIMIT_PER_HOUR", "50")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.TrackIP)
	assert.True(t, cfg.AnonymizeIP)
	assert.Equal(t, 30, cfg.LogRetentionDays)
	assert.Equal(t, 50, cfg.RateLimitPerHour)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := &Config{JWTSecret: "s", RateLimitPerHour: 100, LogRetentionDays: -1}
	assert.Error(t, cfg.Validate())

	cfg = &Config{JWTSecret: "", RateLimitPerHour: 100}
	assert.Error(t, cfg.Validate())

	cfg = &Config{JWTSecret: "s", RateLimitPerHour: 0}
	assert.Error(t, cfg.Validate())
}

func TestParseHelpersFallBack(t *testing.T) {
	assert.Equal(t, 0, parseInt("not-a-number"))
	assert.False(t, parseBool("not-a-bool"))
	assert.Equal(t, time.Hour, parseDuration("junk"))
}
