package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	assert.Equal(t, time.Minute, GetDuration("check_interval"))
	assert.Equal(t, 10*time.Second, GetDuration("oracle_timeout"))
	assert.Equal(t, time.Duration(0), GetDuration("alert_retention"))
	assert.Equal(t, "sqlite", GetString("database_driver"))
	assert.Equal(t, 9090, GetInt("metrics_port"))
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("CHECK_INTERVAL", "90s")
	t.Setenv("BOT_TOKEN", "123:abc")

	assert.Equal(t, 90*time.Second, GetDuration("check_interval"))
	assert.Equal(t, "123:abc", GetString("telegram_bot_token"))
}
