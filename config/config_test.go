package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridHedgeBot/internal/adapters/logger"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("BINANCE_API_KEY", "key")
	t.Setenv("BINANCE_API_SECRET", "secret")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsTestnet)
	assert.Equal(t, []string{"ETHUSDT"}, cfg.Symbols)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 30*time.Minute, cfg.ListenKeyKeepalive)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, 5*time.Second, cfg.RetryDelay)
	assert.Equal(t, 1024, cfg.EventQueueSize)
	assert.Equal(t, 200*time.Millisecond, cfg.EnqueueTimeout)
	assert.Equal(t, "0.2", cfg.TakeProfitFeePercent.String())
	assert.Equal(t, "11", cfg.MinHedgeNotional.String())
	assert.Empty(t, cfg.TelegramToken)
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SYMBOLS", " ethusdt, BTCUSDT ,,ethusdt")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MIN_HEDGE_NOTIONAL", "20.5")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "-100200")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"ETHUSDT", "BTCUSDT"}, cfg.Symbols)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, logger.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "20.5", cfg.MinHedgeNotional.String())
	assert.Equal(t, int64(-100200), cfg.TelegramChatID)
}

func TestLoadConfig_CollectsAllErrors(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "")
	t.Setenv("BINANCE_API_SECRET", "")
	t.Setenv("LOG_FORMAT", "xml")
	t.Setenv("RETRY_ATTEMPTS", "many")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	_, err := LoadConfig()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "BINANCE_API_KEY must be set")
	assert.Contains(t, msg, "BINANCE_API_SECRET must be set")
	assert.Contains(t, msg, "LOG_FORMAT must be text or json")
	assert.Contains(t, msg, "invalid RETRY_ATTEMPTS")
	assert.Contains(t, msg, "TELEGRAM_CHAT_ID must be set")
}
