package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"gridHedgeBot/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Symbols the engine manages; one actor and one trade stream each.
	Symbols []string

	// Database
	DBPath string

	// Logging
	LogLevel  logger.LogLevel
	LogFormat string // text|json

	// Streams
	ReconnectDelay       time.Duration
	MaxReconnectDelay    time.Duration
	MaxReconnectAttempts int // 0 retries forever
	ListenKeyKeepalive   time.Duration

	// Exchange call retries
	RetryAttempts int
	RetryDelay    time.Duration

	// Actors
	EventQueueSize    int
	EnqueueTimeout    time.Duration
	ReconcileInterval time.Duration
	StrategyPoll      time.Duration

	// Engine
	TakeProfitFeePercent decimal.Decimal
	MinHedgeNotional     decimal.Decimal

	// Notifications (disabled when the token is empty)
	TelegramToken  string
	TelegramChatID int64

	// Metrics listen address, e.g. ":9090"; empty disables the endpoint.
	MetricsAddr string
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	if cfg.APIKey == "" {
		errs = append(errs, "BINANCE_API_KEY must be set")
	}
	if cfg.SecretKey == "" {
		errs = append(errs, "BINANCE_API_SECRET must be set")
	}

	cfg.Symbols = getEnvAsList("SYMBOLS", []string{"ETHUSDT"})
	if len(cfg.Symbols) == 0 {
		errs = append(errs, "SYMBOLS must list at least one symbol")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/hedge_bot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, "LOG_FORMAT must be text or json")
	}

	// Streams
	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 1)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	maxReconnectDelaySeconds := getEnvAsInt("MAX_RECONNECT_DELAY_SECONDS", 60)
	if maxReconnectDelaySeconds < reconnectDelaySeconds {
		errs = append(errs, "MAX_RECONNECT_DELAY_SECONDS cannot be below RECONNECT_DELAY_SECONDS")
	}
	cfg.MaxReconnectDelay = time.Duration(maxReconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 0)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	keepaliveMinutes := getEnvAsInt("LISTEN_KEY_KEEPALIVE_MINUTES", 30)
	if keepaliveMinutes <= 0 || keepaliveMinutes >= 60 {
		errs = append(errs, "LISTEN_KEY_KEEPALIVE_MINUTES must be between 1 and 59")
	}
	cfg.ListenKeyKeepalive = time.Duration(keepaliveMinutes) * time.Minute

	// Retries
	cfg.RetryAttempts, err = getEnvAsIntRequired("RETRY_ATTEMPTS", 3)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RETRY_ATTEMPTS: %v", err))
	} else if cfg.RetryAttempts <= 0 {
		errs = append(errs, "RETRY_ATTEMPTS must be positive")
	}
	cfg.RetryDelay = time.Duration(getEnvAsInt("RETRY_DELAY_SECONDS", 5)) * time.Second
	if cfg.RetryDelay < 0 {
		errs = append(errs, "RETRY_DELAY_SECONDS cannot be negative")
	}

	// Actors
	cfg.EventQueueSize = getEnvAsInt("EVENT_QUEUE_SIZE", 1024)
	if cfg.EventQueueSize <= 0 {
		errs = append(errs, "EVENT_QUEUE_SIZE must be positive")
	}
	cfg.EnqueueTimeout = time.Duration(getEnvAsInt("ENQUEUE_TIMEOUT_MS", 200)) * time.Millisecond
	if cfg.EnqueueTimeout <= 0 {
		errs = append(errs, "ENQUEUE_TIMEOUT_MS must be positive")
	}
	cfg.ReconcileInterval = time.Duration(getEnvAsInt("RECONCILE_INTERVAL_SECONDS", 60)) * time.Second
	if cfg.ReconcileInterval <= 0 {
		errs = append(errs, "RECONCILE_INTERVAL_SECONDS must be positive")
	}
	cfg.StrategyPoll = time.Duration(getEnvAsInt("STRATEGY_POLL_SECONDS", 5)) * time.Second
	if cfg.StrategyPoll <= 0 {
		errs = append(errs, "STRATEGY_POLL_SECONDS must be positive")
	}

	// Engine
	cfg.TakeProfitFeePercent, err = getEnvAsDecimalRequired("TAKE_PROFIT_FEE_PERCENT", decimal.RequireFromString("0.2"))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TAKE_PROFIT_FEE_PERCENT: %v", err))
	} else if cfg.TakeProfitFeePercent.IsNegative() {
		errs = append(errs, "TAKE_PROFIT_FEE_PERCENT cannot be negative")
	}
	cfg.MinHedgeNotional, err = getEnvAsDecimalRequired("MIN_HEDGE_NOTIONAL", decimal.NewFromInt(11))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MIN_HEDGE_NOTIONAL: %v", err))
	} else if !cfg.MinHedgeNotional.IsPositive() {
		errs = append(errs, "MIN_HEDGE_NOTIONAL must be positive")
	}

	// Notifications
	cfg.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", "")
	if chat := getEnv("TELEGRAM_CHAT_ID", ""); chat != "" {
		cfg.TelegramChatID, err = strconv.ParseInt(chat, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid TELEGRAM_CHAT_ID: %v", err))
		}
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID == 0 {
		errs = append(errs, "TELEGRAM_CHAT_ID must be set when TELEGRAM_BOT_TOKEN is")
	}

	cfg.MetricsAddr = getEnv("METRICS_ADDR", "")

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value, upper-casing and dropping empty entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	seen := make(map[string]bool)
	for _, item := range strings.Split(valueStr, ",") {
		item = strings.ToUpper(strings.TrimSpace(item))
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsDecimalRequired(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
