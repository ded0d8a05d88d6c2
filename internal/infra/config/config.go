package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL     string
	DBMaxOpenConns  int
	TelegramToken   string
	RecipientUserID string
	LogLevel        string
	Environment     string

	PollInterval time.Duration
	GraceWindow  time.Duration

	KVDriver string // memory, sqlite or redis
	KVPath   string
	RedisURL string

	DedupMaxEntries    int // 0 keeps every processed id forever
	DeliveryRatePerSec int

	RealtimeMinReconnect time.Duration
	RealtimeMaxReconnect time.Duration

	OpsAddr string // empty disables the ops HTTP server
}

// Load reads configuration from environment variables and .env file (if present).
// Values required only by the run command are checked in ValidateForRun.
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DBMaxOpenConns, err = intEnv("DB_MAX_OPEN_CONNS", 5); err != nil {
		return nil, err
	}
	if cfg.DBMaxOpenConns <= 0 {
		return nil, fmt.Errorf("DB_MAX_OPEN_CONNS must be > 0")
	}
	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	cfg.RecipientUserID = strings.TrimSpace(os.Getenv("RECIPIENT_USER_ID"))

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	if cfg.PollInterval, err = durationEnv("POLL_INTERVAL", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.GraceWindow, err = durationEnv("GRACE_WINDOW", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.PollInterval < time.Second {
		return nil, fmt.Errorf("POLL_INTERVAL must be at least 1s, got %s", cfg.PollInterval)
	}

	cfg.KVDriver = strings.ToLower(strings.TrimSpace(os.Getenv("KV_DRIVER")))
	if cfg.KVDriver == "" {
		cfg.KVDriver = "sqlite"
	}
	cfg.KVPath = os.Getenv("KV_PATH")
	if cfg.KVPath == "" {
		cfg.KVPath = "./data/notifier.db"
	}
	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" {
		cfg.RedisURL = "redis://localhost:6379/0"
	}

	if cfg.DedupMaxEntries, err = intEnv("DEDUP_MAX_ENTRIES", 0); err != nil {
		return nil, err
	}
	if cfg.DedupMaxEntries < 0 {
		return nil, fmt.Errorf("DEDUP_MAX_ENTRIES must be >= 0")
	}
	if cfg.DeliveryRatePerSec, err = intEnv("DELIVERY_RATE_PER_SEC", 3); err != nil {
		return nil, err
	}
	if cfg.DeliveryRatePerSec <= 0 {
		cfg.DeliveryRatePerSec = 3
	}

	if cfg.RealtimeMinReconnect, err = durationEnv("REALTIME_MIN_RECONNECT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.RealtimeMaxReconnect, err = durationEnv("REALTIME_MAX_RECONNECT", time.Minute); err != nil {
		return nil, err
	}
	if cfg.RealtimeMaxReconnect < cfg.RealtimeMinReconnect {
		cfg.RealtimeMaxReconnect = cfg.RealtimeMinReconnect
	}

	cfg.OpsAddr = strings.TrimSpace(os.Getenv("OPS_ADDR"))

	return cfg, nil
}

// ValidateForRun checks the values the long-running notifier cannot start without.
func (c *AppConfig) ValidateForRun() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is not set")
	}
	if c.RecipientUserID == "" {
		return fmt.Errorf("RECIPIENT_USER_ID is not set")
	}
	return nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", name)
	}
	return d, nil
}

func intEnv(name string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}
