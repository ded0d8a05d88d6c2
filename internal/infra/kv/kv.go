// Package kv provides the key-value persistence backends behind notification.KV.
//
// It currently supports:
//   - memory (tests, throwaway runs)
//   - sqlite (default; a single local file)
//   - redis
package kv

import (
	"errors"
	"fmt"
	"strings"

	"notification_reconciler/internal/domain/notification"
)

var ErrUnknownDriver = errors.New("unknown kv driver")

// Config selects and configures a backend.
type Config struct {
	Driver   string
	Path     string // sqlite file
	RedisURL string
}

// Open initializes the configured store.
func Open(cfg Config) (notification.KV, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return NewSQLiteStore(cfg.Path)
	case "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(cfg.RedisURL)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}
