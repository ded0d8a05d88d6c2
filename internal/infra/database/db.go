package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PoolSettings sizes the connection pool. Zero fields take the defaults below.
type PoolSettings struct {
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

const (
	defaultMaxOpenConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	defaultPingTimeout     = 10 * time.Second
)

func (p PoolSettings) withDefaults() PoolSettings {
	if p.MaxOpenConns <= 0 {
		p.MaxOpenConns = defaultMaxOpenConns
	}
	if p.ConnMaxLifetime <= 0 {
		p.ConnMaxLifetime = defaultConnMaxLifetime
	}
	if p.PingTimeout <= 0 {
		p.PingTimeout = defaultPingTimeout
	}
	return p
}

// NewPostgresConnection opens a pool for dsn and waits for the first ping. The realtime
// listener holds its own connection outside this pool; the pool serves polls, screen
// lookups and history writes.
func NewPostgresConnection(ctx context.Context, dsn string, pool PoolSettings) (*sql.DB, error) {
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	p := pool.withDefaults()

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(p.MaxOpenConns)
	db.SetMaxIdleConns(p.MaxOpenConns)
	db.SetConnMaxLifetime(p.ConnMaxLifetime)
	db.SetConnMaxIdleTime(p.ConnMaxLifetime / 5)

	pingCtx, cancel := context.WithTimeout(ctx, p.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}
