// Package postgres opens the PostgreSQL pool that backs the SQL document
// store.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
)

const defaultConnectTimeout = 5 * time.Second

// Client owns the pool shared by every collection configured with the
// postgres store. They share one documents table keyed by collection and
// id, created by store.NewPostgres on first use.
type Client struct {
	DB *sql.DB
}

// New opens the pool and waits for one successful ping, bounded by
// cfg.ConnectTimeout, so that searchd fails at startup rather than on the
// first document write.
func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Database, err)
	}
	return &Client{DB: db}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

// Ping backs the "postgres" readiness check. A failure marks the service
// down, since documents of postgres-backed collections cannot be read.
func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}
