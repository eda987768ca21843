// Package clickhouse owns the ClickHouse connection used by the history
// store. History logs are append-only, so plain MergeTree tables ordered by
// time are sufficient; there is no staging/promotion phase.
package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/tiervault/tiervault/pkg/retry"
	"github.com/tiervault/tiervault/pkg/utils"
	"go.uber.org/zap"
)

type Client struct {
	Logger   *zap.Logger
	Db       driver.Conn
	Database string
}

// New connects with exponential backoff and ensures the target database
// exists. Configuration:
//   - CLICKHOUSE_ADDR: comma-separated replica addresses (default "localhost:9000")
//   - CLICKHOUSE_USER / CLICKHOUSE_PASSWORD
//   - CLICKHOUSE_DB: target database (default "tiervault")
//   - CLICKHOUSE_MAX_OPEN_CONNS / CLICKHOUSE_MAX_IDLE_CONNS
func New(ctx context.Context, logger *zap.Logger) (*Client, error) {
	connCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	database := utils.Env("CLICKHOUSE_DB", "tiervault")
	options := &clickhouse.Options{
		Addr: strings.Split(utils.Env("CLICKHOUSE_ADDR", "localhost:9000"), ","),
		Auth: clickhouse.Auth{
			Database: "default", // connect first, create the target below
			Username: utils.Env("CLICKHOUSE_USER", "default"),
			Password: utils.Env("CLICKHOUSE_PASSWORD", ""),
		},
		DialTimeout:     30 * time.Second,
		MaxOpenConns:    utils.EnvInt("CLICKHOUSE_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    utils.EnvInt("CLICKHOUSE_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: time.Hour,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	}

	var conn driver.Conn
	err := retry.WithBackoff(connCtx, retry.DefaultConfig(), logger, "clickhouse_connection", func() error {
		c, err := clickhouse.Open(options)
		if err != nil {
			return fmt.Errorf("failed to open clickhouse connection: %w", err)
		}
		if err := c.Ping(connCtx); err != nil {
			_ = c.Close()
			return fmt.Errorf("clickhouse ping failed: %w", err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	client := &Client{Logger: logger, Db: conn, Database: database}
	if err := client.Exec(ctx, fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS "%s"`, database)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create database %s: %w", database, err)
	}

	logger.Info("Connected to ClickHouse",
		zap.Strings("addr", options.Addr),
		zap.String("database", database))
	return client, nil
}

func (c *Client) Exec(ctx context.Context, query string, args ...any) error {
	return c.Db.Exec(ctx, query, args...)
}

func (c *Client) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	return c.Db.Query(ctx, query, args...)
}

func (c *Client) PrepareBatch(ctx context.Context, query string) (driver.Batch, error) {
	return c.Db.PrepareBatch(ctx, query)
}

func (c *Client) Ping(ctx context.Context) error {
	return c.Db.Ping(ctx)
}

func (c *Client) Close() error {
	return c.Db.Close()
}
