package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultTimeout = 3 * time.Second
	clientName     = "vereinskasse"
)

type ConnectionInfo struct {
	Addr        string
	Password    string
	DB          int
	MaxRetries  int
	DialTimeout time.Duration
	Timeout     time.Duration
	PoolSize    int
}

type Client = goredis.Client

// Nil is returned by Get when a key does not exist.
const Nil = goredis.Nil

func (info ConnectionInfo) options() *goredis.Options {
	timeout := info.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	dial := info.DialTimeout
	if dial <= 0 {
		dial = timeout
	}

	return &goredis.Options{
		Addr:         info.Addr,
		ClientName:   clientName,
		Password:     info.Password,
		DB:           info.DB,
		MaxRetries:   info.MaxRetries,
		DialTimeout:  dial,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		PoolSize:     info.PoolSize,
		PoolTimeout:  timeout + time.Second,
	}
}

// NewRedisConnection connects and pings once; the client is closed again
// when the ping fails.
func NewRedisConnection(ctx context.Context, info ConnectionInfo) (*Client, error) {
	opts := info.options()
	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.ReadTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", info.Addr, err)
	}

	return rdb, nil
}

func Close(c *Client) {
	if c == nil {
		return
	}
	_ = c.Close()
}
