package redis

import (
	"context"
	"strings"

	"ebook-queue/internal/config"

	"github.com/go-redis/redis/v8"
)

// Client is the shared connection plus the key namespace every store in this
// package writes under.
type Client struct {
	cli  *redis.Client
	keys keyspace
}

// NewClient accepts either a bare host:port or a redis:// / rediss:// URL.
func NewClient(ctx context.Context, cfg *config.RedisConfig, prefix string) (*Client, error) {
	opts := &redis.Options{Addr: cfg.URL}
	if strings.Contains(cfg.URL, "://") {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, err
		}
		opts = parsed
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return &Client{cli: c, keys: keyspace{prefix: prefix}}, nil
}

// NewFromRedis wraps an existing go-redis client.
func NewFromRedis(c *redis.Client, prefix string) *Client {
	return &Client{cli: c, keys: keyspace{prefix: prefix}}
}

func (c *Client) Ping(ctx context.Context) error { return c.cli.Ping(ctx).Err() }

func (c *Client) Close() error { return c.cli.Close() }
