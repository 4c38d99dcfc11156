// internal/pkg/redis/client.go
package redis

import (
	"context"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

// Client 封装了 go-redis 客户端。
type Client struct {
	rdb *goredis.Client
}

// NewClient 创建客户端并立即 Ping 一次，连接失败直接返回错误。
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "ping redis %s", addr)
	}
	return Wrap(rdb), nil
}

// Wrap 包装一个已有的 go-redis 客户端（测试中用于对接 miniredis）。
func Wrap(rdb *goredis.Client) *Client {
	return &Client{rdb: rdb}
}

// GetClient 暴露底层客户端
func (c *Client) GetClient() *goredis.Client {
	return c.rdb
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
