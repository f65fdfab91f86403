// internal/pkg/redis/client.go
package redis

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Nil 透传 go-redis 的未命中哨兵，调用方不必额外引入底层包。
const Nil = goredis.Nil

// Client 在 go-redis 之上增加了一个命名 Lua 脚本注册表。
// 脚本在初始化阶段注册，运行期通过名字执行（EVALSHA 自动回退 EVAL）。
type Client struct {
	rdb *goredis.Client

	mu      sync.RWMutex
	scripts map[string]*goredis.Script
}

// NewClient 创建一个新的 Redis 客户端并验证连通性。
func NewClient(addr string) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	log.Printf("✅ Successfully connected to Redis at %s.", addr)
	return &Client{
		rdb:     rdb,
		scripts: make(map[string]*goredis.Script),
	}, nil
}

// GetClient 暴露底层的 go-redis 客户端，用于执行普通命令和 pipeline。
func (c *Client) GetClient() *goredis.Client {
	return c.rdb
}

// LoadScriptFromContent 注册一段命名 Lua 脚本。重复注册会覆盖旧脚本。
func (c *Client) LoadScriptFromContent(name, content string) error {
	if name == "" || content == "" {
		return fmt.Errorf("script name and content must not be empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[name] = goredis.NewScript(content)
	return nil
}

// RunScript 执行一段已注册的命名脚本。
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("lua script '%s' is not registered", name)
	}
	return script.Run(ctx, c.rdb, keys, args...).Result()
}

// Close 关闭底层连接。
func (c *Client) Close() error {
	return c.rdb.Close()
}
