package redis

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"VerificarSmsPlatform/pkg/config"
)

// Client представляет подключение к Redis
type Client struct {
	Client *redis.Client
}

// Config представляет конфигурацию Redis
type Config struct {
	// URL вида redis://[:password@]host:port/db
	URL string
	// Connection pool settings
	PoolSize    int
	MinIdleConn int
	// Retry settings
	MaxRetries    int
	RetryInterval time.Duration
	DialTimeout   time.Duration
}

// NewConfig создает конфигурацию по умолчанию
func NewConfig() *Config {
	return &Config{
		URL:           "redis://localhost:6379/0",
		PoolSize:      10,
		MinIdleConn:   2,
		MaxRetries:    3,
		RetryInterval: 1 * time.Second,
		DialTimeout:   5 * time.Second,
	}
}

// ConfigFrom строит конфигурацию клиента из секции redis конфигурации панели
func ConfigFrom(cfg config.RedisConfig) *Config {
	return &Config{
		URL:           cfg.URL,
		PoolSize:      cfg.PoolSize,
		MinIdleConn:   cfg.MinIdleConn,
		MaxRetries:    cfg.MaxRetries,
		RetryInterval: config.Duration(cfg.RetryInterval, time.Second),
		DialTimeout:   config.Duration(cfg.DialTimeout, 5*time.Second),
	}
}

// Options разбирает URL и применяет настройки пула
func (c *Config) Options() (*redis.Options, error) {
	opts, err := redis.ParseURL(c.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if c.PoolSize > 0 {
		opts.PoolSize = c.PoolSize
	}
	opts.MinIdleConns = c.MinIdleConn
	if c.DialTimeout > 0 {
		opts.DialTimeout = c.DialTimeout
	}
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second
	return opts, nil
}

// Connect устанавливает подключение к Redis с retry логикой
func Connect(ctx context.Context, config *Config) (*Client, error) {
	opts, err := config.Options()
	if err != nil {
		return nil, err
	}

	var lastErr error
	for i := 0; i <= config.MaxRetries; i++ {
		client := redis.NewClient(opts)

		if err := client.Ping(ctx).Err(); err != nil {
			lastErr = fmt.Errorf("failed to ping redis: %w", err)
			client.Close()
			if i < config.MaxRetries {
				select {
				case <-ctx.Done():
					return nil, fmt.Errorf("redis connect cancelled: %w", ctx.Err())
				case <-time.After(config.RetryInterval):
				}
			}
			continue
		}

		return &Client{Client: client}, nil
	}

	return nil, fmt.Errorf("failed to connect to redis after %d retries: %w", config.MaxRetries, lastErr)
}

// Close закрывает подключение к Redis
func (r *Client) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// HealthCheck проверяет состояние подключения к Redis
func (r *Client) HealthCheck(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// ServerInfo краткие сведения о сервере Redis для админ-панели
type ServerInfo struct {
	Connected        bool   `json:"connected"`
	Version          string `json:"redis_version,omitempty"`
	UsedMemoryHuman  string `json:"used_memory_human,omitempty"`
	ConnectedClients int    `json:"connected_clients,omitempty"`
	UptimeSeconds    int64  `json:"uptime_in_seconds,omitempty"`
	Keys             int64  `json:"keys"`
	Error            string `json:"error,omitempty"`
}

// Info возвращает состояние сервера. Ошибка подключения отражается в поле Error, а не возвращается.
func (r *Client) Info(ctx context.Context) ServerInfo {
	if err := r.HealthCheck(ctx); err != nil {
		return ServerInfo{Connected: false, Error: err.Error()}
	}

	info := ServerInfo{Connected: true}
	if raw, err := r.Client.Info(ctx, "server", "memory", "clients").Result(); err == nil {
		fields := ParseInfo(raw)
		info.Version = fields["redis_version"]
		info.UsedMemoryHuman = fields["used_memory_human"]
		info.ConnectedClients, _ = strconv.Atoi(fields["connected_clients"])
		info.UptimeSeconds, _ = strconv.ParseInt(fields["uptime_in_seconds"], 10, 64)
	}
	if n, err := r.Client.DBSize(ctx).Result(); err == nil {
		info.Keys = n
	}
	return info
}

// ParseInfo разбирает ответ команды INFO в пары ключ-значение
func ParseInfo(raw string) map[string]string {
	fields := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields[key] = value
	}
	return fields
}
