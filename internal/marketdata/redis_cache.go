package marketdata

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// RedisConfig holds connection parameters for the shared chain cache.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	TLSEnabled bool
	Prefix     string
	TTL        time.Duration
}

// RedisCache shares chains between processes. Entries are msgpack-encoded
// and expire server-side after the TTL.
type RedisCache struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

// NewRedisCache creates a chain cache over an existing client.
func NewRedisCache(rdb redis.Cmdable, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "chain:"
	}
	return &RedisCache{rdb: rdb, prefix: prefix, ttl: ttl, now: time.Now}
}

func (c *RedisCache) key(symbol string) string {
	return c.prefix + symbol
}

func (c *RedisCache) Get(ctx context.Context, symbol string) (Chain, error) {
	raw, err := c.rdb.Get(ctx, c.key(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Chain{}, ErrUnavailable
	}
	if err != nil {
		return Chain{}, fmt.Errorf("redis: get chain %s: %w", symbol, err)
	}

	chain, err := decodeChain(raw)
	if err != nil {
		return Chain{}, fmt.Errorf("redis: decode chain %s: %w", symbol, err)
	}
	if c.ttl > 0 && c.now().Sub(chain.FetchedAt) > c.ttl {
		return Chain{}, ErrUnavailable
	}
	return chain, nil
}

func (c *RedisCache) Set(ctx context.Context, symbol string, chain Chain) error {
	if chain.FetchedAt.IsZero() {
		chain.FetchedAt = c.now()
	}
	raw, err := encodeChain(chain)
	if err != nil {
		return fmt.Errorf("redis: encode chain %s: %w", symbol, err)
	}
	if err := c.rdb.Set(ctx, c.key(symbol), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set chain %s: %w", symbol, err)
	}
	return nil
}

func encodeChain(chain Chain) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(chain); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeChain(raw []byte) (Chain, error) {
	var chain Chain
	dec := msgpack.NewDecoder(bytes.NewReader(raw))
	dec.SetCustomStructTag("json")
	if err := dec.Decode(&chain); err != nil {
		return Chain{}, err
	}
	return chain, nil
}
