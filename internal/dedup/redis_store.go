package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"RigWatch/internal/domain/models"
)

// RedisStoreConfig holds connection settings for the Redis dedup store.
type RedisStoreConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	Prefix       string
}

// RedisStoreOption configures the Redis dedup store.
type RedisStoreOption func(*RedisStoreConfig)

func WithRedisHost(host string) RedisStoreOption {
	return func(c *RedisStoreConfig) {
		c.Host = host
	}
}

func WithRedisPort(port int) RedisStoreOption {
	return func(c *RedisStoreConfig) {
		c.Port = port
	}
}

func WithRedisPassword(password string) RedisStoreOption {
	return func(c *RedisStoreConfig) {
		c.Password = password
	}
}

func WithRedisDB(db int) RedisStoreOption {
	return func(c *RedisStoreConfig) {
		c.DB = db
	}
}

func WithRedisPoolSize(size int) RedisStoreOption {
	return func(c *RedisStoreConfig) {
		c.PoolSize = size
	}
}

func WithRedisPrefix(prefix string) RedisStoreOption {
	return func(c *RedisStoreConfig) {
		c.Prefix = prefix
	}
}

type dedupRecord struct {
	AtMS     int64           `json:"at_ms"`
	Severity models.Severity `json:"severity"`
}

// RedisStore keeps last-emission records in Redis so suppression
// survives restarts and is shared across instances.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(opts ...RedisStoreOption) (*RedisStore, error) {
	cfg := &RedisStoreConfig{
		Host:         "localhost",
		Port:         6379,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		Prefix:       "rigwatch:dedup",
	}

	for _, opt := range opts {
		opt(cfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: cfg.Prefix,
	}, nil
}

func (s *RedisStore) wrapKey(key string) string {
	return s.prefix + ":" + key
}

// Last returns the most recent emission recorded for the key.
func (s *RedisStore) Last(ctx context.Context, key string) (time.Time, models.Severity, bool, error) {
	data, err := s.client.Get(ctx, s.wrapKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, 0, false, nil
		}
		return time.Time{}, 0, false, fmt.Errorf("dedup get %s: %w", key, err)
	}

	var rec dedupRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return time.Time{}, 0, false, fmt.Errorf("dedup decode %s: %w", key, err)
	}
	return time.UnixMilli(rec.AtMS), rec.Severity, true, nil
}

// Record stores the emission time and severity for the key. Entries
// live twice the suppression window so a lookup right at the window
// edge still sees the previous emission.
func (s *RedisStore) Record(ctx context.Context, key string, at time.Time, severity models.Severity, ttl time.Duration) error {
	data, err := json.Marshal(dedupRecord{AtMS: at.UnixMilli(), Severity: severity})
	if err != nil {
		return fmt.Errorf("dedup encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, s.wrapKey(key), data, 2*ttl).Err(); err != nil {
		return fmt.Errorf("dedup set %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
