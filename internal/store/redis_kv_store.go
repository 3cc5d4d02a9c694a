package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisKVStore implements KeyValueStore for Redis
type RedisKVStore struct {
	client *redis.Client
	logger *zap.Logger
}

// RedisOptions holds connection settings for NewRedisKVStore.
// URL (redis://...) takes precedence over Host, Port, Password and DB.
type RedisOptions struct {
	URL          string
	Host         string
	Port         int
	Password     string
	DB           int
	MaxRetries   int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewRedisKVStore connects to Redis and verifies the connection
func NewRedisKVStore(ctx context.Context, opts RedisOptions, logger *zap.Logger) (*RedisKVStore, error) {
	redisOpts := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Password: opts.Password,
		DB:       opts.DB,
	}
	if opts.URL != "" {
		parsed, err := redis.ParseURL(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		redisOpts = parsed
	}
	redisOpts.MaxRetries = opts.MaxRetries
	redisOpts.PoolSize = opts.PoolSize
	redisOpts.MinIdleConns = opts.MinIdleConns
	redisOpts.DialTimeout = opts.DialTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis", zap.String("addr", redisOpts.Addr), zap.Int("db", redisOpts.DB))

	return NewRedisKVStoreFromClient(client, logger), nil
}

// NewRedisKVStoreFromClient wraps an existing client
func NewRedisKVStoreFromClient(client *redis.Client, logger *zap.Logger) *RedisKVStore {
	return &RedisKVStore{
		client: client,
		logger: logger,
	}
}

// Get returns the stored bytes, or ErrNotFound
func (s *RedisKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// SetEx stores value with an expiry
func (s *RedisKVStore) SetEx(ctx context.Context, key string, ttl time.Duration, value []byte) error {
	if err := s.client.SetEx(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis setex: %w", err)
	}
	return nil
}

// Delete removes a key
func (s *RedisKVStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping checks the Redis connection
func (s *RedisKVStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisKVStore) Close() error {
	return s.client.Close()
}
