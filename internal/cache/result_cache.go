package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devrev/bqsync/internal/metrics"
	"github.com/devrev/bqsync/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL applies when neither the call nor the options set a TTL
const DefaultTTL = 300 * time.Second

// Options configures a ResultCache
type Options struct {
	DefaultTTL time.Duration
	KeyPrefix  string
	// FingerprintContent hashes table rows into keys, not only the shape
	FingerprintContent bool
}

// ResultCache memoizes operation results in a KeyValueStore.
// Store and codec failures never reach the caller; they degrade to calling the operation.
// A nil *ResultCache calls the operation directly.
type ResultCache struct {
	kv                 store.KeyValueStore
	logger             *zap.Logger
	metrics            *metrics.Metrics
	defaultTTL         time.Duration
	keyPrefix          string
	fingerprintContent bool
	group              singleflight.Group
}

// NewResultCache creates a new result cache
func NewResultCache(kv store.KeyValueStore, opts Options, m *metrics.Metrics, logger *zap.Logger) *ResultCache {
	ttl := opts.DefaultTTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResultCache{
		kv:                 kv,
		logger:             logger,
		metrics:            m,
		defaultTTL:         ttl,
		keyPrefix:          opts.KeyPrefix,
		fingerprintContent: opts.FingerprintContent,
	}
}

// Key returns the store key for op called with args
func (c *ResultCache) Key(op string, args Args) string {
	return c.keyPrefix + DeriveKey(op, args, c.fingerprintContent)
}

// Memoize returns the cached result of fn for op and args, computing and storing it on a miss.
// Concurrent misses on one key share a single call of fn, and the callers share its result.
// The shared call is detached from each caller's cancellation; a caller whose ctx ends
// stops waiting and gets ctx's error while the others keep waiting.
// Errors from fn are returned and never cached.
func Memoize[T any](ctx context.Context, c *ResultCache, op string, args Args, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if c == nil {
		return fn(ctx)
	}

	key := c.Key(op, args)
	if v, ok := lookup[T](ctx, c, op, key); ok {
		return v, nil
	}

	flight := c.group.DoChan(key, func() (_ any, err error) {
		// DoChan runs this on its own goroutine
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s panicked: %v", op, r)
			}
		}()

		sharedCtx := context.WithoutCancel(ctx)
		v, err := fn(sharedCtx)
		if err != nil {
			return nil, err
		}
		c.store(sharedCtx, op, key, ttl, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-flight:
		if res.Err != nil {
			return zero, res.Err
		}
		if res.Shared {
			c.logger.Debug("Shared in-flight computation", zap.String("key", key))
		}
		v, _ := res.Val.(T)
		return v, nil
	}
}

// Cached binds op and ttl so call sites only pass arguments and the operation
func Cached[T any](c *ResultCache, op string, ttl time.Duration) func(ctx context.Context, args Args, fn func(context.Context) (T, error)) (T, error) {
	return func(ctx context.Context, args Args, fn func(context.Context) (T, error)) (T, error) {
		return Memoize(ctx, c, op, args, ttl, fn)
	}
}

func lookup[T any](ctx context.Context, c *ResultCache, op, key string) (T, bool) {
	var zero T

	data, err := c.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("Cache read failed, calling through",
				zap.String("key", key),
				zap.Error(err))
			c.metrics.RecordCacheError(op, "get")
		}
		c.metrics.RecordCacheMiss(op)
		return zero, false
	}

	v, err := decodeEntry[T](data)
	if err != nil {
		c.logger.Warn("Discarding undecodable cache entry",
			zap.String("key", key),
			zap.Error(err))
		c.metrics.RecordCacheError(op, "decode")
		if delErr := c.kv.Delete(ctx, key); delErr != nil {
			c.logger.Warn("Failed to delete cache entry",
				zap.String("key", key),
				zap.Error(delErr))
			c.metrics.RecordCacheError(op, "delete")
		} else {
			c.metrics.RecordCacheEviction(op)
		}
		c.metrics.RecordCacheMiss(op)
		return zero, false
	}

	c.metrics.RecordCacheHit(op)
	return v, true
}

func (c *ResultCache) store(ctx context.Context, op, key string, ttl time.Duration, v any) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	data, err := encodeEntry(v)
	if err != nil {
		c.logger.Warn("Result not cacheable",
			zap.String("key", key),
			zap.Error(err))
		c.metrics.RecordCacheError(op, "encode")
		return
	}

	if err := c.kv.SetEx(ctx, key, ttl, data); err != nil {
		c.logger.Warn("Cache write failed",
			zap.String("key", key),
			zap.Duration("ttl", ttl),
			zap.Error(err))
		c.metrics.RecordCacheError(op, "set")
	}
}
