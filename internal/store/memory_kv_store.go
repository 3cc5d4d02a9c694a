package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock
var SystemClock Clock = systemClock{}

// MemoryKVStore implements KeyValueStore with an in-process map.
// It backs local development and tests; expiry is checked on read.
type MemoryKVStore struct {
	data    map[string]*memoryItem
	mu      sync.RWMutex
	maxSize int
	clock   Clock
	logger  *zap.Logger
	stop    chan struct{}
	once    sync.Once
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryKVStore creates an in-memory store holding at most maxSize keys.
// cleanupInterval <= 0 disables the background sweep.
func NewMemoryKVStore(maxSize int, cleanupInterval time.Duration, clock Clock, logger *zap.Logger) *MemoryKVStore {
	if clock == nil {
		clock = SystemClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &MemoryKVStore{
		data:    make(map[string]*memoryItem),
		maxSize: maxSize,
		clock:   clock,
		logger:  logger,
		stop:    make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go s.cleanup(cleanupInterval)
	}

	return s
}

// Get returns a copy of the stored bytes, or ErrNotFound once expired
func (s *MemoryKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.data[key]
	if !exists || !s.clock.Now().Before(item.expiresAt) {
		return nil, ErrNotFound
	}

	out := make([]byte, len(item.value))
	copy(out, item.value)
	return out, nil
}

// SetEx stores value until ttl elapses
func (s *MemoryKVStore) SetEx(ctx context.Context, key string, ttl time.Duration, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()

	if _, exists := s.data[key]; !exists && s.maxSize > 0 && len(s.data) >= s.maxSize {
		s.evictLocked(now)
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	s.data[key] = &memoryItem{
		value:     stored,
		expiresAt: now.Add(ttl),
	}

	return nil
}

// evictLocked drops an expired key if one exists, otherwise the key closest to expiry
func (s *MemoryKVStore) evictLocked(now time.Time) {
	var victim string
	var earliest time.Time
	for k, v := range s.data {
		if !now.Before(v.expiresAt) {
			delete(s.data, k)
			return
		}
		if victim == "" || v.expiresAt.Before(earliest) {
			victim = k
			earliest = v.expiresAt
		}
	}
	if victim != "" {
		s.logger.Debug("Evicting key from memory store", zap.String("key", victim))
		delete(s.data, victim)
	}
}

// Delete removes a key
func (s *MemoryKVStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// Ping always succeeds
func (s *MemoryKVStore) Ping(ctx context.Context) error {
	return nil
}

// Close stops the background sweep
func (s *MemoryKVStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

// Size returns the number of stored keys, expired or not
func (s *MemoryKVStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// cleanup periodically removes expired entries
func (s *MemoryKVStore) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			now := s.clock.Now()
			for key, item := range s.data {
				if !now.Before(item.expiresAt) {
					delete(s.data, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
