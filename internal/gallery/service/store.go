package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists the collection as a JSON-encoded URL list under a
// single Redis key.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a Redis-backed collection store.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

// Load reads the persisted URL list. A missing key means an empty gallery.
func (s *RedisStore) Load(ctx context.Context) ([]string, error) {
	raw, err := s.client.Get(ctx, s.key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", s.key, err)
	}

	var urls []string
	if err := json.Unmarshal([]byte(raw), &urls); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.key, err)
	}
	return urls, nil
}

// Save writes the full URL list, replacing the previous state.
func (s *RedisStore) Save(ctx context.Context, urls []string) error {
	raw, err := json.Marshal(urls)
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.key, err)
	}
	if err := s.client.Set(ctx, s.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", s.key, err)
	}
	return nil
}

// MemoryStore is an in-process Store for deployments without Redis and for
// tests. State does not survive a restart.
type MemoryStore struct {
	mu   sync.Mutex
	urls []string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the stored URL list.
func (s *MemoryStore) Load(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.urls...), nil
}

// Save replaces the stored URL list.
func (s *MemoryStore) Save(ctx context.Context, urls []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls = append([]string(nil), urls...)
	return nil
}
