// Package kv is the small key-value store the terminal keeps its browser-side
// state in: the fund list and the last rendered tiles.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("key not found")

// Store is a Redis-backed opaque key-value store.
type Store struct {
	rdb *redis.Client
}

// New creates a Store backed by Redis.
func New(redisURL, password string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	if password != "" {
		opts.Password = password
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return &Store{rdb: rdb}, nil
}

// Close shuts down the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Get returns the value stored at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return b, err
}

// Set stores value at key permanently.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.rdb.Set(ctx, key, value, 0).Err()
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// HSet stores one field of a hash.
func (s *Store) HSet(ctx context.Context, key, field string, value []byte) error {
	return s.rdb.HSet(ctx, key, field, value).Err()
}

// HGetAll returns every field of a hash.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	m, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(m))
	for k, v := range m {
		out[k] = []byte(v)
	}
	return out, nil
}

// KV is the subset of Store the rest of the service depends on. Memory
// implements it for running without Redis.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	HSet(ctx context.Context, key, field string, value []byte) error
	HGetAll(ctx context.Context, key string) (map[string][]byte, error)
	Ping(ctx context.Context) error
}

var (
	_ KV = (*Store)(nil)
	_ KV = (*Memory)(nil)
)

// GetJSON decodes the value at key into out.
func GetJSON(ctx context.Context, s KV, key string, out any) error {
	b, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes v and stores it at key.
func SetJSON(ctx context.Context, s KV, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, b)
}

// Memory is an in-process KV.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
	hashes map[string]map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{
		values: make(map[string][]byte),
		hashes: make(map[string]map[string][]byte),
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	delete(m.hashes, key)
	return nil
}

func (m *Memory) HSet(_ context.Context, key, field string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string][]byte)
		m.hashes[key] = h
	}
	h[field] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) HGetAll(_ context.Context, key string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte, len(m.hashes[key]))
	for k, v := range m.hashes[key] {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }
