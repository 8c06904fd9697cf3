package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultMemorySize = 100_000

type memoryBackend struct {
	lru *expirable.LRU[string, []byte]
}

// NewMemory creates an in-process LRU cache holding at most size entries,
// each living at most ttl (zero disables expiry).
//
// Memory is safe for concurrent use.
func NewMemory(size int, ttl time.Duration) Backend {
	if size <= 0 {
		size = defaultMemorySize
	}
	return &memoryBackend{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (m *memoryBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	v, ok := m.lru.Get(key)
	return v, ok, nil
}

func (m *memoryBackend) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	found := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := m.lru.Get(k); ok {
			found[k] = v
		}
	}
	return found, nil
}

func (m *memoryBackend) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.lru.Add(key, value)
	return nil
}

func (m *memoryBackend) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, k := range keys {
		m.lru.Remove(k)
	}
	return nil
}

func (m *memoryBackend) Close() error {
	m.lru.Purge()
	return nil
}

func (m *memoryBackend) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.lru.Purge()
	return nil
}
