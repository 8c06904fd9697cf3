// Package cachetest provides cache backends for tests.
package cachetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/i5heu/geohive/pkg/cache"
)

// ErrUnavailable is returned by a Failing backend.
var ErrUnavailable = errors.New("cache unavailable")

// Counting wraps a Backend and counts calls per operation.
type Counting struct {
	cache.Backend

	gets    atomic.Int64
	getMany atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64

	mu      sync.Mutex
	batches [][]string
}

func NewCounting(b cache.Backend) *Counting {
	return &Counting{Backend: b}
}

func (c *Counting) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.gets.Add(1)
	return c.Backend.Get(ctx, key)
}

func (c *Counting) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	c.getMany.Add(1)
	c.mu.Lock()
	c.batches = append(c.batches, append([]string(nil), keys...))
	c.mu.Unlock()
	return c.Backend.GetMany(ctx, keys)
}

func (c *Counting) Set(ctx context.Context, key string, value []byte) error {
	c.sets.Add(1)
	return c.Backend.Set(ctx, key, value)
}

func (c *Counting) Delete(ctx context.Context, keys ...string) error {
	c.deletes.Add(1)
	return c.Backend.Delete(ctx, keys...)
}

func (c *Counting) Gets() int64 { return c.gets.Load() }
func (c *Counting) GetManys() int64 { return c.getMany.Load() }
func (c *Counting) Sets() int64 { return c.sets.Load() }
func (c *Counting) Deletes() int64 { return c.deletes.Load() }

// Batches returns the key sets of every GetMany call so far.
func (c *Counting) Batches() [][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]string(nil), c.batches...)
}

// Reset zeroes all counters.
func (c *Counting) Reset() {
	c.gets.Store(0)
	c.getMany.Store(0)
	c.sets.Store(0)
	c.deletes.Store(0)
	c.mu.Lock()
	c.batches = nil
	c.mu.Unlock()
}

// Failing is a backend whose every call fails.
type Failing struct{}

func (Failing) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, ErrUnavailable
}

func (Failing) GetMany(context.Context, []string) (map[string][]byte, error) {
	return nil, ErrUnavailable
}

func (Failing) Set(context.Context, string, []byte) error { return ErrUnavailable }

func (Failing) Delete(context.Context, ...string) error { return ErrUnavailable }

func (Failing) Close() error { return nil }
