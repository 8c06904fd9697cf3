package cache

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Buffer is the request-scoped layer in front of a Backend. It remembers
// every key it has seen during one request, hits and misses alike, so a key
// costs at most one backend round trip per request.
//
// A Buffer belongs to a single request and is not safe for concurrent use.
type Buffer struct {
	backend Backend
	log     *logrus.Logger
	metrics *Metrics

	// entries maps a resolved key to its value; nil marks a known miss.
	entries map[string][]byte
}

func NewBuffer(backend Backend, log *logrus.Logger, metrics *Metrics) *Buffer {
	if log == nil {
		log = logrus.New()
	}
	return &Buffer{
		backend: backend,
		log:     log,
		metrics: metrics,
		entries: make(map[string][]byte),
	}
}

// Resolved reports whether key was already looked up in this request.
func (b *Buffer) Resolved(key string) bool {
	_, ok := b.entries[key]
	return ok
}

// Preload fetches every key not yet resolved with a single GetMany call.
// Keys the backend does not return are remembered as misses. A failing
// backend is logged and treated as a miss for the whole batch.
func (b *Buffer) Preload(ctx context.Context, keys []string) {
	pending := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup || b.Resolved(k) {
			continue
		}
		seen[k] = struct{}{}
		pending = append(pending, k)
	}

	b.metrics.roundTrip("get_many")
	b.metrics.batch(len(pending))
	found, err := b.backend.GetMany(ctx, pending)
	if err != nil {
		b.metrics.failed("get_many")
		b.log.WithFields(logrus.Fields{
			"keys":  len(pending),
			"error": err,
		}).Warn("batched cache fetch failed, treating as misses")
		found = nil
	}

	for _, k := range pending {
		if v, ok := found[k]; ok && v != nil {
			b.entries[k] = v
		} else {
			b.entries[k] = nil
		}
	}
}

// Get returns the cached value for key, asking the backend only when the
// key was not resolved earlier in this request.
func (b *Buffer) Get(ctx context.Context, key string) ([]byte, bool) {
	if v, ok := b.entries[key]; ok {
		if v == nil {
			b.metrics.lookup("miss")
			return nil, false
		}
		b.metrics.lookup("buffer")
		return v, true
	}

	b.metrics.roundTrip("get")
	v, found, err := b.backend.Get(ctx, key)
	if err != nil {
		b.metrics.failed("get")
		b.log.WithFields(logrus.Fields{
			"key":   key,
			"error": err,
		}).Warn("cache fetch failed, treating as miss")
		found = false
	}
	if !found {
		b.entries[key] = nil
		b.metrics.lookup("miss")
		return nil, false
	}
	b.entries[key] = v
	b.metrics.lookup("backend")
	return v, true
}

// Set writes value through to the backend and remembers it locally. A
// backend failure only loses the shared copy.
func (b *Buffer) Set(ctx context.Context, key string, value []byte) {
	b.entries[key] = value
	b.metrics.roundTrip("set")
	if err := b.backend.Set(ctx, key, value); err != nil {
		b.metrics.failed("set")
		b.log.WithFields(logrus.Fields{
			"key":   key,
			"error": err,
		}).Warn("cache write failed")
	}
}

// Delete drops keys from the request and from the backend.
func (b *Buffer) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(b.entries, k)
	}
	if len(keys) == 0 {
		return nil
	}
	b.metrics.roundTrip("delete")
	return b.backend.Delete(ctx, keys...)
}
