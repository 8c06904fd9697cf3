package cache

import (
	"context"
	"errors"
	"time"

	"github.com/i5heu/geohive/internal/keyValStore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type BadgerConfig struct {
	Paths            []string
	MinimumFreeSpace int // in GB
	InMemory         bool
	// TTL bounds the lifetime of every entry. Zero keeps entries until
	// they are deleted.
	TTL    time.Duration
	Logger *logrus.Logger
	// Registerer, when set, receives the store's key read and write
	// counters.
	Registerer prometheus.Registerer
}

type badgerBackend struct {
	kv  *keyValStore.KeyValStore
	ttl time.Duration
}

// NewBadger opens a badger-backed cache.
func NewBadger(cfg BadgerConfig) (Backend, error) {
	kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
		Paths:            cfg.Paths,
		MinimumFreeSpace: cfg.MinimumFreeSpace,
		InMemory:         cfg.InMemory,
		Logger:           cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Registerer != nil {
		if err := registerCounters(cfg.Registerer, kv); err != nil {
			_ = kv.Close()
			return nil, err
		}
	}
	return &badgerBackend{kv: kv, ttl: cfg.TTL}, nil
}

func registerCounters(reg prometheus.Registerer, kv *keyValStore.KeyValStore) error {
	reads := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "geohive_badger_key_reads_total",
		Help: "Keys read from the badger cache store",
	}, func() float64 {
		r, _ := kv.Counters()
		return float64(r)
	})
	writes := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "geohive_badger_key_writes_total",
		Help: "Keys written to or deleted from the badger cache store",
	}, func() float64 {
		_, w := kv.Counters()
		return float64(w)
	})
	if err := reg.Register(reads); err != nil {
		return err
	}
	return reg.Register(writes)
}

func (b *badgerBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	v, err := b.kv.Read([]byte(key))
	if errors.Is(err, keyValStore.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (b *badgerBackend) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}
	raw := make([][]byte, len(keys))
	for i, k := range keys {
		raw[i] = []byte(k)
	}
	return b.kv.ReadBatch(raw)
}

func (b *badgerBackend) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.kv.Write([]byte(key), value, b.ttl)
}

func (b *badgerBackend) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw := make([][]byte, len(keys))
	for i, k := range keys {
		raw[i] = []byte(k)
	}
	return b.kv.Delete(raw...)
}

func (b *badgerBackend) Close() error {
	return b.kv.Close()
}

// Flush drops every path-parameter entry.
func (b *badgerBackend) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.kv.DropPrefix([]byte(KeyPrefix))
}
