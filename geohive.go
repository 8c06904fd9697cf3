// Package geohive wires the primary store, the shared path cache and the
// renderer into one service handle.
package geohive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/i5heu/geohive/pkg/cache"
	"github.com/i5heu/geohive/pkg/logging"
	"github.com/i5heu/geohive/pkg/paths"
	"github.com/i5heu/geohive/pkg/render"
	"github.com/i5heu/geohive/pkg/store"
	"github.com/i5heu/geohive/pkg/store/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotStarted = errors.New("geohive: not started")
	ErrClosed     = errors.New("geohive: closed")
)

// GeoHive owns the store and cache connections and the renderer built on
// them.
type GeoHive struct {
	log    *logrus.Logger
	config Config

	registry *prometheus.Registry
	metrics  *cache.Metrics

	mu       sync.RWMutex
	store    *sqlite.Store
	cache    cache.Backend
	renderer *render.Renderer

	started   atomic.Bool
	closed    atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
}

// New validates conf and returns an unstarted instance. Call Start before
// use.
func New(conf Config) (*GeoHive, error) { // A
	conf.applyDefaults()
	if err := conf.validate(); err != nil {
		return nil, err
	}
	if conf.Logger == nil {
		log, err := logging.New(conf.Log.Level, conf.Log.Format)
		if err != nil {
			return nil, err
		}
		conf.Logger = log
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	return &GeoHive{
		log:      conf.Logger,
		config:   conf,
		registry: reg,
		metrics:  cache.NewMetrics(reg),
	}, nil
}

// Start opens the primary store and the cache backend. Only the first call
// has an effect.
func (g *GeoHive) Start(ctx context.Context) error { // A
	var startErr error
	g.startOnce.Do(func() {
		if err := ctx.Err(); err != nil {
			startErr = err
			return
		}

		st, err := sqlite.Open(sqlite.Config{Path: g.config.Database, Logger: g.log})
		if err != nil {
			startErr = fmt.Errorf("open store: %w", err)
			return
		}

		backend, err := g.openCache()
		if err != nil {
			_ = st.Close()
			startErr = fmt.Errorf("open cache: %w", err)
			return
		}

		g.mu.Lock()
		g.store = st
		g.cache = backend
		g.renderer = render.New(render.Config{
			Store:    st,
			Cache:    backend,
			Builder:  paths.URLBuilder{BaseURL: g.config.BaseURL},
			MediaURL: g.config.MediaURL,
			Metrics:  g.metrics,
			Logger:   g.log,
		})
		g.mu.Unlock()

		g.started.Store(true)
		g.log.WithFields(logrus.Fields{
			"database": g.config.Database,
			"cache":    g.config.Cache.Backend,
		}).Info("geohive started")
	})
	return startErr
}

func (g *GeoHive) openCache() (cache.Backend, error) {
	switch g.config.Cache.Backend {
	case CacheMemory:
		return cache.NewMemory(g.config.Cache.Size, g.config.Cache.TTL), nil
	default:
		if err := os.MkdirAll(g.config.Cache.Paths[0], 0o755); err != nil {
			return nil, err
		}
		return cache.NewBadger(cache.BadgerConfig{
			Paths:            g.config.Cache.Paths,
			MinimumFreeSpace: int(g.config.Cache.MinimumFreeGB),
			TTL:              g.config.Cache.TTL,
			Logger:           g.log,
			Registerer:       g.registry,
		})
	}
}

// Close releases the store and the cache. It is safe to call more than once.
func (g *GeoHive) Close(ctx context.Context) error { // A
	var closeErr error
	g.closeOnce.Do(func() {
		g.closed.Store(true)

		g.mu.Lock()
		st, backend := g.store, g.cache
		g.store, g.cache, g.renderer = nil, nil, nil
		g.mu.Unlock()

		if backend != nil {
			if err := backend.Close(); err != nil {
				closeErr = errors.Join(closeErr, fmt.Errorf("close cache: %w", err))
			}
		}
		if st != nil {
			if err := st.Close(); err != nil {
				closeErr = errors.Join(closeErr, fmt.Errorf("close store: %w", err))
			}
		}
		g.log.Info("geohive closed")
	})
	return closeErr
}

func (g *GeoHive) ready() error {
	if g.closed.Load() {
		return ErrClosed
	}
	if !g.started.Load() {
		return ErrNotStarted
	}
	return nil
}

// Store returns the primary store.
func (g *GeoHive) Store() (store.Store, error) {
	if err := g.ready(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.store, nil
}

func (g *GeoHive) Renderer() (*render.Renderer, error) {
	if err := g.ready(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.renderer, nil
}

// Registry holds the cache metrics and the Go runtime collector.
// Cache returns the path cache backend.
func (g *GeoHive) Cache() (cache.Backend, error) {
	if err := g.ready(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cache, nil
}

func (g *GeoHive) Registry() *prometheus.Registry { return g.registry }

func (g *GeoHive) Logger() *logrus.Logger { return g.log }

func (g *GeoHive) Config() Config { return g.config }
