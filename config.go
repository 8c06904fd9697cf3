package geohive

import (
	"fmt"
	"time"

	"github.com/i5heu/geohive/internal/config"
	"github.com/sirupsen/logrus"
)

const (
	CacheBadger = "badger"
	CacheMemory = "memory"
)

// Config configures a GeoHive instance. It is usually read from YAML with
// LoadConfig; zero values are replaced by defaults in New.
type Config struct {
	// Database is the sqlite file of the primary store.
	Database string `yaml:"database"`
	// BaseURL prefixes every identifier in rendered documents.
	BaseURL string `yaml:"baseURL"`
	// MediaURL prefixes attachment file names.
	MediaURL string      `yaml:"mediaURL"`
	Listen   string      `yaml:"listen"`
	Cache    CacheConfig `yaml:"cache"`
	Log      LogConfig   `yaml:"log"`

	// Logger overrides the logger built from Log.
	Logger *logrus.Logger `yaml:"-"`
}

type CacheConfig struct {
	// Backend is "badger" or "memory".
	Backend string `yaml:"backend"`
	// Paths holds the badger directories. Only Paths[0] is used.
	Paths         []string      `yaml:"paths"`
	MinimumFreeGB uint          `yaml:"minimumFreeGB"`
	TTL           time.Duration `yaml:"ttl"`
	// Size bounds the memory backend.
	Size int `yaml:"size"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig reads a YAML config file. GEOHIVE_DATABASE and GEOHIVE_LISTEN
// override the file.
func LoadConfig(path string) (Config, error) {
	var conf Config
	if err := config.Load(path, &conf); err != nil {
		return Config{}, err
	}
	config.Env("GEOHIVE_DATABASE", &conf.Database)
	config.Env("GEOHIVE_LISTEN", &conf.Listen)
	return conf, nil
}

func (c *Config) applyDefaults() {
	if c.Database == "" {
		c.Database = "geohive.db"
	}
	if c.Listen == "" {
		c.Listen = ":8000"
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost" + c.Listen
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = CacheBadger
	}
	if c.Cache.Backend == CacheBadger && len(c.Cache.Paths) == 0 {
		c.Cache.Paths = []string{"cache"}
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 24 * time.Hour
	}
	if c.Cache.Size == 0 {
		c.Cache.Size = 100_000
	}
}

func (c Config) validate() error {
	switch c.Cache.Backend {
	case CacheBadger, CacheMemory:
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache ttl must not be negative")
	}
	return nil
}
