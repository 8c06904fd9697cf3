package keyValStore

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// ErrKeyNotFound is returned by Read for absent or expired keys.
var ErrKeyNotFound = badger.ErrKeyNotFound

type StoreConfig struct {
	Paths            []string // absolute path at the moment only first path is supported
	MinimumFreeSpace int      // in GB
	InMemory         bool     // keep everything in RAM, Paths is ignored
	Logger           *logrus.Logger
}

type KeyValStore struct {
	config       StoreConfig
	log          *logrus.Logger
	badgerDB     *badger.DB
	readCounter  uint64
	writeCounter uint64
}

func NewKeyValStore(config StoreConfig) (*KeyValStore, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	log := config.Logger

	opts := badger.DefaultOptions("").WithInMemory(true)
	dir := ""
	if !config.InMemory {
		var err error
		if dir, err = config.dir(); err != nil {
			return nil, err
		}
		// Value log files are capped at 100MB.
		opts = badger.DefaultOptions(dir).WithValueLogFileSize(100 << 20)
	}
	opts = opts.WithLogger(nil).WithSyncWrites(false)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	if dir != "" {
		logDiskUsage(log, dir)
	}

	return &KeyValStore{
		config:   config,
		log:      log,
		badgerDB: db,
	}, nil
}

// Write stores content under key. A ttl of zero keeps the entry until it is
// deleted.
func (k *KeyValStore) Write(key []byte, content []byte, ttl time.Duration) error {
	atomic.AddUint64(&k.writeCounter, 1)

	return k.badgerDB.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(key, content)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

func (k *KeyValStore) Read(key []byte) ([]byte, error) {
	atomic.AddUint64(&k.readCounter, 1)
	var value []byte
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("error reading key %s: %w", key, err)
	}
	return value, nil
}

// ReadBatch looks up all keys inside one read transaction. Absent keys are
// missing from the result.
func (k *KeyValStore) ReadBatch(keys [][]byte) (map[string][]byte, error) {
	found := make(map[string][]byte, len(keys))

	err := k.badgerDB.View(func(txn *badger.Txn) error {
		for _, key := range keys {
			atomic.AddUint64(&k.readCounter, 1)
			item, err := txn.Get(key)
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err // return an error for issues other than "key not found"
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			found[string(key)] = value
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error reading batch: %w", err)
	}
	return found, nil
}

func (k *KeyValStore) Delete(keys ...[]byte) error {
	wb := k.badgerDB.NewWriteBatch()
	defer wb.Cancel()

	for _, key := range keys {
		atomic.AddUint64(&k.writeCounter, 1)
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("error deleting key %s: %w", key, err)
		}
	}
	return wb.Flush()
}

// DropPrefix removes every key starting with prefix.
func (k *KeyValStore) DropPrefix(prefix []byte) error {
	return k.badgerDB.DropPrefix(prefix)
}

// Counters returns the number of key reads and writes since start.
func (k *KeyValStore) Counters() (reads, writes uint64) {
	return atomic.LoadUint64(&k.readCounter), atomic.LoadUint64(&k.writeCounter)
}

func (k *KeyValStore) Close() error {
	if err := k.Clean(); err != nil {
		k.log.WithError(err).Warn("KeyValStore clean before close failed")
	}
	return k.badgerDB.Close()
}

func (k *KeyValStore) Clean() error {
	if k.config.InMemory {
		return nil
	}

	err := k.badgerDB.Sync()
	if err != nil {
		return fmt.Errorf("error syncing db: %w", err)
	}

	err = k.badgerDB.RunValueLogGC(0.5)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return fmt.Errorf("error cleaning db: %w", err)
	}

	return nil
}
