package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/ristretto"
)

// BadgerStorage implements Storage interface using BadgerDB
type BadgerStorage struct {
	db    *badger.DB
	cache *ristretto.Cache

	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
}

var _ Storage = (*BadgerStorage)(nil)

// NewBadgerStorage opens a BadgerDB storage in dataDir. An empty dataDir
// keeps everything in memory.
func NewBadgerStorage(dataDir string) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(dataDir).
		WithLogger(nil).
		WithLoggingLevel(badger.ERROR)
	if dataDir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	// Small in-memory cache in front of hot reads
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     8 << 20,
		BufferItems: 64,
	})
	if err != nil {
		// If cache fails to init, continue without cache
		rc = nil
	}

	s := &BadgerStorage{db: db, cache: rc, stop: make(chan struct{})}
	if dataDir != "" {
		go s.runGC()
	}
	return s, nil
}

// runGC runs the garbage collector periodically
func (s *BadgerStorage) runGC() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			_ = s.db.RunValueLogGC(0.7)
		}
	}
}

// view runs fn unless the store is closed.
func (s *BadgerStorage) view(fn func() error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return fn()
}

// Set stores a key-value pair with optional TTL
func (s *BadgerStorage) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.view(func() error {
		err := s.db.Update(func(txn *badger.Txn) error {
			entry := badger.NewEntry([]byte(key), value)
			if ttl > 0 {
				entry = entry.WithTTL(ttl)
			}
			return txn.SetEntry(entry)
		})
		if err != nil {
			return err
		}
		if s.cache != nil {
			// store a copy to avoid aliasing
			v := append([]byte{}, value...)
			if ttl > 0 {
				s.cache.SetWithTTL(key, v, int64(len(v)), ttl)
			} else {
				s.cache.Set(key, v, int64(len(v)))
			}
		}
		return nil
	})
}

// Get retrieves a value by key
func (s *BadgerStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value []byte
		found bool
	)
	err := s.view(func() error {
		if s.cache != nil {
			if v, ok := s.cache.Get(key); ok {
				if b, ok := v.([]byte); ok {
					value, found = append([]byte{}, b...), true
					return nil
				}
			}
		}
		err := s.db.View(func(txn *badger.Txn) error {
			item, err := txn.Get([]byte(key))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			found = true
			return item.Value(func(val []byte) error {
				value = append([]byte{}, val...)
				return nil
			})
		})
		if err != nil {
			return err
		}
		if found && s.cache != nil {
			s.cache.Set(key, append([]byte{}, value...), int64(len(value)))
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, found, nil
}

// Delete removes one or more keys
func (s *BadgerStorage) Delete(ctx context.Context, keys ...string) (int, error) {
	deleted := 0
	err := s.view(func() error {
		return s.db.Update(func(txn *badger.Txn) error {
			for _, key := range keys {
				if s.cache != nil {
					s.cache.Del(key)
				}
				_, err := txn.Get([]byte(key))
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				if err := txn.Delete([]byte(key)); err != nil {
					return err
				}
				deleted++
			}
			return nil
		})
	})
	return deleted, err
}

// Keys returns keys matching a pattern
func (s *BadgerStorage) Keys(ctx context.Context, pattern string, limit int) ([]string, error) {
	var keys []string
	err := s.view(func() error {
		return s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			it := txn.NewIterator(opts)
			defer it.Close()

			prefix := ""
			if !strings.HasPrefix(pattern, "*") {
				prefix, _, _ = strings.Cut(pattern, "*")
			}
			for it.Seek([]byte(prefix)); it.Valid(); it.Next() {
				if limit > 0 && len(keys) >= limit {
					break
				}
				key := string(it.Item().Key())
				if !strings.HasPrefix(key, prefix) {
					break
				}
				if matchesPattern(key, pattern) {
					keys = append(keys, key)
				}
			}
			return nil
		})
	})
	return keys, err
}

// Close closes the database. Later calls return ErrClosed.
func (s *BadgerStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	close(s.stop)
	if s.cache != nil {
		s.cache.Close()
	}
	return s.db.Close()
}
