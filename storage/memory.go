package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryKV provides an in-memory KV store with TTL.
type MemoryKV struct {
	mu     sync.RWMutex
	data   map[string]memEntry
	stop   chan struct{}
	closed bool
}

type memEntry struct {
	val       []byte
	expiresAt time.Time // zero means no expiry
}

var _ Storage = (*MemoryKV)(nil)

func NewMemoryKV() *MemoryKV {
	m := &MemoryKV{data: make(map[string]memEntry), stop: make(chan struct{})}
	go m.janitor()
	return m
}

func (m *MemoryKV) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.closed = true
	close(m.stop)
	return nil
}

func (m *MemoryKV) janitor() {
	t := time.NewTicker(1 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-t.C:
			now := time.Now()
			m.mu.Lock()
			for k, e := range m.data {
				if e.expired(now) {
					delete(m.data, k)
				}
			}
			m.mu.Unlock()
		}
	}
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

func (m *MemoryKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	m.data[key] = memEntry{val: append([]byte(nil), value...), expiresAt: exp}
	return nil
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	e, ok := m.data[key]
	if !ok || e.expired(time.Now()) {
		return nil, false, nil
	}
	return append([]byte(nil), e.val...), true, nil
}

func (m *MemoryKV) Delete(_ context.Context, keys ...string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	cnt := 0
	for _, k := range keys {
		if _, ok := m.data[k]; ok {
			delete(m.data, k)
			cnt++
		}
	}
	return cnt, nil
}

// Keys returns matching keys in sorted order, like the badger iterator.
func (m *MemoryKV) Keys(_ context.Context, pattern string, limit int) ([]string, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrClosed
	}
	now := time.Now()
	var res []string
	for k, e := range m.data {
		if !e.expired(now) && matchesPattern(k, pattern) {
			res = append(res, k)
		}
	}
	m.mu.RUnlock()

	sort.Strings(res)
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}
