// Package storage persists small pieces of watcher state: layout positions
// and the last DRBD configuration seen per host.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrClosed is returned by every operation on a closed store.
var ErrClosed = errors.New("storage: closed")

// Storage defines the interface for the storage backend
type Storage interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) (int, error)
	// Keys returns up to limit keys matching pattern. A single trailing or
	// leading "*" is a wildcard; limit <= 0 means no limit.
	Keys(ctx context.Context, pattern string, limit int) ([]string, error)
	Close() error
}

// matchesPattern checks if a key matches a pattern (simple * wildcard support)
func matchesPattern(key, pattern string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return key == pattern
	}
	parts := strings.SplitN(pattern, "*", 2)
	return strings.HasPrefix(key, parts[0]) && strings.HasSuffix(key, strings.ReplaceAll(parts[1], "*", ""))
}
