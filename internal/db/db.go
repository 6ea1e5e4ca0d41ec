// Package db defines the key-value contract behind the descriptor cache.
package db

import (
	"context"
	"time"
)

// Cache is a byte-value store where every entry expires.
type Cache interface {
	Ping(ctx context.Context) error
	// Fetch returns the value at key and restarts its expiry at ttl.
	Fetch(ctx context.Context, key string, ttl time.Duration) ([]byte, error)
	// Put stores value at key for ttl.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	WaitForReady(ctx context.Context, timeout time.Duration) error
	Close()
}
