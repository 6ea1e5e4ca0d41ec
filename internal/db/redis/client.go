// Package redis implements the descriptor cache on Redis through rueidis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/rueidis"

	"github.com/retreivo/itemmatch/internal/db"
)

var _ db.Cache = (*Store)(nil)

const (
	defaultClientName  = "itemmatch"
	defaultDialTimeout = 5 * time.Second

	readyMinBackoff = 50 * time.Millisecond
	readyMaxBackoff = time.Second
)

// Config holds connection parameters.
type Config struct {
	Addrs       []string
	Username    string
	Password    string
	DB          int
	ClientName  string
	DialTimeout time.Duration
}

// Store is a rueidis-backed db.Cache.
type Store struct {
	client rueidis.Client
}

// NewStore connects to Redis. Client-side caching is off: descriptor payloads are read once
// per extraction and do not benefit from it.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("redis: at least one address is required")
	}
	name := cfg.ClientName
	if name == "" {
		name = defaultClientName
	}
	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = defaultDialTimeout
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		ClientName:   name,
		Dialer:       net.Dialer{Timeout: dial},
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("redis: connect %v: %w", cfg.Addrs, err)
	}
	return &Store{client: client}, nil
}

// NewStoreForTest wraps an existing client, typically a rueidis mock.
func NewStoreForTest(c rueidis.Client) *Store {
	return &Store{client: c}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// WaitForReady pings until Redis answers, backing off between attempts, or until timeout.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	backoff := readyMinBackoff
	for {
		err := s.Ping(ctx)
		if err == nil {
			return nil
		}

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("redis not ready after %s: %w", timeout, err)
		case <-t.C:
		}
		backoff = min(2*backoff, readyMaxBackoff)
	}
}
