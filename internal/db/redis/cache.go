package redis

import (
	"context"
	"time"

	"github.com/redis/rueidis"

	"github.com/retreivo/itemmatch/internal/db"
)

// Fetch reads key and pushes its expiry out to ttl in one round trip, so descriptors of images
// that keep being queried stay cached. A non-positive ttl leaves the expiry untouched.
func (s *Store) Fetch(ctx context.Context, key string, ttl time.Duration) ([]byte, error) {
	get := s.client.B().Get().Key(key).Build()
	if ttl <= 0 {
		return s.get(s.client.Do(ctx, get), key)
	}

	expire := s.client.B().Expire().Key(key).Seconds(ttlSeconds(ttl)).Build()
	res := s.client.DoMulti(ctx, get, expire)
	// A failed refresh still leaves a valid value, so res[1] is not checked.
	return s.get(res[0], key)
}

func (s *Store) get(res rueidis.RedisResult, key string) ([]byte, error) {
	data, err := res.AsBytes()
	switch {
	case rueidis.IsRedisNil(err):
		return nil, db.ErrKeyNotFound
	case err != nil:
		return nil, &db.Error{Op: db.OpGet, Key: key, Err: err}
	}
	return data, nil
}

// Put stores value at key. A non-positive ttl stores without expiry.
func (s *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	set := s.client.B().Set().Key(key).Value(rueidis.BinaryString(value))
	var cmd rueidis.Completed
	if ttl > 0 {
		cmd = set.Ex(ttl).Build()
	} else {
		cmd = set.Build()
	}
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpSet, Key: key, Err: err}
	}
	return nil
}

// ttlSeconds rounds ttl up to whole seconds.
func ttlSeconds(ttl time.Duration) int64 {
	return int64((ttl + time.Second - 1) / time.Second)
}
