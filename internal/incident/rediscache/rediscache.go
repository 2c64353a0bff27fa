// Package rediscache wraps an incident.Store with a read-through Redis cache
// for incident detail. Incidents are immutable once created, so cached
// entries only expire by TTL.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/waypoint/internal/incident"
)

const keyPrefix = "waypoint:incident:"

// Store caches Get results of the wrapped store. Create and List pass through.
type Store struct {
	incident.Store
	rdb    redis.Cmdable
	ttl    time.Duration
	logger log.Logger
}

// Open parses a redis:// URL and returns a connected client.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// New wraps inner with a cache on rdb.
func New(inner incident.Store, rdb redis.Cmdable, ttl time.Duration, logger log.Logger) *Store {
	if logger == nil {
		logger = log.Nop()
	}
	return &Store{Store: inner, rdb: rdb, ttl: ttl, logger: logger}
}

// Get serves from Redis when possible and fills the cache on a miss. Redis
// failures degrade to the wrapped store.
func (s *Store) Get(ctx context.Context, id string) (*incident.Detail, bool, error) {
	key := keyPrefix + id

	raw, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var d incident.Detail
		if err := json.Unmarshal(raw, &d); err == nil {
			return &d, true, nil
		}
		s.logger.Warn(ctx, "discarding undecodable cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		s.logger.Warn(ctx, "redis get failed", "key", key, "err", err.Error())
	}

	d, ok, err := s.Store.Get(ctx, id)
	if err != nil || !ok {
		return d, ok, err
	}

	if b, err := json.Marshal(d); err == nil {
		if err := s.rdb.Set(ctx, key, b, s.ttl).Err(); err != nil {
			s.logger.Warn(ctx, "redis set failed", "key", key, "err", err.Error())
		}
	}
	return d, true, nil
}
