package kv

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Safe applies the degrade-don't-fail policy: every Redis error is logged at
// warn and replaced by the caller's default. Reads that must distinguish a
// miss from an outage use Get.
type Safe struct {
	rdb    redis.Cmdable
	logger zerolog.Logger
}

func NewSafe(rdb redis.Cmdable, logger zerolog.Logger) *Safe {
	return &Safe{rdb: rdb, logger: logger.With().Str("component", "kv").Logger()}
}

// Client exposes the underlying client for multi-command work.
func (s *Safe) Client() redis.Cmdable { return s.rdb }

func (s *Safe) warn(err error, op, key string) {
	s.logger.Warn().Err(err).Str("op", op).Str("key", key).Msg("redis unavailable, using default")
}

// Get returns ErrMiss for absent keys and the raw error otherwise.
func (s *Safe) Get(ctx context.Context, key string) (string, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return val, err
}

func (s *Safe) GetString(ctx context.Context, key, def string) string {
	val, err := s.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			s.warn(err, "get", key)
		}
		return def
	}
	return val
}

// GetJSON decodes key into dest and reports whether a value was found.
func (s *Safe) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	val, err := s.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			s.warn(err, "get", key)
		}
		return false
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("discarding undecodable value")
		return false
	}
	return true
}

func (s *Safe) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) bool {
	b, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("encode value")
		return false
	}
	if err := s.rdb.Set(ctx, key, b, ttl).Err(); err != nil {
		s.warn(err, "set", key)
		return false
	}
	return true
}

func (s *Safe) SetString(ctx context.Context, key, val string, ttl time.Duration) bool {
	if err := s.rdb.Set(ctx, key, val, ttl).Err(); err != nil {
		s.warn(err, "set", key)
		return false
	}
	return true
}

func (s *Safe) Del(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		s.warn(err, "del", keys[0])
	}
}

func (s *Safe) Incr(ctx context.Context, key string, def int64) int64 {
	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		s.warn(err, "incr", key)
		return def
	}
	return n
}

// GetInt64 returns def for absent keys as well as on errors.
func (s *Safe) GetInt64(ctx context.Context, key string, def int64) int64 {
	n, err := s.rdb.Get(ctx, key).Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.warn(err, "get", key)
		}
		return def
	}
	return n
}

// ScanKeys walks the keyspace with SCAN rather than KEYS.
func (s *Safe) ScanKeys(ctx context.Context, pattern string) []string {
	var keys []string
	var cursor uint64
	for {
		k, next, err := s.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			s.warn(err, "scan", pattern)
			return keys
		}
		keys = append(keys, k...)
		cursor = next
		if cursor == 0 {
			return keys
		}
	}
}
