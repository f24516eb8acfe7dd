// Package cache implements cache-aside reads over Redis with an in-process
// first tier.
//
// Lookups go L1 (go-cache, short TTL) then L2 (Redis). Writes go to both.
// Invalidations delete from Redis and are broadcast on a pub/sub channel so
// every process drops its L1 copy. A namespace can be dropped wholesale by
// bumping its generation counter, which is embedded in every key built with
// Key.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// InvalidateChannel carries JSON arrays of keys to evict from L1.
const InvalidateChannel = "cache:invalidate"

const (
	DefaultTTL      = time.Hour
	DefaultLocalTTL = 30 * time.Second
)

// Observer receives one call per lookup with result hit, miss or error.
type Observer interface {
	CacheLookup(namespace, result string)
}

type Options struct {
	// LocalTTL bounds how stale an L1 entry can be when a broadcast is lost.
	// Zero uses DefaultLocalTTL; negative disables L1.
	LocalTTL time.Duration
	Observer Observer
}

type Cache struct {
	rdb      redis.UniversalClient
	local    *gocache.Cache
	localTTL time.Duration
	obs      Observer
	logger   zerolog.Logger
}

func New(rdb redis.UniversalClient, logger zerolog.Logger, opts Options) *Cache {
	c := &Cache{
		rdb:      rdb,
		localTTL: opts.LocalTTL,
		obs:      opts.Observer,
		logger:   logger.With().Str("component", "cache").Logger(),
	}
	if c.localTTL == 0 {
		c.localTTL = DefaultLocalTTL
	}
	if c.localTTL > 0 {
		c.local = gocache.New(c.localTTL, 2*c.localTTL)
	}
	return c
}

func (c *Cache) observe(key, result string) {
	if c.obs == nil {
		return
	}
	ns, _, _ := strings.Cut(key, ":")
	c.obs.CacheLookup(ns, result)
}

// Get returns the cached bytes for key. Redis failures count as a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.local != nil {
		if v, ok := c.local.Get(key); ok {
			c.observe(key, "hit")
			return v.([]byte), true
		}
	}

	b, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		c.observe(key, "miss")
		return nil, false
	case err != nil:
		c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		c.observe(key, "error")
		return nil, false
	}

	if c.local != nil {
		c.local.Set(key, b, c.localTTL)
	}
	c.observe(key, "hit")
	return b, true
}

// Set stores value in both tiers. Failures are logged and otherwise ignored.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if c.local != nil {
		local := c.localTTL
		if ttl < local {
			local = ttl
		}
		c.local.Set(key, value, local)
	}
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// Invalidate removes keys from Redis and tells every process to evict them.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	c.evictLocal(keys)
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn().Err(err).Strs("keys", keys).Msg("cache invalidate failed")
	}
	c.broadcast(ctx, keys)
}

func genKey(ns string) string { return ns + ":gen" }

// Key builds "{ns}:{id}", inserting the namespace generation once it has
// been bumped: "{ns}:g{n}:{id}".
func (c *Cache) Key(ctx context.Context, ns, id string) string {
	gen := c.generation(ctx, ns)
	if gen == 0 {
		return ns + ":" + id
	}
	return fmt.Sprintf("%s:g%d:%s", ns, gen, id)
}

func (c *Cache) generation(ctx context.Context, ns string) int64 {
	k := genKey(ns)
	if c.local != nil {
		if v, ok := c.local.Get(k); ok {
			return v.(int64)
		}
	}
	gen, err := c.rdb.Get(ctx, k).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn().Err(err).Str("namespace", ns).Msg("read cache generation")
		return 0
	}
	if c.local != nil {
		c.local.Set(k, gen, c.localTTL)
	}
	return gen
}

// InvalidateNamespace drops every key built by Key for ns.
func (c *Cache) InvalidateNamespace(ctx context.Context, ns string) {
	k := genKey(ns)
	if err := c.rdb.Incr(ctx, k).Err(); err != nil {
		c.logger.Warn().Err(err).Str("namespace", ns).Msg("bump cache generation")
	}
	c.evictLocal([]string{k})
	c.broadcast(ctx, []string{k})
}

func (c *Cache) evictLocal(keys []string) {
	if c.local == nil {
		return
	}
	for _, k := range keys {
		c.local.Delete(k)
	}
}

func (c *Cache) broadcast(ctx context.Context, keys []string) {
	if c.local == nil {
		return
	}
	payload, _ := json.Marshal(keys)
	if err := c.rdb.Publish(ctx, InvalidateChannel, payload).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("publish cache invalidation")
	}
}

// Run evicts L1 entries announced by other processes until ctx is done.
func (c *Cache) Run(ctx context.Context) error {
	if c.local == nil {
		<-ctx.Done()
		return nil
	}
	sub := c.rdb.Subscribe(ctx, InvalidateChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", InvalidateChannel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var keys []string
			if err := json.Unmarshal([]byte(msg.Payload), &keys); err != nil {
				c.logger.Warn().Err(err).Msg("bad invalidation payload")
				continue
			}
			c.evictLocal(keys)
		}
	}
}

// GetOrLoad is the read-through routine: a hit decodes the cached value, a
// miss calls fetch and caches its result for ttl. fetch errors are returned
// as-is and nothing is cached. A nil cache always fetches.
func GetOrLoad[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	if c == nil {
		return fetch(ctx)
	}
	if b, ok := c.Get(ctx, key); ok {
		var v T
		if err := json.Unmarshal(b, &v); err == nil {
			return v, nil
		}
		c.logger.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	}

	v, err := fetch(ctx)
	if err != nil {
		return v, err
	}
	b, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("encode cache entry")
		return v, nil
	}
	c.Set(ctx, key, b, ttl)
	return v, nil
}
