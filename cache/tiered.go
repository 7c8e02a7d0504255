package cache

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	// l2ReadTimeout bounds how long a cache miss may wait on the networked
	// tier before the caller proceeds to the source of truth.
	l2ReadTimeout = 50 * time.Millisecond

	l2WriteTimeout = 100 * time.Millisecond

	// scanBatch is the COUNT hint and DEL batch size during invalidation.
	scanBatch = 128
)

type l1Entry struct {
	payload   []byte
	expiresAt int64
	hits      atomic.Uint64
}

// TieredCache layers an in-process LRU over an optional networked store.
// Reads check L1 first and fall through to L2 under a hard deadline; writes
// go through to both tiers. Every storage failure is logged and treated as
// a miss, never returned to the caller.
type TieredCache struct {
	l1  *lru.Cache[string, *l1Entry]
	l2  redis.UniversalClient
	ttl time.Duration
	log *logrus.Logger
	sf  singleflight.Group
	now func() time.Time
}

// NewTiered builds the cache. client may be nil, in which case only the
// in-process tier operates.
func NewTiered(client redis.UniversalClient, l1Capacity int, defaultTTL time.Duration, log *logrus.Logger) (*TieredCache, error) {
	if l1Capacity <= 0 {
		l1Capacity = 1000
	}
	l1, err := lru.New[string, *l1Entry](l1Capacity)
	if err != nil {
		return nil, err
	}
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Minute
	}
	return &TieredCache{
		l1:  l1,
		l2:  client,
		ttl: defaultTTL,
		log: log,
		now: time.Now,
	}, nil
}

// Get returns the cached payload for (namespace, params), or ok=false on a
// miss. An L2 hit backfills L1. The returned bytes are shared; callers must
// not modify them.
func (c *TieredCache) Get(ctx context.Context, namespace string, params map[string]any) ([]byte, bool) {
	key := Key(namespace, params)

	if ent, ok := c.l1.Get(key); ok {
		if ent.expiresAt > 0 && c.now().UnixMilli() >= ent.expiresAt {
			c.l1.Remove(key)
		} else {
			ent.hits.Add(1)
			return ent.payload, true
		}
	}

	if c.l2 == nil {
		return nil, false
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		if env := c.fetchL2(ctx, key); env != nil {
			return env, nil
		}
		return nil, nil
	})
	if err != nil || v == nil {
		return nil, false
	}
	env := v.(*envelope)

	ent := &l1Entry{payload: env.Payload, expiresAt: env.ExpiresAt}
	ent.hits.Store(env.Hits + 1)
	c.l1.Add(key, ent)
	return env.Payload, true
}

// fetchL2 reads and decodes one key from the networked tier. Any failure is
// reported as a miss.
func (c *TieredCache) fetchL2(ctx context.Context, key string) *envelope {
	rctx, cancel := context.WithTimeout(ctx, l2ReadTimeout)
	defer cancel()

	raw, err := c.l2.Get(rctx, key).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache read failed, treating as miss")
		return nil
	}
	env, err := decodeEntry(raw)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache entry corrupt, treating as miss")
		return nil
	}
	if env.expired(c.now()) {
		return nil
	}
	return env
}

// Set stores payload in both tiers. A ttl of zero or less uses the cache
// default. The payload must be a valid JSON document.
func (c *TieredCache) Set(ctx context.Context, namespace string, params map[string]any, payload []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	key := Key(namespace, params)
	expiresAt := c.now().Add(ttl)

	c.l1.Add(key, &l1Entry{payload: payload, expiresAt: expiresAt.UnixMilli()})

	if c.l2 == nil {
		return
	}
	framed, err := encodeEntry(payload, expiresAt, 0)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("failed to encode cache entry, skipping write-through")
		return
	}
	wctx, cancel := context.WithTimeout(ctx, l2WriteTimeout)
	defer cancel()
	if err := c.l2.Set(wctx, key, framed, ttl).Err(); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache write-through failed")
	}
}

// Delete drops one entry from both tiers.
func (c *TieredCache) Delete(ctx context.Context, namespace string, params map[string]any) {
	key := Key(namespace, params)
	c.l1.Remove(key)
	if c.l2 == nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, l2WriteTimeout)
	defer cancel()
	if err := c.l2.Del(wctx, key).Err(); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache delete failed")
	}
}

// InvalidateNamespace removes every entry under namespace from both tiers
// and returns how many keys the networked tier dropped.
func (c *TieredCache) InvalidateNamespace(ctx context.Context, namespace string) int {
	return c.InvalidatePrefix(ctx, namespace+":")
}

// InvalidatePrefix removes every key starting with prefix. The networked
// tier is walked with SCAN so invalidation never blocks the store.
func (c *TieredCache) InvalidatePrefix(ctx context.Context, prefix string) int {
	for _, key := range c.l1.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.l1.Remove(key)
		}
	}

	if c.l2 == nil {
		return 0
	}

	removed := 0
	var cursor uint64
	for {
		keys, next, err := c.l2.Scan(ctx, cursor, prefix+"*", scanBatch).Result()
		if err != nil {
			c.log.WithError(err).WithField("prefix", prefix).Warn("cache invalidation scan failed")
			return removed
		}
		if len(keys) > 0 {
			n, err := c.l2.Del(ctx, keys...).Result()
			if err != nil {
				c.log.WithError(err).WithField("prefix", prefix).Warn("cache invalidation delete failed")
				return removed
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			return removed
		}
	}
}

// Hits reports the in-process hit counter for one entry, for introspection
// in tests and debug output.
func (c *TieredCache) Hits(namespace string, params map[string]any) uint64 {
	if ent, ok := c.l1.Peek(Key(namespace, params)); ok {
		return ent.hits.Load()
	}
	return 0
}
