package elements

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"mapdna/internal/events"
	"mapdna/platform/logger"
)

const cacheKeyPrefix = "mapdna:element:"

// CachedSource decorates a Source with a Redis read-through cache. Cache
// failures are logged and fall through to the wrapped source.
type CachedSource struct {
	next Source
	rdb  *redis.Client
	ttl  time.Duration
	log  *logger.Logger
}

// NewCachedSource wraps next with a cache that keeps elements for ttl.
func NewCachedSource(next Source, rdb *redis.Client, ttl time.Duration, log *logger.Logger) *CachedSource {
	return &CachedSource{next: next, rdb: rdb, ttl: ttl, log: log}
}

var _ Source = (*CachedSource)(nil)

func cacheKey(id int64) string {
	return cacheKeyPrefix + strconv.FormatInt(id, 10)
}

// GetElement implements Source.
func (c *CachedSource) GetElement(ctx context.Context, id int64) (*Element, error) {
	if e, ok := c.lookup(ctx, id); ok {
		return e, nil
	}
	e, err := c.next.GetElement(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, e)
	return e, nil
}

// GetElements implements Source. Hits are served from the cache; misses are
// loaded from the wrapped source in one call.
func (c *CachedSource) GetElements(ctx context.Context, ids []int64) ([]*Element, error) {
	found := make(map[int64]*Element, len(ids))
	var missing []int64

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cacheKey(id)
	}

	if len(keys) > 0 {
		vals, err := c.rdb.MGet(ctx, keys...).Result()
		if err != nil {
			c.log.CacheError("mget", cacheKeyPrefix+"*", err)
			vals = make([]interface{}, len(ids))
		}
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				missing = append(missing, ids[i])
				continue
			}
			var e Element
			if err := json.Unmarshal([]byte(s), &e); err != nil {
				c.log.CacheError("decode", keys[i], err)
				missing = append(missing, ids[i])
				continue
			}
			found[ids[i]] = &e
		}
	}

	if len(missing) > 0 {
		loaded, err := c.next.GetElements(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, e := range loaded {
			found[e.ID] = e
			c.store(ctx, e)
		}
	}

	out := make([]*Element, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if e, ok := found[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// Invalidate drops cached elements, e.g. after the CMS saved them.
func (c *CachedSource) Invalidate(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cacheKey(id)
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// HandleElementsChanged invalidates the elements named by an
// events.ElementsChanged event.
func (c *CachedSource) HandleElementsChanged(ctx context.Context, event events.Event) error {
	changed, ok := event.(events.ElementsChanged)
	if !ok {
		return nil
	}
	if err := c.Invalidate(ctx, changed.IDs...); err != nil {
		c.log.CacheError("invalidate", fmt.Sprint(changed.IDs), err)
		return err
	}
	return nil
}

func (c *CachedSource) lookup(ctx context.Context, id int64) (*Element, bool) {
	key := cacheKey(id)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.CacheError("get", key, err)
		}
		return nil, false
	}
	var e Element
	if err := json.Unmarshal(raw, &e); err != nil {
		c.log.CacheError("decode", key, err)
		return nil, false
	}
	return &e, true
}

func (c *CachedSource) store(ctx context.Context, e *Element) {
	if e == nil {
		return
	}
	key := cacheKey(e.ID)
	payload, err := json.Marshal(e)
	if err != nil {
		c.log.CacheError("encode", key, err)
		return
	}
	if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.log.CacheError("set", key, err)
	}
}
