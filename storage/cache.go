package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// Cache wraps a RecordStore with a Redis read-through cache for collection
// listings. Any write to a collection evicts all of its cached listings.
// Single record reads always go to the backing store. A listing read from the
// store is only cached when no write evicted the collection while it was in
// flight.
type Cache struct {
	base  RecordStore
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching RecordStore using the provided Redis client and TTL.
func NewCache(base RecordStore, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) Fetch(ctx context.Context, collection string, q Query) (Response, error) {
	if records, ok := c.load(ctx, collection, q); ok {
		return Response{Success: true, Records: records}, nil
	}

	gen, cacheable := c.generation(ctx, collection)
	resp, err := c.base.Fetch(ctx, collection, q)
	if err != nil {
		return Response{}, err
	}
	if resp.Success && cacheable {
		c.store(ctx, collection, q, resp.Records, gen)
	}
	return resp, nil
}

func (c *Cache) FetchByID(ctx context.Context, collection, id string, fields []string) (Response, error) {
	return c.base.FetchByID(ctx, collection, id, fields)
}

func (c *Cache) Create(ctx context.Context, collection string, records []Record) (Response, error) {
	defer c.evict(ctx, collection)
	return c.base.Create(ctx, collection, records)
}

func (c *Cache) Update(ctx context.Context, collection string, records []Record) (Response, error) {
	defer c.evict(ctx, collection)
	return c.base.Update(ctx, collection, records)
}

func (c *Cache) Delete(ctx context.Context, collection string, ids []string) (Response, error) {
	defer c.evict(ctx, collection)
	return c.base.Delete(ctx, collection, ids)
}

func (c *Cache) load(ctx context.Context, collection string, q Query) ([]Record, bool) {
	if c.redis == nil {
		return nil, false
	}
	key := recordsCacheKey(collection)
	data, err := c.redis.HGet(ctx, key, q.key()).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing store without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return nil, false
	}
	var records []Record
	if err := sonic.Unmarshal(data, &records); err != nil {
		_ = c.redis.HDel(ctx, key, q.key()).Err()
		return nil, false
	}
	if records == nil {
		records = []Record{}
	}
	return records, true
}

// generation returns the eviction counter of a collection. The second result
// is false when Redis cannot be read.
func (c *Cache) generation(ctx context.Context, collection string) (int64, bool) {
	if c.redis == nil || c.ttl == 0 {
		return 0, false
	}
	n, err := c.redis.Get(ctx, generationKey(collection)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, false
	}
	return n, true
}

// store caches records read at generation gen. It gives up when the
// collection was evicted since.
func (c *Cache) store(ctx context.Context, collection string, q Query, records []Record, gen int64) {
	data, err := sonic.Marshal(records)
	if err != nil {
		return
	}
	key := recordsCacheKey(collection)
	genKey := generationKey(collection)
	_ = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, q.key(), data)
			pipe.Expire(ctx, key, c.ttl)
			return nil
		})
		return err
	}, genKey)
}

// evict runs even when the write failed: a partial batch may still have
// changed the collection.
func (c *Cache) evict(ctx context.Context, collection string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, recordsCacheKey(collection))
		pipe.Incr(ctx, generationKey(collection))
		return nil
	})
}

func recordsCacheKey(collection string) string {
	return "records:" + collection
}

func generationKey(collection string) string {
	return "records:" + collection + ":gen"
}
