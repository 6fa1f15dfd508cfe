package embedding

import (
	"container/list"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/osintlab/trendwatch/pkg/metrics"
	"github.com/osintlab/trendwatch/pkg/models"
)

// cacheEntry pairs a vector with the lineage recorded when it was produced.
type cacheEntry struct {
	Vector  models.Vector           `json:"vector"`
	Lineage models.EmbeddingLineage `json:"lineage"`
}

// lruCache is a bounded in-process cache keyed by (model, content hash).
// Hand-rolled on container/list: the entries are small and the eviction
// policy needs nothing beyond move-to-front.
type lruCache struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List
	entries map[string]*list.Element
}

type lruItem struct {
	key   string
	entry cacheEntry
}

func newLRUCache(maxSize int) *lruCache {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &lruCache{
		maxSize: maxSize,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

func (c *lruCache) get(key string) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return cacheEntry{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*lruItem).entry, true
}

func (c *lruCache) put(key string, entry cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*lruItem).entry = entry
		c.order.MoveToFront(el)
		return
	}
	c.entries[key] = c.order.PushFront(&lruItem{key: key, entry: entry})
	for c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*lruItem).key)
	}
}

// remoteCache is the optional Redis tier behind the in-process LRU. Reads use
// a short timeout and writes are fire-and-forget: a slow or absent Redis
// never stalls the pipeline.
type remoteCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func newRemoteCache(addr string, ttl time.Duration) *remoteCache {
	if addr == "" {
		return nil
	}
	return &remoteCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
		logger: slog.With("component", "embedding_cache"),
	}
}

func (r *remoteCache) get(ctx context.Context, key string) (cacheEntry, bool) {
	ctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
	defer cancel()

	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return cacheEntry{}, false
	}
	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		r.logger.Warn("Discarding undecodable remote cache entry", "key", key, "error", err)
		return cacheEntry{}, false
	}
	return entry, true
}

func (r *remoteCache) put(key string, entry cacheEntry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.client.Set(ctx, key, raw, r.ttl).Err(); err != nil {
			r.logger.Debug("Remote cache write failed", "error", err)
		}
	}()
}

func recordCacheHit(tier string) {
	metrics.EmbeddingCacheHits.WithLabelValues(tier).Inc()
}
