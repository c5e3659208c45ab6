// Package cache is the Redis-backed advisory cache for embeddings, search
// responses, document metadata and aggregate stats. Every operation degrades
// to a miss or a no-op when the backend is unreachable; callers never see a
// cache error.
package cache

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"pdf-miner/internal/config"
)

// Key prefixes per cache category.
const (
	EmbeddingPrefix = "emb:"
	SearchPrefix    = "search:"
	DocumentPrefix  = "doc:"
	ModelPrefix     = "model:"
	StatsPrefix     = "stats:"
)

// Default TTLs per category.
const (
	DefaultTTL   = time.Hour
	EmbeddingTTL = 24 * time.Hour
	SearchTTL    = 30 * time.Minute
	DocumentTTL  = 2 * time.Hour
	StatsTTL     = 5 * time.Minute
)

// categoryPrefixes maps the public category names to key prefixes.
var categoryPrefixes = map[string]string{
	"embeddings": EmbeddingPrefix,
	"search":     SearchPrefix,
	"documents":  DocumentPrefix,
	"models":     ModelPrefix,
	"stats":      StatsPrefix,
}

type Cache struct {
	rdb *redis.Client
}

// New builds a cache around the configured Redis backend. A disabled config
// yields a cache whose every operation is a miss/no-op, which is the
// contract callers rely on anyway.
func New(cfg config.RedisConfig) *Cache {
	if !cfg.Enabled {
		return &Cache{}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		// keep the client: the backend may come back, and every op
		// degrades gracefully in the meantime
		log.Warn().Err(err).Str("addr", cfg.Addr).Msg("Redis unreachable, cache degraded to no-op")
	}
	return &Cache{rdb: rdb}
}

func (c *Cache) enabled() bool {
	return c != nil && c.rdb != nil
}

func (c *Cache) Close() {
	if c.enabled() {
		c.rdb.Close()
	}
}

// Get reads key into dest, reporting a hit. Decode failures count as misses.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) bool {
	if !c.enabled() {
		return false
	}
	payload, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Str("key", key).Msg("Cache get error")
		}
		return false
	}
	if err := decode(payload, dest); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Cache payload unreadable")
		return false
	}
	return true
}

// Set writes value under key in the binary envelope format.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) bool {
	return c.set(ctx, key, value, ttl, formatMsgpack)
}

// SetJSON writes value under key in the JSON envelope format.
func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) bool {
	return c.set(ctx, key, value, ttl, formatJSON)
}

func (c *Cache) set(ctx context.Context, key string, value interface{}, ttl time.Duration, format byte) bool {
	if !c.enabled() {
		return false
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	payload, err := encode(value, format)
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Cache encode error")
		return false
	}
	if err := c.rdb.Set(ctx, key, payload, ttl).Err(); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Cache set error")
		return false
	}
	return true
}

func (c *Cache) Delete(ctx context.Context, key string) bool {
	if !c.enabled() {
		return false
	}
	n, err := c.rdb.Del(ctx, key).Result()
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Cache delete error")
		return false
	}
	return n > 0
}

func (c *Cache) Exists(ctx context.Context, key string) bool {
	if !c.enabled() {
		return false
	}
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false
	}
	return n > 0
}

// Clear flushes one category, or the whole store when category is empty.
// It returns the number of keys removed.
func (c *Cache) Clear(ctx context.Context, category string) int {
	if !c.enabled() {
		return 0
	}
	if category == "" {
		size, _ := c.rdb.DBSize(ctx).Result()
		if err := c.rdb.FlushDB(ctx).Err(); err != nil {
			log.Debug().Err(err).Msg("Cache flush error")
			return 0
		}
		return int(size)
	}

	prefix, ok := categoryPrefixes[category]
	if !ok {
		log.Warn().Str("category", category).Msg("Unknown cache category")
		return 0
	}
	keys, err := c.rdb.Keys(ctx, prefix+"*").Result()
	if err != nil || len(keys) == 0 {
		return 0
	}
	n, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		log.Debug().Err(err).Str("category", category).Msg("Cache clear error")
		return 0
	}
	return int(n)
}

// Embedding cache, keyed by a content hash of the text.

func (c *Cache) GetEmbedding(ctx context.Context, textHash string) ([]float32, bool) {
	if !c.enabled() {
		return nil, false
	}
	key := EmbeddingPrefix + textHash
	payload, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var embedding []float32
	if err := decode(payload, &embedding); err != nil || len(embedding) == 0 {
		// corrupt entries are evicted, not surfaced
		c.Delete(ctx, key)
		return nil, false
	}
	return embedding, true
}

func (c *Cache) SetEmbedding(ctx context.Context, textHash string, embedding []float32) bool {
	return c.set(ctx, EmbeddingPrefix+textHash, embedding, EmbeddingTTL, formatMsgpack)
}

// GetEmbeddingsBatch fetches many embeddings in one pipeline round trip.
// The returned map contains only the hashes that hit.
func (c *Cache) GetEmbeddingsBatch(ctx context.Context, textHashes []string) map[string][]float32 {
	found := make(map[string][]float32, len(textHashes))
	if !c.enabled() || len(textHashes) == 0 {
		return found
	}

	pipe := c.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(textHashes))
	for i, h := range textHashes {
		cmds[i] = pipe.Get(ctx, EmbeddingPrefix+h)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		log.Debug().Err(err).Msg("Batch embedding get error")
		return found
	}

	for i, cmd := range cmds {
		payload, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var embedding []float32
		if err := decode(payload, &embedding); err != nil || len(embedding) == 0 {
			c.Delete(ctx, EmbeddingPrefix+textHashes[i])
			continue
		}
		found[textHashes[i]] = embedding
	}
	return found
}

func (c *Cache) SetEmbeddingsBatch(ctx context.Context, embeddings map[string][]float32) bool {
	if !c.enabled() || len(embeddings) == 0 {
		return false
	}
	pipe := c.rdb.Pipeline()
	for h, embedding := range embeddings {
		payload, err := encode(embedding, formatMsgpack)
		if err != nil {
			continue
		}
		pipe.Set(ctx, EmbeddingPrefix+h, payload, EmbeddingTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Debug().Err(err).Msg("Batch embedding set error")
		return false
	}
	return true
}

// Search response cache.

func (c *Cache) GetSearchResults(ctx context.Context, queryHash string, dest interface{}) bool {
	return c.Get(ctx, SearchPrefix+queryHash, dest)
}

func (c *Cache) SetSearchResults(ctx context.Context, queryHash string, response interface{}) bool {
	return c.set(ctx, SearchPrefix+queryHash, response, SearchTTL, formatJSON)
}

// Document metadata cache.

func (c *Cache) GetDocument(ctx context.Context, docID string, dest interface{}) bool {
	return c.Get(ctx, DocumentPrefix+docID, dest)
}

func (c *Cache) SetDocument(ctx context.Context, docID string, document interface{}) bool {
	return c.set(ctx, DocumentPrefix+docID, document, DocumentTTL, formatJSON)
}

func (c *Cache) DeleteDocument(ctx context.Context, docID string) bool {
	return c.Delete(ctx, DocumentPrefix+docID)
}

// Aggregate stats cache.

func (c *Cache) GetStats(ctx context.Context, statsKey string, dest interface{}) bool {
	return c.Get(ctx, StatsPrefix+statsKey, dest)
}

func (c *Cache) SetStats(ctx context.Context, statsKey string, stats interface{}) bool {
	return c.set(ctx, StatsPrefix+statsKey, stats, StatsTTL, formatJSON)
}

// Info reports per-category key counts and a few server figures for
// introspection.
func (c *Cache) Info(ctx context.Context) map[string]interface{} {
	info := map[string]interface{}{"enabled": c.enabled()}
	if !c.enabled() {
		return info
	}

	keyCounts := make(map[string]int, len(categoryPrefixes))
	for category, prefix := range categoryPrefixes {
		keys, err := c.rdb.Keys(ctx, prefix+"*").Result()
		if err != nil {
			continue
		}
		keyCounts[category] = len(keys)
	}
	info["key_counts"] = keyCounts

	raw, err := c.rdb.Info(ctx, "memory", "stats", "clients").Result()
	if err != nil {
		return info
	}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch k {
		case "used_memory_human", "used_memory_peak_human", "connected_clients",
			"total_commands_processed", "keyspace_hits", "keyspace_misses":
			info[k] = v
		}
	}
	return info
}
