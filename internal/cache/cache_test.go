package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"pdf-miner/internal/config"
)

// A disabled cache must behave as a permanent miss, never an error.
func TestDisabledCache(t *testing.T) {
	ctx := context.Background()
	c := New(config.RedisConfig{Enabled: false})

	assert.False(t, c.Set(ctx, "k", "v", 0))
	var out string
	assert.False(t, c.Get(ctx, "k", &out))
	assert.False(t, c.Delete(ctx, "k"))
	assert.False(t, c.Exists(ctx, "k"))
	assert.Equal(t, 0, c.Clear(ctx, "embeddings"))

	_, ok := c.GetEmbedding(ctx, "hash")
	assert.False(t, ok)
	assert.False(t, c.SetEmbedding(ctx, "hash", []float32{1}))
	assert.Empty(t, c.GetEmbeddingsBatch(ctx, []string{"a", "b"}))
	assert.False(t, c.SetEmbeddingsBatch(ctx, map[string][]float32{"a": {1}}))

	assert.False(t, c.GetSearchResults(ctx, "q", &out))
	assert.False(t, c.SetSearchResults(ctx, "q", "anything"))
	assert.False(t, c.GetDocument(ctx, "d", &out))
	assert.False(t, c.SetDocument(ctx, "d", "anything"))
	assert.False(t, c.DeleteDocument(ctx, "d"))
	assert.False(t, c.GetStats(ctx, "s", &out))
	assert.False(t, c.SetStats(ctx, "s", "anything"))

	info := c.Info(ctx)
	assert.Equal(t, false, info["enabled"])

	c.Close()
}

// A nil cache pointer is usable too; components are allowed to hold one
// without guarding every call.
func TestNilCache(t *testing.T) {
	ctx := context.Background()
	var c *Cache

	var out string
	assert.False(t, c.Get(ctx, "k", &out))
	assert.False(t, c.Set(ctx, "k", "v", 0))
	_, ok := c.GetEmbedding(ctx, "hash")
	assert.False(t, ok)
}

func TestCategoryPrefixes(t *testing.T) {
	assert.Equal(t, EmbeddingPrefix, categoryPrefixes["embeddings"])
	assert.Equal(t, SearchPrefix, categoryPrefixes["search"])
	assert.Equal(t, DocumentPrefix, categoryPrefixes["documents"])
	assert.Equal(t, ModelPrefix, categoryPrefixes["models"])
	assert.Equal(t, StatsPrefix, categoryPrefixes["stats"])
}
