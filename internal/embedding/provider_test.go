package embedding

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-miner/internal/config"
)

func providerConfig() *config.Config {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.QA.BaseURL = "http://localhost:8081"
	return cfg
}

func TestEmbedder_LoadedOnce(t *testing.T) {
	p := NewProvider(providerConfig())
	ctx := context.Background()

	first, err := p.Embedder(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := p.Embedder(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestEmbedder_ConcurrentFirstUse(t *testing.T) {
	p := NewProvider(providerConfig())
	ctx := context.Background()

	const callers = 16
	results := make([]interface{}, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			embedder, err := p.Embedder(ctx)
			require.NoError(t, err)
			results[i] = embedder
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		assert.Same(t, results[0], results[i], "all callers must share one instance")
	}
}

func TestQAClient_LoadedOnce(t *testing.T) {
	p := NewProvider(providerConfig())

	first, err := p.QAClient()
	require.NoError(t, err)

	second, err := p.QAClient()
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestQAClient_LoadFailureNotCached(t *testing.T) {
	cfg := providerConfig()
	cfg.QA.BaseURL = ""
	p := NewProvider(cfg)

	_, err := p.QAClient()
	require.Error(t, err)

	// the endpoint becoming configured later must make the next call work
	cfg.QA.BaseURL = "http://localhost:8081"
	client, err := p.QAClient()
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestEmbedTexts_Empty(t *testing.T) {
	p := NewProvider(providerConfig())

	out, err := p.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}
