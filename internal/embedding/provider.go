// Package embedding owns the process-wide model handles: the embedding
// model client and the QA extraction client. Both are loaded lazily, once,
// behind a double-checked lock, so concurrent first callers block briefly
// and later callers pay only a read lock.
package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"

	"pdf-miner/internal/config"
	"pdf-miner/internal/qa"
)

type Provider struct {
	cfg *config.Config

	mu       sync.RWMutex
	embedder *embeddings.EmbedderImpl

	qaMu     sync.RWMutex
	qaClient *qa.Client
}

func NewProvider(cfg *config.Config) *Provider {
	return &Provider{cfg: cfg}
}

// Embedder returns the shared embedding model client, initializing it on
// first use. A load failure is returned to the caller; nothing is cached so
// the next call retries.
func (p *Provider) Embedder(ctx context.Context) (*embeddings.EmbedderImpl, error) {
	p.mu.RLock()
	embedder := p.embedder
	p.mu.RUnlock()
	if embedder != nil {
		return embedder, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.embedder != nil {
		return p.embedder, nil
	}

	log.Info().Str("model", p.cfg.EmbedLLM.Model).Msg("Loading embedding model")
	llm, err := ollama.New(
		ollama.WithServerURL(p.cfg.EmbedLLM.BaseURL),
		ollama.WithModel(p.cfg.EmbedLLM.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding LLM: %v", err)
	}
	embedder, err = embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %v", err)
	}
	p.embedder = embedder
	log.Info().Msg("Embedding model loaded")
	return embedder, nil
}

// QAClient returns the shared QA extraction client, initializing it on
// first use.
func (p *Provider) QAClient() (*qa.Client, error) {
	p.qaMu.RLock()
	client := p.qaClient
	p.qaMu.RUnlock()
	if client != nil {
		return client, nil
	}

	p.qaMu.Lock()
	defer p.qaMu.Unlock()
	if p.qaClient != nil {
		return p.qaClient, nil
	}

	log.Info().Str("model", p.cfg.QA.Model).Msg("Loading QA model client")
	client, err := qa.New(p.cfg.QA)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize QA client: %v", err)
	}
	p.qaClient = client
	return client, nil
}

// EmbedQuery embeds a single text.
func (p *Provider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	embedder, err := p.Embedder(ctx)
	if err != nil {
		return nil, err
	}
	return embedder.EmbedQuery(ctx, text)
}

// EmbedTexts embeds texts in fixed-size batches sent to the model
// sequentially, preserving input order.
func (p *Provider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	embedder, err := p.Embedder(ctx)
	if err != nil {
		return nil, err
	}

	batchSize := p.cfg.Processing.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}

	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := embedder.EmbedDocuments(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch at %d: %v", start, err)
		}
		embeddings = append(embeddings, batch...)
	}
	return embeddings, nil
}
