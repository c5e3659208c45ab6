package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-miner/internal/config"
	"pdf-miner/internal/helper"
	"pdf-miner/internal/models"
	"pdf-miner/internal/qa"
	"pdf-miner/internal/vectorstore"
)

type fakeStore struct {
	docs          map[string]*models.Document
	queries       []*models.SearchQuery
	results       []models.SearchResult
	finished      map[string]int
	qaUpdates     []string
	chunkVectors  [][]float32
	analytics     *models.SearchAnalytics
	analyticsHits int
	embedErr      error
}

func newFakeSearchStore() *fakeStore {
	return &fakeStore{
		docs:     make(map[string]*models.Document),
		finished: make(map[string]int),
	}
}

func (s *fakeStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	return s.docs[id], nil
}

func (s *fakeStore) CreateSearchQuery(ctx context.Context, q *models.SearchQuery) error {
	if q.ID == "" {
		q.ID = fmt.Sprintf("query-%d", len(s.queries)+1)
	}
	s.queries = append(s.queries, q)
	return nil
}

func (s *fakeStore) CreateSearchResults(ctx context.Context, results []models.SearchResult) error {
	s.results = append(s.results, results...)
	return nil
}

func (s *fakeStore) FinishSearchQuery(ctx context.Context, queryID string, resultsCount int, processingTimeMs float64) error {
	s.finished[queryID] = resultsCount
	return nil
}

func (s *fakeStore) UpdateResultQA(ctx context.Context, queryID, chunkID, answer string, confidence float64) error {
	s.qaUpdates = append(s.qaUpdates, chunkID)
	return nil
}

func (s *fakeStore) ChunkEmbeddings(ctx context.Context, docID string) ([][]float32, error) {
	return s.chunkVectors, s.embedErr
}

func (s *fakeStore) SearchAnalytics(ctx context.Context, since time.Time) (*models.SearchAnalytics, error) {
	s.analyticsHits++
	return s.analytics, nil
}

// fakeCache round-trips values through JSON like the real one.
type fakeCache struct {
	search     map[string][]byte
	embeddings map[string][]float32
	docs       map[string][]byte
	stats      map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		search:     make(map[string][]byte),
		embeddings: make(map[string][]float32),
		docs:       make(map[string][]byte),
		stats:      make(map[string][]byte),
	}
}

func getJSON(m map[string][]byte, key string, dest interface{}) bool {
	payload, ok := m[key]
	if !ok {
		return false
	}
	return json.Unmarshal(payload, dest) == nil
}

func setJSON(m map[string][]byte, key string, value interface{}) bool {
	payload, err := json.Marshal(value)
	if err != nil {
		return false
	}
	m[key] = payload
	return true
}

func (c *fakeCache) GetSearchResults(ctx context.Context, queryHash string, dest interface{}) bool {
	return getJSON(c.search, queryHash, dest)
}

func (c *fakeCache) SetSearchResults(ctx context.Context, queryHash string, response interface{}) bool {
	return setJSON(c.search, queryHash, response)
}

func (c *fakeCache) GetEmbedding(ctx context.Context, textHash string) ([]float32, bool) {
	v, ok := c.embeddings[textHash]
	return v, ok
}

func (c *fakeCache) SetEmbedding(ctx context.Context, textHash string, embedding []float32) bool {
	c.embeddings[textHash] = embedding
	return true
}

func (c *fakeCache) GetDocument(ctx context.Context, docID string, dest interface{}) bool {
	return getJSON(c.docs, docID, dest)
}

func (c *fakeCache) SetDocument(ctx context.Context, docID string, document interface{}) bool {
	return setJSON(c.docs, docID, document)
}

func (c *fakeCache) GetStats(ctx context.Context, statsKey string, dest interface{}) bool {
	return getJSON(c.stats, statsKey, dest)
}

func (c *fakeCache) SetStats(ctx context.Context, statsKey string, stats interface{}) bool {
	return setJSON(c.stats, statsKey, stats)
}

type fakeProvider struct {
	vector     []float32
	embedCalls int
	embedErr   error
	qaClient   *qa.Client
	qaErr      error
}

func (p *fakeProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	p.embedCalls++
	if p.embedErr != nil {
		return nil, p.embedErr
	}
	return p.vector, nil
}

func (p *fakeProvider) QAClient() (*qa.Client, error) {
	if p.qaErr != nil {
		return nil, p.qaErr
	}
	return p.qaClient, nil
}

func searchConfig() *config.Config {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	return cfg
}

func seededIndex(t *testing.T) vectorstore.Index {
	t.Helper()
	idx, err := vectorstore.NewChromemIndex("", "search_test", true)
	require.NoError(t, err)
	require.NoError(t, idx.UpsertChunks(context.Background(), []models.DocumentChunk{
		{ID: "c1", DocumentID: "docA", PageNumber: 1, ChunkIndex: 0, TextContent: "the capital of france is paris", Embedding: []float32{1, 0, 0}},
		{ID: "c2", DocumentID: "docA", PageNumber: 2, ChunkIndex: 0, TextContent: "other material entirely", Embedding: []float32{0, 1, 0}},
		{ID: "c3", DocumentID: "docB", PageNumber: 1, ChunkIndex: 0, TextContent: "paris hosts many museums", Embedding: []float32{0.9, 0.4359, 0}},
	}))
	return idx
}

func seedDocs(store *fakeStore) {
	store.docs["docA"] = &models.Document{ID: "docA", Filename: "france.pdf", Title: "France Facts", PagesCount: 10, FileSize: 2048}
	store.docs["docB"] = &models.Document{ID: "docB", Filename: "travel.pdf", Title: "Travel Guide", PagesCount: 4, FileSize: 1024}
}

func TestSearch_RanksAndPersists(t *testing.T) {
	store := newFakeSearchStore()
	seedDocs(store)
	provider := &fakeProvider{vector: []float32{1, 0, 0}}
	cache := newFakeCache()
	svc := NewService(store, seededIndex(t), provider, cache, searchConfig())

	resp, err := svc.Search(context.Background(), Request{Query: "what is the capital of France", SimilarityThreshold: 0.5})
	require.NoError(t, err)

	require.Len(t, resp.Results, 2)
	assert.Equal(t, "c1", resp.Results[0].ChunkID)
	assert.Equal(t, 1, resp.Results[0].Rank)
	assert.Equal(t, "c3", resp.Results[1].ChunkID)
	assert.Equal(t, 2, resp.Results[1].Rank)
	assert.Greater(t, resp.Results[0].SimilarityScore, resp.Results[1].SimilarityScore)

	assert.Equal(t, "france.pdf", resp.Results[0].DocumentFilename)
	assert.Equal(t, "France Facts", resp.Results[0].DocumentTitle)
	assert.Equal(t, "travel.pdf", resp.Results[1].DocumentFilename)

	require.Len(t, store.queries, 1)
	assert.Equal(t, resp.QueryID, store.queries[0].ID)
	assert.Len(t, store.results, 2)
	assert.Equal(t, 1, store.results[0].RankPosition)
	assert.Equal(t, 2, store.finished[resp.QueryID])
	assert.Equal(t, 2, resp.TotalResults)
}

func TestSearch_DefaultsApplied(t *testing.T) {
	store := newFakeSearchStore()
	seedDocs(store)
	provider := &fakeProvider{vector: []float32{1, 0, 0}}
	svc := NewService(store, seededIndex(t), provider, newFakeCache(), searchConfig())

	resp, err := svc.Search(context.Background(), Request{Query: "capital"})
	require.NoError(t, err)
	assert.Equal(t, 5, resp.TopK)
	assert.Equal(t, 0.7, resp.SimilarityThreshold)
}

func TestSearch_ThresholdClamped(t *testing.T) {
	store := newFakeSearchStore()
	seedDocs(store)
	provider := &fakeProvider{vector: []float32{1, 0, 0}}
	svc := NewService(store, seededIndex(t), provider, newFakeCache(), searchConfig())

	resp, err := svc.Search(context.Background(), Request{Query: "capital", SimilarityThreshold: 7.5})
	require.NoError(t, err)
	assert.Equal(t, 1.0, resp.SimilarityThreshold)
}

func TestSearch_EmptyResultIsSuccess(t *testing.T) {
	store := newFakeSearchStore()
	provider := &fakeProvider{vector: []float32{0, 0, 1}}
	svc := NewService(store, seededIndex(t), provider, newFakeCache(), searchConfig())

	resp, err := svc.Search(context.Background(), Request{Query: "unrelated", SimilarityThreshold: 0.99})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Equal(t, 0, resp.TotalResults)
	assert.Equal(t, 0, store.finished[resp.QueryID])
}

func TestSearch_CachedResponseReturnedVerbatim(t *testing.T) {
	store := newFakeSearchStore()
	seedDocs(store)
	provider := &fakeProvider{vector: []float32{1, 0, 0}}
	svc := NewService(store, seededIndex(t), provider, newFakeCache(), searchConfig())
	ctx := context.Background()
	req := Request{Query: "what is the capital of France", SimilarityThreshold: 0.5}

	first, err := svc.Search(ctx, req)
	require.NoError(t, err)

	second, err := svc.Search(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.QueryID, second.QueryID)
	assert.Equal(t, first.ProcessingTimeMs, second.ProcessingTimeMs)
	assert.Equal(t, first.Results, second.Results)
	assert.Len(t, store.queries, 1, "cache hit must not record a new query")
}

func TestSearch_DocumentFilter(t *testing.T) {
	store := newFakeSearchStore()
	seedDocs(store)
	provider := &fakeProvider{vector: []float32{1, 0, 0}}
	svc := NewService(store, seededIndex(t), provider, newFakeCache(), searchConfig())

	resp, err := svc.Search(context.Background(), Request{
		Query:               "paris",
		SimilarityThreshold: 0.5,
		DocumentIDs:         []string{"docB"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "docB", resp.Results[0].DocumentID)
}

func TestSearch_EmbedFailureNotCached(t *testing.T) {
	store := newFakeSearchStore()
	provider := &fakeProvider{embedErr: fmt.Errorf("model unavailable")}
	cache := newFakeCache()
	svc := NewService(store, seededIndex(t), provider, cache, searchConfig())

	_, err := svc.Search(context.Background(), Request{Query: "anything"})
	require.Error(t, err)
	assert.Empty(t, cache.search)
	assert.Empty(t, store.queries)
}

func TestSearch_QueryEmbeddingCacheReused(t *testing.T) {
	store := newFakeSearchStore()
	seedDocs(store)
	provider := &fakeProvider{vector: []float32{1, 0, 0}}
	cache := newFakeCache()
	cache.embeddings[helper.MD5Hex("warm query")] = []float32{1, 0, 0}
	svc := NewService(store, seededIndex(t), provider, cache, searchConfig())

	_, err := svc.Search(context.Background(), Request{Query: "warm query", SimilarityThreshold: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 0, provider.embedCalls)
}

func qaServer(t *testing.T, status int, answer qa.Answer) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			http.Error(w, "boom", status)
			return
		}
		json.NewEncoder(w).Encode(answer)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSearchWithQA(t *testing.T) {
	server := qaServer(t, http.StatusOK, qa.Answer{Text: "Paris", Confidence: 0.92})
	client, err := qa.New(config.QAConfig{BaseURL: server.URL})
	require.NoError(t, err)

	store := newFakeSearchStore()
	seedDocs(store)
	provider := &fakeProvider{vector: []float32{1, 0, 0}, qaClient: client}
	svc := NewService(store, seededIndex(t), provider, newFakeCache(), searchConfig())

	resp, err := svc.SearchWithQA(context.Background(), Request{Query: "what is the capital of France", SimilarityThreshold: 0.5})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)

	assert.True(t, resp.HasQAAnswers)
	assert.Equal(t, "Paris", resp.Results[0].QAAnswer)
	assert.InDelta(t, 0.92, resp.Results[0].QAConfidence, 1e-9)
	assert.Equal(t, "Paris", resp.Results[1].QAAnswer)
	assert.ElementsMatch(t, []string{"c1", "c3"}, store.qaUpdates)
}

func TestSearchWithQA_PerResultFailureIsolated(t *testing.T) {
	server := qaServer(t, http.StatusInternalServerError, qa.Answer{})
	client, err := qa.New(config.QAConfig{BaseURL: server.URL})
	require.NoError(t, err)

	store := newFakeSearchStore()
	seedDocs(store)
	provider := &fakeProvider{vector: []float32{1, 0, 0}, qaClient: client}
	svc := NewService(store, seededIndex(t), provider, newFakeCache(), searchConfig())

	resp, err := svc.SearchWithQA(context.Background(), Request{Query: "capital", SimilarityThreshold: 0.5})
	require.NoError(t, err, "QA failure must not fail the search")
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "Error processing answer", resp.Results[0].QAAnswer)
	assert.Zero(t, resp.Results[0].QAConfidence)
}

func TestSearchWithQA_NoResults(t *testing.T) {
	store := newFakeSearchStore()
	provider := &fakeProvider{vector: []float32{0, 0, 1}, qaErr: fmt.Errorf("should not be called")}
	svc := NewService(store, seededIndex(t), provider, newFakeCache(), searchConfig())

	resp, err := svc.SearchWithQA(context.Background(), Request{Query: "nothing", SimilarityThreshold: 0.999})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.False(t, resp.HasQAAnswers)
}

func TestSimilarDocuments(t *testing.T) {
	store := newFakeSearchStore()
	seedDocs(store)
	store.chunkVectors = [][]float32{{1, 0, 0}, {1, 0, 0}}
	provider := &fakeProvider{}
	svc := NewService(store, seededIndex(t), provider, newFakeCache(), searchConfig())

	similar, err := svc.SimilarDocuments(context.Background(), "docA", 5)
	require.NoError(t, err)
	require.Len(t, similar, 1)
	assert.Equal(t, "docB", similar[0].DocumentID)
	assert.Equal(t, "travel.pdf", similar[0].Filename)
	assert.Equal(t, "Travel Guide", similar[0].Title)
	assert.Equal(t, 4, similar[0].PagesCount)
	assert.Equal(t, int64(1024), similar[0].FileSize)
}

func TestSimilarDocuments_NoChunks(t *testing.T) {
	store := newFakeSearchStore()
	svc := NewService(store, seededIndex(t), &fakeProvider{}, newFakeCache(), searchConfig())

	similar, err := svc.SimilarDocuments(context.Background(), "unknown", 5)
	require.NoError(t, err)
	assert.Nil(t, similar)
}

func TestAnalytics_Cached(t *testing.T) {
	store := newFakeSearchStore()
	store.analytics = &models.SearchAnalytics{TotalSearches: 42, AvgResultsCount: 3.5}
	svc := NewService(store, seededIndex(t), &fakeProvider{}, newFakeCache(), searchConfig())
	ctx := context.Background()

	first, err := svc.Analytics(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, first.PeriodDays)
	assert.Equal(t, 42, first.TotalSearches)

	second, err := svc.Analytics(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, first.TotalSearches, second.TotalSearches)
	assert.Equal(t, 1, store.analyticsHits, "second call must come from the cache")
}
