// Package search answers natural-language queries by ranking chunk vectors,
// optionally augmenting the top results with extractive QA, and records
// every invocation for analytics.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"pdf-miner/internal/config"
	"pdf-miner/internal/helper"
	"pdf-miner/internal/models"
	"pdf-miner/internal/qa"
	"pdf-miner/internal/vectorstore"
)

const qaResultLimit = 3

// Store is the slice of persistence the search engine needs.
type Store interface {
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	CreateSearchQuery(ctx context.Context, q *models.SearchQuery) error
	CreateSearchResults(ctx context.Context, results []models.SearchResult) error
	FinishSearchQuery(ctx context.Context, queryID string, resultsCount int, processingTimeMs float64) error
	UpdateResultQA(ctx context.Context, queryID, chunkID, answer string, confidence float64) error
	ChunkEmbeddings(ctx context.Context, docID string) ([][]float32, error)
	SearchAnalytics(ctx context.Context, since time.Time) (*models.SearchAnalytics, error)
}

// Cache is the advisory cache surface; every miss just costs recomputation.
type Cache interface {
	GetSearchResults(ctx context.Context, queryHash string, dest interface{}) bool
	SetSearchResults(ctx context.Context, queryHash string, response interface{}) bool
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32) bool
	GetDocument(ctx context.Context, docID string, dest interface{}) bool
	SetDocument(ctx context.Context, docID string, document interface{}) bool
	GetStats(ctx context.Context, statsKey string, dest interface{}) bool
	SetStats(ctx context.Context, statsKey string, stats interface{}) bool
}

// ModelProvider hands out the shared model clients.
type ModelProvider interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	QAClient() (*qa.Client, error)
}

// Request carries one search invocation's parameters. Zero TopK and
// threshold fall back to the configured defaults.
type Request struct {
	Query               string
	TopK                int
	SimilarityThreshold float64
	DocumentIDs         []string
	UserID              string
	SessionID           string
	IPAddress           string
	UserAgent           string
}

type Result struct {
	ChunkID          string  `json:"chunk_id"`
	DocumentID       string  `json:"document_id"`
	DocumentFilename string  `json:"document_filename"`
	DocumentTitle    string  `json:"document_title"`
	PageNumber       int     `json:"page_number"`
	ChunkIndex       int     `json:"chunk_index"`
	TextContent      string  `json:"text_content"`
	SimilarityScore  float64 `json:"similarity_score"`
	Rank             int     `json:"rank"`
	QAAnswer         string  `json:"qa_answer,omitempty"`
	QAConfidence     float64 `json:"qa_confidence,omitempty"`
}

type Response struct {
	Query               string   `json:"query"`
	Results             []Result `json:"results"`
	TotalResults        int      `json:"total_results"`
	ProcessingTimeMs    float64  `json:"processing_time_ms"`
	SimilarityThreshold float64  `json:"similarity_threshold"`
	TopK                int      `json:"top_k"`
	QueryID             string   `json:"query_id"`
	HasQAAnswers        bool     `json:"has_qa_answers,omitempty"`
}

// SimilarDocument ranks a document against a source document's centroid.
type SimilarDocument struct {
	DocumentID      string  `json:"document_id"`
	Filename        string  `json:"filename"`
	Title           string  `json:"title"`
	SimilarityScore float64 `json:"similarity_score"`
	PagesCount      int     `json:"pages_count"`
	FileSize        int64   `json:"file_size"`
}

type Service struct {
	store    Store
	index    vectorstore.Index
	provider ModelProvider
	cache    Cache
	cfg      *config.Config
}

func NewService(store Store, index vectorstore.Index, provider ModelProvider, cache Cache, cfg *config.Config) *Service {
	return &Service{store: store, index: index, provider: provider, cache: cache, cfg: cfg}
}

// Search ranks stored chunks against the query. A cached response for the
// same query and parameters is returned verbatim, previous latency figure
// included. A failed search never populates the response cache.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if req.TopK <= 0 {
		req.TopK = s.cfg.ML.TopKResults
	}
	if req.SimilarityThreshold == 0 {
		req.SimilarityThreshold = s.cfg.ML.SimilarityThreshold
	}
	req.SimilarityThreshold = clamp01(req.SimilarityThreshold)

	queryHash := s.queryCacheKey(req)
	var cached Response
	if s.cache.GetSearchResults(ctx, queryHash, &cached) {
		log.Info().Str("query", truncate(req.Query, 50)).Msg("Returning cached search results")
		return &cached, nil
	}

	queryEmbedding, err := s.resolveQueryEmbedding(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	record := &models.SearchQuery{
		QueryText:           req.Query,
		QueryEmbedding:      queryEmbedding,
		EmbeddingModel:      s.cfg.EmbedLLM.Model,
		SimilarityThreshold: req.SimilarityThreshold,
		TopK:                req.TopK,
		UserID:              req.UserID,
		SessionID:           req.SessionID,
		IPAddress:           req.IPAddress,
		UserAgent:           req.UserAgent,
	}
	if err := s.store.CreateSearchQuery(ctx, record); err != nil {
		return nil, err
	}

	hits, err := s.index.Query(ctx, queryEmbedding, req.TopK, req.SimilarityThreshold, req.DocumentIDs)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	rows := make([]models.SearchResult, 0, len(hits))
	for i, hit := range hits {
		meta, err := s.documentMeta(ctx, hit.DocumentID)
		if err != nil {
			return nil, err
		}
		results = append(results, Result{
			ChunkID:          hit.ChunkID,
			DocumentID:       hit.DocumentID,
			DocumentFilename: meta.Filename,
			DocumentTitle:    meta.Title,
			PageNumber:       hit.PageNumber,
			ChunkIndex:       hit.ChunkIndex,
			TextContent:      hit.Text,
			SimilarityScore:  hit.Similarity,
			Rank:             i + 1,
		})
		rows = append(rows, models.SearchResult{
			QueryID:         record.ID,
			ChunkID:         hit.ChunkID,
			SimilarityScore: hit.Similarity,
			RankPosition:    i + 1,
		})
	}

	if err := s.store.CreateSearchResults(ctx, rows); err != nil {
		return nil, err
	}

	processingTime := float64(time.Since(start).Microseconds()) / 1000.0
	if err := s.store.FinishSearchQuery(ctx, record.ID, len(results), processingTime); err != nil {
		return nil, err
	}

	response := &Response{
		Query:               req.Query,
		Results:             results,
		TotalResults:        len(results),
		ProcessingTimeMs:    processingTime,
		SimilarityThreshold: req.SimilarityThreshold,
		TopK:                req.TopK,
		QueryID:             record.ID,
	}
	s.cache.SetSearchResults(ctx, queryHash, response)

	log.Info().
		Int("results", len(results)).
		Float64("ms", processingTime).
		Str("query", truncate(req.Query, 50)).
		Msg("Search completed")
	return response, nil
}

// SearchWithQA runs Search and then the QA model over at most the first
// three results. A per-result QA failure becomes a placeholder answer with
// zero confidence rather than failing the search.
func (s *Service) SearchWithQA(ctx context.Context, req Request) (*Response, error) {
	response, err := s.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(response.Results) == 0 {
		return response, nil
	}

	client, err := s.provider.QAClient()
	if err != nil {
		return nil, err
	}

	limit := qaResultLimit
	if limit > len(response.Results) {
		limit = len(response.Results)
	}
	for i := 0; i < limit; i++ {
		result := &response.Results[i]
		answer, err := client.Extract(ctx, response.Query, result.TextContent)
		if err != nil {
			log.Error().Err(err).Str("chunk_id", result.ChunkID).Msg("QA extraction failed")
			result.QAAnswer = "Error processing answer"
			result.QAConfidence = 0
		} else {
			result.QAAnswer = answer.Text
			result.QAConfidence = answer.Confidence
		}
		if err := s.store.UpdateResultQA(ctx, response.QueryID, result.ChunkID, result.QAAnswer, result.QAConfidence); err != nil {
			log.Error().Err(err).Str("chunk_id", result.ChunkID).Msg("Failed to persist QA answer")
		}
	}

	response.HasQAAnswers = true
	return response, nil
}

// SimilarDocuments ranks other documents by the average similarity of their
// chunks to the centroid embedding of the given document's chunks.
func (s *Service) SimilarDocuments(ctx context.Context, documentID string, topK int) ([]SimilarDocument, error) {
	if topK <= 0 {
		topK = s.cfg.ML.TopKResults
	}

	embeddings, err := s.store.ChunkEmbeddings(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, nil
	}

	centroid := meanVector(embeddings)
	matches, err := s.index.SimilarDocuments(ctx, centroid, documentID, topK)
	if err != nil {
		return nil, err
	}

	similar := make([]SimilarDocument, 0, len(matches))
	for _, m := range matches {
		meta, err := s.documentMeta(ctx, m.DocumentID)
		if err != nil {
			return nil, err
		}
		similar = append(similar, SimilarDocument{
			DocumentID:      m.DocumentID,
			Filename:        meta.Filename,
			Title:           meta.Title,
			SimilarityScore: m.Similarity,
			PagesCount:      meta.PagesCount,
			FileSize:        meta.FileSize,
		})
	}
	return similar, nil
}

// Analytics aggregates query activity over the trailing window, cached for
// the stats TTL.
func (s *Service) Analytics(ctx context.Context, days int) (*models.SearchAnalytics, error) {
	if days <= 0 {
		days = 30
	}
	statsKey := fmt.Sprintf("analytics_%dd", days)

	var cached models.SearchAnalytics
	if s.cache.GetStats(ctx, statsKey, &cached) {
		return &cached, nil
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	analytics, err := s.store.SearchAnalytics(ctx, since)
	if err != nil {
		return nil, err
	}
	analytics.PeriodDays = days

	s.cache.SetStats(ctx, statsKey, analytics)
	return analytics, nil
}

// queryCacheKey hashes the normalized query and search parameters. The
// embedding cache key deliberately differs: it hashes the raw query text
// alone, because the same text always maps to the same vector.
func (s *Service) queryCacheKey(req Request) string {
	normalized := strings.ToLower(strings.TrimSpace(req.Query))
	key := fmt.Sprintf("%s_%d_%g", normalized, req.TopK, req.SimilarityThreshold)
	if len(req.DocumentIDs) > 0 {
		key += "_" + strings.Join(req.DocumentIDs, ",")
	}
	return helper.MD5Hex(key)
}

func (s *Service) resolveQueryEmbedding(ctx context.Context, query string) ([]float32, error) {
	textHash := helper.MD5Hex(query)
	if embedding, ok := s.cache.GetEmbedding(ctx, textHash); ok {
		return embedding, nil
	}
	embedding, err := s.provider.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	s.cache.SetEmbedding(ctx, textHash, embedding)
	return embedding, nil
}

type documentMeta struct {
	Filename   string `json:"filename"`
	Title      string `json:"title"`
	PagesCount int    `json:"pages_count"`
	FileSize   int64  `json:"file_size"`
}

func (s *Service) documentMeta(ctx context.Context, docID string) (documentMeta, error) {
	var meta documentMeta
	if s.cache.GetDocument(ctx, docID, &meta) {
		return meta, nil
	}
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return meta, err
	}
	if doc == nil {
		return meta, nil
	}
	meta = documentMeta{
		Filename:   doc.Filename,
		Title:      doc.Title,
		PagesCount: doc.PagesCount,
		FileSize:   doc.FileSize,
	}
	s.cache.SetDocument(ctx, docID, meta)
	return meta, nil
}

func meanVector(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	sums := make([]float64, dim)
	for _, v := range vectors {
		for i := 0; i < dim && i < len(v); i++ {
			sums[i] += float64(v[i])
		}
	}
	centroid := make([]float32, dim)
	for i, sum := range sums {
		centroid[i] = float32(sum / float64(len(vectors)))
	}
	return centroid
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
