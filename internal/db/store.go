package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"pdf-miner/internal/helper"
	"pdf-miner/internal/models"
)

// Store implements the persistence operations the ingestion pipeline and
// the search engine need.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *bun.DB {
	return s.db
}

func (s *Store) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	doc := new(models.Document)
	err := s.db.NewSelect().Model(doc).Where("d.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return doc, err
}

func (s *Store) GetDocumentByFilename(ctx context.Context, filename string) (*models.Document, error) {
	doc := new(models.Document)
	err := s.db.NewSelect().Model(doc).Where("d.filename = ?", filename).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return doc, err
}

func (s *Store) CreateDocument(ctx context.Context, doc *models.Document) error {
	now := time.Now().UTC()
	if doc.ID == "" {
		doc.ID = helper.MustUUID()
	}
	doc.CreatedAt = now
	doc.UpdatedAt = now
	_, err := s.db.NewInsert().Model(doc).Exec(ctx)
	return err
}

func (s *Store) UpdateDocument(ctx context.Context, doc *models.Document) error {
	doc.UpdatedAt = time.Now().UTC()
	_, err := s.db.NewUpdate().Model(doc).WherePK().Exec(ctx)
	return err
}

// ReplaceChunks swaps the document's chunk set and flips it to completed in
// one transaction: either the full new set is visible, or nothing changed.
func (s *Store) ReplaceChunks(ctx context.Context, doc *models.Document, chunks []models.DocumentChunk) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*models.DocumentChunk)(nil)).
			Where("document_id = ?", doc.ID).
			Exec(ctx); err != nil {
			return err
		}

		if len(chunks) > 0 {
			now := time.Now().UTC()
			for i := range chunks {
				if chunks[i].ID == "" {
					chunks[i].ID = helper.MustUUID()
				}
				chunks[i].DocumentID = doc.ID
				chunks[i].CreatedAt = now
			}
			if _, err := tx.NewInsert().Model(&chunks).Exec(ctx); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		doc.ProcessingStatus = models.StatusCompleted
		doc.ErrorMessage = ""
		doc.ProcessedAt = &now
		doc.UpdatedAt = now
		_, err := tx.NewUpdate().Model(doc).WherePK().Exec(ctx)
		return err
	})
}

func (s *Store) MarkDocumentFailed(ctx context.Context, docID, message string) error {
	_, err := s.db.NewUpdate().
		Model((*models.Document)(nil)).
		Set("processing_status = ?", models.StatusFailed).
		Set("error_message = ?", message).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", docID).
		Exec(ctx)
	return err
}

func (s *Store) ListFailedDocuments(ctx context.Context) ([]models.Document, error) {
	var docs []models.Document
	err := s.db.NewSelect().
		Model(&docs).
		Where("d.processing_status = ?", models.StatusFailed).
		Scan(ctx)
	return docs, err
}

// DeleteDocument removes the document and its chunks.
func (s *Store) DeleteDocument(ctx context.Context, docID string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*models.DocumentChunk)(nil)).
			Where("document_id = ?", docID).
			Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewDelete().
			Model((*models.Document)(nil)).
			Where("id = ?", docID).
			Exec(ctx)
		return err
	})
}

// ChunkEmbeddings returns the embedding of each embedded chunk of a
// document, for centroid computation.
func (s *Store) ChunkEmbeddings(ctx context.Context, docID string) ([][]float32, error) {
	var chunks []models.DocumentChunk
	err := s.db.NewSelect().
		Model(&chunks).
		Column("c.embedding").
		Where("c.document_id = ?", docID).
		Where("c.embedding IS NOT NULL").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	embeddings := make([][]float32, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) > 0 {
			embeddings = append(embeddings, c.Embedding)
		}
	}
	return embeddings, nil
}

func (s *Store) CreateSearchQuery(ctx context.Context, q *models.SearchQuery) error {
	if q.ID == "" {
		q.ID = helper.MustUUID()
	}
	q.CreatedAt = time.Now().UTC()
	_, err := s.db.NewInsert().Model(q).Exec(ctx)
	return err
}

func (s *Store) FinishSearchQuery(ctx context.Context, queryID string, resultsCount int, processingTimeMs float64) error {
	_, err := s.db.NewUpdate().
		Model((*models.SearchQuery)(nil)).
		Set("results_count = ?", resultsCount).
		Set("processing_time_ms = ?", processingTimeMs).
		Where("id = ?", queryID).
		Exec(ctx)
	return err
}

func (s *Store) CreateSearchResults(ctx context.Context, results []models.SearchResult) error {
	if len(results) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range results {
		if results[i].ID == "" {
			results[i].ID = helper.MustUUID()
		}
		results[i].CreatedAt = now
	}
	_, err := s.db.NewInsert().Model(&results).Exec(ctx)
	return err
}

func (s *Store) UpdateResultQA(ctx context.Context, queryID, chunkID, answer string, confidence float64) error {
	_, err := s.db.NewUpdate().
		Model((*models.SearchResult)(nil)).
		Set("qa_answer = ?", answer).
		Set("qa_confidence = ?", confidence).
		Where("query_id = ?", queryID).
		Where("chunk_id = ?", chunkID).
		Exec(ctx)
	return err
}

// SearchAnalytics aggregates query activity since the given time.
func (s *Store) SearchAnalytics(ctx context.Context, since time.Time) (*models.SearchAnalytics, error) {
	var totals struct {
		TotalSearches       int     `bun:"total_searches"`
		AvgProcessingTimeMs float64 `bun:"avg_processing_time"`
		AvgResultsCount     float64 `bun:"avg_results_count"`
		UniqueSessions      int     `bun:"unique_sessions"`
	}
	err := s.db.NewSelect().
		Model((*models.SearchQuery)(nil)).
		ColumnExpr("count(q.id) AS total_searches").
		ColumnExpr("coalesce(avg(q.processing_time_ms), 0) AS avg_processing_time").
		ColumnExpr("coalesce(avg(q.results_count), 0) AS avg_results_count").
		ColumnExpr("count(distinct q.session_id) AS unique_sessions").
		Where("q.created_at >= ?", since).
		Scan(ctx, &totals)
	if err != nil {
		return nil, err
	}

	var top []struct {
		QueryText string `bun:"query_text"`
		Frequency int    `bun:"frequency"`
	}
	err = s.db.NewSelect().
		Model((*models.SearchQuery)(nil)).
		ColumnExpr("q.query_text").
		ColumnExpr("count(q.id) AS frequency").
		Where("q.created_at >= ?", since).
		GroupExpr("q.query_text").
		OrderExpr("count(q.id) DESC").
		Limit(10).
		Scan(ctx, &top)
	if err != nil {
		return nil, err
	}

	analytics := &models.SearchAnalytics{
		TotalSearches:       totals.TotalSearches,
		AvgProcessingTimeMs: totals.AvgProcessingTimeMs,
		AvgResultsCount:     totals.AvgResultsCount,
		UniqueSessions:      totals.UniqueSessions,
		GeneratedAt:         time.Now().UTC(),
	}
	for _, t := range top {
		analytics.TopQueries = append(analytics.TopQueries, models.QueryFrequency{
			Query:     t.QueryText,
			Frequency: t.Frequency,
		})
	}
	return analytics, nil
}
