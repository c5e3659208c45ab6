// Package vectorstore abstracts the similarity index over chunk embeddings.
// Two backends exist: pgvector (vectors live in the chunk rows, queries run
// in Postgres) and chromem (embedded index, persistent or in-memory).
package vectorstore

import (
	"context"

	"pdf-miner/internal/models"
)

// Hit is one chunk returned by a similarity query.
type Hit struct {
	ChunkID    string
	DocumentID string
	PageNumber int
	ChunkIndex int
	Text       string
	Similarity float64
}

// DocumentMatch ranks a whole document against a centroid vector.
type DocumentMatch struct {
	DocumentID string
	Similarity float64
}

// Index is the similarity store contract. Query returns hits with cosine
// similarity >= threshold, ordered by descending similarity with ties broken
// by chunk id, capped at topK. documentIDs, when non-empty, restricts the
// search to those parent documents.
type Index interface {
	UpsertChunks(ctx context.Context, chunks []models.DocumentChunk) error
	DeleteDocument(ctx context.Context, documentID string) error
	Query(ctx context.Context, embedding []float32, topK int, threshold float64, documentIDs []string) ([]Hit, error)
	SimilarDocuments(ctx context.Context, centroid []float32, excludeDocumentID string, topK int) ([]DocumentMatch, error)
}
