package vectorstore

import (
	"context"

	"github.com/uptrace/bun"

	"pdf-miner/internal/models"
)

// PGIndex runs similarity queries against the pgvector column on the chunk
// table. Upserts and deletes are no-ops: the chunk rows written by the
// store are the index.
type PGIndex struct {
	db *bun.DB
}

func NewPGIndex(db *bun.DB) *PGIndex {
	return &PGIndex{db: db}
}

// UpsertChunks is a no-op: ingestion persists chunk rows with embeddings.
func (idx *PGIndex) UpsertChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	return nil
}

// DeleteDocument is a no-op: chunk deletion removes the vectors.
func (idx *PGIndex) DeleteDocument(ctx context.Context, documentID string) error {
	return nil
}

type scoredChunk struct {
	bun.BaseModel `bun:"table:document_chunks,alias:c"`

	ID          string  `bun:"id"`
	DocumentID  string  `bun:"document_id"`
	PageNumber  int     `bun:"page_number"`
	ChunkIndex  int     `bun:"chunk_index"`
	TextContent string  `bun:"text_content"`
	Similarity  float64 `bun:"similarity,scanonly"`
}

func (idx *PGIndex) Query(ctx context.Context, embedding []float32, topK int, threshold float64, documentIDs []string) ([]Hit, error) {
	var rows []scoredChunk
	q := idx.db.NewSelect().
		Model(&rows).
		Column("c.id", "c.document_id", "c.page_number", "c.chunk_index", "c.text_content").
		ColumnExpr("1 - (c.embedding <=> ?) AS similarity", embedding).
		Where("c.embedding IS NOT NULL").
		Where("1 - (c.embedding <=> ?) >= ?", embedding, threshold)

	if len(documentIDs) > 0 {
		q = q.Where("c.document_id IN (?)", bun.In(documentIDs))
	}

	// secondary sort on id pins tie order, which pgvector otherwise
	// leaves store-dependent
	err := q.OrderExpr("1 - (c.embedding <=> ?) DESC", embedding).
		OrderExpr("c.id ASC").
		Limit(topK).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, Hit{
			ChunkID:    r.ID,
			DocumentID: r.DocumentID,
			PageNumber: r.PageNumber,
			ChunkIndex: r.ChunkIndex,
			Text:       r.TextContent,
			Similarity: r.Similarity,
		})
	}
	return hits, nil
}

func (idx *PGIndex) SimilarDocuments(ctx context.Context, centroid []float32, excludeDocumentID string, topK int) ([]DocumentMatch, error) {
	var rows []struct {
		DocumentID string  `bun:"document_id"`
		Similarity float64 `bun:"similarity"`
	}
	err := idx.db.NewSelect().
		Model((*models.DocumentChunk)(nil)).
		ColumnExpr("c.document_id").
		ColumnExpr("avg(1 - (c.embedding <=> ?)) AS similarity", centroid).
		Where("c.embedding IS NOT NULL").
		Where("c.document_id != ?", excludeDocumentID).
		GroupExpr("c.document_id").
		OrderExpr("avg(1 - (c.embedding <=> ?)) DESC", centroid).
		Limit(topK).
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}

	matches := make([]DocumentMatch, 0, len(rows))
	for _, r := range rows {
		matches = append(matches, DocumentMatch{DocumentID: r.DocumentID, Similarity: r.Similarity})
	}
	return matches, nil
}
