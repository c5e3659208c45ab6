package vectorstore

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"

	"github.com/philippgille/chromem-go"

	"pdf-miner/internal/models"
)

const chromemCompress = false

// ChromemIndex keeps chunk vectors in an embedded chromem-go collection,
// persistent on disk or purely in memory. The in-memory form doubles as the
// search test backend.
type ChromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
}

func NewChromemIndex(path, collectionName string, inMemory bool) (*ChromemIndex, error) {
	var db *chromem.DB
	var err error
	if inMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, chromemCompress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %v", err)
		}
	}

	collection, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %v", err)
	}

	return &ChromemIndex{db: db, collection: collection}, nil
}

func (idx *ChromemIndex) UpsertChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		docs = append(docs, chromem.Document{
			ID:      c.ID,
			Content: c.TextContent,
			Metadata: map[string]string{
				"document_id": c.DocumentID,
				"page_number": strconv.Itoa(c.PageNumber),
				"chunk_index": strconv.Itoa(c.ChunkIndex),
			},
			Embedding: c.Embedding,
		})
	}
	if len(docs) == 0 {
		return nil
	}
	if err := idx.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %v", err)
	}
	return nil
}

func (idx *ChromemIndex) DeleteDocument(ctx context.Context, documentID string) error {
	err := idx.collection.Delete(ctx, map[string]string{"document_id": documentID}, nil)
	if err != nil {
		return fmt.Errorf("failed to delete document vectors: %v", err)
	}
	return nil
}

func (idx *ChromemIndex) Query(ctx context.Context, embedding []float32, topK int, threshold float64, documentIDs []string) ([]Hit, error) {
	count := idx.collection.Count()
	if count == 0 || topK <= 0 {
		return nil, nil
	}

	// fetch wide when filtering client-side, chromem has no IN filter
	nResults := topK
	if len(documentIDs) > 0 || nResults > count {
		nResults = count
	}

	results, err := idx.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: embedding,
		NResults:       nResults,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %v", err)
	}

	allowed := make(map[string]bool, len(documentIDs))
	for _, id := range documentIDs {
		allowed[id] = true
	}

	var hits []Hit
	for _, r := range results {
		sim := float64(r.Similarity)
		if sim < threshold {
			continue
		}
		docID := r.Metadata["document_id"]
		if len(allowed) > 0 && !allowed[docID] {
			continue
		}
		page, _ := strconv.Atoi(r.Metadata["page_number"])
		index, _ := strconv.Atoi(r.Metadata["chunk_index"])
		hits = append(hits, Hit{
			ChunkID:    r.ID,
			DocumentID: docID,
			PageNumber: page,
			ChunkIndex: index,
			Text:       r.Content,
			Similarity: sim,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (idx *ChromemIndex) SimilarDocuments(ctx context.Context, centroid []float32, excludeDocumentID string, topK int) ([]DocumentMatch, error) {
	count := idx.collection.Count()
	if count == 0 || topK <= 0 {
		return nil, nil
	}

	results, err := idx.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: centroid,
		NResults:       count,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %v", err)
	}

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, r := range results {
		docID := r.Metadata["document_id"]
		if docID == "" || docID == excludeDocumentID {
			continue
		}
		sums[docID] += float64(r.Similarity)
		counts[docID]++
	}

	matches := make([]DocumentMatch, 0, len(sums))
	for docID, sum := range sums {
		matches = append(matches, DocumentMatch{
			DocumentID: docID,
			Similarity: sum / float64(counts[docID]),
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].DocumentID < matches[j].DocumentID
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}
