// Package ingest drives the per-document workflow: fingerprint, metadata
// and text extraction, chunking, batched embedding, atomic persistence.
// Directory-wide runs fan out one goroutine per file behind a counting
// semaphore.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"pdf-miner/internal/chunker"
	"pdf-miner/internal/config"
	"pdf-miner/internal/extract"
	"pdf-miner/internal/helper"
	"pdf-miner/internal/models"
	"pdf-miner/internal/vectorstore"
)

// Store is the slice of document persistence the pipeline needs.
type Store interface {
	GetDocumentByFilename(ctx context.Context, filename string) (*models.Document, error)
	CreateDocument(ctx context.Context, doc *models.Document) error
	UpdateDocument(ctx context.Context, doc *models.Document) error
	ReplaceChunks(ctx context.Context, doc *models.Document, chunks []models.DocumentChunk) error
	MarkDocumentFailed(ctx context.Context, docID, message string) error
	ListFailedDocuments(ctx context.Context) ([]models.Document, error)
}

// Embedder turns texts into vectors.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingCache is the advisory cache surface the pipeline uses. Misses
// and failed writes cost nothing but recomputation.
type EmbeddingCache interface {
	GetEmbeddingsBatch(ctx context.Context, textHashes []string) map[string][]float32
	SetEmbeddingsBatch(ctx context.Context, embeddings map[string][]float32) bool
	DeleteDocument(ctx context.Context, docID string) bool
}

type Pipeline struct {
	store    Store
	embedder Embedder
	index    vectorstore.Index
	cache    EmbeddingCache
	chunker  *chunker.Chunker
	cfg      *config.Config
}

func NewPipeline(store Store, embedder Embedder, index vectorstore.Index, embCache EmbeddingCache, cfg *config.Config) *Pipeline {
	return &Pipeline{
		store:    store,
		embedder: embedder,
		index:    index,
		cache:    embCache,
		chunker:  chunker.New(cfg.ML.MaxChunkSize, cfg.ML.ChunkOverlap),
		cfg:      cfg,
	}
}

// ProcessFile runs the full pipeline for one file. It reports the document
// id and whether processing was skipped because the stored fingerprint and
// state already match the file on disk.
func (p *Pipeline) ProcessFile(ctx context.Context, path string, force bool) (string, bool, error) {
	start := time.Now()

	fileHash, err := helper.FileSHA256(path)
	if err != nil {
		return "", false, err
	}

	filename := filepath.Base(path)
	doc, err := p.store.GetDocumentByFilename(ctx, filename)
	if err != nil {
		return "", false, err
	}

	if doc != nil && !force && doc.FileHash == fileHash && doc.ProcessingStatus == models.StatusCompleted {
		log.Info().Str("file", filename).Msg("Document already processed and up to date")
		return doc.ID, true, nil
	}

	if doc != nil {
		doc.FileHash = fileHash
		doc.ProcessingStatus = models.StatusProcessing
		doc.ErrorMessage = ""
		if err := p.store.UpdateDocument(ctx, doc); err != nil {
			return "", false, err
		}
	} else {
		meta := extract.Metadata(path)
		doc = &models.Document{
			Filename:         filename,
			FilePath:         path,
			FileHash:         fileHash,
			FileSize:         meta.FileSize,
			Title:            meta.Title,
			Author:           meta.Author,
			Subject:          meta.Subject,
			PagesCount:       meta.PagesCount,
			ProcessingStatus: models.StatusProcessing,
		}
		if err := p.store.CreateDocument(ctx, doc); err != nil {
			return "", false, err
		}
	}

	log.Info().Str("file", filename).Msg("Extracting text")
	pages, err := extract.Pages(path)
	if err != nil {
		return doc.ID, false, p.fail(ctx, doc.ID, err)
	}
	if len(pages) == 0 {
		return doc.ID, false, p.fail(ctx, doc.ID, fmt.Errorf("no text content found in document"))
	}

	var rows []models.DocumentChunk
	for _, page := range pages {
		for _, c := range p.chunker.ChunkText(page.Text, page.Number) {
			rows = append(rows, models.DocumentChunk{
				PageNumber:     c.PageNumber,
				ChunkIndex:     c.ChunkIndex,
				TextContent:    c.Text,
				TextLength:     len(c.Text),
				EmbeddingModel: p.cfg.EmbedLLM.Model,
			})
		}
	}
	if len(rows) == 0 {
		return doc.ID, false, p.fail(ctx, doc.ID, fmt.Errorf("no text content found in document"))
	}

	log.Info().Str("file", filename).Int("chunks", len(rows)).Msg("Generating embeddings")
	if err := p.embedChunks(ctx, rows); err != nil {
		return doc.ID, false, p.fail(ctx, doc.ID, err)
	}

	if doc.PagesCount == 0 {
		doc.PagesCount = len(pages)
	}
	if err := p.store.ReplaceChunks(ctx, doc, rows); err != nil {
		return doc.ID, false, p.fail(ctx, doc.ID, err)
	}

	if err := p.index.DeleteDocument(ctx, doc.ID); err != nil {
		return doc.ID, false, p.fail(ctx, doc.ID, err)
	}
	if err := p.index.UpsertChunks(ctx, rows); err != nil {
		return doc.ID, false, p.fail(ctx, doc.ID, err)
	}

	p.cache.DeleteDocument(ctx, doc.ID)

	log.Info().
		Str("file", filename).
		Int("chunks", len(rows)).
		Dur("elapsed", time.Since(start)).
		Msg("Document processed")
	return doc.ID, false, nil
}

// fail marks the document failed with the error's verbatim message and
// passes the error back.
func (p *Pipeline) fail(ctx context.Context, docID string, cause error) error {
	if err := p.store.MarkDocumentFailed(ctx, docID, cause.Error()); err != nil {
		log.Error().Err(err).Str("document_id", docID).Msg("Failed to record failure state")
	}
	return cause
}

// embedChunks fills in the embedding of every chunk, reusing cached vectors
// keyed by the MD5 of the chunk text and computing only the misses.
func (p *Pipeline) embedChunks(ctx context.Context, rows []models.DocumentChunk) error {
	hashes := make([]string, len(rows))
	for i, row := range rows {
		hashes[i] = helper.MD5Hex(row.TextContent)
	}

	cached := p.cache.GetEmbeddingsBatch(ctx, hashes)

	var missingTexts []string
	var missingHashes []string
	seen := make(map[string]bool)
	for i, h := range hashes {
		if _, ok := cached[h]; ok || seen[h] {
			continue
		}
		seen[h] = true
		missingTexts = append(missingTexts, rows[i].TextContent)
		missingHashes = append(missingHashes, h)
	}

	if len(missingTexts) > 0 {
		computed, err := p.embedder.EmbedTexts(ctx, missingTexts)
		if err != nil {
			return err
		}
		if len(computed) != len(missingTexts) {
			return fmt.Errorf("embedder returned %d vectors for %d texts", len(computed), len(missingTexts))
		}
		fresh := make(map[string][]float32, len(computed))
		for i, embedding := range computed {
			cached[missingHashes[i]] = embedding
			fresh[missingHashes[i]] = embedding
		}
		p.cache.SetEmbeddingsBatch(ctx, fresh)
	}

	for i := range rows {
		rows[i].Embedding = cached[hashes[i]]
	}
	return nil
}

// ProcessDirectory ingests every supported file in the directory, at most
// MaxWorkers files in flight at once. A failure in one file is counted and
// never aborts its siblings.
func (p *Pipeline) ProcessDirectory(ctx context.Context, dir string, force bool) (*models.IngestSummary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %v", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !extract.Supported(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)

	summary := &models.IngestSummary{Total: len(files)}
	if len(files) == 0 {
		log.Warn().Str("dir", dir).Msg("No supported files found")
		return summary, nil
	}
	log.Info().Int("files", len(files)).Str("dir", dir).Msg("Processing directory")

	sem := make(chan struct{}, p.cfg.Processing.MaxWorkers)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, path := range files {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			sem <- struct{}{} // acquire
			defer func() { <-sem }()

			_, skipped, err := p.processGuarded(ctx, path, force)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				summary.Failed++
			case skipped:
				summary.Skipped++
			default:
				summary.Processed++
			}
		}(path)
	}
	wg.Wait()

	log.Info().
		Int("processed", summary.Processed).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Msg("Directory processing complete")
	return summary, nil
}

// processGuarded converts a panicking file task into a counted failure.
func (p *Pipeline) processGuarded(ctx context.Context, path string, force bool) (docID string, skipped bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing %s: %v", path, r)
			log.Error().Err(err).Msg("File task panicked")
		}
	}()
	docID, skipped, err = p.ProcessFile(ctx, path, force)
	if err != nil {
		log.Error().Err(err).Str("file", path).Msg("Failed to process file")
	}
	return docID, skipped, err
}

// ReprocessFailed resubmits every failed document whose backing file still
// exists, with forced reprocessing. It returns how many recovered.
func (p *Pipeline) ReprocessFailed(ctx context.Context) (int, error) {
	failed, err := p.store.ListFailedDocuments(ctx)
	if err != nil {
		return 0, err
	}
	if len(failed) == 0 {
		return 0, nil
	}

	log.Info().Int("count", len(failed)).Msg("Reprocessing failed documents")
	reprocessed := 0
	for _, doc := range failed {
		if _, err := os.Stat(doc.FilePath); err != nil {
			continue
		}
		if _, _, err := p.ProcessFile(ctx, doc.FilePath, true); err == nil {
			reprocessed++
		}
	}
	return reprocessed, nil
}
