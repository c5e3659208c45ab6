package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Document is a source file tracked by the ingestion pipeline. Filename is
// unique; FileHash is the SHA-256 fingerprint of the raw bytes and a change
// in it forces reprocessing.
type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`

	ID               string     `bun:"id,pk" json:"id"`
	Filename         string     `bun:"filename,notnull,unique" json:"filename"`
	FilePath         string     `bun:"file_path,notnull" json:"file_path"`
	FileHash         string     `bun:"file_hash,notnull" json:"file_hash"`
	FileSize         int64      `bun:"file_size,notnull" json:"file_size"`
	Title            string     `bun:"title" json:"title"`
	Author           string     `bun:"author" json:"author,omitempty"`
	Subject          string     `bun:"subject" json:"subject,omitempty"`
	PagesCount       int        `bun:"pages_count" json:"pages_count"`
	ProcessingStatus string     `bun:"processing_status,notnull,default:'new'" json:"processing_status"`
	ErrorMessage     string     `bun:"error_message" json:"error_message,omitempty"`
	CreatedAt        time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt        time.Time  `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
	ProcessedAt      *time.Time `bun:"processed_at" json:"processed_at,omitempty"`
}

// DocumentChunk is the unit of embedding and retrieval.
// (document_id, page_number, chunk_index) is unique.
type DocumentChunk struct {
	bun.BaseModel `bun:"table:document_chunks,alias:c"`

	ID             string    `bun:"id,pk" json:"id"`
	DocumentID     string    `bun:"document_id,notnull" json:"document_id"`
	PageNumber     int       `bun:"page_number,notnull" json:"page_number"`
	ChunkIndex     int       `bun:"chunk_index,notnull" json:"chunk_index"`
	TextContent    string    `bun:"text_content,notnull" json:"text_content"`
	TextLength     int       `bun:"text_length,notnull" json:"text_length"`
	Embedding      []float32 `bun:"embedding,type:vector(384)" json:"-"`
	EmbeddingModel string    `bun:"embedding_model" json:"embedding_model,omitempty"`
	CreatedAt      time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// SearchQuery records one search invocation. ResultsCount and
// ProcessingTimeMs are set once at the end of the call; everything else is
// immutable after insert.
type SearchQuery struct {
	bun.BaseModel `bun:"table:search_queries,alias:q"`

	ID                  string    `bun:"id,pk" json:"id"`
	QueryText           string    `bun:"query_text,notnull" json:"query_text"`
	QueryEmbedding      []float32 `bun:"query_embedding,type:vector(384)" json:"-"`
	EmbeddingModel      string    `bun:"embedding_model" json:"embedding_model,omitempty"`
	SimilarityThreshold float64   `bun:"similarity_threshold,notnull" json:"similarity_threshold"`
	TopK                int       `bun:"top_k,notnull" json:"top_k"`
	UserID              string    `bun:"user_id" json:"user_id,omitempty"`
	SessionID           string    `bun:"session_id" json:"session_id,omitempty"`
	IPAddress           string    `bun:"ip_address" json:"ip_address,omitempty"`
	UserAgent           string    `bun:"user_agent" json:"user_agent,omitempty"`
	ResultsCount        int       `bun:"results_count" json:"results_count"`
	ProcessingTimeMs    float64   `bun:"processing_time_ms" json:"processing_time_ms"`
	CreatedAt           time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// SearchResult links a query to one ranked chunk. Rank positions are
// 1-based and strictly increase with decreasing similarity. Rows are purged
// with their query.
type SearchResult struct {
	bun.BaseModel `bun:"table:search_results,alias:r"`

	ID              string    `bun:"id,pk" json:"id"`
	QueryID         string    `bun:"query_id,notnull" json:"query_id"`
	ChunkID         string    `bun:"chunk_id,notnull" json:"chunk_id"`
	SimilarityScore float64   `bun:"similarity_score,notnull" json:"similarity_score"`
	RankPosition    int       `bun:"rank_position,notnull" json:"rank_position"`
	QAAnswer        string    `bun:"qa_answer" json:"qa_answer,omitempty"`
	QAConfidence    float64   `bun:"qa_confidence" json:"qa_confidence,omitempty"`
	CreatedAt       time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}
