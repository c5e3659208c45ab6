package db

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"pdf-miner/internal/config"
	"pdf-miner/internal/models"
)

func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	dsn := cfg.DSN
	opts := []pgdriver.Option{pgdriver.WithDSN(dsn)}
	if cfg.Password != "" {
		opts = append(opts, pgdriver.WithPassword(cfg.Password))
	}
	return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// InitDB enables pgvector and creates the schema. Safe to call repeatedly.
func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return err
	}

	tables := []interface{}{
		(*models.Document)(nil),
		(*models.DocumentChunk)(nil),
		(*models.SearchQuery)(nil),
		(*models.SearchResult)(nil),
	}
	for _, model := range tables {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}

	indexes := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_chunks_doc_page_index
			ON document_chunks (document_id, page_number, chunk_index)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_document_id
			ON document_chunks (document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_search_queries_created_at
			ON search_queries (created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_search_results_query_id
			ON search_results (query_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_embedding
			ON document_chunks USING ivfflat (embedding vector_cosine_ops)`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// DropSchema removes every table. Test and rebuild helper.
func DropSchema(ctx context.Context, db *bun.DB) error {
	tables := []interface{}{
		(*models.SearchResult)(nil),
		(*models.SearchQuery)(nil),
		(*models.DocumentChunk)(nil),
		(*models.Document)(nil),
	}
	for _, model := range tables {
		if _, err := db.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}
