package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"pdf-miner/internal/cache"
	"pdf-miner/internal/config"
	"pdf-miner/internal/db"
	"pdf-miner/internal/embedding"
	"pdf-miner/internal/helper"
	"pdf-miner/internal/ingest"
	"pdf-miner/internal/search"
	"pdf-miner/internal/vectorstore"
)

const defaultConfigPath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using environment as-is")
	}

	configPath := flag.String("config", defaultConfigPath, "Path to the config file")
	initSchema := flag.Bool("init-db", false, "Create the database schema and exit")
	filePath := flag.String("file", "", "Path to a document file to ingest")
	dirPath := flag.String("dir", "", "Path to a directory of documents to ingest")
	force := flag.Bool("force", false, "Reprocess documents even when unchanged")
	reprocessFailed := flag.Bool("reprocess-failed", false, "Retry documents stuck in the failed state")
	query := flag.String("query", "", "Search query to be answered")
	withQA := flag.Bool("with-qa", false, "Run the QA model over the top search results")
	topK := flag.Int("top-k", 0, "Number of results to return (0 uses the configured default)")
	threshold := flag.Float64("threshold", 0, "Minimum similarity score (0 uses the configured default)")
	docFilter := flag.String("docs", "", "Comma-separated document IDs to restrict the search to")
	similarTo := flag.String("similar", "", "Document ID to find similar documents for")
	deleteID := flag.String("delete", "", "Document ID to delete, chunks and vectors included")
	analyticsDays := flag.Int("analytics", 0, "Print search analytics for the trailing N days")
	cacheClear := flag.String("cache-clear", "", "Clear a cache category (embeddings, search, documents, models, stats or 'all')")
	cacheInfo := flag.Bool("cache-info", false, "Print cache statistics")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}

	ctx := context.Background()

	switch {
	case *initSchema:
		initDatabase(ctx, cfg)
	case *filePath != "":
		ingestFile(ctx, cfg, *filePath, *force)
	case *dirPath != "":
		ingestDirectory(ctx, cfg, *dirPath, *force)
	case *reprocessFailed:
		retryFailed(ctx, cfg)
	case *query != "":
		runSearch(ctx, cfg, search.Request{
			Query:               *query,
			TopK:                *topK,
			SimilarityThreshold: *threshold,
			DocumentIDs:         splitIDs(*docFilter),
		}, *withQA)
	case *similarTo != "":
		runSimilar(ctx, cfg, *similarTo, *topK)
	case *deleteID != "":
		deleteDocument(ctx, cfg, *deleteID)
	case *analyticsDays > 0:
		runAnalytics(ctx, cfg, *analyticsDays)
	case *cacheClear != "":
		clearCache(ctx, cfg, *cacheClear)
	case *cacheInfo:
		printCacheInfo(ctx, cfg)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func connect(cfg *config.Config) *bun.DB {
	dbClient, err := db.ConnectDB(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Error connecting to database")
	}
	return db.NewDB(dbClient, cfg.Database.Debug)
}

// newIndex picks the similarity backend. pgvector reuses the relational
// store's chunk rows; chromem keeps its own collection on disk.
func newIndex(cfg *config.Config, bunDB *bun.DB) vectorstore.Index {
	switch cfg.VectorStore.Type {
	case "chromem":
		if !cfg.VectorStore.InMemory {
			if err := helper.CreateFolder(cfg.VectorStore.Path); err != nil {
				log.Fatal().Err(err).Msg("Error creating vector store folder")
			}
		}
		index, err := vectorstore.NewChromemIndex(cfg.VectorStore.Path, cfg.VectorStore.Collection, cfg.VectorStore.InMemory)
		if err != nil {
			log.Fatal().Err(err).Msg("Error opening chromem index")
		}
		return index
	default:
		return vectorstore.NewPGIndex(bunDB)
	}
}

func initDatabase(ctx context.Context, cfg *config.Config) {
	dbInstance := connect(cfg)
	defer dbInstance.Close()

	if err := db.InitDB(ctx, dbInstance); err != nil {
		log.Fatal().Err(err).Msg("Error initializing database")
	}
	log.Info().Msg("Database schema ready")
}

func ingestFile(ctx context.Context, cfg *config.Config, path string, force bool) {
	dbInstance := connect(cfg)
	defer dbInstance.Close()

	c := cache.New(cfg.Redis)
	defer c.Close()

	pipeline := ingest.NewPipeline(db.NewStore(dbInstance), embedding.NewProvider(cfg), newIndex(cfg, dbInstance), c, cfg)

	docID, skipped, err := pipeline.ProcessFile(ctx, path, force)
	if err != nil {
		log.Fatal().Err(err).Str("file", path).Msg("Error processing document")
	}
	if skipped {
		log.Info().Str("document_id", docID).Msg("Document unchanged, skipped")
		return
	}
	log.Info().Str("document_id", docID).Msg("Document processed")
}

func ingestDirectory(ctx context.Context, cfg *config.Config, dir string, force bool) {
	dbInstance := connect(cfg)
	defer dbInstance.Close()

	c := cache.New(cfg.Redis)
	defer c.Close()

	pipeline := ingest.NewPipeline(db.NewStore(dbInstance), embedding.NewProvider(cfg), newIndex(cfg, dbInstance), c, cfg)

	summary, err := pipeline.ProcessDirectory(ctx, dir, force)
	if err != nil {
		log.Fatal().Err(err).Str("dir", dir).Msg("Error processing directory")
	}
	helper.PrettyPrint(summary)
}

func retryFailed(ctx context.Context, cfg *config.Config) {
	dbInstance := connect(cfg)
	defer dbInstance.Close()

	c := cache.New(cfg.Redis)
	defer c.Close()

	pipeline := ingest.NewPipeline(db.NewStore(dbInstance), embedding.NewProvider(cfg), newIndex(cfg, dbInstance), c, cfg)

	recovered, err := pipeline.ReprocessFailed(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Error reprocessing failed documents")
	}
	log.Info().Int("recovered", recovered).Msg("Reprocessing finished")
}

func runSearch(ctx context.Context, cfg *config.Config, req search.Request, withQA bool) {
	dbInstance := connect(cfg)
	defer dbInstance.Close()

	c := cache.New(cfg.Redis)
	defer c.Close()

	service := search.NewService(db.NewStore(dbInstance), newIndex(cfg, dbInstance), embedding.NewProvider(cfg), c, cfg)

	var (
		response *search.Response
		err      error
	)
	if withQA {
		response, err = service.SearchWithQA(ctx, req)
	} else {
		response, err = service.Search(ctx, req)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Error searching")
	}

	fmt.Printf("Query: %s\n", response.Query)
	fmt.Printf("Results: %d (%.1f ms)\n\n", response.TotalResults, response.ProcessingTimeMs)
	for _, r := range response.Results {
		fmt.Printf("#%d [%.3f] %s (page %d)\n", r.Rank, r.SimilarityScore, r.DocumentFilename, r.PageNumber)
		fmt.Printf("%s\n", r.TextContent)
		if r.QAAnswer != "" {
			fmt.Printf("Answer: %s (confidence %.3f)\n", r.QAAnswer, r.QAConfidence)
		}
		fmt.Println()
	}
}

func runSimilar(ctx context.Context, cfg *config.Config, documentID string, topK int) {
	dbInstance := connect(cfg)
	defer dbInstance.Close()

	c := cache.New(cfg.Redis)
	defer c.Close()

	service := search.NewService(db.NewStore(dbInstance), newIndex(cfg, dbInstance), embedding.NewProvider(cfg), c, cfg)

	similar, err := service.SimilarDocuments(ctx, documentID, topK)
	if err != nil {
		log.Fatal().Err(err).Msg("Error finding similar documents")
	}
	if len(similar) == 0 {
		log.Info().Str("document_id", documentID).Msg("No similar documents found")
		return
	}
	helper.PrettyPrint(similar)
}

func deleteDocument(ctx context.Context, cfg *config.Config, documentID string) {
	dbInstance := connect(cfg)
	defer dbInstance.Close()

	c := cache.New(cfg.Redis)
	defer c.Close()

	if err := newIndex(cfg, dbInstance).DeleteDocument(ctx, documentID); err != nil {
		log.Fatal().Err(err).Msg("Error deleting document vectors")
	}
	if err := db.NewStore(dbInstance).DeleteDocument(ctx, documentID); err != nil {
		log.Fatal().Err(err).Msg("Error deleting document")
	}
	c.DeleteDocument(ctx, documentID)
	log.Info().Str("document_id", documentID).Msg("Document deleted")
}

func runAnalytics(ctx context.Context, cfg *config.Config, days int) {
	dbInstance := connect(cfg)
	defer dbInstance.Close()

	c := cache.New(cfg.Redis)
	defer c.Close()

	service := search.NewService(db.NewStore(dbInstance), newIndex(cfg, dbInstance), embedding.NewProvider(cfg), c, cfg)

	analytics, err := service.Analytics(ctx, days)
	if err != nil {
		log.Fatal().Err(err).Msg("Error computing analytics")
	}
	helper.PrettyPrint(analytics)
}

func clearCache(ctx context.Context, cfg *config.Config, category string) {
	c := cache.New(cfg.Redis)
	defer c.Close()

	if category == "all" {
		category = ""
	}
	cleared := c.Clear(ctx, category)
	log.Info().Int("cleared", cleared).Str("category", category).Msg("Cache cleared")
}

func printCacheInfo(ctx context.Context, cfg *config.Config) {
	c := cache.New(cfg.Redis)
	defer c.Close()

	helper.PrettyPrint(c.Info(ctx))
}

func splitIDs(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}
