package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"nutrition-rag/internal/config"
	"nutrition-rag/internal/contextutil"
	"nutrition-rag/internal/indexer"
	"nutrition-rag/internal/llm"
	"nutrition-rag/internal/segment"
	"nutrition-rag/internal/storage"
	"nutrition-rag/internal/vectorstore"
)

const usage = `Usage: ingest [flags] <command>

Commands:
  download  fetch the source document from SOURCE_URL if it is missing
  ingest    extract pages, segment them and write the chunk table
  embed     embed every chunk and write the embedding matrix
  upsert    load the matrix into the vector index and delete stale chunks
  all       download (when SOURCE_URL is set), ingest, embed and upsert
  stats     print indexing statistics as JSON

Flags:
`

func main() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	sourcePath := fs.String("source", "", "source document (.pdf, .md or .txt); overrides SOURCE_PATH")
	sourceURL := fs.String("url", "", "download URL; overrides SOURCE_URL")
	index := fs.String("index", "", "vector index name; overrides INDEX_NAME")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}
	command := fs.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *sourcePath != "" {
		cfg.SourcePath = *sourcePath
	}
	if *sourceURL != "" {
		cfg.SourceURL = *sourceURL
	}
	if *index != "" {
		cfg.IndexName = *index
	}

	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler).With("command", command)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = contextutil.WithLogger(ctx, logger)

	if err := run(ctx, cfg, command); err != nil {
		logger.ErrorContext(ctx, "command failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, command string) error {
	switch command {
	case "download", "ingest", "embed", "upsert", "all", "stats":
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	if command == "embed" || command == "all" {
		if err := cfg.RequireEmbedding(); err != nil {
			return err
		}
	}

	logger := contextutil.LoggerFromContext(ctx)

	db, err := storage.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()
	if err := storage.Migrate(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	chunkRepo := storage.NewChunkRepo(db)

	var vectorStore vectorstore.VectorStore
	if command == "upsert" || command == "all" {
		store, closeStore, err := vectorstore.Open(vectorstore.OpenConfig{
			Backend:     cfg.VectorStore,
			ChromemPath: cfg.ChromemPath,
			Qdrant:      vectorstore.QdrantConfig{URL: cfg.QdrantURL, APIKey: cfg.QdrantAPIKey},
			Options:     vectorstore.Options{BatchSize: cfg.UpsertBatchSize},
		})
		if err != nil {
			return fmt.Errorf("failed to open vector store: %w", err)
		}
		defer func() {
			_ = closeStore()
		}()
		vectorStore = store
	}

	var embedder indexer.Embedder
	if command == "embed" || command == "all" {
		client := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimension)
		client.BatchSize = cfg.EmbeddingBatchSize
		client.BatchDelay = cfg.EmbeddingBatchDelay
		client.SendInputType = cfg.EmbeddingInputType
		embedder = client
	}

	segmenter := &segment.Segmenter{ChunkSize: cfg.ChunkSize, MinTokenLength: cfg.MinTokenLength}
	pipeline := indexer.NewPipeline(indexer.Config{
		SourceURL:      cfg.SourceURL,
		SourcePath:     cfg.SourcePath,
		MatrixPath:     cfg.MatrixPath,
		Index:          cfg.IndexName,
		EmbeddingModel: cfg.EmbeddingModel,
	}, segmenter, chunkRepo, embedder, vectorStore)

	switch command {
	case "download":
		downloaded, err := pipeline.Download(ctx)
		if err != nil {
			return err
		}
		logger.InfoContext(ctx, "download finished", "path", cfg.SourcePath, "downloaded", downloaded)
	case "ingest":
		res, err := pipeline.Ingest(ctx)
		if err != nil {
			return err
		}
		logger.InfoContext(ctx, "ingest finished", "pages", res.Pages, "chunks", res.Chunks, "stale", res.Stale)
	case "embed":
		m, err := pipeline.Embed(ctx)
		if err != nil {
			return err
		}
		logger.InfoContext(ctx, "embed finished", "rows", m.Rows, "dimension", m.Cols, "path", cfg.MatrixPath)
	case "upsert":
		res, err := pipeline.Upsert(ctx)
		if err != nil {
			return err
		}
		logger.InfoContext(ctx, "upsert finished", "upserted", res.Upserted, "deleted", res.Deleted, "dimension", res.Dimension, "created", res.Created)
	case "all":
		if err := pipeline.All(ctx); err != nil {
			return err
		}
	}

	stats, err := pipeline.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to compute statistics: %w", err)
	}
	if command == "stats" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
	logger.InfoContext(ctx, "indexing statistics",
		"pages", stats.Pages,
		"chunks", stats.Chunks,
		"token_min", stats.ChunkTokenStats.Min,
		"token_mean", stats.ChunkTokenStats.Mean,
		"token_p95", stats.ChunkTokenStats.P95,
		"token_max", stats.ChunkTokenStats.Max,
		"index_version", stats.IndexVersion,
	)
	return nil
}
