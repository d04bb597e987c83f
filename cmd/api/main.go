package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nutrition-rag/internal/cache"
	"nutrition-rag/internal/config"
	"nutrition-rag/internal/handlers"
	"nutrition-rag/internal/http"
	"nutrition-rag/internal/indexer"
	"nutrition-rag/internal/llm"
	"nutrition-rag/internal/rag"
	"nutrition-rag/internal/retry"
	"nutrition-rag/internal/segment"
	"nutrition-rag/internal/service"
	"nutrition-rag/internal/storage"
	"nutrition-rag/internal/vectorstore"
)

//go:generate swagger generate spec -o swagger.json

// General API information
//
// This API answers questions about a nutrition textbook using retrieval-augmented generation.
//
// swagger:meta
//
// ---
// swagger: '2.0'
// info:
//   title: Nutrition RAG API
//   description: |
//     Ask questions about the indexed nutrition textbook. Answers are generated
//     only from the retrieved passages, which are returned with their page numbers.
//   version: 1.0.0
// schemes:
//   - http
//   - https
// consumes:
//   - application/json
// produces:
//   - application/json

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.RequireEmbedding(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := cfg.RequireLLM(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	// Initialize database
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)
	chunkRepo := storage.NewChunkRepo(db)

	ctx := context.Background()

	vectorStore, closeStore, err := vectorstore.Open(vectorstore.OpenConfig{
		Backend:     cfg.VectorStore,
		ChromemPath: cfg.ChromemPath,
		Qdrant:      vectorstore.QdrantConfig{URL: cfg.QdrantURL, APIKey: cfg.QdrantAPIKey},
		Options:     vectorstore.Options{BatchSize: cfg.UpsertBatchSize},
	})
	if err != nil {
		log.Fatalf("Failed to open vector store: %v", err)
	}
	defer func() {
		_ = closeStore()
	}()
	slog.Info("Vector store ready", "backend", cfg.VectorStore, "index", cfg.IndexName)

	embedder := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimension)
	embedder.BatchSize = cfg.EmbeddingBatchSize
	embedder.BatchDelay = cfg.EmbeddingBatchDelay
	embedder.SendInputType = cfg.EmbeddingInputType

	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
	llmClient.Title = "nutrition-rag"
	if cfg.LLMAttempts > 1 {
		llmClient.Retry = retry.Policy{MaxAttempts: cfg.LLMAttempts, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}
	}

	// The cache is optional; an unreachable Redis only costs embedding calls.
	var queryCache rag.QueryCache
	if cfg.RedisURL != "" {
		redisClient, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			slog.Warn("Query cache disabled", "error", err)
		} else {
			defer func() {
				_ = redisClient.Close()
			}()
			queryCache = cache.NewQueryCache(redisClient, "", cfg.EmbeddingModel, cfg.CacheTTL)
			slog.Info("Query cache enabled", "ttl", cfg.CacheTTL)
		}
	}

	ragEngine := rag.NewEngine(embedder, vectorStore, cfg.IndexName, llmClient, queryCache)
	askService := service.NewAskService(ragEngine)
	slog.Info("RAG engine initialized")

	segmenter := &segment.Segmenter{ChunkSize: cfg.ChunkSize, MinTokenLength: cfg.MinTokenLength}
	pipeline := indexer.NewPipeline(indexer.Config{
		SourceURL:      cfg.SourceURL,
		SourcePath:     cfg.SourcePath,
		MatrixPath:     cfg.MatrixPath,
		Index:          cfg.IndexName,
		EmbeddingModel: cfg.EmbeddingModel,
	}, segmenter, chunkRepo, embedder, vectorStore)
	indexHandler := handlers.NewIndexHandler(pipeline)

	router := http.NewRouter(&http.Deps{
		AskService:     askService,
		Stats:          pipeline,
		VectorStore:    vectorStore,
		IndexName:      cfg.IndexName,
		Indexer:        indexHandler,
		RequestTimeout: cfg.RequestTimeout,
	})

	server := &nethttp.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("Starting API server", "addr", server.Addr)
		slog.Debug("LLM configuration", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModel)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			log.Fatalf("API server failed to start: %v", err)
		}
	}()

	waitForShutdown(server)
	indexHandler.Wait()
}

func waitForShutdown(server *nethttp.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
}
