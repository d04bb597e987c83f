package rag

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_engine.go -package=mocks nutrition-rag/internal/rag Engine
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_embedder.go -package=mocks nutrition-rag/internal/rag Embedder
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_generator.go -package=mocks nutrition-rag/internal/rag Generator

import (
	"context"
	"fmt"
	"strings"

	"nutrition-rag/internal/apperr"
	"nutrition-rag/internal/contextutil"
	"nutrition-rag/internal/llm"
	"nutrition-rag/internal/prompt"
	"nutrition-rag/internal/vectorstore"
)

// Defaults applied when a request leaves a parameter unset.
const (
	DefaultTopK        = 4
	DefaultTemperature = float32(0.2)
	DefaultMaxTokens   = 512
)

// Embedder turns a query into a vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator produces an answer for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, params llm.GenerateParams) (string, error)
}

// QueryCache remembers query embeddings. Cache failures never fail a request.
type QueryCache interface {
	Get(ctx context.Context, text string) ([]float32, bool, error)
	Set(ctx context.Context, text string, vec []float32) error
}

// Engine provides RAG (Retrieval-Augmented Generation) functionality.
type Engine interface {
	// Retrieve returns up to topK chunks for query by descending score.
	// A blank query returns no chunks and makes no upstream call.
	Retrieve(ctx context.Context, query string, topK int) ([]ContextItem, error)

	// BuildPrompt retrieves context for query and formats the grounded prompt.
	BuildPrompt(ctx context.Context, query string, topK int) (string, []ContextItem, error)

	// Ask answers a question using RAG. Retrieval errors are returned; a
	// generation failure is reported in AskResponse.GenerationErr.
	Ask(ctx context.Context, req AskRequest) (AskResponse, error)
}

// ragEngine implements the Engine interface.
type ragEngine struct {
	embedder    Embedder
	vectorStore vectorstore.VectorStore
	index       string
	generator   Generator
	cache       QueryCache
}

// NewEngine creates a new RAG engine. cache may be nil.
func NewEngine(
	embedder Embedder,
	vectorStore vectorstore.VectorStore,
	index string,
	generator Generator,
	cache QueryCache,
) Engine {
	return &ragEngine{
		embedder:    embedder,
		vectorStore: vectorStore,
		index:       index,
		generator:   generator,
		cache:       cache,
	}
}

// Retrieve embeds query and returns the nearest chunks rebuilt from their metadata.
func (e *ragEngine) Retrieve(ctx context.Context, query string, topK int) ([]ContextItem, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if strings.TrimSpace(query) == "" {
		return []ContextItem{}, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	queryVector, err := e.embedQuery(ctx, query)
	if err != nil {
		logger.ErrorContext(ctx, "failed to embed question", "error", err)
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	matches, err := e.vectorStore.Query(ctx, e.index, queryVector, topK)
	if err != nil {
		logger.ErrorContext(ctx, "failed to search vector store", "index", e.index, "error", err)
		return nil, fmt.Errorf("failed to search vector store: %w", err)
	}

	items := make([]ContextItem, 0, len(matches))
	for _, m := range matches {
		text, ok := vectorstore.MetaString(m.Metadata, vectorstore.MetaText)
		if !ok {
			return nil, apperr.Errorf(apperr.KindDataContract, "retrieve", "match %s has no %s metadata", m.ID, vectorstore.MetaText)
		}
		page, ok := vectorstore.MetaInt(m.Metadata, vectorstore.MetaPageNumber)
		if !ok {
			return nil, apperr.Errorf(apperr.KindDataContract, "retrieve", "match %s has no %s metadata", m.ID, vectorstore.MetaPageNumber)
		}
		items = append(items, ContextItem{Text: text, Page: page, Score: m.Score})
	}

	if len(items) > 0 {
		logger.DebugContext(ctx, "top search result", "page", items[0].Page, "score", items[0].Score)
	}
	logger.InfoContext(ctx, "vector search completed", "results_count", len(items), "k_requested", topK)
	return items, nil
}

// embedQuery consults the cache before the embedding service.
func (e *ragEngine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if e.cache != nil {
		vec, hit, err := e.cache.Get(ctx, query)
		if err != nil {
			logger.WarnContext(ctx, "query cache lookup failed", "error", err)
		} else if hit {
			logger.DebugContext(ctx, "query embedding cache hit")
			return vec, nil
		}
	}

	vec, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.Set(ctx, query, vec); err != nil {
			logger.WarnContext(ctx, "query cache store failed", "error", err)
		}
	}
	return vec, nil
}

// BuildPrompt retrieves context and formats the prompt.
func (e *ragEngine) BuildPrompt(ctx context.Context, query string, topK int) (string, []ContextItem, error) {
	items, err := e.Retrieve(ctx, query, topK)
	if err != nil {
		return "", nil, err
	}

	sources := make([]prompt.Source, len(items))
	for i, it := range items {
		sources[i] = prompt.Source{Page: it.Page, Text: it.Text}
	}
	return prompt.Format(query, sources), items, nil
}

// Ask answers a question using RAG.
func (e *ragEngine) Ask(ctx context.Context, req AskRequest) (AskResponse, error) {
	logger := contextutil.LoggerFromContext(ctx)

	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	temperature := DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	logger.InfoContext(ctx, "RAG query started",
		"question_length", len(req.Question),
		"top_k", topK,
		"temperature", temperature,
		"max_tokens", maxTokens,
	)

	promptText, items, err := e.BuildPrompt(ctx, req.Question, topK)
	if err != nil {
		return AskResponse{}, err
	}

	logger.DebugContext(ctx, "prompt built", "prompt_length", len(promptText), "chunks_included", len(items))

	answer, err := e.generator.Generate(ctx, promptText, llm.GenerateParams{
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to get LLM response", "error", err)
		return AskResponse{Contexts: items, GenerationErr: err}, nil
	}

	logger.InfoContext(ctx, "RAG query completed", "chunks_used", len(items), "answer_length", len(answer))
	return AskResponse{Answer: answer, Contexts: items}, nil
}
