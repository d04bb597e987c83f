package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_asker.go -package=mocks nutrition-rag/internal/service Asker
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_ask_service.go -package=mocks nutrition-rag/internal/service AskService

import (
	"context"
	"fmt"
	"strings"

	"nutrition-rag/internal/apperr"
	"nutrition-rag/internal/contextutil"
	"nutrition-rag/internal/rag"
)

// Parameter bounds offered to users.
const (
	MinTopK        = 1
	MaxTopK        = 10
	MinTemperature = float32(0)
	MaxTemperature = float32(1)
	MinMaxTokens   = 128
	MaxMaxTokens   = 2048
)

// Asker answers and retrieves. This interface is defined from the service
// layer's perspective (consumer-first); rag.Engine satisfies it.
type Asker interface {
	Ask(ctx context.Context, req rag.AskRequest) (rag.AskResponse, error)
	Retrieve(ctx context.Context, query string, topK int) ([]rag.ContextItem, error)
}

// AskRequest represents a question in the domain layer. Nil fields take defaults.
type AskRequest struct {
	Question    string
	TopK        *int
	Temperature *float32
	MaxTokens   *int
}

// RetrieveRequest asks for context only.
type RetrieveRequest struct {
	Question string
	TopK     *int
}

// AskService validates user requests before they reach the RAG engine.
type AskService interface {
	// Ask answers a question. A generation failure is reported in
	// rag.AskResponse.GenerationErr, not as an error.
	Ask(ctx context.Context, req AskRequest) (rag.AskResponse, error)
	// Retrieve returns the context chunks for a question.
	Retrieve(ctx context.Context, req RetrieveRequest) ([]rag.ContextItem, error)
}

// askService implements AskService.
type askService struct {
	asker Asker
}

// NewAskService creates a new AskService.
func NewAskService(asker Asker) AskService {
	return &askService{asker: asker}
}

// Ask validates req, applies defaults and asks the engine.
func (s *askService) Ask(ctx context.Context, req AskRequest) (rag.AskResponse, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if err := validateQuestion(req.Question); err != nil {
		logger.WarnContext(ctx, "empty question in ask request")
		return rag.AskResponse{}, err
	}
	topK, err := resolveTopK(req.TopK)
	if err != nil {
		return rag.AskResponse{}, err
	}

	temperature := rag.DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
		if temperature < MinTemperature || temperature > MaxTemperature {
			return rag.AskResponse{}, &apperr.ValidationError{
				Field:   "temperature",
				Message: fmt.Sprintf("must be between %g and %g", MinTemperature, MaxTemperature),
			}
		}
	}

	maxTokens := rag.DefaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
		if maxTokens < MinMaxTokens || maxTokens > MaxMaxTokens {
			return rag.AskResponse{}, &apperr.ValidationError{
				Field:   "max_tokens",
				Message: fmt.Sprintf("must be between %d and %d", MinMaxTokens, MaxMaxTokens),
			}
		}
	}

	resp, err := s.asker.Ask(ctx, rag.AskRequest{
		Question:    req.Question,
		TopK:        topK,
		Temperature: &temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to answer question", "error", err)
		return rag.AskResponse{}, apperr.WrapError(err, "failed to answer question")
	}

	logger.InfoContext(ctx, "ask request processed", "question_length", len(req.Question), "contexts", len(resp.Contexts), "generation_failed", resp.GenerationErr != nil)
	return resp, nil
}

// Retrieve validates req and returns the retrieved context.
func (s *askService) Retrieve(ctx context.Context, req RetrieveRequest) ([]rag.ContextItem, error) {
	if err := validateQuestion(req.Question); err != nil {
		return nil, err
	}
	topK, err := resolveTopK(req.TopK)
	if err != nil {
		return nil, err
	}

	items, err := s.asker.Retrieve(ctx, req.Question, topK)
	if err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "failed to retrieve context", "error", err)
		return nil, apperr.WrapError(err, "failed to retrieve context")
	}
	return items, nil
}

func validateQuestion(q string) error {
	if strings.TrimSpace(q) == "" {
		return &apperr.ValidationError{Field: "question", Message: "Please enter a valid question."}
	}
	return nil
}

func resolveTopK(topK *int) (int, error) {
	if topK == nil {
		return rag.DefaultTopK, nil
	}
	if *topK < MinTopK || *topK > MaxTopK {
		return 0, &apperr.ValidationError{
			Field:   "top_k",
			Message: fmt.Sprintf("must be between %d and %d", MinTopK, MaxTopK),
		}
	}
	return *topK, nil
}
