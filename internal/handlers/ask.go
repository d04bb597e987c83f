package handlers

import (
	"encoding/json"
	"net/http"

	"nutrition-rag/internal/contextutil"
	"nutrition-rag/internal/rag"
	"nutrition-rag/internal/service"
)

// FallbackAnswer replaces the answer when generation fails after retrieval succeeded.
const FallbackAnswer = "API error."

// ErrGenerationFailed is the error code reported alongside FallbackAnswer.
const ErrGenerationFailed = "generation_failed"

// AskHandler handles HTTP requests for RAG queries.
type AskHandler struct {
	askService service.AskService
}

// NewAskHandler creates a new AskHandler.
func NewAskHandler(askService service.AskService) *AskHandler {
	return &AskHandler{
		askService: askService,
	}
}

// AskRequest represents the HTTP request payload for RAG queries.
// Omitted parameters take the server defaults.
//
// swagger:model AskRequest
type AskRequest struct {
	Question    string   `json:"question"`
	TopK        *int     `json:"top_k,omitempty"`
	Temperature *float32 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// AskResponse represents the HTTP response payload for RAG queries.
//
// swagger:model AskResponse
type AskResponse struct {
	// The generated answer, or "API error." when generation failed
	Answer string `json:"answer"`

	// Retrieved chunks used to build the prompt, most similar first
	Contexts []ContextResponse `json:"contexts"`

	// Set to "generation_failed" when the answer could not be generated
	Error string `json:"error,omitempty"`
}

// ContextResponse is a retrieved chunk in the HTTP response.
//
// swagger:model ContextResponse
type ContextResponse struct {
	// Chunk text
	Text string `json:"text"`

	// Zero-based page index in the source document
	Page int `json:"page"`

	// Cosine similarity to the question
	Score float32 `json:"score"`
}

func toContextResponses(items []rag.ContextItem) []ContextResponse {
	out := make([]ContextResponse, len(items))
	for i, item := range items {
		out[i] = ContextResponse{
			Text:  item.Text,
			Page:  item.Page,
			Score: item.Score,
		}
	}
	return out
}

// ServeHTTP handles HTTP requests for RAG queries.
//
// Ask a question about the nutrition textbook and get an answer grounded in
// the retrieved passages.
//
// swagger:route POST /api/v1/ask askQuestion
//
// # Ask a question using RAG
//
// Retrieves the top_k most similar chunks, builds a prompt from them and
// generates an answer. When generation fails the retrieved contexts are still
// returned with answer "API error." and error "generation_failed".
//
// ---
// consumes:
// - application/json
// produces:
// - application/json
// parameters:
//   - in: body
//     name: body
//     required: true
//     schema:
//     "$ref": "#/definitions/AskRequest"
//
// responses:
//
//	'200':
//	  description: Answer with the contexts it was generated from
//	  schema:
//	    "$ref": "#/definitions/AskResponse"
//	'400':
//	  description: Bad request (empty question or parameter out of range)
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'502':
//	  description: External service error (embedding service or vector index rejected the request)
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'503':
//	  description: External service temporarily unavailable
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'500':
//	  description: Internal server error
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *AskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.askService.Ask(ctx, service.AskRequest{
		Question:    req.Question,
		TopK:        req.TopK,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to process question")
		return
	}

	out := AskResponse{
		Answer:   resp.Answer,
		Contexts: toContextResponses(resp.Contexts),
	}
	if resp.GenerationErr != nil {
		logger.ErrorContext(ctx, "answer generation failed", "error", resp.GenerationErr)
		out.Answer = FallbackAnswer
		out.Error = ErrGenerationFailed
	}

	writeJSON(ctx, w, out)
}
