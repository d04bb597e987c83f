package handlers

import (
	"encoding/json"
	"net/http"

	"nutrition-rag/internal/contextutil"
	"nutrition-rag/internal/service"
)

// RetrieveHandler returns the context chunks for a question without generating an answer.
type RetrieveHandler struct {
	askService service.AskService
}

// NewRetrieveHandler creates a new RetrieveHandler.
func NewRetrieveHandler(askService service.AskService) *RetrieveHandler {
	return &RetrieveHandler{askService: askService}
}

// RetrieveRequest is the payload for context-only queries.
//
// swagger:model RetrieveRequest
type RetrieveRequest struct {
	Question string `json:"question"`
	TopK     *int   `json:"top_k,omitempty"`
}

// RetrieveResponse lists the retrieved chunks.
//
// swagger:model RetrieveResponse
type RetrieveResponse struct {
	Contexts []ContextResponse `json:"contexts"`
}

// ServeHTTP handles context-only queries.
//
// swagger:route POST /api/v1/retrieve retrieveContext
//
// # Retrieve context for a question
//
// ---
// consumes:
// - application/json
// produces:
// - application/json
// responses:
//
//	'200':
//	  schema:
//	    "$ref": "#/definitions/RetrieveResponse"
//	'400':
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'502':
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'503':
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *RetrieveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req RetrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	items, err := h.askService.Retrieve(ctx, service.RetrieveRequest{
		Question: req.Question,
		TopK:     req.TopK,
	})
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to retrieve context")
		return
	}

	writeJSON(ctx, w, RetrieveResponse{Contexts: toContextResponses(items)})
}
