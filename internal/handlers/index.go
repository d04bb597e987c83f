package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"nutrition-rag/internal/contextutil"
)

// IndexRunner rebuilds the index end to end. *indexer.Pipeline satisfies it.
type IndexRunner interface {
	All(ctx context.Context) error
}

// IndexHandler handles HTTP requests for triggering re-indexing.
type IndexHandler struct {
	runner IndexRunner

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// NewIndexHandler creates a new IndexHandler.
func NewIndexHandler(runner IndexRunner) *IndexHandler {
	return &IndexHandler{runner: runner}
}

// IndexResponse represents the response from the index endpoint.
//
// swagger:model IndexResponse
type IndexResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// ServeHTTP starts a rebuild in the background and returns immediately.
//
// swagger:route POST /api/v1/index reindex
//
// # Trigger re-indexing
//
// Runs download, ingest, embed and upsert. Only one build runs at a time.
//
// ---
// produces:
// - application/json
// responses:
//
//	'202':
//	  schema:
//	    "$ref": "#/definitions/IndexResponse"
//	'409':
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *IndexHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		logger.WarnContext(ctx, "re-indexing already in progress")
		writeError(w, http.StatusConflict, "Indexing already in progress")
		return
	}
	h.running = true
	h.done = make(chan struct{})
	done := h.done
	h.mu.Unlock()

	logger.InfoContext(ctx, "re-indexing triggered via API")

	// The build outlives the request; keep the request logger only.
	indexCtx := contextutil.WithLogger(context.Background(), logger)
	go func() {
		defer func() {
			h.mu.Lock()
			h.running = false
			h.mu.Unlock()
			close(done)
		}()
		if err := h.runner.All(indexCtx); err != nil {
			logger.ErrorContext(indexCtx, "re-indexing failed", "error", err)
			return
		}
		logger.InfoContext(indexCtx, "re-indexing completed successfully")
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(IndexResponse{
		Message: "Indexing started. Check server logs for progress.",
		Status:  "accepted",
	})
}

// Wait blocks until the current build, if any, finishes.
func (h *IndexHandler) Wait() {
	h.mu.Lock()
	done := h.done
	h.mu.Unlock()
	if done != nil {
		<-done
	}
}
