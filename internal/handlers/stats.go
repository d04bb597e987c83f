package handlers

import (
	"context"
	"net/http"

	"nutrition-rag/internal/contextutil"
	"nutrition-rag/internal/indexer"
)

// StatsProvider reports statistics about the current index build.
// *indexer.Pipeline satisfies it.
type StatsProvider interface {
	Stats(ctx context.Context) (*indexer.IndexingStats, error)
}

// StatsHandler serves indexing statistics.
type StatsHandler struct {
	stats StatsProvider
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(stats StatsProvider) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// ServeHTTP returns the indexing statistics of the chunk table.
//
// swagger:route GET /api/v1/stats indexStats
//
// # Indexing statistics
//
// Page and chunk counts, chunk token statistics and the index version hash.
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Statistics of the last build
//	'500':
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodGet {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	stats, err := h.stats.Stats(ctx)
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to compute statistics")
		return
	}

	writeJSON(ctx, w, stats)
}
