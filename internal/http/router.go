package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"nutrition-rag/internal/handlers"
	"nutrition-rag/internal/service"
	"nutrition-rag/internal/vectorstore"
)

// DefaultRequestTimeout bounds a single request, generation included.
const DefaultRequestTimeout = 2 * time.Minute

// Deps holds dependencies for the HTTP router.
type Deps struct {
	AskService  service.AskService
	Stats       handlers.StatsProvider
	VectorStore vectorstore.VectorStore
	IndexName   string
	// Indexer enables POST /api/v1/index when set.
	Indexer *handlers.IndexHandler
	// RequestTimeout defaults to DefaultRequestTimeout.
	RequestTimeout time.Duration
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(CORS)

	askHandler := handlers.NewAskHandler(deps.AskService)
	retrieveHandler := handlers.NewRetrieveHandler(deps.AskService)
	statsHandler := handlers.NewStatsHandler(deps.Stats)
	healthHandler := handlers.NewHealthHandler(deps.VectorStore, deps.IndexName)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", healthHandler)
		r.Route("/v1", func(r chi.Router) {
			r.Method(http.MethodPost, "/ask", askHandler)
			r.Method(http.MethodPost, "/retrieve", retrieveHandler)
			r.Method(http.MethodGet, "/stats", statsHandler)
			if deps.Indexer != nil {
				r.Method(http.MethodPost, "/index", deps.Indexer)
			}
		})
	})

	return r
}
