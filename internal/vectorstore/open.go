package vectorstore

import (
	"fmt"

	"nutrition-rag/internal/apperr"
)

// Backend names accepted by Open.
const (
	BackendChromem = "chromem"
	BackendQdrant  = "qdrant"
)

// OpenConfig selects and configures a backend.
type OpenConfig struct {
	Backend string
	// ChromemPath is the chromem-go persistence directory. Empty keeps the index in memory.
	ChromemPath string
	Qdrant      QdrantConfig
	Options     Options
}

// Open returns the configured store and a function that releases it.
func Open(cfg OpenConfig) (VectorStore, func() error, error) {
	switch cfg.Backend {
	case BackendChromem, "":
		store, err := NewChromemStore(cfg.ChromemPath, cfg.Options)
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return nil }, nil
	case BackendQdrant:
		qc := cfg.Qdrant
		qc.Options = cfg.Options
		store, err := NewQdrantStore(qc)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, apperr.New(apperr.KindConfiguration, "open vector store",
			fmt.Errorf("unknown backend %q", cfg.Backend))
	}
}
