package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_store.go -package=mocks nutrition-rag/internal/vectorstore VectorStore

import (
	"context"
	"errors"
)

// Metadata keys stored with every chunk vector.
const (
	MetaPageNumber = "page_number"
	MetaText       = "sentence_chunk"
	MetaCharCount  = "chunk_char_count"
	MetaWordCount  = "chunk_word_count"
	MetaTokenCount = "chunk_token_count"
)

// ErrDimensionMismatch is wrapped by errors reporting that an existing index
// was created for a different vector dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Record is a vector to upsert with its metadata.
type Record struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// Match is one query result. Score is cosine similarity.
type Match struct {
	ID       string
	Score    float32
	Metadata map[string]any
}

// Index is a handle to an ensured index.
type Index struct {
	Name      string
	Dimension int
	Created   bool
}

// IndexInfo describes an existing index.
type IndexInfo struct {
	Name      string
	Dimension int
	Count     int
	Status    string
}

// VectorStore defines the interface for vector index operations.
type VectorStore interface {
	// EnsureIndex returns the named index, creating a cosine index of the
	// given dimension when missing. An existing index with another dimension
	// yields an error wrapping ErrDimensionMismatch.
	EnsureIndex(ctx context.Context, name string, dimension int) (Index, error)

	// Upsert inserts or overwrites records by ID in batches. Each batch
	// commits on its own; a failed batch leaves earlier batches in place.
	Upsert(ctx context.Context, index string, records []Record) error

	// Query returns up to topK nearest records by descending score, with metadata.
	Query(ctx context.Context, index string, vector []float32, topK int) ([]Match, error)

	// Delete removes records by ID.
	Delete(ctx context.Context, index string, ids []string) error

	// IndexExists reports whether the named index exists.
	IndexExists(ctx context.Context, name string) (bool, error)

	// IndexInfo describes the named index.
	IndexInfo(ctx context.Context, name string) (*IndexInfo, error)
}
