package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"

	"nutrition-rag/internal/apperr"
	"nutrition-rag/internal/contextutil"
)

// ChromemStore implements VectorStore on an embedded chromem-go database.
// With an empty path the database lives in memory only.
type ChromemStore struct {
	db   *chromem.DB
	opts Options

	mu   sync.Mutex
	dims map[string]int
}

// NewChromemStore opens (or creates) a chromem-go database at path.
func NewChromemStore(path string, opts Options) (*ChromemStore, error) {
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem database at %s: %w", path, err)
		}
	}

	return &ChromemStore{
		db:   db,
		opts: opts.withDefaults(),
		dims: make(map[string]int),
	}, nil
}

// noEmbedding keeps chromem from ever embedding text itself; every document
// and query arrives with a precomputed vector.
func noEmbedding(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("embedding function not available: vectors must be precomputed")
}

func (s *ChromemStore) collection(name string) *chromem.Collection {
	return s.db.GetCollection(name, noEmbedding)
}

// EnsureIndex creates the collection when missing and validates its vector size otherwise.
func (s *ChromemStore) EnsureIndex(ctx context.Context, name string, dimension int) (Index, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if dimension <= 0 {
		return Index{}, fmt.Errorf("dimension must be greater than 0")
	}

	c := s.collection(name)
	if c == nil {
		logger.InfoContext(ctx, "creating collection", "collection", name, "vector_size", dimension)
		if _, err := s.db.CreateCollection(name, map[string]string{"distance": "cosine"}, noEmbedding); err != nil {
			return Index{}, fmt.Errorf("failed to create collection: %w", err)
		}
		s.setDimension(name, dimension)
		return Index{Name: name, Dimension: dimension, Created: true}, nil
	}

	if err := s.checkDimension(ctx, name, c, dimension); err != nil {
		return Index{}, err
	}

	logger.InfoContext(ctx, "collection validated", "collection", name, "vector_size", dimension)
	return Index{Name: name, Dimension: dimension}, nil
}

func (s *ChromemStore) setDimension(name string, dimension int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dims[name] = dimension
}

func (s *ChromemStore) knownDimension(name string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dims[name]
	return d, ok
}

// checkDimension compares dimension with the collection's. Collections reopened
// from disk are checked with a nearest-neighbour query, which fails when the
// stored vectors have a different length.
func (s *ChromemStore) checkDimension(ctx context.Context, name string, c *chromem.Collection, dimension int) error {
	mismatch := func(have int) error {
		return apperr.New(apperr.KindDataContract, "ensure index",
			fmt.Errorf("%w: collection %q has %d, want %d", ErrDimensionMismatch, name, have, dimension))
	}

	if have, ok := s.knownDimension(name); ok {
		if have != dimension {
			return mismatch(have)
		}
		return nil
	}

	if c.Count() == 0 {
		s.setDimension(name, dimension)
		return nil
	}

	ones := make([]float32, dimension)
	for i := range ones {
		ones[i] = 1
	}
	res, err := c.QueryEmbedding(ctx, ones, 1, nil, nil)
	if err != nil {
		return apperr.New(apperr.KindDataContract, "ensure index",
			fmt.Errorf("%w: collection %q does not hold %d-dimensional vectors: %v", ErrDimensionMismatch, name, dimension, err))
	}
	if len(res) > 0 && len(res[0].Embedding) != dimension {
		return mismatch(len(res[0].Embedding))
	}

	s.setDimension(name, dimension)
	return nil
}

// Upsert adds or overwrites documents by ID in batches.
func (s *ChromemStore) Upsert(ctx context.Context, index string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	c := s.collection(index)
	if c == nil {
		return apperr.Errorf(apperr.KindDataContract, "upsert", "collection %q does not exist", index)
	}

	dimension, known := s.knownDimension(index)
	return s.opts.upsertBatches(ctx, index, records, func(callCtx context.Context, batch []Record) error {
		docs := make([]chromem.Document, 0, len(batch))
		for _, r := range batch {
			if known && len(r.Vector) != dimension {
				return apperr.New(apperr.KindDataContract, "upsert",
					fmt.Errorf("%w: record %s has %d, want %d", ErrDimensionMismatch, r.ID, len(r.Vector), dimension))
			}
			meta, err := encodeMetadata(r.Metadata)
			if err != nil {
				return apperr.New(apperr.KindDataContract, "upsert", fmt.Errorf("invalid metadata for %s: %w", r.ID, err))
			}
			text, _ := MetaString(r.Metadata, MetaText)
			docs = append(docs, chromem.Document{
				ID:        r.ID,
				Metadata:  meta,
				Embedding: append([]float32(nil), r.Vector...),
				Content:   text,
			})
		}
		if err := c.AddDocuments(callCtx, docs, runtime.NumCPU()); err != nil {
			return fmt.Errorf("failed to add documents: %w", err)
		}
		return nil
	})
}

// Query returns the topK most similar documents. An empty collection yields no matches.
func (s *ChromemStore) Query(ctx context.Context, index string, vector []float32, topK int) ([]Match, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if topK <= 0 {
		return nil, fmt.Errorf("topK must be greater than 0")
	}

	c := s.collection(index)
	if c == nil {
		return nil, apperr.Errorf(apperr.KindDataContract, "query", "collection %q does not exist", index)
	}
	d, known := s.knownDimension(index)
	if known && len(vector) != d {
		return nil, apperr.New(apperr.KindDataContract, "query",
			fmt.Errorf("%w: query vector has %d, index has %d", ErrDimensionMismatch, len(vector), d))
	}

	n := min(topK, c.Count())
	if n == 0 {
		return []Match{}, nil
	}

	res, err := c.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		logger.ErrorContext(ctx, "failed to query documents", "collection", index, "top_k", topK, "error", err)
		// Reopened collections have no recorded dimension; chromem rejects
		// vectors of the wrong length.
		if !known && ctx.Err() == nil {
			return nil, apperr.New(apperr.KindDataContract, "query",
				fmt.Errorf("%w: collection %q does not hold %d-dimensional vectors: %v", ErrDimensionMismatch, index, len(vector), err))
		}
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	if !known {
		s.setDimension(index, len(vector))
	}

	matches := make([]Match, 0, len(res))
	for _, r := range res {
		matches = append(matches, Match{
			ID:       r.ID,
			Score:    r.Similarity,
			Metadata: decodeMetadata(r.Metadata),
		})
	}

	logger.DebugContext(ctx, "query completed", "collection", index, "top_k", topK, "results", len(matches))
	return matches, nil
}

// Delete removes documents by ID. Unknown IDs are ignored.
func (s *ChromemStore) Delete(ctx context.Context, index string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	c := s.collection(index)
	if c == nil {
		return nil
	}
	if err := c.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}

	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "deleted documents", "collection", index, "count", len(ids))
	return nil
}

// IndexExists reports whether the collection exists.
func (s *ChromemStore) IndexExists(_ context.Context, name string) (bool, error) {
	return s.collection(name) != nil, nil
}

// IndexInfo returns the collection's document count and known dimension.
func (s *ChromemStore) IndexInfo(_ context.Context, name string) (*IndexInfo, error) {
	c := s.collection(name)
	if c == nil {
		return nil, apperr.Errorf(apperr.KindDataContract, "index info", "collection %q does not exist", name)
	}
	d, _ := s.knownDimension(name)
	return &IndexInfo{
		Name:      name,
		Dimension: d,
		Count:     c.Count(),
		Status:    "ready",
	}, nil
}

// encodeMetadata stores each value as JSON so numbers survive chromem's
// string-only metadata.
func encodeMetadata(meta map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", k, err)
		}
		out[k] = string(b)
	}
	return out, nil
}

func decodeMetadata(meta map[string]string) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			out[k] = v
			continue
		}
		out[k] = decoded
	}
	return out
}
