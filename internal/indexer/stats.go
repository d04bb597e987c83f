package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"nutrition-rag/internal/segment"
	"nutrition-rag/internal/storage"
)

// ChunkerVersion is the version identifier for the segmenter.
// Update this when chunking logic changes significantly.
const ChunkerVersion = "v1.0"

// IndexingStats describes the current chunk table.
type IndexingStats struct {
	// SourcePath is the document the table was built from.
	SourcePath string `json:"source_path,omitempty"`
	// Pages is the number of pages extracted from the document.
	Pages int `json:"pages"`
	// PagesWithChunks is the number of distinct pages contributing at least one chunk.
	PagesWithChunks int `json:"pages_with_chunks"`
	// Chunks is the number of rows in the chunk table.
	Chunks int `json:"chunks"`
	// StaleChunks counts removed chunks whose vectors have not been deleted yet.
	StaleChunks int `json:"stale_chunks"`
	// ChunkTokenStats contains statistics about approximate token counts per chunk.
	ChunkTokenStats ChunkTokenStats `json:"chunk_token_stats"`
	// EmbeddingModel is the model used by the last embed run.
	EmbeddingModel string `json:"embedding_model,omitempty"`
	// Dimension is the embedding dimension of the last embed run.
	Dimension int `json:"embedding_dimension,omitempty"`
	// ChunkerVersion is the version of the segmenter used.
	ChunkerVersion string `json:"chunker_version"`
	// IndexVersion is a hash identifying the index build (chunker + embedding model + params).
	IndexVersion string `json:"index_version"`
}

// ChunkTokenStats contains statistics about token counts in chunks.
type ChunkTokenStats struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
	P95  float64 `json:"p95"`
}

// IndexVersion hashes the segmenter parameters and embedding model. Two
// builds with the same version produce the same chunks and vectors.
func IndexVersion(s *segment.Segmenter, embeddingModel string) string {
	input := fmt.Sprintf("%s|%s|chunkSize=%d|minTokenLength=%g",
		ChunkerVersion, embeddingModel, s.ChunkSize, s.MinTokenLength)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16] // 16 hex chars = 64 bits
}

// Stats computes indexing statistics from the chunk table.
func (p *Pipeline) Stats(ctx context.Context) (*IndexingStats, error) {
	return ComputeStats(ctx, p.chunkRepo, IndexVersion(p.segmenter, p.cfg.EmbeddingModel))
}

// ComputeStats reads the chunk table and its run metadata. indexVersion is
// reported when the table carries none.
func ComputeStats(ctx context.Context, chunkRepo storage.ChunkStore, indexVersion string) (*IndexingStats, error) {
	chunks, err := chunkRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	stale, err := chunkRepo.ListStaleIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get stale chunks: %w", err)
	}

	stats := &IndexingStats{
		Chunks:         len(chunks),
		StaleChunks:    len(stale),
		ChunkerVersion: ChunkerVersion,
		IndexVersion:   indexVersion,
	}

	pages := make(map[int]struct{})
	tokenCounts := make([]float64, 0, len(chunks))
	for _, c := range chunks {
		pages[c.PageNumber] = struct{}{}
		tokenCounts = append(tokenCounts, c.TokenCount)
	}
	stats.PagesWithChunks = len(pages)
	stats.ChunkTokenStats = computeTokenStats(tokenCounts)

	meta := func(key string) (string, error) {
		v, err := chunkRepo.GetMeta(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil
		}
		return v, err
	}

	if stats.SourcePath, err = meta(MetaSourcePath); err != nil {
		return nil, err
	}
	if stats.EmbeddingModel, err = meta(MetaEmbeddingModel); err != nil {
		return nil, err
	}
	if v, err := meta(MetaIndexVersion); err != nil {
		return nil, err
	} else if v != "" {
		stats.IndexVersion = v
	}
	if v, err := meta(MetaPageCount); err != nil {
		return nil, err
	} else if n, convErr := strconv.Atoi(v); convErr == nil {
		stats.Pages = n
	}
	if v, err := meta(MetaDimension); err != nil {
		return nil, err
	} else if n, convErr := strconv.Atoi(v); convErr == nil {
		stats.Dimension = n
	}

	return stats, nil
}

// computeTokenStats computes min, max, mean, and p95 from token counts.
func computeTokenStats(tokenCounts []float64) ChunkTokenStats {
	if len(tokenCounts) == 0 {
		return ChunkTokenStats{}
	}

	// Sort for percentile calculation
	sorted := make([]float64, len(tokenCounts))
	copy(sorted, tokenCounts)
	sort.Float64s(sorted)

	sum := 0.0
	for _, count := range tokenCounts {
		sum += count
	}
	mean := sum / float64(len(tokenCounts))

	p95Index := int(math.Ceil(float64(len(sorted)) * 0.95))
	if p95Index >= len(sorted) {
		p95Index = len(sorted) - 1
	}

	return ChunkTokenStats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: math.Round(mean*100) / 100, // Round to 2 decimal places
		P95:  sorted[p95Index],
	}
}
