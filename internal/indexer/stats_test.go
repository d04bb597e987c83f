package indexer

import (
	"context"
	"path/filepath"
	"testing"

	"nutrition-rag/internal/segment"
	"nutrition-rag/internal/storage"
)

func newTestChunkRepo(t *testing.T) *storage.ChunkRepo {
	t.Helper()

	db, err := storage.New(filepath.Join(t.TempDir(), "chunks.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	if err := storage.Migrate(db); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return storage.NewChunkRepo(db)
}

func TestComputeStats(t *testing.T) {
	ctx := context.Background()
	repo := newTestChunkRepo(t)

	// Test with empty table
	stats, err := ComputeStats(ctx, repo, "fallback")
	if err != nil {
		t.Fatalf("ComputeStats() error = %v", err)
	}
	if stats.Chunks != 0 || stats.PagesWithChunks != 0 {
		t.Errorf("empty table stats = %+v", stats)
	}
	if stats.IndexVersion != "fallback" {
		t.Errorf("IndexVersion = %q, want fallback", stats.IndexVersion)
	}
	if stats.ChunkerVersion != ChunkerVersion {
		t.Errorf("ChunkerVersion = %s, want %s", stats.ChunkerVersion, ChunkerVersion)
	}

	chunks := []storage.ChunkRecord{
		{ID: "a", PageNumber: 3, Text: "a", TokenCount: 40},
		{ID: "b", PageNumber: 3, Text: "b", TokenCount: 32.5},
		{ID: "c", PageNumber: 9, Text: "c", TokenCount: 60},
	}
	if _, err := repo.ReplaceAll(ctx, chunks); err != nil {
		t.Fatalf("ReplaceAll() error = %v", err)
	}
	if _, err := repo.ReplaceAll(ctx, chunks[:2]); err != nil {
		t.Fatalf("ReplaceAll() error = %v", err)
	}
	for k, v := range map[string]string{
		MetaSourcePath:     "data/human-nutrition-text.pdf",
		MetaPageCount:      "1208",
		MetaIndexVersion:   "abc123",
		MetaEmbeddingModel: "voyage-3",
		MetaDimension:      "1024",
	} {
		if err := repo.SetMeta(ctx, k, v); err != nil {
			t.Fatalf("SetMeta() error = %v", err)
		}
	}

	stats, err = ComputeStats(ctx, repo, "fallback")
	if err != nil {
		t.Fatalf("ComputeStats() error = %v", err)
	}

	want := IndexingStats{
		SourcePath:      "data/human-nutrition-text.pdf",
		Pages:           1208,
		PagesWithChunks: 1,
		Chunks:          2,
		StaleChunks:     1,
		ChunkTokenStats: ChunkTokenStats{Min: 32.5, Max: 40, Mean: 36.25, P95: 40},
		EmbeddingModel:  "voyage-3",
		Dimension:       1024,
		ChunkerVersion:  ChunkerVersion,
		IndexVersion:    "abc123",
	}
	if *stats != want {
		t.Errorf("ComputeStats() = %+v, want %+v", *stats, want)
	}
}

func TestIndexVersion(t *testing.T) {
	base := IndexVersion(&segment.Segmenter{ChunkSize: 10, MinTokenLength: 30}, "voyage-3")

	tests := []struct {
		name  string
		seg   *segment.Segmenter
		model string
		same  bool
	}{
		{"identical", &segment.Segmenter{ChunkSize: 10, MinTokenLength: 30}, "voyage-3", true},
		{"chunk size", &segment.Segmenter{ChunkSize: 8, MinTokenLength: 30}, "voyage-3", false},
		{"threshold", &segment.Segmenter{ChunkSize: 10, MinTokenLength: 20}, "voyage-3", false},
		{"model", &segment.Segmenter{ChunkSize: 10, MinTokenLength: 30}, "voyage-3-lite", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IndexVersion(tt.seg, tt.model)
			if (got == base) != tt.same {
				t.Errorf("IndexVersion() = %s, base %s, same = %v", got, base, tt.same)
			}
			if len(got) != 16 {
				t.Errorf("IndexVersion() length = %d, want 16", len(got))
			}
		})
	}
}

func TestComputeTokenStats(t *testing.T) {
	tests := []struct {
		name        string
		tokenCounts []float64
		want        ChunkTokenStats
	}{
		{
			name:        "empty",
			tokenCounts: []float64{},
			want:        ChunkTokenStats{},
		},
		{
			name:        "single value",
			tokenCounts: []float64{10},
			want:        ChunkTokenStats{Min: 10, Max: 10, Mean: 10, P95: 10},
		},
		{
			name:        "multiple values",
			tokenCounts: []float64{5, 10, 15, 20, 25},
			want: ChunkTokenStats{
				Min:  5,
				Max:  25,
				Mean: 15,
				P95:  25, // 95th percentile of 5 values = index 4 (0-indexed) = 25
			},
		},
		{
			name:        "unsorted fractional values",
			tokenCounts: []float64{30.25, 5.5, 20, 10, 15},
			want:        ChunkTokenStats{Min: 5.5, Max: 30.25, Mean: 16.15, P95: 30.25},
		},
		{
			name:        "many values for p95",
			tokenCounts: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20},
			want:        ChunkTokenStats{Min: 1, Max: 20, Mean: 10.5, P95: 20},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeTokenStats(tt.tokenCounts)
			if got != tt.want {
				t.Errorf("computeTokenStats() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
