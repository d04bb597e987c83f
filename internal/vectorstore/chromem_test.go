package vectorstore

import (
	"context"
	"errors"
	"math"
	"testing"

	"nutrition-rag/internal/apperr"
)

func newTestChromem(t *testing.T) *ChromemStore {
	t.Helper()
	store, err := NewChromemStore("", Options{BatchSize: 2})
	if err != nil {
		t.Fatalf("NewChromemStore() error = %v", err)
	}
	return store
}

func chunkRecord(page int, text string, vec ...float32) Record {
	return Record{
		ID:     ChunkID(page, text),
		Vector: vec,
		Metadata: map[string]any{
			MetaPageNumber: page,
			MetaText:       text,
			MetaTokenCount: float64(len(text)) / 4,
		},
	}
}

func TestChromemStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestChromem(t)

	idx, err := store.EnsureIndex(ctx, "nutrition", 3)
	if err != nil {
		t.Fatalf("EnsureIndex() error = %v", err)
	}
	if !idx.Created {
		t.Error("EnsureIndex() Created = false for a new collection")
	}

	records := []Record{
		chunkRecord(10, "Protein is made of amino acids.", 1, 0, 0),
		chunkRecord(11, "Fibre aids digestion.", 0, 1, 0),
		chunkRecord(12, "Calcium builds bones.", 0, 0, 1),
	}
	if err := store.Upsert(ctx, "nutrition", records); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	matches, err := store.Query(ctx, "nutrition", []float32{0, 2, 0}, 1)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("Query() returned %d matches, want 1", len(matches))
	}
	if matches[0].ID != records[1].ID {
		t.Errorf("top match = %s, want %s", matches[0].ID, records[1].ID)
	}
	if math.Abs(float64(matches[0].Score)-1) > 1e-5 {
		t.Errorf("top score = %v, want ~1", matches[0].Score)
	}
	if page, ok := MetaInt(matches[0].Metadata, MetaPageNumber); !ok || page != 11 {
		t.Errorf("page_number = %v, want 11", matches[0].Metadata[MetaPageNumber])
	}
	if text, _ := MetaString(matches[0].Metadata, MetaText); text != "Fibre aids digestion." {
		t.Errorf("sentence_chunk = %q", text)
	}

	all, err := store.Query(ctx, "nutrition", []float32{1, 1, 0}, 10)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Query() with topK > count returned %d, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Score > all[i-1].Score {
			t.Errorf("scores not descending: %v", all)
		}
	}
}

func TestChromemStore_UpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	store := newTestChromem(t)
	if _, err := store.EnsureIndex(ctx, "nutrition", 2); err != nil {
		t.Fatalf("EnsureIndex() error = %v", err)
	}

	r := chunkRecord(1, "Water is essential.", 1, 0)
	for range 2 {
		if err := store.Upsert(ctx, "nutrition", []Record{r}); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	info, err := store.IndexInfo(ctx, "nutrition")
	if err != nil {
		t.Fatalf("IndexInfo() error = %v", err)
	}
	if info.Count != 1 {
		t.Errorf("Count = %d after re-upsert, want 1", info.Count)
	}
	if info.Dimension != 2 {
		t.Errorf("Dimension = %d, want 2", info.Dimension)
	}
}

func TestChromemStore_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	store := newTestChromem(t)
	if _, err := store.EnsureIndex(ctx, "nutrition", 3); err != nil {
		t.Fatalf("EnsureIndex() error = %v", err)
	}

	_, err := store.EnsureIndex(ctx, "nutrition", 4)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("EnsureIndex() error = %v, want ErrDimensionMismatch", err)
	}
	if !errors.Is(err, apperr.ErrDataContract) {
		t.Errorf("EnsureIndex() error = %v, want data contract kind", err)
	}

	err = store.Upsert(ctx, "nutrition", []Record{chunkRecord(1, "short", 1, 0)})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Upsert() error = %v, want ErrDimensionMismatch", err)
	}

	idx, err := store.EnsureIndex(ctx, "nutrition", 3)
	if err != nil {
		t.Fatalf("EnsureIndex() same dimension error = %v", err)
	}
	if idx.Created {
		t.Error("EnsureIndex() Created = true for an existing collection")
	}
}

func TestChromemStore_ReopenedDimensionCheck(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewChromemStore(dir, Options{})
	if err != nil {
		t.Fatalf("NewChromemStore() error = %v", err)
	}
	if _, err := store.EnsureIndex(ctx, "nutrition", 3); err != nil {
		t.Fatalf("EnsureIndex() error = %v", err)
	}
	if err := store.Upsert(ctx, "nutrition", []Record{chunkRecord(1, "Iron carries oxygen.", 1, 2, 3)}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	reopened, err := NewChromemStore(dir, Options{})
	if err != nil {
		t.Fatalf("NewChromemStore() reopen error = %v", err)
	}
	if _, err := reopened.EnsureIndex(ctx, "nutrition", 5); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("EnsureIndex() after reopen error = %v, want ErrDimensionMismatch", err)
	}
	if _, err := reopened.EnsureIndex(ctx, "nutrition", 3); err != nil {
		t.Errorf("EnsureIndex() after reopen error = %v", err)
	}
}

func TestChromemStore_ReopenedQueryDimension(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewChromemStore(dir, Options{})
	if err != nil {
		t.Fatalf("NewChromemStore() error = %v", err)
	}
	if _, err := store.EnsureIndex(ctx, "nutrition", 3); err != nil {
		t.Fatalf("EnsureIndex() error = %v", err)
	}
	if err := store.Upsert(ctx, "nutrition", []Record{chunkRecord(1, "Iron carries oxygen.", 1, 2, 3)}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	reopened, err := NewChromemStore(dir, Options{})
	if err != nil {
		t.Fatalf("NewChromemStore() reopen error = %v", err)
	}

	_, err = reopened.Query(ctx, "nutrition", []float32{1, 0, 0, 0, 0}, 1)
	if !errors.Is(err, apperr.ErrDataContract) {
		t.Errorf("Query() error = %v, want data contract", err)
	}
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Query() error = %v, want ErrDimensionMismatch", err)
	}

	matches, err := reopened.Query(ctx, "nutrition", []float32{1, 2, 3}, 1)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("Query() returned %d matches, want 1", len(matches))
	}
}

func TestChromemStore_EmptyCollection(t *testing.T) {
	ctx := context.Background()
	store := newTestChromem(t)
	if _, err := store.EnsureIndex(ctx, "nutrition", 2); err != nil {
		t.Fatalf("EnsureIndex() error = %v", err)
	}

	matches, err := store.Query(ctx, "nutrition", []float32{1, 0}, 4)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("Query() on empty collection = %v, want none", matches)
	}

	if _, err := store.Query(ctx, "missing", []float32{1, 0}, 4); !errors.Is(err, apperr.ErrDataContract) {
		t.Errorf("Query() on missing collection error = %v, want data contract", err)
	}
}

func TestChromemStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := newTestChromem(t)
	if _, err := store.EnsureIndex(ctx, "nutrition", 2); err != nil {
		t.Fatalf("EnsureIndex() error = %v", err)
	}

	keep := chunkRecord(1, "keep", 1, 0)
	drop := chunkRecord(2, "drop", 0, 1)
	if err := store.Upsert(ctx, "nutrition", []Record{keep, drop}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := store.Delete(ctx, "nutrition", []string{drop.ID}); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	matches, err := store.Query(ctx, "nutrition", []float32{0, 1}, 5)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 1 || matches[0].ID != keep.ID {
		t.Errorf("Query() after delete = %v, want only %s", matches, keep.ID)
	}

	if err := store.Delete(ctx, "nutrition", nil); err != nil {
		t.Errorf("Delete(nil) error = %v", err)
	}
}

func TestChromemStore_IndexExists(t *testing.T) {
	ctx := context.Background()
	store := newTestChromem(t)

	ok, err := store.IndexExists(ctx, "nutrition")
	if err != nil || ok {
		t.Fatalf("IndexExists() = %v, %v, want false", ok, err)
	}
	if _, err := store.EnsureIndex(ctx, "nutrition", 2); err != nil {
		t.Fatalf("EnsureIndex() error = %v", err)
	}
	ok, err = store.IndexExists(ctx, "nutrition")
	if err != nil || !ok {
		t.Errorf("IndexExists() = %v, %v, want true", ok, err)
	}
}

func TestChunkID(t *testing.T) {
	a := ChunkID(5, "Vitamin D is synthesised in skin.")
	if a != ChunkID(5, "Vitamin D is synthesised in skin.") {
		t.Error("ChunkID() is not stable")
	}
	if a == ChunkID(6, "Vitamin D is synthesised in skin.") {
		t.Error("ChunkID() should depend on page")
	}
	if a == ChunkID(5, "Vitamin D is synthesised in the skin.") {
		t.Error("ChunkID() should depend on text")
	}
	if len(a) != 36 {
		t.Errorf("ChunkID() = %q, want UUID form", a)
	}
}
