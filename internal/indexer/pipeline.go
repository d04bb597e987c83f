package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"nutrition-rag/internal/apperr"
	"nutrition-rag/internal/contextutil"
	"nutrition-rag/internal/extract"
	"nutrition-rag/internal/matrix"
	"nutrition-rag/internal/segment"
	"nutrition-rag/internal/storage"
	"nutrition-rag/internal/vectorstore"
)

// Meta keys written to the chunk table by the ingest and embed stages.
const (
	MetaSourcePath       = "source_path"
	MetaPageCount        = "page_count"
	MetaIndexVersion     = "index_version"
	MetaEmbeddingModel   = "embedding_model"
	MetaDimension        = "embedding_dimension"
	MetaChunkFingerprint = "chunk_fingerprint"
)

// Embedder produces document embeddings, one per text, in input order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Config locates the pipeline's inputs and outputs.
type Config struct {
	// SourceURL is where Download fetches the document from. Optional.
	SourceURL string
	// SourcePath is the local document (.pdf, .md or .txt).
	SourcePath string
	// MatrixPath is the .npy embedding matrix written by Embed.
	MatrixPath string
	// Index is the vector index name.
	Index string
	// EmbeddingModel names the model for the index version hash.
	EmbeddingModel string
}

// Pipeline runs the build stages: download, ingest, embed and upsert.
// Each stage reads the previous stage's persisted output, so stages can be
// run separately.
type Pipeline struct {
	cfg         Config
	segmenter   *segment.Segmenter
	chunkRepo   storage.ChunkStore
	embedder    Embedder
	vectorStore vectorstore.VectorStore
	httpClient  *http.Client
}

// NewPipeline creates a new build pipeline.
func NewPipeline(
	cfg Config,
	segmenter *segment.Segmenter,
	chunkRepo storage.ChunkStore,
	embedder Embedder,
	vectorStore vectorstore.VectorStore,
) *Pipeline {
	if segmenter == nil {
		segmenter = segment.NewSegmenter()
	}
	return &Pipeline{
		cfg:         cfg,
		segmenter:   segmenter,
		chunkRepo:   chunkRepo,
		embedder:    embedder,
		vectorStore: vectorStore,
		httpClient:  http.DefaultClient,
	}
}

// WithHTTPClient sets the client used by Download.
func (p *Pipeline) WithHTTPClient(hc *http.Client) *Pipeline {
	p.httpClient = hc
	return p
}

// IngestResult summarises an ingest run.
type IngestResult struct {
	Pages  int
	Chunks int
	Stale  int
}

// UpsertResult summarises an upsert run.
type UpsertResult struct {
	Upserted  int
	Deleted   int
	Dimension int
	Created   bool
}

// Download fetches the source document when it is not present locally.
func (p *Pipeline) Download(ctx context.Context) (bool, error) {
	if p.cfg.SourceURL == "" {
		return false, apperr.Errorf(apperr.KindConfiguration, "download", "no source URL configured")
	}
	return extract.Download(ctx, p.httpClient, p.cfg.SourceURL, p.cfg.SourcePath)
}

// Ingest extracts pages, segments them into chunks and replaces the chunk table.
func (p *Pipeline) Ingest(ctx context.Context) (IngestResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	extractor, err := extract.ForPath(p.cfg.SourcePath)
	if err != nil {
		return IngestResult{}, apperr.New(apperr.KindConfiguration, "ingest", err)
	}

	pages, err := extractor.Extract(ctx, p.cfg.SourcePath)
	if err != nil {
		return IngestResult{}, fmt.Errorf("failed to extract pages: %w", err)
	}
	logger.InfoContext(ctx, "extracted pages", "path", p.cfg.SourcePath, "pages", len(pages))

	var emptyPages, filteredPages int
	chunks := make([]segment.Chunk, 0, len(pages))
	for _, page := range pages {
		stats := pageStats(page)
		pageChunks := p.segmenter.SegmentPage(page)
		switch {
		case stats.CharCount == 0:
			emptyPages++
		case len(pageChunks) == 0:
			filteredPages++
		}
		logger.DebugContext(ctx, "segmented page",
			"page", page.Number,
			"chars", stats.CharCount,
			"words", stats.WordCount,
			"sentences_raw", stats.SentenceCountRaw,
			"chunks", len(pageChunks),
		)
		chunks = append(chunks, pageChunks...)
	}

	records := chunkRecords(chunks)
	stale, err := p.chunkRepo.ReplaceAll(ctx, records)
	if err != nil {
		return IngestResult{}, fmt.Errorf("failed to write chunk table: %w", err)
	}

	meta := map[string]string{
		MetaSourcePath:   p.cfg.SourcePath,
		MetaPageCount:    strconv.Itoa(len(pages)),
		MetaIndexVersion: IndexVersion(p.segmenter, p.cfg.EmbeddingModel),
	}
	for k, v := range meta {
		if err := p.chunkRepo.SetMeta(ctx, k, v); err != nil {
			return IngestResult{}, err
		}
	}

	logger.InfoContext(ctx, "ingest completed",
		"pages", len(pages),
		"empty_pages", emptyPages,
		"fully_filtered_pages", filteredPages,
		"chunks", len(records),
		"stale", stale,
	)
	return IngestResult{Pages: len(pages), Chunks: len(records), Stale: stale}, nil
}

// pageStats computes page statistics on the page's normalized text.
func pageStats(page extract.Page) extract.PageStats {
	return extract.Stats(extract.Page{Number: page.Number, Text: segment.Normalize(page.Text)})
}

// chunkRecords assigns content-derived IDs. Repeated page+text pairs get an
// occurrence suffix so every row keeps a unique ID.
func chunkRecords(chunks []segment.Chunk) []storage.ChunkRecord {
	seen := make(map[string]int, len(chunks))
	records := make([]storage.ChunkRecord, 0, len(chunks))
	for i, c := range chunks {
		base := vectorstore.ChunkID(c.PageNumber, c.Text)
		id := base
		if n := seen[base]; n > 0 {
			id = vectorstore.ChunkID(c.PageNumber, fmt.Sprintf("%s#%d", c.Text, n))
		}
		seen[base]++

		records = append(records, storage.ChunkRecord{
			ID:         id,
			RowIndex:   i,
			PageNumber: c.PageNumber,
			Text:       c.Text,
			CharCount:  c.CharCount,
			WordCount:  c.WordCount,
			TokenCount: c.TokenCount,
		})
	}
	return records
}

// chunkFingerprint identifies a chunk table by its IDs in row order.
func chunkFingerprint(records []storage.ChunkRecord) string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	sum := sha256.Sum256([]byte(strings.Join(ids, "\n")))
	return hex.EncodeToString(sum[:])
}

// Embed embeds every chunk in table order and writes the embedding matrix.
func (p *Pipeline) Embed(ctx context.Context) (*matrix.Matrix, error) {
	logger := contextutil.LoggerFromContext(ctx)

	records, err := p.loadChunks(ctx)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}

	logger.InfoContext(ctx, "embedding chunks", "count", len(texts))
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vectors) != len(records) {
		return nil, apperr.Errorf(apperr.KindDataContract, "embed", "embedding count mismatch: expected %d, got %d", len(records), len(vectors))
	}

	m, err := matrix.FromRows(vectors)
	if err != nil {
		return nil, err
	}
	if err := matrix.WriteFile(p.cfg.MatrixPath, m); err != nil {
		return nil, err
	}

	for k, v := range map[string]string{
		MetaEmbeddingModel:   p.cfg.EmbeddingModel,
		MetaDimension:        strconv.Itoa(m.Cols),
		MetaChunkFingerprint: chunkFingerprint(records),
	} {
		if err := p.chunkRepo.SetMeta(ctx, k, v); err != nil {
			return nil, err
		}
	}

	logger.InfoContext(ctx, "embedding matrix written", "path", p.cfg.MatrixPath, "rows", m.Rows, "dimension", m.Cols)
	return m, nil
}

// Upsert loads the matrix and chunk table, ensures the index and upserts
// every chunk, then deletes vectors of chunks dropped by earlier ingestions.
func (p *Pipeline) Upsert(ctx context.Context) (UpsertResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	records, err := p.loadChunks(ctx)
	if err != nil {
		return UpsertResult{}, err
	}

	m, err := matrix.ReadFile(p.cfg.MatrixPath)
	if err != nil {
		return UpsertResult{}, err
	}
	if m.Rows != len(records) {
		return UpsertResult{}, apperr.Errorf(apperr.KindDataContract, "upsert",
			"metadata rows %d != embedding rows %d", len(records), m.Rows)
	}
	fingerprint, err := p.chunkRepo.GetMeta(ctx, MetaChunkFingerprint)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return UpsertResult{}, err
	}
	if fingerprint != chunkFingerprint(records) {
		return UpsertResult{}, apperr.Errorf(apperr.KindDataContract, "upsert",
			"embedding matrix was not built from the current chunk table; run embed again")
	}
	logger.InfoContext(ctx, "embedding dimension detected", "dimension", m.Cols)

	idx, err := p.vectorStore.EnsureIndex(ctx, p.cfg.Index, m.Cols)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("failed to ensure index: %w", err)
	}

	points := make([]vectorstore.Record, len(records))
	for i, r := range records {
		points[i] = vectorstore.Record{
			ID:     r.ID,
			Vector: m.Row(i),
			Metadata: map[string]any{
				vectorstore.MetaPageNumber: r.PageNumber,
				vectorstore.MetaText:       r.Text,
				vectorstore.MetaCharCount:  r.CharCount,
				vectorstore.MetaWordCount:  r.WordCount,
				vectorstore.MetaTokenCount: r.TokenCount,
			},
		}
	}

	if err := p.vectorStore.Upsert(ctx, p.cfg.Index, points); err != nil {
		return UpsertResult{}, fmt.Errorf("failed to upsert vectors: %w", err)
	}

	stale, err := p.chunkRepo.ListStaleIDs(ctx)
	if err != nil {
		return UpsertResult{}, err
	}
	if len(stale) > 0 {
		if err := p.vectorStore.Delete(ctx, p.cfg.Index, stale); err != nil {
			return UpsertResult{}, fmt.Errorf("failed to delete stale vectors: %w", err)
		}
		if err := p.chunkRepo.ClearStaleIDs(ctx, stale); err != nil {
			return UpsertResult{}, err
		}
	}

	logger.InfoContext(ctx, "upsert completed", "index", p.cfg.Index, "upserted", len(points), "deleted", len(stale))
	return UpsertResult{
		Upserted:  len(points),
		Deleted:   len(stale),
		Dimension: m.Cols,
		Created:   idx.Created,
	}, nil
}

// All runs download (when a URL is configured), ingest, embed and upsert in order.
func (p *Pipeline) All(ctx context.Context) error {
	logger := contextutil.LoggerFromContext(ctx)

	if p.cfg.SourceURL != "" {
		if _, err := p.Download(ctx); err != nil {
			return fmt.Errorf("download: %w", err)
		}
	}
	if _, err := p.Ingest(ctx); err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	if _, err := p.Embed(ctx); err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if _, err := p.Upsert(ctx); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}

	logger.InfoContext(ctx, "build pipeline completed", "index", p.cfg.Index)
	return nil
}

// loadChunks validates the table schema and returns its rows. An empty table
// means ingest has not produced anything to embed.
func (p *Pipeline) loadChunks(ctx context.Context) ([]storage.ChunkRecord, error) {
	if err := p.chunkRepo.Validate(ctx); err != nil {
		return nil, err
	}
	records, err := p.chunkRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperr.New(apperr.KindDataContract, "load chunks", errors.New("chunk table is empty; run ingest first"))
	}
	return records, nil
}
