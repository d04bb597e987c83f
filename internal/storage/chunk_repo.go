package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_chunk_store.go -package=mocks nutrition-rag/internal/storage ChunkStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ChunkStore defines the interface for chunk table operations.
type ChunkStore interface {
	// ReplaceAll swaps the table contents for chunks in one transaction.
	// IDs present before but absent from chunks are recorded as stale.
	// It returns the number of newly stale IDs.
	ReplaceAll(ctx context.Context, chunks []ChunkRecord) (int, error)
	// ListAll returns every chunk ordered by row_index.
	ListAll(ctx context.Context) ([]ChunkRecord, error)
	// GetByID gets a chunk by its ID. Returns ErrNotFound if not found.
	GetByID(ctx context.Context, id string) (*ChunkRecord, error)
	// Count returns the number of chunks.
	Count(ctx context.Context) (int, error)
	// ListStaleIDs returns IDs removed by earlier ingestions that may still
	// exist in the vector index.
	ListStaleIDs(ctx context.Context) ([]string, error)
	// ClearStaleIDs forgets stale IDs once they are gone from the vector index.
	ClearStaleIDs(ctx context.Context, ids []string) error
	// Validate checks the table schema. A missing column is a data contract error.
	Validate(ctx context.Context) error
	// SetMeta stores a key/value pair describing the ingestion run.
	SetMeta(ctx context.Context, key, value string) error
	// GetMeta reads a key/value pair. Returns ErrNotFound if not set.
	GetMeta(ctx context.Context, key string) (string, error)
}

// ChunkRepo provides methods for chunk operations.
// It implements the ChunkStore interface.
type ChunkRepo struct {
	db *sql.DB
}

// NewChunkRepo creates a new ChunkRepo.
func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// ReplaceAll swaps the table contents for chunks.
func (r *ChunkRepo) ReplaceAll(ctx context.Context, chunks []ChunkRecord) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	previous, err := queryIDs(ctx, tx, "SELECT id FROM chunks")
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks"); err != nil {
		return 0, fmt.Errorf("failed to clear chunks: %w", err)
	}

	insert, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, row_index, page_number, sentence_chunk, chunk_char_count, chunk_word_count, chunk_token_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() {
		_ = insert.Close()
	}()

	current := make(map[string]struct{}, len(chunks))
	for i, c := range chunks {
		if _, err := insert.ExecContext(ctx, c.ID, i, c.PageNumber, c.Text, c.CharCount, c.WordCount, c.TokenCount); err != nil {
			return 0, fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
		current[c.ID] = struct{}{}
		if _, err := tx.ExecContext(ctx, "DELETE FROM stale_chunks WHERE id = ?", c.ID); err != nil {
			return 0, fmt.Errorf("failed to unmark stale chunk: %w", err)
		}
	}

	stale := 0
	for _, id := range previous {
		if _, ok := current[id]; ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO stale_chunks (id) VALUES (?)", id); err != nil {
			return 0, fmt.Errorf("failed to mark stale chunk: %w", err)
		}
		stale++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit chunks: %w", err)
	}
	return stale, nil
}

// ListAll returns every chunk ordered by row_index.
func (r *ChunkRepo) ListAll(ctx context.Context) ([]ChunkRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, row_index, page_number, sentence_chunk, chunk_char_count, chunk_word_count, chunk_token_count
		 FROM chunks ORDER BY row_index`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var chunks []ChunkRecord
	for rows.Next() {
		var c ChunkRecord
		if err := rows.Scan(&c.ID, &c.RowIndex, &c.PageNumber, &c.Text, &c.CharCount, &c.WordCount, &c.TokenCount); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return chunks, nil
}

// GetByID gets a chunk by its ID. Returns ErrNotFound if not found.
func (r *ChunkRepo) GetByID(ctx context.Context, id string) (*ChunkRecord, error) {
	var c ChunkRecord
	err := r.db.QueryRowContext(ctx,
		`SELECT id, row_index, page_number, sentence_chunk, chunk_char_count, chunk_word_count, chunk_token_count
		 FROM chunks WHERE id = ?`,
		id,
	).Scan(&c.ID, &c.RowIndex, &c.PageNumber, &c.Text, &c.CharCount, &c.WordCount, &c.TokenCount)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk: %w", err)
	}

	return &c, nil
}

// Count returns the number of chunks.
func (r *ChunkRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// ListStaleIDs returns IDs removed by earlier ingestions.
func (r *ChunkRepo) ListStaleIDs(ctx context.Context) ([]string, error) {
	return queryIDs(ctx, r.db, "SELECT id FROM stale_chunks ORDER BY id")
}

// ClearStaleIDs forgets the given stale IDs.
func (r *ChunkRepo) ClearStaleIDs(ctx context.Context, ids []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, "DELETE FROM stale_chunks WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to clear stale chunk: %w", err)
		}
	}
	return tx.Commit()
}

// Validate checks the chunk table schema.
func (r *ChunkRepo) Validate(ctx context.Context) error {
	return ValidateSchema(ctx, r.db)
}

// SetMeta stores a key/value pair.
func (r *ChunkRepo) SetMeta(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set meta %s: %w", key, err)
	}
	return nil
}

// GetMeta reads a key/value pair. Returns ErrNotFound if not set.
func (r *ChunkRepo) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta %s: %w", key, err)
	}
	return value, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryIDs(ctx context.Context, q querier, query string) ([]string, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk IDs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan chunk ID: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return ids, nil
}
