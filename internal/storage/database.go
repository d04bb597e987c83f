package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"nutrition-rag/internal/apperr"

	_ "github.com/mattn/go-sqlite3"
)

// New opens the SQLite chunk database at the given path.
// Writes are serialized through a single connection; SQLite allows one writer.
func New(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate creates the chunk table and its bookkeeping tables. It is idempotent.
func Migrate(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			row_index INTEGER NOT NULL UNIQUE,
			page_number INTEGER NOT NULL,
			sentence_chunk TEXT NOT NULL,
			chunk_char_count INTEGER NOT NULL,
			chunk_word_count INTEGER NOT NULL,
			chunk_token_count REAL NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS stale_chunks (
			id TEXT PRIMARY KEY,
			marked_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

// requiredColumns are the chunk table columns downstream stages depend on.
var requiredColumns = []string{
	"id", "row_index", "page_number", "sentence_chunk",
	"chunk_char_count", "chunk_word_count", "chunk_token_count",
}

// ValidateSchema checks that the chunk table carries every column the embed
// and upsert stages read. A missing table or column is a data contract error.
func ValidateSchema(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info(chunks)")
	if err != nil {
		return fmt.Errorf("failed to read chunk table schema: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	present := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return fmt.Errorf("failed to scan column info: %w", err)
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("row iteration error: %w", err)
	}

	if len(present) == 0 {
		return apperr.Errorf(apperr.KindDataContract, "validate schema", "chunk table does not exist")
	}
	for _, col := range requiredColumns {
		if !present[col] {
			return apperr.Errorf(apperr.KindDataContract, "validate schema", "chunk table is missing column %q", col)
		}
	}
	return nil
}
