package storage

import "errors"

// ErrNotFound is returned when a record is not found.
var ErrNotFound = errors.New("record not found")

// ChunkRecord is one row of the chunk table. RowIndex is the row's position
// in the table and the row of its vector in the embedding matrix.
type ChunkRecord struct {
	ID         string
	RowIndex   int
	PageNumber int
	Text       string // sentence_chunk
	CharCount  int
	WordCount  int
	TokenCount float64
}
