package extract

import (
	"context"
	"strings"
	"unicode/utf8"
)

// Page is the text of one document page. Number is zero-based in document order.
type Page struct {
	Number int
	Text   string
}

// PageStats holds per-page size statistics computed on normalized text.
type PageStats struct {
	PageNumber       int     `json:"page_number"`
	CharCount        int     `json:"page_char_count"`
	WordCount        int     `json:"page_word_count"`
	SentenceCountRaw int     `json:"page_sentence_count_raw"`
	TokenCount       float64 `json:"page_token_count"`
}

// Extractor turns a source document into ordered pages.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]Page, error)
}

// Stats computes size statistics for a page whose text is already
// normalized. The sentence count is the naive ". " split, not the
// sentencizer's count.
func Stats(p Page) PageStats {
	chars := utf8.RuneCountInString(p.Text)
	return PageStats{
		PageNumber:       p.Number,
		CharCount:        chars,
		WordCount:        len(strings.Split(p.Text, " ")),
		SentenceCountRaw: len(strings.Split(p.Text, ". ")),
		TokenCount:       float64(chars) / 4,
	}
}
