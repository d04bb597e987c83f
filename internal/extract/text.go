package extract

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// pageBreak is the form feed character that pdftotext-style dumps emit between pages.
const pageBreak = "\f"

// TextExtractor reads plain-text files, splitting pages on form feeds.
type TextExtractor struct{}

// Extract reads the file at path into pages.
func (TextExtractor) Extract(_ context.Context, path string) ([]Page, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read text file: %w", err)
	}
	if len(content) == 0 {
		return nil, nil
	}
	parts := strings.Split(string(content), pageBreak)
	pages := make([]Page, len(parts))
	for i, part := range parts {
		pages[i] = Page{Number: i, Text: part}
	}
	return pages, nil
}
