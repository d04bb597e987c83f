package extract

import (
	"context"
	"fmt"
	"os"

	"nutrition-rag/internal/contextutil"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor reads page text from PDF files.
type PDFExtractor struct{}

// NewPDFExtractor creates a new PDF extractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract returns one Page per PDF page. Pages without a content stream yield
// empty text rather than an error.
func (e *PDFExtractor) Extract(ctx context.Context, path string) ([]Page, error) {
	logger := contextutil.LoggerFromContext(ctx)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat pdf: %w", err)
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to parse pdf: %w", err)
	}

	numPages := reader.NumPage()
	pages := make([]Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p := reader.Page(i)
		if p.V.IsNull() {
			pages = append(pages, Page{Number: i - 1})
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read text of page %d: %w", i, err)
		}
		pages = append(pages, Page{Number: i - 1, Text: text})
	}

	logger.InfoContext(ctx, "extracted pdf pages", "path", path, "pages", len(pages))
	return pages, nil
}
