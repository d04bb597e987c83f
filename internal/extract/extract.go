package extract

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ForPath picks an extractor by file extension.
func ForPath(path string) (Extractor, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		return NewPDFExtractor(), nil
	case ".md", ".markdown":
		return NewMarkdownExtractor(), nil
	case ".txt":
		return TextExtractor{}, nil
	default:
		return nil, fmt.Errorf("unsupported file format: %q", ext)
	}
}
