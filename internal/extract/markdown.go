package extract

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// MarkdownExtractor reads Markdown files, treating thematic breaks (---) as
// page boundaries. Markup is dropped; only text content is kept.
type MarkdownExtractor struct {
	parser goldmark.Markdown
}

// NewMarkdownExtractor creates a new Markdown extractor.
func NewMarkdownExtractor() *MarkdownExtractor {
	return &MarkdownExtractor{
		parser: goldmark.New(
			goldmark.WithExtensions(extension.Table),
		),
	}
}

// Extract parses the file at path into pages.
func (e *MarkdownExtractor) Extract(ctx context.Context, path string) ([]Page, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read markdown: %w", err)
	}
	return e.ExtractBytes(content), nil
}

// ExtractBytes splits Markdown content into pages.
func (e *MarkdownExtractor) ExtractBytes(content []byte) []Page {
	if len(content) == 0 {
		return nil
	}

	doc := e.parser.Parser().Parse(text.NewReader(content))

	var pages []Page
	var current strings.Builder
	flush := func() {
		pages = append(pages, Page{Number: len(pages), Text: strings.TrimSpace(current.String())})
		current.Reset()
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if n.Kind() == ast.KindThematicBreak {
			flush()
			continue
		}
		writeBlockText(&current, n, content)
	}
	flush()

	return pages
}

// writeBlockText appends the text of a block node followed by a newline so
// that blocks stay separated after normalization.
func writeBlockText(b *strings.Builder, n ast.Node, source []byte) {
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if node.Type() == ast.TypeBlock && node.HasChildren() {
				b.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(source))
			if v.SoftLineBreak() || v.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(v.Value)
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := v.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(source))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
}
