package segment

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"nutrition-rag/internal/extract"
)

const (
	// DefaultChunkSize is the number of sentences grouped into one chunk.
	DefaultChunkSize = 10
	// DefaultMinTokenLength is the approximate token count a chunk must exceed to be kept.
	DefaultMinTokenLength = 30
)

// periodBeforeCapital matches a period glued to the next sentence ("energy.Fat").
var periodBeforeCapital = regexp.MustCompile(`\.([A-Z])`)

// Chunk is a run of consecutive sentences from one page.
type Chunk struct {
	PageNumber int     `json:"page_number"`
	Text       string  `json:"sentence_chunk"`
	CharCount  int     `json:"chunk_char_count"`
	WordCount  int     `json:"chunk_word_count"`
	TokenCount float64 `json:"chunk_token_count"`
}

// Normalize collapses line breaks to spaces and trims surrounding whitespace.
func Normalize(raw string) string {
	return strings.TrimSpace(strings.ReplaceAll(raw, "\n", " "))
}

// GroupIntoChunks partitions sentences into consecutive groups of at most
// chunkSize. Sentence i lands in group i/chunkSize. It returns nil when
// chunkSize < 1.
func GroupIntoChunks(sentences []string, pageNumber, chunkSize int) []Chunk {
	if chunkSize < 1 || len(sentences) == 0 {
		return nil
	}

	chunks := make([]Chunk, 0, (len(sentences)+chunkSize-1)/chunkSize)
	for lo := 0; lo < len(sentences); lo += chunkSize {
		hi := min(lo+chunkSize, len(sentences))
		chunks = append(chunks, newChunk(pageNumber, joinSentences(sentences[lo:hi])))
	}
	return chunks
}

func joinSentences(sentences []string) string {
	text := strings.Join(sentences, "")
	text = strings.ReplaceAll(text, "  ", " ")
	text = strings.TrimSpace(text)
	return periodBeforeCapital.ReplaceAllString(text, ". $1")
}

func newChunk(pageNumber int, text string) Chunk {
	chars := utf8.RuneCountInString(text)
	return Chunk{
		PageNumber: pageNumber,
		Text:       text,
		CharCount:  chars,
		WordCount:  len(strings.Split(text, " ")),
		TokenCount: float64(chars) / 4,
	}
}

// FilterChunks keeps chunks whose token count is strictly greater than minTokenLength.
func FilterChunks(chunks []Chunk, minTokenLength float64) []Chunk {
	kept := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if c.TokenCount > minTokenLength {
			kept = append(kept, c)
		}
	}
	return kept
}

// Segmenter turns pages into filtered chunks.
type Segmenter struct {
	ChunkSize      int
	MinTokenLength float64
}

// NewSegmenter creates a Segmenter with the default chunk size and threshold.
func NewSegmenter() *Segmenter {
	return &Segmenter{
		ChunkSize:      DefaultChunkSize,
		MinTokenLength: DefaultMinTokenLength,
	}
}

// SegmentPage normalizes, splits, groups and filters one page.
func (s *Segmenter) SegmentPage(page extract.Page) []Chunk {
	sentences := SplitSentences(Normalize(page.Text))
	return FilterChunks(GroupIntoChunks(sentences, page.Number, s.ChunkSize), s.MinTokenLength)
}

// SegmentPages segments pages in order.
func (s *Segmenter) SegmentPages(pages []extract.Page) []Chunk {
	var chunks []Chunk
	for _, p := range pages {
		chunks = append(chunks, s.SegmentPage(p)...)
	}
	return chunks
}
