package segment

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"nutrition-rag/internal/extract"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"line breaks", "Protein is\nessential.\n", "Protein is essential."},
		{"surrounding whitespace", "  \tFat stores energy.  ", "Fat stores energy."},
		{"double break keeps both spaces", "a\n\nb", "a  b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "empty",
			text: "   ",
			want: nil,
		},
		{
			name: "four sentences",
			text: "Protein is essential. It builds muscle. Carbs provide energy. Fat stores energy.",
			want: []string{"Protein is essential.", "It builds muscle.", "Carbs provide energy.", "Fat stores energy."},
		},
		{
			name: "no terminal punctuation",
			text: "Table 4.2 Daily values",
			want: []string{"Table 4.2 Daily values"},
		},
		{
			name: "glued period before capital",
			text: "Carbs provide energy.Fat stores energy.",
			want: []string{"Carbs provide energy.", "Fat stores energy."},
		},
		{
			name: "question and exclamation runs",
			text: "Is fiber a carbohydrate?! Yes. It is.",
			want: []string{"Is fiber a carbohydrate?!", "Yes.", "It is."},
		},
		{
			name: "closing quote stays with sentence",
			text: `She said "eat more greens." Then she left.`,
			want: []string{`She said "eat more greens."`, "Then she left."},
		},
		{
			name: "abbreviations and decimals",
			text: "Vitamins, e.g. vitamin C, are needed. About 2.5 grams per day.",
			want: []string{"Vitamins, e.g. vitamin C, are needed.", "About 2.5 grams per day."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitSentences(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitSentences() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGroupIntoChunks_Partition(t *testing.T) {
	for n := 0; n <= 23; n++ {
		sentences := make([]string, n)
		for i := range sentences {
			sentences[i] = fmt.Sprintf("s%d", i)
		}

		for size := 1; size <= 7; size++ {
			chunks := GroupIntoChunks(sentences, 5, size)

			want := (n + size - 1) / size
			if len(chunks) != want {
				t.Fatalf("n=%d size=%d: got %d chunks, want %d", n, size, len(chunks), want)
			}

			var rebuilt strings.Builder
			for i, c := range chunks {
				if c.PageNumber != 5 {
					t.Errorf("chunk %d has page %d, want 5", i, c.PageNumber)
				}
				if got := strings.Count(c.Text, "s"); got > size {
					t.Errorf("n=%d size=%d: chunk %d holds %d sentences", n, size, i, got)
				}
				rebuilt.WriteString(c.Text)
			}
			if got, want := rebuilt.String(), strings.Join(sentences, ""); got != want {
				t.Errorf("n=%d size=%d: rebuilt %q, want %q", n, size, got, want)
			}
		}
	}
}

func TestGroupIntoChunks_InvalidSize(t *testing.T) {
	if got := GroupIntoChunks([]string{"a."}, 0, 0); got != nil {
		t.Errorf("GroupIntoChunks() with size 0 = %v, want nil", got)
	}
}

func TestGroupIntoChunks_TextRepair(t *testing.T) {
	chunks := GroupIntoChunks([]string{"Protein is  essential.", "It builds muscle. "}, 2, 10)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}

	c := chunks[0]
	want := "Protein is essential. It builds muscle."
	if c.Text != want {
		t.Errorf("Text = %q, want %q", c.Text, want)
	}
	if c.CharCount != 39 {
		t.Errorf("CharCount = %d, want 39", c.CharCount)
	}
	if c.WordCount != 6 {
		t.Errorf("WordCount = %d, want 6", c.WordCount)
	}
	if c.TokenCount != 9.75 {
		t.Errorf("TokenCount = %v, want 9.75", c.TokenCount)
	}
}

func TestFilterChunks(t *testing.T) {
	chunks := []Chunk{
		{Text: "below", TokenCount: 29.75},
		{Text: "equal", TokenCount: 30},
		{Text: "above", TokenCount: 30.25},
	}

	got := FilterChunks(chunks, 30)
	if len(got) != 1 || got[0].Text != "above" {
		t.Errorf("FilterChunks() = %+v, want only the chunk above the threshold", got)
	}

	if got := FilterChunks(nil, 0); len(got) != 0 {
		t.Errorf("FilterChunks(nil) = %v, want empty", got)
	}
}

func TestSegmenter_SegmentPage(t *testing.T) {
	page := extract.Page{
		Number: 7,
		Text:   "Protein is essential. It builds muscle.\nCarbs provide energy. Fat stores energy.",
	}

	s := &Segmenter{ChunkSize: 2, MinTokenLength: 0}
	got := s.SegmentPage(page)

	want := []string{
		"Protein is essential. It builds muscle.",
		"Carbs provide energy. Fat stores energy.",
	}
	if len(got) != len(want) {
		t.Fatalf("SegmentPage() returned %d chunks, want %d", len(got), len(want))
	}
	for i, c := range got {
		if c.Text != want[i] {
			t.Errorf("chunk %d text = %q, want %q", i, c.Text, want[i])
		}
		if c.PageNumber != 7 {
			t.Errorf("chunk %d page = %d, want 7", i, c.PageNumber)
		}
	}
}

func TestSegmenter_SegmentPages(t *testing.T) {
	long := strings.Repeat("Whole grains contain fiber and many micronutrients. ", 4)
	pages := []extract.Page{
		{Number: 0, Text: ""},
		{Number: 1, Text: "Too short."},
		{Number: 2, Text: long},
	}

	got := NewSegmenter().SegmentPages(pages)
	if len(got) != 1 {
		t.Fatalf("SegmentPages() returned %d chunks, want 1", len(got))
	}
	if got[0].PageNumber != 2 {
		t.Errorf("chunk page = %d, want 2", got[0].PageNumber)
	}
}
