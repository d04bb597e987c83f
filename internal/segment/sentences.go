package segment

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// abbreviations end in a period but never terminate a sentence.
var abbreviations = map[string]struct{}{
	"dr.": {}, "mr.": {}, "mrs.": {}, "ms.": {}, "prof.": {}, "st.": {},
	"e.g.": {}, "i.e.": {}, "etc.": {}, "vs.": {}, "approx.": {}, "fig.": {},
	"no.": {}, "vol.": {}, "ca.": {},
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？', '…', '‼', '⁇', '⁈', '⁉':
		return true
	}
	return false
}

// isTrailing reports runes that attach to the end of the sentence they follow.
func isTrailing(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '}', '”', '’', '»':
		return true
	}
	return false
}

// SplitSentences splits normalized text into sentences. A boundary follows a
// run of terminal punctuation (plus closing quotes or brackets) when the next
// rune is whitespace, or when a period sits directly between a lowercase
// letter and an uppercase one ("energy.Fat"). Known abbreviations and decimal
// numbers never end a sentence. Each sentence is trimmed; empty text yields nil.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var sentences []string
	start := 0
	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !isTerminal(r) {
			i += size
			continue
		}

		end := i + size
		for end < len(text) {
			next, n := utf8.DecodeRuneInString(text[end:])
			if !isTerminal(next) && !isTrailing(next) {
				break
			}
			end += n
		}

		if end >= len(text) {
			break
		}

		next, _ := utf8.DecodeRuneInString(text[end:])
		boundary := false
		switch {
		case unicode.IsSpace(next):
			boundary = !endsWithAbbreviation(text[start:end])
		case r == '.' && end == i+size && unicode.IsUpper(next):
			prev, _ := utf8.DecodeLastRuneInString(text[:i])
			boundary = unicode.IsLower(prev)
		}

		if boundary {
			if s := strings.TrimSpace(text[start:end]); s != "" {
				sentences = append(sentences, s)
			}
			start = end
		}
		i = end
	}

	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func endsWithAbbreviation(s string) bool {
	idx := strings.LastIndexFunc(s, unicode.IsSpace)
	last := strings.ToLower(s[idx+1:])
	_, ok := abbreviations[last]
	return ok
}
