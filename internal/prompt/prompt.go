package prompt

import (
	"fmt"
	"strings"
)

// Source is one retrieved passage and the page it came from.
type Source struct {
	Page int
	Text string
}

const instructions = `You are a domain-aware assistant answering STRICTLY based on the provided context.

Instructions:
- Provide a **detailed and well-structured explanation**
- Use paragraphs or bullet points where appropriate
- Explain concepts clearly and thoroughly
- Do NOT introduce information not present in the context
- If the answer is not found in the context, say: "I don’t know."`

// Format builds the grounded prompt. Sources appear in the order given;
// none are dropped, merged or reordered.
func Format(query string, sources []Source) string {
	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\nCONTEXT:\n")
	for _, s := range sources {
		fmt.Fprintf(&b, "Source (Page %d):\n%s\n\n", s.Page, s.Text)
	}
	b.WriteString("\n\nQUESTION:\n")
	b.WriteString(query)
	b.WriteString("\n\nDETAILED ANSWER:")
	return strings.TrimSpace(b.String())
}
