package structure

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/tour-ingest/internal/tour"
)

const systemPrompt = "You extract structured product data for guided tours from website text. " +
	"Reply with exactly one JSON object and nothing else."

// PromptInput is everything the prompt is built from.
type PromptInput struct {
	SourceURL string
	TitleHint string
	Hints     tour.PriceHints
	Text      string
}

// BuildPrompt renders the user prompt for one chunk.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PAGE URL: %s\n", in.SourceURL)
	if in.TitleHint != "" {
		fmt.Fprintf(&b, "PAGE TITLE HINT: %s\n", in.TitleHint)
	}
	if !in.Hints.Empty() {
		b.WriteString("\nPRICES SEEN ON THE PAGE (use them when they match the text):\n")
		if in.Hints.Adult != "" {
			fmt.Fprintf(&b, "- Adult: %s\n", in.Hints.Adult)
		}
		if in.Hints.Child != "" {
			fmt.Fprintf(&b, "- Child: %s\n", in.Hints.Child)
		}
		if in.Hints.Tiers != "" {
			fmt.Fprintf(&b, "- Tiers: %s\n", in.Hints.Tiers)
		}
		for _, line := range in.Hints.Lines {
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}

	b.WriteString("\nReturn one JSON object with these keys:\n")
	for _, f := range contractFields {
		fmt.Fprintf(&b, "- %s: %s\n", f.key, f.hint)
	}
	b.WriteString("\nRules:\n")
	b.WriteString("- If the text does not state a value, return null for that key. Never guess.\n")
	fmt.Fprintf(&b, "- %s must be the JSON boolean true or false.\n", KeyOffering)
	b.WriteString("- Copy prices exactly as written, including the currency symbol.\n")
	b.WriteString("\nTEXT:\n<<<\n")
	b.WriteString(in.Text)
	b.WriteString("\n>>>\n")
	return b.String()
}

// boundText truncates text to maxChars runes.
func boundText(text string, maxChars int) (string, bool) {
	if maxChars <= 0 {
		return text, false
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text, false
	}
	return string(runes[:maxChars]), true
}
