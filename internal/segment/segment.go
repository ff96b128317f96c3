// Package segment splits accumulated page text into per-product chunks
// using explicit START/END markers.
package segment

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/JakeFAU/tour-ingest/internal/tour"
)

var (
	startMarker = regexp.MustCompile(`(?m)^=== TOUR START: (.+?) ===\r?$`)
	endMarker   = regexp.MustCompile(`(?m)^=== TOUR END: (.+?) ===\r?$`)
)

// Split returns one chunk per start marker. A chunk runs to the first end
// marker with the same name that follows it, or to the end of the text. Text
// without any start marker yields a single chunk holding the whole input and
// no title hint.
func Split(text string) []tour.RawChunk {
	starts := startMarker.FindAllStringSubmatchIndex(text, -1)
	if len(starts) == 0 {
		return []tour.RawChunk{{Text: text}}
	}
	ends := endMarker.FindAllStringSubmatchIndex(text, -1)

	chunks := make([]tour.RawChunk, 0, len(starts))
	for _, s := range starts {
		name := text[s[2]:s[3]]
		bodyStart := s[1]
		bodyEnd := len(text)
		for _, e := range ends {
			if e[0] < bodyStart {
				continue
			}
			if text[e[2]:e[3]] == name {
				bodyEnd = e[0]
				break
			}
		}
		chunks = append(chunks, tour.RawChunk{
			TitleHint: strings.TrimSpace(name),
			Text:      strings.TrimSpace(text[bodyStart:bodyEnd]),
		})
	}
	return chunks
}

// Wrap renders body between START/END markers for title. A blank title
// returns the body unchanged.
func Wrap(title, body string) string {
	title = sanitizeTitle(title)
	if title == "" {
		return body
	}
	return fmt.Sprintf("=== TOUR START: %s ===\n%s\n=== TOUR END: %s ===\n", title, strings.TrimSpace(body), title)
}

func sanitizeTitle(title string) string {
	return strings.Join(strings.Fields(title), " ")
}
