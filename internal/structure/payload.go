package structure

import (
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/tour-ingest/internal/tour"
)

// Payload is the structured object found in a model response.
type Payload struct {
	Raw json.RawMessage
	// Candidates counts every well-formed object in the response. More than
	// one means the response was ambiguous and only the first was used.
	Candidates int
}

// Ambiguous reports whether more than one well-formed object was present.
func (p Payload) Ambiguous() bool {
	return p.Candidates > 1
}

// ExtractPayload scans resp for balanced top-level {...} spans, ignoring
// braces inside JSON strings, and returns the first span that is valid JSON.
// Surrounding prose and code fences are tolerated.
func ExtractPayload(resp string) (Payload, error) {
	var (
		out      Payload
		depth    int
		start    = -1
		inString bool
		escaped  bool
		spans    int
	)
	for i := 0; i < len(resp); i++ {
		c := resp[i]
		if depth > 0 && inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				spans++
				candidate := resp[start : i+1]
				if json.Valid([]byte(candidate)) {
					if out.Candidates == 0 {
						out.Raw = json.RawMessage(candidate)
					}
					out.Candidates++
				}
			}
		}
	}
	if out.Candidates > 0 {
		return out, nil
	}
	if spans > 0 || depth > 0 {
		return Payload{}, fmt.Errorf("%w: no balanced span is valid json", tour.ErrMalformedPayload)
	}
	return Payload{}, tour.ErrNoPayload
}
