package structure

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/JakeFAU/tour-ingest/internal/tour"
)

// Keys of the extraction contract.
const (
	KeyOffering          = "is_it_a_real_offering"
	KeyName              = "name"
	KeyDescription       = "description"
	KeyPriceAdult        = "price_adult"
	KeyPriceChild        = "price_child"
	KeyPriceTiers        = "price_tiers"
	KeyDuration          = "duration"
	KeyTimes             = "times"
	KeyDepartureLocation = "departure_location"
	KeyIncludes          = "includes"
	KeyHighlights        = "highlights"
	KeyItinerary         = "itinerary"
	KeyMenu              = "menu"
	KeyAgeRequirements   = "age_requirements"
	KeyIdealFor          = "ideal_for"
)

// offeringAliases are accepted in place of KeyOffering.
var offeringAliases = []string{KeyOffering, "is_real_offering", "is_tour"}

type contractField struct {
	key  string
	hint string
}

// contractFields drives both the prompt and the decoder.
var contractFields = []contractField{
	{KeyOffering, `true if the text describes one specific bookable tour, cruise or experience; false for listings, articles, policies or general pages`},
	{KeyName, `the product name`},
	{KeyDescription, `two to four sentences describing the experience`},
	{KeyPriceAdult, `adult price with currency symbol`},
	{KeyPriceChild, `child price with currency symbol`},
	{KeyPriceTiers, `every price option as "Tier: PRICE | Tier: PRICE"`},
	{KeyDuration, `duration as stated, e.g. "Half Day" or "7 hours"`},
	{KeyTimes, `departure and return times`},
	{KeyDepartureLocation, `where the tour departs from`},
	{KeyIncludes, `list of inclusions`},
	{KeyHighlights, `list of highlights`},
	{KeyItinerary, `ordered itinerary steps`},
	{KeyMenu, `food and drink served on board`},
	{KeyAgeRequirements, `minimum ages or restrictions`},
	{KeyIdealFor, `who the tour suits`},
}

// Decoded is a payload that satisfied the contract.
type Decoded struct {
	Offering bool
	Fields   map[string]tour.Field
}

var (
	htmlTag    = regexp.MustCompile(`<[^>]+>`)
	htmlOnly   = regexp.MustCompile(`^\s*<[^>]+>.*</?[^>]+>\s*$`)
	whitespace = regexp.MustCompile(`[ \t]+`)
)

// Decode validates raw against the contract: the offering flag must be a
// boolean (or a "true"/"false" string) and the name key must be present.
// Null values become Unknown fields.
func Decode(raw json.RawMessage) (Decoded, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Decoded{}, fmt.Errorf("%w: %v", tour.ErrMalformedPayload, err)
	}
	normalized := make(map[string]json.RawMessage, len(obj))
	for k, v := range obj {
		normalized[strings.ToLower(strings.TrimSpace(k))] = v
	}

	offering, err := offeringFlag(normalized)
	if err != nil {
		return Decoded{}, err
	}
	if _, ok := normalized[KeyName]; !ok {
		return Decoded{}, fmt.Errorf("%w: missing %q", tour.ErrContract, KeyName)
	}

	out := Decoded{Offering: offering, Fields: make(map[string]tour.Field, len(contractFields))}
	for _, f := range contractFields {
		if f.key == KeyOffering {
			continue
		}
		v, ok := normalized[f.key]
		if !ok {
			out.Fields[f.key] = tour.Unknown()
			continue
		}
		field, err := decodeField(f.key, v)
		if err != nil {
			return Decoded{}, err
		}
		out.Fields[f.key] = field
	}
	return out, nil
}

func offeringFlag(obj map[string]json.RawMessage) (bool, error) {
	for _, key := range offeringAliases {
		v, ok := obj[key]
		if !ok {
			continue
		}
		var b bool
		if err := json.Unmarshal(v, &b); err == nil {
			return b, nil
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			switch strings.ToLower(strings.TrimSpace(s)) {
			case "true", "yes":
				return true, nil
			case "false", "no":
				return false, nil
			}
		}
		return false, fmt.Errorf("%w: %q is not a boolean", tour.ErrContract, key)
	}
	return false, fmt.Errorf("%w: missing %q", tour.ErrContract, KeyOffering)
}

func decodeField(key string, v json.RawMessage) (tour.Field, error) {
	trimmed := bytes.TrimSpace(v)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return tour.Unknown(), nil
	}
	var anyVal any
	if err := json.Unmarshal(trimmed, &anyVal); err != nil {
		return tour.Field{}, fmt.Errorf("%w: field %q: %v", tour.ErrMalformedPayload, key, err)
	}
	sep := "\n"
	if key == KeyPriceTiers {
		sep = " | "
	}
	return tour.Known(cleanText(flatten(anyVal, sep), sep)), nil
}

func flatten(v any, sep string) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := flatten(item, sep); strings.TrimSpace(s) != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, sep)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if s := flatten(t[k], ", "); strings.TrimSpace(s) != "" {
				parts = append(parts, k+": "+s)
			}
		}
		return strings.Join(parts, sep)
	}
	return ""
}

// cleanText strips markup-only lines to their text and drops lines that are
// shorter than 3 characters or carry no letters or digits.
func cleanText(s, sep string) string {
	lines := strings.Split(s, "\n")
	if sep != "\n" {
		lines = strings.Split(strings.ReplaceAll(s, "\n", sep), sep)
	}
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if htmlOnly.MatchString(line) {
			line = strings.TrimSpace(htmlTag.ReplaceAllString(line, ""))
		}
		line = whitespace.ReplaceAllString(line, " ")
		if len([]rune(line)) < 3 || !hasAlnum(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, sep)
}

func hasAlnum(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
