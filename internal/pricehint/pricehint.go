// Package pricehint reads page-level hints (title, JSON-LD offers, visible
// price lines) from a rendered document before it is reduced.
package pricehint

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/tour-ingest/internal/tour"
)

const maxPriceLines = 12

// Hints is what a page tells us before the model sees it.
type Hints struct {
	Title  string
	Prices tour.PriceHints
}

var (
	moneyPattern = regexp.MustCompile(`(?:A\$|AU\$|\$|€|£)\s?\d+(?:,\d{3})*(?:\.\d{1,2})?`)
	fromPattern  = regexp.MustCompile(`(?i)from\s+((?:A\$|AU\$|\$)\s?\d+(?:,\d{3})*(?:\.\d{1,2})?)`)
	adultPattern = regexp.MustCompile(`(?i)adults?\b[^$\d]{0,20}((?:A\$|AU\$|\$)\s?\d+(?:,\d{3})*(?:\.\d{1,2})?)`)
	childPattern = regexp.MustCompile(`(?i)(?:child|children|kids?)\b[^$\d]{0,20}((?:A\$|AU\$|\$)\s?\d+(?:,\d{3})*(?:\.\d{1,2})?)`)
	spaces       = regexp.MustCompile(`\s+`)

	priceSelector = `span.price, .price, [class*="price"], .tour-price, .booking-price`

	offerTypes = map[string]struct{}{
		"product": {}, "tourpackage": {}, "touristtrip": {}, "event": {},
		"service": {}, "offer": {}, "aggregateoffer": {},
	}
)

// Extract parses document and collects its hints.
func Extract(document string) (Hints, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return Hints{}, fmt.Errorf("parse document: %w", err)
	}
	h := Hints{Title: title(doc)}

	ld := jsonLD(doc)
	if h.Title == "" {
		h.Title = ld.name
	}
	h.Prices.Adult = ld.price

	doc.Find("script, style, noscript").Remove()
	h.Prices.Lines = priceLines(doc)
	h.Prices.Tiers = tiers(doc)

	text := collapse(doc.Find("body").Text())
	if h.Prices.Adult == "" {
		if m := adultPattern.FindStringSubmatch(text); m != nil {
			h.Prices.Adult = normalizeMoney(m[1])
		}
	}
	if m := childPattern.FindStringSubmatch(text); m != nil {
		h.Prices.Child = normalizeMoney(m[1])
	}
	if h.Prices.Adult == "" {
		h.Prices.Adult = FirstPrice(text)
	}
	return h, nil
}

// FirstPrice returns the first "from $X" price in text, else the first
// currency amount, else "".
func FirstPrice(text string) string {
	if m := fromPattern.FindStringSubmatch(text); m != nil {
		return normalizeMoney(m[1])
	}
	if m := moneyPattern.FindString(text); m != "" {
		return normalizeMoney(m)
	}
	return ""
}

// Merge overlays operator-supplied hints on scraped ones. Configured values
// win; lines are concatenated.
func Merge(configured, scraped tour.PriceHints) tour.PriceHints {
	out := scraped
	if configured.Adult != "" {
		out.Adult = configured.Adult
	}
	if configured.Child != "" {
		out.Child = configured.Child
	}
	if configured.Tiers != "" {
		out.Tiers = configured.Tiers
	}
	if len(configured.Lines) > 0 {
		out.Lines = append(append([]string(nil), configured.Lines...), scraped.Lines...)
	}
	return out
}

func title(doc *goquery.Document) string {
	for _, sel := range []string{"h1", "h2", "title"} {
		if t := collapse(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

type ldOffer struct {
	name  string
	price string
}

func jsonLD(doc *goquery.Document) ldOffer {
	var found ldOffer
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var raw any
		if err := json.Unmarshal([]byte(s.Text()), &raw); err != nil {
			return true
		}
		found = findOffer(raw)
		return found.name == "" && found.price == ""
	})
	return found
}

func findOffer(v any) ldOffer {
	switch node := v.(type) {
	case []any:
		for _, item := range node {
			if o := findOffer(item); o.name != "" || o.price != "" {
				return o
			}
		}
	case map[string]any:
		if graph, ok := node["@graph"]; ok {
			if o := findOffer(graph); o.name != "" || o.price != "" {
				return o
			}
		}
		if !isOfferType(node["@type"]) {
			return ldOffer{}
		}
		o := ldOffer{name: stringValue(node["name"])}
		o.price = offerPrice(node)
		if o.price == "" {
			if offers, ok := node["offers"]; ok {
				o.price = nestedPrice(offers)
			}
		}
		return o
	}
	return ldOffer{}
}

func nestedPrice(v any) string {
	switch node := v.(type) {
	case []any:
		for _, item := range node {
			if p := nestedPrice(item); p != "" {
				return p
			}
		}
	case map[string]any:
		return offerPrice(node)
	}
	return ""
}

func offerPrice(node map[string]any) string {
	for _, key := range []string{"price", "lowPrice"} {
		if p := stringValue(node[key]); p != "" {
			currency := stringValue(node["priceCurrency"])
			if currency != "" && !strings.ContainsAny(p, "$€£") {
				return currency + " " + p
			}
			return p
		}
	}
	return ""
}

func isOfferType(v any) bool {
	switch t := v.(type) {
	case string:
		_, ok := offerTypes[strings.ToLower(t)]
		return ok
	case []any:
		for _, item := range t {
			if isOfferType(item) {
				return true
			}
		}
	}
	return false
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", t), "0"), ".")
	}
	return ""
}

func priceLines(doc *goquery.Document) []string {
	seen := make(map[string]struct{})
	var lines []string
	doc.Find(priceSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		line := collapse(s.Text())
		if line == "" || !moneyPattern.MatchString(line) {
			return true
		}
		if _, ok := seen[line]; ok {
			return true
		}
		seen[line] = struct{}{}
		lines = append(lines, line)
		return len(lines) < maxPriceLines
	})
	return lines
}

// tiers flattens price tables as "Label: $X | Label: $Y".
func tiers(doc *goquery.Document) string {
	var parts []string
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td, th")
		if cells.Length() < 2 {
			return
		}
		label := collapse(cells.First().Text())
		price := moneyPattern.FindString(collapse(cells.Last().Text()))
		if label == "" || price == "" || moneyPattern.MatchString(label) {
			return
		}
		parts = append(parts, label+": "+normalizeMoney(price))
	})
	return strings.Join(parts, " | ")
}

func normalizeMoney(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), " ", "")
}

func collapse(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}
