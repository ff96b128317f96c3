// Package classify derives secondary tour attributes from free text using
// fixed keyword tables. Every function is pure.
package classify

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/JakeFAU/tour-ingest/internal/tour"
)

var (
	hoursPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(hours|hour|hrs|hr|h)`)
	daysPattern  = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(days|day|nights|night|d)\b`)
)

// Tables holds the keyword tables used by a Classifier.
type Tables struct {
	Water     []string
	Air       []string
	Land      []string
	Locations []string
	Tags      map[string][]string
}

// DefaultTables returns the built-in keyword tables.
func DefaultTables() Tables {
	return Tables{
		Water: []string{
			"snorkel", "dive", "reef", "boat", "sail", "sailing", "cruise", "island",
			"jet ski", "jetski", "kayak", "paddle", "glass bottom",
		},
		Air: []string{"scenic flight", "flight", "helicopter", "aerial", "plane", "sky"},
		Land: []string{
			"hike", "walk", "track", "waterfall", "segway", "4wd", "buggy", "tour bus", "coach",
		},
		Locations: []string{
			"whitehaven", "hill inlet", "hook island", "airlie beach", "whitsunday island",
			"hamilton island", "daydream island", "reefworld", "great barrier reef",
			"langford", "bowen", "proserpine", "cannonvale",
		},
		Tags: map[string][]string{
			"sunset":          {"sunset", "dusk", "golden hour"},
			"family-friendly": {"family", "kids", "children", "child"},
			"small-group":     {"small group", "small-group", "intimate"},
			"private":         {"private", "charter", "exclusive"},
			"luxury":          {"luxury", "premium", "vip"},
			"adventure":       {"adventure", "adrenaline", "thrill", "fast"},
			"relaxation":      {"relax", "leisure", "chill", "laid-back"},
		},
	}
}

// Classifier applies a set of keyword tables.
type Classifier struct {
	tables Tables
}

// New builds a Classifier from the default tables plus extra gazetteer
// entries.
func New(extraLocations ...string) *Classifier {
	tables := DefaultTables()
	for _, loc := range extraLocations {
		loc = strings.ToLower(strings.TrimSpace(loc))
		if loc != "" {
			tables.Locations = append(tables.Locations, loc)
		}
	}
	return &Classifier{tables: tables}
}

// NewWithTables builds a Classifier from explicit tables.
func NewWithTables(tables Tables) *Classifier {
	return &Classifier{tables: tables}
}

// Classify computes every derived attribute. duration is the raw duration
// field, text the concatenated record text and childPrice the child price
// field.
func (c *Classifier) Classify(duration, text, childPrice string) tour.Classification {
	d := Duration(duration)
	return tour.Classification{
		DurationHours:    d.Hours,
		DurationDays:     d.Days,
		DurationCategory: d.Category,
		TourType:         c.TourType(text),
		Locations:        c.Locations(text),
		Tags:             c.Tags(text),
		Audience:         Audience(text, childPrice),
		IntensityLevel:   Intensity(text),
	}
}

// DurationInfo is the normalized duration of a tour.
type DurationInfo struct {
	Hours    string
	Days     string
	Category string
}

// Duration extracts hours, days and a coarse category from a duration string.
func Duration(text string) DurationInfo {
	lower := strings.ToLower(text)
	var (
		hours, days       float64
		hasHours, hasDays bool
	)
	if m := hoursPattern.FindStringSubmatch(lower); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			hours, hasHours = v, true
		}
	}
	if m := daysPattern.FindStringSubmatch(lower); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			days, hasDays = v, true
		}
	}

	if strings.Contains(lower, "half") && strings.Contains(lower, "day") && !hasHours {
		hours, hasHours = 3.5, true
	}
	if strings.Contains(lower, "full") && strings.Contains(lower, "day") && !hasHours {
		hours, hasHours = 8, true
	}
	if strings.Contains(lower, "multi") && strings.Contains(lower, "day") && !hasDays {
		days, hasDays = 2, true
	}
	if strings.Contains(lower, "overnight") && !hasDays {
		days, hasDays = 2, true
	}

	info := DurationInfo{Category: tour.DurationUnknown}
	if hasHours {
		info.Hours = formatNumber(hours)
	}
	if hasDays {
		info.Days = formatNumber(days)
	}

	switch {
	case hasDays && days >= 2:
		info.Category = tour.DurationMultiDay
	case hasHours && hours <= 4:
		info.Category = tour.DurationHalfDay
	case hasHours && hours <= 9:
		info.Category = tour.DurationFullDay
	case hasHours:
		info.Category = tour.DurationMultiDay
	case strings.Contains(lower, "multi day") || strings.Contains(lower, "multi-day"):
		info.Category = tour.DurationMultiDay
	case strings.Contains(lower, "half day"):
		info.Category = tour.DurationHalfDay
	case strings.Contains(lower, "full day") || strings.Contains(lower, "day tour"):
		info.Category = tour.DurationFullDay
	}
	return info
}

// TourType votes across the water, air and land keyword sets.
func (c *Classifier) TourType(text string) string {
	lower := strings.ToLower(text)
	var matched []string
	if containsAny(lower, c.tables.Water) {
		matched = append(matched, tour.TypeWater)
	}
	if containsAny(lower, c.tables.Air) {
		matched = append(matched, tour.TypeAir)
	}
	if containsAny(lower, c.tables.Land) {
		matched = append(matched, tour.TypeLand)
	}
	switch len(matched) {
	case 0:
		return tour.TypeOther
	case 1:
		return matched[0]
	default:
		return tour.TypeCombo
	}
}

// Locations returns the sorted, title-cased gazetteer entries found in text.
func (c *Classifier) Locations(text string) []string {
	lower := strings.ToLower(text)
	seen := make(map[string]struct{})
	for _, loc := range c.tables.Locations {
		if strings.Contains(lower, loc) {
			seen[titleCase(loc)] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// Tags returns the sorted set of tags whose keywords occur in text.
func (c *Classifier) Tags(text string) []string {
	lower := strings.ToLower(text)
	seen := make(map[string]struct{})
	for tag, keywords := range c.tables.Tags {
		if containsAny(lower, keywords) {
			seen[tag] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// Audience picks adults_only, family or general.
func Audience(text, childPrice string) string {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "adults only") || strings.Contains(lower, "18+") {
		return tour.AudienceAdultsOnly
	}
	child := strings.ToLower(strings.TrimSpace(childPrice))
	if child != "" && !strings.Contains(child, "n/a") {
		return tour.AudienceFamily
	}
	if containsAny(lower, []string{"family", "kids", "children"}) {
		return tour.AudienceFamily
	}
	return tour.AudienceGeneral
}

// Intensity picks adventurous, relaxed or moderate.
func Intensity(text string) string {
	lower := strings.ToLower(text)
	if containsAny(lower, []string{"adrenaline", "thrill", "fast", "jet", "raft"}) {
		return tour.IntensityAdventurous
	}
	if containsAny(lower, []string{"relax", "leisure", "gentle", "easy", "cruise"}) {
		return tour.IntensityRelaxed
	}
	return tour.IntensityModerate
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
