package tour

import (
	"sort"
	"strings"
)

// Classification values written by the deterministic classifiers.
const (
	DurationHalfDay  = "half_day"
	DurationFullDay  = "full_day"
	DurationMultiDay = "multi_day"
	DurationUnknown  = "unknown"

	TypeWater = "water"
	TypeAir   = "air"
	TypeLand  = "land"
	TypeCombo = "combo"
	TypeOther = "other"

	AudienceAdultsOnly = "adults_only"
	AudienceFamily     = "family"
	AudienceGeneral    = "general"

	IntensityAdventurous = "adventurous"
	IntensityRelaxed     = "relaxed"
	IntensityModerate    = "moderate"
)

// Record is one structured product offering (a TourRecord).
type Record struct {
	ID        string
	Scope     string
	SourceURL string

	Name              Field
	Description       Field
	PriceAdult        Field
	PriceChild        Field
	PriceTiers        Field
	Duration          Field
	DepartureTimes    Field
	DepartureLocation Field
	Includes          Field
	Highlights        Field
	Itinerary         Field
	Menu              Field
	AgeRequirements   Field
	IdealFor          Field

	Classification
}

// Classification holds the rule-derived attributes of a record.
type Classification struct {
	DurationHours    string
	DurationDays     string
	DurationCategory string
	TourType         string
	Locations        []string
	Tags             []string
	Audience         string
	IntensityLevel   string
}

// Cells renders the record over the canonical columns. Only Known fields
// may overwrite a stored cell.
func (r Record) Cells() map[string]Field {
	return map[string]Field{
		ColID:                Known(r.ID),
		ColName:              r.Name,
		ColDescription:       r.Description,
		ColPriceAdult:        r.PriceAdult,
		ColPriceChild:        r.PriceChild,
		ColPriceTiers:        r.PriceTiers,
		ColDuration:          r.Duration,
		ColDurationHours:     Known(r.DurationHours),
		ColDurationDays:      Known(r.DurationDays),
		ColDurationCategory:  Known(r.DurationCategory),
		ColDepartureTimes:    r.DepartureTimes,
		ColDepartureLocation: r.DepartureLocation,
		ColIncludes:          r.Includes,
		ColHighlights:        r.Highlights,
		ColItinerary:         r.Itinerary,
		ColMenu:              r.Menu,
		ColAgeRequirements:   r.AgeRequirements,
		ColIdealFor:          r.IdealFor,
		ColTourType:          Known(r.TourType),
		ColLocations:         Known(JoinSet(r.Locations)),
		ColTags:              Known(JoinSet(r.Tags)),
		ColAudience:          Known(r.Audience),
		ColIntensityLevel:    Known(r.IntensityLevel),
		ColSourceURL:         Known(r.SourceURL),
	}
}

// RecordFromRow rebuilds a record from a stored row. Empty cells become
// Unknown fields.
func RecordFromRow(row Row) Record {
	return Record{
		ID:                row[ColID],
		SourceURL:         row[ColSourceURL],
		Name:              FromCell(row[ColName]),
		Description:       FromCell(row[ColDescription]),
		PriceAdult:        FromCell(row[ColPriceAdult]),
		PriceChild:        FromCell(row[ColPriceChild]),
		PriceTiers:        FromCell(row[ColPriceTiers]),
		Duration:          FromCell(row[ColDuration]),
		DepartureTimes:    FromCell(row[ColDepartureTimes]),
		DepartureLocation: FromCell(row[ColDepartureLocation]),
		Includes:          FromCell(row[ColIncludes]),
		Highlights:        FromCell(row[ColHighlights]),
		Itinerary:         FromCell(row[ColItinerary]),
		Menu:              FromCell(row[ColMenu]),
		AgeRequirements:   FromCell(row[ColAgeRequirements]),
		IdealFor:          FromCell(row[ColIdealFor]),
		Classification: Classification{
			DurationHours:    row[ColDurationHours],
			DurationDays:     row[ColDurationDays],
			DurationCategory: row[ColDurationCategory],
			TourType:         row[ColTourType],
			Locations:        SplitSet(row[ColLocations]),
			Tags:             SplitSet(row[ColTags]),
			Audience:         row[ColAudience],
			IntensityLevel:   row[ColIntensityLevel],
		},
	}
}

// JoinSet renders a sorted, de-duplicated set as a comma separated cell.
func JoinSet(values []string) string {
	return strings.Join(normalizeSet(values), ",")
}

// SplitSet parses a comma separated cell back into a sorted set.
func SplitSet(cell string) []string {
	if strings.TrimSpace(cell) == "" {
		return nil
	}
	return normalizeSet(strings.Split(cell, ","))
}

func normalizeSet(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
