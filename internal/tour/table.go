package tour

// Canonical output columns.
const (
	ColID                = "id"
	ColName              = "name"
	ColDescription       = "description"
	ColPriceAdult        = "price_adult"
	ColPriceChild        = "price_child"
	ColPriceTiers        = "price_tiers"
	ColDuration          = "duration"
	ColDurationHours     = "duration_hours"
	ColDurationDays      = "duration_days"
	ColDurationCategory  = "duration_category"
	ColDepartureTimes    = "departure_times"
	ColDepartureLocation = "departure_location"
	ColIncludes          = "includes"
	ColHighlights        = "highlights"
	ColItinerary         = "itinerary"
	ColMenu              = "menu"
	ColAgeRequirements   = "age_requirements"
	ColIdealFor          = "ideal_for"
	ColTourType          = "tour_type"
	ColLocations         = "locations"
	ColTags              = "tags"
	ColAudience          = "audience"
	ColIntensityLevel    = "intensity_level"
	ColSourceURL         = "source_url"
)

// KeyColumn identifies a row.
const KeyColumn = ColID

// ContentColumns are written by the pipeline. Order is the output order.
var ContentColumns = []string{
	ColName, ColDescription, ColPriceAdult, ColPriceChild, ColPriceTiers,
	ColDuration, ColDurationHours, ColDurationDays, ColDurationCategory,
	ColDepartureTimes, ColDepartureLocation, ColIncludes, ColHighlights,
	ColItinerary, ColMenu, ColAgeRequirements, ColIdealFor, ColTourType,
	ColLocations, ColTags, ColAudience, ColIntensityLevel, ColSourceURL,
}

// ExternalColumns are owned by media and review collaborators. The pipeline
// declares them but never writes them.
var ExternalColumns = []string{
	"image_url", "image_urls", "video_urls",
	"review_rating", "review_count", "reviews_summary", "reviews_json",
	"commission_rate", "active",
}

var (
	contentSet  = toSet(ContentColumns)
	externalSet = toSet(ExternalColumns)
)

// IsContent reports whether col belongs to the content partition.
func IsContent(col string) bool {
	_, ok := contentSet[col]
	return ok
}

// IsExternal reports whether col belongs to the externally-owned partition.
func IsExternal(col string) bool {
	_, ok := externalSet[col]
	return ok
}

// Row is one stored row keyed by column name.
type Row map[string]string

// Clone copies the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table is the in-memory image of a tabular store.
type Table struct {
	Columns []string
	Rows    []Row
}

// Len returns the row count.
func (t Table) Len() int {
	return len(t.Rows)
}

// Clone deep-copies the table.
func (t Table) Clone() Table {
	out := Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([]Row, len(t.Rows)),
	}
	for i, row := range t.Rows {
		out.Rows[i] = row.Clone()
	}
	return out
}

// CanonicalColumns returns the declared column order for a table that
// previously listed prior. The key, content and external columns come first;
// any other column prior carried follows in its original order.
func CanonicalColumns(prior []string) []string {
	out := make([]string, 0, 1+len(ContentColumns)+len(ExternalColumns)+len(prior))
	out = append(out, KeyColumn)
	out = append(out, ContentColumns...)
	out = append(out, ExternalColumns...)
	seen := toSet(out)
	for _, col := range prior {
		if _, ok := seen[col]; ok || col == "" {
			continue
		}
		seen[col] = struct{}{}
		out = append(out, col)
	}
	return out
}

// Normalize declares the canonical columns and fills absent cells with the
// empty string so every row carries every column.
func (t Table) Normalize() Table {
	cols := CanonicalColumns(t.Columns)
	out := Table{Columns: cols, Rows: make([]Row, len(t.Rows))}
	for i, row := range t.Rows {
		filled := make(Row, len(cols))
		for _, col := range cols {
			filled[col] = row[col]
		}
		out.Rows[i] = filled
	}
	return out
}

func toSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}
