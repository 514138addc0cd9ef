package model

// Intent is the coarse purpose of a chat message
type Intent string

const (
	IntentSearch  Intent = "search"
	IntentDetail  Intent = "detail"
	IntentHelp    Intent = "help"
	IntentUnknown Intent = "unknown"
)

// Relative date tokens understood by the date resolver
const (
	RelativeToday       = "today"
	RelativeTomorrow    = "tomorrow"
	RelativeThisWeekend = "this_weekend"
	RelativeThisWeek    = "this_week"
	RelativeNextWeek    = "next_week"
)

// Ride disciplines
const (
	DisciplineRoad   = "road"
	DisciplineGravel = "gravel"
	DisciplineMTB    = "mtb"
	DisciplineMixed  = "mixed"
)

// StructuredQuery is the normalized, partially populated search intent extracted
// from one chat message. Every field is optional; nil means unconstrained.
type StructuredQuery struct {
	Intent     Intent         `json:"intent"`
	Location   *LocationQuery `json:"location,omitempty"`
	RadiusKm   *float64       `json:"radius,omitempty"`
	DateRange  *DateQuery     `json:"dateRange,omitempty"`
	Pace       *Bounds        `json:"pace,omitempty"`
	Distance   *Bounds        `json:"distance,omitempty"`
	Community  *string        `json:"community,omitempty"`
	Chapter    *string        `json:"chapter,omitempty"`
	Discipline *string        `json:"discipline,omitempty"`
}

// LocationQuery is either a place name to geocode or a request to use the saved location
type LocationQuery struct {
	Name          string `json:"name,omitempty"`
	UseMyLocation bool   `json:"useMyLocation,omitempty"`
}

// DateQuery holds explicit calendar bounds (YYYY-MM-DD) or one relative token, never both
type DateQuery struct {
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Relative string `json:"relative,omitempty"`
}

// Bounds is an optional numeric min/max pair
type Bounds struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// UnknownQuery is what the language adapter returns when it cannot interpret a message
func UnknownQuery() StructuredQuery {
	return StructuredQuery{Intent: IntentUnknown}
}

// HasFilters reports whether anything besides the intent was recovered
func (q StructuredQuery) HasFilters() bool {
	return q.Location != nil ||
		q.RadiusKm != nil ||
		q.DateRange != nil ||
		q.Pace != nil ||
		q.Distance != nil ||
		q.Community != nil ||
		q.Chapter != nil ||
		q.Discipline != nil
}

// IsEmpty reports whether both bounds are unset
func (b *Bounds) IsEmpty() bool {
	return b == nil || (b.Min == nil && b.Max == nil)
}
