package model

import "time"

// SearchParameters is the gateway-ready filter set derived from a StructuredQuery
type SearchParameters struct {
	Lat           *float64   `json:"lat,omitempty"`
	Lng           *float64   `json:"lng,omitempty"`
	RadiusKm      *float64   `json:"radius_km,omitempty"`
	DateFrom      *time.Time `json:"date_from,omitempty"`
	DateTo        *time.Time `json:"date_to,omitempty"`
	PaceMin       *float64   `json:"pace_min,omitempty"`
	PaceMax       *float64   `json:"pace_max,omitempty"`
	CommunitySlug *string    `json:"community_slug,omitempty"`
	DistanceMin   *float64   `json:"distance_min,omitempty"`
	DistanceMax   *float64   `json:"distance_max,omitempty"`
	Discipline    *string    `json:"discipline,omitempty"`
	Chapter       *string    `json:"chapter,omitempty"`
	ResultLimit   int        `json:"result_limit"`
}

// HasLocation reports whether the search is anchored to coordinates
func (p SearchParameters) HasLocation() bool {
	return p.Lat != nil && p.Lng != nil
}

// RequesterContext is the caller's saved preferences, read-only to the interpreter
type RequesterContext struct {
	ID        string   `json:"id"`
	Lat       *float64 `json:"lat,omitempty"`
	Lng       *float64 `json:"lng,omitempty"`
	CityLabel *string  `json:"city_label,omitempty"`
	RadiusKm  *float64 `json:"radius_km,omitempty"`
	Units     string   `json:"units,omitempty"` // metric | imperial
}

// HasLocation reports whether the requester saved coordinates
func (r *RequesterContext) HasLocation() bool {
	return r != nil && r.Lat != nil && r.Lng != nil
}

// Outcome classifies how an interpretation ended
type Outcome string

const (
	OutcomeHelp             Outcome = "help"
	OutcomeResults          Outcome = "results"
	OutcomeRelaxed          Outcome = "relaxed"
	OutcomeLocationNotFound Outcome = "location_not_found"
	OutcomeNothingFound     Outcome = "nothing_found"
)

// Interpretation is the result of turning one chat message into rides and a narrative
type Interpretation struct {
	Rides         []RideCandidate  `json:"rides"`
	Narrative     string           `json:"narrative"`
	Outcome       Outcome          `json:"outcome"`
	Relaxation    string           `json:"relaxation,omitempty"`
	Query         StructuredQuery  `json:"query"`
	Params        SearchParameters `json:"params"`
	LocationLabel string           `json:"location_label,omitempty"`
}

// ChatQueryRequest represents one inbound chat message
type ChatQueryRequest struct {
	RequesterID string `json:"requester_id"`
	Text        string `json:"text" binding:"max=1000"`
}

// ChatQueryResponse represents the interpreted answer to a chat message
type ChatQueryResponse struct {
	SearchID   string          `json:"search_id"`
	Narrative  string          `json:"narrative"`
	Rides      []RideCandidate `json:"rides"`
	Outcome    Outcome         `json:"outcome"`
	Relaxation string          `json:"relaxation,omitempty"`
	Query      StructuredQuery `json:"query"`
	Took       int64           `json:"took_ms"` // Response time in milliseconds
}

// RideDetailResponse represents a single ride with its chat rendering
type RideDetailResponse struct {
	Ride RideCandidate `json:"ride"`
	Text string        `json:"text"`
}

// LocationUpdateRequest saves a requester's coordinates
type LocationUpdateRequest struct {
	Lat float64 `json:"lat" binding:"min=-90,max=90"`
	Lng float64 `json:"lng" binding:"min=-180,max=180"`
}

// SettingsUpdateRequest saves a requester's search preferences
type SettingsUpdateRequest struct {
	RadiusKm *float64 `json:"radius_km,omitempty" binding:"omitempty,gt=0,lte=500"`
	Units    *string  `json:"units,omitempty" binding:"omitempty,oneof=metric imperial"`
}

// EmbeddingBatchRequest represents a batch embedding update request
type EmbeddingBatchRequest struct {
	Embeddings []EmbeddingItem `json:"embeddings" binding:"required"`
}

// EmbeddingItem represents a single embedding for a ride
type EmbeddingItem struct {
	RideID    int64     `json:"ride_id" binding:"required"`
	Embedding []float32 `json:"embedding" binding:"required"`
	Text      string    `json:"text,omitempty"` // The text used to generate embedding
}

// EmbeddingBatchResponse represents the response for batch embedding update
type EmbeddingBatchResponse struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// Feedback actions
const (
	ActionClick       = "click"
	ActionRSVP        = "rsvp"
	ActionViewDetails = "view_details"
)

// FeedbackRequest represents a user action on a returned ride
type FeedbackRequest struct {
	SearchID string `json:"search_id" binding:"required"`
	RideID   int64  `json:"ride_id" binding:"required"`
	Action   string `json:"action" binding:"required,oneof=click rsvp view_details"`
}

// FeedbackResponse represents feedback response
type FeedbackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// SearchLog is one persisted interpretation, referenced by feedback
type SearchLog struct {
	SearchID       string    `db:"search_id"`
	RequesterID    string    `db:"requester_id"`
	Query          string    `db:"query"`
	Outcome        string    `db:"outcome"`
	Relaxation     string    `db:"relaxation"`
	ResultCount    int       `db:"result_count"`
	ReturnedIDs    IDList    `db:"returned_ride_ids"`
	ResponseTimeMs int       `db:"response_time_ms"`
	CreatedAt      time.Time `db:"created_at"`
}
