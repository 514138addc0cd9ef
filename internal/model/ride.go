package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
)

// RideCandidate is a read-only projection of one ride event
type RideCandidate struct {
	ID            int64            `json:"id" db:"id"`
	Title         string           `json:"title" db:"title"`
	Description   *string          `json:"description,omitempty" db:"description"`
	StartTime     time.Time        `json:"start_time" db:"start_time"`
	EndTime       *time.Time       `json:"end_time,omitempty" db:"end_time"`
	LocationName  *string          `json:"location_name,omitempty" db:"location_name"`
	Address       *string          `json:"address,omitempty" db:"address"`
	Latitude      *float64         `json:"latitude,omitempty" db:"latitude"`
	Longitude     *float64         `json:"longitude,omitempty" db:"longitude"`
	MaxAttendees  *int             `json:"max_attendees,omitempty" db:"max_attendees"`
	AttendeeCount int              `json:"attendee_count" db:"attendee_count"`
	PaceMin       *float64         `json:"pace_min,omitempty" db:"pace_min"`
	PaceMax       *float64         `json:"pace_max,omitempty" db:"pace_max"`
	DistanceKm    *float64         `json:"distance_km,omitempty" db:"distance_km"`
	Terrain       *string          `json:"terrain,omitempty" db:"terrain"`
	CommunitySlug *string          `json:"community_slug,omitempty" db:"community_slug"`
	CommunityName *string          `json:"community_name,omitempty" db:"community_name"`
	ChapterName   *string          `json:"chapter_name,omitempty" db:"chapter_name"`
	Embedding     *pgvector.Vector `json:"-" db:"embedding"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at" db:"updated_at"`
}

// HasPace reports whether the ride declares any pace bound
func (r *RideCandidate) HasPace() bool {
	return r.PaceMin != nil || r.PaceMax != nil
}

// HasCoordinates reports whether the ride has a usable start point
func (r *RideCandidate) HasCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// City is one gazetteer entry used for offline geocoding
type City struct {
	ID          int64   `json:"id" db:"id"`
	Name        string  `json:"name" db:"name"`
	ASCIIName   string  `json:"ascii_name" db:"ascii_name"`
	CountryCode string  `json:"country_code" db:"country_code"`
	Latitude    float64 `json:"latitude" db:"latitude"`
	Longitude   float64 `json:"longitude" db:"longitude"`
	Population  int64   `json:"population" db:"population"`
}

// IDList is a list of ride ids stored as a JSON array column
type IDList []int64

// Value implements driver.Valuer interface
func (l IDList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]int64(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner interface
func (l *IDList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported IDList source %T", value)
	}
}
