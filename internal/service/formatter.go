package service

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"ridequery/internal/model"
	"ridequery/internal/utils"
)

// NoRidesText is rendered for an empty ride list
const NoRidesText = "No rides found. Try broadening your search: a bigger radius, other dates or fewer filters."

var markupEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Formatter renders rides as chat text with inline HTML markup
type Formatter struct {
	publicBaseURL string
	loc           *time.Location
	clock         func() time.Time
}

// NewFormatter creates a formatter; links point at publicBaseURL/rides/{id}
func NewFormatter(publicBaseURL string, loc *time.Location, clock func() time.Time) *Formatter {
	if loc == nil {
		loc = time.Local
	}
	if clock == nil {
		clock = time.Now
	}
	return &Formatter{
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		loc:           loc,
		clock:         clock,
	}
}

// FormatRideList renders a header and one block per ride
func (f *Formatter) FormatRideList(rides []model.RideCandidate, locationLabel string, lat, lng *float64) string {
	if len(rides) == 0 {
		return NoRidesText
	}

	noun := "rides"
	if len(rides) == 1 {
		noun = "ride"
	}
	header := fmt.Sprintf("Found %d %s", len(rides), noun)
	if label := strings.TrimSpace(locationLabel); label != "" {
		header += " near " + escape(label)
	}

	blocks := make([]string, 0, len(rides)+1)
	blocks = append(blocks, header+":")
	for _, ride := range rides {
		blocks = append(blocks, f.FormatSingleRide(ride, lat, lng, f.publicBaseURL != ""))
	}
	return strings.Join(blocks, "\n\n")
}

// FormatSingleRide renders one ride block
func (f *Formatter) FormatSingleRide(ride model.RideCandidate, lat, lng *float64, includeLink bool) string {
	var lines []string

	lines = append(lines, "<b>"+escape(ride.Title)+"</b>")
	lines = append(lines, "📅 "+f.formatWhen(ride.StartTime))

	if where := formatWhere(ride, lat, lng); where != "" {
		lines = append(lines, "📍 "+where)
	}
	if summary := formatEffort(ride); summary != "" {
		lines = append(lines, "🚴 "+summary)
	}
	if ride.CommunityName != nil && strings.TrimSpace(*ride.CommunityName) != "" {
		lines = append(lines, "👥 "+escape(*ride.CommunityName))
	}
	if ride.MaxAttendees != nil && *ride.MaxAttendees > 0 {
		lines = append(lines, "✋ "+formatCapacity(ride.AttendeeCount, *ride.MaxAttendees))
	}
	if includeLink && f.publicBaseURL != "" {
		lines = append(lines, fmt.Sprintf(`<a href="%s/rides/%d">View details</a>`, escape(f.publicBaseURL), ride.ID))
	}
	return strings.Join(lines, "\n")
}

// FormatRideDetail renders the single-ride block followed by address and description
func (f *Formatter) FormatRideDetail(ride model.RideCandidate, lat, lng *float64) string {
	text := f.FormatSingleRide(ride, lat, lng, true)
	if ride.Address != nil && strings.TrimSpace(*ride.Address) != "" {
		text += "\n🗺 " + escape(strings.TrimSpace(*ride.Address))
	}
	if ride.Description != nil && strings.TrimSpace(*ride.Description) != "" {
		text += "\n\n" + escape(truncate(strings.TrimSpace(*ride.Description), 600))
	}
	return text
}

// formatWhen renders "Sat 17 Oct, 08:30" with a relative-day note inside a week
func (f *Formatter) formatWhen(start time.Time) string {
	local := start.In(f.loc)
	text := local.Format("Mon 2 Jan, 15:04")

	days := calendarDaysBetween(f.clock().In(f.loc), local)
	switch {
	case days == 0:
		text += " (Today)"
	case days == 1:
		text += " (Tomorrow)"
	case days > 1 && days < 7:
		text += fmt.Sprintf(" (in %d days)", days)
	}
	return text
}

func formatWhere(ride model.RideCandidate, lat, lng *float64) string {
	name := ""
	if ride.LocationName != nil {
		name = escape(strings.TrimSpace(*ride.LocationName))
	}

	if lat == nil || lng == nil || !ride.HasCoordinates() {
		return name
	}

	km := int(math.Round(utils.HaversineKm(*lat, *lng, *ride.Latitude, *ride.Longitude)))
	if name == "" {
		return fmt.Sprintf("%d km away", km)
	}
	return fmt.Sprintf("%s (%d km away)", name, km)
}

func formatEffort(ride model.RideCandidate) string {
	var parts []string

	switch {
	case ride.PaceMin != nil && ride.PaceMax != nil:
		parts = append(parts, fmt.Sprintf("%s-%s km/h", formatNumber(*ride.PaceMin), formatNumber(*ride.PaceMax)))
	case ride.PaceMin != nil:
		parts = append(parts, fmt.Sprintf("%s+ km/h", formatNumber(*ride.PaceMin)))
	case ride.PaceMax != nil:
		parts = append(parts, fmt.Sprintf("up to %s km/h", formatNumber(*ride.PaceMax)))
	}
	if ride.DistanceKm != nil {
		parts = append(parts, formatNumber(*ride.DistanceKm)+" km")
	}
	return strings.Join(parts, " · ")
}

func formatCapacity(attending, max int) string {
	if attending >= max {
		return fmt.Sprintf("%d/%d riders, FULL", attending, max)
	}
	left := max - attending
	spots := "spots"
	if left == 1 {
		spots = "spot"
	}
	return fmt.Sprintf("%d/%d riders, %d %s left", attending, max, left, spots)
}

// calendarDaysBetween counts midnights from a to b, both already in the same location
func calendarDaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(math.Round(v*10)/10, 'f', -1, 64)
}

func escape(s string) string {
	return markupEscaper.Replace(s)
}
