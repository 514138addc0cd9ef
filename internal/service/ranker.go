package service

import (
	"math"
	"sort"
	"time"

	"ridequery/internal/model"
	"ridequery/internal/utils"
)

// Ranker orders ride candidates for presentation
type Ranker struct {
	loc *time.Location
}

// NewRanker creates a ranker that buckets rides by calendar day in loc
func NewRanker(loc *time.Location) *Ranker {
	if loc == nil {
		loc = time.Local
	}
	return &Ranker{loc: loc}
}

// RankRides sorts rides in place: earlier days first, nearer rides first within
// a day when the origin is known, then by start time. Rides without coordinates
// sort after located ones of the same day.
func (r *Ranker) RankRides(rides []model.RideCandidate, lat, lng *float64) {
	hasOrigin := lat != nil && lng != nil

	type ranked struct {
		ride     model.RideCandidate
		day      time.Time
		distance float64
	}
	keyed := make([]ranked, len(rides))
	for i, ride := range rides {
		keyed[i] = ranked{ride: ride, day: r.day(ride.StartTime), distance: math.Inf(1)}
		if hasOrigin && ride.HasCoordinates() {
			keyed[i].distance = utils.HaversineKm(*lat, *lng, *ride.Latitude, *ride.Longitude)
		}
	}

	sort.SliceStable(keyed, func(i, j int) bool {
		a, b := keyed[i], keyed[j]
		if !a.day.Equal(b.day) {
			return a.day.Before(b.day)
		}
		if hasOrigin && a.distance != b.distance {
			return a.distance < b.distance
		}
		return a.ride.StartTime.Before(b.ride.StartTime)
	})

	for i := range keyed {
		rides[i] = keyed[i].ride
	}
}

func (r *Ranker) day(t time.Time) time.Time {
	return startOfDay(t.In(r.loc))
}
