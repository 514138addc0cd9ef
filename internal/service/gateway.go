package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"ridequery/internal/model"
	"ridequery/internal/repository"
	"ridequery/internal/utils"
)

// RideSource is the ride store's search surface: a circle, a start-time window and paging
type RideSource interface {
	SearchNearby(ctx context.Context, q repository.NearbyQuery) ([]model.RideCandidate, error)
}

// maxUpstreamPages bounds how many capped pages one search may read
const maxUpstreamPages = 50

// RideGateway pages through the ride store in capped batches and filters each batch client-side
type RideGateway struct {
	source      RideSource
	ranker      *Ranker
	upstreamCap int
	clock       func() time.Time
	logger      *zap.Logger
}

// NewRideGateway creates a gateway over source. upstreamCap is the page size of
// each store query; zero or less reads everything in one query.
func NewRideGateway(source RideSource, ranker *Ranker, upstreamCap int, clock func() time.Time, logger *zap.Logger) *RideGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = time.Now
	}
	return &RideGateway{
		source:      source,
		ranker:      ranker,
		upstreamCap: upstreamCap,
		clock:       clock,
		logger:      logger.Named("gateway"),
	}
}

// SearchRides returns filtered, ranked, limited rides. Upstream failures yield an empty list.
func (g *RideGateway) SearchRides(ctx context.Context, p model.SearchParameters) []model.RideCandidate {
	q := g.upstreamQuery(p)
	if q.Until != nil && q.Until.Before(q.Since) {
		return []model.RideCandidate{}
	}

	var (
		rides    []model.RideCandidate
		upstream int
		pages    int
	)
	for {
		batch, err := g.source.SearchNearby(ctx, q)
		if err != nil {
			g.logger.Warn("Ride search failed, treating as no results", zap.Error(err))
			return []model.RideCandidate{}
		}
		pages++
		upstream += len(batch)
		rides = append(rides, FilterRides(batch, p)...)

		if q.Limit <= 0 || len(batch) < q.Limit || g.topSettled(rides, batch, p.ResultLimit) {
			break
		}
		if pages >= maxUpstreamPages {
			g.logger.Warn("Ride search stopped at page bound",
				zap.Int("pages", pages),
				zap.Int("upstream", upstream),
			)
			break
		}
		q.Offset += len(batch)
	}

	if rides == nil {
		rides = []model.RideCandidate{}
	}
	g.ranker.RankRides(rides, p.Lat, p.Lng)

	if p.ResultLimit > 0 && len(rides) > p.ResultLimit {
		rides = rides[:p.ResultLimit]
	}

	g.logger.Debug("Ride search finished",
		zap.Int("pages", pages),
		zap.Int("upstream", upstream),
		zap.Int("returned", len(rides)),
	)
	return rides
}

// upstreamQuery narrows the store query to upcoming rides inside the requested date window
func (g *RideGateway) upstreamQuery(p model.SearchParameters) repository.NearbyQuery {
	q := repository.NearbyQuery{
		Since: startOfDay(g.clock().In(g.ranker.loc)),
		Limit: g.upstreamCap,
	}
	if p.DateFrom != nil {
		if from := startOfDay(*p.DateFrom); from.After(q.Since) {
			q.Since = from
		}
	}
	if p.DateTo != nil {
		to := endOfDay(*p.DateTo)
		q.Until = &to
	}
	if p.HasLocation() {
		q.Lat, q.Lng, q.RadiusKm = p.Lat, p.Lng, p.RadiusKm
	}
	return q
}

// topSettled reports whether later pages can no longer change the first limit
// ranked rides. Pages arrive in start order and ranking is by day first, so once
// the page has moved past the day of the limit-th kept ride nothing later can outrank it.
func (g *RideGateway) topSettled(kept, batch []model.RideCandidate, limit int) bool {
	if limit <= 0 || len(kept) < limit || len(batch) == 0 {
		return false
	}
	cutoff := g.ranker.day(kept[limit-1].StartTime)
	return g.ranker.day(batch[len(batch)-1].StartTime).After(cutoff)
}

// FilterRides applies the client-side filters in a fixed order. It never
// truncates; the result limit is applied by the caller after ranking.
func FilterRides(rides []model.RideCandidate, p model.SearchParameters) []model.RideCandidate {
	filters := []func(*model.RideCandidate) bool{}

	if p.DateFrom != nil {
		from := startOfDay(*p.DateFrom)
		filters = append(filters, func(r *model.RideCandidate) bool {
			return !r.StartTime.Before(from)
		})
	}
	if p.DateTo != nil {
		to := endOfDay(*p.DateTo)
		filters = append(filters, func(r *model.RideCandidate) bool {
			return !r.StartTime.After(to)
		})
	}
	if p.PaceMin != nil {
		threshold := *p.PaceMin
		filters = append(filters, func(r *model.RideCandidate) bool {
			if !r.HasPace() {
				return true
			}
			return (r.PaceMin != nil && *r.PaceMin >= threshold) || (r.PaceMax != nil && *r.PaceMax >= threshold)
		})
	}
	if p.PaceMax != nil {
		threshold := *p.PaceMax
		filters = append(filters, func(r *model.RideCandidate) bool {
			if !r.HasPace() {
				return true
			}
			return (r.PaceMin != nil && *r.PaceMin <= threshold) || (r.PaceMax != nil && *r.PaceMax <= threshold)
		})
	}
	if p.CommunitySlug != nil {
		slug := *p.CommunitySlug
		filters = append(filters, func(r *model.RideCandidate) bool {
			return r.CommunitySlug != nil && strings.EqualFold(*r.CommunitySlug, slug)
		})
	}
	if p.Discipline != nil {
		want := *p.Discipline
		filters = append(filters, func(r *model.RideCandidate) bool {
			if r.Terrain == nil {
				return true
			}
			if _, known := utils.NormalizeDiscipline(*r.Terrain); !known {
				return true
			}
			return utils.FuzzyMatchDiscipline(want, *r.Terrain)
		})
	}
	if p.DistanceMin != nil {
		minKm := *p.DistanceMin
		filters = append(filters, func(r *model.RideCandidate) bool {
			return r.DistanceKm == nil || *r.DistanceKm >= minKm
		})
	}
	if p.DistanceMax != nil {
		maxKm := *p.DistanceMax
		filters = append(filters, func(r *model.RideCandidate) bool {
			return r.DistanceKm == nil || *r.DistanceKm <= maxKm
		})
	}
	if p.Chapter != nil {
		chapter := strings.ToLower(strings.TrimSpace(*p.Chapter))
		filters = append(filters, func(r *model.RideCandidate) bool {
			return r.ChapterName != nil && strings.Contains(strings.ToLower(*r.ChapterName), chapter)
		})
	}

	kept := make([]model.RideCandidate, 0, len(rides))
	for i := range rides {
		keep := true
		for _, f := range filters {
			if !f(&rides[i]) {
				keep = false
				break
			}
		}
		if keep {
			kept = append(kept, rides[i])
		}
	}
	return kept
}
