package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// GeoPoint is a forward geocoding match
type GeoPoint struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	CityLabel string  `json:"city_label"`
}

// GeoPlace is a reverse geocoding match
type GeoPlace struct {
	CityLabel string `json:"city_label"`
}

// Geocoder resolves place names and coordinates. A nil result means no match;
// upstream failures are reported the same way.
type Geocoder interface {
	GeocodeByName(ctx context.Context, name string) *GeoPoint
	GeocodeByCoordinates(ctx context.Context, lat, lng float64) *GeoPlace
}

// GeocodeProvider is one geocoding backend. (nil, nil) means no match; an error
// means the lookup could not be made and must not be cached.
type GeocodeProvider interface {
	LookupName(ctx context.Context, name string) (*GeoPoint, error)
	LookupCoordinates(ctx context.Context, lat, lng float64) (*GeoPlace, error)
}

const geocodeKeyPrefix = "ridequery:geocode:"

// negativeMarker is cached for lookups that found nothing
const negativeMarker = "null"

// geocodeFetchTimeout bounds a shared upstream lookup once it no longer follows any one caller
const geocodeFetchTimeout = 15 * time.Second

// GeocodingService adapts a provider to the Geocoder contract. It collapses
// concurrent identical lookups and, when Redis is configured, caches results.
type GeocodingService struct {
	provider    GeocodeProvider
	rdb         *redis.Client
	ttl         time.Duration
	negativeTTL time.Duration
	timeout     time.Duration
	group       singleflight.Group
	logger      *zap.Logger
}

// NewGeocodingService creates a geocoder over provider. rdb may be nil to disable caching.
func NewGeocodingService(provider GeocodeProvider, rdb *redis.Client, ttl, negativeTTL time.Duration, logger *zap.Logger) *GeocodingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeocodingService{
		provider:    provider,
		rdb:         rdb,
		ttl:         ttl,
		negativeTTL: negativeTTL,
		timeout:     geocodeFetchTimeout,
		logger:      logger.Named("geocoder"),
	}
}

// GeocodeByName resolves a free-text place name to coordinates and a city label
func (s *GeocodingService) GeocodeByName(ctx context.Context, name string) *GeoPoint {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	key := geocodeKeyPrefix + "name:" + strings.ToLower(strings.Join(strings.Fields(name), " "))

	var point *GeoPoint
	err := s.lookup(ctx, key, &point, func(fetchCtx context.Context) (any, error) {
		return s.provider.LookupName(fetchCtx, name)
	})
	if err != nil {
		s.logger.Warn("Forward geocoding failed", zap.String("name", name), zap.Error(err))
		return nil
	}
	return point
}

// GeocodeByCoordinates resolves coordinates to the nearest city label
func (s *GeocodingService) GeocodeByCoordinates(ctx context.Context, lat, lng float64) *GeoPlace {
	// ~100m grid keeps nearby lookups on one cache entry
	key := fmt.Sprintf("%scoords:%.3f,%.3f", geocodeKeyPrefix, lat, lng)

	var place *GeoPlace
	err := s.lookup(ctx, key, &place, func(fetchCtx context.Context) (any, error) {
		return s.provider.LookupCoordinates(fetchCtx, lat, lng)
	})
	if err != nil {
		s.logger.Warn("Reverse geocoding failed", zap.Float64("lat", lat), zap.Float64("lng", lng), zap.Error(err))
		return nil
	}
	return place
}

// lookup reads key from the cache or runs fetch once for all concurrent callers,
// decoding the result into out (a pointer to a *GeoPoint or *GeoPlace).
// The shared fetch is detached from every caller's cancellation and bounded by
// the service timeout instead; a cancelled caller stops waiting on its own.
func (s *GeocodingService) lookup(ctx context.Context, key string, out any, fetch func(context.Context) (any, error)) error {
	if cached, ok := s.cacheGet(ctx, key); ok {
		if cached == negativeMarker {
			return nil
		}
		if err := json.Unmarshal([]byte(cached), out); err == nil {
			return nil
		}
		s.logger.Warn("Discarding undecodable cache entry", zap.String("key", key))
	}

	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(detached, s.timeout)
		defer cancel()

		result, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		s.cacheSet(fetchCtx, key, result)
		return result, nil
	})

	var v any
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		v = res.Val
	}

	switch dst := out.(type) {
	case **GeoPoint:
		*dst, _ = v.(*GeoPoint)
	case **GeoPlace:
		*dst, _ = v.(*GeoPlace)
	}
	return nil
}

func (s *GeocodingService) cacheGet(ctx context.Context, key string) (string, bool) {
	if s.rdb == nil {
		return "", false
	}
	val, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("Geocode cache read failed", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	return val, true
}

func (s *GeocodingService) cacheSet(ctx context.Context, key string, result any) {
	if s.rdb == nil {
		return
	}

	value, ttl := negativeMarker, s.negativeTTL
	switch r := result.(type) {
	case *GeoPoint:
		if r != nil {
			value, ttl = mustJSON(r), s.ttl
		}
	case *GeoPlace:
		if r != nil {
			value, ttl = mustJSON(r), s.ttl
		}
	}

	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		s.logger.Warn("Geocode cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return negativeMarker
	}
	return string(b)
}
