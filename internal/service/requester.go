package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"

	"ridequery/internal/model"
)

// RequesterStore holds the per-requester preferences written by the
// location and settings flows and read at the start of each interpretation.
type RequesterStore interface {
	Get(ctx context.Context, id string) (*model.RequesterContext, error)
	SaveLocation(ctx context.Context, id string, lat, lng float64, cityLabel string) error
	SaveSettings(ctx context.Context, id string, radiusKm *float64, units *string) error
}

const requesterKeyPrefix = "ridequery:requester:"

// RedisRequesterStore keeps one hash per requester
type RedisRequesterStore struct {
	rdb *redis.Client
}

// NewRedisRequesterStore creates a Redis-backed requester store
func NewRedisRequesterStore(rdb *redis.Client) *RedisRequesterStore {
	return &RedisRequesterStore{rdb: rdb}
}

// Get loads a requester; unknown requesters get an empty context
func (s *RedisRequesterStore) Get(ctx context.Context, id string) (*model.RequesterContext, error) {
	fields, err := s.rdb.HGetAll(ctx, requesterKeyPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load requester: %w", err)
	}

	rc := &model.RequesterContext{ID: id, Units: fields["units"]}
	rc.Lat = parseFloatField(fields["lat"])
	rc.Lng = parseFloatField(fields["lng"])
	rc.RadiusKm = parseFloatField(fields["radius_km"])
	if label := fields["city_label"]; label != "" {
		rc.CityLabel = &label
	}
	if rc.Lat == nil || rc.Lng == nil {
		rc.Lat, rc.Lng = nil, nil
	}
	return rc, nil
}

// SaveLocation stores coordinates and the city label derived from them
func (s *RedisRequesterStore) SaveLocation(ctx context.Context, id string, lat, lng float64, cityLabel string) error {
	key := requesterKeyPrefix + id
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"lat", strconv.FormatFloat(lat, 'f', -1, 64),
			"lng", strconv.FormatFloat(lng, 'f', -1, 64),
		)
		if cityLabel != "" {
			pipe.HSet(ctx, key, "city_label", cityLabel)
		} else {
			pipe.HDel(ctx, key, "city_label")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save requester location: %w", err)
	}
	return nil
}

// SaveSettings stores the non-nil preferences
func (s *RedisRequesterStore) SaveSettings(ctx context.Context, id string, radiusKm *float64, units *string) error {
	values := make([]any, 0, 4)
	if radiusKm != nil {
		values = append(values, "radius_km", strconv.FormatFloat(*radiusKm, 'f', -1, 64))
	}
	if units != nil {
		values = append(values, "units", *units)
	}
	if len(values) == 0 {
		return nil
	}
	if err := s.rdb.HSet(ctx, requesterKeyPrefix+id, values...).Err(); err != nil {
		return fmt.Errorf("failed to save requester settings: %w", err)
	}
	return nil
}

func parseFloatField(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// MemoryRequesterStore is the in-process store used when Redis is not configured
type MemoryRequesterStore struct {
	mu         sync.RWMutex
	requesters map[string]model.RequesterContext
}

// NewMemoryRequesterStore creates an empty in-memory requester store
func NewMemoryRequesterStore() *MemoryRequesterStore {
	return &MemoryRequesterStore{requesters: make(map[string]model.RequesterContext)}
}

// Get returns a copy of the stored requester
func (s *MemoryRequesterStore) Get(_ context.Context, id string) (*model.RequesterContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rc, ok := s.requesters[id]
	if !ok {
		return &model.RequesterContext{ID: id}, nil
	}
	return &rc, nil
}

// SaveLocation stores coordinates and the city label derived from them
func (s *MemoryRequesterStore) SaveLocation(_ context.Context, id string, lat, lng float64, cityLabel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rc := s.requesters[id]
	rc.ID = id
	rc.Lat, rc.Lng = &lat, &lng
	rc.CityLabel = nil
	if cityLabel != "" {
		rc.CityLabel = &cityLabel
	}
	s.requesters[id] = rc
	return nil
}

// SaveSettings stores the non-nil preferences
func (s *MemoryRequesterStore) SaveSettings(_ context.Context, id string, radiusKm *float64, units *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rc := s.requesters[id]
	rc.ID = id
	if radiusKm != nil {
		r := *radiusKm
		rc.RadiusKm = &r
	}
	if units != nil {
		rc.Units = *units
	}
	s.requesters[id] = rc
	return nil
}
