package service

import (
	"context"

	"ridequery/internal/model"
)

// CityFinder is the gazetteer lookup surface of the city repository
type CityFinder interface {
	FindByName(ctx context.Context, name string) (*model.City, error)
	FindNearest(ctx context.Context, lat, lng float64) (*model.City, float64, error)
}

// GazetteerProvider geocodes offline against the imported cities table
type GazetteerProvider struct {
	cities CityFinder
	// maxReverseKm bounds how far away the nearest city may be for a reverse match
	maxReverseKm float64
}

// NewGazetteerProvider creates an offline geocoding provider
func NewGazetteerProvider(cities CityFinder) *GazetteerProvider {
	return &GazetteerProvider{cities: cities, maxReverseKm: 50}
}

// LookupName returns the most populous city with that name
func (g *GazetteerProvider) LookupName(ctx context.Context, name string) (*GeoPoint, error) {
	city, err := g.cities.FindByName(ctx, name)
	if err != nil || city == nil {
		return nil, err
	}
	return &GeoPoint{Lat: city.Latitude, Lng: city.Longitude, CityLabel: city.Name}, nil
}

// LookupCoordinates returns the nearest city within range
func (g *GazetteerProvider) LookupCoordinates(ctx context.Context, lat, lng float64) (*GeoPlace, error) {
	city, dist, err := g.cities.FindNearest(ctx, lat, lng)
	if err != nil || city == nil {
		return nil, err
	}
	if dist > g.maxReverseKm {
		return nil, nil
	}
	return &GeoPlace{CityLabel: city.Name}, nil
}
