package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/jmoiron/sqlx"

	"ridequery/internal/model"
	"ridequery/internal/utils"
)

// nearestCityDelta bounds the reverse lookup search box in degrees
const nearestCityDelta = 2.0

// CityRepository serves the offline gazetteer
type CityRepository struct {
	db *sqlx.DB
}

// NewCityRepository creates a new city repository
func NewCityRepository(db *sqlx.DB) *CityRepository {
	return &CityRepository{db: db}
}

// FindByName returns the most populous city whose name matches case-insensitively
func (r *CityRepository) FindByName(ctx context.Context, name string) (*model.City, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	query := r.db.Rebind(`
		SELECT id, name, ascii_name, country_code, latitude, longitude, population
		FROM cities
		WHERE LOWER(name) = LOWER(?) OR LOWER(ascii_name) = LOWER(?)
		ORDER BY population DESC
		LIMIT 1`)

	var city model.City
	if err := r.db.GetContext(ctx, &city, query, name, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find city: %w", err)
	}
	return &city, nil
}

// FindNearest returns the closest city within a few degrees of the point, with its distance in km
func (r *CityRepository) FindNearest(ctx context.Context, lat, lng float64) (*model.City, float64, error) {
	query := r.db.Rebind(`
		SELECT id, name, ascii_name, country_code, latitude, longitude, population
		FROM cities
		WHERE latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?`)

	var candidates []model.City
	err := r.db.SelectContext(ctx, &candidates, query,
		lat-nearestCityDelta, lat+nearestCityDelta, lng-nearestCityDelta, lng+nearestCityDelta)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find nearest city: %w", err)
	}

	var nearest *model.City
	minDist := math.MaxFloat64
	for i := range candidates {
		dist := utils.HaversineKm(lat, lng, candidates[i].Latitude, candidates[i].Longitude)
		if dist < minDist {
			minDist = dist
			nearest = &candidates[i]
		}
	}

	if nearest == nil {
		return nil, 0, nil
	}
	return nearest, minDist, nil
}

// BulkUpsert inserts or replaces cities by id in one transaction
func (r *CityRepository) BulkUpsert(ctx context.Context, cities []model.City) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO cities (id, name, ascii_name, country_code, latitude, longitude, population)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			ascii_name = excluded.ascii_name,
			country_code = excluded.country_code,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			population = excluded.population`))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range cities {
		if _, err := stmt.ExecContext(ctx, c.ID, c.Name, c.ASCIIName, c.CountryCode, c.Latitude, c.Longitude, c.Population); err != nil {
			return 0, fmt.Errorf("city %d: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return len(cities), nil
}
