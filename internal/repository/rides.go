package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"ridequery/internal/model"
	"ridequery/internal/utils"
)

const rideColumns = `
	id, title, description, start_time, end_time, location_name, address,
	latitude, longitude, max_attendees, attendee_count, pace_min, pace_max,
	distance_km, terrain, community_slug, community_name, chapter_name,
	created_at, updated_at`

// NearbyQuery is the only filter surface the ride store supports: an optional
// circle around a point and a start-time window. Limit and Offset page through
// the result in start-time order.
type NearbyQuery struct {
	Lat      *float64
	Lng      *float64
	RadiusKm *float64
	Since    time.Time
	Until    *time.Time
	Limit    int
	Offset   int
}

// RideRepository handles ride database operations
type RideRepository struct {
	db *sqlx.DB
}

// NewRideRepository creates a new ride repository
func NewRideRepository(db *sqlx.DB) *RideRepository {
	return &RideRepository{db: db}
}

// SearchNearby returns upcoming rides within the radius of a point, soonest first.
// Without coordinates it returns the soonest upcoming rides anywhere.
func (r *RideRepository) SearchNearby(ctx context.Context, q NearbyQuery) ([]model.RideCandidate, error) {
	whereClauses := []string{"start_time >= ?"}
	args := []interface{}{q.Since.UTC()}
	if q.Until != nil {
		whereClauses = append(whereClauses, "start_time <= ?")
		args = append(args, q.Until.UTC())
	}

	circle := q.Lat != nil && q.Lng != nil && q.RadiusKm != nil && *q.RadiusKm > 0
	if circle {
		minLat, maxLat, minLng, maxLng := utils.BoundingBox(*q.Lat, *q.Lng, *q.RadiusKm)
		whereClauses = append(whereClauses,
			"latitude BETWEEN ? AND ?",
			"longitude BETWEEN ? AND ?",
		)
		args = append(args, minLat, maxLat, minLng, maxLng)
	}

	query := fmt.Sprintf(`SELECT %s FROM rides WHERE %s ORDER BY start_time ASC, id ASC`,
		rideColumns, strings.Join(whereClauses, " AND "))
	// The bounding box over-selects, so paging is applied after the exact distance check
	if q.Limit > 0 && !circle {
		query += " LIMIT ? OFFSET ?"
		args = append(args, q.Limit, q.Offset)
	}

	var rides []model.RideCandidate
	if err := r.db.SelectContext(ctx, &rides, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to fetch rides: %w", err)
	}

	if circle {
		within := rides[:0]
		for _, ride := range rides {
			if !ride.HasCoordinates() {
				continue
			}
			if utils.HaversineKm(*q.Lat, *q.Lng, *ride.Latitude, *ride.Longitude) <= *q.RadiusKm {
				within = append(within, ride)
			}
		}
		rides = within
		if q.Offset > 0 {
			if q.Offset >= len(rides) {
				rides = rides[:0]
			} else {
				rides = rides[q.Offset:]
			}
		}
		if q.Limit > 0 && len(rides) > q.Limit {
			rides = rides[:q.Limit]
		}
	}

	// Keep a stable order even where the driver compares timestamps as text
	sort.SliceStable(rides, func(i, j int) bool {
		return rides[i].StartTime.Before(rides[j].StartTime)
	})

	return rides, nil
}

// GetRideByID retrieves a single ride by its ID
func (r *RideRepository) GetRideByID(ctx context.Context, id int64) (*model.RideCandidate, error) {
	var ride model.RideCandidate
	query := fmt.Sprintf(`SELECT %s FROM rides WHERE id = ?`, rideColumns)
	err := r.db.GetContext(ctx, &ride, r.db.Rebind(query), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ride: %w", err)
	}
	return &ride, nil
}

// InsertRide stores a ride and returns its new ID
func (r *RideRepository) InsertRide(ctx context.Context, ride *model.RideCandidate) (int64, error) {
	query := `
		INSERT INTO rides (
			title, description, start_time, end_time, location_name, address,
			latitude, longitude, max_attendees, attendee_count, pace_min, pace_max,
			distance_km, terrain, community_slug, community_name, chapter_name
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`

	var endTime *time.Time
	if ride.EndTime != nil {
		t := ride.EndTime.UTC()
		endTime = &t
	}

	var id int64
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(query),
		ride.Title, ride.Description, ride.StartTime.UTC(), endTime, ride.LocationName, ride.Address,
		ride.Latitude, ride.Longitude, ride.MaxAttendees, ride.AttendeeCount, ride.PaceMin, ride.PaceMax,
		ride.DistanceKm, ride.Terrain, ride.CommunitySlug, ride.CommunityName, ride.ChapterName,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert ride: %w", err)
	}
	return id, nil
}

// UpdateEmbedding updates the embedding vector for a ride
func (r *RideRepository) UpdateEmbedding(ctx context.Context, rideID int64, embedding []float32) error {
	vec := pgvector.NewVector(embedding)
	query := r.db.Rebind(`UPDATE rides SET embedding = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, vec, rideID)
	if err != nil {
		return fmt.Errorf("failed to update embedding: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("ride %d not found", rideID)
	}
	return nil
}

// BatchUpdateEmbeddings updates embeddings for multiple rides
func (r *RideRepository) BatchUpdateEmbeddings(ctx context.Context, items []model.EmbeddingItem) (int, []string) {
	success := 0
	var errs []string

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		errs = append(errs, fmt.Sprintf("failed to start transaction: %v", err))
		return success, errs
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`UPDATE rides SET embedding = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`))
	if err != nil {
		errs = append(errs, fmt.Sprintf("failed to prepare statement: %v", err))
		return success, errs
	}
	defer stmt.Close()

	for _, item := range items {
		if len(item.Embedding) == 0 {
			errs = append(errs, fmt.Sprintf("ride_id %d: empty embedding", item.RideID))
			continue
		}
		vec := pgvector.NewVector(item.Embedding)
		res, err := stmt.ExecContext(ctx, vec, item.RideID)
		if err != nil {
			errs = append(errs, fmt.Sprintf("ride_id %d: %v", item.RideID, err))
			continue
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			errs = append(errs, fmt.Sprintf("ride_id %d: not found", item.RideID))
			continue
		}
		success++
	}

	if err := tx.Commit(); err != nil {
		errs = append(errs, fmt.Sprintf("failed to commit transaction: %v", err))
		return 0, errs
	}

	return success, errs
}

// ListMissingEmbeddings returns upcoming rides that have no embedding yet, soonest first
func (r *RideRepository) ListMissingEmbeddings(ctx context.Context, since time.Time, limit int) ([]model.RideCandidate, error) {
	query := fmt.Sprintf(`SELECT %s FROM rides WHERE embedding IS NULL AND start_time >= ? ORDER BY start_time ASC, id ASC`, rideColumns)
	args := []interface{}{since.UTC()}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var rides []model.RideCandidate
	if err := r.db.SelectContext(ctx, &rides, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list rides without embeddings: %w", err)
	}
	return rides, nil
}
