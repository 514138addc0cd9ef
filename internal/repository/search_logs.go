package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"ridequery/internal/model"
)

// ErrSearchNotFound is returned when feedback references an unknown search id
var ErrSearchNotFound = errors.New("search not found")

// SearchLogRepository records interpretations and the feedback on them
type SearchLogRepository struct {
	db *sqlx.DB
}

// NewSearchLogRepository creates a new search log repository
func NewSearchLogRepository(db *sqlx.DB) *SearchLogRepository {
	return &SearchLogRepository{db: db}
}

// LogSearch logs an interpreted chat query
func (r *SearchLogRepository) LogSearch(ctx context.Context, entry *model.SearchLog) error {
	query := r.db.Rebind(`
		INSERT INTO search_logs (search_id, requester_id, query, outcome, relaxation, result_count, returned_ride_ids, response_time_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query,
		entry.SearchID, entry.RequesterID, entry.Query, entry.Outcome, entry.Relaxation,
		entry.ResultCount, entry.ReturnedIDs, entry.ResponseTimeMs)
	if err != nil {
		return fmt.Errorf("failed to log search: %w", err)
	}
	return nil
}

// GetSearch retrieves one logged search
func (r *SearchLogRepository) GetSearch(ctx context.Context, searchID string) (*model.SearchLog, error) {
	query := r.db.Rebind(`
		SELECT search_id, requester_id, query, outcome, relaxation, result_count, returned_ride_ids, response_time_ms, created_at
		FROM search_logs
		WHERE search_id = ?`)

	var entry model.SearchLog
	if err := r.db.GetContext(ctx, &entry, query, searchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get search: %w", err)
	}
	return &entry, nil
}

// LogFeedback logs user feedback/action
func (r *SearchLogRepository) LogFeedback(ctx context.Context, searchID string, rideID int64, action string) error {
	query := r.db.Rebind(`
		UPDATE search_logs
		SET clicked_ride_id = ?, action = ?
		WHERE search_id = ?`)
	res, err := r.db.ExecContext(ctx, query, rideID, action, searchID)
	if err != nil {
		return fmt.Errorf("failed to log feedback: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSearchNotFound
	}
	return nil
}
