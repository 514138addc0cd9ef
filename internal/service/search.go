package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ridequery/internal/model"
)

var (
	// ErrRideNotFound is returned when a ride id does not exist
	ErrRideNotFound = errors.New("ride not found")
	// ErrRequesterRequired is returned when a requester-scoped call has no id
	ErrRequesterRequired = errors.New("requester id is required")
)

// RideStore is the ride storage surface used outside the search path
type RideStore interface {
	GetRideByID(ctx context.Context, id int64) (*model.RideCandidate, error)
	BatchUpdateEmbeddings(ctx context.Context, items []model.EmbeddingItem) (int, []string)
}

// SearchLogStore persists interpretations and the feedback that follows them
type SearchLogStore interface {
	LogSearch(ctx context.Context, entry *model.SearchLog) error
	LogFeedback(ctx context.Context, searchID string, rideID int64, action string) error
}

// SearchService handles chat queries and the requester flows around them
type SearchService struct {
	interpreter *Interpreter
	requesters  RequesterStore
	rides       RideStore
	searchLogs  SearchLogStore
	geocoder    Geocoder
	formatter   *Formatter
	timeout     time.Duration
	logger      *zap.Logger

	mu       sync.Mutex
	inflight map[string]*inflightQuery
	logs     sync.WaitGroup
}

type inflightQuery struct {
	cancel context.CancelFunc
}

// NewSearchService creates a new search service
func NewSearchService(
	interpreter *Interpreter,
	requesters RequesterStore,
	rides RideStore,
	searchLogs SearchLogStore,
	geocoder Geocoder,
	formatter *Formatter,
	timeout time.Duration,
	logger *zap.Logger,
) *SearchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchService{
		interpreter: interpreter,
		requesters:  requesters,
		rides:       rides,
		searchLogs:  searchLogs,
		geocoder:    geocoder,
		formatter:   formatter,
		timeout:     timeout,
		logger:      logger.Named("search"),
		inflight:    make(map[string]*inflightQuery),
	}
}

// Query interprets one chat message
func (s *SearchService) Query(ctx context.Context, req *model.ChatQueryRequest) (*model.ChatQueryResponse, error) {
	return s.query(ctx, req, nil)
}

// QueryStream interprets one chat message, reporting progress to callback
func (s *SearchService) QueryStream(ctx context.Context, req *model.ChatQueryRequest, callback SearchEventCallback) (*model.ChatQueryResponse, error) {
	if err := callback("start", map[string]any{"status": "Looking for rides..."}); err != nil {
		return nil, err
	}
	resp, err := s.query(ctx, req, callback)
	if err != nil {
		return nil, err
	}
	if err := callback("results", resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *SearchService) query(ctx context.Context, req *model.ChatQueryRequest, callback SearchEventCallback) (*model.ChatQueryResponse, error) {
	startTime := time.Now()

	ctx, done := s.begin(ctx, req.RequesterID)
	defer done()

	requester := s.loadRequester(ctx, req.RequesterID)

	var result model.Interpretation
	if callback != nil {
		result = s.interpreter.InterpretAndSearchStream(ctx, req.Text, requester, callback)
	} else {
		result = s.interpreter.InterpretAndSearch(ctx, req.Text, requester)
	}

	took := time.Since(startTime).Milliseconds()
	resp := &model.ChatQueryResponse{
		SearchID:   uuid.NewString(),
		Narrative:  result.Narrative,
		Rides:      result.Rides,
		Outcome:    result.Outcome,
		Relaxation: result.Relaxation,
		Query:      result.Query,
		Took:       took,
	}

	// Log search (non-blocking)
	entry := &model.SearchLog{
		SearchID:       resp.SearchID,
		RequesterID:    req.RequesterID,
		Query:          req.Text,
		Outcome:        string(result.Outcome),
		Relaxation:     result.Relaxation,
		ResultCount:    len(result.Rides),
		ReturnedIDs:    rideIDs(result.Rides),
		ResponseTimeMs: int(took),
		CreatedAt:      time.Now(),
	}
	s.logs.Add(1)
	go func() {
		defer s.logs.Done()
		logCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.searchLogs.LogSearch(logCtx, entry); err != nil {
			s.logger.Warn("Failed to log search", zap.String("search_id", entry.SearchID), zap.Error(err))
		}
	}()

	return resp, nil
}

// begin bounds one interpretation and cancels any earlier one from the same requester
func (s *SearchService) begin(ctx context.Context, requesterID string) (context.Context, func()) {
	var cancel context.CancelFunc
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	if requesterID == "" {
		return ctx, cancel
	}

	current := &inflightQuery{cancel: cancel}
	s.mu.Lock()
	if previous, ok := s.inflight[requesterID]; ok {
		s.logger.Debug("Superseding in-flight query", zap.String("requester_id", requesterID))
		previous.cancel()
	}
	s.inflight[requesterID] = current
	s.mu.Unlock()

	return ctx, func() {
		s.mu.Lock()
		if s.inflight[requesterID] == current {
			delete(s.inflight, requesterID)
		}
		s.mu.Unlock()
		cancel()
	}
}

func (s *SearchService) loadRequester(ctx context.Context, requesterID string) *model.RequesterContext {
	if requesterID == "" {
		return nil
	}
	requester, err := s.requesters.Get(ctx, requesterID)
	if err != nil {
		s.logger.Warn("Failed to load requester, continuing without saved context",
			zap.String("requester_id", requesterID), zap.Error(err))
		return nil
	}
	return requester
}

// GetRequester returns the saved context for a requester
func (s *SearchService) GetRequester(ctx context.Context, requesterID string) (*model.RequesterContext, error) {
	if strings.TrimSpace(requesterID) == "" {
		return nil, ErrRequesterRequired
	}
	return s.requesters.Get(ctx, requesterID)
}

// UpdateLocation saves coordinates and a reverse-geocoded city label
func (s *SearchService) UpdateLocation(ctx context.Context, requesterID string, lat, lng float64) (*model.RequesterContext, error) {
	if strings.TrimSpace(requesterID) == "" {
		return nil, ErrRequesterRequired
	}

	label := ""
	if place := s.geocoder.GeocodeByCoordinates(ctx, lat, lng); place != nil {
		label = place.CityLabel
	}

	if err := s.requesters.SaveLocation(ctx, requesterID, lat, lng, label); err != nil {
		return nil, fmt.Errorf("failed to save location: %w", err)
	}
	return s.requesters.Get(ctx, requesterID)
}

// UpdateSettings saves radius and unit preferences; nil fields are left unchanged
func (s *SearchService) UpdateSettings(ctx context.Context, requesterID string, req *model.SettingsUpdateRequest) (*model.RequesterContext, error) {
	if strings.TrimSpace(requesterID) == "" {
		return nil, ErrRequesterRequired
	}
	if err := s.requesters.SaveSettings(ctx, requesterID, req.RadiusKm, req.Units); err != nil {
		return nil, fmt.Errorf("failed to save settings: %w", err)
	}
	return s.requesters.Get(ctx, requesterID)
}

// GetRide returns a ride with its chat rendering, measured from the requester's saved location
func (s *SearchService) GetRide(ctx context.Context, rideID int64, requesterID string) (*model.RideDetailResponse, error) {
	ride, err := s.rides.GetRideByID(ctx, rideID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ride: %w", err)
	}
	if ride == nil {
		return nil, ErrRideNotFound
	}

	var lat, lng *float64
	if requester := s.loadRequester(ctx, requesterID); requester.HasLocation() {
		lat, lng = requester.Lat, requester.Lng
	}

	return &model.RideDetailResponse{
		Ride: *ride,
		Text: s.formatter.FormatRideDetail(*ride, lat, lng),
	}, nil
}

// LogFeedback records a user action against an earlier search
func (s *SearchService) LogFeedback(ctx context.Context, req *model.FeedbackRequest) error {
	return s.searchLogs.LogFeedback(ctx, req.SearchID, req.RideID, req.Action)
}

// UpdateEmbeddings stores ride embeddings, returning the success count and per-item errors
func (s *SearchService) UpdateEmbeddings(ctx context.Context, items []model.EmbeddingItem) (int, []string) {
	return s.rides.BatchUpdateEmbeddings(ctx, items)
}

// Wait blocks until pending search logs are written
func (s *SearchService) Wait() {
	s.logs.Wait()
}

func rideIDs(rides []model.RideCandidate) model.IDList {
	ids := make(model.IDList, len(rides))
	for i, r := range rides {
		ids[i] = r.ID
	}
	return ids
}
