package handler

import (
	"context"

	"ridequery/internal/model"
	"ridequery/internal/service"
)

// SearchService is the service surface the HTTP handlers depend on
type SearchService interface {
	Query(ctx context.Context, req *model.ChatQueryRequest) (*model.ChatQueryResponse, error)
	QueryStream(ctx context.Context, req *model.ChatQueryRequest, callback service.SearchEventCallback) (*model.ChatQueryResponse, error)
	GetRide(ctx context.Context, rideID int64, requesterID string) (*model.RideDetailResponse, error)
	GetRequester(ctx context.Context, requesterID string) (*model.RequesterContext, error)
	UpdateLocation(ctx context.Context, requesterID string, lat, lng float64) (*model.RequesterContext, error)
	UpdateSettings(ctx context.Context, requesterID string, req *model.SettingsUpdateRequest) (*model.RequesterContext, error)
	LogFeedback(ctx context.Context, req *model.FeedbackRequest) error
	UpdateEmbeddings(ctx context.Context, items []model.EmbeddingItem) (int, []string)
}

var _ SearchService = (*service.SearchService)(nil)
