package service

import (
	"context"
	"strings"

	"github.com/requestr/api/internal/model"
)

// TrackService exposes track search and lookup to the audience
type TrackService struct {
	catalog TrackCatalog
}

// NewTrackService creates a new track service. catalog may be nil when no
// provider is configured.
func NewTrackService(catalog TrackCatalog) *TrackService {
	return &TrackService{catalog: catalog}
}

// Search finds tracks by free text
func (s *TrackService) Search(ctx context.Context, query string, limit int) ([]model.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, model.E(model.KindInvalidArgument, "Search query cannot be empty")
	}
	if limit < 1 || limit > 50 {
		return nil, model.E(model.KindInvalidArgument, "limit must be between 1 and 50")
	}
	if s.catalog == nil {
		return nil, model.E(model.KindUpstreamUnavailable, "Track search is not available")
	}
	return s.catalog.Search(ctx, query, limit)
}

// GetTrack returns one track by its catalog id
func (s *TrackService) GetTrack(ctx context.Context, id string) (*model.Track, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, model.E(model.KindInvalidArgument, "Track ID cannot be empty")
	}
	if s.catalog == nil {
		return nil, model.E(model.KindUpstreamUnavailable, "Track lookup is not available")
	}

	t, err := s.catalog.GetTrack(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, model.E(model.KindNotFound, "Track not found")
	}
	return t, nil
}
